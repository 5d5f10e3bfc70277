package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"example.com/ai-plan-importer/backend/internal/ai"
	"example.com/ai-plan-importer/backend/internal/config"
	"example.com/ai-plan-importer/backend/internal/matcher"
	"example.com/ai-plan-importer/backend/internal/models"
	"example.com/ai-plan-importer/backend/internal/notifications"
	"example.com/ai-plan-importer/backend/internal/repository"
)

const chargeReason = "plan import"

// Число этапов конвейера по режимам: auto проходит validating, parsing,
// matching, converting, saving и completed; review добавляет паузу reviewing.
const (
	totalStepsAuto   = 6
	totalStepsReview = 7
)

// Контрольные точки прогресса. Разбор файлов занимает полосу 10..40,
// сопоставление 40..60.
const (
	progressValidating   = 5
	progressParsingBase  = 10
	progressParsingSpan  = 30
	progressMatchingBase = 40
	progressMatchingSpan = 20
	progressReviewing    = 60
	progressConverting   = 75
	progressSaving       = 90
	progressCompleted    = 100
)

// ImportFile описывает один файл пакета импорта в том виде, в каком его
// загрузил клиент. MIME берется из заголовка загрузки и не перепроверяется по
// содержимому.
type ImportFile struct {
	Name    string
	MIME    string
	Content []byte
}

// ImportOptions задают параметры запуска импорта.
type ImportOptions struct {
	PlanType models.PlanType
	Mode     models.ImportMode
	Locale   *string
}

// ImportResult содержит итог синхронного запуска импорта.
type ImportResult struct {
	Success  bool                 `json:"success"`
	JobID    uuid.UUID            `json:"job_id"`
	PlanID   *uuid.UUID           `json:"plan_id,omitempty"`
	Status   models.ImportStatus  `json:"status"`
	Draft    *models.DraftPlan    `json:"draft,omitempty"`
	Matches  []models.MatchResult `json:"matches,omitempty"`
	Errors   []string             `json:"errors,omitempty"`
	Warnings []string             `json:"warnings,omitempty"`
	Stats    models.ImportStats   `json:"stats"`
}

// ReviewDecision описывает решение пользователя по одному исходному названию на
// этапе проверки. Выбирается либо существующая запись каталога, либо
// создание черновой.
type ReviewDecision struct {
	Query         string     `json:"query"`
	CatalogItemID *uuid.UUID `json:"catalog_item_id,omitempty"`
	CreateNew     bool       `json:"create_new,omitempty"`
}

// Extractor получает черновик плана из одного файла через AI-провайдера.
type Extractor interface {
	ExtractPlan(ctx context.Context, request ai.ExtractionRequest) (models.DraftPlan, string, []byte, error)
}

// CatalogStore описывает операции каталога, нужные конвейеру импорта.
type CatalogStore interface {
	ListByKind(ctx context.Context, kind models.CatalogKind) ([]models.CatalogItem, error)
	GetByID(ctx context.Context, id uuid.UUID) (models.CatalogItem, error)
	CreatePlaceholder(ctx context.Context, kind models.CatalogKind, name, normalizedName string) (models.CatalogItem, error)
}

// PlanStore сохраняет дерево плана одной транзакцией.
type PlanStore interface {
	CreateWithTree(ctx context.Context, tree models.PlanTree) (models.Plan, error)
}

// CreditLedger отвечает за баланс и списания кредитов.
type CreditLedger interface {
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
	Charge(ctx context.Context, userID uuid.UUID, amount int64, reason string, importJobID *uuid.UUID) (models.CreditEntry, error)
}

// JobStore хранит задачи импорта и состояние прогонов.
type JobStore interface {
	Create(ctx context.Context, userID uuid.UUID, planType models.PlanType, mode models.ImportMode, locale *string, fileCount int) (models.ImportJob, error)
	GetByID(ctx context.Context, userID, jobID uuid.UUID) (models.ImportJob, error)
	UpdateStatus(ctx context.Context, jobID uuid.UUID, status models.ImportStatus) error
	SaveRunState(ctx context.Context, job models.ImportJob) error
}

// UserStore читает пользователей.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (models.User, error)
}

// RequestLogger пишет журнал обращений к AI-провайдеру.
type RequestLogger interface {
	LogRequest(ctx context.Context, log repository.AIRequestLog) error
}

// Deps перечисляет зависимости сервиса импорта.
type Deps struct {
	Extractor Extractor
	Catalog   CatalogStore
	Plans     PlanStore
	Credits   CreditLedger
	Jobs      JobStore
	Users     UserStore
	AILog     RequestLogger
	Hub       *notifications.Hub
	Provider  string
	Model     string
}

// Service управляет конвейером импорта: извлечение черновиков из файлов,
// сопоставление названий с каталогом, конвертация и атомарное сохранение
// плана со списанием кредитов.
type Service struct {
	extractor Extractor
	catalog   CatalogStore
	plans     PlanStore
	credits   CreditLedger
	jobs      JobStore
	users     UserStore
	aiLog     RequestLogger
	hub       *notifications.Hub
	cfg       config.ImportConfig
	provider  string
	model     string

	mu      sync.Mutex
	active  map[uuid.UUID]context.CancelFunc
	commits map[uuid.UUID]*sync.Mutex
}

// NewService создает сервис импорта.
func NewService(deps Deps, cfg config.ImportConfig) *Service {
	return &Service{
		extractor: deps.Extractor,
		catalog:   deps.Catalog,
		plans:     deps.Plans,
		credits:   deps.Credits,
		jobs:      deps.Jobs,
		users:     deps.Users,
		aiLog:     deps.AILog,
		hub:       deps.Hub,
		cfg:       cfg,
		provider:  deps.Provider,
		model:     deps.Model,
		active:    make(map[uuid.UUID]context.CancelFunc),
		commits:   make(map[uuid.UUID]*sync.Mutex),
	}
}

// Run выполняет импорт синхронно и возвращает итог запуска. Пакет файлов
// превращается в один план: черновики отдельных файлов склеиваются в порядке
// загрузки. Остановка на проверку не считается ошибкой: возвращается итог со
// статусом reviewing.
func (s *Service) Run(ctx context.Context, userID uuid.UUID, files []ImportFile, opts ImportOptions) (ImportResult, error) {
	user, job, err := s.prepare(ctx, userID, files, opts)
	if err != nil {
		return ImportResult{}, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.register(job.ID, cancel)
	defer s.unregister(job.ID)

	tracker := newProgressTracker(job.ID, totalSteps(job.Mode), s.publishSink(userID))

	runErr := s.runPipeline(runCtx, user, &job, files, tracker)
	if runErr != nil && !errors.Is(runErr, errReviewPause) {
		return resultFor(job), runErr
	}

	return resultFor(job), nil
}

// Start проверяет пакет и баланс, создает задачу и запускает импорт в фоне.
// Ошибки валидации и нехватка кредитов возвращаются сразу, без создания
// задачи.
func (s *Service) Start(ctx context.Context, userID uuid.UUID, files []ImportFile, opts ImportOptions) (models.ImportJob, error) {
	user, job, err := s.prepare(ctx, userID, files, opts)
	if err != nil {
		return models.ImportJob{}, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.register(job.ID, cancel)

	run := job
	go func() {
		defer s.unregister(run.ID)
		defer cancel()

		tracker := newProgressTracker(run.ID, totalSteps(run.Mode), s.publishSink(userID))
		defer func() {
			if r := recover(); r != nil {
				slog.Error("import run panic", slog.String("job_id", run.ID.String()), slog.Any("panic", r))
				s.failJob(context.Background(), &run, errors.New("internal error"), tracker)
			}
		}()

		_ = s.runPipeline(runCtx, user, &run, files, tracker)
	}()

	return job, nil
}

// Resume применяет решения пользователя и доводит остановленный запуск до
// конца в фоне. Имена, оставшиеся без решения, закрываются черновыми
// записями каталога.
func (s *Service) Resume(ctx context.Context, userID, jobID uuid.UUID, decisions []ReviewDecision) (models.ImportJob, error) {
	job, err := s.jobs.GetByID(ctx, userID, jobID)
	if err != nil {
		return models.ImportJob{}, err
	}

	switch job.Status {
	case models.ImportStatusReviewing:
	case models.ImportStatusCompleted, models.ImportStatusError:
		return job, ErrAlreadyFinished
	default:
		return job, ErrNotReviewing
	}

	if job.Draft == nil || len(job.Matches) == 0 {
		return job, fmt.Errorf("%w: run state was not saved", ErrNotReviewing)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return job, fmt.Errorf("load user: %w", err)
	}

	if err := s.applyDecisions(ctx, &job, decisions); err != nil {
		return job, err
	}

	if err := s.createPlaceholders(ctx, &job); err != nil {
		return job, err
	}
	recountEntities(&job)

	if err := s.jobs.SaveRunState(ctx, job); err != nil {
		return job, fmt.Errorf("save review decisions: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.register(job.ID, cancel)

	run := job
	go func() {
		defer s.unregister(run.ID)
		defer cancel()

		tracker := newProgressTrackerAt(run.ID, totalStepsReview, s.publishSink(userID), resumeSeqFloor(run), progressReviewing)
		defer func() {
			if r := recover(); r != nil {
				slog.Error("import resume panic", slog.String("job_id", run.ID.String()), slog.Any("panic", r))
				s.failJob(context.Background(), &run, errors.New("internal error"), tracker)
			}
		}()

		if err := s.finishTail(runCtx, user, &run, matchMap(run.Matches), tracker); err != nil {
			s.failJob(context.WithoutCancel(runCtx), &run, err, tracker)
		}
	}()

	return job, nil
}

// Cancel останавливает активный запуск или закрывает задачу, ждущую
// проверки. Завершенные задачи не отменяются.
func (s *Service) Cancel(ctx context.Context, userID, jobID uuid.UUID) (models.ImportJob, error) {
	job, err := s.jobs.GetByID(ctx, userID, jobID)
	if err != nil {
		return models.ImportJob{}, err
	}

	switch job.Status {
	case models.ImportStatusCompleted, models.ImportStatusError:
		return job, ErrAlreadyFinished
	}

	if cancel, ok := s.lookupActive(jobID); ok {
		cancel()
		return job, nil
	}

	// Активной горутины нет: задача ждет проверки или осталась после
	// перезапуска сервиса. Закрываем ее напрямую.
	job.Status = models.ImportStatusError
	job.Errors = append(job.Errors, "import canceled")
	if err := s.jobs.SaveRunState(ctx, job); err != nil {
		return job, err
	}

	s.publishEvent(userID, notifications.TypeImportFailed, map[string]interface{}{
		"job_id": job.ID,
		"error":  "import canceled",
	})

	return job, nil
}

// prepare проверяет пакет и баланс, затем создает задачу импорта.
func (s *Service) prepare(ctx context.Context, userID uuid.UUID, files []ImportFile, opts ImportOptions) (models.User, models.ImportJob, error) {
	opts, err := validateOptions(opts)
	if err != nil {
		return models.User{}, models.ImportJob{}, err
	}

	if err := s.validateFiles(files); err != nil {
		return models.User{}, models.ImportJob{}, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return models.User{}, models.ImportJob{}, fmt.Errorf("load user: %w", err)
	}

	if err := s.checkCredits(ctx, user, len(files)); err != nil {
		return user, models.ImportJob{}, err
	}

	job, err := s.jobs.Create(ctx, userID, opts.PlanType, opts.Mode, opts.Locale, len(files))
	if err != nil {
		return user, models.ImportJob{}, fmt.Errorf("create import job: %w", err)
	}

	return user, job, nil
}

// runPipeline выполняет конвейер и фиксирует итог в задаче. Пауза на
// проверку возвращается как errReviewPause и не помечает задачу ошибкой.
func (s *Service) runPipeline(ctx context.Context, user models.User, job *models.ImportJob, files []ImportFile, tracker *progressTracker) error {
	err := s.pipeline(ctx, user, job, files, tracker)
	if err == nil || errors.Is(err, errReviewPause) {
		return err
	}

	s.failJob(context.WithoutCancel(ctx), job, err, tracker)
	return err
}

func (s *Service) pipeline(ctx context.Context, user models.User, job *models.ImportJob, files []ImportFile, tracker *progressTracker) error {
	if err := s.enterState(ctx, job, models.ImportStatusValidating); err != nil {
		return err
	}
	tracker.emit(models.ImportStatusValidating, progressValidating, fmt.Sprintf("validating %d files", len(files)), &ProgressDetails{
		TotalFiles: len(files),
	})

	if err := s.validateFiles(files); err != nil {
		return err
	}
	if err := s.checkCredits(ctx, user, len(files)); err != nil {
		return err
	}

	if err := s.enterState(ctx, job, models.ImportStatusParsing); err != nil {
		return err
	}

	draft, err := s.parseFiles(ctx, job, files, tracker)
	if err != nil {
		return err
	}
	job.Draft = &draft

	if err := s.enterState(ctx, job, models.ImportStatusMatching); err != nil {
		return err
	}

	if err := s.matchReferences(ctx, job, tracker); err != nil {
		return err
	}

	if job.Mode == models.ImportModeReview && unresolvedCount(job.Matches) > 0 {
		return s.pauseForReview(ctx, job, tracker)
	}

	if err := s.createPlaceholders(ctx, job); err != nil {
		return err
	}
	recountEntities(job)

	return s.finishTail(ctx, user, job, matchMap(job.Matches), tracker)
}

// enterState проверяет отмену и переводит задачу в следующий статус.
// Сбой записи статуса не прерывает прогон: строка задачи догонит состояние
// на ближайшем сохранении.
func (s *Service) enterState(ctx context.Context, job *models.ImportJob, status models.ImportStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	job.Status = status
	if err := s.jobs.UpdateStatus(ctx, job.ID, status); err != nil {
		slog.Warn("update import status", slog.String("job_id", job.ID.String()), slog.String("status", string(status)), slog.Any("error", err))
	}

	return nil
}

// validateFiles проверяет пакет до начала платной работы: число файлов,
// размер и заявленный тип каждого файла.
func (s *Service) validateFiles(files []ImportFile) error {
	if len(files) == 0 {
		return fmt.Errorf("%w: no files uploaded", ErrValidation)
	}
	if s.cfg.MaxFiles > 0 && len(files) > s.cfg.MaxFiles {
		return fmt.Errorf("%w: got %d files, limit is %d", ErrValidation, len(files), s.cfg.MaxFiles)
	}

	for _, file := range files {
		name := strings.TrimSpace(file.Name)
		if name == "" {
			name = "file"
		}
		if len(file.Content) == 0 {
			return fmt.Errorf("%w: %s is empty", ErrValidation, name)
		}
		if s.cfg.MaxFileSizeBytes > 0 && int64(len(file.Content)) > s.cfg.MaxFileSizeBytes {
			return fmt.Errorf("%w: %s exceeds size limit of %d bytes", ErrValidation, name, s.cfg.MaxFileSizeBytes)
		}
		if strings.TrimSpace(file.MIME) == "" {
			return fmt.Errorf("%w: %s has no mime type", ErrValidation, name)
		}
	}

	return nil
}

// checkCredits проверяет достаточность баланса до начала извлечения.
func (s *Service) checkCredits(ctx context.Context, user models.User, fileCount int) error {
	if user.UnlimitedUsage {
		return nil
	}

	cost := s.importCost(fileCount)
	if cost == 0 {
		return nil
	}

	balance, err := s.credits.Balance(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("check balance: %w", err)
	}

	if balance < cost {
		return fmt.Errorf("%w: need %d credits, have %d", repository.ErrInsufficientCredits, cost, balance)
	}

	return nil
}

func (s *Service) importCost(fileCount int) int64 {
	return s.cfg.CreditsPerFile * int64(fileCount)
}

// newExtractionRouter настраивает маршрутизацию файлов по категориям.
// Обработчики отличаются только подсказкой категории в запросе извлечения.
// Fallback не задан, поэтому файл неизвестного типа получает
// ErrUnsupportedMimeType.
func (s *Service) newExtractionRouter(planType models.PlanType, locale string) *Router {
	router := NewRouter()

	for _, category := range []Category{CategoryImage, CategoryPDF, CategorySpreadsheet, CategoryDocument} {
		router.Handle(category, func(file ImportFile) (ai.ExtractionRequest, error) {
			return ai.ExtractionRequest{
				FileName: file.Name,
				MIME:     file.MIME,
				Content:  file.Content,
				Category: string(category),
				PlanType: planType,
				Locale:   locale,
			}, nil
		})
	}

	return router
}

// parseFiles извлекает черновики из файлов с ограниченной конкуренцией и
// склеивает их в один план. Сбой одного файла записывается в ошибки задачи
// и не прерывает остальных; запуск падает, только если не удался ни один
// файл.
func (s *Service) parseFiles(ctx context.Context, job *models.ImportJob, files []ImportFile, tracker *progressTracker) (models.DraftPlan, error) {
	router := s.newExtractionRouter(job.PlanType, localeValue(job.Locale))

	type parsed struct {
		draft models.DraftPlan
		err   error
	}

	slots := make([]parsed, len(files))

	var (
		group    errgroup.Group
		mu       sync.Mutex
		attempts int
	)

	limit := s.cfg.MaxConcurrentFiles
	if limit <= 0 {
		limit = 1
	}
	group.SetLimit(limit)

	for i := range files {
		group.Go(func() error {
			// Ошибки файлов оседают в слотах: одна неудача не должна
			// снимать весь пакет.
			if err := ctx.Err(); err != nil {
				slots[i].err = err
				return nil
			}

			draft, err := s.extractFile(ctx, job, router, files[i])
			slots[i] = parsed{draft: draft, err: err}

			mu.Lock()
			attempts++
			done := attempts
			mu.Unlock()

			message := fmt.Sprintf("processed %s", files[i].Name)
			if err != nil {
				message = fmt.Sprintf("failed to process %s", files[i].Name)
			}

			tracker.emit(models.ImportStatusParsing, progressParsingBase+progressParsingSpan*done/len(files), message, &ProgressDetails{
				FilesProcessed: done,
				TotalFiles:     len(files),
			})

			return nil
		})
	}

	_ = group.Wait()

	drafts := make([]models.DraftPlan, 0, len(files))
	firstName := ""
	for i := range slots {
		if err := slots[i].err; err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			job.Errors = append(job.Errors, fmt.Sprintf("%s: %s", files[i].Name, err))
			continue
		}
		if firstName == "" {
			firstName = files[i].Name
		}
		drafts = append(drafts, slots[i].draft)
	}

	job.Stats.FilesProcessed = len(drafts)

	if err := ctx.Err(); err != nil {
		return models.DraftPlan{}, err
	}

	if len(drafts) == 0 {
		return models.DraftPlan{}, ErrAllFilesFailed
	}

	return mergeDrafts(job.PlanType, drafts, titleFromFileName(firstName)), nil
}

// extractFile маршрутизирует файл и вызывает извлечение. Начатый вызов
// провайдера доводится до конца даже при отмене запуска: результат просто
// не используется, а журнал запросов остается полным.
func (s *Service) extractFile(ctx context.Context, job *models.ImportJob, router *Router, file ImportFile) (models.DraftPlan, error) {
	request, err := router.Route(file)
	if err != nil {
		return models.DraftPlan{}, err
	}

	callCtx := context.WithoutCancel(ctx)

	started := time.Now()
	draft, prompt, raw, err := s.extractor.ExtractPlan(callCtx, request)
	duration := time.Since(started).Milliseconds()

	s.logAIRequest(callCtx, job, file.Name, prompt, raw, duration, err)

	if err != nil {
		return models.DraftPlan{}, err
	}

	return draft, nil
}

func (s *Service) logAIRequest(ctx context.Context, job *models.ImportJob, fileName, prompt string, raw []byte, durationMs int64, extractErr error) {
	if s.aiLog == nil {
		return
	}

	entry := repository.AIRequestLog{
		UserID:      job.UserID,
		ImportJobID: &job.ID,
		FileName:    fileName,
		Provider:    s.provider,
		Model:       s.model,
		Prompt:      prompt,
		RawResponse: string(raw),
		DurationMs:  durationMs,
		Success:     extractErr == nil,
	}
	if extractErr != nil {
		message := extractErr.Error()
		entry.ErrorMessage = &message
		if kind := ai.FailureKind(extractErr); kind != "" {
			entry.FailureKind = &kind
		}
	}

	if err := s.aiLog.LogRequest(ctx, entry); err != nil {
		slog.Warn("log ai request", slog.String("job_id", job.ID.String()), slog.String("file", fileName), slog.Any("error", err))
	}
}

// matchReferences разрешает названия позиций через каталог. Каждое
// отличающееся нормализованное имя разрешается ровно один раз за запуск.
func (s *Service) matchReferences(ctx context.Context, job *models.ImportJob, tracker *progressTracker) error {
	refs := collectReferences(job)
	if len(refs) == 0 {
		return fmt.Errorf("%w: draft has no usable item names", ErrValidation)
	}

	kind := catalogKindFor(job.PlanType)
	resolver := matcher.NewResolver(s.catalog, s.cfg.MatchThreshold)

	job.Matches = make([]models.MatchResult, 0, len(refs))
	job.Stats.EntitiesTotal = len(refs)

	matched := 0
	for i, ref := range refs {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := resolver.Resolve(ctx, kind, ref.display)
		if err != nil {
			return fmt.Errorf("resolve %q: %w", ref.display, err)
		}

		if result.MatchedID != nil {
			matched++
		}
		job.Matches = append(job.Matches, result)

		tracker.emit(models.ImportStatusMatching,
			progressMatchingBase+progressMatchingSpan*(i+1)/len(refs),
			fmt.Sprintf("resolved %d of %d names", i+1, len(refs)),
			&ProgressDetails{
				FilesProcessed:  job.Stats.FilesProcessed,
				TotalFiles:      job.FileCount,
				EntitiesMatched: matched,
				TotalEntities:   len(refs),
			})
	}

	recountEntities(job)
	return nil
}

// pauseForReview сохраняет состояние прогона и останавливает конвейер до
// решений пользователя.
func (s *Service) pauseForReview(ctx context.Context, job *models.ImportJob, tracker *progressTracker) error {
	if err := s.enterState(ctx, job, models.ImportStatusReviewing); err != nil {
		return err
	}

	if err := s.jobs.SaveRunState(ctx, *job); err != nil {
		return fmt.Errorf("save review state: %w", err)
	}

	names := unresolvedNames(job.Matches)
	tracker.emit(models.ImportStatusReviewing, progressReviewing, "waiting for review", &ProgressDetails{
		FilesProcessed:  job.Stats.FilesProcessed,
		TotalFiles:      job.FileCount,
		EntitiesMatched: job.Stats.EntitiesMatched,
		TotalEntities:   job.Stats.EntitiesTotal,
		UnmatchedNames:  names,
	})

	s.publishEvent(job.UserID, notifications.TypeImportReview, map[string]interface{}{
		"job_id":          job.ID,
		"unmatched_names": names,
	})

	return errReviewPause
}

// createPlaceholders заводит черновую запись каталога для каждого имени,
// оставшегося без сопоставления. Черновики ждут модерации, но сразу
// участвуют в плане.
func (s *Service) createPlaceholders(ctx context.Context, job *models.ImportJob) error {
	kind := catalogKindFor(job.PlanType)

	for i := range job.Matches {
		match := &job.Matches[i]
		if match.MatchedID != nil {
			continue
		}

		item, err := s.catalog.CreatePlaceholder(ctx, kind, match.Query, matcher.Normalize(match.Query))
		if err != nil {
			return fmt.Errorf("create placeholder %q: %w", match.Query, err)
		}

		id := item.ID
		match.MatchedID = &id
		match.MatchedName = item.Name
		match.AutoCreated = true
	}

	return nil
}

// applyDecisions применяет решения проверки к результатам сопоставления.
// Ручной выбор указывает на существующую запись каталога нужного раздела.
func (s *Service) applyDecisions(ctx context.Context, job *models.ImportJob, decisions []ReviewDecision) error {
	kind := catalogKindFor(job.PlanType)

	byQuery := make(map[string]*models.MatchResult, len(job.Matches))
	for i := range job.Matches {
		byQuery[matcher.Normalize(job.Matches[i].Query)] = &job.Matches[i]
	}

	for _, decision := range decisions {
		match, ok := byQuery[matcher.Normalize(decision.Query)]
		if !ok {
			return fmt.Errorf("%w: unknown query %q", repository.ErrInvalid, decision.Query)
		}

		switch {
		case decision.CatalogItemID != nil:
			item, err := s.catalog.GetByID(ctx, *decision.CatalogItemID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return fmt.Errorf("%w: catalog item %s not found", repository.ErrInvalid, decision.CatalogItemID)
				}
				return err
			}
			if item.Kind != kind {
				return fmt.Errorf("%w: catalog item %s is %s, expected %s", repository.ErrInvalid, item.ID, item.Kind, kind)
			}

			id := item.ID
			match.MatchedID = &id
			match.MatchedName = item.Name
			match.MatchType = models.MatchTypeManual
			match.Confidence = 1
			match.AutoCreated = false
		case decision.CreateNew:
			item, err := s.catalog.CreatePlaceholder(ctx, kind, match.Query, matcher.Normalize(match.Query))
			if err != nil {
				return fmt.Errorf("create placeholder %q: %w", match.Query, err)
			}

			id := item.ID
			match.MatchedID = &id
			match.MatchedName = item.Name
			match.AutoCreated = true
		default:
			return fmt.Errorf("%w: decision for %q chooses nothing", repository.ErrInvalid, decision.Query)
		}
	}

	return nil
}

// finishTail доводит запуск до конца: конвертация, атомарное сохранение
// дерева и списание кредитов после успешного коммита.
func (s *Service) finishTail(ctx context.Context, user models.User, job *models.ImportJob, matches map[string]models.MatchResult, tracker *progressTracker) error {
	if err := s.enterState(ctx, job, models.ImportStatusConverting); err != nil {
		return err
	}
	tracker.emit(models.ImportStatusConverting, progressConverting, "building plan tree", nil)

	tree, err := Convert(job.UserID, job.ID, *job.Draft, matches)
	if err != nil {
		return err
	}

	if err := s.enterState(ctx, job, models.ImportStatusSaving); err != nil {
		return err
	}
	tracker.emit(models.ImportStatusSaving, progressSaving, "saving plan", nil)

	// После начала коммита запуск не отменяется: дерево либо записано
	// целиком, либо нет.
	commitCtx := context.WithoutCancel(ctx)

	lock := s.commitLock(job.UserID)
	lock.Lock()
	defer lock.Unlock()

	plan, err := s.plans.CreateWithTree(commitCtx, tree)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrPersistence, err)
	}
	planID := plan.ID
	job.PlanID = &planID

	if !user.UnlimitedUsage {
		cost := s.importCost(job.FileCount)
		entry, err := s.credits.Charge(commitCtx, job.UserID, cost, chargeReason, &job.ID)
		if err != nil {
			// План уже записан, откатывать нечего.
			slog.Error("charge credits after import", slog.String("job_id", job.ID.String()), slog.Any("error", err))
			job.Warnings = append(job.Warnings, "credit charge failed: "+err.Error())
		} else {
			job.Stats.CreditsUsed = cost
			slog.Info("credits charged", slog.String("job_id", job.ID.String()), slog.Int64("amount", cost), slog.Int64("balance", entry.BalanceAfter))
		}
	}

	job.Status = models.ImportStatusCompleted
	if err := s.jobs.SaveRunState(commitCtx, *job); err != nil {
		slog.Error("save completed import state", slog.String("job_id", job.ID.String()), slog.Any("error", err))
	}

	tracker.emit(models.ImportStatusCompleted, progressCompleted, "import completed", &ProgressDetails{
		FilesProcessed:  job.Stats.FilesProcessed,
		TotalFiles:      job.FileCount,
		EntitiesMatched: job.Stats.EntitiesMatched,
		TotalEntities:   job.Stats.EntitiesTotal,
	})

	s.publishEvent(user.ID, notifications.TypeImportCompleted, map[string]interface{}{
		"job_id":  job.ID,
		"plan_id": planID,
		"stats":   job.Stats,
	})

	return nil
}

// failJob фиксирует ошибку запуска и оповещает подписчиков.
func (s *Service) failJob(ctx context.Context, job *models.ImportJob, runErr error, tracker *progressTracker) {
	message := runErr.Error()
	if errors.Is(runErr, context.Canceled) {
		message = "import canceled"
	}

	job.Status = models.ImportStatusError
	job.Errors = append(job.Errors, message)

	if err := s.jobs.SaveRunState(ctx, *job); err != nil {
		slog.Error("save failed import state", slog.String("job_id", job.ID.String()), slog.Any("error", err))
	}

	tracker.emit(models.ImportStatusError, 0, message, nil)
	s.publishEvent(job.UserID, notifications.TypeImportFailed, map[string]interface{}{
		"job_id": job.ID,
		"error":  message,
	})
}

func (s *Service) register(jobID uuid.UUID, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[jobID] = cancel
}

func (s *Service) unregister(jobID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, jobID)
}

func (s *Service) lookupActive(jobID uuid.UUID) (context.CancelFunc, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel, ok := s.active[jobID]
	return cancel, ok
}

// commitLock возвращает мьютекс коммита пользователя: сохранение дерева и
// списание кредитов сериализуются по пользователю.
func (s *Service) commitLock(userID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.commits[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.commits[userID] = lock
	}
	return lock
}

// publishSink отправляет события прогресса подписчикам пользователя.
func (s *Service) publishSink(userID uuid.UUID) ProgressSink {
	if s.hub == nil {
		return nil
	}
	return func(event ProgressEvent) {
		s.hub.Publish(userID, notifications.Event{Type: notifications.TypeImportProgress, Data: event})
	}
}

func (s *Service) publishEvent(userID uuid.UUID, eventType string, data interface{}) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(userID, notifications.Event{Type: eventType, Data: data})
}

type draftReference struct {
	normalized string
	display    string
}

// collectReferences собирает отличающиеся нормализованные названия позиций
// в порядке первого появления. Позиции, от названий которых после
// нормализации ничего не остается, удаляются из черновика с предупреждением.
func collectReferences(job *models.ImportJob) []draftReference {
	seen := make(map[string]struct{})
	refs := make([]draftReference, 0)

	for wi := range job.Draft.Weeks {
		week := &job.Draft.Weeks[wi]
		for di := range week.Days {
			day := &week.Days[di]
			for ei := range day.Entries {
				entry := &day.Entries[ei]

				kept := entry.Items[:0]
				for _, item := range entry.Items {
					normalized := matcher.Normalize(item.Name)
					if normalized == "" {
						job.Warnings = append(job.Warnings, fmt.Sprintf("skipped item with unusable name %q", item.Name))
						continue
					}
					kept = append(kept, item)

					if _, ok := seen[normalized]; ok {
						continue
					}
					seen[normalized] = struct{}{}
					refs = append(refs, draftReference{normalized: normalized, display: strings.TrimSpace(item.Name)})
				}
				entry.Items = kept
			}
		}
	}

	return refs
}

// mergeDrafts склеивает черновики успешных файлов в один план: недели идут
// в порядке загрузки файлов и перенумеровываются насквозь. Заголовок и
// локаль берутся из первого файла, где они заданы.
func mergeDrafts(planType models.PlanType, drafts []models.DraftPlan, fallbackTitle string) models.DraftPlan {
	merged := models.DraftPlan{PlanType: planType}

	for _, draft := range drafts {
		if merged.Title == "" && strings.TrimSpace(draft.Title) != "" {
			merged.Title = strings.TrimSpace(draft.Title)
		}
		if merged.Locale == nil && draft.Locale != nil {
			merged.Locale = draft.Locale
		}
		merged.Weeks = append(merged.Weeks, draft.Weeks...)
	}

	for i := range merged.Weeks {
		merged.Weeks[i].WeekNumber = i + 1
	}

	if merged.Title == "" {
		merged.Title = fallbackTitle
	}

	return merged
}

// titleFromFileName превращает имя файла в заголовок плана по умолчанию.
func titleFromFileName(name string) string {
	base := strings.TrimSpace(name)
	if idx := strings.LastIndex(base, "."); idx > 0 {
		base = base[:idx]
	}

	words := strings.FieldsFunc(base, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})

	return strings.Join(words, " ")
}

// matchMap индексирует итоговые сопоставления по нормализованному имени.
func matchMap(matches []models.MatchResult) map[string]models.MatchResult {
	result := make(map[string]models.MatchResult, len(matches))
	for _, match := range matches {
		result[matcher.Normalize(match.Query)] = match
	}
	return result
}

// recountEntities пересчитывает статистику сопоставления по итоговым
// решениям: в matched попадают имена, закрытые существующими записями
// каталога, в created заведенные черновые записи.
func recountEntities(job *models.ImportJob) {
	matched, created := 0, 0
	for _, match := range job.Matches {
		if match.AutoCreated {
			created++
			continue
		}
		if match.MatchedID != nil {
			matched++
		}
	}

	job.Stats.EntitiesMatched = matched
	job.Stats.EntitiesCreated = created
}

func unresolvedCount(matches []models.MatchResult) int {
	count := 0
	for _, match := range matches {
		if match.MatchedID == nil {
			count++
		}
	}
	return count
}

// unresolvedNames возвращает исходные написания несопоставленных имен.
func unresolvedNames(matches []models.MatchResult) []string {
	names := make([]string, 0)
	for _, match := range matches {
		if match.MatchedID == nil {
			names = append(names, match.Query)
		}
	}
	return names
}

// resumeSeqFloor восстанавливает номер последнего события остановленного
// запуска: по одному событию на валидацию и паузу, на каждый файл и на
// каждое разрешенное имя.
func resumeSeqFloor(job models.ImportJob) int {
	return 2 + job.FileCount + job.Stats.EntitiesTotal
}

func resultFor(job models.ImportJob) ImportResult {
	return ImportResult{
		Success:  job.Status == models.ImportStatusCompleted,
		JobID:    job.ID,
		PlanID:   job.PlanID,
		Status:   job.Status,
		Draft:    job.Draft,
		Matches:  job.Matches,
		Errors:   job.Errors,
		Warnings: job.Warnings,
		Stats:    job.Stats,
	}
}

// totalSteps возвращает число этапов конвейера для режима запуска.
func totalSteps(mode models.ImportMode) int {
	if mode == models.ImportModeReview {
		return totalStepsReview
	}
	return totalStepsAuto
}

// catalogKindFor сопоставляет тип плана с разделом каталога.
func catalogKindFor(planType models.PlanType) models.CatalogKind {
	if planType == models.PlanTypeWorkout {
		return models.CatalogKindExercise
	}
	return models.CatalogKindFood
}

func localeValue(locale *string) string {
	if locale == nil {
		return ""
	}
	return *locale
}

func validateOptions(opts ImportOptions) (ImportOptions, error) {
	if opts.Mode == "" {
		opts.Mode = models.ImportModeAuto
	}
	if opts.PlanType == "" {
		opts.PlanType = models.PlanTypeNutrition
	}

	if opts.Mode != models.ImportModeAuto && opts.Mode != models.ImportModeReview {
		return opts, fmt.Errorf("%w: unknown mode %q", ErrValidation, opts.Mode)
	}
	if opts.PlanType != models.PlanTypeNutrition && opts.PlanType != models.PlanTypeWorkout {
		return opts, fmt.Errorf("%w: unknown plan type %q", ErrValidation, opts.PlanType)
	}

	return opts, nil
}
