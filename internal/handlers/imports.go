package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"example.com/ai-plan-importer/backend/internal/auth"
	"example.com/ai-plan-importer/backend/internal/config"
	"example.com/ai-plan-importer/backend/internal/importer"
	"example.com/ai-plan-importer/backend/internal/models"
	"example.com/ai-plan-importer/backend/internal/repository"
)

type ImportHandler struct {
	Service *importer.Service
	Jobs    *repository.ImportJobRepository
	Limits  config.ImportConfig
}

// NewImportHandler создает обработчик импорта планов.
func NewImportHandler(service *importer.Service, jobs *repository.ImportJobRepository, limits config.ImportConfig) *ImportHandler {
	return &ImportHandler{Service: service, Jobs: jobs, Limits: limits}
}

type ReviewRequest struct {
	Decisions []ReviewDecisionRequest `json:"decisions"`
}

type ReviewDecisionRequest struct {
	Query         string  `json:"query" validate:"required"`
	CatalogItemID *string `json:"catalog_item_id"`
	CreateNew     bool    `json:"create_new"`
}

type ImportJobResponse struct {
	ID        uuid.UUID            `json:"id"`
	Status    models.ImportStatus  `json:"status"`
	PlanType  models.PlanType      `json:"plan_type"`
	Mode      models.ImportMode    `json:"mode"`
	Locale    *string              `json:"locale,omitempty"`
	FileCount int                  `json:"file_count"`
	PlanID    *uuid.UUID           `json:"plan_id,omitempty"`
	Errors    []string             `json:"errors,omitempty"`
	Warnings  []string             `json:"warnings,omitempty"`
	Stats     models.ImportStats   `json:"stats"`
	Matches   []models.MatchResult `json:"matches,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

type ImportJobsResponse struct {
	Jobs []ImportJobResponse `json:"jobs"`
}

// Create принимает пакет файлов и запускает импорт в фоне. Ошибки валидации
// и нехватка кредитов возвращаются сразу; в остальных случаях клиент следит
// за задачей по ее идентификатору или через поток событий.
func (h *ImportHandler) Create(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	form, err := c.MultipartForm()
	if err != nil {
		return badRequest(c, "invalid multipart payload")
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		return badRequest(c, "no files uploaded")
	}
	if h.Limits.MaxFiles > 0 && len(headers) > h.Limits.MaxFiles {
		return badRequest(c, "too many files")
	}

	files := make([]importer.ImportFile, 0, len(headers))
	for _, header := range headers {
		if h.Limits.MaxFileSizeBytes > 0 && header.Size > h.Limits.MaxFileSizeBytes {
			return payloadTooLarge(c, header.Filename+" exceeds the size limit")
		}

		content, err := readUpload(header, h.Limits.MaxFileSizeBytes)
		if err != nil {
			return badRequest(c, "failed to read "+header.Filename)
		}

		files = append(files, importer.ImportFile{
			Name:    header.Filename,
			MIME:    header.Header.Get("Content-Type"),
			Content: content,
		})
	}

	opts := importer.ImportOptions{
		PlanType: models.PlanType(strings.TrimSpace(c.FormValue("plan_type"))),
		Mode:     models.ImportMode(strings.TrimSpace(c.FormValue("mode"))),
		Locale:   optionalFormValue(c, "locale"),
	}

	job, err := h.Service.Start(c.Request().Context(), userID, files, opts)
	if err != nil {
		return importError(c, err)
	}

	return c.JSON(http.StatusAccepted, toImportJobResponse(job, false))
}

// List возвращает задачи импорта пользователя.
func (h *ImportHandler) List(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	limit, offset, err := parsePagination(c, 20, 100)
	if err != nil {
		return badRequest(c, err.Error())
	}

	jobs, err := h.Jobs.ListByUser(c.Request().Context(), userID, limit, offset)
	if err != nil {
		return serverError(c)
	}

	response := make([]ImportJobResponse, 0, len(jobs))
	for _, job := range jobs {
		response = append(response, toImportJobResponse(job, false))
	}

	return c.JSON(http.StatusOK, ImportJobsResponse{Jobs: response})
}

// Get возвращает задачу импорта с результатами сопоставления.
func (h *ImportHandler) Get(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid job id")
	}

	job, err := h.Jobs.GetByID(c.Request().Context(), userID, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c, "import job not found")
		}
		return serverError(c)
	}

	return c.JSON(http.StatusOK, toImportJobResponse(job, true))
}

// Review применяет решения пользователя к остановленной задаче и
// возобновляет импорт.
func (h *ImportHandler) Review(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid job id")
	}

	var req ReviewRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}

	decisions := make([]importer.ReviewDecision, 0, len(req.Decisions))
	for _, decision := range req.Decisions {
		query := strings.TrimSpace(decision.Query)
		if query == "" {
			return badRequest(c, "decision query is required")
		}

		mapped := importer.ReviewDecision{Query: query, CreateNew: decision.CreateNew}
		if decision.CatalogItemID != nil {
			itemID, err := uuid.Parse(strings.TrimSpace(*decision.CatalogItemID))
			if err != nil {
				return badRequest(c, "invalid catalog item id")
			}
			mapped.CatalogItemID = &itemID
		}

		decisions = append(decisions, mapped)
	}

	job, err := h.Service.Resume(c.Request().Context(), userID, jobID, decisions)
	if err != nil {
		return importError(c, err)
	}

	return c.JSON(http.StatusAccepted, toImportJobResponse(job, true))
}

// Cancel останавливает задачу импорта.
func (h *ImportHandler) Cancel(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid job id")
	}

	job, err := h.Service.Cancel(c.Request().Context(), userID, jobID)
	if err != nil {
		return importError(c, err)
	}

	return c.JSON(http.StatusAccepted, toImportJobResponse(job, false))
}

// importError переводит ошибки конвейера импорта в HTTP-ответы.
func importError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, importer.ErrValidation):
		return badRequest(c, err.Error())
	case errors.Is(err, repository.ErrInsufficientCredits):
		return paymentRequired(c, err.Error())
	case errors.Is(err, repository.ErrInvalid):
		return badRequest(c, err.Error())
	case errors.Is(err, importer.ErrNotReviewing), errors.Is(err, importer.ErrAlreadyFinished):
		return conflict(c, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		return notFound(c, "import job not found")
	default:
		return serverError(c)
	}
}

func readUpload(header *multipart.FileHeader, maxSize int64) ([]byte, error) {
	src, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = src.Close()
	}()

	reader := io.Reader(src)
	if maxSize > 0 {
		reader = io.LimitReader(src, maxSize+1)
	}

	return io.ReadAll(reader)
}

func optionalFormValue(c echo.Context, name string) *string {
	value := strings.TrimSpace(c.FormValue(name))
	if value == "" {
		return nil
	}
	return &value
}

func toImportJobResponse(job models.ImportJob, includeMatches bool) ImportJobResponse {
	response := ImportJobResponse{
		ID:        job.ID,
		Status:    job.Status,
		PlanType:  job.PlanType,
		Mode:      job.Mode,
		Locale:    job.Locale,
		FileCount: job.FileCount,
		PlanID:    job.PlanID,
		Errors:    job.Errors,
		Warnings:  job.Warnings,
		Stats:     job.Stats,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}

	if includeMatches {
		response.Matches = job.Matches
	}

	return response
}
