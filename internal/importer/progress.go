package importer

import (
	"sync"

	"github.com/google/uuid"

	"example.com/ai-plan-importer/backend/internal/models"
)

// ProgressEvent описывает одно событие хода импорта. step_number строго растет
// внутри запуска, progress не убывает.
type ProgressEvent struct {
	JobID      uuid.UUID           `json:"job_id"`
	Step       models.ImportStatus `json:"step"`
	StepNumber int                 `json:"step_number"`
	TotalSteps int                 `json:"total_steps"`
	Progress   int                 `json:"progress"`
	Message    string              `json:"message"`
	Details    *ProgressDetails    `json:"details,omitempty"`
}

type ProgressDetails struct {
	FilesProcessed  int      `json:"files_processed"`
	TotalFiles      int      `json:"total_files"`
	EntitiesMatched int      `json:"entities_matched"`
	TotalEntities   int      `json:"total_entities"`
	UnmatchedNames  []string `json:"unmatched_names,omitempty"`
}

// ProgressSink принимает события хода импорта.
type ProgressSink func(event ProgressEvent)

// progressTracker нумерует события и не дает процентам откатываться назад.
// Используется из нескольких горутин на этапе разбора файлов.
type progressTracker struct {
	mu         sync.Mutex
	jobID      uuid.UUID
	totalSteps int
	sink       ProgressSink
	seq        int
	progress   int
}

func newProgressTracker(jobID uuid.UUID, totalSteps int, sink ProgressSink) *progressTracker {
	return &progressTracker{jobID: jobID, totalSteps: totalSteps, sink: sink}
}

// newProgressTrackerAt продолжает нумерацию событий возобновленного запуска
// с заданного номера и процента.
func newProgressTrackerAt(jobID uuid.UUID, totalSteps int, sink ProgressSink, seq, progress int) *progressTracker {
	return &progressTracker{jobID: jobID, totalSteps: totalSteps, sink: sink, seq: seq, progress: progress}
}

// emit отправляет событие подписчику. Отправка выполняется в режиме
// fire-and-forget: паника или медленный подписчик не влияют на импорт.
func (t *progressTracker) emit(step models.ImportStatus, progress int, message string, details *ProgressDetails) {
	if t == nil || t.sink == nil {
		return
	}

	t.mu.Lock()
	t.seq++
	if progress < t.progress {
		progress = t.progress
	}
	if progress > 100 {
		progress = 100
	}
	t.progress = progress

	event := ProgressEvent{
		JobID:      t.jobID,
		Step:       step,
		StepNumber: t.seq,
		TotalSteps: t.totalSteps,
		Progress:   progress,
		Message:    message,
		Details:    details,
	}
	t.mu.Unlock()

	func() {
		defer func() {
			_ = recover()
		}()
		t.sink(event)
	}()
}
