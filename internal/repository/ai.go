package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AIRepository struct {
	db *pgxpool.Pool
}

type AIRequestLog struct {
	UserID       uuid.UUID
	ImportJobID  *uuid.UUID
	FileName     string
	Provider     string
	Model        string
	Prompt       string
	RawResponse  string
	DurationMs   int64
	Success      bool
	FailureKind  *string
	ErrorMessage *string
}

// NewAIRepository создает репозиторий логов запросов к AI-провайдеру.
func NewAIRepository(db *pgxpool.Pool) *AIRepository {
	return &AIRepository{db: db}
}

// LogRequest сохраняет лог одного вызова извлечения.
func (r *AIRepository) LogRequest(ctx context.Context, log AIRequestLog) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO ai_requests
		 (user_id, import_job_id, file_name, provider, model, prompt, raw_response, duration_ms, success, failure_kind, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		log.UserID,
		log.ImportJobID,
		log.FileName,
		log.Provider,
		log.Model,
		log.Prompt,
		log.RawResponse,
		log.DurationMs,
		log.Success,
		log.FailureKind,
		log.ErrorMessage,
	)
	return err
}
