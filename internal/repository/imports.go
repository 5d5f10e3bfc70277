package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/ai-plan-importer/backend/internal/models"
)

const importJobColumns = `id, user_id, status, plan_type, mode, locale, file_count, draft, matches, errors, warnings, files_processed, entities_total, entities_matched, entities_created, credits_used, plan_id, created_at, updated_at`

type ImportJobRepository struct {
	db *pgxpool.Pool
}

// NewImportJobRepository создает репозиторий задач импорта.
func NewImportJobRepository(db *pgxpool.Pool) *ImportJobRepository {
	return &ImportJobRepository{db: db}
}

// Create сохраняет новую задачу импорта в статусе pending.
func (r *ImportJobRepository) Create(ctx context.Context, userID uuid.UUID, planType models.PlanType, mode models.ImportMode, locale *string, fileCount int) (models.ImportJob, error) {
	if fileCount <= 0 {
		return models.ImportJob{}, ErrInvalid
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO import_jobs (id, user_id, status, plan_type, mode, locale, file_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+importJobColumns,
		uuid.New(), userID, models.ImportStatusPending, planType, mode, locale, fileCount,
	)

	return scanImportJob(row)
}

// GetByID возвращает задачу импорта пользователя.
func (r *ImportJobRepository) GetByID(ctx context.Context, userID, jobID uuid.UUID) (models.ImportJob, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+importJobColumns+`
		 FROM import_jobs
		 WHERE id = $1 AND user_id = $2`,
		jobID, userID,
	)

	job, err := scanImportJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ImportJob{}, ErrNotFound
		}
		return models.ImportJob{}, err
	}

	return job, nil
}

// ListByUser возвращает задачи импорта пользователя, новые первыми.
func (r *ImportJobRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.ImportJob, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+importJobColumns+`
		 FROM import_jobs
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]models.ImportJob, 0)
	for rows.Next() {
		job, err := scanImportJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return jobs, nil
}

// UpdateStatus переводит задачу в новый статус конвейера.
func (r *ImportJobRepository) UpdateStatus(ctx context.Context, jobID uuid.UUID, status models.ImportStatus) error {
	cmd, err := r.db.Exec(ctx,
		`UPDATE import_jobs
		 SET status = $2,
		     updated_at = NOW()
		 WHERE id = $1`,
		jobID, status,
	)
	if err != nil {
		return err
	}

	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveRunState записывает текущее состояние прогона: статус, черновик,
// результаты сопоставления, ошибки и статистику.
func (r *ImportJobRepository) SaveRunState(ctx context.Context, job models.ImportJob) error {
	var draftJSON string
	if job.Draft != nil {
		data, err := json.Marshal(job.Draft)
		if err != nil {
			return fmt.Errorf("marshal draft: %w", err)
		}
		draftJSON = string(data)
	}

	var matchesJSON string
	if len(job.Matches) > 0 {
		data, err := json.Marshal(job.Matches)
		if err != nil {
			return fmt.Errorf("marshal matches: %w", err)
		}
		matchesJSON = string(data)
	}

	cmd, err := r.db.Exec(ctx,
		`UPDATE import_jobs
		 SET status = $2,
		     draft = NULLIF($3, '')::jsonb,
		     matches = NULLIF($4, '')::jsonb,
		     errors = $5,
		     warnings = $6,
		     files_processed = $7,
		     entities_total = $8,
		     entities_matched = $9,
		     entities_created = $10,
		     credits_used = $11,
		     plan_id = $12,
		     updated_at = NOW()
		 WHERE id = $1`,
		job.ID, job.Status, draftJSON, matchesJSON, job.Errors, job.Warnings,
		job.Stats.FilesProcessed, job.Stats.EntitiesTotal, job.Stats.EntitiesMatched, job.Stats.EntitiesCreated, job.Stats.CreditsUsed,
		job.PlanID,
	)
	if err != nil {
		return err
	}

	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func scanImportJob(row pgx.Row) (models.ImportJob, error) {
	var job models.ImportJob
	var draftJSON, matchesJSON []byte

	err := row.Scan(&job.ID, &job.UserID, &job.Status, &job.PlanType, &job.Mode, &job.Locale, &job.FileCount,
		&draftJSON, &matchesJSON, &job.Errors, &job.Warnings,
		&job.Stats.FilesProcessed, &job.Stats.EntitiesTotal, &job.Stats.EntitiesMatched, &job.Stats.EntitiesCreated, &job.Stats.CreditsUsed,
		&job.PlanID, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return job, err
	}

	if len(draftJSON) > 0 {
		var draft models.DraftPlan
		if err := json.Unmarshal(draftJSON, &draft); err != nil {
			return job, fmt.Errorf("unmarshal draft: %w", err)
		}
		job.Draft = &draft
	}

	if len(matchesJSON) > 0 {
		if err := json.Unmarshal(matchesJSON, &job.Matches); err != nil {
			return job, fmt.Errorf("unmarshal matches: %w", err)
		}
	}

	return job, nil
}
