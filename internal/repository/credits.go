package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/ai-plan-importer/backend/internal/models"
)

type CreditRepository struct {
	db *pgxpool.Pool
}

// NewCreditRepository создает репозиторий кредитного журнала.
func NewCreditRepository(db *pgxpool.Pool) *CreditRepository {
	return &CreditRepository{db: db}
}

// Balance возвращает текущий баланс пользователя по последней записи журнала.
func (r *CreditRepository) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var balance int64

	err := r.db.QueryRow(ctx,
		`SELECT balance_after
		 FROM credit_ledger
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		userID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}

	return balance, nil
}

// Charge списывает кредиты и добавляет запись журнала с итоговым балансом.
// Достаточность средств проверяется вызывающей стороной до начала платной
// работы; списание после успешного коммита не блокируется, поэтому баланс
// может кратковременно уйти в минус при конкурентных запусках.
func (r *CreditRepository) Charge(ctx context.Context, userID uuid.UUID, amount int64, reason string, importJobID *uuid.UUID) (models.CreditEntry, error) {
	if amount <= 0 || strings.TrimSpace(reason) == "" {
		return models.CreditEntry{}, ErrInvalid
	}

	return r.append(ctx, userID, -amount, reason, importJobID)
}

// Grant начисляет кредиты и добавляет запись журнала.
func (r *CreditRepository) Grant(ctx context.Context, userID uuid.UUID, amount int64, reason string) (models.CreditEntry, error) {
	if amount <= 0 || strings.TrimSpace(reason) == "" {
		return models.CreditEntry{}, ErrInvalid
	}

	return r.append(ctx, userID, amount, reason, nil)
}

func (r *CreditRepository) append(ctx context.Context, userID uuid.UUID, delta int64, reason string, importJobID *uuid.UUID) (models.CreditEntry, error) {
	var entry models.CreditEntry

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return entry, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Блокируем строку пользователя, чтобы баланс считался последовательно
	// при конкурентных списаниях.
	var lockedID uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT id FROM users WHERE id = $1 FOR UPDATE`,
		userID,
	).Scan(&lockedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entry, ErrNotFound
		}
		return entry, err
	}

	var balance int64
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(
			(SELECT balance_after
			 FROM credit_ledger
			 WHERE user_id = $1
			 ORDER BY created_at DESC, id DESC
			 LIMIT 1), 0)`,
		userID,
	).Scan(&balance)
	if err != nil {
		return entry, err
	}

	newBalance := balance + delta

	err = tx.QueryRow(ctx,
		`INSERT INTO credit_ledger (id, user_id, delta, balance_after, reason, import_job_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, user_id, delta, balance_after, reason, import_job_id, created_at`,
		uuid.New(), userID, delta, newBalance, reason, importJobID,
	).Scan(&entry.ID, &entry.UserID, &entry.Delta, &entry.BalanceAfter, &entry.Reason, &entry.ImportJobID, &entry.CreatedAt)
	if err != nil {
		return entry, err
	}

	if err := tx.Commit(ctx); err != nil {
		return entry, err
	}

	return entry, nil
}

// History возвращает записи журнала пользователя, новые первыми.
func (r *CreditRepository) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.CreditEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, delta, balance_after, reason, import_job_id, created_at
		 FROM credit_ledger
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]models.CreditEntry, 0)
	for rows.Next() {
		var entry models.CreditEntry

		err := rows.Scan(&entry.ID, &entry.UserID, &entry.Delta, &entry.BalanceAfter, &entry.Reason, &entry.ImportJobID, &entry.CreatedAt)
		if err != nil {
			return nil, err
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}
