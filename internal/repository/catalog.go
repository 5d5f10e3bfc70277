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

const catalogColumns = `id, kind, name, normalized_name, aliases, calories_per_100g, protein_per_100g, carbs_per_100g, fat_per_100g, muscle_group, equipment, is_approved, auto_created, created_at, updated_at`

type CatalogRepository struct {
	db *pgxpool.Pool
}

// NewCatalogRepository создает репозиторий справочника продуктов и упражнений.
func NewCatalogRepository(db *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// GetByID возвращает элемент справочника по идентификатору.
func (r *CatalogRepository) GetByID(ctx context.Context, id uuid.UUID) (models.CatalogItem, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+catalogColumns+`
		 FROM catalog_items
		 WHERE id = $1`,
		id,
	)

	item, err := scanCatalogItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.CatalogItem{}, ErrNotFound
		}
		return models.CatalogItem{}, err
	}

	return item, nil
}

// ListByKind возвращает всех кандидатов справочника одного вида.
// Используется резолвером для сопоставления названий в памяти.
func (r *CatalogRepository) ListByKind(ctx context.Context, kind models.CatalogKind) ([]models.CatalogItem, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+catalogColumns+`
		 FROM catalog_items
		 WHERE kind = $1
		 ORDER BY name`,
		kind,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectCatalogItems(rows)
}

// Search ищет элементы справочника по подстроке названия.
func (r *CatalogRepository) Search(ctx context.Context, kind models.CatalogKind, query string, limit int) ([]models.CatalogItem, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	pattern := "%" + strings.TrimSpace(query) + "%"
	rows, err := r.db.Query(ctx,
		`SELECT `+catalogColumns+`
		 FROM catalog_items
		 WHERE kind = $1 AND (name ILIKE $2 OR normalized_name ILIKE $2)
		 ORDER BY is_approved DESC, name
		 LIMIT $3`,
		kind, pattern, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectCatalogItems(rows)
}

// CreatePlaceholder создает неподтвержденную заглушку справочника для
// несопоставленного названия. Повторный вызов с тем же нормализованным
// названием возвращает уже существующую запись.
func (r *CatalogRepository) CreatePlaceholder(ctx context.Context, kind models.CatalogKind, name, normalizedName string) (models.CatalogItem, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(normalizedName) == "" {
		return models.CatalogItem{}, ErrInvalid
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO catalog_items (id, kind, name, normalized_name, is_approved, auto_created)
		 VALUES ($1, $2, $3, $4, FALSE, TRUE)
		 ON CONFLICT (kind, normalized_name) DO NOTHING
		 RETURNING `+catalogColumns,
		uuid.New(), kind, name, normalizedName,
	)

	item, err := scanCatalogItem(row)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.CatalogItem{}, err
	}

	// Конфликт: запись с таким нормализованным названием уже есть.
	row = r.db.QueryRow(ctx,
		`SELECT `+catalogColumns+`
		 FROM catalog_items
		 WHERE kind = $1 AND normalized_name = $2`,
		kind, normalizedName,
	)

	item, err = scanCatalogItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.CatalogItem{}, ErrNotFound
		}
		return models.CatalogItem{}, err
	}

	return item, nil
}

// ListPending возвращает автосозданные и еще не подтвержденные заглушки.
func (r *CatalogRepository) ListPending(ctx context.Context, limit, offset int) ([]models.CatalogItem, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+catalogColumns+`
		 FROM catalog_items
		 WHERE auto_created = TRUE AND is_approved = FALSE
		 ORDER BY created_at DESC
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectCatalogItems(rows)
}

// Approve подтверждает заглушку, опционально переименовывая её.
func (r *CatalogRepository) Approve(ctx context.Context, id uuid.UUID, name, normalizedName *string) (models.CatalogItem, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE catalog_items
		 SET is_approved = TRUE,
		     name = COALESCE($2, name),
		     normalized_name = COALESCE($3, normalized_name),
		     updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+catalogColumns,
		id, name, normalizedName,
	)

	item, err := scanCatalogItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.CatalogItem{}, ErrNotFound
		}
		return models.CatalogItem{}, err
	}

	return item, nil
}

func scanCatalogItem(row pgx.Row) (models.CatalogItem, error) {
	var item models.CatalogItem
	err := row.Scan(&item.ID, &item.Kind, &item.Name, &item.NormalizedName, &item.Aliases,
		&item.CaloriesPer100, &item.ProteinPer100, &item.CarbsPer100, &item.FatPer100,
		&item.MuscleGroup, &item.Equipment, &item.IsApproved, &item.AutoCreated,
		&item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func collectCatalogItems(rows pgx.Rows) ([]models.CatalogItem, error) {
	items := make([]models.CatalogItem, 0)
	for rows.Next() {
		item, err := scanCatalogItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}
