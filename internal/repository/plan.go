package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/ai-plan-importer/backend/internal/models"
)

type PlanRepository struct {
	db *pgxpool.Pool
}

type PlanSummary struct {
	Plan      models.Plan
	WeekCount int64
	ItemCount int64
}

// NewPlanRepository создает репозиторий планов питания и тренировок.
func NewPlanRepository(db *pgxpool.Pool) *PlanRepository {
	return &PlanRepository{db: db}
}

// CreateWithTree атомарно сохраняет план вместе со всеми неделями, днями,
// приемами и позициями. Идентификаторы узлов уже присвоены конвертером.
func (r *PlanRepository) CreateWithTree(ctx context.Context, tree models.PlanTree) (models.Plan, error) {
	var plan models.Plan

	if strings.TrimSpace(tree.Plan.Title) == "" {
		return plan, ErrInvalid
	}

	if len(tree.Weeks) == 0 {
		return plan, ErrInvalid
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return plan, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	err = tx.QueryRow(ctx,
		`INSERT INTO plans (id, user_id, plan_type, title, locale, import_job_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, user_id, plan_type, title, locale, import_job_id, created_at, updated_at`,
		tree.Plan.ID, tree.Plan.UserID, tree.Plan.PlanType, tree.Plan.Title, tree.Plan.Locale, tree.Plan.ImportJobID,
	).Scan(&plan.ID, &plan.UserID, &plan.PlanType, &plan.Title, &plan.Locale, &plan.ImportJobID, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		return plan, err
	}

	for _, week := range tree.Weeks {
		_, err = tx.Exec(ctx,
			`INSERT INTO plan_weeks (id, plan_id, week_number, sort_order)
			 VALUES ($1, $2, $3, $4)`,
			week.Week.ID, plan.ID, week.Week.WeekNumber, week.Week.SortOrder,
		)
		if err != nil {
			return plan, err
		}

		for _, day := range week.Days {
			totals := day.Day.Totals
			_, err = tx.Exec(ctx,
				`INSERT INTO plan_days (id, week_id, day_number, title, notes, calories_kcal, protein_g, carbs_g, fat_g, volume_kg, sets_count, sort_order)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
				day.Day.ID, week.Week.ID, day.Day.DayNumber, day.Day.Title, day.Day.Notes,
				totals.CaloriesKcal, totals.ProteinG, totals.CarbsG, totals.FatG, totals.VolumeKg, totals.SetsCount,
				day.Day.SortOrder,
			)
			if err != nil {
				return plan, err
			}

			for _, entry := range day.Entries {
				entryTotals := entry.Entry.Totals
				_, err = tx.Exec(ctx,
					`INSERT INTO plan_entries (id, day_id, title, time_hint, calories_kcal, protein_g, carbs_g, fat_g, volume_kg, sets_count, sort_order)
					 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
					entry.Entry.ID, day.Day.ID, entry.Entry.Title, entry.Entry.TimeHint,
					entryTotals.CaloriesKcal, entryTotals.ProteinG, entryTotals.CarbsG, entryTotals.FatG, entryTotals.VolumeKg, entryTotals.SetsCount,
					entry.Entry.SortOrder,
				)
				if err != nil {
					return plan, err
				}

				for _, item := range entry.Items {
					if strings.TrimSpace(item.SourceName) == "" || item.CatalogItemID == uuid.Nil {
						return plan, ErrInvalid
					}

					_, err = tx.Exec(ctx,
						`INSERT INTO plan_items (id, entry_id, catalog_item_id, source_name, quantity, unit, calories_kcal, protein_g, carbs_g, fat_g, sets, reps, weight_kg, rest_seconds, sort_order)
						 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
						item.ID, entry.Entry.ID, item.CatalogItemID, item.SourceName, item.Quantity, item.Unit,
						item.CaloriesKcal, item.ProteinG, item.CarbsG, item.FatG,
						item.Sets, item.Reps, item.WeightKg, item.RestSeconds, item.SortOrder,
					)
					if err != nil {
						return plan, err
					}
				}
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return plan, err
	}

	return plan, nil
}

// GetByID возвращает план пользователя по идентификатору.
func (r *PlanRepository) GetByID(ctx context.Context, userID, planID uuid.UUID) (models.Plan, error) {
	var plan models.Plan

	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, plan_type, title, locale, import_job_id, created_at, updated_at
		 FROM plans
		 WHERE id = $1 AND user_id = $2`,
		planID, userID,
	).Scan(&plan.ID, &plan.UserID, &plan.PlanType, &plan.Title, &plan.Locale, &plan.ImportJobID, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return plan, ErrNotFound
		}
		return plan, err
	}

	return plan, nil
}

// ListByUser возвращает список планов пользователя со счетчиками.
func (r *PlanRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]PlanSummary, error) {
	rows, err := r.db.Query(ctx,
		`SELECT p.id, p.user_id, p.plan_type, p.title, p.locale, p.import_job_id, p.created_at, p.updated_at,
		        COUNT(DISTINCT w.id) AS week_count,
		        COUNT(i.id) AS item_count
		 FROM plans p
		 LEFT JOIN plan_weeks w ON w.plan_id = p.id
		 LEFT JOIN plan_days d ON d.week_id = w.id
		 LEFT JOIN plan_entries e ON e.day_id = d.id
		 LEFT JOIN plan_items i ON i.entry_id = e.id
		 WHERE p.user_id = $1
		 GROUP BY p.id, p.user_id, p.plan_type, p.title, p.locale, p.import_job_id, p.created_at, p.updated_at
		 ORDER BY p.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plans := make([]PlanSummary, 0)
	for rows.Next() {
		var summary PlanSummary

		err := rows.Scan(&summary.Plan.ID, &summary.Plan.UserID, &summary.Plan.PlanType, &summary.Plan.Title, &summary.Plan.Locale, &summary.Plan.ImportJobID, &summary.Plan.CreatedAt, &summary.Plan.UpdatedAt, &summary.WeekCount, &summary.ItemCount)
		if err != nil {
			return nil, err
		}

		plans = append(plans, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return plans, nil
}

// Delete удаляет план пользователя.
func (r *PlanRepository) Delete(ctx context.Context, userID, planID uuid.UUID) error {
	cmd, err := r.db.Exec(ctx,
		`DELETE FROM plans
		 WHERE id = $1 AND user_id = $2`,
		planID, userID,
	)
	if err != nil {
		return err
	}

	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// ListWeeks возвращает недели плана.
func (r *PlanRepository) ListWeeks(ctx context.Context, planID uuid.UUID) ([]models.PlanWeek, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, plan_id, week_number, sort_order, created_at
		 FROM plan_weeks
		 WHERE plan_id = $1
		 ORDER BY sort_order, created_at`,
		planID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	weeks := make([]models.PlanWeek, 0)
	for rows.Next() {
		var week models.PlanWeek

		err := rows.Scan(&week.ID, &week.PlanID, &week.WeekNumber, &week.SortOrder, &week.CreatedAt)
		if err != nil {
			return nil, err
		}

		weeks = append(weeks, week)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return weeks, nil
}

// ListDaysByWeekIDs возвращает дни по списку недель.
func (r *PlanRepository) ListDaysByWeekIDs(ctx context.Context, weekIDs []uuid.UUID) ([]models.PlanDay, error) {
	if len(weekIDs) == 0 {
		return []models.PlanDay{}, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, week_id, day_number, title, notes, calories_kcal, protein_g, carbs_g, fat_g, volume_kg, sets_count, sort_order, created_at
		 FROM plan_days
		 WHERE week_id = ANY($1)
		 ORDER BY sort_order, created_at`,
		weekIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	days := make([]models.PlanDay, 0)
	for rows.Next() {
		var day models.PlanDay

		err := rows.Scan(&day.ID, &day.WeekID, &day.DayNumber, &day.Title, &day.Notes,
			&day.Totals.CaloriesKcal, &day.Totals.ProteinG, &day.Totals.CarbsG, &day.Totals.FatG, &day.Totals.VolumeKg, &day.Totals.SetsCount,
			&day.SortOrder, &day.CreatedAt)
		if err != nil {
			return nil, err
		}

		days = append(days, day)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return days, nil
}

// ListEntriesByDayIDs возвращает приемы пищи или тренировки по списку дней.
func (r *PlanRepository) ListEntriesByDayIDs(ctx context.Context, dayIDs []uuid.UUID) ([]models.PlanEntry, error) {
	if len(dayIDs) == 0 {
		return []models.PlanEntry{}, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, day_id, title, time_hint, calories_kcal, protein_g, carbs_g, fat_g, volume_kg, sets_count, sort_order, created_at
		 FROM plan_entries
		 WHERE day_id = ANY($1)
		 ORDER BY sort_order, created_at`,
		dayIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]models.PlanEntry, 0)
	for rows.Next() {
		var entry models.PlanEntry

		err := rows.Scan(&entry.ID, &entry.DayID, &entry.Title, &entry.TimeHint,
			&entry.Totals.CaloriesKcal, &entry.Totals.ProteinG, &entry.Totals.CarbsG, &entry.Totals.FatG, &entry.Totals.VolumeKg, &entry.Totals.SetsCount,
			&entry.SortOrder, &entry.CreatedAt)
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

// ListItemsByEntryIDs возвращает позиции по списку приемов.
func (r *PlanRepository) ListItemsByEntryIDs(ctx context.Context, entryIDs []uuid.UUID) ([]models.PlanItem, error) {
	if len(entryIDs) == 0 {
		return []models.PlanItem{}, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, entry_id, catalog_item_id, source_name, quantity, unit, calories_kcal, protein_g, carbs_g, fat_g, sets, reps, weight_kg, rest_seconds, sort_order, created_at
		 FROM plan_items
		 WHERE entry_id = ANY($1)
		 ORDER BY sort_order, created_at`,
		entryIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]models.PlanItem, 0)
	for rows.Next() {
		var item models.PlanItem

		err := rows.Scan(&item.ID, &item.EntryID, &item.CatalogItemID, &item.SourceName, &item.Quantity, &item.Unit,
			&item.CaloriesKcal, &item.ProteinG, &item.CarbsG, &item.FatG,
			&item.Sets, &item.Reps, &item.WeightKg, &item.RestSeconds, &item.SortOrder, &item.CreatedAt)
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

// Duplicate создает полную копию плана со свежими идентификаторами всех узлов.
func (r *PlanRepository) Duplicate(ctx context.Context, userID, planID uuid.UUID) (models.Plan, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return models.Plan{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var original models.Plan
	err = tx.QueryRow(ctx,
		`SELECT id, user_id, plan_type, title, locale
		 FROM plans
		 WHERE id = $1 AND user_id = $2`,
		planID, userID,
	).Scan(&original.ID, &original.UserID, &original.PlanType, &original.Title, &original.Locale)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Plan{}, ErrNotFound
		}
		return models.Plan{}, err
	}

	newTitle := buildCopyTitle(original.Title, 200)

	var newPlan models.Plan
	err = tx.QueryRow(ctx,
		`INSERT INTO plans (id, user_id, plan_type, title, locale)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, user_id, plan_type, title, locale, import_job_id, created_at, updated_at`,
		uuid.New(), userID, original.PlanType, newTitle, original.Locale,
	).Scan(&newPlan.ID, &newPlan.UserID, &newPlan.PlanType, &newPlan.Title, &newPlan.Locale, &newPlan.ImportJobID, &newPlan.CreatedAt, &newPlan.UpdatedAt)
	if err != nil {
		return models.Plan{}, err
	}

	weekMap, err := r.copyWeeks(ctx, tx, planID, newPlan.ID)
	if err != nil {
		return models.Plan{}, err
	}

	dayMap, err := r.copyDays(ctx, tx, weekMap)
	if err != nil {
		return models.Plan{}, err
	}

	entryMap, err := r.copyEntries(ctx, tx, dayMap)
	if err != nil {
		return models.Plan{}, err
	}

	if err := r.copyItems(ctx, tx, entryMap); err != nil {
		return models.Plan{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Plan{}, err
	}

	return newPlan, nil
}

func (r *PlanRepository) copyWeeks(ctx context.Context, tx pgx.Tx, oldPlanID, newPlanID uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	rows, err := tx.Query(ctx,
		`SELECT id, week_number, sort_order
		 FROM plan_weeks
		 WHERE plan_id = $1
		 ORDER BY sort_order, created_at`,
		oldPlanID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type weekRow struct {
		oldID      uuid.UUID
		weekNumber int
		sortOrder  int
	}

	collected := make([]weekRow, 0)
	for rows.Next() {
		var row weekRow
		if err := rows.Scan(&row.oldID, &row.weekNumber, &row.sortOrder); err != nil {
			return nil, err
		}
		collected = append(collected, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	idMap := make(map[uuid.UUID]uuid.UUID, len(collected))
	for _, row := range collected {
		newID := uuid.New()
		idMap[row.oldID] = newID

		_, err := tx.Exec(ctx,
			`INSERT INTO plan_weeks (id, plan_id, week_number, sort_order)
			 VALUES ($1, $2, $3, $4)`,
			newID, newPlanID, row.weekNumber, row.sortOrder,
		)
		if err != nil {
			return nil, err
		}
	}

	return idMap, nil
}

func (r *PlanRepository) copyDays(ctx context.Context, tx pgx.Tx, weekMap map[uuid.UUID]uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	oldIDs := keysOf(weekMap)
	if len(oldIDs) == 0 {
		return map[uuid.UUID]uuid.UUID{}, nil
	}

	rows, err := tx.Query(ctx,
		`SELECT id, week_id, day_number, title, notes, calories_kcal, protein_g, carbs_g, fat_g, volume_kg, sets_count, sort_order
		 FROM plan_days
		 WHERE week_id = ANY($1)
		 ORDER BY sort_order, created_at`,
		oldIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	collected := make([]models.PlanDay, 0)
	for rows.Next() {
		var day models.PlanDay
		err := rows.Scan(&day.ID, &day.WeekID, &day.DayNumber, &day.Title, &day.Notes,
			&day.Totals.CaloriesKcal, &day.Totals.ProteinG, &day.Totals.CarbsG, &day.Totals.FatG, &day.Totals.VolumeKg, &day.Totals.SetsCount,
			&day.SortOrder)
		if err != nil {
			return nil, err
		}
		collected = append(collected, day)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	idMap := make(map[uuid.UUID]uuid.UUID, len(collected))
	for _, day := range collected {
		newWeekID, ok := weekMap[day.WeekID]
		if !ok {
			return nil, fmt.Errorf("missing week mapping")
		}

		newID := uuid.New()
		idMap[day.ID] = newID

		_, err := tx.Exec(ctx,
			`INSERT INTO plan_days (id, week_id, day_number, title, notes, calories_kcal, protein_g, carbs_g, fat_g, volume_kg, sets_count, sort_order)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			newID, newWeekID, day.DayNumber, day.Title, day.Notes,
			day.Totals.CaloriesKcal, day.Totals.ProteinG, day.Totals.CarbsG, day.Totals.FatG, day.Totals.VolumeKg, day.Totals.SetsCount,
			day.SortOrder,
		)
		if err != nil {
			return nil, err
		}
	}

	return idMap, nil
}

func (r *PlanRepository) copyEntries(ctx context.Context, tx pgx.Tx, dayMap map[uuid.UUID]uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	oldIDs := keysOf(dayMap)
	if len(oldIDs) == 0 {
		return map[uuid.UUID]uuid.UUID{}, nil
	}

	rows, err := tx.Query(ctx,
		`SELECT id, day_id, title, time_hint, calories_kcal, protein_g, carbs_g, fat_g, volume_kg, sets_count, sort_order
		 FROM plan_entries
		 WHERE day_id = ANY($1)
		 ORDER BY sort_order, created_at`,
		oldIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	collected := make([]models.PlanEntry, 0)
	for rows.Next() {
		var entry models.PlanEntry
		err := rows.Scan(&entry.ID, &entry.DayID, &entry.Title, &entry.TimeHint,
			&entry.Totals.CaloriesKcal, &entry.Totals.ProteinG, &entry.Totals.CarbsG, &entry.Totals.FatG, &entry.Totals.VolumeKg, &entry.Totals.SetsCount,
			&entry.SortOrder)
		if err != nil {
			return nil, err
		}
		collected = append(collected, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	idMap := make(map[uuid.UUID]uuid.UUID, len(collected))
	for _, entry := range collected {
		newDayID, ok := dayMap[entry.DayID]
		if !ok {
			return nil, fmt.Errorf("missing day mapping")
		}

		newID := uuid.New()
		idMap[entry.ID] = newID

		_, err := tx.Exec(ctx,
			`INSERT INTO plan_entries (id, day_id, title, time_hint, calories_kcal, protein_g, carbs_g, fat_g, volume_kg, sets_count, sort_order)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			newID, newDayID, entry.Title, entry.TimeHint,
			entry.Totals.CaloriesKcal, entry.Totals.ProteinG, entry.Totals.CarbsG, entry.Totals.FatG, entry.Totals.VolumeKg, entry.Totals.SetsCount,
			entry.SortOrder,
		)
		if err != nil {
			return nil, err
		}
	}

	return idMap, nil
}

func (r *PlanRepository) copyItems(ctx context.Context, tx pgx.Tx, entryMap map[uuid.UUID]uuid.UUID) error {
	oldIDs := keysOf(entryMap)
	if len(oldIDs) == 0 {
		return nil
	}

	rows, err := tx.Query(ctx,
		`SELECT id, entry_id, catalog_item_id, source_name, quantity, unit, calories_kcal, protein_g, carbs_g, fat_g, sets, reps, weight_kg, rest_seconds, sort_order
		 FROM plan_items
		 WHERE entry_id = ANY($1)
		 ORDER BY sort_order, created_at`,
		oldIDs,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	collected := make([]models.PlanItem, 0)
	for rows.Next() {
		var item models.PlanItem
		err := rows.Scan(&item.ID, &item.EntryID, &item.CatalogItemID, &item.SourceName, &item.Quantity, &item.Unit,
			&item.CaloriesKcal, &item.ProteinG, &item.CarbsG, &item.FatG,
			&item.Sets, &item.Reps, &item.WeightKg, &item.RestSeconds, &item.SortOrder)
		if err != nil {
			return err
		}
		collected = append(collected, item)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, item := range collected {
		newEntryID, ok := entryMap[item.EntryID]
		if !ok {
			return fmt.Errorf("missing entry mapping")
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO plan_items (id, entry_id, catalog_item_id, source_name, quantity, unit, calories_kcal, protein_g, carbs_g, fat_g, sets, reps, weight_kg, rest_seconds, sort_order)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			uuid.New(), newEntryID, item.CatalogItemID, item.SourceName, item.Quantity, item.Unit,
			item.CaloriesKcal, item.ProteinG, item.CarbsG, item.FatG,
			item.Sets, item.Reps, item.WeightKg, item.RestSeconds, item.SortOrder,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

func keysOf(m map[uuid.UUID]uuid.UUID) []uuid.UUID {
	keys := make([]uuid.UUID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func buildCopyTitle(title string, maxRunes int) string {
	copyTitle := fmt.Sprintf("Copy of %s", title)
	if len([]rune(copyTitle)) <= maxRunes {
		return copyTitle
	}

	runes := []rune(copyTitle)
	return string(runes[:maxRunes])
}
