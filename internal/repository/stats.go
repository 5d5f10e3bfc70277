package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/ai-plan-importer/backend/internal/models"
)

type StatsRepository struct {
	db *pgxpool.Pool
}

type OverviewStats struct {
	TotalPlans       int
	NutritionPlans   int
	WorkoutPlans     int
	ImportsTotal     int
	ImportsCompleted int
	ImportsFailed    int
	EntitiesCreated  int
	CreditsSpent     int64
}

type ImportActivity struct {
	Day         time.Time
	Jobs        int
	CreditsUsed int64
}

type PlanDayTotals struct {
	DayID      uuid.UUID
	WeekNumber int
	DayNumber  int
	Title      string
	Totals     models.PlanTotals
}

// NewStatsRepository создает репозиторий статистики.
func NewStatsRepository(db *pgxpool.Pool) *StatsRepository {
	return &StatsRepository{db: db}
}

// Overview возвращает сводную статистику по планам и импортам пользователя.
func (r *StatsRepository) Overview(ctx context.Context, userID uuid.UUID) (OverviewStats, error) {
	var stats OverviewStats

	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) AS total_plans,
		        COUNT(*) FILTER (WHERE plan_type = 'nutrition') AS nutrition_plans,
		        COUNT(*) FILTER (WHERE plan_type = 'workout') AS workout_plans
		 FROM plans
		 WHERE user_id = $1`,
		userID,
	).Scan(&stats.TotalPlans, &stats.NutritionPlans, &stats.WorkoutPlans)
	if err != nil {
		return stats, err
	}

	err = r.db.QueryRow(ctx,
		`SELECT COUNT(*) AS imports_total,
		        COUNT(*) FILTER (WHERE status = 'completed') AS imports_completed,
		        COUNT(*) FILTER (WHERE status = 'error') AS imports_failed,
		        COALESCE(SUM(entities_created), 0) AS entities_created
		 FROM import_jobs
		 WHERE user_id = $1`,
		userID,
	).Scan(&stats.ImportsTotal, &stats.ImportsCompleted, &stats.ImportsFailed, &stats.EntitiesCreated)
	if err != nil {
		return stats, err
	}

	err = r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(-delta), 0)
		 FROM credit_ledger
		 WHERE user_id = $1 AND delta < 0`,
		userID,
	).Scan(&stats.CreditsSpent)
	if err != nil {
		return stats, err
	}

	return stats, nil
}

// ImportActivity возвращает активность импорта по дням за период.
func (r *StatsRepository) ImportActivity(ctx context.Context, userID uuid.UUID, days int) ([]ImportActivity, error) {
	if days <= 0 {
		return nil, ErrInvalid
	}

	rows, err := r.db.Query(ctx,
		`SELECT date_trunc('day', created_at)::date AS day,
		        COUNT(*) AS jobs,
		        COALESCE(SUM(credits_used), 0) AS credits_used
		 FROM import_jobs
		 WHERE user_id = $1 AND created_at >= CURRENT_DATE - $2::int
		 GROUP BY day
		 ORDER BY day DESC`,
		userID, days,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]ImportActivity, 0)
	for rows.Next() {
		var row ImportActivity
		err := rows.Scan(&row.Day, &row.Jobs, &row.CreditsUsed)
		if err != nil {
			return nil, err
		}
		items = append(items, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

// PlanDayTotals возвращает дневные агрегаты плана для графиков.
func (r *StatsRepository) PlanDayTotals(ctx context.Context, userID, planID uuid.UUID) ([]PlanDayTotals, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM plans WHERE id = $1 AND user_id = $2
		 )`,
		planID, userID,
	).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}

	rows, err := r.db.Query(ctx,
		`SELECT d.id, w.week_number, d.day_number, d.title,
		        d.calories_kcal, d.protein_g, d.carbs_g, d.fat_g, d.volume_kg, d.sets_count
		 FROM plan_days d
		 JOIN plan_weeks w ON w.id = d.week_id
		 WHERE w.plan_id = $1
		 ORDER BY w.sort_order, d.sort_order`,
		planID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]PlanDayTotals, 0)
	for rows.Next() {
		var row PlanDayTotals
		err := rows.Scan(&row.DayID, &row.WeekNumber, &row.DayNumber, &row.Title,
			&row.Totals.CaloriesKcal, &row.Totals.ProteinG, &row.Totals.CarbsG, &row.Totals.FatG, &row.Totals.VolumeKg, &row.Totals.SetsCount)
		if err != nil {
			return nil, err
		}
		items = append(items, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}
