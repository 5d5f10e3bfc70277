package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"example.com/ai-plan-importer/backend/internal/auth"
	"example.com/ai-plan-importer/backend/internal/models"
	"example.com/ai-plan-importer/backend/internal/repository"
)

type StatsHandler struct {
	Stats *repository.StatsRepository
}

// NewStatsHandler создает обработчик статистики.
func NewStatsHandler(stats *repository.StatsRepository) *StatsHandler {
	return &StatsHandler{Stats: stats}
}

type OverviewResponse struct {
	TotalPlans       int   `json:"total_plans"`
	NutritionPlans   int   `json:"nutrition_plans"`
	WorkoutPlans     int   `json:"workout_plans"`
	ImportsTotal     int   `json:"imports_total"`
	ImportsCompleted int   `json:"imports_completed"`
	ImportsFailed    int   `json:"imports_failed"`
	EntitiesCreated  int   `json:"entities_created"`
	CreditsSpent     int64 `json:"credits_spent"`
}

type ImportActivityResponse struct {
	Days []ImportActivityDay `json:"days"`
}

type ImportActivityDay struct {
	Date        string `json:"date"`
	Jobs        int    `json:"jobs"`
	CreditsUsed int64  `json:"credits_used"`
}

type PlanDayTotalsResponse struct {
	PlanID uuid.UUID          `json:"plan_id"`
	Days   []PlanDayTotalsDay `json:"days"`
}

type PlanDayTotalsDay struct {
	DayID      uuid.UUID         `json:"day_id"`
	WeekNumber int               `json:"week_number"`
	DayNumber  int               `json:"day_number"`
	Title      string            `json:"title,omitempty"`
	Totals     models.PlanTotals `json:"totals"`
}

// Overview возвращает сводную статистику по планам и импортам.
func (h *StatsHandler) Overview(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	stats, err := h.Stats.Overview(c.Request().Context(), userID)
	if err != nil {
		return serverError(c)
	}

	return c.JSON(http.StatusOK, OverviewResponse{
		TotalPlans:       stats.TotalPlans,
		NutritionPlans:   stats.NutritionPlans,
		WorkoutPlans:     stats.WorkoutPlans,
		ImportsTotal:     stats.ImportsTotal,
		ImportsCompleted: stats.ImportsCompleted,
		ImportsFailed:    stats.ImportsFailed,
		EntitiesCreated:  stats.EntitiesCreated,
		CreditsSpent:     stats.CreditsSpent,
	})
}

// ImportActivity возвращает активность импорта по дням.
func (h *StatsHandler) ImportActivity(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	days := 7
	if raw := c.QueryParam("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return badRequest(c, "invalid days")
		}
		if parsed > 90 {
			parsed = 90
		}
		days = parsed
	}

	items, err := h.Stats.ImportActivity(c.Request().Context(), userID, days)
	if err != nil {
		if errors.Is(err, repository.ErrInvalid) {
			return badRequest(c, "invalid days")
		}
		return serverError(c)
	}

	response := make([]ImportActivityDay, 0, len(items))
	for _, item := range items {
		response = append(response, ImportActivityDay{
			Date:        item.Day.Format("2006-01-02"),
			Jobs:        item.Jobs,
			CreditsUsed: item.CreditsUsed,
		})
	}

	return c.JSON(http.StatusOK, ImportActivityResponse{Days: response})
}

// DayTotals возвращает дневные агрегаты плана для графиков.
func (h *StatsHandler) DayTotals(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	planIDParam := c.QueryParam("plan_id")
	if planIDParam == "" {
		return badRequest(c, "plan_id is required")
	}

	planID, err := uuid.Parse(planIDParam)
	if err != nil {
		return badRequest(c, "invalid plan_id")
	}

	items, err := h.Stats.PlanDayTotals(c.Request().Context(), userID, planID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c, "plan not found")
		}
		return serverError(c)
	}

	days := make([]PlanDayTotalsDay, 0, len(items))
	for _, item := range items {
		days = append(days, PlanDayTotalsDay{
			DayID:      item.DayID,
			WeekNumber: item.WeekNumber,
			DayNumber:  item.DayNumber,
			Title:      item.Title,
			Totals:     item.Totals,
		})
	}

	return c.JSON(http.StatusOK, PlanDayTotalsResponse{
		PlanID: planID,
		Days:   days,
	})
}
