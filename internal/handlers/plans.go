package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"example.com/ai-plan-importer/backend/internal/auth"
	"example.com/ai-plan-importer/backend/internal/models"
	"example.com/ai-plan-importer/backend/internal/repository"
)

type PlanHandler struct {
	Plans *repository.PlanRepository
}

// NewPlanHandler создает обработчик планов питания и тренировок.
func NewPlanHandler(plans *repository.PlanRepository) *PlanHandler {
	return &PlanHandler{Plans: plans}
}

type PlanResponse struct {
	ID          uuid.UUID       `json:"id"`
	PlanType    models.PlanType `json:"plan_type"`
	Title       string          `json:"title"`
	Locale      *string         `json:"locale,omitempty"`
	ImportJobID *uuid.UUID      `json:"import_job_id,omitempty"`
	WeekCount   int64           `json:"week_count"`
	ItemCount   int64           `json:"item_count"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type PlansResponse struct {
	Plans []PlanResponse `json:"plans"`
}

type WeekResponse struct {
	ID         uuid.UUID     `json:"id"`
	WeekNumber int           `json:"week_number"`
	SortOrder  int           `json:"sort_order"`
	Days       []DayResponse `json:"days"`
}

type DayResponse struct {
	ID        uuid.UUID         `json:"id"`
	DayNumber int               `json:"day_number"`
	Title     string            `json:"title"`
	Notes     *string           `json:"notes,omitempty"`
	Totals    models.PlanTotals `json:"totals"`
	SortOrder int               `json:"sort_order"`
	Entries   []EntryResponse   `json:"entries"`
}

type EntryResponse struct {
	ID        uuid.UUID          `json:"id"`
	Title     string             `json:"title"`
	TimeHint  *string            `json:"time_hint,omitempty"`
	Totals    models.PlanTotals  `json:"totals"`
	SortOrder int                `json:"sort_order"`
	Items     []PlanItemResponse `json:"items"`
}

type PlanItemResponse struct {
	ID            uuid.UUID `json:"id"`
	CatalogItemID uuid.UUID `json:"catalog_item_id"`
	SourceName    string    `json:"source_name"`
	Quantity      float64   `json:"quantity,omitempty"`
	Unit          string    `json:"unit,omitempty"`
	CaloriesKcal  float64   `json:"calories_kcal,omitempty"`
	ProteinG      float64   `json:"protein_g,omitempty"`
	CarbsG        float64   `json:"carbs_g,omitempty"`
	FatG          float64   `json:"fat_g,omitempty"`
	Sets          int       `json:"sets,omitempty"`
	Reps          int       `json:"reps,omitempty"`
	WeightKg      float64   `json:"weight_kg,omitempty"`
	RestSeconds   int       `json:"rest_seconds,omitempty"`
	SortOrder     int       `json:"sort_order"`
}

type PlanTreeResponse struct {
	Plan  PlanResponse   `json:"plan"`
	Weeks []WeekResponse `json:"weeks"`
}

// List возвращает список планов пользователя.
func (h *PlanHandler) List(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	plans, err := h.Plans.ListByUser(c.Request().Context(), userID)
	if err != nil {
		return serverError(c)
	}

	response := make([]PlanResponse, 0, len(plans))
	for _, plan := range plans {
		response = append(response, toPlanResponse(plan.Plan, plan.WeekCount, plan.ItemCount))
	}

	return c.JSON(http.StatusOK, PlansResponse{Plans: response})
}

// Get возвращает план с полным деревом недель, дней и позиций.
func (h *PlanHandler) Get(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	planID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid plan id")
	}

	plan, err := h.Plans.GetByID(c.Request().Context(), userID, planID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c, "plan not found")
		}
		return serverError(c)
	}

	response, err := buildPlanTreeResponse(c.Request().Context(), h.Plans, plan)
	if err != nil {
		return serverError(c)
	}

	return c.JSON(http.StatusOK, response)
}

// Delete удаляет план вместе с деревом.
func (h *PlanHandler) Delete(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	planID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid plan id")
	}

	if err := h.Plans.Delete(c.Request().Context(), userID, planID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c, "plan not found")
		}
		return serverError(c)
	}

	return c.NoContent(http.StatusNoContent)
}

// Duplicate создает копию плана со свежими идентификаторами.
func (h *PlanHandler) Duplicate(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	planID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid plan id")
	}

	plan, err := h.Plans.Duplicate(c.Request().Context(), userID, planID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c, "plan not found")
		}
		return serverError(c)
	}

	response, err := buildPlanTreeResponse(c.Request().Context(), h.Plans, plan)
	if err != nil {
		return serverError(c)
	}

	return c.JSON(http.StatusCreated, response)
}

func toPlanResponse(plan models.Plan, weekCount, itemCount int64) PlanResponse {
	return PlanResponse{
		ID:          plan.ID,
		PlanType:    plan.PlanType,
		Title:       plan.Title,
		Locale:      plan.Locale,
		ImportJobID: plan.ImportJobID,
		WeekCount:   weekCount,
		ItemCount:   itemCount,
		CreatedAt:   plan.CreatedAt,
		UpdatedAt:   plan.UpdatedAt,
	}
}
