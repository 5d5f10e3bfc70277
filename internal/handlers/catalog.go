package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"example.com/ai-plan-importer/backend/internal/auth"
	"example.com/ai-plan-importer/backend/internal/matcher"
	"example.com/ai-plan-importer/backend/internal/models"
	"example.com/ai-plan-importer/backend/internal/repository"
)

type CatalogHandler struct {
	Catalog *repository.CatalogRepository
}

// NewCatalogHandler создает обработчик справочника продуктов и упражнений.
func NewCatalogHandler(catalog *repository.CatalogRepository) *CatalogHandler {
	return &CatalogHandler{Catalog: catalog}
}

type ApproveCatalogItemRequest struct {
	Name *string `json:"name" validate:"omitempty,max=200"`
}

type CatalogItemResponse struct {
	ID             uuid.UUID `json:"id"`
	Kind           string    `json:"kind"`
	Name           string    `json:"name"`
	Aliases        []string  `json:"aliases,omitempty"`
	CaloriesPer100 *float64  `json:"calories_per_100g,omitempty"`
	ProteinPer100  *float64  `json:"protein_per_100g,omitempty"`
	CarbsPer100    *float64  `json:"carbs_per_100g,omitempty"`
	FatPer100      *float64  `json:"fat_per_100g,omitempty"`
	MuscleGroup    *string   `json:"muscle_group,omitempty"`
	Equipment      *string   `json:"equipment,omitempty"`
	IsApproved     bool      `json:"is_approved"`
	AutoCreated    bool      `json:"auto_created"`
	CreatedAt      time.Time `json:"created_at"`
}

type CatalogItemsResponse struct {
	Items []CatalogItemResponse `json:"items"`
}

// Search ищет записи справочника по подстроке имени или алиаса.
func (h *CatalogHandler) Search(c echo.Context) error {
	if _, ok := auth.UserIDFromContext(c); !ok {
		return unauthorized(c)
	}

	kind, err := parseCatalogKind(c.QueryParam("kind"))
	if err != nil {
		return badRequest(c, "invalid catalog kind")
	}

	query := strings.TrimSpace(c.QueryParam("query"))
	if query == "" {
		return badRequest(c, "query is required")
	}

	limit := 0
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return badRequest(c, "invalid limit")
		}
	}

	items, err := h.Catalog.Search(c.Request().Context(), kind, query, limit)
	if err != nil {
		return serverError(c)
	}

	return c.JSON(http.StatusOK, toCatalogItemsResponse(items))
}

// Pending возвращает автосозданные записи, ожидающие модерации.
func (h *CatalogHandler) Pending(c echo.Context) error {
	if _, ok := auth.UserIDFromContext(c); !ok {
		return unauthorized(c)
	}

	limit, offset, err := parsePagination(c, 50, 200)
	if err != nil {
		return badRequest(c, err.Error())
	}

	items, err := h.Catalog.ListPending(c.Request().Context(), limit, offset)
	if err != nil {
		return serverError(c)
	}

	return c.JSON(http.StatusOK, toCatalogItemsResponse(items))
}

// Approve подтверждает запись справочника, опционально переименовывая ее.
func (h *CatalogHandler) Approve(c echo.Context) error {
	if _, ok := auth.UserIDFromContext(c); !ok {
		return unauthorized(c)
	}

	itemID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid catalog item id")
	}

	var req ApproveCatalogItemRequest
	if err = c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err = c.Validate(&req); err != nil {
		return badRequest(c, "validation failed")
	}

	var name, normalized *string
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		canonical := matcher.Normalize(trimmed)
		if canonical == "" {
			return badRequest(c, "name is required")
		}
		name = &trimmed
		normalized = &canonical
	}

	item, err := h.Catalog.Approve(c.Request().Context(), itemID, name, normalized)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c, "catalog item not found")
		}
		return serverError(c)
	}

	return c.JSON(http.StatusOK, toCatalogItemResponse(item))
}

func parseCatalogKind(raw string) (models.CatalogKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "food":
		return models.CatalogKindFood, nil
	case "exercise":
		return models.CatalogKindExercise, nil
	default:
		return "", errors.New("unknown catalog kind")
	}
}

func toCatalogItemResponse(item models.CatalogItem) CatalogItemResponse {
	return CatalogItemResponse{
		ID:             item.ID,
		Kind:           string(item.Kind),
		Name:           item.Name,
		Aliases:        item.Aliases,
		CaloriesPer100: item.CaloriesPer100,
		ProteinPer100:  item.ProteinPer100,
		CarbsPer100:    item.CarbsPer100,
		FatPer100:      item.FatPer100,
		MuscleGroup:    item.MuscleGroup,
		Equipment:      item.Equipment,
		IsApproved:     item.IsApproved,
		AutoCreated:    item.AutoCreated,
		CreatedAt:      item.CreatedAt,
	}
}

func toCatalogItemsResponse(items []models.CatalogItem) CatalogItemsResponse {
	responses := make([]CatalogItemResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, toCatalogItemResponse(item))
	}
	return CatalogItemsResponse{Items: responses}
}
