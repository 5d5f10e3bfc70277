package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"example.com/ai-plan-importer/backend/internal/auth"
	"example.com/ai-plan-importer/backend/internal/models"
	"example.com/ai-plan-importer/backend/internal/repository"
)

type CreditHandler struct {
	Credits *repository.CreditRepository
}

// NewCreditHandler создает обработчик кредитного счета.
func NewCreditHandler(credits *repository.CreditRepository) *CreditHandler {
	return &CreditHandler{Credits: credits}
}

type CreditBalanceResponse struct {
	Balance int64 `json:"balance"`
}

type CreditEntryResponse struct {
	ID           uuid.UUID  `json:"id"`
	Delta        int64      `json:"delta"`
	BalanceAfter int64      `json:"balance_after"`
	Reason       string     `json:"reason"`
	ImportJobID  *uuid.UUID `json:"import_job_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type CreditHistoryResponse struct {
	Entries []CreditEntryResponse `json:"entries"`
}

// Balance возвращает текущий остаток кредитов пользователя.
func (h *CreditHandler) Balance(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	balance, err := h.Credits.Balance(c.Request().Context(), userID)
	if err != nil {
		return serverError(c)
	}

	return c.JSON(http.StatusOK, CreditBalanceResponse{Balance: balance})
}

// History возвращает журнал списаний и начислений от новых к старым.
func (h *CreditHandler) History(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	limit, offset, err := parsePagination(c, 50, 200)
	if err != nil {
		return badRequest(c, err.Error())
	}

	entries, err := h.Credits.History(c.Request().Context(), userID, limit, offset)
	if err != nil {
		return serverError(c)
	}

	return c.JSON(http.StatusOK, toCreditHistoryResponse(entries))
}

func toCreditHistoryResponse(entries []models.CreditEntry) CreditHistoryResponse {
	responses := make([]CreditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, CreditEntryResponse{
			ID:           entry.ID,
			Delta:        entry.Delta,
			BalanceAfter: entry.BalanceAfter,
			Reason:       entry.Reason,
			ImportJobID:  entry.ImportJobID,
			CreatedAt:    entry.CreatedAt,
		})
	}
	return CreditHistoryResponse{Entries: responses}
}
