package handlers

import (
	"bytes"
	"encoding/csv"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"example.com/ai-plan-importer/backend/internal/auth"
	"example.com/ai-plan-importer/backend/internal/repository"
)

const (
	exportFormatJSON = "json"
	exportFormatCSV  = "csv"
)

// Export выгружает план в файл. Формат задается параметром format:
// json отдает полное дерево, csv плоский список позиций.
func (h *PlanHandler) Export(c echo.Context) error {
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

	format := strings.ToLower(strings.TrimSpace(c.QueryParam("format")))
	if format == "" {
		format = exportFormatJSON
	}

	response, err := buildPlanTreeResponse(c.Request().Context(), h.Plans, plan)
	if err != nil {
		return serverError(c)
	}

	switch format {
	case exportFormatJSON:
		filename := "plan-" + plan.ID.String() + ".json"
		c.Response().Header().Set(echo.HeaderContentType, "application/json")
		c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename=\""+filename+"\"")
		return c.JSON(http.StatusOK, response)
	case exportFormatCSV:
		var buf bytes.Buffer
		writer := csv.NewWriter(&buf)
		if err := writeItemsCSV(writer, response); err != nil {
			return serverError(c)
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return serverError(c)
		}

		filename := "plan-" + plan.ID.String() + ".csv"
		c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename=\""+filename+"\"")
		return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
	default:
		return badRequest(c, "invalid export format")
	}
}

func writeItemsCSV(writer *csv.Writer, response PlanTreeResponse) error {
	header := []string{
		"plan_id",
		"plan_title",
		"plan_type",
		"week_number",
		"day_number",
		"day_title",
		"entry_title",
		"item_id",
		"catalog_item_id",
		"source_name",
		"quantity",
		"unit",
		"calories_kcal",
		"protein_g",
		"carbs_g",
		"fat_g",
		"sets",
		"reps",
		"weight_kg",
		"rest_seconds",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, week := range response.Weeks {
		for _, day := range week.Days {
			for _, entry := range day.Entries {
				for _, item := range entry.Items {
					record := []string{
						response.Plan.ID.String(),
						response.Plan.Title,
						string(response.Plan.PlanType),
						formatInt(week.WeekNumber),
						formatInt(day.DayNumber),
						day.Title,
						entry.Title,
						item.ID.String(),
						item.CatalogItemID.String(),
						item.SourceName,
						formatFloat(item.Quantity),
						item.Unit,
						formatFloat(item.CaloriesKcal),
						formatFloat(item.ProteinG),
						formatFloat(item.CarbsG),
						formatFloat(item.FatG),
						formatInt(item.Sets),
						formatInt(item.Reps),
						formatFloat(item.WeightKg),
						formatInt(item.RestSeconds),
					}
					if err := writer.Write(record); err != nil {
						return err
					}
				}
			}
		}
	}

	return nil
}

func formatInt(value int) string {
	return strconv.Itoa(value)
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
