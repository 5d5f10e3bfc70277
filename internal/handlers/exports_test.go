package handlers

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/google/uuid"

	"example.com/ai-plan-importer/backend/internal/models"
)

// TestWriteItemsCSV проверяет плоскую выгрузку позиций плана.
func TestWriteItemsCSV(t *testing.T) {
	planID := uuid.New()
	itemID := uuid.New()
	catalogID := uuid.New()

	response := PlanTreeResponse{
		Plan: PlanResponse{ID: planID, PlanType: models.PlanTypeNutrition, Title: "Meal Plan"},
		Weeks: []WeekResponse{
			{
				WeekNumber: 1,
				Days: []DayResponse{
					{
						DayNumber: 1,
						Title:     "Monday",
						Entries: []EntryResponse{
							{
								Title: "Breakfast",
								Items: []PlanItemResponse{
									{
										ID:            itemID,
										CatalogItemID: catalogID,
										SourceName:    "Oatmeal",
										Quantity:      62.5,
										Unit:          "g",
										CaloriesKcal:  230,
									},
								},
							},
						},
					},
				},
			},
		},
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writeItemsCSV(writer, response); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("expected header and one record, got %d rows", len(records))
	}

	if records[0][0] != "plan_id" || records[0][3] != "week_number" {
		t.Fatalf("unexpected header: %v", records[0])
	}

	record := records[1]
	if record[0] != planID.String() {
		t.Fatalf("unexpected plan id: %s", record[0])
	}
	if record[2] != "nutrition" {
		t.Fatalf("unexpected plan type: %s", record[2])
	}
	if record[5] != "Monday" || record[6] != "Breakfast" {
		t.Fatalf("unexpected day or entry title: %v", record)
	}
	if record[9] != "Oatmeal" {
		t.Fatalf("unexpected source name: %s", record[9])
	}
	if record[10] != "62.5" {
		t.Fatalf("unexpected quantity: %s", record[10])
	}
	if record[12] != "230" {
		t.Fatalf("unexpected calories: %s", record[12])
	}
}

// TestWriteItemsCSVEmptyPlan проверяет выгрузку плана без позиций.
func TestWriteItemsCSVEmptyPlan(t *testing.T) {
	response := PlanTreeResponse{
		Plan: PlanResponse{ID: uuid.New(), PlanType: models.PlanTypeWorkout, Title: "Empty"},
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writeItemsCSV(writer, response); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	writer.Flush()

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("expected header only, got %d rows", len(records))
	}
}

// TestFormatFloat проверяет форматирование чисел без хвостовых нулей.
func TestFormatFloat(t *testing.T) {
	if got := formatFloat(62.5); got != "62.5" {
		t.Fatalf("expected 62.5, got %s", got)
	}
	if got := formatFloat(150); got != "150" {
		t.Fatalf("expected 150, got %s", got)
	}
	if got := formatFloat(0); got != "0" {
		t.Fatalf("expected 0, got %s", got)
	}
}
