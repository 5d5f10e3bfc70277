package ai

import (
	"context"
	"errors"
	"testing"

	"example.com/ai-plan-importer/backend/internal/models"
)

type stubClient struct {
	content  string
	err      error
	messages []Message
}

func (s *stubClient) Chat(ctx context.Context, messages []Message) (string, []byte, error) {
	s.messages = messages
	return s.content, []byte(s.content), s.err
}

func extractionRequest(planType models.PlanType) ExtractionRequest {
	return ExtractionRequest{
		FileName: "plan.pdf",
		MIME:     "application/pdf",
		Content:  []byte("%PDF-1.4"),
		Category: "pdf",
		PlanType: planType,
	}
}

// TestExtractPlanNutrition проверяет извлечение плана питания.
func TestExtractPlanNutrition(t *testing.T) {
	client := &stubClient{content: `{
		"plan": {
			"title": "Cut Week",
			"weeks": [
				{
					"week_number": 1,
					"days": [
						{
							"day_number": 1,
							"title": "Monday",
							"meals": [
								{
									"title": "Breakfast",
									"time_hint": "08:00",
									"foods": [
										{"name": "Oatmeal", "quantity": 60, "unit": "g", "calories_kcal": 220, "protein_g": 8, "carbs_g": 40, "fat_g": 4},
										{"name": "Egg", "quantity": 2, "unit": "piece", "calories_kcal": 150, "protein_g": 12, "carbs_g": 1, "fat_g": 10}
									]
								}
							]
						}
					]
				}
			]
		}
	}`}
	service := NewService(client)

	draft, prompt, _, err := service.ExtractPlan(context.Background(), extractionRequest(models.PlanTypeNutrition))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prompt == "" {
		t.Fatal("expected non-empty prompt")
	}

	if draft.Title != "Cut Week" {
		t.Fatalf("expected title Cut Week, got %s", draft.Title)
	}
	if draft.PlanType != models.PlanTypeNutrition {
		t.Fatalf("expected nutrition plan, got %s", draft.PlanType)
	}
	if len(draft.Weeks) != 1 || len(draft.Weeks[0].Days) != 1 {
		t.Fatalf("unexpected tree shape: %+v", draft.Weeks)
	}

	day := draft.Weeks[0].Days[0]
	if len(day.Entries) != 1 || len(day.Entries[0].Items) != 2 {
		t.Fatalf("unexpected day shape: %+v", day)
	}
	if day.Entries[0].TimeHint == nil || *day.Entries[0].TimeHint != "08:00" {
		t.Fatalf("expected time hint 08:00, got %v", day.Entries[0].TimeHint)
	}
	if day.Entries[0].Items[0].CaloriesKcal != 220 {
		t.Fatalf("expected 220 kcal, got %v", day.Entries[0].Items[0].CaloriesKcal)
	}

	if len(client.messages) != 2 {
		t.Fatalf("expected system and user messages, got %d", len(client.messages))
	}
	attachments := client.messages[1].Attachments
	if len(attachments) != 1 || attachments[0].MIME != "application/pdf" {
		t.Fatalf("expected pdf attachment, got %+v", attachments)
	}
}

// TestExtractPlanWorkout проверяет извлечение плана тренировок.
func TestExtractPlanWorkout(t *testing.T) {
	client := &stubClient{content: `{
		"plan": {
			"title": "Push Pull Legs",
			"weeks": [
				{
					"week_number": 1,
					"days": [
						{
							"day_number": 1,
							"title": "Push",
							"sessions": [
								{
									"title": "Morning",
									"exercises": [
										{"name": "Bench Press", "sets": 4, "reps": 8, "weight_kg": 80, "rest_seconds": 120}
									]
								}
							]
						}
					]
				}
			]
		}
	}`}
	service := NewService(client)

	draft, _, _, err := service.ExtractPlan(context.Background(), extractionRequest(models.PlanTypeWorkout))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if draft.PlanType != models.PlanTypeWorkout {
		t.Fatalf("expected workout plan, got %s", draft.PlanType)
	}
	item := draft.Weeks[0].Days[0].Entries[0].Items[0]
	if item.Name != "Bench Press" || item.Sets != 4 || item.Reps != 8 || item.WeightKg != 80 {
		t.Fatalf("unexpected exercise: %+v", item)
	}
}

// TestExtractPlanCodeFences проверяет снятие markdown-ограждений.
func TestExtractPlanCodeFences(t *testing.T) {
	client := &stubClient{content: "```json\n{\"plan\":{\"title\":\"Plan\",\"weeks\":[{\"week_number\":1,\"days\":[{\"day_number\":1,\"meals\":[{\"title\":\"Lunch\",\"foods\":[{\"name\":\"Rice\"}]}]}]}]}}\n```"}
	service := NewService(client)

	draft, _, _, err := service.ExtractPlan(context.Background(), extractionRequest(models.PlanTypeNutrition))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if draft.Weeks[0].Days[0].Entries[0].Items[0].Name != "Rice" {
		t.Fatalf("unexpected draft: %+v", draft)
	}
}

// TestExtractPlanProviderFailure проверяет классификацию ошибок транспорта.
func TestExtractPlanProviderFailure(t *testing.T) {
	client := &stubClient{err: errors.New("connection refused")}
	service := NewService(client)

	_, _, _, err := service.ExtractPlan(context.Background(), extractionRequest(models.PlanTypeNutrition))
	if !errors.Is(err, ErrProviderFailure) {
		t.Fatalf("expected provider failure, got %v", err)
	}
	if kind := FailureKind(err); kind != "provider_failure" {
		t.Fatalf("expected provider_failure kind, got %s", kind)
	}
}

// TestExtractPlanEmptyResponse проверяет пустой ответ провайдера.
func TestExtractPlanEmptyResponse(t *testing.T) {
	client := &stubClient{content: "   "}
	service := NewService(client)

	_, _, _, err := service.ExtractPlan(context.Background(), extractionRequest(models.PlanTypeNutrition))
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected empty response, got %v", err)
	}
}

// TestExtractPlanSchemaMismatch проверяет ответ без валидного JSON.
func TestExtractPlanSchemaMismatch(t *testing.T) {
	client := &stubClient{content: "sorry, I cannot read this document"}
	service := NewService(client)

	_, _, _, err := service.ExtractPlan(context.Background(), extractionRequest(models.PlanTypeNutrition))
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
	if kind := FailureKind(err); kind != "schema_mismatch" {
		t.Fatalf("expected schema_mismatch kind, got %s", kind)
	}
}

// TestExtractPlanNoItems проверяет план без единой позиции.
func TestExtractPlanNoItems(t *testing.T) {
	client := &stubClient{content: `{"plan":{"title":"Empty","weeks":[{"week_number":1,"days":[{"day_number":1,"meals":[{"title":"Lunch","foods":[]}]}]}]}}`}
	service := NewService(client)

	_, _, _, err := service.ExtractPlan(context.Background(), extractionRequest(models.PlanTypeNutrition))
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected empty response, got %v", err)
	}
}

// TestExtractPlanNegativeValues проверяет отбраковку отрицательных значений.
func TestExtractPlanNegativeValues(t *testing.T) {
	client := &stubClient{content: `{"plan":{"title":"Bad","weeks":[{"week_number":1,"days":[{"day_number":1,"meals":[{"title":"Lunch","foods":[{"name":"Rice","calories_kcal":-10}]}]}]}]}}`}
	service := NewService(client)

	_, _, _, err := service.ExtractPlan(context.Background(), extractionRequest(models.PlanTypeNutrition))
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

// TestNormalizeDraft проверяет заполнение номеров и отбраковку пустых имен.
func TestNormalizeDraft(t *testing.T) {
	draft := models.DraftPlan{
		PlanType: models.PlanTypeNutrition,
		Weeks: []models.DraftWeek{
			{
				Days: []models.DraftDay{
					{
						Entries: []models.DraftEntry{
							{
								Items: []models.DraftItem{
									{Name: "  Oatmeal  "},
									{Name: "   "},
								},
							},
						},
					},
				},
			},
		},
	}

	normalizeDraft(&draft)

	if draft.Weeks[0].WeekNumber != 1 {
		t.Fatalf("expected week number 1, got %d", draft.Weeks[0].WeekNumber)
	}
	if draft.Weeks[0].Days[0].DayNumber != 1 {
		t.Fatalf("expected day number 1, got %d", draft.Weeks[0].Days[0].DayNumber)
	}
	if draft.Weeks[0].Days[0].Title != "Day 1" {
		t.Fatalf("expected default day title, got %s", draft.Weeks[0].Days[0].Title)
	}
	if draft.Weeks[0].Days[0].Entries[0].Title != "Meal 1" {
		t.Fatalf("expected default meal title, got %s", draft.Weeks[0].Days[0].Entries[0].Title)
	}

	items := draft.Weeks[0].Days[0].Entries[0].Items
	if len(items) != 1 || items[0].Name != "Oatmeal" {
		t.Fatalf("expected single trimmed item, got %+v", items)
	}
}

// TestExtractJSON проверяет выделение JSON из произвольного текста.
func TestExtractJSON(t *testing.T) {
	if got := extractJSON("Here is the plan: {\"a\":1} done"); got != `{"a":1}` {
		t.Fatalf("unexpected payload: %s", got)
	}

	if got := extractJSON("```json\n{\"a\":1}\n```"); got != `{"a":1}` {
		t.Fatalf("unexpected fenced payload: %s", got)
	}

	if got := extractJSON("no json at all"); got != "" {
		t.Fatalf("expected empty payload, got %s", got)
	}
}
