package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"example.com/ai-plan-importer/backend/internal/models"
)

const (
	maxDraftTitleLen = 200
	maxDraftWeeks    = 52
	maxDraftItems    = 500
)

// ExtractionRequest описывает один файл, подготовленный маршрутизатором
// к извлечению.
type ExtractionRequest struct {
	FileName string
	MIME     string
	Content  []byte
	Category string
	PlanType models.PlanType
	Locale   string
}

type Service struct {
	client Client
}

// NewService создает сервис извлечения планов из документов.
func NewService(client Client) *Service {
	return &Service{client: client}
}

// ExtractPlan запрашивает у провайдера структурированный план из вложенного
// файла и валидирует ответ. Ошибки классифицируются как ErrProviderFailure,
// ErrEmptyResponse или ErrSchemaMismatch; поля ответа не считаются
// достоверными, пока проверка схемы не пройдена.
func (s *Service) ExtractPlan(ctx context.Context, request ExtractionRequest) (models.DraftPlan, string, []byte, error) {
	prompt := buildExtractionPrompt(request)

	messages := []Message{
		{Role: "system", Content: "You are a data extraction assistant. Respond with JSON only, without extra text."},
		{
			Role:        "user",
			Content:     prompt,
			Attachments: []Attachment{{MIME: request.MIME, Data: request.Content}},
		},
	}

	content, raw, err := s.client.Chat(ctx, messages)
	if err != nil {
		return models.DraftPlan{}, prompt, raw, fmt.Errorf("%w: %s", ErrProviderFailure, err)
	}

	if strings.TrimSpace(content) == "" {
		return models.DraftPlan{}, prompt, raw, ErrEmptyResponse
	}

	draft, err := parseDraft(request.PlanType, content)
	if err != nil {
		return models.DraftPlan{}, prompt, raw, err
	}

	draft.PlanType = request.PlanType
	normalizeDraft(&draft)

	if err := validateDraft(draft); err != nil {
		return models.DraftPlan{}, prompt, raw, err
	}

	if locale := strings.TrimSpace(request.Locale); locale != "" && draft.Locale == nil {
		draft.Locale = &locale
	}

	return draft, prompt, raw, nil
}

func parseDraft(planType models.PlanType, content string) (models.DraftPlan, error) {
	payload := extractJSON(content)
	if payload == "" {
		return models.DraftPlan{}, fmt.Errorf("%w: response does not contain json", ErrSchemaMismatch)
	}

	if planType == models.PlanTypeWorkout {
		var response workoutPlanResponse
		if err := json.Unmarshal([]byte(payload), &response); err != nil {
			return models.DraftPlan{}, fmt.Errorf("%w: %s", ErrSchemaMismatch, err)
		}
		return response.toDraft(), nil
	}

	var response nutritionPlanResponse
	if err := json.Unmarshal([]byte(payload), &response); err != nil {
		return models.DraftPlan{}, fmt.Errorf("%w: %s", ErrSchemaMismatch, err)
	}
	return response.toDraft(), nil
}

func buildExtractionPrompt(request ExtractionRequest) string {
	schema := nutritionSchema
	noun := "nutrition plan"
	if request.PlanType == models.PlanTypeWorkout {
		schema = workoutSchema
		noun = "workout plan"
	}

	var locale string
	if trimmed := strings.TrimSpace(request.Locale); trimmed != "" {
		locale = fmt.Sprintf("\n- The document locale is %q.", trimmed)
	}

	return fmt.Sprintf(`Extract the complete %s from the attached file as JSON.

%s

Requirements:
- Output JSON only, no code fences, no extra text.
- Schema:
%s
- Use week_number and day_number starting from 1 in source order.
- Keep item names exactly as written in the document, in the source language.
- Use numbers for all quantities; omit unknown values instead of guessing.
- If the document covers a single week, return exactly one week.%s`,
		noun, attachmentDescription(request.Category), schema, locale)
}

const nutritionSchema = `{
  "plan": {
    "title": string,
    "weeks": [
      {
        "week_number": integer,
        "days": [
          {
            "day_number": integer,
            "title": string,
            "notes": string,
            "meals": [
              {
                "title": string,
                "time_hint": string,
                "foods": [
                  {"name": string, "quantity": number, "unit": string, "calories_kcal": number, "protein_g": number, "carbs_g": number, "fat_g": number}
                ]
              }
            ]
          }
        ]
      }
    ]
  }
}`

const workoutSchema = `{
  "plan": {
    "title": string,
    "weeks": [
      {
        "week_number": integer,
        "days": [
          {
            "day_number": integer,
            "title": string,
            "notes": string,
            "sessions": [
              {
                "title": string,
                "time_hint": string,
                "exercises": [
                  {"name": string, "sets": integer, "reps": integer, "weight_kg": number, "rest_seconds": integer}
                ]
              }
            ]
          }
        ]
      }
    ]
  }
}`

func attachmentDescription(category string) string {
	switch category {
	case "image":
		return "The attachment is a photo or screenshot of the plan."
	case "pdf":
		return "The attachment is a PDF document with the plan."
	case "spreadsheet":
		return "The attachment is a spreadsheet export of the plan."
	case "document":
		return "The attachment is a word-processor document with the plan."
	default:
		return "The attachment contains the plan."
	}
}

func extractJSON(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}

	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimPrefix(strings.TrimSpace(trimmed), "json")
		trimmed = strings.TrimSpace(trimmed)
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}

	return trimmed[start : end+1]
}

// normalizeDraft подчищает черновик перед валидацией: заполняет пропущенные
// номера недель и дней, подставляет заголовки по умолчанию и выбрасывает
// позиции без названия.
func normalizeDraft(draft *models.DraftPlan) {
	draft.Title = strings.TrimSpace(draft.Title)

	for wi := range draft.Weeks {
		week := &draft.Weeks[wi]
		if week.WeekNumber <= 0 {
			week.WeekNumber = wi + 1
		}

		for di := range week.Days {
			day := &week.Days[di]
			if day.DayNumber <= 0 {
				day.DayNumber = di + 1
			}

			day.Title = strings.TrimSpace(day.Title)
			if day.Title == "" {
				day.Title = fmt.Sprintf("Day %d", day.DayNumber)
			}

			for ei := range day.Entries {
				entry := &day.Entries[ei]
				entry.Title = strings.TrimSpace(entry.Title)
				if entry.Title == "" {
					if draft.PlanType == models.PlanTypeWorkout {
						entry.Title = fmt.Sprintf("Session %d", ei+1)
					} else {
						entry.Title = fmt.Sprintf("Meal %d", ei+1)
					}
				}

				kept := entry.Items[:0]
				for _, item := range entry.Items {
					item.Name = strings.TrimSpace(item.Name)
					if item.Name == "" {
						continue
					}
					kept = append(kept, item)
				}
				entry.Items = kept
			}
		}
	}
}

func validateDraft(draft models.DraftPlan) error {
	if utf8.RuneCountInString(draft.Title) > maxDraftTitleLen {
		return fmt.Errorf("%w: plan title is too long", ErrSchemaMismatch)
	}

	if len(draft.Weeks) == 0 {
		return fmt.Errorf("%w: plan has no weeks", ErrSchemaMismatch)
	}
	if len(draft.Weeks) > maxDraftWeeks {
		return fmt.Errorf("%w: too many weeks (%d)", ErrSchemaMismatch, len(draft.Weeks))
	}

	items := 0
	for _, week := range draft.Weeks {
		for _, day := range week.Days {
			for _, entry := range day.Entries {
				for _, item := range entry.Items {
					items++
					if item.Quantity < 0 || item.CaloriesKcal < 0 || item.ProteinG < 0 || item.CarbsG < 0 || item.FatG < 0 {
						return fmt.Errorf("%w: negative nutrition values for %q", ErrSchemaMismatch, item.Name)
					}
					if item.Sets < 0 || item.Reps < 0 || item.WeightKg < 0 || item.RestSeconds < 0 {
						return fmt.Errorf("%w: negative workout values for %q", ErrSchemaMismatch, item.Name)
					}
				}
			}
		}
	}

	if items == 0 {
		return fmt.Errorf("%w: plan has no items", ErrEmptyResponse)
	}
	if items > maxDraftItems {
		return fmt.Errorf("%w: too many items (%d)", ErrSchemaMismatch, items)
	}

	return nil
}
