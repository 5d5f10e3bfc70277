package ai

import (
	"strings"

	"example.com/ai-plan-importer/backend/internal/models"
)

type nutritionPlanResponse struct {
	Plan nutritionPlan `json:"plan"`
}

type nutritionPlan struct {
	Title string          `json:"title"`
	Weeks []nutritionWeek `json:"weeks"`
}

type nutritionWeek struct {
	WeekNumber int            `json:"week_number"`
	Days       []nutritionDay `json:"days"`
}

type nutritionDay struct {
	DayNumber int             `json:"day_number"`
	Title     string          `json:"title,omitempty"`
	Notes     string          `json:"notes,omitempty"`
	Meals     []nutritionMeal `json:"meals"`
}

type nutritionMeal struct {
	Title    string          `json:"title"`
	TimeHint string          `json:"time_hint,omitempty"`
	Foods    []nutritionFood `json:"foods"`
}

type nutritionFood struct {
	Name         string  `json:"name"`
	Quantity     float64 `json:"quantity,omitempty"`
	Unit         string  `json:"unit,omitempty"`
	CaloriesKcal float64 `json:"calories_kcal,omitempty"`
	ProteinG     float64 `json:"protein_g,omitempty"`
	CarbsG       float64 `json:"carbs_g,omitempty"`
	FatG         float64 `json:"fat_g,omitempty"`
}

type workoutPlanResponse struct {
	Plan workoutPlan `json:"plan"`
}

type workoutPlan struct {
	Title string        `json:"title"`
	Weeks []workoutWeek `json:"weeks"`
}

type workoutWeek struct {
	WeekNumber int          `json:"week_number"`
	Days       []workoutDay `json:"days"`
}

type workoutDay struct {
	DayNumber int              `json:"day_number"`
	Title     string           `json:"title,omitempty"`
	Notes     string           `json:"notes,omitempty"`
	Sessions  []workoutSession `json:"sessions"`
}

type workoutSession struct {
	Title     string            `json:"title"`
	TimeHint  string            `json:"time_hint,omitempty"`
	Exercises []workoutExercise `json:"exercises"`
}

type workoutExercise struct {
	Name        string  `json:"name"`
	Sets        int     `json:"sets,omitempty"`
	Reps        int     `json:"reps,omitempty"`
	WeightKg    float64 `json:"weight_kg,omitempty"`
	RestSeconds int     `json:"rest_seconds,omitempty"`
}

func (r nutritionPlanResponse) toDraft() models.DraftPlan {
	draft := models.DraftPlan{
		Title:    r.Plan.Title,
		PlanType: models.PlanTypeNutrition,
		Weeks:    make([]models.DraftWeek, 0, len(r.Plan.Weeks)),
	}

	for _, week := range r.Plan.Weeks {
		draftWeek := models.DraftWeek{
			WeekNumber: week.WeekNumber,
			Days:       make([]models.DraftDay, 0, len(week.Days)),
		}

		for _, day := range week.Days {
			draftDay := models.DraftDay{
				DayNumber: day.DayNumber,
				Title:     day.Title,
				Notes:     optionalString(day.Notes),
				Entries:   make([]models.DraftEntry, 0, len(day.Meals)),
			}

			for _, meal := range day.Meals {
				entry := models.DraftEntry{
					Title:    meal.Title,
					TimeHint: optionalString(meal.TimeHint),
					Items:    make([]models.DraftItem, 0, len(meal.Foods)),
				}

				for _, food := range meal.Foods {
					entry.Items = append(entry.Items, models.DraftItem{
						Name:         food.Name,
						Quantity:     food.Quantity,
						Unit:         food.Unit,
						CaloriesKcal: food.CaloriesKcal,
						ProteinG:     food.ProteinG,
						CarbsG:       food.CarbsG,
						FatG:         food.FatG,
					})
				}

				draftDay.Entries = append(draftDay.Entries, entry)
			}

			draftWeek.Days = append(draftWeek.Days, draftDay)
		}

		draft.Weeks = append(draft.Weeks, draftWeek)
	}

	return draft
}

func (r workoutPlanResponse) toDraft() models.DraftPlan {
	draft := models.DraftPlan{
		Title:    r.Plan.Title,
		PlanType: models.PlanTypeWorkout,
		Weeks:    make([]models.DraftWeek, 0, len(r.Plan.Weeks)),
	}

	for _, week := range r.Plan.Weeks {
		draftWeek := models.DraftWeek{
			WeekNumber: week.WeekNumber,
			Days:       make([]models.DraftDay, 0, len(week.Days)),
		}

		for _, day := range week.Days {
			draftDay := models.DraftDay{
				DayNumber: day.DayNumber,
				Title:     day.Title,
				Notes:     optionalString(day.Notes),
				Entries:   make([]models.DraftEntry, 0, len(day.Sessions)),
			}

			for _, session := range day.Sessions {
				entry := models.DraftEntry{
					Title:    session.Title,
					TimeHint: optionalString(session.TimeHint),
					Items:    make([]models.DraftItem, 0, len(session.Exercises)),
				}

				for _, exercise := range session.Exercises {
					entry.Items = append(entry.Items, models.DraftItem{
						Name:        exercise.Name,
						Sets:        exercise.Sets,
						Reps:        exercise.Reps,
						WeightKg:    exercise.WeightKg,
						RestSeconds: exercise.RestSeconds,
					})
				}

				draftDay.Entries = append(draftDay.Entries, entry)
			}

			draftWeek.Days = append(draftWeek.Days, draftDay)
		}

		draft.Weeks = append(draft.Weeks, draftWeek)
	}

	return draft
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
