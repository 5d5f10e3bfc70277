package handlers

import (
	"context"

	"github.com/google/uuid"

	"example.com/ai-plan-importer/backend/internal/models"
	"example.com/ai-plan-importer/backend/internal/repository"
)

type dayRef struct {
	week int
	day  int
}

type entryRef struct {
	week  int
	day   int
	entry int
}

// buildPlanTreeResponse собирает полное дерево плана четырьмя выборками:
// недели, дни по неделям, приемы по дням и позиции по приемам.
func buildPlanTreeResponse(ctx context.Context, plans *repository.PlanRepository, plan models.Plan) (PlanTreeResponse, error) {
	weeks, err := plans.ListWeeks(ctx, plan.ID)
	if err != nil {
		return PlanTreeResponse{}, err
	}

	weekResponses := make([]WeekResponse, 0, len(weeks))
	weekIndex := make(map[uuid.UUID]int, len(weeks))
	weekIDs := make([]uuid.UUID, 0, len(weeks))

	for _, week := range weeks {
		weekIndex[week.ID] = len(weekResponses)
		weekIDs = append(weekIDs, week.ID)
		weekResponses = append(weekResponses, WeekResponse{
			ID:         week.ID,
			WeekNumber: week.WeekNumber,
			SortOrder:  week.SortOrder,
			Days:       []DayResponse{},
		})
	}

	days, err := plans.ListDaysByWeekIDs(ctx, weekIDs)
	if err != nil {
		return PlanTreeResponse{}, err
	}

	dayIndex := make(map[uuid.UUID]dayRef, len(days))
	dayIDs := make([]uuid.UUID, 0, len(days))

	for _, day := range days {
		wi, ok := weekIndex[day.WeekID]
		if !ok {
			continue
		}
		dayIndex[day.ID] = dayRef{week: wi, day: len(weekResponses[wi].Days)}
		dayIDs = append(dayIDs, day.ID)
		weekResponses[wi].Days = append(weekResponses[wi].Days, DayResponse{
			ID:        day.ID,
			DayNumber: day.DayNumber,
			Title:     day.Title,
			Notes:     day.Notes,
			Totals:    day.Totals,
			SortOrder: day.SortOrder,
			Entries:   []EntryResponse{},
		})
	}

	entries, err := plans.ListEntriesByDayIDs(ctx, dayIDs)
	if err != nil {
		return PlanTreeResponse{}, err
	}

	entryIndex := make(map[uuid.UUID]entryRef, len(entries))
	entryIDs := make([]uuid.UUID, 0, len(entries))

	for _, entry := range entries {
		ref, ok := dayIndex[entry.DayID]
		if !ok {
			continue
		}
		entryList := &weekResponses[ref.week].Days[ref.day].Entries
		entryIndex[entry.ID] = entryRef{week: ref.week, day: ref.day, entry: len(*entryList)}
		entryIDs = append(entryIDs, entry.ID)
		*entryList = append(*entryList, EntryResponse{
			ID:        entry.ID,
			Title:     entry.Title,
			TimeHint:  entry.TimeHint,
			Totals:    entry.Totals,
			SortOrder: entry.SortOrder,
			Items:     []PlanItemResponse{},
		})
	}

	items, err := plans.ListItemsByEntryIDs(ctx, entryIDs)
	if err != nil {
		return PlanTreeResponse{}, err
	}

	itemCount := int64(0)
	for _, item := range items {
		ref, ok := entryIndex[item.EntryID]
		if !ok {
			continue
		}
		itemCount++
		entry := &weekResponses[ref.week].Days[ref.day].Entries[ref.entry]
		entry.Items = append(entry.Items, PlanItemResponse{
			ID:            item.ID,
			CatalogItemID: item.CatalogItemID,
			SourceName:    item.SourceName,
			Quantity:      item.Quantity,
			Unit:          item.Unit,
			CaloriesKcal:  item.CaloriesKcal,
			ProteinG:      item.ProteinG,
			CarbsG:        item.CarbsG,
			FatG:          item.FatG,
			Sets:          item.Sets,
			Reps:          item.Reps,
			WeightKg:      item.WeightKg,
			RestSeconds:   item.RestSeconds,
			SortOrder:     item.SortOrder,
		})
	}

	return PlanTreeResponse{
		Plan:  toPlanResponse(plan, int64(len(weekResponses)), itemCount),
		Weeks: weekResponses,
	}, nil
}
