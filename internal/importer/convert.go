package importer

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"example.com/ai-plan-importer/backend/internal/matcher"
	"example.com/ai-plan-importer/backend/internal/models"
)

// Convert превращает разрешенный черновик в дерево плана для атомарной
// записи. Каждый узел получает свежий uuid, поэтому повторный импорт того же
// документа не конфликтует с прежними планами. Агрегаты дней и приемов
// пересчитываются снизу вверх от значений позиций; итогам из черновика
// доверия нет.
func Convert(userID, jobID uuid.UUID, draft models.DraftPlan, matches map[string]models.MatchResult) (models.PlanTree, error) {
	if len(draft.Weeks) == 0 {
		return models.PlanTree{}, fmt.Errorf("%w: draft has no weeks", ErrConversion)
	}

	title := strings.TrimSpace(draft.Title)
	if title == "" {
		title = "Imported plan"
	}

	plan := models.Plan{
		ID:          uuid.New(),
		UserID:      userID,
		PlanType:    draft.PlanType,
		Title:       title,
		Locale:      draft.Locale,
		ImportJobID: &jobID,
	}

	tree := models.PlanTree{Plan: plan, Weeks: make([]models.PlanTreeWeek, 0, len(draft.Weeks))}

	for wi, draftWeek := range draft.Weeks {
		week := models.PlanWeek{
			ID:         uuid.New(),
			PlanID:     plan.ID,
			WeekNumber: draftWeek.WeekNumber,
			SortOrder:  wi,
		}

		treeWeek := models.PlanTreeWeek{Week: week, Days: make([]models.PlanTreeDay, 0, len(draftWeek.Days))}

		for di, draftDay := range draftWeek.Days {
			day := models.PlanDay{
				ID:        uuid.New(),
				WeekID:    week.ID,
				DayNumber: draftDay.DayNumber,
				Title:     draftDay.Title,
				Notes:     draftDay.Notes,
				SortOrder: di,
			}

			treeDay := models.PlanTreeDay{Entries: make([]models.PlanTreeEntry, 0, len(draftDay.Entries))}

			for ei, draftEntry := range draftDay.Entries {
				entry := models.PlanEntry{
					ID:        uuid.New(),
					DayID:     day.ID,
					Title:     draftEntry.Title,
					TimeHint:  draftEntry.TimeHint,
					SortOrder: ei,
				}

				items := make([]models.PlanItem, 0, len(draftEntry.Items))
				for ii, draftItem := range draftEntry.Items {
					match, ok := matches[matcher.Normalize(draftItem.Name)]
					if !ok || match.MatchedID == nil {
						return models.PlanTree{}, fmt.Errorf("%w: unresolved reference %q", ErrConversion, draftItem.Name)
					}

					item := models.PlanItem{
						ID:            uuid.New(),
						EntryID:       entry.ID,
						CatalogItemID: *match.MatchedID,
						SourceName:    draftItem.Name,
						Quantity:      draftItem.Quantity,
						Unit:          draftItem.Unit,
						CaloriesKcal:  draftItem.CaloriesKcal,
						ProteinG:      draftItem.ProteinG,
						CarbsG:        draftItem.CarbsG,
						FatG:          draftItem.FatG,
						Sets:          draftItem.Sets,
						Reps:          draftItem.Reps,
						WeightKg:      draftItem.WeightKg,
						RestSeconds:   draftItem.RestSeconds,
						SortOrder:     ii,
					}

					entry.Totals.Add(item)
					items = append(items, item)
				}

				day.Totals.Merge(entry.Totals)
				treeDay.Entries = append(treeDay.Entries, models.PlanTreeEntry{Entry: entry, Items: items})
			}

			treeDay.Day = day
			treeWeek.Days = append(treeWeek.Days, treeDay)
		}

		tree.Weeks = append(tree.Weeks, treeWeek)
	}

	return tree, nil
}
