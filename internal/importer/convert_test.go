package importer

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/google/uuid"

	"example.com/ai-plan-importer/backend/internal/matcher"
	"example.com/ai-plan-importer/backend/internal/models"
)

// buildDraft строит черновик заданной формы с различающимися значениями
// позиций, чтобы агрегаты нельзя было угадать случайно.
func buildDraft(weeks, days, entries, items int) models.DraftPlan {
	draft := models.DraftPlan{Title: "Bulk Plan", PlanType: models.PlanTypeNutrition}

	value := 1.0
	for w := 0; w < weeks; w++ {
		week := models.DraftWeek{WeekNumber: w + 1}
		for d := 0; d < days; d++ {
			day := models.DraftDay{DayNumber: d + 1, Title: fmt.Sprintf("Day %d", d+1)}
			for e := 0; e < entries; e++ {
				entry := models.DraftEntry{Title: fmt.Sprintf("Meal %d", e+1)}
				for i := 0; i < items; i++ {
					entry.Items = append(entry.Items, models.DraftItem{
						Name:         fmt.Sprintf("food %d", i+1),
						Quantity:     value,
						Unit:         "g",
						CaloriesKcal: value * 10,
						ProteinG:     value * 2,
						CarbsG:       value * 3,
						FatG:         value,
						Sets:         i + 1,
						Reps:         5,
						WeightKg:     value,
					})
					value++
				}
				day.Entries = append(day.Entries, entry)
			}
			week.Days = append(week.Days, day)
		}
		draft.Weeks = append(draft.Weeks, week)
	}

	return draft
}

// draftMatches выдает каждому названию черновика сопоставление со свежей
// записью каталога.
func draftMatches(draft models.DraftPlan) map[string]models.MatchResult {
	matches := make(map[string]models.MatchResult)

	for _, week := range draft.Weeks {
		for _, day := range week.Days {
			for _, entry := range day.Entries {
				for _, item := range entry.Items {
					normalized := matcher.Normalize(item.Name)
					if _, ok := matches[normalized]; ok {
						continue
					}
					id := uuid.New()
					matches[normalized] = models.MatchResult{
						Query:     item.Name,
						MatchedID: &id,
						MatchType: models.MatchTypeExact,
					}
				}
			}
		}
	}

	return matches
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// TestConvertRecomputesTotals проверяет, что агрегаты приемов и дней
// складываются снизу вверх из значений позиций.
func TestConvertRecomputesTotals(t *testing.T) {
	draft := buildDraft(2, 2, 2, 3)
	matches := draftMatches(draft)

	tree, err := Convert(uuid.New(), uuid.New(), draft, matches)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	for wi, week := range tree.Weeks {
		for di, day := range week.Days {
			var dayTotals models.PlanTotals
			for ei, entry := range day.Entries {
				var entryTotals models.PlanTotals
				for _, item := range entry.Items {
					entryTotals.Add(item)
				}

				if !almostEqual(entry.Entry.Totals.CaloriesKcal, entryTotals.CaloriesKcal) ||
					!almostEqual(entry.Entry.Totals.VolumeKg, entryTotals.VolumeKg) ||
					entry.Entry.Totals.SetsCount != entryTotals.SetsCount {
					t.Fatalf("entry %d/%d/%d totals = %+v, want %+v", wi, di, ei, entry.Entry.Totals, entryTotals)
				}

				dayTotals.Merge(entryTotals)
			}

			if !almostEqual(day.Day.Totals.CaloriesKcal, dayTotals.CaloriesKcal) ||
				!almostEqual(day.Day.Totals.ProteinG, dayTotals.ProteinG) ||
				!almostEqual(day.Day.Totals.VolumeKg, dayTotals.VolumeKg) {
				t.Fatalf("day %d/%d totals = %+v, want %+v", wi, di, day.Day.Totals, dayTotals)
			}
		}
	}
}

// TestConvertTotalsRandomDrafts прогоняет пересчет агрегатов на случайных
// черновиках: форма дерева и значения позиций берутся из генератора с
// фиксированным зерном.
func TestConvertTotalsRandomDrafts(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for round := 0; round < 25; round++ {
		draft := models.DraftPlan{Title: "Random Plan", PlanType: models.PlanTypeNutrition}
		for w := 0; w < 1+rng.Intn(3); w++ {
			week := models.DraftWeek{WeekNumber: w + 1}
			for d := 0; d < 1+rng.Intn(4); d++ {
				day := models.DraftDay{DayNumber: d + 1}
				for e := 0; e < rng.Intn(4); e++ {
					entry := models.DraftEntry{Title: fmt.Sprintf("Meal %d", e+1)}
					for i := 0; i < rng.Intn(5); i++ {
						entry.Items = append(entry.Items, models.DraftItem{
							Name:         fmt.Sprintf("food %d", rng.Intn(6)+1),
							Quantity:     rng.Float64() * 500,
							Unit:         "g",
							CaloriesKcal: rng.Float64() * 900,
							ProteinG:     rng.Float64() * 80,
							CarbsG:       rng.Float64() * 120,
							FatG:         rng.Float64() * 60,
							Sets:         rng.Intn(6),
							Reps:         rng.Intn(20),
							WeightKg:     rng.Float64() * 150,
						})
					}
					day.Entries = append(day.Entries, entry)
				}
				week.Days = append(week.Days, day)
			}
			draft.Weeks = append(draft.Weeks, week)
		}

		tree, err := Convert(uuid.New(), uuid.New(), draft, draftMatches(draft))
		if err != nil {
			t.Fatalf("round %d: Convert() error = %v", round, err)
		}

		for wi, week := range tree.Weeks {
			for di, day := range week.Days {
				var dayTotals models.PlanTotals
				for ei, entry := range day.Entries {
					var entryTotals models.PlanTotals
					for _, item := range entry.Items {
						entryTotals.Add(item)
					}
					if !almostEqual(entry.Entry.Totals.CaloriesKcal, entryTotals.CaloriesKcal) ||
						!almostEqual(entry.Entry.Totals.ProteinG, entryTotals.ProteinG) ||
						!almostEqual(entry.Entry.Totals.VolumeKg, entryTotals.VolumeKg) {
						t.Fatalf("round %d: entry %d/%d/%d totals = %+v, want %+v", round, wi, di, ei, entry.Entry.Totals, entryTotals)
					}
					dayTotals.Merge(entryTotals)
				}
				if !almostEqual(day.Day.Totals.CaloriesKcal, dayTotals.CaloriesKcal) ||
					!almostEqual(day.Day.Totals.CarbsG, dayTotals.CarbsG) ||
					!almostEqual(day.Day.Totals.FatG, dayTotals.FatG) ||
					day.Day.Totals.SetsCount != dayTotals.SetsCount {
					t.Fatalf("round %d: day %d/%d totals = %+v, want %+v", round, wi, di, day.Day.Totals, dayTotals)
				}
			}
		}
	}
}

// TestConvertAssignsFreshIDs проверяет уникальность идентификаторов всех
// узлов и корректность ссылок между уровнями.
func TestConvertAssignsFreshIDs(t *testing.T) {
	userID := uuid.New()
	jobID := uuid.New()
	draft := buildDraft(2, 1, 2, 2)
	matches := draftMatches(draft)

	tree, err := Convert(userID, jobID, draft, matches)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	if tree.Plan.UserID != userID {
		t.Fatalf("plan user = %s, want %s", tree.Plan.UserID, userID)
	}
	if tree.Plan.ImportJobID == nil || *tree.Plan.ImportJobID != jobID {
		t.Fatalf("plan import job = %v, want %s", tree.Plan.ImportJobID, jobID)
	}

	seen := map[uuid.UUID]bool{tree.Plan.ID: true}
	check := func(id uuid.UUID) {
		if id == uuid.Nil {
			t.Fatalf("node has zero id")
		}
		if seen[id] {
			t.Fatalf("duplicate node id %s", id)
		}
		seen[id] = true
	}

	for wi, week := range tree.Weeks {
		check(week.Week.ID)
		if week.Week.PlanID != tree.Plan.ID {
			t.Fatalf("week plan id mismatch")
		}
		if week.Week.SortOrder != wi {
			t.Fatalf("week sort order = %d, want %d", week.Week.SortOrder, wi)
		}

		for di, day := range week.Days {
			check(day.Day.ID)
			if day.Day.WeekID != week.Week.ID {
				t.Fatalf("day week id mismatch")
			}
			if day.Day.SortOrder != di {
				t.Fatalf("day sort order = %d, want %d", day.Day.SortOrder, di)
			}

			for ei, entry := range day.Entries {
				check(entry.Entry.ID)
				if entry.Entry.DayID != day.Day.ID {
					t.Fatalf("entry day id mismatch")
				}
				if entry.Entry.SortOrder != ei {
					t.Fatalf("entry sort order = %d, want %d", entry.Entry.SortOrder, ei)
				}

				for ii, item := range entry.Items {
					check(item.ID)
					if item.EntryID != entry.Entry.ID {
						t.Fatalf("item entry id mismatch")
					}
					if item.SortOrder != ii {
						t.Fatalf("item sort order = %d, want %d", item.SortOrder, ii)
					}
				}
			}
		}
	}

	// Повторная конвертация того же черновика не переиспользует ни один
	// идентификатор.
	second, err := Convert(userID, jobID, draft, matches)
	if err != nil {
		t.Fatalf("Convert() second error = %v", err)
	}
	if seen[second.Plan.ID] {
		t.Fatalf("second conversion reused plan id")
	}
	for _, week := range second.Weeks {
		if seen[week.Week.ID] {
			t.Fatalf("second conversion reused week id %s", week.Week.ID)
		}
	}
}

// TestConvertKeepsSourceOrderAndNames проверяет сохранение исходного порядка
// и написания названий.
func TestConvertKeepsSourceOrderAndNames(t *testing.T) {
	draft := models.DraftPlan{
		Title:    "Cut",
		PlanType: models.PlanTypeNutrition,
		Weeks: []models.DraftWeek{{
			WeekNumber: 1,
			Days: []models.DraftDay{{
				DayNumber: 1,
				Title:     "Monday",
				Entries: []models.DraftEntry{{
					Title: "Breakfast",
					Items: []models.DraftItem{
						{Name: "Oatmeal", CaloriesKcal: 150},
						{Name: "Greek Yogurt", CaloriesKcal: 100},
						{Name: "Blueberries", CaloriesKcal: 40},
					},
				}},
			}},
		}},
	}
	matches := draftMatches(draft)

	tree, err := Convert(uuid.New(), uuid.New(), draft, matches)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	items := tree.Weeks[0].Days[0].Entries[0].Items
	want := []string{"Oatmeal", "Greek Yogurt", "Blueberries"}
	if len(items) != len(want) {
		t.Fatalf("items = %d, want %d", len(items), len(want))
	}
	for i, item := range items {
		if item.SourceName != want[i] {
			t.Fatalf("item %d source name = %q, want %q", i, item.SourceName, want[i])
		}
		normalized := matcher.Normalize(want[i])
		if item.CatalogItemID != *matches[normalized].MatchedID {
			t.Fatalf("item %d catalog id mismatch", i)
		}
	}
}

// TestConvertUnresolvedReference проверяет отказ конвертации, когда для
// названия нет итогового сопоставления.
func TestConvertUnresolvedReference(t *testing.T) {
	draft := buildDraft(1, 1, 1, 2)
	matches := draftMatches(draft)
	delete(matches, matcher.Normalize("food 2"))

	if _, err := Convert(uuid.New(), uuid.New(), draft, matches); !errors.Is(err, ErrConversion) {
		t.Fatalf("Convert() error = %v, want ErrConversion", err)
	}

	// Сопоставление без записи каталога тоже не проходит.
	empty := draftMatches(draft)
	result := empty[matcher.Normalize("food 2")]
	result.MatchedID = nil
	empty[matcher.Normalize("food 2")] = result

	if _, err := Convert(uuid.New(), uuid.New(), draft, empty); !errors.Is(err, ErrConversion) {
		t.Fatalf("Convert() error = %v, want ErrConversion", err)
	}
}

// TestConvertEmptyDraft проверяет отказ для черновика без недель.
func TestConvertEmptyDraft(t *testing.T) {
	draft := models.DraftPlan{Title: "Empty", PlanType: models.PlanTypeNutrition}

	if _, err := Convert(uuid.New(), uuid.New(), draft, nil); !errors.Is(err, ErrConversion) {
		t.Fatalf("Convert() error = %v, want ErrConversion", err)
	}
}

// TestConvertDefaultTitle проверяет подстановку заголовка по умолчанию.
func TestConvertDefaultTitle(t *testing.T) {
	draft := buildDraft(1, 1, 1, 1)
	draft.Title = "   "

	tree, err := Convert(uuid.New(), uuid.New(), draft, draftMatches(draft))
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if tree.Plan.Title != "Imported plan" {
		t.Fatalf("title = %q, want %q", tree.Plan.Title, "Imported plan")
	}
}
