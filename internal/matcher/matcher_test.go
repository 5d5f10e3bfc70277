package matcher

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"example.com/ai-plan-importer/backend/internal/models"
)

type stubCatalog struct {
	items []models.CatalogItem
	calls int
}

func (s *stubCatalog) ListByKind(ctx context.Context, kind models.CatalogKind) ([]models.CatalogItem, error) {
	s.calls++
	return s.items, nil
}

func catalogItem(name string, aliases ...string) models.CatalogItem {
	return models.CatalogItem{
		ID:      uuid.New(),
		Kind:    models.CatalogKindFood,
		Name:    name,
		Aliases: aliases,
	}
}

// TestNormalize проверяет канонизацию названий.
func TestNormalize(t *testing.T) {
	if got := Normalize("Crème Fraîche"); got != "creme fraiche" {
		t.Fatalf("expected creme fraiche, got %q", got)
	}

	if got := Normalize("  Chicken,   breast!! "); got != "chicken breast" {
		t.Fatalf("expected chicken breast, got %q", got)
	}

	if got := Normalize("Omega-3"); got != "omega 3" {
		t.Fatalf("expected omega 3, got %q", got)
	}

	if got := Normalize("ГРЕЧКА Отварная"); got != "гречка отварная" {
		t.Fatalf("expected гречка отварная, got %q", got)
	}

	if got := Normalize(" ... "); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

// TestTokenDice проверяет коэффициент совпадения по токенам.
func TestTokenDice(t *testing.T) {
	score := tokenDice(tokenSet("brown rice"), tokenSet("brown rice cooked"))
	if score != 0.8 {
		t.Fatalf("expected 0.8, got %v", score)
	}

	if score := tokenDice(tokenSet("quinoa"), tokenSet("bench press")); score != 0 {
		t.Fatalf("expected 0 for disjoint tokens, got %v", score)
	}

	if score := tokenDice(tokenSet(""), tokenSet("rice")); score != 0 {
		t.Fatalf("expected 0 for empty query, got %v", score)
	}
}

// TestSimhashSimilarity проверяет перевод расстояния Хэмминга в оценку.
func TestSimhashSimilarity(t *testing.T) {
	print1 := fingerprint("chicken breast")
	print2 := fingerprint("chicken breast")
	if print1 != print2 {
		t.Fatalf("expected deterministic fingerprint, got %d and %d", print1, print2)
	}

	if sim := simhashSimilarity(print1, print1); sim != 1 {
		t.Fatalf("expected 1 for identical fingerprints, got %v", sim)
	}

	if sim := simhashSimilarity(print1, ^print1); sim != 0 {
		t.Fatalf("expected 0 for inverted fingerprint, got %v", sim)
	}

	// 8 несовпадающих бит из 64: (32-8)/32 = 0.75.
	if sim := simhashSimilarity(print1, print1^0xFF); sim != 0.75 {
		t.Fatalf("expected 0.75, got %v", sim)
	}
}

// TestLessCandidate проверяет детерминированный порядок кандидатов.
func TestLessCandidate(t *testing.T) {
	high := models.MatchCandidate{Name: "Rice", Score: 0.9}
	low := models.MatchCandidate{Name: "Brown Rice", Score: 0.6}
	if !lessCandidate(high, low) {
		t.Fatal("expected higher score to sort first")
	}

	short := models.MatchCandidate{Name: "Rice", Score: 0.6}
	long := models.MatchCandidate{Name: "Brown Rice", Score: 0.6}
	if !lessCandidate(short, long) || lessCandidate(long, short) {
		t.Fatal("expected shorter name to sort first on equal score")
	}

	first := models.MatchCandidate{Name: "Oats", Score: 0.6}
	second := models.MatchCandidate{Name: "Rice", Score: 0.6}
	if !lessCandidate(first, second) || lessCandidate(second, first) {
		t.Fatal("expected lexical order on equal score and length")
	}
}

// TestResolveExact проверяет точное совпадение по имени и алиасу.
func TestResolveExact(t *testing.T) {
	chicken := catalogItem("Chicken Breast", "куриная грудка")
	source := &stubCatalog{items: []models.CatalogItem{chicken, catalogItem("Quinoa")}}
	resolver := NewResolver(source, 0.7)

	result, err := resolver.Resolve(context.Background(), models.CatalogKindFood, "chicken breast")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.MatchType != models.MatchTypeExact {
		t.Fatalf("expected exact match, got %s", result.MatchType)
	}
	if result.MatchedID == nil || *result.MatchedID != chicken.ID {
		t.Fatalf("expected id %s, got %v", chicken.ID, result.MatchedID)
	}
	if result.Confidence != 1 {
		t.Fatalf("expected confidence 1, got %v", result.Confidence)
	}

	result, err = resolver.Resolve(context.Background(), models.CatalogKindFood, "Куриная Грудка")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.MatchType != models.MatchTypeAlias {
		t.Fatalf("expected alias match, got %s", result.MatchType)
	}
	if result.MatchedName != "Chicken Breast" {
		t.Fatalf("expected canonical name, got %s", result.MatchedName)
	}
}

// TestResolveNormalized проверяет совпадение после канонизации.
func TestResolveNormalized(t *testing.T) {
	creme := catalogItem("Creme Fraiche")
	source := &stubCatalog{items: []models.CatalogItem{creme}}
	resolver := NewResolver(source, 0.7)

	result, err := resolver.Resolve(context.Background(), models.CatalogKindFood, "Crème  Fraîche")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.MatchType != models.MatchTypeNormalized {
		t.Fatalf("expected normalized match, got %s", result.MatchType)
	}
	if result.MatchedID == nil || *result.MatchedID != creme.ID {
		t.Fatalf("expected id %s, got %v", creme.ID, result.MatchedID)
	}
}

// TestResolveFuzzy проверяет нечеткое совпадение выше порога.
func TestResolveFuzzy(t *testing.T) {
	rice := catalogItem("Brown Rice")
	source := &stubCatalog{items: []models.CatalogItem{rice, catalogItem("Quinoa")}}
	resolver := NewResolver(source, 0.7)

	result, err := resolver.Resolve(context.Background(), models.CatalogKindFood, "brown rice cooked")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.MatchType != models.MatchTypeFuzzy {
		t.Fatalf("expected fuzzy match, got %s", result.MatchType)
	}
	if result.MatchedName != "Brown Rice" {
		t.Fatalf("expected Brown Rice, got %s", result.MatchedName)
	}
	if result.Confidence < 0.8 {
		t.Fatalf("expected confidence >= 0.8, got %v", result.Confidence)
	}
	if len(result.Candidates) == 0 || result.Candidates[0].ID != rice.ID {
		t.Fatalf("expected Brown Rice as top candidate, got %+v", result.Candidates)
	}
}

// TestResolveFuzzyTie проверяет детерминированный выбор при равных оценках.
func TestResolveFuzzyTie(t *testing.T) {
	second := catalogItem("Protein Chocolate Bar")
	first := catalogItem("Chocolate Protein Bar")
	source := &stubCatalog{items: []models.CatalogItem{second, first}}
	resolver := NewResolver(source, 0.7)

	result, err := resolver.Resolve(context.Background(), models.CatalogKindFood, "protein bar chocolate")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.MatchType != models.MatchTypeFuzzy {
		t.Fatalf("expected fuzzy match, got %s", result.MatchType)
	}
	if result.MatchedName != "Chocolate Protein Bar" {
		t.Fatalf("expected lexical tie-break winner, got %s", result.MatchedName)
	}
	if len(result.Candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(result.Candidates))
	}
	if result.Candidates[1].Name != "Protein Chocolate Bar" {
		t.Fatalf("expected Protein Chocolate Bar second, got %s", result.Candidates[1].Name)
	}
}

// TestResolveBelowThreshold проверяет, что оценка ниже порога не дает
// совпадения, но кандидат остается в списке для ручного выбора.
func TestResolveBelowThreshold(t *testing.T) {
	flour := catalogItem("Oat Flour")
	source := &stubCatalog{items: []models.CatalogItem{flour, catalogItem("Quinoa")}}
	resolver := NewResolver(source, 0.7)

	result, err := resolver.Resolve(context.Background(), models.CatalogKindFood, "oat milk")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.MatchType != models.MatchTypeNone {
		t.Fatalf("expected no match, got %s", result.MatchType)
	}
	if result.MatchedID != nil {
		t.Fatalf("expected nil matched id, got %v", result.MatchedID)
	}
	if len(result.Candidates) != 1 || result.Candidates[0].ID != flour.ID {
		t.Fatalf("expected Oat Flour as candidate, got %+v", result.Candidates)
	}
	score := result.Candidates[0].Score
	if score < minAlternativeScore || score >= 0.7 {
		t.Fatalf("expected score in [%v, 0.7), got %v", minAlternativeScore, score)
	}
}

// TestResolveUnmatched проверяет результат без совпадения.
func TestResolveUnmatched(t *testing.T) {
	source := &stubCatalog{items: []models.CatalogItem{catalogItem("Barbell Squat"), catalogItem("Bench Press")}}
	resolver := NewResolver(source, 0.7)

	result, err := resolver.Resolve(context.Background(), models.CatalogKindFood, "dragonfruit smoothie")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.MatchType != models.MatchTypeNone {
		t.Fatalf("expected no match, got %s", result.MatchType)
	}
	if result.MatchedID != nil {
		t.Fatalf("expected nil matched id, got %v", result.MatchedID)
	}
}

// TestResolveCachesCandidates проверяет, что кандидаты загружаются один раз.
func TestResolveCachesCandidates(t *testing.T) {
	chicken := catalogItem("Chicken Breast")
	source := &stubCatalog{items: []models.CatalogItem{chicken}}
	resolver := NewResolver(source, 0.7)

	first, err := resolver.Resolve(context.Background(), models.CatalogKindFood, "Chicken Breast")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := resolver.Resolve(context.Background(), models.CatalogKindFood, "Chicken Breast")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if source.calls != 1 {
		t.Fatalf("expected single catalog load, got %d", source.calls)
	}
	if first.MatchedID == nil || second.MatchedID == nil || *first.MatchedID != *second.MatchedID {
		t.Fatalf("expected stable matched id, got %v and %v", first.MatchedID, second.MatchedID)
	}
}

// TestResolveEmptyName проверяет пустой запрос.
func TestResolveEmptyName(t *testing.T) {
	source := &stubCatalog{}
	resolver := NewResolver(source, 0.7)

	result, err := resolver.Resolve(context.Background(), models.CatalogKindFood, "   ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.MatchType != models.MatchTypeNone || result.MatchedID != nil {
		t.Fatalf("expected empty result, got %+v", result)
	}
	if source.calls != 0 {
		t.Fatalf("expected no catalog load, got %d calls", source.calls)
	}
}
