package matcher

import (
	"context"
	"fmt"
	"math/bits"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/go-dedup/simhash"

	"example.com/ai-plan-importer/backend/internal/models"
)

const (
	maxAlternatives     = 5
	minAlternativeScore = 0.4
)

// CatalogSource отдает кандидатов каталога для сопоставления.
type CatalogSource interface {
	ListByKind(ctx context.Context, kind models.CatalogKind) ([]models.CatalogItem, error)
}

// Resolver сопоставляет свободные названия из черновика с записями каталога.
// Кандидаты каждого вида загружаются один раз и индексируются в памяти,
// поэтому Resolver создается на один запуск импорта и не потокобезопасен.
type Resolver struct {
	source    CatalogSource
	threshold float64
	indexes   map[models.CatalogKind]*kindIndex
}

type kindIndex struct {
	items      []candidate
	exact      map[string]int
	normalized map[string]int
}

type candidate struct {
	item     models.CatalogItem
	variants []nameVariant
}

// nameVariant хранит предвычисленное представление названия или алиаса.
type nameVariant struct {
	normalized  string
	tokens      map[string]struct{}
	fingerprint uint64
}

// NewResolver создает резолвер с порогом принятия нечетких совпадений.
func NewResolver(source CatalogSource, threshold float64) *Resolver {
	return &Resolver{
		source:    source,
		threshold: threshold,
		indexes:   make(map[models.CatalogKind]*kindIndex),
	}
}

// Resolve ищет запись каталога для названия: точное совпадение по имени или
// алиасу, затем нормализованное, затем нечеткое по лучшей оценке выше порога.
// Если порог не пройден, возвращается результат без matched_id, но с
// кандидатами для ручного выбора.
func (r *Resolver) Resolve(ctx context.Context, kind models.CatalogKind, name string) (models.MatchResult, error) {
	result := models.MatchResult{
		Query:     name,
		Kind:      kind,
		MatchType: models.MatchTypeNone,
	}

	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return result, nil
	}

	index, err := r.indexFor(ctx, kind)
	if err != nil {
		return models.MatchResult{}, err
	}

	if pos, ok := index.exact[strings.ToLower(trimmed)]; ok {
		item := index.items[pos].item
		result.MatchedID = &item.ID
		result.MatchedName = item.Name
		result.Confidence = 1
		result.MatchType = models.MatchTypeExact
		if !strings.EqualFold(item.Name, trimmed) {
			result.MatchType = models.MatchTypeAlias
		}
		return result, nil
	}

	normalizedQuery := Normalize(trimmed)
	if normalizedQuery == "" {
		return result, nil
	}

	if pos, ok := index.normalized[normalizedQuery]; ok {
		item := index.items[pos].item
		result.MatchedID = &item.ID
		result.MatchedName = item.Name
		result.Confidence = 1
		result.MatchType = models.MatchTypeNormalized
		return result, nil
	}

	queryTokens := tokenSet(normalizedQuery)
	queryPrint := fingerprint(normalizedQuery)

	scored := make([]models.MatchCandidate, 0)
	for i := range index.items {
		best := 0.0
		for _, variant := range index.items[i].variants {
			score := tokenDice(queryTokens, variant.tokens)
			if sim := simhashSimilarity(queryPrint, variant.fingerprint); sim > score {
				score = sim
			}
			if score > best {
				best = score
			}
		}
		if best >= minAlternativeScore {
			scored = append(scored, models.MatchCandidate{
				ID:    index.items[i].item.ID,
				Name:  index.items[i].item.Name,
				Score: best,
			})
		}
	}

	sort.Slice(scored, func(i, j int) bool { return lessCandidate(scored[i], scored[j]) })
	if len(scored) > maxAlternatives {
		scored = scored[:maxAlternatives]
	}
	result.Candidates = scored

	if len(scored) > 0 && scored[0].Score >= r.threshold {
		top := scored[0]
		result.MatchedID = &top.ID
		result.MatchedName = top.Name
		result.Confidence = top.Score
		result.MatchType = models.MatchTypeFuzzy
	}

	return result, nil
}

func (r *Resolver) indexFor(ctx context.Context, kind models.CatalogKind) (*kindIndex, error) {
	if index, ok := r.indexes[kind]; ok {
		return index, nil
	}

	items, err := r.source.ListByKind(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("load %s candidates: %w", kind, err)
	}

	index := buildIndex(items)
	r.indexes[kind] = index
	return index, nil
}

// buildIndex строит индексы точного и нормализованного поиска. При коллизии
// ключа побеждает первая запись; кандидаты приходят отсортированными по
// имени, так что выбор детерминирован.
func buildIndex(items []models.CatalogItem) *kindIndex {
	index := &kindIndex{
		items:      make([]candidate, 0, len(items)),
		exact:      make(map[string]int),
		normalized: make(map[string]int),
	}

	for _, item := range items {
		names := append([]string{item.Name}, item.Aliases...)
		cand := candidate{item: item, variants: make([]nameVariant, 0, len(names))}
		pos := len(index.items)

		for _, name := range names {
			lowered := strings.ToLower(strings.TrimSpace(name))
			if lowered == "" {
				continue
			}
			if _, ok := index.exact[lowered]; !ok {
				index.exact[lowered] = pos
			}

			normalized := Normalize(name)
			if normalized == "" {
				continue
			}
			if _, ok := index.normalized[normalized]; !ok {
				index.normalized[normalized] = pos
			}

			cand.variants = append(cand.variants, nameVariant{
				normalized:  normalized,
				tokens:      tokenSet(normalized),
				fingerprint: fingerprint(normalized),
			})
		}

		index.items = append(index.items, cand)
	}

	return index
}

// lessCandidate упорядочивает кандидатов: оценка по убыванию, при равенстве
// более короткое каноническое имя, затем лексикографический порядок.
func lessCandidate(a, b models.MatchCandidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if la, lb := utf8.RuneCountInString(a.Name), utf8.RuneCountInString(b.Name); la != lb {
		return la < lb
	}
	return a.Name < b.Name
}

func tokenSet(normalized string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, token := range strings.Fields(normalized) {
		set[token] = struct{}{}
	}
	return set
}

// tokenDice считает коэффициент Серенсена-Дайса по множествам токенов.
func tokenDice(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for token := range a {
		if _, ok := b[token]; ok {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(a)+len(b))
}

// bigramFeatureSet реализует simhash.FeatureSet поверх символьных биграмм
// нормализованного названия.
type bigramFeatureSet struct {
	text string
}

func (f bigramFeatureSet) GetFeatures() []simhash.Feature {
	runes := []rune(f.text)
	features := make([]simhash.Feature, 0, len(runes))
	for i := 0; i+1 < len(runes); i++ {
		features = append(features, simhash.NewFeature([]byte(string(runes[i:i+2]))))
	}
	// Короткие названия дополняем одиночными символами.
	if len(runes) < 4 {
		for _, r := range runes {
			features = append(features, simhash.NewFeature([]byte(string(r))))
		}
	}
	return features
}

func fingerprint(normalized string) uint64 {
	return simhash.NewSimhash().GetSimhash(bigramFeatureSet{text: normalized})
}

// simhashSimilarity переводит расстояние Хэмминга в оценку 0..1. Отпечатки
// несвязанных строк расходятся примерно в половине из 64 бит, поэтому
// дистанция 32 и дальше считается полным несовпадением.
func simhashSimilarity(a, b uint64) float64 {
	distance := bits.OnesCount64(a ^ b)
	if distance >= 32 {
		return 0
	}
	return float64(32-distance) / 32
}
