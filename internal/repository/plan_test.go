package repository

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
)

// TestBuildCopyTitle проверяет ограничение длины заголовка копии.
func TestBuildCopyTitle(t *testing.T) {
	original := strings.Repeat("a", 210)
	result := buildCopyTitle(original, 200)

	if !strings.HasPrefix(result, "Copy of ") {
		t.Fatalf("expected prefix, got %s", result)
	}

	if utf8.RuneCountInString(result) > 200 {
		t.Fatalf("expected result length <= 200, got %d", utf8.RuneCountInString(result))
	}
}

// TestKeysOf проверяет сбор ключей карты соответствия идентификаторов.
func TestKeysOf(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	m := map[uuid.UUID]uuid.UUID{a: uuid.New(), b: uuid.New()}

	keys := keysOf(m)
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}

	seen := map[uuid.UUID]bool{}
	for _, k := range keys {
		seen[k] = true
	}
	if !seen[a] || !seen[b] {
		t.Fatalf("expected both map keys in result, got %v", keys)
	}

	if got := keysOf(nil); len(got) != 0 {
		t.Fatalf("expected empty result for nil map, got %v", got)
	}
}
