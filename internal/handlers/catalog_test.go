package handlers

import (
	"testing"

	"example.com/ai-plan-importer/backend/internal/models"
)

// TestParseCatalogKind проверяет разбор вида справочника.
func TestParseCatalogKind(t *testing.T) {
	kind, err := parseCatalogKind("")
	if err != nil || kind != models.CatalogKindFood {
		t.Fatalf("expected food by default, got %v (err=%v)", kind, err)
	}

	kind, err = parseCatalogKind("food")
	if err != nil || kind != models.CatalogKindFood {
		t.Fatalf("expected food, got %v (err=%v)", kind, err)
	}

	kind, err = parseCatalogKind(" Exercise ")
	if err != nil || kind != models.CatalogKindExercise {
		t.Fatalf("expected exercise, got %v (err=%v)", kind, err)
	}

	if _, err := parseCatalogKind("supplement"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
