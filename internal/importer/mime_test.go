package importer

import (
	"errors"
	"testing"

	"example.com/ai-plan-importer/backend/internal/ai"
)

// TestClassifyMime проверяет таблицу правил классификации заявленного типа.
func TestClassifyMime(t *testing.T) {
	cases := []struct {
		mime     string
		category Category
		ok       bool
	}{
		{"image/png", CategoryImage, true},
		{"image/jpeg", CategoryImage, true},
		{"IMAGE/HEIC", CategoryImage, true},
		{"application/pdf", CategoryPDF, true},
		{"application/pdf; charset=binary", CategoryPDF, true},
		{" application/pdf ", CategoryPDF, true},
		{"text/csv", CategorySpreadsheet, true},
		{"application/vnd.ms-excel", CategorySpreadsheet, true},
		{"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", CategorySpreadsheet, true},
		{"application/msword", CategoryDocument, true},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", CategoryDocument, true},
		{"application/zip", "", false},
		{"text/plain", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		category, ok := classifyMime(tc.mime)
		if ok != tc.ok || category != tc.category {
			t.Fatalf("classifyMime(%q) = (%q, %v), want (%q, %v)", tc.mime, category, ok, tc.category, tc.ok)
		}
	}
}

// TestRouteInvokesExactlyOneHandler проверяет, что файл попадает ровно в
// один обработчик своей категории.
func TestRouteInvokesExactlyOneHandler(t *testing.T) {
	router := NewRouter()

	counts := make(map[Category]int)
	for _, category := range []Category{CategoryImage, CategoryPDF, CategorySpreadsheet, CategoryDocument} {
		router.Handle(category, func(file ImportFile) (ai.ExtractionRequest, error) {
			counts[category]++
			return ai.ExtractionRequest{FileName: file.Name, Category: string(category)}, nil
		})
	}

	fallbackCalls := 0
	router.Fallback(func(file ImportFile) (ai.ExtractionRequest, error) {
		fallbackCalls++
		return ai.ExtractionRequest{}, nil
	})

	request, err := router.Route(ImportFile{Name: "plan.pdf", MIME: "application/pdf", Content: []byte("x")})
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if request.Category != string(CategoryPDF) {
		t.Fatalf("category = %q, want %q", request.Category, CategoryPDF)
	}

	if counts[CategoryPDF] != 1 {
		t.Fatalf("pdf handler calls = %d, want 1", counts[CategoryPDF])
	}
	for _, category := range []Category{CategoryImage, CategorySpreadsheet, CategoryDocument} {
		if counts[category] != 0 {
			t.Fatalf("%s handler calls = %d, want 0", category, counts[category])
		}
	}
	if fallbackCalls != 0 {
		t.Fatalf("fallback calls = %d, want 0", fallbackCalls)
	}
}

// TestRouteUnsupportedWithoutFallback проверяет отказ для файла, которому не
// подходит ни одно правило, когда fallback не задан.
func TestRouteUnsupportedWithoutFallback(t *testing.T) {
	router := NewRouter()

	handled := 0
	router.Handle(CategoryPDF, func(file ImportFile) (ai.ExtractionRequest, error) {
		handled++
		return ai.ExtractionRequest{}, nil
	})

	_, err := router.Route(ImportFile{Name: "archive.zip", MIME: "application/zip"})
	if !errors.Is(err, ErrUnsupportedMimeType) {
		t.Fatalf("Route() error = %v, want ErrUnsupportedMimeType", err)
	}
	if handled != 0 {
		t.Fatalf("handler calls = %d, want 0", handled)
	}
}

// TestRouteFallback проверяет, что fallback вызывается ровно один раз и
// только когда нет подходящего обработчика.
func TestRouteFallback(t *testing.T) {
	router := NewRouter()

	fallbackCalls := 0
	router.Fallback(func(file ImportFile) (ai.ExtractionRequest, error) {
		fallbackCalls++
		return ai.ExtractionRequest{FileName: file.Name, Category: "fallback"}, nil
	})

	request, err := router.Route(ImportFile{Name: "notes.txt", MIME: "text/plain"})
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if request.Category != "fallback" {
		t.Fatalf("category = %q, want fallback", request.Category)
	}
	if fallbackCalls != 1 {
		t.Fatalf("fallback calls = %d, want 1", fallbackCalls)
	}

	// Известная категория без зарегистрированного обработчика тоже уходит
	// в fallback.
	if _, err := router.Route(ImportFile{Name: "plan.pdf", MIME: "application/pdf"}); err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if fallbackCalls != 2 {
		t.Fatalf("fallback calls = %d, want 2", fallbackCalls)
	}
}
