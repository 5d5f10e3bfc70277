package config

import (
	"reflect"
	"testing"
)

// TestParseCSVEnv проверяет разбор списка email из ENV.
func TestParseCSVEnv(t *testing.T) {
	t.Setenv("ADMIN_EMAILS", " Admin@example.com, ,USER@Example.com ")

	got := parseCSVEnv("ADMIN_EMAILS")
	want := []string{"admin@example.com", "user@example.com"}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

// TestParseCSVEnvMissing проверяет поведение при отсутствии переменной.
func TestParseCSVEnvMissing(t *testing.T) {
	got := parseCSVEnv("MISSING_ENV")
	if got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

// TestParseFloatEnv проверяет разбор порога сопоставления из ENV.
func TestParseFloatEnv(t *testing.T) {
	t.Setenv("IMPORT_MATCH_THRESHOLD", "0.85")

	got, err := parseFloatEnv("IMPORT_MATCH_THRESHOLD", 0.7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0.85 {
		t.Fatalf("expected 0.85, got %v", got)
	}
}

// TestParseFloatEnvFallback проверяет значение по умолчанию.
func TestParseFloatEnvFallback(t *testing.T) {
	got, err := parseFloatEnv("MISSING_THRESHOLD", 0.7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0.7 {
		t.Fatalf("expected fallback 0.7, got %v", got)
	}
}

// TestParseFloatEnvInvalid проверяет ошибку при некорректном значении.
func TestParseFloatEnvInvalid(t *testing.T) {
	t.Setenv("IMPORT_MATCH_THRESHOLD", "high")

	if _, err := parseFloatEnv("IMPORT_MATCH_THRESHOLD", 0.7); err == nil {
		t.Fatalf("expected error for non-numeric value")
	}
}
