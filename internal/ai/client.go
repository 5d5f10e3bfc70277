package ai

import (
	"context"
	"errors"
)

// Ошибки границы извлечения. Любая из них фатальна для одного файла,
// но не прерывает пакет импорта целиком.
var (
	ErrProviderFailure = errors.New("extraction provider failure")
	ErrEmptyResponse   = errors.New("extraction returned no usable content")
	ErrSchemaMismatch  = errors.New("extraction output does not match schema")
)

// Attachment содержит бинарное вложение к сообщению: изображение, PDF или документ.
type Attachment struct {
	MIME string
	Data []byte
}

type Message struct {
	Role        string
	Content     string
	Attachments []Attachment
}

// Client отправляет сообщения провайдеру и возвращает текст ответа вместе
// с сырым телом ответа для журнала запросов.
type Client interface {
	Chat(ctx context.Context, messages []Message) (string, []byte, error)
}

// FailureKind классифицирует ошибку извлечения для журнала запросов.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSchemaMismatch):
		return "schema_mismatch"
	case errors.Is(err, ErrEmptyResponse):
		return "empty_response"
	case errors.Is(err, ErrProviderFailure):
		return "provider_failure"
	default:
		return "unknown"
	}
}

func resolveMaxTokens(value int) int {
	if value > 0 {
		return value
	}

	return defaultMaxTokens
}
