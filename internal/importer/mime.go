package importer

import (
	"fmt"
	"strings"

	"example.com/ai-plan-importer/backend/internal/ai"
)

// Category задает категорию обработки входного файла.
type Category string

const (
	CategoryImage       Category = "image"
	CategoryPDF         Category = "pdf"
	CategorySpreadsheet Category = "spreadsheet"
	CategoryDocument    Category = "document"
)

type mimeRule struct {
	prefix   bool
	pattern  string
	category Category
}

// Фиксированная таблица правил: префиксные и точные соответствия
// заявленного MIME-типа.
var mimeRules = []mimeRule{
	{prefix: true, pattern: "image/", category: CategoryImage},
	{pattern: "application/pdf", category: CategoryPDF},
	{pattern: "text/csv", category: CategorySpreadsheet},
	{pattern: "application/vnd.ms-excel", category: CategorySpreadsheet},
	{pattern: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", category: CategorySpreadsheet},
	{pattern: "application/msword", category: CategoryDocument},
	{pattern: "application/vnd.openxmlformats-officedocument.wordprocessingml.document", category: CategoryDocument},
}

// RouteHandler готовит запрос на извлечение для файла своей категории.
type RouteHandler func(file ImportFile) (ai.ExtractionRequest, error)

// Router выбирает обработчик по заявленному MIME-типу файла.
type Router struct {
	handlers map[Category]RouteHandler
	fallback RouteHandler
}

// NewRouter создает маршрутизатор без обработчиков.
func NewRouter() *Router {
	return &Router{handlers: make(map[Category]RouteHandler)}
}

// Handle регистрирует обработчик категории.
func (r *Router) Handle(category Category, handler RouteHandler) {
	r.handlers[category] = handler
}

// Fallback регистрирует обработчик для файлов без подходящего правила.
func (r *Router) Fallback(handler RouteHandler) {
	r.fallback = handler
}

// Route классифицирует файл и вызывает ровно один обработчик. Если правило
// не подобрано и fallback не задан, возвращает ErrUnsupportedMimeType.
func (r *Router) Route(file ImportFile) (ai.ExtractionRequest, error) {
	if category, ok := classifyMime(file.MIME); ok {
		if handler, exists := r.handlers[category]; exists {
			return handler(file)
		}
	}

	if r.fallback != nil {
		return r.fallback(file)
	}

	return ai.ExtractionRequest{}, fmt.Errorf("%w: %s", ErrUnsupportedMimeType, file.MIME)
}

func classifyMime(declared string) (Category, bool) {
	mime := strings.ToLower(strings.TrimSpace(declared))
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = strings.TrimSpace(mime[:idx])
	}

	for _, rule := range mimeRules {
		if rule.prefix {
			if strings.HasPrefix(mime, rule.pattern) {
				return rule.category, true
			}
			continue
		}
		if mime == rule.pattern {
			return rule.category, true
		}
	}

	return "", false
}
