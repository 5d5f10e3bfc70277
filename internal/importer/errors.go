package importer

import "errors"

// Ошибки уровня запуска импорта. Ошибки извлечения определены в пакете ai,
// нехватка кредитов в repository.
var (
	ErrValidation          = errors.New("import validation failed")
	ErrUnsupportedMimeType = errors.New("unsupported mime type")
	ErrAllFilesFailed      = errors.New("no files could be processed")
	ErrConversion          = errors.New("draft conversion failed")
	ErrPersistence         = errors.New("plan persistence failed")
	ErrNotReviewing        = errors.New("import job is not waiting for review")
	ErrAlreadyFinished     = errors.New("import job already finished")
)

// errReviewPause сигнализирует приостановку конвейера для ручной проверки.
// Это не ошибка запуска: задание остается в статусе reviewing.
var errReviewPause = errors.New("import paused for review")
