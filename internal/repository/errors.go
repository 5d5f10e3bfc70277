package repository

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInvalid             = errors.New("invalid input")
	ErrInsufficientCredits = errors.New("insufficient credits")
)
