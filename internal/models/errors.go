package models

import "errors"

// Terminal failure reasons surfaced by the core. The api layer maps these to
// transport status codes with errors.Is; services wrap them with context via
// fmt.Errorf("...: %w", ...).
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
	ErrConflict   = errors.New("conflict")
)
