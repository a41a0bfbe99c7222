package auth

import (
	"errors"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("resource conflict")
	ErrExpired      = errors.New("token expired")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidToken indicates a session token failed validation.
	ErrInvalidToken = errors.New("invalid token")
)

// ValidationError collects every policy violation instead of stopping at the
// first, so callers can show the full list at once.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	return "validation failed: " + strings.Join(e.Errors, "; ")
}
