package service

import (
	"errors"
	"fmt"

	"tablebook/internal/database"
)

var (
	// ErrNotFound is returned for unknown reservations.
	ErrNotFound = database.ErrNotFound
	// ErrNotLoaded is returned before the first successful Reload.
	ErrNotLoaded = errors.New("configuration not loaded")
	// ErrTerminalStatus is returned when changing a cancelled or no-show reservation.
	ErrTerminalStatus = errors.New("reservation status is final")
	// ErrTablesUnavailable is returned when a requested table is busy, inactive or in another area.
	ErrTablesUnavailable = errors.New("tables unavailable")
)

// ValidationError reports bad input at the service boundary.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
