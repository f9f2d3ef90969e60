package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when the requested row does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique value is already taken
	ErrConflict = errors.New("conflict")
	// ErrForbiddenSelf is returned when an admin acts on their own account or address
	ErrForbiddenSelf = errors.New("operation not allowed on your own account")
	// ErrInvalidState is returned when a request is not in a state that allows the transition
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidInput is returned when caller supplied values fail validation
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidCredentials hides whether the username or the password was wrong
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// notFound maps gorm's record-not-found to ErrNotFound and wraps anything else
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

func invalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
