package services

import (
	"errors"
	"fmt"

	"github.com/taskhub/apiserver/internal/store"
)

var (
	// ErrInvalidCredentials is returned by Login for an unknown email or a
	// wrong password. The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrEmailTaken is returned when another account already uses the email.
	ErrEmailTaken = errors.New("email already registered")

	// ErrNoTasks is returned when a listing matches no task. It wraps
	// store.ErrNotFound.
	ErrNoTasks = fmt.Errorf("no tasks yet: %w", store.ErrNotFound)

	// ErrStorageDisabled is returned by avatar operations when no object
	// storage backend is configured.
	ErrStorageDisabled = errors.New("avatar storage is not configured")
)

// ValidationError reports bad or missing caller input. It is always returned
// before any mutation happens.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalidf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
