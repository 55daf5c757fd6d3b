package service

import "errors"

var (
	// ErrNotFound means no todo matches the requested id for the requesting user.
	ErrNotFound = errors.New("todo not found")

	// ErrStore wraps any failure reported by the repository. Its detail is
	// meant for logs, not for clients.
	ErrStore = errors.New("todo store failure")
)

// ValidationError reports caller input that was rejected before any store
// access. Message is safe to return to clients.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
