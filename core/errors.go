package core

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrUnauthenticated = errors.New("user not authenticated")
	ErrForbidden       = errors.New("permission denied")
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

func (err ValidationError) Unwrap() error { return err.Err }

// Kinds of CollaboratorError.
const (
	CollaboratorRateLimited     = "rate_limited"
	CollaboratorPaymentRequired = "payment_required"
	CollaboratorUnavailable     = "unavailable"
)

// CollaboratorError is returned when an external collaborator (the AI scorer, the letter drafter) fails.
type CollaboratorError struct {
	Kind    string
	Message string
	Err     error
}

func NewCollaboratorError(kind, msg string, err error) error {
	return &CollaboratorError{Kind: kind, Message: msg, Err: err}
}

func (err CollaboratorError) Error() string {
	if err.Message != "" {
		return err.Message
	}
	if err.Err != nil {
		return fmt.Sprintf("%s: %v", err.Kind, err.Err)
	}
	return err.Kind
}

func (err CollaboratorError) Unwrap() error { return err.Err }

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
