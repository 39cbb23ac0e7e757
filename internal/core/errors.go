package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write would violate a uniqueness rule,
	// e.g. a second materialized instance for the same match key.
	ErrConflict = errors.New("conflict")
	// ErrInvalidTemplate marks a recurring template whose state cannot
	// produce occurrences (missing anchor date, day out of range).
	ErrInvalidTemplate = errors.New("invalid recurring template")
)

type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func NewValidationError(msg string) error {
	return &ValidationError{Msg: msg}
}

func IsValidationError(err error) bool {
	var validationError *ValidationError
	return errors.As(err, &validationError)
}

// ValidationErrors collects several validation problems into one error.
type ValidationErrors struct {
	Errors []error
}

func (ve *ValidationErrors) Error() string {
	msgs := make([]string, len(ve.Errors))
	for i, err := range ve.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("multiple validation errors: %s", strings.Join(msgs, "; "))
}

func (ve *ValidationErrors) Add(err error) {
	ve.Errors = append(ve.Errors, err)
}

// ErrOrNil returns ve when it holds at least one error.
func (ve *ValidationErrors) ErrOrNil() error {
	if len(ve.Errors) == 0 {
		return nil
	}
	return ve
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (ve *ValidationErrors) Unwrap() []error {
	return ve.Errors
}
