package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConfig       = errors.New("configuration error")
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrTemporary    = errors.New("temporary failure")
	ErrExternal     = errors.New("external collaborator failure")
	ErrUnavailable  = errors.New("unavailable")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// StageError reports a failed external collaborator call.
// It matches ErrExternal as well as the underlying cause.
type StageError struct {
	Stage string
	Input string
	Err   error
}

func (e *StageError) Error() string {
	if e.Input == "" {
		return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("stage %s (input %q): %v", e.Stage, e.Input, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{ErrExternal, e.Err}
}

// ExternalFailure wraps err as a StageError. Input is truncated for logs.
func ExternalFailure(stage, input string, err error) error {
	if err == nil {
		return nil
	}
	const maxInput = 120
	if len(input) > maxInput {
		input = input[:maxInput] + "..."
	}
	return &StageError{Stage: stage, Input: input, Err: err}
}
