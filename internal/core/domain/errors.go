package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConfigNotFound    = errors.New("config not found")
	ErrRunNotFound       = errors.New("run not found")
	ErrForbidden         = errors.New("forbidden")
	ErrBadClassification = errors.New("bad classification")
	ErrInvalidStatus     = errors.New("invalid status json")
	ErrInvalidInput      = errors.New("invalid input")
	ErrTemporary         = errors.New("temporary failure")
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
