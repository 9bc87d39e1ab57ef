package metadata

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingDate is returned by Date when no override was supplied and the
// header has no usable DATE_OBS tag.
var ErrMissingDate = errors.New("metadata: missing observation date")

// Causes carried by a MissingTagError for values that parse but cannot be used.
var (
	ErrNotFinite   = errors.New("value is not finite")
	ErrZeroValue   = errors.New("value must be non-zero")
	ErrNotPositive = errors.New("value must be positive")
)

// MissingTagError reports a required header tag that is absent or whose
// value cannot be used as a number.
type MissingTagError struct {
	Tag   string
	Value string // raw value when present but unusable
	Err   error
}

func (e *MissingTagError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("metadata: tag %s has unusable value %q: %v", e.Tag, e.Value, e.Err)
	}
	return fmt.Sprintf("metadata: required tag %s is missing", e.Tag)
}

func (e *MissingTagError) Unwrap() error {
	return e.Err
}

// ComputationError reports that every fallback for a derived quantity failed.
// Causes holds one error per attempted tier, in order.
type ComputationError struct {
	Quantity string
	Causes   []error
}

func (e *ComputationError) Error() string {
	parts := make([]string, len(e.Causes))
	for i, c := range e.Causes {
		parts[i] = c.Error()
	}
	return fmt.Sprintf("metadata: cannot compute %s: %s", e.Quantity, strings.Join(parts, "; "))
}

func (e *ComputationError) Unwrap() []error {
	return e.Causes
}
