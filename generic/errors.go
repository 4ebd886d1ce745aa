/*
errors.go - Centralized error types for the care engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages return these (or wrap them) so the API layer can map
  them to HTTP statuses with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Validation errors - Bad input (exception date out of range, end before start)
  2. State errors - Illegal lifecycle transition (resume after cancel)
  3. Data anomalies - Non-fatal problems in input data (checkout before checkin).
     These are RETURNED alongside a result, never raised.

USAGE:
  if errors.Is(err, generic.ErrInvalidState) {
      // 409 Conflict
  }

  var verr *generic.ValidationError
  if errors.As(err, &verr) {
      log.Printf("bad field %s", verr.Field)
  }
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidState is the root of every *InvalidStateError.
	ErrInvalidState = errors.New("invalid state transition")

	// ErrNotFound is returned by stores when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes rejected input. Nothing is mutated when it is returned.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// InvalidStateError describes an action that is not allowed from the current state.
type InvalidStateError struct {
	From   string // current state, e.g. "cancelled"
	Action string // attempted action, e.g. "resume"
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s from state %s", e.Action, e.From)
}

func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

// =============================================================================
// DATA ANOMALIES - Reported, not thrown
// =============================================================================

// AnomalyKind classifies a DataAnomaly.
type AnomalyKind string

const (
	AnomalyCheckOutBeforeCheckIn AnomalyKind = "checkout_before_checkin"
	AnomalyMissingCheckOut       AnomalyKind = "missing_check_out"
	AnomalyMissingCheckIn        AnomalyKind = "missing_check_in"
)

// DataAnomaly flags an input record that was excluded from a calculation.
// It implements error so callers can log it, but calculations return
// anomalies next to their result instead of failing.
type DataAnomaly struct {
	Kind    AnomalyKind `json:"kind"`
	EventID string      `json:"event_id"`
	Message string      `json:"message"`
}

func (a DataAnomaly) Error() string {
	return fmt.Sprintf("%s (event %s): %s", a.Kind, a.EventID, a.Message)
}
