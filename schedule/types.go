// Package schedule implements recurring scheduled packages: recurrence rules,
// per-date exceptions, pause/resume/cancel lifecycle and occurrence expansion.
package schedule

import (
	"maps"
	"time"

	"github.com/warp/care-engine/generic"
)

// =============================================================================
// SCHEDULED PACKAGE - Recurrence rule for a customer's care package
// =============================================================================

// ScheduledPackage is a recurring visit rule. It is a value type: the
// mutating methods validate first and replace Exceptions copy-on-write,
// so copies handed to Occurrences never observe a later change.
type ScheduledPackage struct {
	ID          string
	CustomerID  string
	PackageID   string
	CaregiverID string

	Frequency Frequency
	StartDate generic.Date
	EndDate   *generic.Date // inclusive; nil = open ended
	Time      generic.TimeOfDay
	Location  *time.Location // nil = UTC

	Status     Status
	Exceptions map[generic.Date]Exception
}

// Status is the lifecycle state of a scheduled package.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
)

// ParseStatus maps a wire string to a Status. Empty means active.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case "":
		return StatusActive, nil
	case StatusActive, StatusPaused, StatusCancelled:
		return st, nil
	default:
		return "", generic.NewValidationError("status", "unknown status "+s)
	}
}

// =============================================================================
// EXCEPTIONS - Per-date overrides
// =============================================================================

type ExceptionAction string

const (
	ActionSkip       ExceptionAction = "skip"
	ActionReschedule ExceptionAction = "reschedule"
)

// Exception overrides the occurrence generated on Date.
type Exception struct {
	Date     generic.Date
	Action   ExceptionAction
	NewStart *time.Time // required for reschedule
}

// =============================================================================
// OCCURRENCE - Derived, never stored
// =============================================================================

// Occurrence is one concrete visit generated from a ScheduledPackage.
type Occurrence struct {
	ScheduledPackageID string       `json:"scheduled_package_id"`
	Date               generic.Date `json:"date"`
	OriginalDate       generic.Date `json:"original_date"`
	Start              time.Time    `json:"start_date_time"`
	End                time.Time    `json:"end_date_time"`
	IsException        bool         `json:"is_exception"`
}

// Validate checks the rule's own invariants.
func (p ScheduledPackage) Validate() error {
	if p.Frequency == nil {
		return generic.NewValidationError("frequency", "required")
	}
	if err := p.Frequency.validate(); err != nil {
		return err
	}
	if p.StartDate.IsZero() {
		return generic.NewValidationError("start_date", "required")
	}
	if p.EndDate != nil && p.EndDate.Before(p.StartDate) {
		return generic.NewValidationError("end_date", "must not be before start_date")
	}
	if p.Time.Duration <= 0 {
		return generic.NewValidationError("duration", "must be positive")
	}
	if p.Time.Hour < 0 || p.Time.Hour > 23 || p.Time.Minute < 0 || p.Time.Minute > 59 {
		return generic.NewValidationError("start_time", "out of range")
	}
	return nil
}

func (p ScheduledPackage) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// inRange reports whether d lies within [StartDate, EndDate ?? +inf].
func (p ScheduledPackage) inRange(d generic.Date) bool {
	if d.Before(p.StartDate) {
		return false
	}
	return p.EndDate == nil || !d.After(*p.EndDate)
}

func (p ScheduledPackage) cloneExceptions() map[generic.Date]Exception {
	if p.Exceptions == nil {
		return make(map[generic.Date]Exception)
	}
	return maps.Clone(p.Exceptions)
}
