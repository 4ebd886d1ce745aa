package schedule

import (
	"fmt"

	"github.com/warp/care-engine/generic"
)

// =============================================================================
// FREQUENCY - Tagged variant, one increment function per tag
// =============================================================================

// Frequency is the cadence of a scheduled package. The set of tags is closed:
// only Daily, Weekly, Biweekly, Monthly and Custom implement it.
//
// Occurrences are always computed from the anchor (the rule's start date) by
// index, never by repeatedly stepping from the previous occurrence. That keeps
// monthly clamping from drifting (Jan 31 -> Feb 29 -> Mar 31, not Mar 29).
type Frequency interface {
	// Name is the wire name: daily, weekly, biweekly, monthly or custom.
	Name() string

	// nth returns the n-th occurrence date (n >= 0) counted from anchor.
	nth(anchor generic.Date, n int) generic.Date

	// floorIndex returns an index whose occurrence is on or before d.
	// It may undershoot; callers step forward from it.
	floorIndex(anchor, d generic.Date) int

	validate() error
}

type Daily struct{}
type Weekly struct{}
type Biweekly struct{}
type Monthly struct{}

// Custom repeats every IntervalDays days.
type Custom struct {
	IntervalDays int
}

var (
	_ Frequency = Daily{}
	_ Frequency = Weekly{}
	_ Frequency = Biweekly{}
	_ Frequency = Monthly{}
	_ Frequency = Custom{}
)

func (Daily) Name() string    { return "daily" }
func (Weekly) Name() string   { return "weekly" }
func (Biweekly) Name() string { return "biweekly" }
func (Monthly) Name() string  { return "monthly" }
func (Custom) Name() string   { return "custom" }

func (Daily) nth(anchor generic.Date, n int) generic.Date    { return anchor.AddDays(n) }
func (Weekly) nth(anchor generic.Date, n int) generic.Date   { return anchor.AddDays(7 * n) }
func (Biweekly) nth(anchor generic.Date, n int) generic.Date { return anchor.AddDays(14 * n) }
func (Monthly) nth(anchor generic.Date, n int) generic.Date  { return anchor.AddMonthsClamped(n) }
func (c Custom) nth(anchor generic.Date, n int) generic.Date {
	return anchor.AddDays(c.IntervalDays * n)
}

func (Daily) floorIndex(anchor, d generic.Date) int    { return stepIndex(anchor, d, 1) }
func (Weekly) floorIndex(anchor, d generic.Date) int   { return stepIndex(anchor, d, 7) }
func (Biweekly) floorIndex(anchor, d generic.Date) int { return stepIndex(anchor, d, 14) }
func (c Custom) floorIndex(anchor, d generic.Date) int {
	return stepIndex(anchor, d, c.IntervalDays)
}

func (Monthly) floorIndex(anchor, d generic.Date) int {
	months := (d.Year-anchor.Year)*12 + int(d.Month) - int(anchor.Month)
	// The clamped occurrence in d's month may still fall after d.
	return months - 1
}

func (Daily) validate() error    { return nil }
func (Weekly) validate() error   { return nil }
func (Biweekly) validate() error { return nil }
func (Monthly) validate() error  { return nil }
func (c Custom) validate() error {
	if c.IntervalDays < 1 {
		return generic.NewValidationError("interval_days", "custom frequency needs an interval of at least one day")
	}
	return nil
}

func stepIndex(anchor, d generic.Date, step int) int {
	if step < 1 {
		return 0
	}
	days := generic.DaysBetween(anchor, d)
	if days < 0 {
		return 0
	}
	return days / step
}

// ParseFrequency maps a wire name to its Frequency tag.
// intervalDays is only used by "custom".
func ParseFrequency(name string, intervalDays int) (Frequency, error) {
	var f Frequency
	switch name {
	case "daily":
		f = Daily{}
	case "weekly":
		f = Weekly{}
	case "biweekly":
		f = Biweekly{}
	case "monthly":
		f = Monthly{}
	case "custom":
		f = Custom{IntervalDays: intervalDays}
	default:
		return nil, generic.NewValidationError("frequency", fmt.Sprintf("unknown frequency %q", name))
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return f, nil
}
