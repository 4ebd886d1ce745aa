package generic

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// PERIOD - Pay period boundary
// =============================================================================

// Period is a pay period covering the calendar days [Start, End], both inclusive.
// Hours are aggregated over the half-open instant range returned by Bounds.
//
// Examples:
//   - Biweekly: Mon 2024-01-01 - Sun 2024-01-14
//   - Semimonthly: 2024-02-16 - 2024-02-29
//   - Monthly: 2024-03-01 - 2024-03-31
type Period struct {
	Start Date
	End   Date
}

// Validate rejects periods whose end precedes their start.
func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return NewValidationError("period", "start and end are required")
	}
	if p.End.Before(p.Start) {
		return NewValidationError("period", fmt.Sprintf("end %s before start %s", p.End, p.Start))
	}
	return nil
}

// ID is the stable identifier used for pay periods in storage and the API.
func (p Period) ID() string {
	return p.Start.String() + "_" + p.End.String()
}

// ParsePeriodID is the inverse of Period.ID.
func ParsePeriodID(id string) (Period, error) {
	start, end, ok := strings.Cut(id, "_")
	if !ok {
		return Period{}, NewValidationError("pay_period_id", fmt.Sprintf("malformed %q", id))
	}
	s, err := ParseDate(start)
	if err != nil {
		return Period{}, NewValidationError("pay_period_id", err.Error())
	}
	e, err := ParseDate(end)
	if err != nil {
		return Period{}, NewValidationError("pay_period_id", err.Error())
	}
	p := Period{Start: s, End: e}
	return p, p.Validate()
}

// Contains returns true if the date is within the period [Start, End].
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Bounds returns the half-open instant range [start, end) of the period in loc.
func (p Period) Bounds(loc *time.Location) (time.Time, time.Time) {
	return p.Start.In(loc), p.End.AddDays(1).In(loc)
}

// Days returns all days in the period.
func (p Period) Days() []Date {
	var days []Date
	for current := p.Start; current.BeforeOrEqual(p.End); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// PeriodType defines how pay periods are laid out on the calendar.
type PeriodType string

const (
	PeriodWeekly      PeriodType = "weekly"      // 7 days from the anchor
	PeriodBiweekly    PeriodType = "biweekly"    // 14 days from the anchor
	PeriodSemimonthly PeriodType = "semimonthly" // 1st-15th, 16th-end of month
	PeriodMonthly     PeriodType = "monthly"     // calendar month
)

// ParsePeriodType maps a configuration string to a PeriodType.
func ParsePeriodType(s string) (PeriodType, error) {
	switch pt := PeriodType(strings.ToLower(strings.TrimSpace(s))); pt {
	case PeriodWeekly, PeriodBiweekly, PeriodSemimonthly, PeriodMonthly:
		return pt, nil
	default:
		return "", NewValidationError("pay_period", fmt.Sprintf("unknown pay period type %q", s))
	}
}

// PeriodConfig defines how to calculate pay periods.
type PeriodConfig struct {
	Type PeriodType

	// For weekly and biweekly: any date on which a period starts.
	Anchor Date
}

// =============================================================================
// PERIOD CALCULATOR - Determines which pay period a date falls into
// =============================================================================

// PeriodFor returns the pay period that contains the given date.
func (pc PeriodConfig) PeriodFor(date Date) Period {
	switch pc.Type {
	case PeriodWeekly:
		return pc.fixedLengthPeriod(date, 7)

	case PeriodBiweekly:
		return pc.fixedLengthPeriod(date, 14)

	case PeriodSemimonthly:
		if date.Day <= 15 {
			return Period{
				Start: Date{Year: date.Year, Month: date.Month, Day: 1},
				End:   Date{Year: date.Year, Month: date.Month, Day: 15},
			}
		}
		return Period{
			Start: Date{Year: date.Year, Month: date.Month, Day: 16},
			End:   Date{Year: date.Year, Month: date.Month, Day: DaysIn(date.Year, date.Month)},
		}

	default:
		return Period{
			Start: Date{Year: date.Year, Month: date.Month, Day: 1},
			End:   Date{Year: date.Year, Month: date.Month, Day: DaysIn(date.Year, date.Month)},
		}
	}
}

func (pc PeriodConfig) fixedLengthPeriod(date Date, length int) Period {
	anchor := pc.Anchor
	if anchor.IsZero() {
		// 2024-01-01 is a Monday
		anchor = NewDate(2024, time.January, 1)
	}
	offset := floorDiv(DaysBetween(anchor, date), length)
	start := anchor.AddDays(offset * length)
	return Period{Start: start, End: start.AddDays(length - 1)}
}

// Next returns the period following p.
func (pc PeriodConfig) Next(p Period) Period {
	return pc.PeriodFor(p.End.AddDays(1))
}

// Previous returns the period before p.
func (pc PeriodConfig) Previous(p Period) Period {
	return pc.PeriodFor(p.Start.AddDays(-1))
}
