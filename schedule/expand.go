/*
expand.go - Occurrence expansion for scheduled packages

PURPOSE:
  Turns a recurrence rule into the concrete visits inside a query window.
  Occurrences are never stored; every query recomputes them from the rule.

ALGORITHM:
  1. Clamp the window: lower = max(StartDate, from), upper = min(EndDate ?? to, to)
  2. Jump to the first candidate index near lower (Frequency.floorIndex)
  3. Walk candidates by index until past upper
  4. Per candidate date:
       skip exception       -> omit
       reschedule exception -> emit at NewStart, IsException = true
       otherwise            -> emit at the rule's time of day
  5. Sort globally by start time (a reschedule can move a visit past its neighbours)

WINDOW MEMBERSHIP:
  A candidate belongs to a window by its ORIGINAL date, even when it is
  rescheduled elsewhere. Splitting [from, to] at any mid date therefore
  yields the same occurrences as querying it whole.

STATUS:
  Paused and cancelled packages produce no occurrences. Pause is
  indefinite: nothing is generated until Resume.
*/
package schedule

import (
	"fmt"
	"sort"

	"github.com/warp/care-engine/generic"
)

// Occurrences returns the visits p generates whose original date lies in
// [from, to], sorted ascending by start time. It does not modify p.
func Occurrences(p ScheduledPackage, from, to generic.Date) ([]Occurrence, error) {
	if to.Before(from) {
		return nil, generic.NewValidationError("window", fmt.Sprintf("to %s before from %s", to, from))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	occurrences := make([]Occurrence, 0)
	if p.Status != StatusActive {
		return occurrences, nil
	}

	loc := p.location()
	p.eachDate(from, to, func(d generic.Date) {
		exc, ok := p.Exceptions[d]
		switch {
		case ok && exc.Action == ActionSkip:
			return
		case ok && exc.Action == ActionReschedule && exc.NewStart != nil:
			start := exc.NewStart.In(loc)
			occurrences = append(occurrences, Occurrence{
				ScheduledPackageID: p.ID,
				Date:               generic.DateOf(start),
				OriginalDate:       d,
				Start:              start,
				End:                start.Add(p.Time.Duration),
				IsException:        true,
			})
		default:
			start := d.At(loc, p.Time)
			occurrences = append(occurrences, Occurrence{
				ScheduledPackageID: p.ID,
				Date:               d,
				OriginalDate:       d,
				Start:              start,
				End:                start.Add(p.Time.Duration),
			})
		}
	})

	sort.SliceStable(occurrences, func(i, j int) bool {
		if !occurrences[i].Start.Equal(occurrences[j].Start) {
			return occurrences[i].Start.Before(occurrences[j].Start)
		}
		return occurrences[i].OriginalDate.Before(occurrences[j].OriginalDate)
	})
	return occurrences, nil
}

// IsOccurrenceDate reports whether the rule's cadence generates d, ignoring
// status and exceptions.
func IsOccurrenceDate(p ScheduledPackage, d generic.Date) bool {
	if p.Frequency == nil || !p.inRange(d) {
		return false
	}
	found := false
	p.eachDate(d, d, func(generic.Date) { found = true })
	return found
}

// eachDate calls fn for every cadence date in [max(StartDate, from), min(EndDate ?? to, to)].
func (p ScheduledPackage) eachDate(from, to generic.Date, fn func(generic.Date)) {
	lower := generic.MaxDate(p.StartDate, from)
	upper := to
	if p.EndDate != nil {
		upper = generic.MinDate(*p.EndDate, to)
	}
	if lower.After(upper) {
		return
	}

	n := p.Frequency.floorIndex(p.StartDate, lower)
	if n < 0 {
		n = 0
	}
	for {
		d := p.Frequency.nth(p.StartDate, n)
		if d.After(upper) {
			return
		}
		if !d.Before(lower) {
			fn(d)
		}
		n++
	}
}
