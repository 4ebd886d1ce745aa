package schedule

import (
	"fmt"
	"time"

	"github.com/warp/care-engine/generic"
)

// =============================================================================
// LIFECYCLE - pause / resume / cancel
// =============================================================================

type action string

const (
	actionPause  action = "pause"
	actionResume action = "resume"
	actionCancel action = "cancel"
)

// transitions lists every legal move. Cancelled has no outgoing edges.
var transitions = map[Status]map[action]Status{
	StatusActive: {actionPause: StatusPaused, actionCancel: StatusCancelled},
	StatusPaused: {actionResume: StatusActive, actionCancel: StatusCancelled},
}

func (p *ScheduledPackage) transition(a action) error {
	next, ok := transitions[p.Status][a]
	if !ok {
		return &generic.InvalidStateError{From: string(p.Status), Action: string(a)}
	}
	p.Status = next
	return nil
}

// Pause suspends all occurrences until Resume.
func (p *ScheduledPackage) Pause() error { return p.transition(actionPause) }

// Resume reactivates a paused package. Fails after Cancel.
func (p *ScheduledPackage) Resume() error { return p.transition(actionResume) }

// Cancel is terminal.
func (p *ScheduledPackage) Cancel() error { return p.transition(actionCancel) }

// =============================================================================
// EXCEPTIONS - add / remove, all-or-nothing
// =============================================================================

// AddException records an override for date, replacing any existing one.
// On error p is left untouched.
func (p *ScheduledPackage) AddException(date generic.Date, act ExceptionAction, newStart *time.Time) error {
	if p.Status == StatusCancelled {
		return &generic.InvalidStateError{From: string(p.Status), Action: "add exception"}
	}
	if err := p.checkExceptionDate(date); err != nil {
		return err
	}
	if !IsOccurrenceDate(*p, date) {
		return generic.NewValidationError("date", fmt.Sprintf("%s is not a scheduled occurrence", date))
	}

	exc := Exception{Date: date, Action: act}
	switch act {
	case ActionSkip:
	case ActionReschedule:
		if newStart == nil || newStart.IsZero() {
			return generic.NewValidationError("new_date_time", "required for reschedule")
		}
		if err := p.checkRescheduleTarget(date, *newStart); err != nil {
			return err
		}
		at := *newStart
		exc.NewStart = &at
	default:
		return generic.NewValidationError("action", fmt.Sprintf("unknown action %q", act))
	}

	exceptions := p.cloneExceptions()
	exceptions[date] = exc
	p.Exceptions = exceptions
	return nil
}

// RemoveException drops the override for date. Removing an absent exception is a no-op.
func (p *ScheduledPackage) RemoveException(date generic.Date) error {
	if p.Status == StatusCancelled {
		return &generic.InvalidStateError{From: string(p.Status), Action: "remove exception"}
	}
	if err := p.checkExceptionDate(date); err != nil {
		return err
	}
	if _, ok := p.Exceptions[date]; !ok {
		return nil
	}
	for d, other := range p.Exceptions {
		if d == date || other.Action != ActionReschedule || other.NewStart == nil {
			continue
		}
		if generic.DateOf(other.NewStart.In(p.location())) == date {
			return generic.NewValidationError("date",
				fmt.Sprintf("the visit rescheduled from %s lands on %s", d, date))
		}
	}
	exceptions := p.cloneExceptions()
	delete(exceptions, date)
	p.Exceptions = exceptions
	return nil
}

func (p *ScheduledPackage) checkExceptionDate(date generic.Date) error {
	if date.IsZero() {
		return generic.NewValidationError("date", "required")
	}
	if !p.inRange(date) {
		end := "open"
		if p.EndDate != nil {
			end = p.EndDate.String()
		}
		return generic.NewValidationError("date",
			fmt.Sprintf("%s outside schedule range [%s, %s]", date, p.StartDate, end))
	}
	return nil
}

// checkRescheduleTarget rejects a reschedule that would put two visits on one day.
func (p *ScheduledPackage) checkRescheduleTarget(date generic.Date, newStart time.Time) error {
	target := generic.DateOf(newStart.In(p.location()))
	if target != date {
		if _, overridden := p.Exceptions[target]; !overridden && IsOccurrenceDate(*p, target) {
			return generic.NewValidationError("new_date_time",
				fmt.Sprintf("%s already has a scheduled occurrence", target))
		}
	}
	for d, other := range p.Exceptions {
		if d == date || other.Action != ActionReschedule || other.NewStart == nil {
			continue
		}
		if generic.DateOf(other.NewStart.In(p.location())) == target {
			return generic.NewValidationError("new_date_time",
				fmt.Sprintf("%s already receives the visit rescheduled from %s", target, d))
		}
	}
	return nil
}
