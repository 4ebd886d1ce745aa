package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/warp/care-engine/generic"
)

// =============================================================================
// WIRE RECORD - snake_case JSON shape used by the REST API and storage
// =============================================================================

// Record is the persisted/wire form of a ScheduledPackage.
type Record struct {
	ID              string            `json:"id"`
	CustomerID      string            `json:"customer_id"`
	PackageID       string            `json:"package_id"`
	CaregiverID     string            `json:"caregiver_id"`
	Frequency       string            `json:"frequency"`
	IntervalDays    int               `json:"interval_days,omitempty"`
	StartDate       generic.Date      `json:"start_date"`
	EndDate         *generic.Date     `json:"end_date,omitempty"`
	StartTime       string            `json:"start_time"`
	DurationMinutes int               `json:"duration_minutes"`
	Timezone        string            `json:"timezone,omitempty"`
	Status          string            `json:"status"`
	Exceptions      []ExceptionRecord `json:"exceptions"`
}

// ExceptionRecord is the wire form of an Exception.
type ExceptionRecord struct {
	Date        generic.Date `json:"date"`
	Action      string       `json:"action"`
	NewDateTime *time.Time   `json:"new_date_time,omitempty"`
}

// ToRecord converts p to its wire form. Exceptions are ordered by date.
func ToRecord(p ScheduledPackage) Record {
	r := Record{
		ID:              p.ID,
		CustomerID:      p.CustomerID,
		PackageID:       p.PackageID,
		CaregiverID:     p.CaregiverID,
		StartDate:       p.StartDate,
		EndDate:         p.EndDate,
		StartTime:       p.Time.Clock(),
		DurationMinutes: int(p.Time.Duration / time.Minute),
		Status:          string(p.Status),
		Exceptions:      make([]ExceptionRecord, 0, len(p.Exceptions)),
	}
	if p.Frequency != nil {
		r.Frequency = p.Frequency.Name()
		if c, ok := p.Frequency.(Custom); ok {
			r.IntervalDays = c.IntervalDays
		}
	}
	if p.Location != nil && p.Location != time.UTC {
		r.Timezone = p.Location.String()
	}
	for _, exc := range p.Exceptions {
		r.Exceptions = append(r.Exceptions, ExceptionRecord{
			Date:        exc.Date,
			Action:      string(exc.Action),
			NewDateTime: exc.NewStart,
		})
	}
	sort.Slice(r.Exceptions, func(i, j int) bool {
		return r.Exceptions[i].Date.Before(r.Exceptions[j].Date)
	})
	return r
}

// FromRecord parses and validates a wire record.
func FromRecord(r Record) (ScheduledPackage, error) {
	freq, err := ParseFrequency(r.Frequency, r.IntervalDays)
	if err != nil {
		return ScheduledPackage{}, err
	}
	tod, err := generic.ParseClock(r.StartTime, time.Duration(r.DurationMinutes)*time.Minute)
	if err != nil {
		return ScheduledPackage{}, generic.NewValidationError("start_time", err.Error())
	}
	status, err := ParseStatus(r.Status)
	if err != nil {
		return ScheduledPackage{}, err
	}
	loc := time.UTC
	if r.Timezone != "" {
		loc, err = time.LoadLocation(r.Timezone)
		if err != nil {
			return ScheduledPackage{}, generic.NewValidationError("timezone", err.Error())
		}
	}

	p := ScheduledPackage{
		ID:          r.ID,
		CustomerID:  r.CustomerID,
		PackageID:   r.PackageID,
		CaregiverID: r.CaregiverID,
		Frequency:   freq,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		Time:        tod,
		Location:    loc,
		Status:      status,
		Exceptions:  make(map[generic.Date]Exception, len(r.Exceptions)),
	}
	if err := p.Validate(); err != nil {
		return ScheduledPackage{}, err
	}

	for _, er := range r.Exceptions {
		act := ExceptionAction(er.Action)
		if act != ActionSkip && act != ActionReschedule {
			return ScheduledPackage{}, generic.NewValidationError("exceptions",
				fmt.Sprintf("unknown action %q on %s", er.Action, er.Date))
		}
		if act == ActionReschedule && er.NewDateTime == nil {
			return ScheduledPackage{}, generic.NewValidationError("exceptions",
				fmt.Sprintf("reschedule on %s needs new_date_time", er.Date))
		}
		p.Exceptions[er.Date] = Exception{Date: er.Date, Action: act, NewStart: er.NewDateTime}
	}
	return p, nil
}
