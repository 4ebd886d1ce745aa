/*
calculator.go - Time and pay calculation for one caregiver and pay period

PURPOSE:
  Pure function from EVV events to a TimeSheet. No I/O, no clock, no
  shared state: the same inputs always produce a bit-identical TimeSheet,
  so a pay period can be recalculated any number of times before approval
  without accumulating hours.

HOURS:
  Each complete event contributes its check-in..check-out span clipped to
  the period's [start, end) instants, in decimal hours (ms / 3,600,000).
  Total hours are rounded to 4 places before the regular/overtime split.

ANOMALIES:
  Bad events are excluded and reported, never summed and never fatal:
    checkout_before_checkin  check-out earlier than check-in
    missing_check_out        visit still open (zero contribution)
    missing_check_in         check-out without check-in

PAY:
  regular  = min(total, threshold)
  overtime = max(0, total - threshold)
  gross    = regular * rate + overtime * (overtime rate ?? rate * multiplier)
  each deduction = gross * its rate, rounded to cents
  net      = gross - sum(deductions)
*/
package payroll

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/care-engine/generic"
)

// Input is everything CalculateTimeSheet needs.
type Input struct {
	CaregiverID string
	Events      []EVVEvent
	Period      generic.Period
	Location    *time.Location // pay period boundaries are local midnights; nil = UTC
	Rates       Rates
	Deductions  DeductionRates
}

// CalculateTimeSheet computes a calculated (not approved) TimeSheet.
// Data anomalies are returned next to the result and also recorded on it.
func CalculateTimeSheet(in Input) (TimeSheet, []generic.DataAnomaly, error) {
	if err := in.Period.Validate(); err != nil {
		return TimeSheet{}, nil, err
	}
	if err := in.Rates.validate(); err != nil {
		return TimeSheet{}, nil, err
	}
	rates := in.Rates
	periodStart, periodEnd := in.Period.Bounds(in.Location)

	total, anomalies := sumHours(in.Events, periodStart, periodEnd)
	total = total.Round(4)

	regular := decimal.Min(total, rates.OvertimeThreshold)
	overtime := decimal.Max(decimal.Zero, total.Sub(rates.OvertimeThreshold))
	otRate := rates.overtimeRate()

	gross := generic.RoundCents(regular.Mul(rates.HourlyRate).Add(overtime.Mul(otRate)))
	deductions := deduct(gross, in.Deductions)

	payPeriodID := in.Period.ID()
	ts := TimeSheet{
		ID:            TimeSheetID(in.CaregiverID, payPeriodID),
		CaregiverID:   in.CaregiverID,
		PayPeriodID:   payPeriodID,
		Period:        in.Period,
		RegularHours:  regular,
		OvertimeHours: overtime,
		HourlyRate:    rates.HourlyRate,
		OvertimeRate:  otRate,
		GrossPay:      gross,
		Deductions:    deductions,
		NetPay:        gross.Sub(deductions.Total),
		Status:        StatusCalculated,
		Anomalies:     anomalies,
	}
	return ts, anomalies, nil
}

// Recalculate refreshes an existing timesheet. Approved timesheets are frozen.
// A nil existing sheet is a first calculation.
func Recalculate(existing *TimeSheet, in Input) (TimeSheet, []generic.DataAnomaly, error) {
	if existing != nil && existing.Status == StatusApproved {
		return TimeSheet{}, nil, &generic.InvalidStateError{From: string(existing.Status), Action: "recalculate"}
	}
	ts, anomalies, err := CalculateTimeSheet(in)
	if err != nil {
		return TimeSheet{}, nil, err
	}
	if existing != nil {
		ts.ID = existing.ID
	}
	return ts, anomalies, nil
}

// Approve freezes a calculated timesheet. Values are not recomputed.
func Approve(ts *TimeSheet, approver string, at time.Time) error {
	if ts.Status != StatusCalculated {
		return &generic.InvalidStateError{From: string(ts.Status), Action: "approve"}
	}
	if approver == "" {
		return generic.NewValidationError("approved_by", "required")
	}
	at = at.UTC()
	ts.Status = StatusApproved
	ts.ApprovedBy = approver
	ts.ApprovedAt = &at
	return nil
}

func sumHours(events []EVVEvent, periodStart, periodEnd time.Time) (decimal.Decimal, []generic.DataAnomaly) {
	sorted := make([]EVVEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := eventKey(sorted[i]), eventKey(sorted[j])
		if !a.Equal(b) {
			return a.Before(b)
		}
		return sorted[i].ID < sorted[j].ID
	})

	inPeriod := func(t time.Time) bool {
		return !t.Before(periodStart) && t.Before(periodEnd)
	}

	total := decimal.Zero
	anomalies := make([]generic.DataAnomaly, 0)
	for _, e := range sorted {
		switch {
		case e.CheckIn == nil && e.CheckOut == nil:
			continue

		case e.CheckIn == nil:
			if inPeriod(*e.CheckOut) {
				anomalies = append(anomalies, generic.DataAnomaly{
					Kind:    generic.AnomalyMissingCheckIn,
					EventID: e.ID,
					Message: fmt.Sprintf("check-out at %s has no check-in", e.CheckOut.UTC().Format(time.RFC3339)),
				})
			}

		case e.CheckOut == nil:
			if inPeriod(*e.CheckIn) {
				anomalies = append(anomalies, generic.DataAnomaly{
					Kind:    generic.AnomalyMissingCheckOut,
					EventID: e.ID,
					Message: fmt.Sprintf("check-in at %s has no check-out", e.CheckIn.UTC().Format(time.RFC3339)),
				})
			}

		case e.CheckOut.Before(*e.CheckIn):
			if inPeriod(*e.CheckIn) || inPeriod(*e.CheckOut) {
				anomalies = append(anomalies, generic.DataAnomaly{
					Kind:    generic.AnomalyCheckOutBeforeCheckIn,
					EventID: e.ID,
					Message: fmt.Sprintf("check-out %s is before check-in %s",
						e.CheckOut.UTC().Format(time.RFC3339), e.CheckIn.UTC().Format(time.RFC3339)),
				})
			}

		default:
			start, end := *e.CheckIn, *e.CheckOut
			if start.Before(periodStart) {
				start = periodStart
			}
			if end.After(periodEnd) {
				end = periodEnd
			}
			if end.After(start) {
				total = total.Add(generic.Hours(end.Sub(start)))
			}
		}
	}
	return total, anomalies
}

func eventKey(e EVVEvent) time.Time {
	switch {
	case e.CheckIn != nil:
		return *e.CheckIn
	case e.CheckOut != nil:
		return *e.CheckOut
	default:
		return time.Time{}
	}
}

func deduct(gross decimal.Decimal, rates DeductionRates) Deductions {
	d := Deductions{
		Federal:        generic.RoundCents(gross.Mul(rates.Federal)),
		State:          generic.RoundCents(gross.Mul(rates.State)),
		SocialSecurity: generic.RoundCents(gross.Mul(rates.SocialSecurity)),
		Medicare:       generic.RoundCents(gross.Mul(rates.Medicare)),
	}
	d.Total = d.Federal.Add(d.State).Add(d.SocialSecurity).Add(d.Medicare)
	return d
}
