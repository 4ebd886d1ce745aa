/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Field names follow
  the snake_case convention the front end already uses for persisted
  records (check_in_time, caregiver_id, ...).

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Validation is done in handlers and domain packages, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
  - schedule/record.go: Wire form of scheduled packages
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/care-engine/generic"
	"github.com/warp/care-engine/payroll"
	"github.com/warp/care-engine/schedule"
)

// =============================================================================
// SCHEDULED PACKAGES
// =============================================================================

// ScheduledPackageDTO is the wire form of a scheduled package.
type ScheduledPackageDTO = schedule.Record

// AddExceptionRequest adds or replaces the exception for a date.
type AddExceptionRequest struct {
	Date        string     `json:"date"`
	Action      string     `json:"action"`
	NewDateTime *time.Time `json:"new_date_time,omitempty"`
}

// OccurrencesResponse lists the expanded visits of a package.
type OccurrencesResponse struct {
	ScheduledPackageID string                `json:"scheduled_package_id"`
	From               string                `json:"from"`
	To                 string                `json:"to"`
	Occurrences        []schedule.Occurrence `json:"occurrences"`
}

// =============================================================================
// EVV & PAY RATES
// =============================================================================

// EVVEventRequest records a check-in and/or check-out.
type EVVEventRequest struct {
	ID            string     `json:"id,omitempty"`
	CaregiverID   string     `json:"caregiver_id"`
	AppointmentID string     `json:"appointment_id,omitempty"`
	CheckInTime   *time.Time `json:"check_in_time"`
	CheckOutTime  *time.Time `json:"check_out_time"`
}

// PayRateRequest sets a caregiver's pay. Numbers or numeric strings are accepted.
type PayRateRequest struct {
	HourlyRate   decimal.Decimal  `json:"hourly_rate"`
	OvertimeRate *decimal.Decimal `json:"overtime_rate,omitempty"`
}

// =============================================================================
// TIMESHEETS & PAY RUNS
// =============================================================================

// CalculateRequest selects the pay period containing Date (default: today).
type CalculateRequest struct {
	Date string `json:"date,omitempty"`
}

// ApproveRequest approves a timesheet.
type ApproveRequest struct {
	ApprovedBy string `json:"approved_by"`
}

// TimeSheetDTO is a timesheet with its period bounds spelled out.
type TimeSheetDTO struct {
	payroll.TimeSheet
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
}

func toTimeSheetDTO(ts payroll.TimeSheet) TimeSheetDTO {
	if ts.Anomalies == nil {
		ts.Anomalies = []generic.DataAnomaly{}
	}
	return TimeSheetDTO{
		TimeSheet:   ts,
		PeriodStart: ts.Period.Start.String(),
		PeriodEnd:   ts.Period.End.String(),
	}
}

// PayRunResponse summarizes a pay run over all caregivers.
type PayRunResponse struct {
	PayPeriod  PayPeriodDTO   `json:"pay_period"`
	TimeSheets []TimeSheetDTO `json:"timesheets"`
	Skipped    []string       `json:"skipped_approved"`
}

// PayPeriodDTO describes a pay period.
type PayPeriodDTO struct {
	ID    string `json:"id"`
	Start string `json:"start"`
	End   string `json:"end"`
}

func toPayPeriodDTO(p generic.Period) PayPeriodDTO {
	return PayPeriodDTO{ID: p.ID(), Start: p.Start.String(), End: p.End.String()}
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
