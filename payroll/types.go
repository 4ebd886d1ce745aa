// Package payroll turns EVV check-in/check-out events into per-caregiver,
// per-pay-period timesheets: worked hours, overtime split, gross pay,
// flat-rate deduction estimates and net pay.
package payroll

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/care-engine/generic"
)

// =============================================================================
// EVV EVENT - Electronic Visit Verification input (externally owned)
// =============================================================================

// EVVEvent is one check-in/check-out pair for an appointment instance.
// Either side may be missing while a visit is in progress.
type EVVEvent struct {
	ID            string     `json:"id"`
	CaregiverID   string     `json:"caregiver_id"`
	AppointmentID string     `json:"appointment_id,omitempty"`
	CheckIn       *time.Time `json:"check_in_time"`
	CheckOut      *time.Time `json:"check_out_time"`
}

// =============================================================================
// RATES
// =============================================================================

var (
	DefaultOvertimeThreshold  = decimal.NewFromInt(40)
	DefaultOvertimeMultiplier = decimal.RequireFromString("1.5")
)

// Rates are the pay parameters for one caregiver. Zero values are taken
// literally: a zero OvertimeThreshold makes every hour overtime.
type Rates struct {
	HourlyRate         decimal.Decimal
	OvertimeRate       *decimal.Decimal // overrides HourlyRate * OvertimeMultiplier
	OvertimeThreshold  decimal.Decimal
	OvertimeMultiplier decimal.Decimal
}

// DefaultRates pays hourly with the standard 40h threshold at 1.5x.
func DefaultRates(hourly decimal.Decimal) Rates {
	return Rates{
		HourlyRate:         hourly,
		OvertimeThreshold:  DefaultOvertimeThreshold,
		OvertimeMultiplier: DefaultOvertimeMultiplier,
	}
}

func (r Rates) validate() error {
	if r.HourlyRate.IsNegative() {
		return generic.NewValidationError("hourly_rate", "must not be negative")
	}
	if r.OvertimeRate != nil && r.OvertimeRate.IsNegative() {
		return generic.NewValidationError("overtime_rate", "must not be negative")
	}
	if r.OvertimeThreshold.IsNegative() {
		return generic.NewValidationError("overtime_threshold", "must not be negative")
	}
	if r.OvertimeMultiplier.IsNegative() {
		return generic.NewValidationError("overtime_multiplier", "must not be negative")
	}
	return nil
}

// overtimeRate returns the effective premium rate.
func (r Rates) overtimeRate() decimal.Decimal {
	if r.OvertimeRate != nil {
		return *r.OvertimeRate
	}
	return r.HourlyRate.Mul(r.OvertimeMultiplier)
}

// DeductionRates are flat-rate withholding estimates, not tax tables.
type DeductionRates struct {
	Federal        decimal.Decimal
	State          decimal.Decimal
	SocialSecurity decimal.Decimal
	Medicare       decimal.Decimal
}

// DefaultDeductionRates returns 12% federal, 5% state, 6.2% social security, 1.45% medicare.
func DefaultDeductionRates() DeductionRates {
	return DeductionRates{
		Federal:        decimal.RequireFromString("0.12"),
		State:          decimal.RequireFromString("0.05"),
		SocialSecurity: decimal.RequireFromString("0.062"),
		Medicare:       decimal.RequireFromString("0.0145"),
	}
}

// PayRate is the stored pay configuration of a caregiver.
type PayRate struct {
	CaregiverID  string           `json:"caregiver_id"`
	HourlyRate   decimal.Decimal  `json:"hourly_rate"`
	OvertimeRate *decimal.Decimal `json:"overtime_rate,omitempty"`
}

// =============================================================================
// TIMESHEET - Derived per caregiver per pay period
// =============================================================================

type Status string

const (
	StatusCalculated Status = "calculated"
	StatusApproved   Status = "approved"
)

type Deductions struct {
	Federal        decimal.Decimal `json:"federal"`
	State          decimal.Decimal `json:"state"`
	SocialSecurity decimal.Decimal `json:"social_security"`
	Medicare       decimal.Decimal `json:"medicare"`
	Total          decimal.Decimal `json:"total"`
}

// TimeSheet is the pay summary for one caregiver over one pay period.
// Once approved its values are frozen.
type TimeSheet struct {
	ID            string                `json:"id"`
	CaregiverID   string                `json:"caregiver_id"`
	PayPeriodID   string                `json:"pay_period_id"`
	Period        generic.Period        `json:"-"`
	RegularHours  decimal.Decimal       `json:"regular_hours"`
	OvertimeHours decimal.Decimal       `json:"overtime_hours"`
	HourlyRate    decimal.Decimal       `json:"hourly_rate"`
	OvertimeRate  decimal.Decimal       `json:"overtime_rate"`
	GrossPay      decimal.Decimal       `json:"gross_pay"`
	Deductions    Deductions            `json:"deductions"`
	NetPay        decimal.Decimal       `json:"net_pay"`
	Status        Status                `json:"status"`
	ApprovedBy    string                `json:"approved_by,omitempty"`
	ApprovedAt    *time.Time            `json:"approved_at,omitempty"`
	Anomalies     []generic.DataAnomaly `json:"anomalies"`
}

// TotalHours is regular plus overtime hours.
func (ts TimeSheet) TotalHours() decimal.Decimal {
	return ts.RegularHours.Add(ts.OvertimeHours)
}

var timeSheetNamespace = uuid.MustParse("6f1c4b5e-2f0a-4c7e-9b57-3f8f6c2d1a90")

// TimeSheetID derives the stable ID of a caregiver's timesheet for a pay period,
// so recalculating never creates a second row.
func TimeSheetID(caregiverID, payPeriodID string) string {
	return uuid.NewSHA1(timeSheetNamespace, []byte(caregiverID+"/"+payPeriodID)).String()
}
