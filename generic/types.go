/*
Package generic provides the domain-agnostic building blocks of the care engine.

PURPOSE:
  Scheduling and payroll share a small vocabulary: civil dates, pay
  periods, precise hour/money quantities and a common error taxonomy.
  Keeping them here lets the schedule and payroll packages stay focused on
  their own rules and lets storage/API code depend on one set of types.

KEY CONCEPTS IN THIS FILE (types.go):
  - Hours: precise conversion from durations to decimal hours
  - Money: cent rounding for currency amounts

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Determinism: Same inputs always produce bit-identical decimals

SEE ALSO:
  - time.go: Date and TimeOfDay
  - period.go: Pay periods
  - errors.go: Error taxonomy
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// HOURS & MONEY
// =============================================================================

var millisPerHour = decimal.NewFromInt(int64(time.Hour / time.Millisecond))

// Hours converts a duration to decimal hours at millisecond precision.
func Hours(d time.Duration) decimal.Decimal {
	return decimal.NewFromInt(d.Milliseconds()).Div(millisPerHour)
}

// HoursFromInt returns n whole hours.
func HoursFromInt(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}

// RoundCents rounds a currency amount to two decimal places, half away from zero.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
