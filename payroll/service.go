package payroll

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/warp/care-engine/generic"
)

// =============================================================================
// REPOSITORY - Persistence interface
// =============================================================================

// Repository persists EVV events, pay rates and timesheets.
//
// UpsertTimeSheet loads the caregiver's sheet for the period (nil if none),
// calls fn and saves its result atomically. UpdateTimeSheet does the same for
// an existing sheet by ID. If fn returns an error nothing is written.
type Repository interface {
	SaveEVVEvent(ctx context.Context, e EVVEvent) error
	// ListEVVEvents returns the caregiver's events with a check-in or check-out in
	// [from, to), or spanning it.
	ListEVVEvents(ctx context.Context, caregiverID string, from, to time.Time) ([]EVVEvent, error)

	SavePayRate(ctx context.Context, r PayRate) error
	GetPayRate(ctx context.Context, caregiverID string) (PayRate, error)
	ListPayRates(ctx context.Context) ([]PayRate, error)

	GetTimeSheet(ctx context.Context, id string) (TimeSheet, error)
	ListTimeSheets(ctx context.Context, payPeriodID string) ([]TimeSheet, error)
	UpsertTimeSheet(ctx context.Context, caregiverID, payPeriodID string, fn func(existing *TimeSheet) (TimeSheet, error)) (TimeSheet, error)
	UpdateTimeSheet(ctx context.Context, id string, fn func(*TimeSheet) error) (TimeSheet, error)
}

// =============================================================================
// SERVICE - Pay period evaluation
// =============================================================================

type Service struct {
	Store              Repository
	Periods            generic.PeriodConfig
	Deductions         DeductionRates
	OvertimeThreshold  decimal.Decimal
	OvertimeMultiplier decimal.Decimal
	Location           *time.Location

	// Concurrency bounds CalculateAll. Zero means 8.
	Concurrency int

	// Now is used for approval timestamps. Defaults to time.Now.
	Now func() time.Time
}

func NewService(store Repository, periods generic.PeriodConfig) *Service {
	return &Service{
		Store:              store,
		Periods:            periods,
		Deductions:         DefaultDeductionRates(),
		OvertimeThreshold:  DefaultOvertimeThreshold,
		OvertimeMultiplier: DefaultOvertimeMultiplier,
		Location:           time.UTC,
		Concurrency:        8,
		Now:                time.Now,
	}
}

// RecordEvent stores an EVV event. An empty ID is generated.
func (s *Service) RecordEvent(ctx context.Context, e EVVEvent) (EVVEvent, error) {
	if e.CaregiverID == "" {
		return EVVEvent{}, generic.NewValidationError("caregiver_id", "required")
	}
	if e.CheckIn == nil && e.CheckOut == nil {
		return EVVEvent{}, generic.NewValidationError("check_in_time", "check_in_time or check_out_time is required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if err := s.Store.SaveEVVEvent(ctx, e); err != nil {
		return EVVEvent{}, fmt.Errorf("save evv event: %w", err)
	}
	return e, nil
}

// SetPayRate stores a caregiver's hourly (and optional overtime) rate.
func (s *Service) SetPayRate(ctx context.Context, r PayRate) error {
	if r.CaregiverID == "" {
		return generic.NewValidationError("caregiver_id", "required")
	}
	if !r.HourlyRate.IsPositive() {
		return generic.NewValidationError("hourly_rate", "must be positive")
	}
	if r.OvertimeRate != nil && r.OvertimeRate.IsNegative() {
		return generic.NewValidationError("overtime_rate", "must not be negative")
	}
	return s.Store.SavePayRate(ctx, r)
}

// PeriodFor returns the pay period containing date.
func (s *Service) PeriodFor(date generic.Date) generic.Period {
	return s.Periods.PeriodFor(date)
}

// Today returns the current date in the service's location.
func (s *Service) Today() generic.Date {
	return generic.DateOf(s.now().In(s.location()))
}

// CalculateForCaregiver (re)calculates the caregiver's timesheet for the pay
// period containing date. Approved timesheets return an InvalidStateError.
func (s *Service) CalculateForCaregiver(ctx context.Context, caregiverID string, date generic.Date) (TimeSheet, error) {
	rate, err := s.Store.GetPayRate(ctx, caregiverID)
	if err != nil {
		return TimeSheet{}, fmt.Errorf("pay rate for %s: %w", caregiverID, err)
	}
	return s.calculate(ctx, rate, s.Periods.PeriodFor(date))
}

func (s *Service) calculate(ctx context.Context, rate PayRate, period generic.Period) (TimeSheet, error) {
	from, to := period.Bounds(s.location())
	events, err := s.Store.ListEVVEvents(ctx, rate.CaregiverID, from, to)
	if err != nil {
		return TimeSheet{}, fmt.Errorf("list evv events: %w", err)
	}

	in := Input{
		CaregiverID: rate.CaregiverID,
		Events:      events,
		Period:      period,
		Location:    s.location(),
		Rates: Rates{
			HourlyRate:         rate.HourlyRate,
			OvertimeRate:       rate.OvertimeRate,
			OvertimeThreshold:  s.OvertimeThreshold,
			OvertimeMultiplier: s.OvertimeMultiplier,
		},
		Deductions: s.Deductions,
	}
	return s.Store.UpsertTimeSheet(ctx, rate.CaregiverID, period.ID(), func(existing *TimeSheet) (TimeSheet, error) {
		ts, _, err := Recalculate(existing, in)
		return ts, err
	})
}

// BatchResult summarizes a pay run over all caregivers.
type BatchResult struct {
	Period     generic.Period
	Calculated []TimeSheet
	Skipped    []string // caregivers whose timesheet is already approved
}

// CalculateAll recalculates every caregiver with a pay rate for the period
// containing date. Caregivers are processed in parallel; approved sheets are
// skipped, any other failure aborts the run.
func (s *Service) CalculateAll(ctx context.Context, date generic.Date) (BatchResult, error) {
	period := s.Periods.PeriodFor(date)
	rates, err := s.Store.ListPayRates(ctx)
	if err != nil {
		return BatchResult{}, fmt.Errorf("list pay rates: %w", err)
	}

	var (
		mu     sync.Mutex
		result = BatchResult{Period: period}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())
	for _, rate := range rates {
		g.Go(func() error {
			ts, err := s.calculate(gctx, rate, period)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, generic.ErrInvalidState):
				result.Skipped = append(result.Skipped, rate.CaregiverID)
				return nil
			case err != nil:
				return fmt.Errorf("caregiver %s: %w", rate.CaregiverID, err)
			}
			result.Calculated = append(result.Calculated, ts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BatchResult{}, err
	}

	sort.Slice(result.Calculated, func(i, j int) bool {
		return result.Calculated[i].CaregiverID < result.Calculated[j].CaregiverID
	})
	sort.Strings(result.Skipped)
	return result, nil
}

// Approve freezes a timesheet on behalf of a supervisor.
func (s *Service) Approve(ctx context.Context, id, approver string) (TimeSheet, error) {
	return s.Store.UpdateTimeSheet(ctx, id, func(ts *TimeSheet) error {
		return Approve(ts, approver, s.now())
	})
}

func (s *Service) Get(ctx context.Context, id string) (TimeSheet, error) {
	return s.Store.GetTimeSheet(ctx, id)
}

func (s *Service) ListByPeriod(ctx context.Context, payPeriodID string) ([]TimeSheet, error) {
	return s.Store.ListTimeSheets(ctx, payPeriodID)
}

func (s *Service) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Service) concurrency() int {
	if s.Concurrency <= 0 {
		return 8
	}
	return s.Concurrency
}
