// Package memory provides an in-memory implementation of the schedule and
// payroll repositories, for tests and local development.
package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/warp/care-engine/generic"
	"github.com/warp/care-engine/payroll"
	"github.com/warp/care-engine/schedule"
)

// ErrClosed is returned by every method after Close.
var ErrClosed = errors.New("memory store closed")

// =============================================================================
// MEMORY STORE
// =============================================================================

// Store holds all state on the instance; there is no package-level state.
// Lifecycle: New -> use -> Close.
type Store struct {
	mu sync.RWMutex

	packages   map[string]schedule.ScheduledPackage
	events     map[string]payroll.EVVEvent
	rates      map[string]payroll.PayRate
	timesheets map[string]payroll.TimeSheet
	closed     bool
}

var (
	_ schedule.Repository = (*Store)(nil)
	_ payroll.Repository  = (*Store)(nil)
)

func New() *Store {
	return &Store{
		packages:   make(map[string]schedule.ScheduledPackage),
		events:     make(map[string]payroll.EVVEvent),
		rates:      make(map[string]payroll.PayRate),
		timesheets: make(map[string]payroll.TimeSheet),
	}
}

// Close drops all data. Later calls fail with ErrClosed.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packages, m.events, m.rates, m.timesheets = nil, nil, nil, nil
	m.closed = true
	return nil
}

// =============================================================================
// SCHEDULED PACKAGES
// =============================================================================

func (m *Store) SaveScheduledPackage(_ context.Context, p schedule.ScheduledPackage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.packages[p.ID] = clonePackage(p)
	return nil
}

func (m *Store) GetScheduledPackage(_ context.Context, id string) (schedule.ScheduledPackage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return schedule.ScheduledPackage{}, ErrClosed
	}
	p, ok := m.packages[id]
	if !ok {
		return schedule.ScheduledPackage{}, fmt.Errorf("scheduled package %s: %w", id, generic.ErrNotFound)
	}
	return clonePackage(p), nil
}

func (m *Store) ListScheduledPackages(_ context.Context, filter schedule.Filter) ([]schedule.ScheduledPackage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	result := make([]schedule.ScheduledPackage, 0, len(m.packages))
	for _, p := range m.packages {
		if filter.CustomerID != "" && p.CustomerID != filter.CustomerID {
			continue
		}
		if filter.CaregiverID != "" && p.CaregiverID != filter.CaregiverID {
			continue
		}
		result = append(result, clonePackage(p))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Store) UpdateScheduledPackage(_ context.Context, id string, fn func(*schedule.ScheduledPackage) error) (schedule.ScheduledPackage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return schedule.ScheduledPackage{}, ErrClosed
	}
	current, ok := m.packages[id]
	if !ok {
		return schedule.ScheduledPackage{}, fmt.Errorf("scheduled package %s: %w", id, generic.ErrNotFound)
	}
	working := clonePackage(current)
	if err := fn(&working); err != nil {
		return schedule.ScheduledPackage{}, err
	}
	m.packages[id] = clonePackage(working)
	return working, nil
}

func clonePackage(p schedule.ScheduledPackage) schedule.ScheduledPackage {
	if p.Exceptions != nil {
		p.Exceptions = maps.Clone(p.Exceptions)
	}
	return p
}

// =============================================================================
// EVV EVENTS & PAY RATES
// =============================================================================

func (m *Store) SaveEVVEvent(_ context.Context, e payroll.EVVEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.events[e.ID] = e
	return nil
}

func (m *Store) ListEVVEvents(_ context.Context, caregiverID string, from, to time.Time) ([]payroll.EVVEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	within := func(t *time.Time) bool {
		return t != nil && !t.Before(from) && t.Before(to)
	}
	var result []payroll.EVVEvent
	for _, e := range m.events {
		if e.CaregiverID != caregiverID {
			continue
		}
		spans := e.CheckIn != nil && e.CheckOut != nil && e.CheckIn.Before(from) && !e.CheckOut.Before(to)
		if within(e.CheckIn) || within(e.CheckOut) || spans {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Store) SavePayRate(_ context.Context, r payroll.PayRate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.rates[r.CaregiverID] = r
	return nil
}

func (m *Store) GetPayRate(_ context.Context, caregiverID string) (payroll.PayRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return payroll.PayRate{}, ErrClosed
	}
	r, ok := m.rates[caregiverID]
	if !ok {
		return payroll.PayRate{}, fmt.Errorf("pay rate %s: %w", caregiverID, generic.ErrNotFound)
	}
	return r, nil
}

func (m *Store) ListPayRates(_ context.Context) ([]payroll.PayRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	result := make([]payroll.PayRate, 0, len(m.rates))
	for _, r := range m.rates {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CaregiverID < result[j].CaregiverID })
	return result, nil
}

// =============================================================================
// TIMESHEETS
// =============================================================================

func (m *Store) GetTimeSheet(_ context.Context, id string) (payroll.TimeSheet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return payroll.TimeSheet{}, ErrClosed
	}
	ts, ok := m.timesheets[id]
	if !ok {
		return payroll.TimeSheet{}, fmt.Errorf("timesheet %s: %w", id, generic.ErrNotFound)
	}
	return ts, nil
}

func (m *Store) ListTimeSheets(_ context.Context, payPeriodID string) ([]payroll.TimeSheet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var result []payroll.TimeSheet
	for _, ts := range m.timesheets {
		if payPeriodID == "" || ts.PayPeriodID == payPeriodID {
			result = append(result, ts)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].PayPeriodID != result[j].PayPeriodID {
			return result[i].PayPeriodID < result[j].PayPeriodID
		}
		return result[i].CaregiverID < result[j].CaregiverID
	})
	return result, nil
}

func (m *Store) UpsertTimeSheet(_ context.Context, caregiverID, payPeriodID string, fn func(*payroll.TimeSheet) (payroll.TimeSheet, error)) (payroll.TimeSheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return payroll.TimeSheet{}, ErrClosed
	}
	var existing *payroll.TimeSheet
	if ts, ok := m.timesheets[payroll.TimeSheetID(caregiverID, payPeriodID)]; ok {
		existing = &ts
	}
	next, err := fn(existing)
	if err != nil {
		return payroll.TimeSheet{}, err
	}
	m.timesheets[next.ID] = next
	return next, nil
}

func (m *Store) UpdateTimeSheet(_ context.Context, id string, fn func(*payroll.TimeSheet) error) (payroll.TimeSheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return payroll.TimeSheet{}, ErrClosed
	}
	ts, ok := m.timesheets[id]
	if !ok {
		return payroll.TimeSheet{}, fmt.Errorf("timesheet %s: %w", id, generic.ErrNotFound)
	}
	if err := fn(&ts); err != nil {
		return payroll.TimeSheet{}, err
	}
	m.timesheets[id] = ts
	return ts, nil
}
