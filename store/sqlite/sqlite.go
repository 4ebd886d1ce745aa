/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements schedule.Repository and payroll.Repository using SQLite.
  In production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  scheduled_packages: Recurrence rules (full wire record in record_json)
  evv_events:         Check-in/check-out events
  pay_rates:          Hourly and overtime rate per caregiver
  timesheets:         Calculated/approved pay summaries, one per caregiver per period

ATOMIC UPDATES:
  UpdateScheduledPackage, UpsertTimeSheet and UpdateTimeSheet run
  load -> callback -> save inside one SQL transaction. A callback error
  rolls back, so a rejected exception or transition never half-writes.

NUMBERS & TIMES:
  Decimals are stored as TEXT (decimal.String) to keep them exact.
  Instants are stored as fixed-width UTC text so that string comparison
  in SQL matches chronological order.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection, which also
  keeps ":memory:" databases shared across calls.

USAGE:
  store, err := sqlite.New("./data/care.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - schedule/service.go: schedule.Repository
  - payroll/service.go: payroll.Repository
  - store/memory: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/care-engine/generic"
	"github.com/warp/care-engine/payroll"
	"github.com/warp/care-engine/schedule"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ schedule.Repository = (*Store)(nil)
	_ payroll.Repository  = (*Store)(nil)
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scheduled_packages (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		package_id TEXT NOT NULL,
		caregiver_id TEXT NOT NULL,
		status TEXT NOT NULL,
		record_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scheduled_packages_customer
		ON scheduled_packages(customer_id);
	CREATE INDEX IF NOT EXISTS idx_scheduled_packages_caregiver
		ON scheduled_packages(caregiver_id);

	CREATE TABLE IF NOT EXISTS evv_events (
		id TEXT PRIMARY KEY,
		caregiver_id TEXT NOT NULL,
		appointment_id TEXT,
		check_in_time TEXT,
		check_out_time TEXT,
		created_at TEXT NOT NULL
	);

	-- Pay period lookups (hot path)
	CREATE INDEX IF NOT EXISTS idx_evv_events_caregiver_check_in
		ON evv_events(caregiver_id, check_in_time);
	CREATE INDEX IF NOT EXISTS idx_evv_events_caregiver_check_out
		ON evv_events(caregiver_id, check_out_time);

	CREATE TABLE IF NOT EXISTS pay_rates (
		caregiver_id TEXT PRIMARY KEY,
		hourly_rate TEXT NOT NULL,
		overtime_rate TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS timesheets (
		id TEXT PRIMARY KEY,
		caregiver_id TEXT NOT NULL,
		pay_period_id TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		regular_hours TEXT NOT NULL,
		overtime_hours TEXT NOT NULL,
		hourly_rate TEXT NOT NULL,
		overtime_rate TEXT NOT NULL,
		gross_pay TEXT NOT NULL,
		federal TEXT NOT NULL,
		state TEXT NOT NULL,
		social_security TEXT NOT NULL,
		medicare TEXT NOT NULL,
		deductions_total TEXT NOT NULL,
		net_pay TEXT NOT NULL,
		status TEXT NOT NULL,
		approved_by TEXT,
		approved_at TEXT,
		anomalies_json TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(caregiver_id, pay_period_id)
	);

	CREATE INDEX IF NOT EXISTS idx_timesheets_period
		ON timesheets(pay_period_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SCHEDULED PACKAGES
// =============================================================================

// SaveScheduledPackage inserts or replaces a package.
func (s *Store) SaveScheduledPackage(ctx context.Context, p schedule.ScheduledPackage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return savePackage(ctx, s.db, p)
}

func savePackage(ctx context.Context, q queryer, p schedule.ScheduledPackage) error {
	recordJSON, err := json.Marshal(schedule.ToRecord(p))
	if err != nil {
		return fmt.Errorf("encode scheduled package: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = q.ExecContext(ctx, `
		INSERT INTO scheduled_packages (id, customer_id, package_id, caregiver_id, status, record_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			customer_id = excluded.customer_id,
			package_id = excluded.package_id,
			caregiver_id = excluded.caregiver_id,
			status = excluded.status,
			record_json = excluded.record_json,
			updated_at = excluded.updated_at
	`, p.ID, p.CustomerID, p.PackageID, p.CaregiverID, string(p.Status), string(recordJSON), now, now)
	if err != nil {
		return fmt.Errorf("save scheduled package: %w", err)
	}
	return nil
}

// GetScheduledPackage retrieves a package by ID.
func (s *Store) GetScheduledPackage(ctx context.Context, id string) (schedule.ScheduledPackage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPackage(ctx, s.db, id)
}

func getPackage(ctx context.Context, q queryer, id string) (schedule.ScheduledPackage, error) {
	var recordJSON string
	err := q.QueryRowContext(ctx, `SELECT record_json FROM scheduled_packages WHERE id = ?`, id).Scan(&recordJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return schedule.ScheduledPackage{}, fmt.Errorf("scheduled package %s: %w", id, generic.ErrNotFound)
	}
	if err != nil {
		return schedule.ScheduledPackage{}, fmt.Errorf("get scheduled package: %w", err)
	}
	return decodePackage(recordJSON)
}

func decodePackage(recordJSON string) (schedule.ScheduledPackage, error) {
	var r schedule.Record
	if err := json.Unmarshal([]byte(recordJSON), &r); err != nil {
		return schedule.ScheduledPackage{}, fmt.Errorf("decode scheduled package: %w", err)
	}
	return schedule.FromRecord(r)
}

// ListScheduledPackages returns packages matching the filter, ordered by ID.
func (s *Store) ListScheduledPackages(ctx context.Context, filter schedule.Filter) ([]schedule.ScheduledPackage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT record_json FROM scheduled_packages
		WHERE (? = '' OR customer_id = ?) AND (? = '' OR caregiver_id = ?)
		ORDER BY id
	`, filter.CustomerID, filter.CustomerID, filter.CaregiverID, filter.CaregiverID)
	if err != nil {
		return nil, fmt.Errorf("list scheduled packages: %w", err)
	}
	defer rows.Close()

	result := make([]schedule.ScheduledPackage, 0)
	for rows.Next() {
		var recordJSON string
		if err := rows.Scan(&recordJSON); err != nil {
			return nil, err
		}
		p, err := decodePackage(recordJSON)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// UpdateScheduledPackage runs load -> fn -> save in one transaction.
func (s *Store) UpdateScheduledPackage(ctx context.Context, id string, fn func(*schedule.ScheduledPackage) error) (schedule.ScheduledPackage, error) {
	var updated schedule.ScheduledPackage
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := getPackage(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(&p); err != nil {
			return err
		}
		updated = p
		return savePackage(ctx, tx, p)
	})
	return updated, err
}

// withTx executes fn within a transaction.
// If fn returns error, transaction is rolled back.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// EVV EVENTS
// =============================================================================

// SaveEVVEvent inserts or replaces an event (a later check-out updates the row).
func (s *Store) SaveEVVEvent(ctx context.Context, e payroll.EVVEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evv_events (id, caregiver_id, appointment_id, check_in_time, check_out_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			caregiver_id = excluded.caregiver_id,
			appointment_id = excluded.appointment_id,
			check_in_time = excluded.check_in_time,
			check_out_time = excluded.check_out_time
	`, e.ID, e.CaregiverID, nullString(e.AppointmentID), formatTime(e.CheckIn), formatTime(e.CheckOut),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save evv event: %w", err)
	}
	return nil
}

// ListEVVEvents returns the caregiver's events touching [from, to).
func (s *Store) ListEVVEvents(ctx context.Context, caregiverID string, from, to time.Time) ([]payroll.EVVEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, t := from.UTC().Format(timeLayout), to.UTC().Format(timeLayout)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, caregiver_id, appointment_id, check_in_time, check_out_time
		FROM evv_events
		WHERE caregiver_id = ?
		  AND (
			(check_in_time >= ? AND check_in_time < ?)
			OR (check_out_time >= ? AND check_out_time < ?)
			OR (check_in_time < ? AND check_out_time >= ?)
		  )
		ORDER BY id
	`, caregiverID, f, t, f, t, f, t)
	if err != nil {
		return nil, fmt.Errorf("list evv events: %w", err)
	}
	defer rows.Close()

	var result []payroll.EVVEvent
	for rows.Next() {
		var (
			e                 payroll.EVVEvent
			appointmentID     sql.NullString
			checkIn, checkOut sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.CaregiverID, &appointmentID, &checkIn, &checkOut); err != nil {
			return nil, err
		}
		e.AppointmentID = appointmentID.String
		if e.CheckIn, err = parseTime(checkIn); err != nil {
			return nil, err
		}
		if e.CheckOut, err = parseTime(checkOut); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// =============================================================================
// PAY RATES
// =============================================================================

func (s *Store) SavePayRate(ctx context.Context, r payroll.PayRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var overtime sql.NullString
	if r.OvertimeRate != nil {
		overtime = nullString(r.OvertimeRate.String())
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pay_rates (caregiver_id, hourly_rate, overtime_rate, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(caregiver_id) DO UPDATE SET
			hourly_rate = excluded.hourly_rate,
			overtime_rate = excluded.overtime_rate,
			updated_at = excluded.updated_at
	`, r.CaregiverID, r.HourlyRate.String(), overtime, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save pay rate: %w", err)
	}
	return nil
}

func (s *Store) GetPayRate(ctx context.Context, caregiverID string) (payroll.PayRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT caregiver_id, hourly_rate, overtime_rate FROM pay_rates WHERE caregiver_id = ?`, caregiverID)
	r, err := scanPayRate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return payroll.PayRate{}, fmt.Errorf("pay rate %s: %w", caregiverID, generic.ErrNotFound)
	}
	return r, err
}

func (s *Store) ListPayRates(ctx context.Context) ([]payroll.PayRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT caregiver_id, hourly_rate, overtime_rate FROM pay_rates ORDER BY caregiver_id`)
	if err != nil {
		return nil, fmt.Errorf("list pay rates: %w", err)
	}
	defer rows.Close()

	var result []payroll.PayRate
	for rows.Next() {
		r, err := scanPayRate(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPayRate(row scanner) (payroll.PayRate, error) {
	var (
		r        payroll.PayRate
		hourly   string
		overtime sql.NullString
	)
	if err := row.Scan(&r.CaregiverID, &hourly, &overtime); err != nil {
		return payroll.PayRate{}, err
	}
	var err error
	if r.HourlyRate, err = decimal.NewFromString(hourly); err != nil {
		return payroll.PayRate{}, fmt.Errorf("decode hourly_rate: %w", err)
	}
	if overtime.Valid {
		ot, err := decimal.NewFromString(overtime.String)
		if err != nil {
			return payroll.PayRate{}, fmt.Errorf("decode overtime_rate: %w", err)
		}
		r.OvertimeRate = &ot
	}
	return r, nil
}

// =============================================================================
// TIMESHEETS
// =============================================================================

const timesheetColumns = `id, caregiver_id, pay_period_id, period_start, period_end,
	regular_hours, overtime_hours, hourly_rate, overtime_rate, gross_pay,
	federal, state, social_security, medicare, deductions_total, net_pay,
	status, approved_by, approved_at, anomalies_json`

func (s *Store) GetTimeSheet(ctx context.Context, id string) (payroll.TimeSheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getTimeSheet(ctx, s.db, `WHERE id = ?`, id)
}

func getTimeSheet(ctx context.Context, q queryer, where string, args ...any) (payroll.TimeSheet, error) {
	row := q.QueryRowContext(ctx, `SELECT `+timesheetColumns+` FROM timesheets `+where, args...)
	ts, err := scanTimeSheet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return payroll.TimeSheet{}, fmt.Errorf("timesheet: %w", generic.ErrNotFound)
	}
	return ts, err
}

// ListTimeSheets returns timesheets for a pay period, or all when payPeriodID is empty.
func (s *Store) ListTimeSheets(ctx context.Context, payPeriodID string) ([]payroll.TimeSheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+timesheetColumns+` FROM timesheets
		WHERE (? = '' OR pay_period_id = ?)
		ORDER BY pay_period_id, caregiver_id`, payPeriodID, payPeriodID)
	if err != nil {
		return nil, fmt.Errorf("list timesheets: %w", err)
	}
	defer rows.Close()

	var result []payroll.TimeSheet
	for rows.Next() {
		ts, err := scanTimeSheet(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ts)
	}
	return result, rows.Err()
}

func (s *Store) UpsertTimeSheet(ctx context.Context, caregiverID, payPeriodID string, fn func(*payroll.TimeSheet) (payroll.TimeSheet, error)) (payroll.TimeSheet, error) {
	var saved payroll.TimeSheet
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var existing *payroll.TimeSheet
		ts, err := getTimeSheet(ctx, tx, `WHERE caregiver_id = ? AND pay_period_id = ?`, caregiverID, payPeriodID)
		switch {
		case err == nil:
			existing = &ts
		case !errors.Is(err, generic.ErrNotFound):
			return err
		}
		next, err := fn(existing)
		if err != nil {
			return err
		}
		saved = next
		return saveTimeSheet(ctx, tx, next)
	})
	return saved, err
}

func (s *Store) UpdateTimeSheet(ctx context.Context, id string, fn func(*payroll.TimeSheet) error) (payroll.TimeSheet, error) {
	var saved payroll.TimeSheet
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ts, err := getTimeSheet(ctx, tx, `WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if err := fn(&ts); err != nil {
			return err
		}
		saved = ts
		return saveTimeSheet(ctx, tx, ts)
	})
	return saved, err
}

func saveTimeSheet(ctx context.Context, q queryer, ts payroll.TimeSheet) error {
	anomalies := ts.Anomalies
	if anomalies == nil {
		anomalies = []generic.DataAnomaly{}
	}
	anomaliesJSON, err := json.Marshal(anomalies)
	if err != nil {
		return fmt.Errorf("encode anomalies: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO timesheets (`+timesheetColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			regular_hours = excluded.regular_hours,
			overtime_hours = excluded.overtime_hours,
			hourly_rate = excluded.hourly_rate,
			overtime_rate = excluded.overtime_rate,
			gross_pay = excluded.gross_pay,
			federal = excluded.federal,
			state = excluded.state,
			social_security = excluded.social_security,
			medicare = excluded.medicare,
			deductions_total = excluded.deductions_total,
			net_pay = excluded.net_pay,
			status = excluded.status,
			approved_by = excluded.approved_by,
			approved_at = excluded.approved_at,
			anomalies_json = excluded.anomalies_json,
			updated_at = excluded.updated_at
	`,
		ts.ID, ts.CaregiverID, ts.PayPeriodID, ts.Period.Start.String(), ts.Period.End.String(),
		ts.RegularHours.String(), ts.OvertimeHours.String(), ts.HourlyRate.String(), ts.OvertimeRate.String(),
		ts.GrossPay.String(),
		ts.Deductions.Federal.String(), ts.Deductions.State.String(), ts.Deductions.SocialSecurity.String(),
		ts.Deductions.Medicare.String(), ts.Deductions.Total.String(), ts.NetPay.String(),
		string(ts.Status), nullString(ts.ApprovedBy), formatTime(ts.ApprovedAt), string(anomaliesJSON),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save timesheet: %w", err)
	}
	return nil
}

func scanTimeSheet(row scanner) (payroll.TimeSheet, error) {
	var (
		ts                     payroll.TimeSheet
		periodStart, periodEnd string
		nums                   [11]string
		status                 string
		approvedBy, approvedAt sql.NullString
		anomaliesJSON          string
	)
	err := row.Scan(&ts.ID, &ts.CaregiverID, &ts.PayPeriodID, &periodStart, &periodEnd,
		&nums[0], &nums[1], &nums[2], &nums[3], &nums[4],
		&nums[5], &nums[6], &nums[7], &nums[8], &nums[9], &nums[10],
		&status, &approvedBy, &approvedAt, &anomaliesJSON)
	if err != nil {
		return payroll.TimeSheet{}, err
	}

	if ts.Period.Start, err = generic.ParseDate(periodStart); err != nil {
		return payroll.TimeSheet{}, err
	}
	if ts.Period.End, err = generic.ParseDate(periodEnd); err != nil {
		return payroll.TimeSheet{}, err
	}

	targets := []*decimal.Decimal{
		&ts.RegularHours, &ts.OvertimeHours, &ts.HourlyRate, &ts.OvertimeRate, &ts.GrossPay,
		&ts.Deductions.Federal, &ts.Deductions.State, &ts.Deductions.SocialSecurity,
		&ts.Deductions.Medicare, &ts.Deductions.Total, &ts.NetPay,
	}
	for i, target := range targets {
		if *target, err = decimal.NewFromString(nums[i]); err != nil {
			return payroll.TimeSheet{}, fmt.Errorf("decode timesheet amount: %w", err)
		}
	}

	ts.Status = payroll.Status(status)
	ts.ApprovedBy = approvedBy.String
	if ts.ApprovedAt, err = parseTime(approvedAt); err != nil {
		return payroll.TimeSheet{}, err
	}
	if err := json.Unmarshal([]byte(anomaliesJSON), &ts.Anomalies); err != nil {
		return payroll.TimeSheet{}, fmt.Errorf("decode anomalies: %w", err)
	}
	return ts, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func parseTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil, fmt.Errorf("decode time %q: %w", s.String, err)
	}
	return &t, nil
}
