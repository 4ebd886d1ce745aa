/*
scheduler.go - Automated timesheet recalculation

PURPOSE:
  Periodically recalculates every caregiver's timesheet for the current
  pay period so late-arriving EVV events show up without a manual pay run.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start, then on every tick
  - Approved timesheets are left untouched (reported as skipped)
  - Stop cancels an in-flight run and waits for the goroutine to exit

CONFIGURATION:
  - CheckInterval: How often to recalculate (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewRecalculationScheduler(payrollService, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunPayroll endpoint (manual pay run)
  - payroll/service.go: CalculateAll
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/care-engine/payroll"
)

// RecalculationScheduler keeps current-period timesheets up to date.
type RecalculationScheduler struct {
	Payroll       *payroll.Service
	Logger        *zap.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker  *time.Ticker
	cancel  context.CancelFunc
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewRecalculationScheduler creates a new scheduler.
func NewRecalculationScheduler(pay *payroll.Service, logger *zap.Logger) *RecalculationScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecalculationScheduler{
		Payroll:       pay,
		Logger:        logger.Named("scheduler"),
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
	}
}

// Start begins the scheduler. Calling Start twice is a no-op.
func (rs *RecalculationScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Logger.Info("disabled, not starting")
		return
	}
	if rs.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rs.cancel = cancel
	rs.stop = make(chan struct{})
	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.running = true
	rs.wg.Add(1)

	go rs.run(ctx)

	rs.Logger.Info("started", zap.Duration("interval", rs.CheckInterval))
}

// Stop stops the scheduler and waits for the current run to finish.
func (rs *RecalculationScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.running {
		return
	}
	rs.ticker.Stop()
	rs.cancel()
	close(rs.stop)
	rs.wg.Wait()
	rs.running = false
	rs.Logger.Info("stopped")
}

func (rs *RecalculationScheduler) run(ctx context.Context) {
	defer rs.wg.Done()

	// Run immediately on start
	rs.recalculate(ctx)

	for {
		select {
		case <-rs.ticker.C:
			rs.recalculate(ctx)
		case <-rs.stop:
			return
		}
	}
}

func (rs *RecalculationScheduler) recalculate(ctx context.Context) {
	if _, err := rs.RunNow(ctx); err != nil && ctx.Err() == nil {
		rs.Logger.Error("recalculation failed", zap.Error(err))
	}
}

// RunNow recalculates the current pay period immediately.
func (rs *RecalculationScheduler) RunNow(ctx context.Context) (payroll.BatchResult, error) {
	result, err := rs.Payroll.CalculateAll(ctx, rs.Payroll.Today())
	if err != nil {
		return payroll.BatchResult{}, err
	}
	rs.Logger.Info("recalculated",
		zap.String("pay_period_id", result.Period.ID()),
		zap.Int("calculated", len(result.Calculated)),
		zap.Int("skipped", len(result.Skipped)))
	return result, nil
}
