package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RepairScheduler runs Reconcile on a cron schedule.
type RepairScheduler struct {
	svc     *Service
	cron    *cron.Cron
	opts    RepairOptions
	timeout time.Duration
	logger  Logger

	mu   sync.Mutex
	last *RepairReport
	runs int
}

// NewRepairScheduler validates spec, a standard five field cron expression or
// descriptor such as "@hourly", and prepares a scheduler. Runs never overlap:
// a run that is due while the previous one is still going is skipped.
func NewRepairScheduler(svc *Service, spec string, opts RepairOptions, timeout time.Duration) (*RepairScheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid repair schedule %q: %w", spec, err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	rs := &RepairScheduler{svc: svc, opts: opts, timeout: timeout, logger: svc.logger}
	rs.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := rs.cron.AddFunc(spec, rs.RunOnce); err != nil {
		return nil, fmt.Errorf("schedule repair: %w", err)
	}
	return rs, nil
}

// Start begins running on schedule.
func (rs *RepairScheduler) Start() {
	rs.cron.Start()
	rs.logger.Info("repair scheduler started", "next_run", rs.Next())
}

// Stop halts scheduling and waits for a running repair to finish or ctx to be
// done.
func (rs *RepairScheduler) Stop(ctx context.Context) error {
	done := rs.cron.Stop()
	select {
	case <-done.Done():
		rs.logger.Info("repair scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the time of the next scheduled run, or the zero time when the
// scheduler is not running.
func (rs *RepairScheduler) Next() time.Time {
	entries := rs.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// RunOnce performs one repair immediately.
func (rs *RepairScheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), rs.timeout)
	defer cancel()
	report, err := rs.svc.Reconcile(ctx, rs.opts)
	rs.mu.Lock()
	rs.runs++
	rs.last = &report
	rs.mu.Unlock()
	if err != nil {
		rs.logger.Error("scheduled repair failed", "error", err)
		return
	}
	rs.logger.Info("scheduled repair finished",
		"journal_records", report.Journal, "findings", len(report.Findings),
		"actions", len(report.Actions), "remaining", len(report.Remaining))
}

// Last returns the most recent report and the number of completed runs.
func (rs *RepairScheduler) Last() (RepairReport, int, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.last == nil {
		return RepairReport{}, rs.runs, false
	}
	return *rs.last, rs.runs, true
}
