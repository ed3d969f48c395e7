/*
scheduler.go - Background assignment of pending tours

PURPOSE:
  Periodically retries staffing for tours that were saved unassigned, so a
  tour created before staff or buses were available gets picked up once
  they are.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Runs one pass immediately on Start
  - Each pass is Scheduler.AssignPending: earliest departure first, one
    transaction per tour
  - A failed pass is logged and the next tick tries again

USAGE:
  ps := NewPendingScheduler(sched, 5*time.Minute, log)
  ps.Start()
  // ... later
  ps.Stop()

SEE ALSO:
  - handlers.go: AssignPending endpoint (manual pass)
  - tours/scheduler.go: AssignPending
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/tour-engine/tours"
)

// PendingAssigner is the part of *tours.Scheduler the background pass uses.
type PendingAssigner interface {
	AssignPending(ctx context.Context) (tours.PendingReport, error)
}

// PendingScheduler runs AssignPending on a ticker.
type PendingScheduler struct {
	sched    PendingAssigner
	interval time.Duration
	log      *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	last   time.Time
}

func NewPendingScheduler(sched PendingAssigner, interval time.Duration, log *zap.Logger) *PendingScheduler {
	return &PendingScheduler{sched: sched, interval: interval, log: log}
}

// Start begins the background loop. Calling Start twice is a no-op.
func (ps *PendingScheduler) Start() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	ps.cancel = cancel
	ps.wg.Add(1)
	go ps.run(ctx)

	ps.log.Info("pending tour scheduler started", zap.Duration("interval", ps.interval))
}

// Stop cancels an in-flight pass and waits for the loop to exit.
func (ps *PendingScheduler) Stop() {
	ps.mu.Lock()
	cancel := ps.cancel
	ps.cancel = nil
	ps.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	ps.wg.Wait()
	ps.log.Info("pending tour scheduler stopped")
}

func (ps *PendingScheduler) run(ctx context.Context) {
	defer ps.wg.Done()

	ticker := time.NewTicker(ps.interval)
	defer ticker.Stop()

	ps.RunNow(ctx)
	for {
		select {
		case <-ticker.C:
			ps.RunNow(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunNow performs one pass synchronously.
func (ps *PendingScheduler) RunNow(ctx context.Context) {
	report, err := ps.sched.AssignPending(ctx)

	ps.mu.Lock()
	ps.last = time.Now()
	ps.mu.Unlock()

	if err != nil {
		if ctx.Err() == nil {
			ps.log.Error("pending tour pass failed", zap.Error(err))
		}
		return
	}
	if len(report.Assigned) > 0 || len(report.Pending) > 0 {
		ps.log.Info("pending tour pass completed",
			zap.Int("assigned", len(report.Assigned)), zap.Int("still_pending", len(report.Pending)))
	}
}

// NextRunTime returns when the next pass is due.
func (ps *PendingScheduler) NextRunTime() time.Time {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.last.IsZero() {
		return time.Now()
	}
	return ps.last.Add(ps.interval)
}
