// Package reconcile runs scheduled store-vs-ledger sweeps for long-lived
// local sessions. The event-driven storage-change signal can drop
// notifications under pressure; the sweep re-delivers the authoritative
// persisted list on a cron schedule and lets each session's dedup gate
// keep the operation idempotent.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"chatsync/pkg/logger"
)

// Reconciler is anything that can re-sync itself against the durable
// store. Local sessions implement it; network ones no-op.
type Reconciler interface {
	Reconcile(ctx context.Context) error
}

// Sweeper schedules reconciliation runs over a registry of sessions.
type Sweeper struct {
	mu      sync.Mutex
	targets map[string]Reconciler
}

// NewSweeper returns an empty sweeper.
func NewSweeper() *Sweeper {
	return &Sweeper{targets: make(map[string]Reconciler)}
}

// Register adds (or replaces) a target under a stable key, usually the
// room identifier.
func (s *Sweeper) Register(key string, r Reconciler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[key] = r
}

// Unregister removes a target.
func (s *Sweeper) Unregister(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.targets, key)
}

// RunOnce sweeps every registered target immediately.
func (s *Sweeper) RunOnce(ctx context.Context) {
	s.mu.Lock()
	snapshot := make(map[string]Reconciler, len(s.targets))
	for k, r := range s.targets {
		snapshot[k] = r
	}
	s.mu.Unlock()

	for key, r := range snapshot {
		if err := r.Reconcile(ctx); err != nil {
			logger.Warn("reconcile_failed", "target", key, "error", err)
		}
	}
	logger.Debug("reconcile_sweep_done", "targets", len(snapshot))
}

// Start launches the cron-driven scheduler. An empty cron expression
// defaults to every minute. The returned cancel func stops it.
func (s *Sweeper) Start(ctx context.Context, cronExpr string) (context.CancelFunc, error) {
	if cronExpr == "" {
		cronExpr = "* * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid reconcile cron expression: %s", cronExpr)
	}
	logger.Info("reconcile_scheduler_started", "cron", cronExpr)
	ctx2, cancel := context.WithCancel(ctx)
	go s.runScheduler(ctx2, cronExpr)
	return cancel, nil
}

// runScheduler computes the next cron tick with gronx and sleeps until
// then, rather than polling on a fixed interval.
func (s *Sweeper) runScheduler(ctx context.Context, cronExpr string) {
	for {
		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("reconcile_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
				continue
			case <-ctx.Done():
				logger.Info("reconcile_scheduler_stopping")
				return
			}
		}
		select {
		case <-time.After(next.Sub(now)):
			s.RunOnce(ctx)
		case <-ctx.Done():
			logger.Info("reconcile_scheduler_stopping")
			return
		}
	}
}
