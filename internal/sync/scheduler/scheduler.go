// Package scheduler runs the periodic triggers that keep the sync engine
// moving: a frequent queue drain tick and a slower pull reconciliation.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/kimhsiao/promptdeck/internal/errors"
	"github.com/kimhsiao/promptdeck/internal/logging"
)

// Engine is the slice of the sync engine the scheduler drives.
type Engine interface {
	Kick()
	Reconcile(ctx context.Context) error
	ForceSync(ctx context.Context) error
}

// Config holds scheduler intervals.
type Config struct {
	// DrainInterval is how often the queue worker is kicked.
	DrainInterval time.Duration
	// ReconcileInterval is how often remote state is pulled and folded in.
	ReconcileInterval time.Duration
	// ReconcileTimeout bounds one reconciliation pass.
	ReconcileTimeout time.Duration
}

// DefaultConfig returns the default intervals.
func DefaultConfig() Config {
	return Config{
		DrainInterval:     5 * time.Second,
		ReconcileInterval: 5 * time.Minute,
		ReconcileTimeout:  time.Minute,
	}
}

// Scheduler owns the two ticker loops.
type Scheduler struct {
	engine Engine
	cfg    Config

	mu          sync.RWMutex
	running     bool
	inProgress  bool
	lastAttempt time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Scheduler.
func New(engine Engine, cfg Config) *Scheduler {
	if cfg.DrainInterval == 0 {
		cfg.DrainInterval = DefaultConfig().DrainInterval
	}
	if cfg.ReconcileInterval == 0 {
		cfg.ReconcileInterval = DefaultConfig().ReconcileInterval
	}
	if cfg.ReconcileTimeout == 0 {
		cfg.ReconcileTimeout = DefaultConfig().ReconcileTimeout
	}
	return &Scheduler{engine: engine, cfg: cfg, stopCh: make(chan struct{})}
}

// Start launches the ticker loops. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(2)
	go s.drainLoop(ctx)
	go s.reconcileLoop(ctx)

	logging.Info("Sync scheduler started", map[string]interface{}{
		"drain_interval_s":     s.cfg.DrainInterval.Seconds(),
		"reconcile_interval_s": s.cfg.ReconcileInterval.Seconds(),
	})
}

// Stop shuts the loops down and waits for them to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	logging.Info("Sync scheduler stopped", nil)
}

func (s *Scheduler) drainLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.engine.Kick()
		}
	}
}

func (s *Scheduler) reconcileLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runReconcile(ctx)
		}
	}
}

func (s *Scheduler) runReconcile(ctx context.Context) {
	s.mu.Lock()
	if s.inProgress {
		s.mu.Unlock()
		return
	}
	s.inProgress = true
	s.lastAttempt = time.Now()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inProgress = false
		s.mu.Unlock()
	}()

	rctx, cancel := context.WithTimeout(ctx, s.cfg.ReconcileTimeout)
	defer cancel()

	if err := s.engine.Reconcile(rctx); err != nil {
		// Unresolved conflicts are expected to stall reconciliation.
		if errors.IsConflict(err) {
			logging.Debug("Reconciliation waiting on conflict resolution", nil)
			return
		}
		logging.ErrorWithCode("Periodic reconciliation failed",
			string(errors.CodeOf(err)), err, nil)
	}
}

// SyncNow runs a full pass immediately and returns its outcome.
func (s *Scheduler) SyncNow(ctx context.Context) error {
	s.mu.Lock()
	if s.inProgress {
		s.mu.Unlock()
		return errors.New(errors.ErrInvalid, "sync already in progress")
	}
	s.inProgress = true
	s.lastAttempt = time.Now()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inProgress = false
		s.mu.Unlock()
	}()

	fctx, cancel := context.WithTimeout(ctx, s.cfg.ReconcileTimeout)
	defer cancel()
	return s.engine.ForceSync(fctx)
}

// Running reports whether the loops are active.
func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// LastAttempt returns when a pass last started, zero if never.
func (s *Scheduler) LastAttempt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastAttempt
}
