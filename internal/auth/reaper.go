// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/holoauth/pkg/errutil"
)

// DefaultReapInterval is how often expired sessions are swept.
const DefaultReapInterval = time.Minute

// ReaperConfig controls the session reaper.
type ReaperConfig struct {
	Interval time.Duration
	Logger   *slog.Logger
	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Found   int
	Deleted int
	Failed  int
}

// Reaper periodically deletes expired sessions. Verification and reset
// tokens are not reaped; their expiry is checked when they are consumed.
type Reaper struct {
	store    SessionStore
	interval time.Duration
	logger   *slog.Logger
	clock    func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReaper creates a Reaper over store.
func NewReaper(store SessionStore, cfg ReaperConfig) (*Reaper, error) {
	if store == nil {
		return nil, oops.Errorf("session store is required")
	}
	if cfg.Interval < 0 {
		return nil, oops.With("interval", cfg.Interval.String()).Errorf("reap interval must be positive")
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultReapInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Reaper{
		store:    store,
		interval: cfg.Interval,
		logger:   cfg.Logger,
		clock:    cfg.Now,
	}, nil
}

// Sweep deletes every session that expired before now. Each session is
// deleted on its own; a failure is logged and the sweep moves on. Only a
// failure to list expired sessions is returned.
func (r *Reaper) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	expired, err := r.store.ListExpired(ctx, r.clock())
	if err != nil {
		ReaperFailures.Inc()
		return result, oops.Code("REAPER_LIST_FAILED").
			With("operation", "list expired sessions").
			Wrap(err)
	}
	result.Found = len(expired)

	for _, session := range expired {
		if err := ctx.Err(); err != nil {
			return result, nil
		}
		if _, err := r.store.Delete(ctx, session.ID); err != nil {
			result.Failed++
			ReaperFailures.Inc()
			errutil.LogError(r.logger, "failed to delete expired session", err,
				"session", session.Fingerprint(),
				"user_id", session.UserID.String(),
			)
			continue
		}
		result.Deleted++
		SessionsReaped.Inc()
	}

	if result.Found > 0 {
		r.logger.Info("reaped expired sessions",
			"found", result.Found,
			"deleted", result.Deleted,
			"failed", result.Failed,
		)
	}
	return result, nil
}

// Start begins periodic sweeping in a background goroutine. The first sweep
// runs immediately.
func (r *Reaper) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_ = r.Run(ctx)
	}()
}

// Stop cancels the background goroutine and waits for it to exit.
func (r *Reaper) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
// It blocks and returns nil on cancellation.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.sweepAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.sweepAndLog(ctx)
		}
	}
}

func (r *Reaper) sweepAndLog(ctx context.Context) {
	if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
		errutil.LogError(r.logger, "session sweep failed", err)
	}
}
