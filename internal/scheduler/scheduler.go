// Package scheduler periodically refreshes the support/resistance signal
// and decides when the ladder is stale enough to rebuild.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gridline/internal/engine"
	"gridline/internal/grid"
	"gridline/internal/market"
	"gridline/internal/metrics"
)

// SignalSource fetches a fresh S/R signal.
type SignalSource interface {
	Fetch(ctx context.Context, forceRefresh bool) (*market.Signal, error)
}

// SRStore persists the signal history and serves the previous observation
// for drift comparison.
type SRStore interface {
	LatestSignal(ctx context.Context) (*market.Signal, error)
	RecordSignal(ctx context.Context, sig *market.Signal, rebuilt bool, reasons []string) error
}

// StateFn returns the engine's current ladder view, or nil when the
// engine has no ladder yet.
type StateFn func() *engine.View

// Rebuilder applies a fresh signal to the engine.
type Rebuilder func(ctx context.Context, sig *market.Signal) error

type Config struct {
	Interval         time.Duration
	ThresholdPercent decimal.Decimal // midpoint drift that forces a rebuild
	FetchTimeout     time.Duration
}

type Scheduler struct {
	signals SignalSource
	store   SRStore
	state   StateFn
	rebuild Rebuilder
	cfg     Config
	log     zerolog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

func New(signals SignalSource, store SRStore, state StateFn, rebuild Rebuilder, cfg Config, log zerolog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 1 * time.Hour
	}
	if cfg.ThresholdPercent.Sign() <= 0 {
		cfg.ThresholdPercent = decimal.NewFromInt(5)
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 90 * time.Second
	}
	return &Scheduler{
		signals: signals,
		store:   store,
		state:   state,
		rebuild: rebuild,
		cfg:     cfg,
		log:     log.With().Str("component", "scheduler").Logger(),
	}
}

// Start launches the refresh loop: one immediate fetch, then one per
// interval. Idempotent while running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn().Msg("already running")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	go func() {
		s.runWithTimeout()

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				s.runWithTimeout()
			}
		}
	}()

	s.log.Info().Dur("interval", s.cfg.Interval).
		Str("threshold_pct", s.cfg.ThresholdPercent.String()).
		Msg("scheduler started")
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.stopCh)
	s.running = false
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunNow triggers one refresh cycle outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context) error {
	return s.runOnce(ctx)
}

func (s *Scheduler) runWithTimeout() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FetchTimeout)
	defer cancel()
	if err := s.runOnce(ctx); err != nil {
		s.log.Error().Err(err).Msg("signal refresh failed")
	}
}

// runOnce fetches a signal, evaluates the rebuild conditions, records the
// observation, and rebuilds when any condition holds. The conditions are
// OR-combined:
//  1. the midpoint drifted at least the threshold against the last
//     recorded signal (no prior record counts as drifted; a failed
//     read only skips this check),
//  2. the last price sits strictly outside the ladder span,
//  3. every level on one side is filled.
func (s *Scheduler) runOnce(ctx context.Context) error {
	sig, err := s.signals.Fetch(ctx, true)
	if err != nil {
		return fmt.Errorf("fetch signal: %w", err)
	}

	var reasons []string
	var reasonLabels []string

	prev, err := s.store.LatestSignal(ctx)
	switch {
	case err != nil:
		// A transient read failure is not drift: skip the comparison
		// rather than tearing down a ladder full of fill state.
		s.log.Warn().Err(err).Msg("could not load previous signal, skipping drift check")
	case prev == nil:
		reasons = append(reasons, "no previous signal recorded")
		reasonLabels = append(reasonLabels, "signal-drift")
	default:
		drift := market.ChangePercent(sig.Midpoint, prev.Midpoint)
		if drift.GreaterThanOrEqual(s.cfg.ThresholdPercent) {
			reasons = append(reasons, fmt.Sprintf("midpoint drifted %s%% (threshold %s%%)",
				drift.StringFixed(2), s.cfg.ThresholdPercent))
			reasonLabels = append(reasonLabels, "signal-drift")
		}
	}

	if s.state != nil {
		if view := s.state(); view != nil && len(view.Ladder) > 0 {
			if view.LastPrice.Sign() > 0 && view.Ladder.Outside(view.LastPrice) {
				lo, hi, _ := view.Ladder.Span()
				reasons = append(reasons, fmt.Sprintf("price $%s outside ladder span ($%s - $%s)",
					view.LastPrice.StringFixed(2), lo.StringFixed(2), hi.StringFixed(2)))
				reasonLabels = append(reasonLabels, "price-outside")
			}
			if view.Ladder.AllFilled(grid.Buy) {
				reasons = append(reasons, "all buy levels filled")
				reasonLabels = append(reasonLabels, "side-exhausted")
			}
			if view.Ladder.AllFilled(grid.Sell) {
				reasons = append(reasons, "all sell levels filled")
				reasonLabels = append(reasonLabels, "side-exhausted")
			}
		}
	}

	shouldRebuild := len(reasons) > 0

	// The observation is recorded either way so the next cycle has a
	// comparison point even when nothing rebuilt.
	if err := s.store.RecordSignal(ctx, sig, shouldRebuild, reasons); err != nil {
		s.log.Warn().Err(err).Msg("could not record signal")
	}

	s.log.Info().
		Str("support", sig.Support.StringFixed(2)).
		Str("resistance", sig.Resistance.StringFixed(2)).
		Str("midpoint", sig.Midpoint.StringFixed(2)).
		Msg("signal recorded")

	if !shouldRebuild {
		s.log.Info().Msg("ladder stable, no rebuild needed")
		return nil
	}

	for _, label := range reasonLabels {
		metrics.Rebuilds.WithLabelValues(label).Inc()
	}
	s.log.Info().Str("reasons", strings.Join(reasons, "; ")).Msg("rebuilding ladder")

	if s.rebuild != nil {
		if err := s.rebuild(ctx, sig); err != nil {
			return fmt.Errorf("rebuild: %w", err)
		}
	}
	return nil
}
