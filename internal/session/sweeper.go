package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper evicts idle sessions on a fixed interval from its own goroutine.
type Sweeper struct {
	store    Store
	interval time.Duration
	ttl      time.Duration
	now      func() time.Time
	onEvict  func(n int)
	logger   zerolog.Logger
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepClock overrides the clock used to judge staleness.
func WithSweepClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) { s.now = now }
}

// WithEvictHook is called after each sweep that removed sessions.
func WithEvictHook(fn func(n int)) SweeperOption {
	return func(s *Sweeper) { s.onEvict = fn }
}

// NewSweeper creates a sweeper. Non-positive durations fall back to 5m
// interval and 30m ttl.
func NewSweeper(store Store, interval, ttl time.Duration, logger zerolog.Logger, opts ...SweeperOption) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	s := &Sweeper{
		store:    store,
		interval: interval,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger.With().Str("component", "session-sweeper").Logger(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run sweeps until ctx is cancelled. It always returns nil so it can sit in
// an errgroup next to the HTTP server.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Dur("ttl", s.ttl).Msg("session sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("session sweeper stopped")
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs a single eviction pass.
func (s *Sweeper) Sweep(ctx context.Context) int {
	n, err := s.store.EvictStale(ctx, s.now(), s.ttl)
	if err != nil && ctx.Err() == nil {
		s.logger.Warn().Err(err).Msg("session sweep failed")
	}
	if n > 0 {
		s.logger.Debug().Int("evicted", n).Msg("evicted idle sessions")
		if s.onEvict != nil {
			s.onEvict(n)
		}
	}
	return n
}
