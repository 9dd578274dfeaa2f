// Package sweep prunes aged extraction data on a cron schedule: documents in
// a terminal state, and completed rounds, past the retention window.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/skarlatos/foliograph/internal/config"
	"github.com/skarlatos/foliograph/internal/store"
)

type Sweeper struct {
	store *store.Store

	mu           sync.Mutex
	schedule     string
	maxAge       time.Duration
	pollInterval time.Duration

	reloadCh chan struct{}
}

func New(st *store.Store, cfg config.SweepConfig) (*Sweeper, error) {
	if !gronx.New().IsValid(cfg.Schedule) {
		return nil, fmt.Errorf("invalid sweep schedule %q", cfg.Schedule)
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 720 * time.Hour
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = time.Minute
	}
	return &Sweeper{
		store:        st,
		schedule:     cfg.Schedule,
		maxAge:       maxAge,
		pollInterval: poll,
		reloadCh:     make(chan struct{}, 1),
	}, nil
}

// UpdateConfig applies new sweep settings and signals the run loop to reset
// its ticker and schedule.
func (s *Sweeper) UpdateConfig(cfg config.SweepConfig) error {
	if !gronx.New().IsValid(cfg.Schedule) {
		return fmt.Errorf("invalid sweep schedule %q", cfg.Schedule)
	}

	s.mu.Lock()
	s.schedule = cfg.Schedule
	if cfg.MaxAge > 0 {
		s.maxAge = cfg.MaxAge
	}
	if cfg.PollInterval > 0 {
		s.pollInterval = cfg.PollInterval
	}
	s.mu.Unlock()

	select {
	case s.reloadCh <- struct{}{}:
	default:
	}
	return nil
}

func (s *Sweeper) settings() (schedule string, maxAge, poll time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule, s.maxAge, s.pollInterval
}

// Start polls until the context is cancelled, running a sweep whenever the
// cron schedule comes due.
func (s *Sweeper) Start(ctx context.Context) {
	schedule, maxAge, poll := s.settings()

	next, err := gronx.NextTick(schedule, false)
	if err != nil {
		slog.Error("sweep schedule unusable", "schedule", schedule, "error", err)
		return
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	slog.Info("sweeper started", "schedule", schedule, "max_age", maxAge)

	for {
		select {
		case <-ctx.Done():
			slog.Info("sweeper stopped")
			return

		case <-s.reloadCh:
			schedule, maxAge, poll = s.settings()
			ticker.Reset(poll)
			next, err = gronx.NextTick(schedule, false)
			if err != nil {
				slog.Error("sweep schedule unusable", "schedule", schedule, "error", err)
				return
			}
			slog.Info("sweeper config reloaded", "schedule", schedule, "max_age", maxAge)

		case <-ticker.C:
			if time.Now().Before(next) {
				continue
			}
			s.Sweep()
			schedule, _, _ = s.settings()
			next, err = gronx.NextTick(schedule, false)
			if err != nil {
				slog.Error("sweep schedule unusable", "schedule", schedule, "error", err)
				return
			}
		}
	}
}

// Sweep prunes everything past the retention window once. Documents still
// pending or processing and the active round are never touched, so a running
// extraction cannot lose data.
func (s *Sweeper) Sweep() (docs, rounds int) {
	_, maxAge, _ := s.settings()
	cutoff := time.Now().Add(-maxAge)

	docs, err := s.store.DeleteDocumentsBefore(cutoff)
	if err != nil {
		slog.Error("document sweep failed", "error", err)
	}
	rounds, err = s.store.DeleteRoundsBefore(cutoff)
	if err != nil {
		slog.Error("round sweep failed", "error", err)
	}

	if docs > 0 || rounds > 0 {
		slog.Info("sweep pruned aged data", "documents", docs, "rounds", rounds,
			"cutoff", cutoff.UTC().Format(time.RFC3339))
	}
	return docs, rounds
}
