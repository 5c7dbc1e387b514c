package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/aryannaik/nubfinder/internal/feed"
	"github.com/aryannaik/nubfinder/internal/metrics"
	"github.com/aryannaik/nubfinder/internal/snapshot"
)

// ErrBusy is returned by RunOnce while another cycle is in flight.
var ErrBusy = errors.New("refresh already in progress")

// State is the scheduler's position within a refresh cycle.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StatePersisting
	StateRebuilding
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StatePersisting:
		return "persisting"
	case StateRebuilding:
		return "rebuilding"
	default:
		return "unknown"
	}
}

type Fetcher interface {
	Fetch(ctx context.Context) ([]feed.Item, error)
}

type Store interface {
	Save(items []feed.Item) error
	LoadOrFetch(ctx context.Context, fetcher snapshot.Fetcher) ([]feed.Item, error)
}

type Indexer interface {
	Rebuild(items []feed.Item) error
}

type Config struct {
	Fetcher  Fetcher
	Store    Store
	Index    Indexer
	Interval time.Duration
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Scheduler keeps the index in step with the remote feed: one seed at
// startup, then a fetch, persist and rebuild cycle every Interval.
type Scheduler struct {
	fetcher  Fetcher
	store    Store
	index    Indexer
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics

	cycle sync.Mutex
	state atomic.Int32

	mu          sync.RWMutex
	lastSuccess time.Time
	lastErr     error
}

func New(cfg Config) (*Scheduler, error) {
	if cfg.Fetcher == nil || cfg.Store == nil || cfg.Index == nil {
		return nil, errors.New("refresh: fetcher, store and index are required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("refresh: invalid interval %s", cfg.Interval)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		fetcher:  cfg.Fetcher,
		store:    cfg.Store,
		index:    cfg.Index,
		interval: cfg.Interval,
		logger:   logger.With("component", "refresh"),
		metrics:  cfg.Metrics,
	}, nil
}

// Seed builds the first corpus from the snapshot, or from the feed when no
// usable snapshot exists. A failure here leaves nothing to serve.
func (s *Scheduler) Seed(ctx context.Context) error {
	s.cycle.Lock()
	defer s.cycle.Unlock()

	start := time.Now()
	s.setState(StateFetching)
	defer s.setState(StateIdle)

	items, err := s.store.LoadOrFetch(ctx, s.fetcher)
	if err != nil {
		s.finish(start, err)
		return fmt.Errorf("seed catalog: %w", err)
	}

	s.setState(StateRebuilding)
	err = s.index.Rebuild(items)
	s.metrics.ObserveRebuild(len(items), err)
	if err != nil {
		s.finish(start, err)
		return fmt.Errorf("seed index: %w", err)
	}

	s.finish(start, nil)
	s.logger.Info("catalog seeded", "items", len(items), "took", time.Since(start))
	return nil
}

// Run blocks until ctx is done, running one cycle per tick. Failed cycles
// are logged and retried on the next tick; the live index is untouched.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("refresh loop started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("refresh loop stopped")
			return
		case <-ticker.C:
			err := s.RunOnce(ctx)
			if errors.Is(err, ErrBusy) {
				s.logger.Debug("skipping tick, cycle in flight")
			}
		}
	}
}

// RunOnce performs one fetch, persist and rebuild cycle. The state always
// returns to idle, whatever the outcome.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if !s.cycle.TryLock() {
		return ErrBusy
	}
	defer s.cycle.Unlock()
	defer s.setState(StateIdle)

	start := time.Now()
	logger := s.logger.With("cycle", uuid.NewString())

	s.setState(StateFetching)
	items, err := s.fetcher.Fetch(ctx)
	if err != nil {
		return s.fail(logger, start, "fetch", err)
	}
	logger.Info("fetched feed", "items", len(items))

	s.setState(StatePersisting)
	if err := s.store.Save(items); err != nil {
		return s.fail(logger, start, "persist", err)
	}

	s.setState(StateRebuilding)
	err = s.index.Rebuild(items)
	s.metrics.ObserveRebuild(len(items), err)
	if err != nil {
		return s.fail(logger, start, "rebuild", err)
	}

	s.finish(start, nil)
	logger.Info("refresh complete", "items", len(items), "took", time.Since(start))
	return nil
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// LastSuccess is the completion time of the last successful seed or cycle.
func (s *Scheduler) LastSuccess() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSuccess
}

// LastError is the error of the most recent cycle, nil if it succeeded.
func (s *Scheduler) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *Scheduler) Interval() time.Duration { return s.interval }

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
}

func (s *Scheduler) fail(logger *slog.Logger, start time.Time, step string, err error) error {
	err = fmt.Errorf("%s: %w", step, err)
	s.finish(start, err)
	logger.Error("refresh failed", "step", step, "error", err, "took", time.Since(start))
	return err
}

func (s *Scheduler) finish(start time.Time, err error) {
	s.metrics.ObserveRefresh(time.Since(start), err)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	if err == nil {
		s.lastSuccess = time.Now()
	}
}
