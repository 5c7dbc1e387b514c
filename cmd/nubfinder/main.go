package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aryannaik/nubfinder/internal/config"
	"github.com/aryannaik/nubfinder/internal/feed"
	"github.com/aryannaik/nubfinder/internal/index"
	"github.com/aryannaik/nubfinder/internal/metrics"
	"github.com/aryannaik/nubfinder/internal/refresh"
	"github.com/aryannaik/nubfinder/internal/search"
	"github.com/aryannaik/nubfinder/internal/snapshot"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:          "nubfinder",
		Short:        "Keyword search over the nub catalog",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./nubfinder.yaml)")

	root.AddCommand(serveCmd(&cfgPath), refreshCmd(&cfgPath), searchCmd(&cfgPath))
	return root
}

// app is the wired catalog: feed, snapshot, index and the scheduler that
// keeps them in step.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	fetcher  *feed.Client
	store    *snapshot.Store
	index    *index.Index
	sched    *refresh.Scheduler
	searcher *search.Searcher
}

func newApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.LogLevel)
	m := metrics.New()

	idx, err := index.New()
	if err != nil {
		return nil, err
	}

	fetcher := feed.NewClient(cfg.Feed.Endpoint, cfg.Feed.Timeout)
	store := snapshot.NewStore(cfg.Snapshot.Path)
	sched, err := refresh.New(refresh.Config{
		Fetcher:  fetcher,
		Store:    store,
		Index:    idx,
		Interval: cfg.Refresh.Interval(),
		Logger:   logger,
		Metrics:  m,
	})
	if err != nil {
		_ = idx.Close()
		return nil, err
	}

	searcher := search.NewSearcher(idx, search.Options{
		Workers: cfg.Search.Workers,
		Timeout: cfg.Search.Timeout,
		Metrics: m,
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		fetcher:  fetcher,
		store:    store,
		index:    idx,
		sched:    sched,
		searcher: searcher,
	}, nil
}

func (a *app) Close() error {
	if err := a.index.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
