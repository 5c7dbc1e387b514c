package search

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/aryannaik/nubfinder/internal/index"
	"github.com/aryannaik/nubfinder/internal/metrics"
)

// ChoicePrefix marks an autocomplete value that already names a locator.
const ChoicePrefix = "nub:"

// ErrNotFound is returned by Resolve when nothing matches.
var ErrNotFound = errors.New("no matching item")

// Choice is one autocomplete suggestion. Name is shown to the user, Value is
// sent back on submit.
type Choice struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Index is the query side of the search index.
type Index interface {
	Search(ctx context.Context, q string) ([]index.Result, error)
}

type Options struct {
	// Workers bounds concurrent index queries. Defaults to GOMAXPROCS.
	Workers int
	// Timeout bounds one query including the wait for a worker.
	Timeout time.Duration
	Metrics *metrics.Metrics
}

// Searcher runs index queries on a bounded pool so request handlers never
// pile unbounded CPU work onto the index.
type Searcher struct {
	idx     Index
	slots   *semaphore.Weighted
	timeout time.Duration
	metrics *metrics.Metrics
}

func NewSearcher(idx Index, opts Options) *Searcher {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Searcher{
		idx:     idx,
		slots:   semaphore.NewWeighted(int64(workers)),
		timeout: timeout,
		metrics: opts.Metrics,
	}
}

// Search returns up to index.MaxResults ranked hits. Timeouts surface as
// index.ErrQuery.
func (s *Searcher) Search(ctx context.Context, q string) ([]index.Result, error) {
	start := time.Now()
	results, err := s.search(ctx, q)
	s.metrics.ObserveSearch(time.Since(start), err)
	return results, err
}

func (s *Searcher) search(ctx context.Context, q string) ([]index.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: waiting for worker: %w", index.ErrQuery, err)
	}
	defer s.slots.Release(1)

	return s.idx.Search(ctx, q)
}

// Autocomplete turns the hits for a partially typed query into choices.
// Blank input yields no choices rather than an error.
func (s *Searcher) Autocomplete(ctx context.Context, q string) ([]Choice, error) {
	if strings.TrimSpace(q) == "" {
		return []Choice{}, nil
	}

	hits, err := s.Search(ctx, q)
	if err != nil {
		return nil, err
	}

	choices := make([]Choice, 0, len(hits))
	for _, hit := range hits {
		choices = append(choices, Choice{
			Name:  choiceName(hit),
			Value: ChoicePrefix + hit.Source,
		})
	}
	return choices, nil
}

// Resolve maps a submitted value to a locator. Values picked from the
// autocomplete list carry the locator directly; free text resolves to the
// best hit.
func (s *Searcher) Resolve(ctx context.Context, value string) (string, error) {
	if source, ok := strings.CutPrefix(value, ChoicePrefix); ok {
		return source, nil
	}

	hits, err := s.Search(ctx, value)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return "", ErrNotFound
	}
	return hits[0].Source, nil
}

// choiceName falls back to the locator for untagged items so the
// suggestion is never blank.
func choiceName(hit index.Result) string {
	if hit.Tags != "" {
		return hit.Tags
	}
	return hit.Source
}
