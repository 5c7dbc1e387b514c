package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/aryannaik/nubfinder/internal/index"
	"github.com/aryannaik/nubfinder/internal/refresh"
	"github.com/aryannaik/nubfinder/internal/search"
)

const (
	msgBadQuery = "couldn't understand that"
	msgNotFound = "i couldn't find that nub :("
)

type Searcher interface {
	Search(ctx context.Context, q string) ([]index.Result, error)
	Autocomplete(ctx context.Context, q string) ([]search.Choice, error)
	Resolve(ctx context.Context, value string) (string, error)
}

type Refresher interface {
	RunOnce(ctx context.Context) error
	State() refresh.State
	LastSuccess() time.Time
	LastError() error
	Interval() time.Duration
}

// Corpus reports on the live index.
type Corpus interface {
	Count() uint64
	Generation() uint64
}

// Snapshot reports on the persisted catalog.
type Snapshot interface {
	UpdatedAt() time.Time
}

type Handlers struct {
	searcher  Searcher
	refresher Refresher
	corpus    Corpus
	snapshot  Snapshot
}

func NewHandlers(searcher Searcher, refresher Refresher, corpus Corpus, snapshot Snapshot) *Handlers {
	return &Handlers{
		searcher:  searcher,
		refresher: refresher,
		corpus:    corpus,
		snapshot:  snapshot,
	}
}

func (h *Handlers) HandleSearch(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing query parameter 'q'")
	}

	results, err := h.searcher.Search(c.Request().Context(), query)
	if err != nil {
		return searchError(err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"query":   query,
		"results": results,
		"total":   len(results),
	})
}

func (h *Handlers) HandleAutocomplete(c echo.Context) error {
	choices, err := h.searcher.Autocomplete(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return searchError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"choices": choices})
}

func (h *Handlers) HandleResolve(c echo.Context) error {
	value := c.QueryParam("q")
	if value == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing query parameter 'q'")
	}

	source, err := h.searcher.Resolve(c.Request().Context(), value)
	if err != nil {
		return searchError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"source": source})
}

type statusResponse struct {
	Documents         uint64 `json:"documents"`
	Generation        uint64 `json:"generation"`
	State             string `json:"state"`
	IntervalSeconds   int    `json:"intervalSeconds"`
	LastRefresh       string `json:"lastRefresh"`
	LastError         string `json:"lastError,omitempty"`
	SnapshotUpdatedAt string `json:"snapshotUpdatedAt"`
}

func (h *Handlers) HandleStatus(c echo.Context) error {
	resp := statusResponse{
		Documents:         h.corpus.Count(),
		Generation:        h.corpus.Generation(),
		State:             h.refresher.State().String(),
		IntervalSeconds:   int(h.refresher.Interval() / time.Second),
		LastRefresh:       formatTime(h.refresher.LastSuccess()),
		SnapshotUpdatedAt: formatTime(h.snapshot.UpdatedAt()),
	}
	if err := h.refresher.LastError(); err != nil {
		resp.LastError = err.Error()
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleRefresh starts an out-of-band cycle and returns immediately.
func (h *Handlers) HandleRefresh(c echo.Context) error {
	if h.refresher.State() != refresh.StateIdle {
		return echo.NewHTTPError(http.StatusConflict, refresh.ErrBusy.Error())
	}

	ctx := context.WithoutCancel(c.Request().Context())
	go func() { _ = h.refresher.RunOnce(ctx) }()

	return c.JSON(http.StatusAccepted, map[string]string{"status": "refresh started"})
}

func searchError(err error) error {
	switch {
	case errors.Is(err, search.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, msgNotFound).SetInternal(err)
	case errors.Is(err, index.ErrQuery):
		return echo.NewHTTPError(http.StatusBadRequest, msgBadQuery).SetInternal(err)
	default:
		return err
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
