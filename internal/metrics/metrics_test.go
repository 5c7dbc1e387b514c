package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m := New()

	m.ObserveRefresh(time.Second, nil)
	m.ObserveRefresh(time.Second, errors.New("boom"))
	m.ObserveRebuild(42, nil)
	m.ObserveRebuild(7, errors.New("boom"))
	m.ObserveSearch(time.Millisecond, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshCycles.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshCycles.WithLabelValues(ResultError)))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.documents))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rebuilds.WithLabelValues(ResultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.searches.WithLabelValues(ResultOK)))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRefresh(time.Second, nil)
	m.ObserveRebuild(1, nil)
	m.ObserveSearch(time.Second, nil)
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveRebuild(3, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nubfinder_index_documents 3")
}
