package search

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsExposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "results")
	mock := clock.NewMock()
	remote := newFakeRemote()
	orch := New(remote.query, WithClock(mock), WithMetrics(m))
	defer orch.Dispose()

	orch.Submit("lib")
	mock.Add(DefaultDebounce)
	remote.fail("lib", errors.New("boom"))
	require.Eventually(t, func() bool { return orch.State().Phase == Settled }, waitFor, tick)

	expected := `
# HELP reposearch_search_errors_total Published errors by kind.
# TYPE reposearch_search_errors_total counter
reposearch_search_errors_total{kind="server",surface="results"} 1
# HELP reposearch_search_requests_total Remote calls issued after the debounce interval.
# TYPE reposearch_search_requests_total counter
reposearch_search_requests_total{surface="results"} 1
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"reposearch_search_errors_total", "reposearch_search_requests_total")
	assert.NoError(t, err)
	assert.Equal(t, 1, testutil.CollectAndCount(m.Duration))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.submit()
	m.request()
	m.stale()
	m.settled(time.Second, nil)
}

func TestMetricsPerSurface(t *testing.T) {
	reg := prometheus.NewRegistry()
	results := NewMetrics(reg, "results")
	detail := NewMetrics(reg, "detail")

	results.submit()
	results.submit()
	detail.submit()

	assert.Equal(t, 2.0, testutil.ToFloat64(results.Submits))
	assert.Equal(t, 1.0, testutil.ToFloat64(detail.Submits))
}
