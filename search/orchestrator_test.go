package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/git-pkgs/reposearch/internal/api"
	"github.com/git-pkgs/reposearch/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

type reply struct {
	items []string
	err   error
}

// fakeRemote blocks every call until the test responds to its query.
// It ignores context cancellation, like a transport that cannot be interrupted.
type fakeRemote struct {
	mu      sync.Mutex
	calls   []string
	replies map[string]chan reply
	ctxs    map[string]context.Context
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		replies: make(map[string]chan reply),
		ctxs:    make(map[string]context.Context),
	}
}

func (f *fakeRemote) channel(q string) chan reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.replies[q]
	if !ok {
		ch = make(chan reply, 1)
		f.replies[q] = ch
	}
	return ch
}

func (f *fakeRemote) query(ctx context.Context, q string) ([]string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, q)
	f.ctxs[q] = ctx
	f.mu.Unlock()

	r := <-f.channel(q)
	return r.items, r.err
}

func (f *fakeRemote) respond(q string, items ...string) {
	f.channel(q) <- reply{items: items}
}

func (f *fakeRemote) fail(q string, err error) {
	f.channel(q) <- reply{err: err}
}

func (f *fakeRemote) callList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRemote) ctx(q string) context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ctxs[q]
}

type recorder struct {
	mu     sync.Mutex
	states []State[[]string]
}

func (r *recorder) record(s State[[]string]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) snapshot() []State[[]string] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State[[]string](nil), r.states...)
}

func (r *recorder) phases() []Phase {
	var out []Phase
	for _, s := range r.snapshot() {
		out = append(out, s.Phase)
	}
	return out
}

type fixture struct {
	orch    *Orchestrator[[]string]
	clock   *clock.Mock
	remote  *fakeRemote
	metrics *Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:   clock.NewMock(),
		remote:  newFakeRemote(),
		metrics: NewMetrics(prometheus.NewRegistry(), "test"),
	}
	f.orch = New(f.remote.query, WithClock(f.clock), WithMetrics(f.metrics))
	t.Cleanup(f.orch.Dispose)
	return f
}

func (f *fixture) waitPhase(t *testing.T, phase Phase, query string) State[[]string] {
	t.Helper()
	require.Eventually(t, func() bool {
		s := f.orch.State()
		return s.Phase == phase && s.Query == query
	}, waitFor, tick, "never reached %s %q, last state %+v", phase, query, f.orch.State())
	return f.orch.State()
}

func (f *fixture) waitCalls(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(f.remote.callList()) == n
	}, waitFor, tick)
}

func (f *fixture) waitStale(t *testing.T, n float64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.Stale) == n
	}, waitFor, tick)
}

func TestInitialStateIsIdle(t *testing.T) {
	f := newFixture(t)

	s := f.orch.State()
	assert.Equal(t, Idle, s.Phase)
	assert.Empty(t, s.Query)
	assert.Nil(t, s.Result)
	assert.Nil(t, s.Err)
}

func TestDebounceCoalescing(t *testing.T) {
	f := newFixture(t)

	f.orch.Submit("a")
	f.clock.Add(100 * time.Millisecond)
	f.orch.Submit("ab")
	f.clock.Add(100 * time.Millisecond)
	f.orch.Submit("abc")

	s := f.orch.State()
	assert.Equal(t, PendingDebounce, s.Phase)
	assert.Equal(t, "abc", s.Query)

	f.clock.Add(DefaultDebounce)
	f.remote.respond("abc", "x")
	f.waitPhase(t, Settled, "abc")

	assert.Equal(t, []string{"abc"}, f.remote.callList())
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.Submits))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Requests))
}

func TestTimerWaitsForFullQuietInterval(t *testing.T) {
	f := newFixture(t)

	f.orch.Submit("lib")
	f.clock.Add(DefaultDebounce - time.Millisecond)
	assert.Equal(t, PendingDebounce, f.orch.State().Phase)
	assert.Empty(t, f.remote.callList())

	f.clock.Add(time.Millisecond)
	s := f.orch.State()
	assert.Equal(t, InFlight, s.Phase)
	assert.Equal(t, "lib", s.Query)
	assert.NotZero(t, s.Token)
	f.remote.respond("lib")
}

func TestSubmitTrimsQuery(t *testing.T) {
	f := newFixture(t)

	f.orch.Submit("  libcurl \n")
	assert.Equal(t, "libcurl", f.orch.State().Query)

	f.clock.Add(DefaultDebounce)
	f.waitCalls(t, 1)
	assert.Equal(t, []string{"libcurl"}, f.remote.callList())
	f.remote.respond("libcurl")
}

func TestStaleCompletionDiscarded(t *testing.T) {
	f := newFixture(t)

	f.orch.Submit("a")
	f.clock.Add(DefaultDebounce)
	f.waitCalls(t, 1)

	f.orch.Submit("b")
	f.clock.Add(DefaultDebounce)
	f.waitCalls(t, 2)

	f.remote.respond("b", "b-result")
	f.waitPhase(t, Settled, "b")

	f.remote.respond("a", "a-result")
	f.waitStale(t, 1)

	s := f.orch.State()
	assert.Equal(t, "b", s.Query)
	assert.Equal(t, []string{"b-result"}, s.Result)
}

func TestStaleCompletionWhileNewQueryPending(t *testing.T) {
	f := newFixture(t)

	f.orch.Submit("a")
	f.clock.Add(DefaultDebounce)
	f.waitCalls(t, 1)

	f.orch.Submit("b")
	f.remote.fail("a", errors.New("connection reset"))
	f.waitStale(t, 1)

	s := f.orch.State()
	assert.Equal(t, PendingDebounce, s.Phase)
	assert.Equal(t, "b", s.Query)
	assert.Nil(t, s.Err)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.Errors.WithLabelValues("network")))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.Errors.WithLabelValues("server")))
}

func TestOutOfOrderArrival(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}
	f.orch.Subscribe(rec.record)

	f.orch.Submit("x")
	f.clock.Add(DefaultDebounce)
	f.waitCalls(t, 1)
	f.orch.Submit("y")
	f.clock.Add(DefaultDebounce)
	f.waitCalls(t, 2)

	f.remote.respond("y", "y1")
	f.waitPhase(t, Settled, "y")
	f.remote.respond("x", "x1")
	f.waitStale(t, 1)

	assert.Equal(t, []string{"y1"}, f.orch.State().Result)
	for _, s := range rec.snapshot() {
		if s.Phase == Settled {
			assert.Equal(t, "y", s.Query, "result for a superseded query was published")
		}
	}
}

func TestSupersededCallContextCancelled(t *testing.T) {
	f := newFixture(t)

	f.orch.Submit("a")
	f.clock.Add(DefaultDebounce)
	f.waitCalls(t, 1)
	ctx := f.remote.ctx("a")
	require.NoError(t, ctx.Err())

	f.orch.Submit("ab")
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	f.remote.respond("a")
}

func TestEmptyQueryShortCircuit(t *testing.T) {
	for _, q := range []string{"", "   ", "\t\n"} {
		t.Run("from settled/"+q, func(t *testing.T) {
			f := newFixture(t)
			f.orch.Submit("lib")
			f.clock.Add(DefaultDebounce)
			f.remote.respond("lib", "libz")
			f.waitPhase(t, Settled, "lib")

			f.orch.Submit(q)
			s := f.orch.State()
			assert.Equal(t, Idle, s.Phase)
			assert.Empty(t, s.Query)
			assert.Nil(t, s.Result)

			f.clock.Add(time.Hour)
			assert.Equal(t, []string{"lib"}, f.remote.callList())
		})
	}

	t.Run("from pending", func(t *testing.T) {
		f := newFixture(t)
		f.orch.Submit("lib")
		f.orch.Submit("")
		f.clock.Add(time.Hour)

		assert.Equal(t, Idle, f.orch.State().Phase)
		assert.Empty(t, f.remote.callList())
	})

	t.Run("from in-flight", func(t *testing.T) {
		f := newFixture(t)
		f.orch.Submit("lib")
		f.clock.Add(DefaultDebounce)
		f.waitCalls(t, 1)

		f.orch.Submit(" ")
		assert.ErrorIs(t, f.remote.ctx("lib").Err(), context.Canceled)

		f.remote.respond("lib", "libz")
		f.waitStale(t, 1)
		assert.Equal(t, Idle, f.orch.State().Phase)
	})
}

func TestSettledError(t *testing.T) {
	f := newFixture(t)

	f.orch.Submit("lib")
	f.clock.Add(DefaultDebounce)
	f.remote.fail("lib", &core.HTTPError{StatusCode: 500, Message: "index rebuilding"})

	s := f.waitPhase(t, Settled, "lib")
	require.NotNil(t, s.Err)
	assert.Equal(t, core.KindServer, s.Err.Kind)
	assert.Equal(t, "index rebuilding", s.Err.Message)
	assert.True(t, s.Failed())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Errors.WithLabelValues("server")))
	assert.Equal(t, []string{"lib"}, f.remote.callList(), "errors must not be retried")
}

func TestCancelledErrorNeverPublished(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}
	f.orch.Subscribe(rec.record)

	f.orch.Submit("lib")
	f.clock.Add(DefaultDebounce)
	f.remote.fail("lib", context.Canceled)
	f.waitPhase(t, Idle, "")

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 3 }, waitFor, tick)
	for _, s := range rec.snapshot() {
		assert.Nil(t, s.Err)
	}
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.Errors.WithLabelValues("cancelled")))
}

func TestRetryIsUserInitiated(t *testing.T) {
	f := newFixture(t)

	f.orch.Submit("lib")
	f.clock.Add(DefaultDebounce)
	f.remote.fail("lib", errors.New("boom"))
	f.waitPhase(t, Settled, "lib")

	f.orch.Submit("lib")
	f.clock.Add(DefaultDebounce)
	f.remote.respond("lib", "libz")
	s := f.waitPhase(t, Settled, "lib")
	require.Nil(t, s.Err)

	assert.Equal(t, []string{"lib", "lib"}, f.remote.callList())
	assert.Equal(t, []string{"libz"}, s.Result)
}

func TestDisposeIdempotent(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}
	f.orch.Subscribe(rec.record)

	f.orch.Submit("lib")
	f.clock.Add(DefaultDebounce)
	f.waitCalls(t, 1)
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, waitFor, tick)

	f.orch.Dispose()
	f.orch.Dispose()
	assert.ErrorIs(t, f.remote.ctx("lib").Err(), context.Canceled)

	f.remote.respond("lib", "libz")
	f.waitStale(t, 1)
	f.orch.Submit("other")
	f.clock.Add(time.Hour)

	assert.Equal(t, InFlight, f.orch.State().Phase)
	assert.Equal(t, []Phase{PendingDebounce, InFlight}, rec.phases())
	assert.Equal(t, []string{"lib"}, f.remote.callList())
}

func TestDisposeCancelsPendingTimer(t *testing.T) {
	f := newFixture(t)

	f.orch.Submit("lib")
	f.orch.Dispose()
	f.clock.Add(time.Hour)

	assert.Empty(t, f.remote.callList())
	assert.Equal(t, PendingDebounce, f.orch.State().Phase)
}

func TestObserversSeeOrderedTransitions(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}
	f.orch.Subscribe(rec.record)

	f.orch.Submit("lib")
	f.clock.Add(DefaultDebounce)
	f.remote.respond("lib", "libz", "libpng")
	f.waitPhase(t, Settled, "lib")
	f.orch.Submit("")

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 4 }, waitFor, tick)
	assert.Equal(t, []Phase{PendingDebounce, InFlight, Settled, Idle}, rec.phases())

	states := rec.snapshot()
	assert.Equal(t, states[1].Token, states[2].Token)
	assert.Equal(t, []string{"libz", "libpng"}, states[2].Result)
}

func TestObserverMaySubmit(t *testing.T) {
	f := newFixture(t)
	var once sync.Once
	f.orch.Subscribe(func(s State[[]string]) {
		if s.Phase == Settled {
			once.Do(func() { f.orch.Submit("") })
		}
	})

	f.orch.Submit("lib")
	f.clock.Add(DefaultDebounce)
	f.remote.respond("lib", "libz")
	f.waitPhase(t, Idle, "")
}

func TestUnsubscribe(t *testing.T) {
	f := newFixture(t)
	var count atomic.Int32
	unsubscribe := f.orch.Subscribe(func(State[[]string]) { count.Add(1) })
	rec := &recorder{}
	f.orch.Subscribe(rec.record)

	f.orch.Submit("a")
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, waitFor, tick)
	unsubscribe()
	unsubscribe()

	f.orch.Submit("b")
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, waitFor, tick)
	assert.Equal(t, int32(1), count.Load())
}

func TestCustomDebounce(t *testing.T) {
	mock := clock.NewMock()
	remote := newFakeRemote()
	orch := New(remote.query, WithClock(mock), WithDebounce(50*time.Millisecond))
	defer orch.Dispose()

	orch.Submit("lib")
	mock.Add(50 * time.Millisecond)
	assert.Equal(t, InFlight, orch.State().Phase)
	remote.respond("lib")
}

func TestTokensIncrease(t *testing.T) {
	f := newFixture(t)

	f.orch.Submit("a")
	f.clock.Add(DefaultDebounce)
	first := f.orch.State().Token
	f.orch.Submit("b")
	f.clock.Add(DefaultDebounce)
	second := f.orch.State().Token

	assert.Greater(t, second, first)
	f.remote.respond("a")
	f.remote.respond("b")
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "pending", PendingDebounce.String())
	assert.Equal(t, "in-flight", InFlight.String())
	assert.Equal(t, "settled", Settled.String())
	assert.Equal(t, "unknown", Phase(42).String())
}

func TestEndToEndLibcurl(t *testing.T) {
	var calls atomic.Int32
	var gotQuery atomic.Value
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		gotQuery.Store(r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"id": "1", "name": "libcurl", "format": "conan", "version": "8.4.0", "size": 524288, "repository": "conan-local"},
				{"id": "2", "name": "libcurl-dev", "format": "deb", "version": "8.4.0-1", "size": 102400, "repository": "debian-remote"},
			},
			"total": 2,
		})
	}))
	defer ts.Close()

	srv := api.New(ts.URL, core.NewClient(core.WithMaxRetries(0)))
	mock := clock.NewMock()
	orch := New(func(ctx context.Context, q string) (*core.Page, error) {
		return srv.Search(ctx, q, 50)
	}, WithClock(mock))
	defer orch.Dispose()

	orch.Submit("lib")
	mock.Add(100 * time.Millisecond)
	orch.Submit("libcurl")
	mock.Add(300 * time.Millisecond)

	require.Eventually(t, func() bool { return orch.State().Phase == Settled }, waitFor, tick)

	s := orch.State()
	assert.Equal(t, "libcurl", s.Query)
	require.Nil(t, s.Err)
	require.Equal(t, 2, s.Result.Len())
	assert.Equal(t, "libcurl", s.Result.Items[0].Name)
	assert.Equal(t, "libcurl-dev", s.Result.Items[1].Name)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "libcurl", gotQuery.Load())
}
