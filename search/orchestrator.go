// Package search coalesces rapid query edits into debounced remote calls and
// publishes only the result of the most recently submitted query.
//
// An Orchestrator is created per search surface. Every Submit supersedes the
// previous query, whether that query is still waiting out the debounce interval
// or already has a call in flight. Completions of superseded calls are dropped
// on arrival, so observers never see a result for anything but the latest query.
package search

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/git-pkgs/reposearch/internal/core"
)

// DefaultDebounce is the quiet interval after the last Submit before a call is issued.
const DefaultDebounce = 300 * time.Millisecond

// QueryFunc performs the remote call for a query. The context is cancelled
// when the query is superseded or the orchestrator is disposed.
type QueryFunc[T any] func(ctx context.Context, query string) (T, error)

// Option configures an Orchestrator.
type Option func(*options)

type options struct {
	debounce time.Duration
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *Metrics
}

// WithDebounce sets the quiet interval. Zero issues the call on the next timer tick.
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.debounce = d
		}
	}
}

// WithClock replaces the wall clock, typically with clock.NewMock() in tests.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithLogger sets the logger for lifecycle events. Events are logged at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records submits, requests, discards and errors.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// Orchestrator runs at most one useful remote call per pause in input.
//
// All state lives behind mu. Timer callbacks and completions re-enter
// through mu and check that they still belong to the current query before
// touching anything.
type Orchestrator[T any] struct {
	fn       QueryFunc[T]
	debounce time.Duration
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *Metrics

	mu       sync.Mutex
	state    State[T]
	seq      uint64 // bumped by every Submit; stale timer fires compare against it
	current  Token  // token whose completion may still publish; 0 when none
	issued   Token
	timer    *clock.Timer
	cancel   context.CancelFunc
	started  time.Time
	disposed bool

	out *dispatcher[T]
}

// New returns an idle orchestrator that calls fn for each debounced query.
func New[T any](fn QueryFunc[T], opts ...Option) *Orchestrator[T] {
	cfg := options{
		debounce: DefaultDebounce,
		clock:    clock.New(),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	o := &Orchestrator[T]{
		fn:       fn,
		debounce: cfg.debounce,
		clock:    cfg.clock,
		logger:   cfg.logger,
		metrics:  cfg.metrics,
		out:      newDispatcher[T](),
	}
	go o.out.run()
	return o
}

// Submit supersedes whatever query came before. An empty or whitespace-only
// query clears the results immediately; anything else is issued once the
// debounce interval passes without another Submit. Submit after Dispose does nothing.
func (o *Orchestrator[T]) Submit(query string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.disposed {
		return
	}
	o.metrics.submit()
	o.supersedeLocked()

	query = strings.TrimSpace(query)
	if query == "" {
		o.logger.Debug("query cleared")
		o.publishLocked(State[T]{Phase: Idle})
		return
	}

	seq := o.seq
	o.timer = o.clock.AfterFunc(o.debounce, func() { o.fire(seq) })
	o.publishLocked(State[T]{Phase: PendingDebounce, Query: query})
}

// Dispose cancels the pending timer and any in-flight call, and stops
// notifying observers. Calling it more than once is harmless.
func (o *Orchestrator[T]) Dispose() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.disposed {
		return
	}
	o.supersedeLocked()
	o.disposed = true
	o.out.close()
	o.logger.Debug("orchestrator disposed")
}

// State returns the current state.
func (o *Orchestrator[T]) State() State[T] {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Subscribe registers fn to receive every published state, in publication
// order, on a single delivery goroutine. fn may call Submit. The returned
// function removes the subscription; a delivery already under way may still arrive.
func (o *Orchestrator[T]) Subscribe(fn func(State[T])) (unsubscribe func()) {
	return o.out.subscribe(fn)
}

// supersedeLocked invalidates the pending timer and the current token.
func (o *Orchestrator[T]) supersedeLocked() {
	o.seq++
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	if o.current != 0 {
		o.logger.Debug("query superseded", "query", o.state.Query, "token", uint64(o.current))
		o.current = 0
	}
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}

func (o *Orchestrator[T]) fire(seq uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.disposed || seq != o.seq {
		return
	}
	o.timer = nil

	o.issued++
	token := o.issued
	o.current = token
	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.started = o.clock.Now()

	query := o.state.Query
	o.logger.Debug("query issued", "query", query, "token", uint64(token))
	o.metrics.request()
	o.publishLocked(State[T]{Phase: InFlight, Query: query, Token: token})

	go func() {
		result, err := o.fn(ctx, query)
		o.complete(token, result, err)
	}()
}

func (o *Orchestrator[T]) complete(token Token, result T, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.disposed || token != o.current {
		o.logger.Debug("stale completion discarded", "token", uint64(token))
		o.metrics.stale()
		return
	}

	o.current = 0
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	query := o.state.Query
	elapsed := o.clock.Now().Sub(o.started)

	if err != nil {
		classified := core.Classify(err)
		if classified.Kind == core.KindCancelled {
			// Cancelled by the caller's own transport, not by a newer query.
			o.logger.Debug("query cancelled", "query", query, "token", uint64(token))
			o.publishLocked(State[T]{Phase: Idle})
			return
		}
		o.logger.Debug("query failed", "query", query, "token", uint64(token), "kind", string(classified.Kind), "error", err)
		o.metrics.settled(elapsed, classified)
		o.publishLocked(State[T]{Phase: Settled, Query: query, Token: token, Err: classified})
		return
	}

	o.logger.Debug("query settled", "query", query, "token", uint64(token), "elapsed", elapsed)
	o.metrics.settled(elapsed, nil)
	o.publishLocked(State[T]{Phase: Settled, Query: query, Token: token, Result: result})
}

func (o *Orchestrator[T]) publishLocked(s State[T]) {
	o.state = s
	o.out.push(s)
}

// dispatcher delivers states to subscribers in order, outside the orchestrator lock.
type dispatcher[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []State[T]
	subs   []subscriber[T]
	nextID int
	closed bool
}

type subscriber[T any] struct {
	id int
	fn func(State[T])
}

func newDispatcher[T any]() *dispatcher[T] {
	d := &dispatcher[T]{}
	d.cond = sync.NewCond(&d.mu)
	return d
}

func (d *dispatcher[T]) push(s State[T]) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || len(d.subs) == 0 {
		return
	}
	d.queue = append(d.queue, s)
	d.cond.Signal()
}

func (d *dispatcher[T]) subscribe(fn func(State[T])) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	d.subs = append(d.subs, subscriber[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			for i, s := range d.subs {
				if s.id == id {
					d.subs = append(d.subs[:i:i], d.subs[i+1:]...)
					break
				}
			}
		})
	}
}

func (d *dispatcher[T]) close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.queue = nil
	d.cond.Broadcast()
}

func (d *dispatcher[T]) run() {
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if d.closed {
			d.mu.Unlock()
			return
		}
		s := d.queue[0]
		d.queue = d.queue[1:]
		subs := make([]subscriber[T], len(d.subs))
		copy(subs, d.subs)
		d.mu.Unlock()

		for _, sub := range subs {
			sub.fn(s)
		}
	}
}
