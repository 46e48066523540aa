// Package refresh runs the background refreshes that follow cache hits.
//
// Refreshes are keyed by the view they update ("tools:all", "users:<id>").
// At most one refresh per key is in flight. Requests for a busy key are
// coalesced: however many arrive, the key runs once more after the current
// refresh finishes, so a refresh requested after a write never gets folded
// into a server read that started before it. A foreground read-through for a
// key joins the in-flight refresh instead of issuing a second server read.
//
// There is no ordering between a background refresh and later foreground
// reads: a read right after a cache hit may still see the previous data.
package refresh

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrShuttingDown is returned by Do after Shutdown started.
var ErrShuttingDown = errors.New("refresh: shutting down")

// Func fetches from the server and persists the result.
type Func func(ctx context.Context) error

// Outcome of one refresh, reported to the Recorder.
type Outcome string

// Outcomes.
const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailure   Outcome = "failure"
	OutcomeCoalesced Outcome = "coalesced"
	OutcomeRejected  Outcome = "rejected"
)

// Recorder receives refresh statistics.
type Recorder interface {
	RecordRefresh(key string, outcome Outcome, took time.Duration)
	SetRefreshesInFlight(n int)
}

// Event is emitted after a background refresh succeeds.
type Event struct {
	Key      string
	Duration time.Duration
}

// EventEmitter broadcasts refresh completions, e.g. to SSE clients.
type EventEmitter interface {
	EmitRefreshed(e Event)
}

// Options configures a Synchronizer.
type Options struct {
	Logger   *slog.Logger
	Timeout  time.Duration // per refresh; zero means no limit
	Recorder Recorder
	Emitter  EventEmitter
}

// Synchronizer is a supervised registry of keyed background refreshes.
type Synchronizer struct {
	logger   *slog.Logger
	timeout  time.Duration
	recorder Recorder
	emitter  EventEmitter

	group singleflight.Group

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]time.Time
	pending  map[string]func(ctx context.Context) (any, error) // rerun after the current one
	closed   bool
}

// New creates a Synchronizer.
func New(opts Options) *Synchronizer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	base, cancel := context.WithCancel(context.Background())
	return &Synchronizer{
		logger:   logger,
		timeout:  opts.Timeout,
		recorder: opts.Recorder,
		emitter:  opts.Emitter,
		base:     base,
		cancel:   cancel,
		inflight: make(map[string]time.Time),
		pending:  make(map[string]func(ctx context.Context) (any, error)),
	}
}

// Refresh schedules fn for key in the background and returns immediately.
// It returns false when a refresh for key is already in flight, in which case
// fn runs once after it, or when the synchronizer is shutting down. Failures are
// logged and dropped; fn runs once, without retries.
func (s *Synchronizer) Refresh(key string, fn Func) bool {
	return s.schedule(key, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
}

// Schedule is Refresh for a fetch that produces a value. Foreground Do calls
// for the same key that join this refresh receive the value.
func Schedule[T any](s *Synchronizer, key string, fn func(ctx context.Context) (T, error)) bool {
	return s.schedule(key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
}

func (s *Synchronizer) schedule(key string, fn func(ctx context.Context) (any, error)) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.record(key, OutcomeRejected, 0)
		return false
	}
	if _, busy := s.inflight[key]; busy {
		s.pending[key] = fn
		s.mu.Unlock()
		s.record(key, OutcomeCoalesced, 0)
		s.logger.Debug("refresh coalesced", "key", key)
		return false
	}
	s.inflight[key] = time.Now()
	n := len(s.inflight)
	s.wg.Add(1)
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.SetRefreshesInFlight(n)
	}

	go func() {
		defer s.wg.Done()
		for fn != nil {
			s.runOnce(key, fn)
			fn = s.next(key)
		}
	}()
	return true
}

func (s *Synchronizer) runOnce(key string, fn func(ctx context.Context) (any, error)) {
	start := time.Now()
	_, err, _ := s.group.Do(key, func() (any, error) {
		return s.run(fn)
	})
	took := time.Since(start)

	if err != nil {
		s.record(key, OutcomeFailure, took)
		s.logger.Warn("background refresh failed", "key", key, "duration", took, "error", err)
		return
	}
	s.record(key, OutcomeSuccess, took)
	s.logger.Debug("background refresh done", "key", key, "duration", took)
	if s.emitter != nil {
		s.emitter.EmitRefreshed(Event{Key: key, Duration: took})
	}
}

// Do runs fn for key in the foreground. If a refresh for key is already in
// flight, Do waits for it and returns its result instead of running fn.
// The caller stops waiting when ctx ends; the shared work continues.
func Do[T any](ctx context.Context, s *Synchronizer, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return zero, ErrShuttingDown
	}

	ch := s.group.DoChan(key, func() (any, error) {
		return s.run(func(ctx context.Context) (any, error) {
			return fn(ctx)
		})
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		// Joined a refresh scheduled through Refresh, which yields no value.
		v, ok := res.Val.(T)
		if !ok {
			return fn(ctx)
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// run executes fn on the synchronizer's context so that it outlives the
// request that triggered it.
func (s *Synchronizer) run(fn func(ctx context.Context) (any, error)) (any, error) {
	ctx := s.base
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return fn(ctx)
}

// next returns the refresh coalesced into key while it ran, or nil once key
// is released. Pending work is dropped after Shutdown started.
func (s *Synchronizer) next(key string) func(ctx context.Context) (any, error) {
	s.mu.Lock()
	fn, ok := s.pending[key]
	delete(s.pending, key)
	if ok && !s.closed {
		s.mu.Unlock()
		return fn
	}
	delete(s.inflight, key)
	n := len(s.inflight)
	s.mu.Unlock()
	if s.recorder != nil {
		s.recorder.SetRefreshesInFlight(n)
	}
	return nil
}

func (s *Synchronizer) record(key string, o Outcome, took time.Duration) {
	if s.recorder != nil {
		s.recorder.RecordRefresh(key, o, took)
	}
}

// InFlight returns the keys with a background refresh running, sorted.
func (s *Synchronizer) InFlight() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.inflight))
	for k := range s.inflight {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Wait blocks until every background refresh scheduled so far has finished.
func (s *Synchronizer) Wait() {
	s.wg.Wait()
}

// Shutdown stops accepting refreshes and waits for running ones. When ctx
// ends first, running refreshes are cancelled and Shutdown returns ctx.Err()
// once they have exited.
func (s *Synchronizer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.logger.Warn("cancelling background refreshes", "in_flight", s.InFlight())
		s.cancel()
		<-done
		return ctx.Err()
	}
}
