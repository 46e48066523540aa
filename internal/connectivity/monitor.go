// Package connectivity tracks network reachability and notifies subscribers
// when it changes.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
)

// State is the monitor's view of the network.
type State int

// States.
const (
	Unknown State = iota
	Online
	Offline
)

func (s State) String() string {
	switch s {
	case Online:
		return "online"
	case Offline:
		return "offline"
	default:
		return "unknown"
	}
}

// Source produces reachability samples until ctx ends.
type Source interface {
	Name() string
	Run(ctx context.Context, report func(online bool)) error
}

type listener struct {
	id int
	fn func(online bool)
}

// Monitor is a level-triggered reachability signal with edge-triggered
// listeners. It starts in Unknown.
type Monitor struct {
	source Source
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	listeners []listener
	nextID    int

	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewMonitor creates a monitor fed by source. A nil source leaves the state
// Unknown until Observe is called.
func NewMonitor(source Source, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Monitor{source: source, logger: logger}
}

// State returns the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Offline reports whether the network is known to be down. Unknown counts as
// reachable so callers still try.
func (m *Monitor) Offline() bool {
	return m.State() == Offline
}

// Subscribe registers fn for future transitions. Past transitions are not
// replayed. The returned func removes the listener.
func (m *Monitor) Subscribe(fn func(online bool)) (unsubscribe func()) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.listeners = append(m.listeners, listener{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, l := range m.listeners {
			if l.id == id {
				m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

// Observe applies a reachability sample. Listeners run only when the state
// changes, in subscription order, outside the lock.
func (m *Monitor) Observe(online bool) {
	next := Offline
	if online {
		next = Online
	}

	m.mu.Lock()
	prev := m.state
	if prev == next {
		m.mu.Unlock()
		return
	}
	m.state = next
	fns := make([]func(bool), len(m.listeners))
	for i, l := range m.listeners {
		fns[i] = l.fn
	}
	m.mu.Unlock()

	m.logger.Info("connectivity changed", "from", prev.String(), "to", next.String())
	for _, fn := range fns {
		fn(online)
	}
}

// Start runs the source in the background. Calling Start on a started
// monitor does nothing.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.source == nil {
		return
	}
	m.started = true

	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		m.logger.Info("connectivity monitor started", "source", m.source.Name())
		if err := m.source.Run(ctx, m.Observe); err != nil && ctx.Err() == nil {
			m.logger.Error("connectivity source stopped", "source", m.source.Name(), "error", err)
		}
	}()
}

// Stop ends the source and waits for it. Safe to call when not started.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
