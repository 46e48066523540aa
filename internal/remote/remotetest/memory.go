// Package remotetest provides an in-memory remote.Backend with failure and
// latency injection for tests.
package remotetest

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/toollender/toollender/internal/remote"
)

// Memory is an in-memory document store.
type Memory struct {
	mu      sync.Mutex
	docs    map[string]map[string]remote.Document
	unique  map[string]map[string]string // collection -> key -> doc id
	keyOf   map[string]string            // collection/id -> key
	clock   time.Time
	nextID  int
	latency time.Duration

	unavailable atomic.Bool
	calls       sync.Map // op -> *atomic.Int64
}

// New creates an empty store.
func New() *Memory {
	return &Memory{
		docs:   make(map[string]map[string]remote.Document),
		unique: make(map[string]map[string]string),
		keyOf:  make(map[string]string),
		clock:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// SetUnavailable makes every call fail with remote.ErrUnavailable.
func (m *Memory) SetUnavailable(down bool) { m.unavailable.Store(down) }

// SetLatency delays every call by d.
func (m *Memory) SetLatency(d time.Duration) {
	m.mu.Lock()
	m.latency = d
	m.mu.Unlock()
}

// Calls returns how many times op ("query", "get", "set", "add", "delete") ran.
func (m *Memory) Calls(op string) int {
	v, ok := m.calls.Load(op)
	if !ok {
		return 0
	}
	return int(v.(*atomic.Int64).Load())
}

// Writes returns the number of set, add and delete calls.
func (m *Memory) Writes() int {
	return m.Calls("set") + m.Calls("add") + m.Calls("delete")
}

// Seed stores a document directly and returns its ID.
func (m *Memory) Seed(collection, id string, fields remote.Fields) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == "" {
		id = m.newID(collection)
	}
	now := m.tick()
	m.coll(collection)[id] = remote.Document{ID: id, Fields: maps.Clone(fields), CreateTime: now, UpdateTime: now}
	return id
}

// Doc returns the stored document, bypassing failure injection.
func (m *Memory) Doc(collection, id string) (remote.Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[collection][id]
	return d, ok
}

// Count returns the number of documents in collection.
func (m *Memory) Count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs[collection])
}

func (m *Memory) enter(ctx context.Context, op string) error {
	v, _ := m.calls.LoadOrStore(op, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)

	m.mu.Lock()
	latency := m.latency
	m.mu.Unlock()
	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.unavailable.Load() {
		return fmt.Errorf("%s: connection refused: %w", op, remote.ErrUnavailable)
	}
	return nil
}

// Query implements remote.Backend.
func (m *Memory) Query(ctx context.Context, collection string, q remote.Query) ([]remote.Document, error) {
	if err := m.enter(ctx, "query"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	var out []remote.Document
	for _, d := range m.docs[collection] {
		if remote.Matches(d, q.Where) {
			d.Fields = maps.Clone(d.Fields)
			out = append(out, d)
		}
	}
	m.mu.Unlock()
	remote.SortDocuments(out, q)
	return out, nil
}

// Get implements remote.Backend.
func (m *Memory) Get(ctx context.Context, collection, id string) (remote.Document, error) {
	if err := m.enter(ctx, "get"); err != nil {
		return remote.Document{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[collection][id]
	if !ok {
		return remote.Document{}, remote.ErrNotFound
	}
	d.Fields = maps.Clone(d.Fields)
	return d, nil
}

// Set implements remote.Backend.
func (m *Memory) Set(ctx context.Context, collection, id string, fields remote.Fields, mode remote.WriteMode) error {
	if err := m.enter(ctx, "set"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.tick()
	d, ok := m.coll(collection)[id]
	if !ok {
		d = remote.Document{ID: id, CreateTime: now}
	}
	if mode == remote.Overwrite || d.Fields == nil {
		d.Fields = maps.Clone(fields)
	} else {
		d.Fields = maps.Clone(d.Fields)
		maps.Copy(d.Fields, fields)
	}
	d.UpdateTime = now
	m.docs[collection][id] = d
	return nil
}

// Add implements remote.Backend.
func (m *Memory) Add(ctx context.Context, collection string, fields remote.Fields, uniqueKey string) (string, error) {
	if err := m.enter(ctx, "add"); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if uniqueKey != "" {
		if _, taken := m.unique[collection][uniqueKey]; taken {
			return "", remote.ErrConflict
		}
	}
	id := m.newID(collection)
	now := m.tick()
	m.coll(collection)[id] = remote.Document{ID: id, Fields: maps.Clone(fields), CreateTime: now, UpdateTime: now}
	if uniqueKey != "" {
		if m.unique[collection] == nil {
			m.unique[collection] = make(map[string]string)
		}
		m.unique[collection][uniqueKey] = id
		m.keyOf[collection+"/"+id] = uniqueKey
	}
	return id, nil
}

// Delete implements remote.Backend.
func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	if err := m.enter(ctx, "delete"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs[collection], id)
	if key, ok := m.keyOf[collection+"/"+id]; ok {
		delete(m.unique[collection], key)
		delete(m.keyOf, collection+"/"+id)
	}
	return nil
}

func (m *Memory) coll(name string) map[string]remote.Document {
	c, ok := m.docs[name]
	if !ok {
		c = make(map[string]remote.Document)
		m.docs[name] = c
	}
	return c
}

// tick advances the fake clock so update times strictly increase.
func (m *Memory) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *Memory) newID(collection string) string {
	m.nextID++
	return fmt.Sprintf("%s-%04d", collection, m.nextID)
}
