package remote

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"
)

// Reachability reports whether the network is known to be down.
type Reachability interface {
	Offline() bool
}

// Observer is told about every backend call. Used for metrics.
type Observer interface {
	ObserveRemote(op string, mode Mode, took time.Duration, err error)
}

// Options configures a Client.
type Options struct {
	Logger       *slog.Logger
	Reachability Reachability // nil means always try the backend
	Observer     Observer
}

// Client implements Store on top of a Backend. Every document read from or
// written to the backend is kept in an in-memory snapshot that answers
// ModeCache reads.
type Client struct {
	backend Backend
	logger  *slog.Logger
	reach   Reachability
	obs     Observer

	mu       sync.RWMutex
	snapshot map[string]map[string]Document
}

// NewClient wraps backend.
func NewClient(backend Backend, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		backend:  backend,
		logger:   logger,
		reach:    opts.Reachability,
		obs:      opts.Observer,
		snapshot: make(map[string]map[string]Document),
	}
}

// Query runs q against the backend or the snapshot.
func (c *Client) Query(ctx context.Context, collection string, q Query, mode Mode) ([]Document, error) {
	if mode == ModeCache {
		return c.cachedQuery(collection, q), nil
	}
	var docs []Document
	err := c.call(ctx, "query", func(ctx context.Context) error {
		var err error
		docs, err = c.backend.Query(ctx, collection, q)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.remember(collection, docs...)
	return docs, nil
}

// Get reads one document.
func (c *Client) Get(ctx context.Context, collection, id string, mode Mode) (Document, error) {
	if mode == ModeCache {
		c.mu.RLock()
		doc, ok := c.snapshot[collection][id]
		c.mu.RUnlock()
		if !ok {
			return Document{}, ErrCacheMiss
		}
		return cloneDoc(doc), nil
	}

	var doc Document
	err := c.call(ctx, "get", func(ctx context.Context) error {
		var err error
		doc, err = c.backend.Get(ctx, collection, id)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		c.forget(collection, id)
	}
	if err != nil {
		return Document{}, err
	}
	c.remember(collection, doc)
	return doc, nil
}

// Set writes fields to the document id.
func (c *Client) Set(ctx context.Context, collection, id string, fields Fields, mode WriteMode) error {
	err := c.call(ctx, "set", func(ctx context.Context) error {
		return c.backend.Set(ctx, collection, id, fields, mode)
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if doc, ok := c.snapshot[collection][id]; ok {
		if mode == Overwrite {
			doc.Fields = maps.Clone(fields)
		} else {
			doc.Fields = maps.Clone(doc.Fields)
			maps.Copy(doc.Fields, fields)
		}
		// UpdateTime stays: the next server read carries the real one.
		c.snapshot[collection][id] = doc
	}
	return nil
}

// Add inserts a document and returns its store-assigned ID.
func (c *Client) Add(ctx context.Context, collection string, fields Fields) (string, error) {
	return c.add(ctx, collection, fields, "")
}

// AddUnique inserts a document unless key is already taken in collection.
func (c *Client) AddUnique(ctx context.Context, collection, key string, fields Fields) (string, error) {
	if key == "" {
		return "", errors.New("remote: empty unique key")
	}
	return c.add(ctx, collection, fields, key)
}

func (c *Client) add(ctx context.Context, collection string, fields Fields, key string) (string, error) {
	var id string
	err := c.call(ctx, "add", func(ctx context.Context) error {
		var err error
		id, err = c.backend.Add(ctx, collection, fields, key)
		return err
	})
	return id, err
}

// Delete removes the document id.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	err := c.call(ctx, "delete", func(ctx context.Context) error {
		return c.backend.Delete(ctx, collection, id)
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	c.forget(collection, id)
	return nil
}

// call runs one backend operation, failing fast while offline.
func (c *Client) call(ctx context.Context, op string, fn func(context.Context) error) error {
	if c.reach != nil && c.reach.Offline() {
		c.observe(op, 0, ErrUnavailable)
		return fmt.Errorf("%s: network offline: %w", op, ErrUnavailable)
	}
	start := time.Now()
	err := fn(ctx)
	// A deadline hit inside the backend, not the caller's own, is an outage.
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil && !errors.Is(err, ErrUnavailable) {
		err = fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	c.observe(op, time.Since(start), err)
	if errors.Is(err, ErrUnavailable) {
		c.logger.Debug("remote unavailable", "op", op, "error", err)
	}
	return err
}

func (c *Client) observe(op string, took time.Duration, err error) {
	if c.obs != nil {
		c.obs.ObserveRemote(op, ModeServer, took, err)
	}
}

func (c *Client) remember(collection string, docs ...Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.snapshot[collection]
	if !ok {
		m = make(map[string]Document)
		c.snapshot[collection] = m
	}
	for _, d := range docs {
		if prev, ok := m[d.ID]; ok && prev.UpdateTime.After(d.UpdateTime) {
			continue
		}
		m[d.ID] = cloneDoc(d)
	}
}

func (c *Client) forget(collection, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snapshot[collection], id)
}

func (c *Client) cachedQuery(collection string, q Query) []Document {
	c.mu.RLock()
	var out []Document
	for _, d := range c.snapshot[collection] {
		if Matches(d, q.Where) {
			out = append(out, cloneDoc(d))
		}
	}
	c.mu.RUnlock()
	if c.obs != nil {
		c.obs.ObserveRemote("query", ModeCache, 0, nil)
	}
	SortDocuments(out, q)
	return out
}

func cloneDoc(d Document) Document {
	d.Fields = maps.Clone(d.Fields)
	return d
}

// Matches reports whether doc satisfies every filter.
func Matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		v, ok := doc.Fields[f.Field]
		if !ok || CompareValues(v, f.Value) != 0 {
			return false
		}
	}
	return true
}

// SortDocuments orders docs by q.OrderBy, falling back to creation time and
// ID so the order is deterministic.
func SortDocuments(docs []Document, q Query) {
	slices.SortStableFunc(docs, func(a, b Document) int {
		if q.OrderBy != "" {
			c := CompareValues(a.Fields[q.OrderBy], b.Fields[q.OrderBy])
			if q.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return cmp.Or(a.CreateTime.Compare(b.CreateTime), cmp.Compare(a.ID, b.ID))
	})
}

// CompareValues orders JSON-like scalars. Values of different kinds compare
// by kind: nil, bool, number, string.
func CompareValues(a, b any) int {
	ka, kb := kindOf(a), kindOf(b)
	if ka != kb {
		return cmp.Compare(ka, kb)
	}
	switch ka {
	case 1:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	case 2:
		return cmp.Compare(toFloat(a), toFloat(b))
	case 3:
		return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
	default:
		return 0
	}
}

func kindOf(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64, float32, int, int32, int64, uint, uint32, uint64:
		return 2
	default:
		return 3
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	default:
		return 0
	}
}
