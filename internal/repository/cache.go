package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	domainerrors "github.com/toollender/toollender/internal/errors"
	"github.com/toollender/toollender/internal/id"
	"github.com/toollender/toollender/internal/localstore"
	"github.com/toollender/toollender/internal/refresh"
	"github.com/toollender/toollender/internal/remote"
)

// viewAll is the view holding every entity of a collection.
const viewAll = "all"

// cache is the read-through policy for one remote collection. The local
// collection shares the remote collection's name.
type cache[T any] struct {
	name   string
	what   string // entity name used in errors
	local  *localstore.Collection[T]
	remote remote.Store
	sync   *refresh.Synchronizer
	logger *slog.Logger
	decode func(remote.Document) (T, error)

	// fetched runs after a server read was persisted. complete is true when
	// items is the whole collection.
	fetched func(ctx context.Context, items []T, complete bool)
}

func newCache[T any](deps Deps, name, what string, idOf func(*T) string, decode func(remote.Document) (T, error)) *cache[T] {
	return &cache[T]{
		name:   name,
		what:   what,
		local:  localstore.NewCollection(deps.Local, name, idOf),
		remote: deps.Remote,
		sync:   deps.Sync,
		logger: deps.logger().With("collection", name),
		decode: decode,
	}
}

func (c *cache[T]) viewKey(view string) string { return c.name + ":" + view }
func (c *cache[T]) itemKey(id string) string   { return c.name + ":" + id }

// list reads the view named view, defined by q on the remote side. It never
// fails because of the remote store: when the server cannot be read it falls
// back to cached data, then to an empty list.
func (c *cache[T]) list(ctx context.Context, view string, q remote.Query, policy ReadPolicy) ([]T, error) {
	if policy == CacheFirst {
		if items := c.cached(ctx, view, q); len(items) > 0 {
			c.scheduleList(view, q)
			return items, nil
		}
	}

	items, err := refresh.Do(ctx, c.sync, c.viewKey(view), func(ctx context.Context) ([]T, error) {
		return c.fetchList(ctx, view, q)
	})
	if err == nil {
		return items, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	if items := c.cached(ctx, view, q); len(items) > 0 {
		c.logger.Warn("server read failed, serving cached list", "view", view, "error", err)
		return items, nil
	}
	c.logger.Warn("server read failed, nothing cached", "view", view, "error", err)
	return []T{}, nil
}

// cached returns the local view, else the remote client's cache-mode answer.
func (c *cache[T]) cached(ctx context.Context, view string, q remote.Query) []T {
	items, err := c.local.LoadView(ctx, view)
	switch {
	case err == nil && len(items) > 0:
		return items
	case err != nil && !localstore.IsMiss(err):
		c.logger.Warn("local view unreadable", "view", view, "error", err)
	}

	docs, err := c.remote.Query(ctx, c.name, q, remote.ModeCache)
	if err != nil {
		c.logger.Debug("cache-mode query failed", "view", view, "error", err)
		return nil
	}
	return c.decodeAll(docs)
}

// fetchList reads the view from the server and persists it.
func (c *cache[T]) fetchList(ctx context.Context, view string, q remote.Query) ([]T, error) {
	stamp := id.Stamp()
	docs, err := c.remote.Query(ctx, c.name, q, remote.ModeServer)
	if err != nil {
		return nil, err
	}

	items := make([]T, 0, len(docs))
	records := make([]localstore.Record[T], 0, len(docs))
	for _, doc := range docs {
		v, err := c.decode(doc)
		if err != nil {
			c.logger.Warn("skipping malformed document", "id", doc.ID, "error", err)
			continue
		}
		items = append(items, v)
		records = append(records, localstore.Record[T]{Value: v, Version: doc.UpdateTime})
	}

	if _, err := c.local.SaveView(ctx, view, stamp, records); err != nil {
		c.logger.Warn("failed to persist view", "view", view, "error", err)
	}
	if c.fetched != nil {
		c.fetched(ctx, items, view == viewAll && len(q.Where) == 0)
	}
	return items, nil
}

func (c *cache[T]) scheduleList(view string, q remote.Query) bool {
	return refresh.Schedule(c.sync, c.viewKey(view), func(ctx context.Context) ([]T, error) {
		return c.fetchList(ctx, view, q)
	})
}

// one reads a single entity by remote document ID.
func (c *cache[T]) one(ctx context.Context, docID string, policy ReadPolicy) (T, error) {
	if policy == CacheFirst {
		if v, ok := c.cachedOne(ctx, docID); ok {
			c.scheduleOne(docID)
			return v, nil
		}
	}
	v, err := refresh.Do(ctx, c.sync, c.itemKey(docID), func(ctx context.Context) (T, error) {
		return c.fetchOne(ctx, docID)
	})
	err = remoteError(err, c.what)
	if domainerrors.Is(err, domainerrors.ErrRemoteUnavailable) {
		if cached, ok := c.cachedOne(ctx, docID); ok {
			c.logger.Warn("server read failed, serving cached entity", "id", docID, "error", err)
			return cached, nil
		}
	}
	return v, err
}

func (c *cache[T]) cachedOne(ctx context.Context, docID string) (T, bool) {
	rec, err := c.local.Get(ctx, docID)
	if err == nil {
		return rec.Value, true
	}
	if !localstore.IsMiss(err) {
		c.logger.Warn("local entity unreadable", "id", docID, "error", err)
	}

	var zero T
	doc, err := c.remote.Get(ctx, c.name, docID, remote.ModeCache)
	if err != nil {
		return zero, false
	}
	v, err := c.decode(doc)
	if err != nil {
		return zero, false
	}
	return v, true
}

// fetchOne reads the document from the server and persists it. A document
// the server no longer has is evicted locally.
func (c *cache[T]) fetchOne(ctx context.Context, docID string) (T, error) {
	var zero T
	stamp := id.Stamp()
	doc, err := c.remote.Get(ctx, c.name, docID, remote.ModeServer)
	if errors.Is(err, remote.ErrNotFound) {
		c.evict(ctx, docID)
	}
	if err != nil {
		return zero, err
	}
	v, err := c.decode(doc)
	if err != nil {
		return zero, err
	}
	c.put(ctx, v, doc, stamp)
	if c.fetched != nil {
		c.fetched(ctx, []T{v}, false)
	}
	return v, nil
}

func (c *cache[T]) scheduleOne(docID string) bool {
	return refresh.Schedule(c.sync, c.itemKey(docID), func(ctx context.Context) (T, error) {
		return c.fetchOne(ctx, docID)
	})
}

func (c *cache[T]) put(ctx context.Context, v T, doc remote.Document, stamp ulid.ULID) {
	if _, err := c.local.Put(ctx, v, doc.UpdateTime, stamp); err != nil {
		c.logger.Warn("failed to persist entity", "id", doc.ID, "error", err)
	}
}

func (c *cache[T]) evict(ctx context.Context, docID string) {
	if err := c.local.Remove(ctx, docID); err != nil {
		c.logger.Warn("failed to evict entity", "id", docID, "error", err)
	}
}

func (c *cache[T]) decodeAll(docs []remote.Document) []T {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		v, err := c.decode(doc)
		if err != nil {
			c.logger.Warn("skipping malformed document", "id", doc.ID, "error", err)
			continue
		}
		out = append(out, v)
	}
	return out
}
