package localstore

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/oklog/ulid/v2"
)

// Record is a cached entity together with the remote update time it was read
// at (Version) and the stamp of the local write that stored it.
type Record[T any] struct {
	Value   T         `json:"value"`
	Version time.Time `json:"version"`
	Stamp   ulid.ULID `json:"stamp"`
}

// view is an ordered list of entity IDs, e.g. "all tools" or "tools of owner X".
type view struct {
	IDs   []string  `json:"ids"`
	Stamp ulid.ULID `json:"stamp"`
}

// Collection stores entities of one type individually, keyed by ID, plus any
// number of named views over them.
//
// Entity writes are version checked: a record older than the stored one is
// ignored. View writes are stamp checked: a view is replaced only by a fetch
// that started later. Together these give last-write-by-timestamp semantics
// no matter in which order concurrent refreshes land.
type Collection[T any] struct {
	store *Store
	name  string
	idOf  func(*T) string
}

// NewCollection creates a collection named name. idOf extracts the entity ID.
func NewCollection[T any](s *Store, name string, idOf func(*T) string) *Collection[T] {
	return &Collection[T]{store: s, name: name, idOf: idOf}
}

func (c *Collection[T]) entityKey(id string) string { return c.name + ":e:" + id }
func (c *Collection[T]) viewKey(key string) string  { return c.name + ":v:" + key }

// Put stores value at version. It reports whether the write was applied.
func (c *Collection[T]) Put(ctx context.Context, value T, version time.Time, stamp ulid.ULID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	applied := false
	err := c.store.update(func(txn *badger.Txn) error {
		var err error
		applied, err = c.putTxn(txn, Record[T]{Value: value, Version: version, Stamp: stamp})
		return err
	})
	return applied, err
}

func (c *Collection[T]) putTxn(txn *badger.Txn, rec Record[T]) (bool, error) {
	key := c.entityKey(c.idOf(&rec.Value))

	var existing Record[T]
	err := c.store.read(txn, key, &existing)
	switch {
	case err == nil:
		if existing.Version.After(rec.Version) {
			return false, nil
		}
	case IsMiss(err):
		// absent or unreadable: overwrite
	default:
		return false, err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := txn.Set([]byte(key), data); err != nil {
		return false, fmt.Errorf("failed to set %s: %w", key, err)
	}
	return true, nil
}

// Get returns the cached record for id.
func (c *Collection[T]) Get(ctx context.Context, id string) (Record[T], error) {
	var rec Record[T]
	err := c.store.Load(ctx, c.entityKey(id), &rec)
	return rec, err
}

// Remove evicts the entity. Views still listing it skip it on load.
func (c *Collection[T]) Remove(ctx context.Context, id string) error {
	return c.store.Delete(ctx, c.entityKey(id))
}

// SaveView upserts every record (version checked) and replaces the view named
// key with their IDs unless a view with a newer stamp is already stored.
// It reports whether the view itself was replaced.
func (c *Collection[T]) SaveView(ctx context.Context, key string, stamp ulid.ULID, records []Record[T]) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	vkey := c.viewKey(key)
	replaced := false

	err := c.store.update(func(txn *badger.Txn) error {
		replaced = false
		ids := make([]string, 0, len(records))
		for _, rec := range records {
			rec.Stamp = stamp
			if _, err := c.putTxn(txn, rec); err != nil {
				return err
			}
			ids = append(ids, c.idOf(&rec.Value))
		}

		var existing view
		err := c.store.read(txn, vkey, &existing)
		if err != nil && !IsMiss(err) {
			return err
		}
		if err == nil && existing.Stamp.Compare(stamp) > 0 {
			c.store.logger.Debug("ignoring stale view write", "view", vkey,
				"stored", existing.Stamp.String(), "incoming", stamp.String())
			return nil
		}

		data, err := json.Marshal(view{IDs: ids, Stamp: stamp})
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", vkey, err)
		}
		if err := txn.Set([]byte(vkey), data); err != nil {
			return fmt.Errorf("failed to set %s: %w", vkey, err)
		}
		replaced = true
		return nil
	})
	return replaced, err
}

// LoadView returns the entities of the view named key in stored order.
// Entities that were evicted or are unreadable are skipped.
func (c *Collection[T]) LoadView(ctx context.Context, key string) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []T
	err := c.store.db.View(func(txn *badger.Txn) error {
		var v view
		if err := c.store.read(txn, c.viewKey(key), &v); err != nil {
			return err
		}
		out = make([]T, 0, len(v.IDs))
		for _, id := range v.IDs {
			var rec Record[T]
			err := c.store.read(txn, c.entityKey(id), &rec)
			if IsMiss(err) {
				continue
			}
			if err != nil {
				return err
			}
			out = append(out, rec.Value)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ViewExists reports whether a view named key is stored.
func (c *Collection[T]) ViewExists(ctx context.Context, key string) (bool, error) {
	return c.store.Exists(ctx, c.viewKey(key))
}

// DropView removes the view named key.
func (c *Collection[T]) DropView(ctx context.Context, key string) error {
	return c.store.Delete(ctx, c.viewKey(key))
}

// All iterates every cached entity of the collection. Unreadable entries are
// skipped.
func (c *Collection[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		prefix := []byte(c.name + ":e:")
		stopped := errors.New("stopped")

		err := c.store.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				if err := ctx.Err(); err != nil {
					return err
				}
				var rec Record[T]
				err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &rec)
				})
				if err != nil {
					c.store.logger.Warn("skipping corrupt cache entry", "key", string(it.Item().Key()), "error", err)
					continue
				}
				if !yield(rec.Value, nil) {
					return stopped
				}
			}
			return nil
		})
		if err != nil && !errors.Is(err, stopped) {
			var zero T
			yield(zero, err)
		}
	}
}
