// Package remote is the port to the authoritative document store.
//
// A Backend talks to the store itself. Client wraps a Backend and adds the two
// read modes the repositories rely on: ModeServer goes to the backend, ModeCache
// answers from the snapshot of documents this process has already seen.
package remote

import (
	"context"
	"errors"
	"time"
)

// Errors reported by backends and the client.
var (
	// ErrNotFound means the backend has no document with the requested ID.
	ErrNotFound = errors.New("remote: document not found")
	// ErrCacheMiss means a cache-mode read found nothing in the snapshot.
	ErrCacheMiss = errors.New("remote: not in cache")
	// ErrConflict means a unique key is already taken.
	ErrConflict = errors.New("remote: unique key conflict")
	// ErrUnavailable means the store could not be reached.
	ErrUnavailable = errors.New("remote: unavailable")
)

// Mode selects where a read is served from.
type Mode int

const (
	// ModeServer forces a round trip to the store.
	ModeServer Mode = iota
	// ModeCache answers from locally held data without contacting the store.
	ModeCache
)

func (m Mode) String() string {
	if m == ModeCache {
		return "cache"
	}
	return "server"
}

// WriteMode selects how Set treats fields that are not in the payload.
type WriteMode int

const (
	// Merge keeps fields absent from the payload.
	Merge WriteMode = iota
	// Overwrite replaces the whole document.
	Overwrite
)

// Fields is a document body.
type Fields map[string]any

// Document is a stored document.
type Document struct {
	ID         string    `json:"id"`
	Fields     Fields    `json:"fields"`
	CreateTime time.Time `json:"create_time"`
	UpdateTime time.Time `json:"update_time"`
}

// Filter is an equality condition on a top-level field.
type Filter struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

// Query selects documents of a collection.
type Query struct {
	Where   []Filter
	OrderBy string
	Desc    bool
}

// Where returns a query with one equality filter.
func Where(field string, value any) Query {
	return Query{Where: []Filter{{Field: field, Value: value}}}
}

// Ordered returns a copy of q sorted by field.
func (q Query) Ordered(field string, desc bool) Query {
	q.OrderBy = field
	q.Desc = desc
	return q
}

// Backend is a document store reachable by this process.
type Backend interface {
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	Set(ctx context.Context, collection, id string, fields Fields, mode WriteMode) error
	// Add inserts a new document. A non-empty uniqueKey must not be taken by
	// another document of the collection, else ErrConflict.
	Add(ctx context.Context, collection string, fields Fields, uniqueKey string) (string, error)
	Delete(ctx context.Context, collection, id string) error
}

// Store is what repositories consume.
type Store interface {
	Query(ctx context.Context, collection string, q Query, mode Mode) ([]Document, error)
	Get(ctx context.Context, collection, id string, mode Mode) (Document, error)
	Set(ctx context.Context, collection, id string, fields Fields, mode WriteMode) error
	Add(ctx context.Context, collection string, fields Fields) (string, error)
	AddUnique(ctx context.Context, collection, key string, fields Fields) (string, error)
	Delete(ctx context.Context, collection, id string) error
}
