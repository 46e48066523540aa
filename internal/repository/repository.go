// Package repository implements the read-through cache for tools, user
// profiles and associations.
//
// Reads with CacheFirst are answered from the local store, then from the
// remote client's cache snapshot; a hit returns at once and schedules a
// background server read for the same key. A miss, or ServerOnly, blocks on
// a server read that joins any refresh of the same key already in flight.
// Server results are persisted per entity with their remote update time, so
// a late refresh never overwrites newer data.
//
// There is no ordering between a scheduled refresh and the next read: a read
// right after a cache hit may still return the previous data.
package repository

import (
	"context"
	"errors"
	"log/slog"

	domainerrors "github.com/toollender/toollender/internal/errors"
	"github.com/toollender/toollender/internal/localstore"
	"github.com/toollender/toollender/internal/refresh"
	"github.com/toollender/toollender/internal/remote"
	"github.com/toollender/toollender/internal/validation"
)

// ReadPolicy selects where a read may be answered from.
type ReadPolicy int

const (
	// CacheFirst answers from cached data when there is any and refreshes
	// in the background.
	CacheFirst ReadPolicy = iota
	// ServerOnly always reads from the remote store.
	ServerOnly
)

func (p ReadPolicy) String() string {
	if p == ServerOnly {
		return "server"
	}
	return "cache"
}

// Remote collection names.
const (
	CollectionTools        = "tools"
	CollectionUsers        = "users"
	CollectionAssociations = "associations"
	CollectionAccounts     = "accounts"
)

// Event names passed to the Notifier.
const (
	EventToolCreated        = "tool.created"
	EventToolUpdated        = "tool.updated"
	EventToolDeleted        = "tool.deleted"
	EventAssociationCreated = "association.created"
	EventAssociationDeleted = "association.deleted"
)

// Notifier is told about successful writes.
type Notifier interface {
	Notify(event string, data any)
}

// Deps are the collaborators shared by every repository.
type Deps struct {
	Remote    remote.Store
	Local     *localstore.Store
	Sync      *refresh.Synchronizer
	Validator *validation.Validator
	Notifier  Notifier
	Logger    *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.Logger
}

func (d Deps) notify(event string, data any) {
	if d.Notifier != nil {
		d.Notifier.Notify(event, data)
	}
}

// remoteError converts a remote or refresh error into a domain error.
// Context errors and domain errors pass through.
func remoteError(err error, what string) error {
	var derr *domainerrors.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &derr):
		return err
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, remote.ErrNotFound):
		return domainerrors.NotFoundf("%s not found", what)
	case errors.Is(err, remote.ErrConflict):
		return domainerrors.AlreadyExistsf("%s already exists", what)
	case errors.Is(err, remote.ErrUnavailable),
		errors.Is(err, refresh.ErrShuttingDown),
		errors.Is(err, context.DeadlineExceeded):
		return domainerrors.RemoteUnavailable(err)
	default:
		return domainerrors.Wrapf(err, domainerrors.CodeInternal, "%s: remote store error", what)
	}
}
