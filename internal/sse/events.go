// Package sse streams change notifications to connected clients as
// Server-Sent Events.
package sse

import (
	"time"

	"github.com/toollender/toollender/internal/connectivity"
)

// EventType is the SSE event name.
type EventType string

// Event types. Tool and association types match the repository event names.
const (
	EventToolCreated        EventType = "tool.created"
	EventToolUpdated        EventType = "tool.updated"
	EventToolDeleted        EventType = "tool.deleted"
	EventAssociationCreated EventType = "association.created"
	EventAssociationDeleted EventType = "association.deleted"

	// EventCacheRefreshed follows a successful background refresh. Clients
	// showing the refreshed view should re-read it.
	EventCacheRefreshed EventType = "cache.refreshed"
	// EventConnectivity is sent on every online/offline edge.
	EventConnectivity EventType = "connectivity.changed"

	EventHeartbeat EventType = "heartbeat"
)

// Event is one message on the stream.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`

	// OwnerID, when set, limits delivery to clients subscribed to that
	// owner or to everything.
	OwnerID string `json:"-"`
}

// CacheRefreshedData is the payload of cache.refreshed.
type CacheRefreshedData struct {
	Key        string `json:"key"`
	DurationMS int64  `json:"duration_ms"`
}

// ConnectivityData is the payload of connectivity.changed.
type ConnectivityData struct {
	Online bool   `json:"online"`
	State  string `json:"state"`
}

// HeartbeatData is the payload of heartbeat.
type HeartbeatData struct {
	ServerTime time.Time `json:"server_time"`
}

// NewEvent stamps an event of type t.
func NewEvent(t EventType, data any) Event {
	return Event{Type: t, Data: data, Timestamp: time.Now()}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	return NewEvent(EventHeartbeat, HeartbeatData{ServerTime: time.Now()})
}

// NewConnectivityEvent reports an edge.
func NewConnectivityEvent(online bool) Event {
	state := connectivity.Offline
	if online {
		state = connectivity.Online
	}
	return NewEvent(EventConnectivity, ConnectivityData{Online: online, State: state.String()})
}
