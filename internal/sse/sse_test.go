package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toollender/toollender/internal/domain"
	"github.com/toollender/toollender/internal/refresh"
)

func startManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go m.Start(ctx)
	t.Cleanup(cancel)
	return m
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case e := <-c.EventChan:
		return e
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestManager_BroadcastsNotifications(t *testing.T) {
	m := startManager(t)
	c, err := m.Connect("")
	require.NoError(t, err)

	m.Notify("tool.created", domain.Tool{ID: "t1", OwnerID: "u1"})
	m.EmitRefreshed(refresh.Event{Key: "tools:all", Duration: 1500 * time.Millisecond})
	m.OnConnectivity(false)

	e := receive(t, c)
	assert.Equal(t, EventToolCreated, e.Type)
	assert.Equal(t, "u1", e.OwnerID)

	e = receive(t, c)
	assert.Equal(t, EventCacheRefreshed, e.Type)
	assert.Equal(t, CacheRefreshedData{Key: "tools:all", DurationMS: 1500}, e.Data)

	e = receive(t, c)
	assert.Equal(t, EventConnectivity, e.Type)
	assert.Equal(t, ConnectivityData{Online: false, State: "offline"}, e.Data)
}

func TestManager_OwnerFilter(t *testing.T) {
	m := startManager(t)
	mine, err := m.Connect("u1")
	require.NoError(t, err)
	everything, err := m.Connect("")
	require.NoError(t, err)

	m.Notify("tool.updated", domain.Tool{ID: "t2", OwnerID: "u2"})
	m.Notify("tool.updated", domain.Tool{ID: "t1", OwnerID: "u1"})

	assert.Equal(t, "t2", receive(t, everything).Data.(domain.Tool).ID)
	assert.Equal(t, "t1", receive(t, everything).Data.(domain.Tool).ID)
	assert.Equal(t, "t1", receive(t, mine).Data.(domain.Tool).ID)
}

func TestManager_ShutdownClosesClients(t *testing.T) {
	m := startManager(t)
	c, err := m.Connect("")
	require.NoError(t, err)

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))

	select {
	case <-c.Done:
	case <-time.After(time.Second):
		t.Fatal("client not closed")
	}
	assert.Equal(t, 0, m.ClientCount())

	// Emitting after shutdown is a no-op.
	m.Notify("tool.deleted", nil)
}

func TestHandler_Streams(t *testing.T) {
	m := startManager(t)
	srv := httptest.NewServer(NewHandler(m, nil))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	lines := bufio.NewScanner(resp.Body)

	next := func() string {
		for lines.Scan() {
			if line := lines.Text(); strings.HasPrefix(line, "event: ") {
				require.True(t, lines.Scan())
				return strings.TrimPrefix(line, "event: ") + " " + lines.Text()
			}
		}
		t.Fatal("stream ended")
		return ""
	}

	assert.Contains(t, next(), "connected")

	m.Notify("association.created", domain.Association{Name: "Amager"})
	got := next()
	assert.True(t, strings.HasPrefix(got, "association.created data: "))
	assert.Contains(t, got, `"name":"Amager"`)
}
