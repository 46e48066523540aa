package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/toollender/toollender/internal/localstore"
	"github.com/toollender/toollender/internal/refresh"
	"github.com/toollender/toollender/internal/remote"
	"github.com/toollender/toollender/internal/remote/remotetest"
	"github.com/toollender/toollender/internal/repository"
	"github.com/toollender/toollender/internal/validation"
)

type testEnv struct {
	backend *remotetest.Memory
	client  *remote.Client
	local   *localstore.Store
	sync    *refresh.Synchronizer
	events  *recordingNotifier
	deps    repository.Deps
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	backend := remotetest.New()
	client := remote.NewClient(backend, remote.Options{})
	local, err := localstore.NewInMemory(nil)
	require.NoError(t, err)
	synchronizer := refresh.New(refresh.Options{Timeout: 5 * time.Second})
	events := &recordingNotifier{}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_ = synchronizer.Shutdown(ctx)
		_ = local.Close()
	})

	return &testEnv{
		backend: backend,
		client:  client,
		local:   local,
		sync:    synchronizer,
		events:  events,
		deps: repository.Deps{
			Remote:    client,
			Local:     local,
			Sync:      synchronizer,
			Validator: validation.New(),
			Notifier:  events,
		},
	}
}

func (e *testEnv) seedTool(id, name, owner, category string) string {
	return e.backend.Seed(repository.CollectionTools, id, remote.Fields{
		"name":        name,
		"description": name + " for lending",
		"ownerId":     owner,
		"category":    category,
		"isOnHold":    false,
	})
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(event string, _ any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) list() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

type offlineFlag struct{ offline bool }

func (o offlineFlag) Offline() bool { return o.offline }

func mustFreshStore(t *testing.T) *localstore.Store {
	t.Helper()
	s, err := localstore.NewInMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}
