package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toollender/toollender/internal/domain"
	domainerrors "github.com/toollender/toollender/internal/errors"
	"github.com/toollender/toollender/internal/remote"
	"github.com/toollender/toollender/internal/repository"
)

func ptr[T any](v T) *T { return &v }

func names(tools []domain.Tool) []string {
	out := make([]string, len(tools))
	for i, t := range tools {
		out[i] = t.Name
	}
	return out
}

func TestTools_CacheFirstIgnoresRemoteLatency(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t)
	repo := repository.NewToolRepository(env.deps, nil)
	env.seedTool("", "Drill", "u1", "Amager")
	env.seedTool("", "Saw", "u2", "Amager")

	_, err := repo.FetchAll(ctx, repository.ServerOnly)
	require.NoError(t, err)
	env.sync.Wait()

	env.backend.SetLatency(2 * time.Second)
	start := time.Now()
	tools, err := repo.FetchAll(ctx, repository.CacheFirst)
	took := time.Since(start)

	require.NoError(t, err)
	assert.Len(t, tools, 2)
	assert.Less(t, took, 500*time.Millisecond)
}

func TestTools_CacheHitRefreshesInBackground(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t)
	repo := repository.NewToolRepository(env.deps, nil)
	env.seedTool("", "Drill", "u1", "Amager")

	_, err := repo.FetchAll(ctx, repository.ServerOnly)
	require.NoError(t, err)

	env.seedTool("", "Ladder", "u2", "Amager")
	tools, err := repo.FetchAll(ctx, repository.CacheFirst)
	require.NoError(t, err)
	assert.Equal(t, []string{"Drill"}, names(tools), "hit served from cache")

	env.sync.Wait()
	tools, err = repo.FetchAll(ctx, repository.CacheFirst)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Drill", "Ladder"}, names(tools))
}

func TestTools_ConcurrentMissesShareOneServerRead(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t)
	repo := repository.NewToolRepository(env.deps, nil)
	env.seedTool("", "Drill", "u1", "Amager")
	env.backend.SetLatency(200 * time.Millisecond)

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			tools, err := repo.FetchAll(ctx, repository.ServerOnly)
			assert.NoError(t, err)
			assert.Len(t, tools, 1)
		})
	}
	wg.Wait()

	assert.Equal(t, 1, env.backend.Calls("query"))
}

func TestTools_ServerFailureDegrades(t *testing.T) {
	ctx := context.Background()

	t.Run("serves cached list", func(t *testing.T) {
		env := setupEnv(t)
		repo := repository.NewToolRepository(env.deps, nil)
		env.seedTool("", "Drill", "u1", "Amager")
		_, err := repo.FetchAll(ctx, repository.ServerOnly)
		require.NoError(t, err)

		env.backend.SetUnavailable(true)
		tools, err := repo.FetchAll(ctx, repository.ServerOnly)

		require.NoError(t, err)
		assert.Equal(t, []string{"Drill"}, names(tools))
	})

	t.Run("empty without cache", func(t *testing.T) {
		env := setupEnv(t)
		repo := repository.NewToolRepository(env.deps, nil)
		env.backend.SetUnavailable(true)

		tools, err := repo.FetchAll(ctx, repository.CacheFirst)

		require.NoError(t, err)
		assert.Empty(t, tools)
	})

	t.Run("fetch one propagates", func(t *testing.T) {
		env := setupEnv(t)
		repo := repository.NewToolRepository(env.deps, nil)
		env.backend.SetUnavailable(true)

		_, err := repo.FetchOne(ctx, "tools-0001", repository.CacheFirst)

		assert.ErrorIs(t, err, domainerrors.ErrRemoteUnavailable)
	})
}

func TestTools_FetchByOwnerIsolatesOwners(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t)
	repo := repository.NewToolRepository(env.deps, nil)
	a := env.seedTool("", "A", "U1", "Amager")
	env.seedTool("", "B", "U2", "Amager")

	for _, policy := range []repository.ReadPolicy{repository.ServerOnly, repository.CacheFirst} {
		tools, err := repo.FetchByOwner(ctx, "U1", policy)
		require.NoError(t, err)
		require.Len(t, tools, 1, policy.String())
		assert.Equal(t, a, tools[0].ID)
	}

	// Everything is in the remote snapshot now; the cache-mode query must
	// still filter by owner.
	_, err := repo.FetchAll(ctx, repository.ServerOnly)
	require.NoError(t, err)
	env2 := repository.NewToolRepository(repository.Deps{
		Remote: env.client, Local: mustFreshStore(t), Sync: env.sync, Validator: env.deps.Validator,
	}, nil)
	tools, err := env2.FetchByOwner(ctx, "U1", repository.CacheFirst)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, a, tools[0].ID)
	env.sync.Wait()
}

func TestTools_CreateRejectsBlankFields(t *testing.T) {
	valid := domain.NewTool{Name: "Drill", Description: "18V", OwnerID: "u1", Category: "Amager"}
	tests := []struct {
		name   string
		mutate func(*domain.NewTool)
	}{
		{"blank name", func(n *domain.NewTool) { n.Name = "" }},
		{"whitespace name", func(n *domain.NewTool) { n.Name = "   " }},
		{"whitespace description", func(n *domain.NewTool) { n.Description = "\t\n" }},
		{"blank owner", func(n *domain.NewTool) { n.OwnerID = " " }},
		{"blank category", func(n *domain.NewTool) { n.Category = "" }},
		{"all category", func(n *domain.NewTool) { n.Category = "All" }},
		{"negative price", func(n *domain.NewTool) { n.PricePerDay = ptr(-1.0) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupEnv(t)
			repo := repository.NewToolRepository(env.deps, nil)
			in := valid
			tt.mutate(&in)

			_, err := repo.Create(context.Background(), in)

			assert.ErrorIs(t, err, domainerrors.ErrValidation)
			assert.Zero(t, env.backend.Writes(), "no remote write")
		})
	}
}

func TestTools_CreateThenFetchRoundTrip(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t)
	repo := repository.NewToolRepository(env.deps, nil)
	in := domain.NewTool{
		Name:        "Cordless drill",
		Description: "Bosch 18V with two batteries",
		ImageURL:    "https://img.example.dk/drill.webp",
		OwnerID:     "u1",
		PricePerDay: ptr(25.0),
		Category:    "Amager Strand",
	}

	created, err := repo.Create(ctx, in)
	require.NoError(t, err)

	got, err := repo.FetchOne(ctx, created.ID, repository.ServerOnly)
	require.NoError(t, err)

	assert.NotEmpty(t, got.ID)
	assert.Equal(t, created, got)
	assert.Equal(t, in.Name, got.Name)
	assert.Equal(t, in.Description, got.Description)
	assert.Equal(t, in.ImageURL, got.ImageURL)
	assert.Equal(t, in.OwnerID, got.OwnerID)
	assert.Equal(t, in.Category, got.Category)
	require.NotNil(t, got.PricePerDay)
	assert.InDelta(t, 25.0, *got.PricePerDay, 0.0001)
	assert.False(t, got.IsOnHold)
	require.NotNil(t, got.CreatedAt)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Contains(t, env.events.list(), repository.EventToolCreated)
}

func TestTools_CreateConvertsHTMLDescription(t *testing.T) {
	env := setupEnv(t)
	repo := repository.NewToolRepository(env.deps, nil)

	tool, err := repo.Create(context.Background(), domain.NewTool{
		Name: "Saw", Description: "<p><b>Sharp</b> saw</p>", OwnerID: "u1", Category: "Valby",
	})

	require.NoError(t, err)
	assert.Equal(t, "**Sharp** saw", tool.Description)
}

func TestTools_ToggleHoldAlternates(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t)
	repo := repository.NewToolRepository(env.deps, nil)
	id := env.seedTool("", "Drill", "u1", "Amager")

	original, err := repo.FetchOne(ctx, id, repository.ServerOnly)
	require.NoError(t, err)

	first, err := repo.ToggleHold(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, !original.IsOnHold, first.IsOnHold)

	second, err := repo.ToggleHold(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, original.IsOnHold, second.IsOnHold)

	third, err := repo.ToggleHold(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, first.IsOnHold, third.IsOnHold)

	cached, err := repo.FetchOne(ctx, id, repository.CacheFirst)
	require.NoError(t, err)
	assert.Equal(t, third.IsOnHold, cached.IsOnHold)
}

func TestTools_FetchOneErrors(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t)
	repo := repository.NewToolRepository(env.deps, nil)
	broken := env.backend.Seed(repository.CollectionTools, "", remote.Fields{"name": "No owner", "description": "x"})

	_, err := repo.FetchOne(ctx, "missing", repository.CacheFirst)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	_, err = repo.FetchOne(ctx, broken, repository.ServerOnly)
	assert.ErrorIs(t, err, domainerrors.ErrDecode)

	tools, err := repo.FetchAll(ctx, repository.ServerOnly)
	require.NoError(t, err)
	assert.Empty(t, tools, "malformed documents are skipped in lists")
}

func TestTools_ServerOnlyFallsBackToCachedTool(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t)
	repo := repository.NewToolRepository(env.deps, nil)
	id := env.seedTool("", "Drill", "u1", "Amager")

	_, err := repo.FetchOne(ctx, id, repository.ServerOnly)
	require.NoError(t, err)

	env.backend.SetUnavailable(true)
	tool, err := repo.FetchOne(ctx, id, repository.ServerOnly)
	require.NoError(t, err)
	assert.Equal(t, "Drill", tool.Name)

	_, err = repo.FetchOne(ctx, "never-seen", repository.ServerOnly)
	assert.ErrorIs(t, err, domainerrors.ErrRemoteUnavailable)
}

func TestTools_DecodesLegacyFields(t *testing.T) {
	env := setupEnv(t)
	repo := repository.NewToolRepository(env.deps, nil)
	id := env.backend.Seed(repository.CollectionTools, "", remote.Fields{
		"name":        "Ladder",
		"description": "3m",
		"ownerUID":    "u9",
		"category":    "Valby",
		"price":       float64(40),
		"timestamp":   "2023-05-01T10:00:00Z",
	})

	tool, err := repo.FetchOne(context.Background(), id, repository.ServerOnly)

	require.NoError(t, err)
	assert.Equal(t, "u9", tool.OwnerID)
	require.NotNil(t, tool.PricePerDay)
	assert.InDelta(t, 40.0, *tool.PricePerDay, 0.0001)
	require.NotNil(t, tool.CreatedAt)
	assert.Equal(t, time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC), *tool.CreatedAt)
	assert.False(t, tool.IsOnHold)
	assert.Empty(t, tool.ImageURL)
}

func TestTools_UpdateMerges(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t)
	repo := repository.NewToolRepository(env.deps, nil)
	id := env.seedTool("", "Drill", "u1", "Amager")

	require.NoError(t, repo.Update(ctx, id, domain.ToolPatch{}))
	assert.Zero(t, env.backend.Writes(), "empty patch is a no-op")

	err := repo.Update(ctx, id, domain.ToolPatch{Name: ptr("  ")})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	require.NoError(t, repo.Update(ctx, id, domain.ToolPatch{PricePerDay: ptr(10.0)}))

	tool, err := repo.FetchOne(ctx, id, repository.CacheFirst)
	require.NoError(t, err)
	assert.Equal(t, "Drill", tool.Name)
	assert.Equal(t, "Amager", tool.Category)
	require.NotNil(t, tool.PricePerDay)
	assert.InDelta(t, 10.0, *tool.PricePerDay, 0.0001)
}

func TestTools_DeleteEvicts(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t)
	repo := repository.NewToolRepository(env.deps, nil)
	id := env.seedTool("", "Drill", "u1", "Amager")
	_, err := repo.FetchOne(ctx, id, repository.ServerOnly)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, id))

	_, err = repo.FetchOne(ctx, id, repository.CacheFirst)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
	assert.Contains(t, env.events.list(), repository.EventToolDeleted)
}

func TestTools_OnConnectivityRefreshes(t *testing.T) {
	env := setupEnv(t)
	repo := repository.NewToolRepository(env.deps, nil)
	env.seedTool("", "Drill", "u1", "Amager")

	repo.OnConnectivity(false)
	env.sync.Wait()
	assert.Zero(t, env.backend.Calls("query"))

	repo.OnConnectivity(true)
	env.sync.Wait()
	assert.Equal(t, 1, env.backend.Calls("query"))

	env.backend.SetUnavailable(true)
	tools, err := repo.FetchAll(context.Background(), repository.CacheFirst)
	require.NoError(t, err)
	assert.Equal(t, []string{"Drill"}, names(tools))
}

type fakeIndex struct {
	mu       sync.Mutex
	ids      map[string]bool
	complete int
}

func (f *fakeIndex) IndexTools(_ context.Context, tools []domain.Tool, complete bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if complete {
		f.complete++
		f.ids = map[string]bool{}
	}
	for _, t := range tools {
		f.ids[t.ID] = true
	}
	return nil
}

func (f *fakeIndex) RemoveTool(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.ids, id)
	return nil
}

func TestTools_FeedsIndex(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t)
	idx := &fakeIndex{ids: map[string]bool{}}
	repo := repository.NewToolRepository(env.deps, idx)
	a := env.seedTool("", "Drill", "u1", "Amager")
	b := env.seedTool("", "Saw", "u1", "Amager")

	_, err := repo.FetchAll(ctx, repository.ServerOnly)
	require.NoError(t, err)
	assert.Equal(t, 1, idx.complete)
	assert.True(t, idx.ids[a])

	require.NoError(t, repo.Delete(ctx, b))
	env.sync.Wait()
	idx.mu.Lock()
	defer idx.mu.Unlock()
	assert.False(t, idx.ids[b])
}

func TestTools_OfflineFailsFastToCache(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t)
	env.seedTool("", "Drill", "u1", "Amager")
	online := repository.NewToolRepository(env.deps, nil)
	_, err := online.FetchAll(ctx, repository.ServerOnly)
	require.NoError(t, err)
	env.sync.Wait()

	deps := env.deps
	deps.Remote = remote.NewClient(env.backend, remote.Options{Reachability: offlineFlag{offline: true}})
	offline := repository.NewToolRepository(deps, nil)
	queries := env.backend.Calls("query")

	tools, err := offline.FetchAll(ctx, repository.ServerOnly)

	require.NoError(t, err)
	assert.Equal(t, []string{"Drill"}, names(tools))
	assert.Equal(t, queries, env.backend.Calls("query"))
}
