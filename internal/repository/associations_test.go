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

func associationNames(list []domain.Association) []string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.Name
	}
	return out
}

func TestAssociations_AllAppearsOnce(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t)
	repo := repository.NewAssociationRepository(env.deps)
	env.backend.Seed(repository.CollectionAssociations, "", remote.Fields{"name": "Valby"})
	env.backend.Seed(repository.CollectionAssociations, "", remote.Fields{"name": "Amager"})

	policies := []repository.ReadPolicy{
		repository.ServerOnly, repository.CacheFirst, repository.CacheFirst, repository.ServerOnly,
	}
	for _, policy := range policies {
		list, err := repo.FetchAll(ctx, policy, true)
		require.NoError(t, err)
		assert.Equal(t, []string{"All", "Amager", "Valby"}, associationNames(list))
		env.sync.Wait()
	}

	list, err := repo.FetchAll(ctx, repository.CacheFirst, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Amager", "Valby"}, associationNames(list))
}

func TestAssociations_PersistedAllIsNotDuplicated(t *testing.T) {
	env := setupEnv(t)
	repo := repository.NewAssociationRepository(env.deps)
	env.backend.Seed(repository.CollectionAssociations, "", remote.Fields{"name": "All"})
	env.backend.Seed(repository.CollectionAssociations, "", remote.Fields{"name": "Amager"})

	list, err := repo.FetchAll(context.Background(), repository.ServerOnly, true)

	require.NoError(t, err)
	assert.Equal(t, []string{"All", "Amager"}, associationNames(list))
}

func TestAssociations_CacheFirstIgnoresRemoteLatency(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t)
	repo := repository.NewAssociationRepository(env.deps)
	env.backend.Seed(repository.CollectionAssociations, "", remote.Fields{"name": "Amager"})
	_, err := repo.FetchAll(ctx, repository.ServerOnly, false)
	require.NoError(t, err)

	env.backend.SetLatency(2 * time.Second)
	start := time.Now()
	list, err := repo.FetchAll(ctx, repository.CacheFirst, true)

	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestAssociations_Create(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t)
	repo := repository.NewAssociationRepository(env.deps)

	a, err := repo.Create(ctx, "  Amager   Strand ")
	require.NoError(t, err)
	assert.Equal(t, "Amager Strand", a.Name)

	got, err := repo.FetchOne(ctx, "amager strand", repository.ServerOnly)
	require.NoError(t, err)
	assert.Equal(t, "Amager Strand", got.Name)

	_, err = repo.Create(ctx, "AMAGER STRAND")
	assert.ErrorIs(t, err, domainerrors.ErrAlreadyExists)
	assert.Equal(t, 1, env.backend.Count(repository.CollectionAssociations))
	assert.Contains(t, env.events.list(), repository.EventAssociationCreated)
}

func TestAssociations_CreateRejects(t *testing.T) {
	for _, name := range []string{"", "   ", "All", " all "} {
		t.Run(name, func(t *testing.T) {
			env := setupEnv(t)
			repo := repository.NewAssociationRepository(env.deps)

			_, err := repo.Create(context.Background(), name)

			assert.ErrorIs(t, err, domainerrors.ErrValidation)
			assert.Zero(t, env.backend.Writes())
		})
	}
}

func TestAssociations_ConcurrentCreateYieldsOne(t *testing.T) {
	env := setupEnv(t)
	repo := repository.NewAssociationRepository(env.deps)
	env.backend.SetLatency(10 * time.Millisecond)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		conflict int
	)
	for range 10 {
		wg.Go(func() {
			_, err := repo.Create(context.Background(), "Valby")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case domainerrors.Is(err, domainerrors.ErrAlreadyExists):
				conflict++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 9, conflict)
	assert.Equal(t, 1, env.backend.Count(repository.CollectionAssociations))
}

func TestAssociations_FetchOne(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t)
	repo := repository.NewAssociationRepository(env.deps)
	env.backend.Seed(repository.CollectionAssociations, "", remote.Fields{"name": "Valby"})

	all, err := repo.FetchOne(ctx, "All", repository.ServerOnly)
	require.NoError(t, err)
	assert.Equal(t, "All", all.Name)
	assert.Zero(t, env.backend.Calls("query"))

	legacy, err := repo.FetchOne(ctx, "Valby", repository.CacheFirst)
	require.NoError(t, err, "documents without a key are found by name")
	assert.Equal(t, "Valby", legacy.Name)

	_, err = repo.FetchOne(ctx, "Nørrebro", repository.CacheFirst)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestAssociations_FetchOneFallsBackWhenServerDown(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t)
	repo := repository.NewAssociationRepository(env.deps)
	_, err := repo.Create(ctx, "Valby")
	require.NoError(t, err)

	env.backend.SetUnavailable(true)
	got, err := repo.FetchOne(ctx, "Valby", repository.ServerOnly)
	require.NoError(t, err)
	assert.Equal(t, "Valby", got.Name)

	_, err = repo.FetchOne(ctx, "Amager", repository.ServerOnly)
	assert.ErrorIs(t, err, domainerrors.ErrRemoteUnavailable)
}

func TestAssociations_Delete(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t)
	repo := repository.NewAssociationRepository(env.deps)
	_, err := repo.Create(ctx, "Valby")
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, "valby"))
	assert.Zero(t, env.backend.Count(repository.CollectionAssociations))

	err = repo.Delete(ctx, "Valby")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	err = repo.Delete(ctx, "All")
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, err = repo.Create(ctx, "Valby")
	require.NoError(t, err, "name is free again after delete")
}
