package remotetest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toollender/toollender/internal/remote"
)

// RunBackendTests checks the behavior every remote.Backend must share.
// newBackend returns an empty backend.
func RunBackendTests(t *testing.T, newBackend func(t *testing.T) remote.Backend) {
	t.Helper()
	ctx := context.Background()

	t.Run("AddGet", func(t *testing.T) {
		b := newBackend(t)
		id, err := b.Add(ctx, "tools", remote.Fields{"name": "Drill", "pricePerDay": 25.0, "isOnHold": false}, "")
		require.NoError(t, err)
		require.NotEmpty(t, id)

		doc, err := b.Get(ctx, "tools", id)
		require.NoError(t, err)
		assert.Equal(t, id, doc.ID)
		assert.Equal(t, "Drill", doc.Fields["name"])
		assert.Equal(t, 25.0, doc.Fields["pricePerDay"])
		assert.Equal(t, false, doc.Fields["isOnHold"])
		assert.False(t, doc.CreateTime.IsZero())
		assert.False(t, doc.UpdateTime.Before(doc.CreateTime))
	})

	t.Run("GetMissing", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.Get(ctx, "tools", "missing")
		assert.ErrorIs(t, err, remote.ErrNotFound)
	})

	t.Run("SetMergeAndOverwrite", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Set(ctx, "users", "u1", remote.Fields{"name": "Ida", "email": "ida@example.dk"}, remote.Overwrite))

		require.NoError(t, b.Set(ctx, "users", "u1", remote.Fields{"name": "Ida K"}, remote.Merge))
		doc, err := b.Get(ctx, "users", "u1")
		require.NoError(t, err)
		assert.Equal(t, remote.Fields{"name": "Ida K", "email": "ida@example.dk"}, doc.Fields)

		require.NoError(t, b.Set(ctx, "users", "u1", remote.Fields{"name": "Ida"}, remote.Overwrite))
		doc, err = b.Get(ctx, "users", "u1")
		require.NoError(t, err)
		assert.Equal(t, remote.Fields{"name": "Ida"}, doc.Fields)
	})

	t.Run("QueryFiltersAndOrders", func(t *testing.T) {
		b := newBackend(t)
		for _, f := range []remote.Fields{
			{"name": "Saw", "ownerId": "u1", "isOnHold": true},
			{"name": "Drill", "ownerId": "u2", "isOnHold": false},
			{"name": "Axe", "ownerId": "u1", "isOnHold": false},
		} {
			_, err := b.Add(ctx, "tools", f, "")
			require.NoError(t, err)
		}

		docs, err := b.Query(ctx, "tools", remote.Where("ownerId", "u1").Ordered("name", false))
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "Axe", docs[0].Fields["name"])
		assert.Equal(t, "Saw", docs[1].Fields["name"])

		docs, err = b.Query(ctx, "tools", remote.Query{}.Ordered("name", true))
		require.NoError(t, err)
		require.Len(t, docs, 3)
		assert.Equal(t, "Saw", docs[0].Fields["name"])

		docs, err = b.Query(ctx, "tools", remote.Where("isOnHold", true))
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "Saw", docs[0].Fields["name"])

		docs, err = b.Query(ctx, "associations", remote.Query{})
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("UniqueKey", func(t *testing.T) {
		b := newBackend(t)
		id, err := b.Add(ctx, "associations", remote.Fields{"name": "Amager"}, "amager")
		require.NoError(t, err)

		_, err = b.Add(ctx, "associations", remote.Fields{"name": "AMAGER"}, "amager")
		assert.ErrorIs(t, err, remote.ErrConflict)

		_, err = b.Add(ctx, "tools", remote.Fields{"name": "x"}, "amager")
		assert.NoError(t, err, "keys are per collection")

		require.NoError(t, b.Delete(ctx, "associations", id))
		_, err = b.Add(ctx, "associations", remote.Fields{"name": "Amager"}, "amager")
		assert.NoError(t, err, "delete releases the key")
	})

	t.Run("ConcurrentUniqueAdds", func(t *testing.T) {
		b := newBackend(t)
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			created   int
			conflicts int
		)
		for range 8 {
			wg.Go(func() {
				_, err := b.Add(ctx, "associations", remote.Fields{"name": "Nørrebro"}, "nørrebro")
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					created++
				} else if assert.ErrorIs(t, err, remote.ErrConflict) {
					conflicts++
				}
			})
		}
		wg.Wait()
		assert.Equal(t, 1, created)
		assert.Equal(t, 7, conflicts)
	})

	t.Run("Delete", func(t *testing.T) {
		b := newBackend(t)
		id, err := b.Add(ctx, "tools", remote.Fields{"name": "Ladder"}, "")
		require.NoError(t, err)

		require.NoError(t, b.Delete(ctx, "tools", id))
		_, err = b.Get(ctx, "tools", id)
		assert.ErrorIs(t, err, remote.ErrNotFound)

		err = b.Delete(ctx, "tools", id)
		if err != nil {
			assert.ErrorIs(t, err, remote.ErrNotFound)
		}
	})
}
