package localstore_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toollender/toollender/internal/id"
	"github.com/toollender/toollender/internal/localstore"
)

type cachedTool struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ulidStamp struct {
	stamp ulid.ULID
	name  string
}

func setupStore(t *testing.T) *localstore.Store {
	t.Helper()
	s, err := localstore.New(filepath.Join(t.TempDir(), "cache"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTools(s *localstore.Store) *localstore.Collection[cachedTool] {
	return localstore.NewCollection(s, "tools", func(t *cachedTool) string { return t.ID })
}

func TestStore_SaveLoadExists(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	ok, err := s.Exists(ctx, "associations")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(ctx, "associations", []string{"Amager", "Valby"}))

	ok, err = s.Exists(ctx, "associations")
	require.NoError(t, err)
	assert.True(t, ok)

	var got []string
	require.NoError(t, s.Load(ctx, "associations", &got))
	assert.Equal(t, []string{"Amager", "Valby"}, got)

	require.NoError(t, s.Save(ctx, "associations", []string{"Vesterbro"}))
	require.NoError(t, s.Load(ctx, "associations", &got))
	assert.Equal(t, []string{"Vesterbro"}, got)
}

func TestStore_LoadMissing(t *testing.T) {
	var got []string
	err := setupStore(t).Load(context.Background(), "nothing", &got)

	assert.ErrorIs(t, err, localstore.ErrNotFound)
	assert.True(t, localstore.IsMiss(err))
}

func TestStore_CorruptValueIsMiss(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "cache")

	// Write raw garbage straight through badger.
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	require.NoError(t, err)
	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("user"), []byte("{not json"))
	}))
	require.NoError(t, db.Close())

	s, err := localstore.New(dir, nil)
	require.NoError(t, err)
	defer s.Close()

	var got map[string]any
	err = s.Load(ctx, "user", &got)
	assert.ErrorIs(t, err, localstore.ErrCorrupt)
	assert.True(t, localstore.IsMiss(err))
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	require.NoError(t, s.Save(ctx, "k", 1))
	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Delete(ctx, "k"))

	ok, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, setupStore(t).Save(ctx, "k", 1), context.Canceled)
}

func TestCollection_PutRespectsVersion(t *testing.T) {
	ctx := context.Background()
	tools := newTools(setupStore(t))
	now := time.Now().UTC()

	applied, err := tools.Put(ctx, cachedTool{ID: "t1", Name: "Drill v2"}, now, id.Stamp())
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = tools.Put(ctx, cachedTool{ID: "t1", Name: "Drill v1"}, now.Add(-time.Minute), id.Stamp())
	require.NoError(t, err)
	assert.False(t, applied, "older version must not overwrite newer data")

	rec, err := tools.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Drill v2", rec.Value.Name)
	assert.True(t, rec.Version.Equal(now))
}

func TestCollection_ViewOrderAndEviction(t *testing.T) {
	ctx := context.Background()
	tools := newTools(setupStore(t))
	now := time.Now()

	_, err := tools.SaveView(ctx, "all", id.Stamp(), []localstore.Record[cachedTool]{
		{Value: cachedTool{ID: "b", Name: "Saw"}, Version: now},
		{Value: cachedTool{ID: "a", Name: "Drill"}, Version: now},
		{Value: cachedTool{ID: "c", Name: "Ladder"}, Version: now},
	})
	require.NoError(t, err)

	require.NoError(t, tools.Remove(ctx, "a"))

	got, err := tools.LoadView(ctx, "all")
	require.NoError(t, err)
	assert.Equal(t, []cachedTool{{ID: "b", Name: "Saw"}, {ID: "c", Name: "Ladder"}}, got)
}

func TestCollection_StaleViewDoesNotReplace(t *testing.T) {
	ctx := context.Background()
	tools := newTools(setupStore(t))
	now := time.Now()

	// Fetch A starts first but lands last.
	older := id.Stamp()
	newer := id.Stamp()

	replaced, err := tools.SaveView(ctx, "all", newer, []localstore.Record[cachedTool]{
		{Value: cachedTool{ID: "x", Name: "Fresh"}, Version: now},
	})
	require.NoError(t, err)
	assert.True(t, replaced)

	replaced, err = tools.SaveView(ctx, "all", older, []localstore.Record[cachedTool]{
		{Value: cachedTool{ID: "x", Name: "Stale"}, Version: now.Add(-time.Second)},
		{Value: cachedTool{ID: "y", Name: "Only in old snapshot"}, Version: now.Add(-time.Second)},
	})
	require.NoError(t, err)
	assert.False(t, replaced)

	got, err := tools.LoadView(ctx, "all")
	require.NoError(t, err)
	assert.Equal(t, []cachedTool{{ID: "x", Name: "Fresh"}}, got)

	// The stale snapshot still contributed the entity it alone knew about.
	rec, err := tools.Get(ctx, "y")
	require.NoError(t, err)
	assert.Equal(t, "Only in old snapshot", rec.Value.Name)
}

func TestCollection_ConcurrentViewWritesConverge(t *testing.T) {
	ctx := context.Background()
	tools := newTools(setupStore(t))

	stamps := make([]ulidStamp, 8)
	for i := range stamps {
		stamps[i] = ulidStamp{stamp: id.Stamp(), name: string(rune('a' + i))}
	}

	var wg sync.WaitGroup
	for _, st := range stamps {
		wg.Go(func() {
			_, err := tools.SaveView(ctx, "all", st.stamp, []localstore.Record[cachedTool]{
				{Value: cachedTool{ID: st.name, Name: st.name}, Version: time.Now()},
			})
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	got, err := tools.LoadView(ctx, "all")
	require.NoError(t, err)
	last := stamps[len(stamps)-1].name
	assert.Equal(t, []cachedTool{{ID: last, Name: last}}, got)
}

func TestCollection_ViewExistsAndAll(t *testing.T) {
	ctx := context.Background()
	tools := newTools(setupStore(t))

	ok, err := tools.ViewExists(ctx, "owner:u1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = tools.SaveView(ctx, "owner:u1", id.Stamp(), []localstore.Record[cachedTool]{
		{Value: cachedTool{ID: "t1"}}, {Value: cachedTool{ID: "t2"}},
	})
	require.NoError(t, err)

	ok, err = tools.ViewExists(ctx, "owner:u1")
	require.NoError(t, err)
	assert.True(t, ok)

	var ids []string
	for tool, err := range tools.All(ctx) {
		require.NoError(t, err)
		ids = append(ids, tool.ID)
	}
	assert.ElementsMatch(t, []string{"t1", "t2"}, ids)

	_, err = tools.LoadView(ctx, "missing")
	assert.ErrorIs(t, err, localstore.ErrNotFound)
}
