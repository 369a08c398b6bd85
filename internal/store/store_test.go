package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsync-go/dsync/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestFind_NotTracked(t *testing.T) {
	s := openTestStore(t)

	rec, err := s.Find("/a.txt")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestUpsertAndFind(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Upsert(store.Record{Path: "/a.txt", Hash: []byte{1, 2, 3}}))

	rec, err := s.Find("/a.txt")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, []byte{1, 2, 3}, rec.Hash)

	// Upsert replaces.
	require.NoError(t, s.Upsert(store.Record{Path: "/a.txt", Hash: []byte{9, 9}}))
	rec, err = s.Find("/a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9}, rec.Hash)
}

func TestListAll(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Upsert(store.Record{Path: "/a.txt", Hash: []byte{1}}))
	require.NoError(t, s.Upsert(store.Record{Path: "/b.txt", Hash: []byte{2}}))

	all, err := s.ListAll()
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, []byte{1}, all["/a.txt"].Hash)
	assert.Equal(t, []byte{2}, all["/b.txt"].Hash)
}

func TestDelete_RemovesFileAndUpdate(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Upsert(store.Record{Path: "/a.txt", Hash: []byte{1}}))
	require.NoError(t, s.EnqueueUpdate("/a.txt", store.OpUpdate))

	require.NoError(t, s.Delete("/a.txt"))

	rec, err := s.Find("/a.txt")
	require.NoError(t, err)
	assert.Nil(t, rec)

	updates, err := s.ListUpdates()
	require.NoError(t, err)
	assert.Empty(t, updates)
}

func TestEnqueueUpdate_LaterWins(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.EnqueueUpdate("/a.txt", store.OpAdd))
	require.NoError(t, s.EnqueueUpdate("/a.txt", store.OpUpdate))

	updates, err := s.ListUpdates()
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, store.OpUpdate, updates[0].Operation)
}

func TestListUpdates_DeterministicOrder(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.EnqueueUpdate("/c.txt", store.OpAdd))
	require.NoError(t, s.EnqueueUpdate("/a.txt", store.OpAdd))
	require.NoError(t, s.EnqueueUpdate("/b.txt", store.OpAdd))

	updates, err := s.ListUpdates()
	require.NoError(t, err)
	require.Len(t, updates, 3)
	assert.Equal(t, "/c.txt", updates[0].Path)
	assert.Equal(t, "/a.txt", updates[1].Path)
	assert.Equal(t, "/b.txt", updates[2].Path)
}

func TestClearUpdates(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.EnqueueUpdate("/a.txt", store.OpAdd))
	require.NoError(t, s.EnqueueUpdate("/b.txt", store.OpAdd))

	require.NoError(t, s.ClearUpdates())

	updates, err := s.ListUpdates()
	require.NoError(t, err)
	assert.Empty(t, updates)
}

func TestClearUpdatesFor_OnlyNamedPaths(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.EnqueueUpdate("/a.txt", store.OpAdd))
	require.NoError(t, s.EnqueueUpdate("/b.txt", store.OpAdd))

	require.NoError(t, s.ClearUpdatesFor([]string{"/a.txt"}))

	updates, err := s.ListUpdates()
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, "/b.txt", updates[0].Path)
}

func TestUpsertMany_InsertsAllRecords(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.UpsertMany([]store.Record{
		{Path: "/a.txt", Hash: []byte{1}},
		{Path: "/b.txt", Hash: []byte{2}},
	}))

	all, err := s.ListAll()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestOpen_Idempotent(t *testing.T) {
	dbPath := t.TempDir() + "/test.db"

	s1, err := store.Open(dbPath, nil)
	require.NoError(t, err)
	require.NoError(t, s1.Upsert(store.Record{Path: "/a.txt", Hash: []byte{1}}))
	require.NoError(t, s1.Close())

	// Reopening an existing store must not fail or lose data.
	s2, err := store.Open(dbPath, nil)
	require.NoError(t, err)
	defer s2.Close()

	rec, err := s2.Find("/a.txt")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}
