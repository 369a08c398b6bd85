package shadow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsync-go/dsync/internal/contenthash"
	"github.com/dsync-go/dsync/internal/shadow"
)

func TestWriteReadExists(t *testing.T) {
	tree := shadow.New(t.TempDir(), nil)

	assert.False(t, tree.Exists("a/b.txt"))

	require.NoError(t, tree.Write("a/b.txt", []byte("hello")))
	assert.True(t, tree.Exists("a/b.txt"))

	data, ok, err := tree.Read("a/b.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", string(data))
}

func TestRead_Missing(t *testing.T) {
	tree := shadow.New(t.TempDir(), nil)

	data, ok, err := tree.Read("nope.txt")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, data)
}

func TestHash_MatchesContentHash(t *testing.T) {
	tree := shadow.New(t.TempDir(), nil)
	require.NoError(t, tree.Write("a.txt", []byte("hello")))

	h, ok, err := tree.Hash("a.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, contenthash.Sum256([]byte("hello"))[:], h)
}

func TestHash_Missing(t *testing.T) {
	tree := shadow.New(t.TempDir(), nil)

	h, ok, err := tree.Hash("nope.txt")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, h)
}

func TestRemove_DeletesFile(t *testing.T) {
	tree := shadow.New(t.TempDir(), nil)
	require.NoError(t, tree.Write("a.txt", []byte("x")))

	require.NoError(t, tree.Remove("a.txt"))
	assert.False(t, tree.Exists("a.txt"))
}

func TestRemove_MissingIsNotError(t *testing.T) {
	tree := shadow.New(t.TempDir(), nil)

	require.NoError(t, tree.Remove("nope.txt"))
}

func TestCreateDirAndRemoveDir_Empty(t *testing.T) {
	tree := shadow.New(t.TempDir(), nil)

	require.NoError(t, tree.CreateDir("sub"))
	require.NoError(t, tree.RemoveDir("sub"))
}

func TestRemoveDir_NonEmptyIsSkippedNotError(t *testing.T) {
	tree := shadow.New(t.TempDir(), nil)

	require.NoError(t, tree.CreateDir("sub"))
	require.NoError(t, tree.Write("sub/a.txt", []byte("x")))

	require.NoError(t, tree.RemoveDir("sub"))
	assert.True(t, tree.Exists("sub/a.txt"))
}
