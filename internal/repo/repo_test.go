package repo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsync-go/dsync/internal/repo"
)

func TestInitAndOpen_RoundTrip(t *testing.T) {
	root := t.TempDir()

	r, err := repo.Init(root, "/R")
	require.NoError(t, err)
	assert.Equal(t, "/R", r.Config.RemotePath)

	r2, err := repo.Open(root)
	require.NoError(t, err)
	assert.Equal(t, "/R", r2.Config.RemotePath)
}

func TestInit_RefusesDoubleInit(t *testing.T) {
	root := t.TempDir()

	_, err := repo.Init(root, "/R")
	require.NoError(t, err)

	_, err = repo.Init(root, "/R")
	assert.Error(t, err)
}

func TestOpen_MissingConfigIsConfigError(t *testing.T) {
	_, err := repo.Open(t.TempDir())
	assert.Error(t, err)
}

func TestSave_PersistsSyncDirs(t *testing.T) {
	root := t.TempDir()

	r, err := repo.Init(root, "/R")
	require.NoError(t, err)

	r.Config.SyncDirs = []string{"/R", "/R/b"}
	require.NoError(t, r.Save())

	r2, err := repo.Open(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"/R", "/R/b"}, r2.Config.SyncDirs)
}

func TestRemoteToLocal(t *testing.T) {
	r := &repo.Repo{Root: "/local", Config: repo.Config{RemotePath: "/R"}}

	assert.Equal(t, "/local/a", r.RemoteToLocal("/R/a"))
	assert.Equal(t, "/local/b/c", r.RemoteToLocal("/R/b/c"))
	assert.Equal(t, "/local", r.RemoteToLocal("/R"))
}

func TestLocalToRemote(t *testing.T) {
	r := &repo.Repo{Root: "/local", Config: repo.Config{RemotePath: "/R"}}

	remote, err := r.LocalToRemote("/local/a")
	require.NoError(t, err)
	assert.Equal(t, "/R/a", remote)

	remote, err = r.LocalToRemote("/local/b/c")
	require.NoError(t, err)
	assert.Equal(t, "/R/b/c", remote)
}

func TestRemoteToLocal_LocalToRemote_Inverse(t *testing.T) {
	r := &repo.Repo{Root: "/local", Config: repo.Config{RemotePath: "/R"}}

	local := r.RemoteToLocal("/R/b/c")
	remote, err := r.LocalToRemote(local)
	require.NoError(t, err)
	assert.Equal(t, "/R/b/c", remote)
}

func TestDeriveLocalRoot(t *testing.T) {
	assert.Equal(t, "Photos", repo.DeriveLocalRoot("/Backups/Photos"))
	assert.Equal(t, "Photos", repo.DeriveLocalRoot("/Photos"))
	assert.Equal(t, "Photos", repo.DeriveLocalRoot("/Photos/"))
}

func TestSortDescending(t *testing.T) {
	dirs := []string{"/R/a", "/R", "/R/b"}
	repo.SortDescending(dirs)
	assert.Equal(t, []string{"/R/b", "/R/a", "/R"}, dirs)
}
