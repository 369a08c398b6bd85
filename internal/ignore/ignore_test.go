package ignore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsync-go/dsync/internal/ignore"
)

func TestIsIgnored_BuiltinDsyncPattern(t *testing.T) {
	m := ignore.NewFromLines(nil)

	assert.True(t, m.IsIgnored(".dsync", true))
	assert.True(t, m.IsIgnored(".dsyncconfig", false))
	assert.True(t, m.IsIgnored(".dsyncignore", false))
}

func TestIsIgnored_BlankAndComments(t *testing.T) {
	m := ignore.NewFromLines([]string{"", "# comment", "*.tmp"})

	assert.True(t, m.IsIgnored("a.tmp", false))
	assert.False(t, m.IsIgnored("a.txt", false))
}

func TestIsIgnored_Anchored(t *testing.T) {
	m := ignore.NewFromLines([]string{"/build"})

	assert.True(t, m.IsIgnored("build", true))
	assert.False(t, m.IsIgnored("sub/build", true))
}

func TestIsIgnored_TrailingSlashDirOnly(t *testing.T) {
	m := ignore.NewFromLines([]string{"logs/"})

	assert.True(t, m.IsIgnored("logs", true))
	assert.False(t, m.IsIgnored("logs", false))
}

func TestIsIgnored_DoubleStar(t *testing.T) {
	m := ignore.NewFromLines([]string{"**/cache"})

	assert.True(t, m.IsIgnored("cache", true))
	assert.True(t, m.IsIgnored("a/b/cache", true))
}

func TestIsIgnored_Wildcard(t *testing.T) {
	m := ignore.NewFromLines([]string{"*.log"})

	assert.True(t, m.IsIgnored("debug.log", false))
	assert.False(t, m.IsIgnored("debug.log.txt", false))
}

func TestLoad_MissingFile(t *testing.T) {
	dir := t.TempDir()

	m, err := ignore.Load(dir)
	require.NoError(t, err)
	assert.True(t, m.IsIgnored(".dsync", true))
	assert.False(t, m.IsIgnored("notes.txt", false))
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".dsyncignore"), []byte("*.tmp\n# comment\n\nbuild/\n"), 0o600))

	m, err := ignore.Load(dir)
	require.NoError(t, err)
	assert.True(t, m.IsIgnored("scratch.tmp", false))
	assert.True(t, m.IsIgnored("build", true))
	assert.False(t, m.IsIgnored("keep.txt", false))
}
