// Package shadow implements the shadow tree (spec.md component C3): a
// directory rooted at LOCAL_ROOT/.dsync/ mirroring the tracked working
// tree as of the last successful sync. Its content-hash is the
// "original hash" of three-way comparison (spec.md section 3).
package shadow

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dsync-go/dsync/internal/contenthash"
	"github.com/dsync-go/dsync/internal/dsyncerr"
)

// DirName is the shadow tree's directory name under LOCAL_ROOT.
const DirName = ".dsync"

// filePerm/dirPerm match the working tree's own permissions; the
// shadow copy is read by dsync only, never edited by hand.
const (
	filePerm = 0o644
	dirPerm  = 0o755
)

// Tree is the shadow tree rooted at root/.dsync.
type Tree struct {
	root   string
	logger *slog.Logger
}

// New returns a Tree rooted at localRoot/.dsync.
func New(localRoot string, logger *slog.Logger) *Tree {
	if logger == nil {
		logger = slog.Default()
	}

	return &Tree{root: filepath.Join(localRoot, DirName), logger: logger}
}

func (t *Tree) abs(relPath string) string {
	return filepath.Join(t.root, filepath.FromSlash(relPath))
}

// Write writes data to the shadow copy of relPath, creating parent
// directories as needed.
func (t *Tree) Write(relPath string, data []byte) error {
	abs := t.abs(relPath)

	if err := os.MkdirAll(filepath.Dir(abs), dirPerm); err != nil {
		return dsyncerr.IO("creating shadow parent dir for "+relPath, err)
	}

	if err := os.WriteFile(abs, data, filePerm); err != nil {
		return dsyncerr.IO("writing shadow file "+relPath, err)
	}

	return nil
}

// Remove deletes the shadow copy of relPath. Not an error if absent.
func (t *Tree) Remove(relPath string) error {
	if err := os.Remove(t.abs(relPath)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return dsyncerr.IO("removing shadow file "+relPath, err)
	}

	return nil
}

// Read returns the bytes of the shadow copy of relPath, or
// (nil, false, nil) if no shadow copy exists.
func (t *Tree) Read(relPath string) ([]byte, bool, error) {
	data, err := os.ReadFile(t.abs(relPath))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, dsyncerr.IO("reading shadow file "+relPath, err)
	}

	return data, true, nil
}

// Exists reports whether a shadow copy of relPath is present.
func (t *Tree) Exists(relPath string) bool {
	_, err := os.Stat(t.abs(relPath))
	return err == nil
}

// Hash returns the content-hash of the shadow copy of relPath (the
// "original hash"), or (nil, false, nil) if no shadow copy exists.
func (t *Tree) Hash(relPath string) ([]byte, bool, error) {
	data, ok, err := t.Read(relPath)
	if err != nil || !ok {
		return nil, ok, err
	}

	sum := contenthash.Sum256(data)

	return sum[:], true, nil
}

// CreateDir creates the shadow directory for relPath.
func (t *Tree) CreateDir(relPath string) error {
	if err := os.MkdirAll(t.abs(relPath), dirPerm); err != nil {
		return dsyncerr.IO("creating shadow dir "+relPath, err)
	}

	return nil
}

// RemoveDir removes the shadow directory for relPath. Best-effort: a
// non-empty directory is logged and skipped, not an error (spec.md
// section 4.2).
func (t *Tree) RemoveDir(relPath string) error {
	abs := t.abs(relPath)

	if err := os.Remove(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		if entries, readErr := os.ReadDir(abs); readErr == nil && len(entries) > 0 {
			t.logger.Warn("shadow directory not empty, skipping removal", slog.String("path", relPath))
			return nil
		}

		return dsyncerr.IO("removing shadow dir "+relPath, err)
	}

	return nil
}
