package engine

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dsync-go/dsync/internal/classify"
	"github.com/dsync-go/dsync/internal/contenthash"
	"github.com/dsync-go/dsync/internal/dsyncerr"
	"github.com/dsync-go/dsync/internal/ignore"
	"github.com/dsync-go/dsync/internal/repo"
	"github.com/dsync-go/dsync/internal/store"
)

// errTargetOutsideRoot is returned by Add when target does not lie
// under the repository's LOCAL_ROOT.
var errTargetOutsideRoot = targetOutsideRootError{}

type targetOutsideRootError struct{}

func (targetOutsideRootError) Error() string { return "target lies outside LOCAL_ROOT" }

// Add implements the C10+C2 add command (spec.md section 4.6): stage a
// file or directory for the next push. target is an absolute path or a
// path relative to the process's current working directory.
func Add(b *Repo, ig *ignore.Matcher, target string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(target)
	if err != nil {
		return dsyncerr.IO("resolving target "+target, err)
	}

	rel, err := filepath.Rel(b.Root, abs)
	if err != nil || strings.HasPrefix(rel, "..") || strings.HasPrefix(filepath.ToSlash(rel), "../") {
		return dsyncerr.Config(b.Root, errTargetOutsideRoot)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return dsyncerr.IO("stat "+abs, err)
	}

	if info.IsDir() {
		return addDir(b, ig, abs, logger)
	}

	return addFile(b, abs, logger)
}

func addDir(b *Repo, ig *ignore.Matcher, rootAbs string, logger *slog.Logger) error {
	dirs := []string{rootAbs}

	for i := 0; i < len(dirs); i++ {
		dir := dirs[i]

		entries, err := os.ReadDir(dir)
		if err != nil {
			return dsyncerr.IO("reading directory "+dir, err)
		}

		for _, e := range entries {
			childAbs := filepath.Join(dir, e.Name())

			rel, err := filepath.Rel(b.Root, childAbs)
			if err != nil {
				return dsyncerr.IO("computing relative path for "+childAbs, err)
			}

			rel = filepath.ToSlash(rel)

			if rel == repo.ControlDirName {
				continue
			}

			if ig != nil && ig.IsIgnored(rel, e.IsDir()) {
				continue
			}

			if e.IsDir() {
				dirs = append(dirs, childAbs)
				continue
			}

			if err := addFile(b, childAbs, logger); err != nil {
				return err
			}
		}
	}

	return nil
}

func addFile(b *Repo, localAbs string, logger *slog.Logger) error {
	data, err := os.ReadFile(localAbs)
	if err != nil {
		return dsyncerr.IO("reading "+localAbs, err)
	}

	remotePath, err := b.LocalToRemote(localAbs)
	if err != nil {
		return err
	}

	sum := contenthash.Sum256(data)
	hash := classify.Hash(sum[:])

	existing, err := b.Store.Find(remotePath)
	if err != nil {
		return err
	}

	op := store.OpAdd
	if existing != nil {
		op = store.OpUpdate
	}

	if err := b.Store.Upsert(store.Record{Path: remotePath, Hash: hash}); err != nil {
		return err
	}

	if err := b.Store.EnqueueUpdate(remotePath, op); err != nil {
		return err
	}

	logger.Info("staged file", slog.String("path", remotePath), slog.String("operation", opName(op)))

	return nil
}

func opName(op store.Operation) string {
	switch op {
	case store.OpAdd:
		return "ADD"
	case store.OpUpdate:
		return "UPDATE"
	case store.OpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}
