package engine

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dsync-go/dsync/internal/classify"
	"github.com/dsync-go/dsync/internal/contenthash"
	"github.com/dsync-go/dsync/internal/dsyncerr"
	"github.com/dsync-go/dsync/internal/ignore"
	"github.com/dsync-go/dsync/internal/repo"
	"github.com/dsync-go/dsync/internal/shadow"
	"github.com/dsync-go/dsync/internal/store"
	"github.com/dsync-go/dsync/internal/walker"
)

// Clone runs the C10+C2+C4+C7 clone procedure described in spec.md
// section 4.7: create LOCAL_ROOT, walk the remote tree once, materialize
// every directory and file, and write the resulting config.
func Clone(ctx context.Context, rc RemoteClient, remotePath, localRoot string, logger *slog.Logger) (*Repo, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(localRoot, dirPerm); err != nil {
		return nil, dsyncerr.IO("creating local root "+localRoot, err)
	}

	r, err := repo.Init(localRoot, remotePath)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(r.DBPath(), logger)
	if err != nil {
		return nil, err
	}

	sh := shadow.New(r.Root, logger)

	tree, err := walker.WalkRemote(ctx, rc, remotePath, nil)
	if err != nil {
		st.Close()
		return nil, err
	}

	for _, d := range tree.Dirs {
		if err := materializeDir(r, sh, d); err != nil {
			st.Close()
			return nil, err
		}
	}

	for _, rf := range tree.Files {
		if err := cloneFile(ctx, rc, r, st, sh, rf); err != nil {
			st.Close()
			return nil, err
		}
	}

	if err := copyIgnoreFileIfMissing(r.Root); err != nil {
		st.Close()
		return nil, err
	}

	r.Config.SyncDirs = tree.Dirs

	if err := r.Save(); err != nil {
		st.Close()
		return nil, err
	}

	return &Repo{Repo: r, Store: st, Shadow: sh}, nil
}

// Repo bundles the three handles a long-lived command needs: the
// repository entity, its metadata store, and its shadow tree. Returned
// by Clone and Open so callers (the CLI commands) don't re-derive them.
type Repo struct {
	*repo.Repo
	Store  *store.Store
	Shadow *shadow.Tree
}

// Open loads an already-initialized repository at root, wiring its store
// and shadow tree.
func Open(root string, logger *slog.Logger) (*Repo, error) {
	if logger == nil {
		logger = slog.Default()
	}

	r, err := repo.Open(root)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(r.DBPath(), logger)
	if err != nil {
		return nil, err
	}

	return &Repo{Repo: r, Store: st, Shadow: shadow.New(r.Root, logger)}, nil
}

// Close releases the repository's metadata store handle.
func (b *Repo) Close() error {
	return b.Store.Close()
}

// LoadIgnore reads the repository's .dsyncignore file, if present, always
// including the built-in `.dsync*` pattern (spec.md section 6).
func (b *Repo) LoadIgnore() (*ignore.Matcher, error) {
	return ignore.Load(b.Root)
}

func materializeDir(r *repo.Repo, sh *shadow.Tree, remoteDir string) error {
	localAbs := r.RemoteToLocal(remoteDir)
	if err := os.MkdirAll(localAbs, dirPerm); err != nil {
		return dsyncerr.IO("creating working directory "+localAbs, err)
	}

	return sh.CreateDir(r.RemoteRelPath(remoteDir))
}

func cloneFile(ctx context.Context, rc RemoteClient, r *repo.Repo, st *store.Store, sh *shadow.Tree, rf walker.RemoteFile) error {
	relPath := r.RemoteRelPath(rf.Path)
	localAbs := r.RemoteToLocal(rf.Path)

	data, _, err := rc.Download(ctx, rf.Path)
	if err != nil {
		return err
	}

	if err := writeFile(localAbs, data); err != nil {
		return err
	}

	if err := sh.Write(relPath, data); err != nil {
		return err
	}

	hash, err := decodeContentHash(rf.ContentHash)
	if err != nil || hash == nil {
		sum := contenthash.Sum256(data)
		hash = classify.Hash(sum[:])
	}

	return st.Upsert(store.Record{Path: rf.Path, Hash: hash})
}

// copyIgnoreFileIfMissing copies the invoking process's current working
// directory's ignore file into localRoot, per spec.md section 4.7 step 5.
func copyIgnoreFileIfMissing(localRoot string) error {
	dst := filepath.Join(localRoot, repo.IgnoreFileName)
	if _, err := os.Stat(dst); err == nil {
		return nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return dsyncerr.IO("resolving current directory", err)
	}

	src := filepath.Join(cwd, repo.IgnoreFileName)

	data, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return dsyncerr.IO("reading ignore file "+src, err)
	}

	if err := os.WriteFile(dst, data, filePerm); err != nil {
		return dsyncerr.IO("writing ignore file "+dst, err)
	}

	return nil
}
