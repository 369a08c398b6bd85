// Package engine implements the pull and push engines (spec.md
// components C8 and C9), plus the clone and add orchestration that
// wires C2/C4/C7/C10 together. This is the sync engine's hard core:
// everything else in the module exists to let these two procedures
// make correct, convergent decisions.
package engine

import (
	"context"
	"encoding/hex"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dsync-go/dsync/internal/classify"
	"github.com/dsync-go/dsync/internal/contenthash"
	"github.com/dsync-go/dsync/internal/dsyncerr"
	"github.com/dsync-go/dsync/internal/ignore"
	"github.com/dsync-go/dsync/internal/merge"
	"github.com/dsync-go/dsync/internal/remote"
	"github.com/dsync-go/dsync/internal/repo"
	"github.com/dsync-go/dsync/internal/shadow"
	"github.com/dsync-go/dsync/internal/store"
	"github.com/dsync-go/dsync/internal/walker"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// RemoteClient is everything the engines need from the remote adapter.
// Defined at the consumer, matching the teacher's TokenSource seam.
type RemoteClient interface {
	ListFolder(ctx context.Context, path string) (*remote.ListFolderResult, error)
	ListFolderContinue(ctx context.Context, cursor string) (*remote.ListFolderResult, error)
	GetMetadata(ctx context.Context, path string) (*remote.Entry, error)
	Download(ctx context.Context, path string) ([]byte, *remote.Entry, error)
	Upload(ctx context.Context, path string, data []byte, updateRev string) (*remote.Entry, error)
	Delete(ctx context.Context, path string) error
}

// Pull is the C8 pull engine.
type Pull struct {
	Repo   *repo.Repo
	Store  *store.Store
	Shadow *shadow.Tree
	Remote RemoteClient
	Ignore *ignore.Matcher
	Logger *slog.Logger
}

// NewPull constructs a Pull engine. logger may be nil.
func NewPull(r *repo.Repo, st *store.Store, sh *shadow.Tree, rc RemoteClient, ig *ignore.Matcher, logger *slog.Logger) *Pull {
	if logger == nil {
		logger = slog.Default()
	}

	return &Pull{Repo: r, Store: st, Shadow: sh, Remote: rc, Ignore: ig, Logger: logger}
}

// Run executes one pull cycle: spec.md section 4.4, steps 1-7. Every
// log line the engine itself emits during the cycle carries a cycle_id
// correlating it with this particular run; the shadow tree and the
// remote client log through their own loggers, without it.
func (p *Pull) Run(ctx context.Context) error {
	cycleLogger := p.Logger.With(slog.String("cycle_id", uuid.NewString()))
	defer func(orig *slog.Logger) { p.Logger = orig }(p.Logger)
	p.Logger = cycleLogger

	cycleLogger.Info("pull started", slog.String("remote_path", p.Repo.Config.RemotePath))

	tree, err := walker.WalkRemote(ctx, p.Remote, p.Repo.Config.RemotePath, p.Ignore)
	if err != nil {
		return err
	}

	createDirs, removeDirs := p.reconcileDirs(tree.Dirs)

	for _, d := range createDirs {
		if err := p.createDir(d); err != nil {
			return err
		}
	}

	pending, err := p.Store.ListAll()
	if err != nil {
		return err
	}

	for _, rf := range tree.Files {
		if rf.ContentHash == "" {
			// Open question 3 (spec.md section 9): a listing with no
			// content_hash is treated as skip, not ToBeCreated.
			p.Logger.Warn("skipping remote file with no content_hash", slog.String("path", rf.Path))
			delete(pending, rf.Path)

			continue
		}

		if err := p.reconcileFile(ctx, rf); err != nil {
			return err
		}

		delete(pending, rf.Path)
	}

	for path, rec := range pending {
		if err := p.unlink(path, rec); err != nil {
			return err
		}
	}

	for _, d := range removeDirs {
		p.removeDir(d)
	}

	p.Repo.Config.SyncDirs = tree.Dirs

	return p.Repo.Save()
}

// reconcileDirs implements spec.md section 4.4 step 3: sort both
// sequences descending, sweep in lockstep, and unconditionally dispatch
// whatever is left once one side is exhausted (section 9 open question 2).
func (p *Pull) reconcileDirs(remoteDirs []string) (createDirs, removeDirs []string) {
	remoteSorted := append([]string(nil), remoteDirs...)
	localSorted := append([]string(nil), p.Repo.Config.SyncDirs...)
	repo.SortDescending(remoteSorted)
	repo.SortDescending(localSorted)

	i, j := 0, 0
	for i < len(remoteSorted) && j < len(localSorted) {
		switch strings.Compare(remoteSorted[i], localSorted[j]) {
		case 0:
			i++
			j++
		case 1:
			createDirs = append(createDirs, remoteSorted[i])
			i++
		default:
			removeDirs = append(removeDirs, localSorted[j])
			j++
		}
	}

	for ; i < len(remoteSorted); i++ {
		createDirs = append(createDirs, remoteSorted[i])
	}

	for ; j < len(localSorted); j++ {
		removeDirs = append(removeDirs, localSorted[j])
	}

	return createDirs, removeDirs
}

func (p *Pull) createDir(remoteDir string) error {
	localAbs := p.Repo.RemoteToLocal(remoteDir)
	if err := os.MkdirAll(localAbs, dirPerm); err != nil {
		return dsyncerr.IO("creating working directory "+localAbs, err)
	}

	return p.Shadow.CreateDir(p.Repo.RemoteRelPath(remoteDir))
}

func (p *Pull) removeDir(remoteDir string) {
	rel := p.Repo.RemoteRelPath(remoteDir)

	if err := p.Shadow.RemoveDir(rel); err != nil {
		p.Logger.Warn("removing shadow directory failed", slog.String("path", remoteDir), slog.String("error", err.Error()))
	}

	localAbs := p.Repo.RemoteToLocal(remoteDir)
	if err := os.Remove(localAbs); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			p.Logger.Warn("working directory not empty, skipping removal", slog.String("path", remoteDir))
		}
	}
}

// reconcileFile dispatches on the classifier for one remote file, per
// the table in spec.md section 4.4 step 4.
func (p *Pull) reconcileFile(ctx context.Context, rf walker.RemoteFile) error {
	relPath := p.Repo.RemoteRelPath(rf.Path)
	localAbs := p.Repo.RemoteToLocal(rf.Path)

	remoteHash, err := decodeContentHash(rf.ContentHash)
	if err != nil {
		return dsyncerr.Remote("decoding content_hash for "+rf.Path, err)
	}

	currHash, currPresent, err := hashLocalFile(localAbs)
	if err != nil {
		return err
	}

	origHash, origPresent, err := p.Shadow.Hash(relPath)
	if err != nil {
		return err
	}

	rec, err := p.Store.Find(rf.Path)
	if err != nil {
		return err
	}

	state := classify.Classify(remoteHash, optHash(currHash, currPresent), optHash(recHash(rec), rec != nil), optHash(origHash, origPresent))

	switch state {
	case classify.NotSaved:
		p.Logger.Warn("unsaved local edits, skipping", slog.String("path", rf.Path))

	case classify.ToBeUpdated, classify.ToBeCreated:
		return p.downloadAndAdopt(ctx, rf.Path, relPath, localAbs, remoteHash)

	case classify.Conflicted:
		return p.resolveConflict(ctx, rf.Path, relPath, localAbs, rf.Rev)

	case classify.IdenticallyChanged:
		data, ok, rerr := readFileOK(localAbs)
		if rerr != nil {
			return rerr
		}

		if ok {
			return p.Shadow.Write(relPath, data)
		}

		return nil

	case classify.NotChanged, classify.OnlyLocallyChanged:
		// No action.

	case classify.ToBeRemoved:
		// Unreachable: remote is present in this call.
		p.Logger.Error("unreachable state ToBeRemoved during file reconciliation", slog.String("path", rf.Path))
	}

	return nil
}

func (p *Pull) downloadAndAdopt(ctx context.Context, remotePath, relPath, localAbs string, remoteHash classify.Hash) error {
	data, _, err := p.Remote.Download(ctx, remotePath)
	if err != nil {
		return err
	}

	if err := writeFile(localAbs, data); err != nil {
		return err
	}

	if err := p.Shadow.Write(relPath, data); err != nil {
		return err
	}

	return p.Store.Upsert(store.Record{Path: remotePath, Hash: remoteHash})
}

// resolveConflict implements the Conflicted branch, spec.md section
// 4.4 "Three-way textual merge".
func (p *Pull) resolveConflict(ctx context.Context, remotePath, relPath, localAbs, rev string) error {
	remoteData, remoteMeta, err := p.Remote.Download(ctx, remotePath)
	if err != nil {
		return err
	}

	origData, origOK, err := p.Shadow.Read(relPath)
	if err != nil {
		return err
	}

	currData, currOK, err := readFileOK(localAbs)
	if err != nil {
		return err
	}

	remoteHash, err := decodeContentHash(remoteMeta.ContentHash)
	if err != nil {
		remoteHash, err = decodeContentHash(contenthashHex(remoteData))
		if err != nil {
			return err
		}
	}

	allDecodable := origOK && currOK && utf8.Valid(origData) && utf8.Valid(currData) && utf8.Valid(remoteData)

	if allDecodable {
		result := merge.ThreeWay(origData, currData, remoteData, "local data", "remote data")

		if err := writeFile(localAbs, result.Text); err != nil {
			return err
		}

		if result.OK {
			sum := contenthash.Sum256(result.Text)
			if err := p.Store.Upsert(store.Record{Path: remotePath, Hash: sum[:]}); err != nil {
				return err
			}
		} else {
			p.Logger.Warn("merge left conflict markers in place", slog.String("path", remotePath))
		}
	} else {
		sidecar := sidecarPath(localAbs)
		if err := writeFile(sidecar, remoteData); err != nil {
			return err
		}

		if err := p.Store.Upsert(store.Record{Path: remotePath, Hash: remoteHash}); err != nil {
			return err
		}

		p.Logger.Warn("wrote conflict sidecar", slog.String("path", remotePath), slog.String("sidecar", sidecar))
	}

	// Step 5: the shadow always ends up at remote bytes, regardless of branch.
	return p.Shadow.Write(relPath, remoteData)
}

// unlink implements spec.md section 4.4 step 5: the remote no longer
// lists path, which was a tracked record.
func (p *Pull) unlink(remotePath string, rec *store.Record) error {
	relPath := p.Repo.RemoteRelPath(remotePath)
	localAbs := p.Repo.RemoteToLocal(remotePath)

	currHash, currPresent, err := hashLocalFile(localAbs)
	if err != nil {
		return err
	}

	origHash, origPresent, err := p.Shadow.Hash(relPath)
	if err != nil {
		return err
	}

	state := classify.Classify(nil, optHash(currHash, currPresent), rec.Hash, optHash(origHash, origPresent))

	switch state {
	case classify.NotSaved:
		p.Logger.Warn("unsaved local edits, skipping unlink", slog.String("path", remotePath))
		return nil

	case classify.ToBeRemoved:
		if err := os.Remove(localAbs); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return dsyncerr.IO("removing working file "+localAbs, err)
		}

		if err := p.Shadow.Remove(relPath); err != nil {
			return err
		}

		return p.Store.Delete(remotePath)

	case classify.IdenticallyChanged:
		return p.Shadow.Remove(relPath)

	case classify.Conflicted:
		p.Logger.Warn("remote deleted a locally-modified file; keeping working copy", slog.String("path", remotePath))

		if err := p.Shadow.Remove(relPath); err != nil {
			return err
		}

		return p.Store.Delete(remotePath)

	default:
		p.Logger.Error("unreachable state during unlink", slog.String("path", remotePath), slog.String("state", state.String()))
	}

	return nil
}

func decodeContentHash(s string) (classify.Hash, error) {
	if s == "" {
		return nil, nil
	}

	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}

	return b, nil
}

func contenthashHex(data []byte) string {
	sum := contenthash.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hashLocalFile(absPath string) (classify.Hash, bool, error) {
	data, ok, err := readFileOK(absPath)
	if err != nil || !ok {
		return nil, false, err
	}

	sum := contenthash.Sum256(data)

	return sum[:], true, nil
}

func readFileOK(absPath string) ([]byte, bool, error) {
	data, err := os.ReadFile(absPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, dsyncerr.IO("reading "+absPath, err)
	}

	return data, true, nil
}

func writeFile(absPath string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(absPath), dirPerm); err != nil {
		return dsyncerr.IO("creating parent directory for "+absPath, err)
	}

	if err := os.WriteFile(absPath, data, filePerm); err != nil {
		return dsyncerr.IO("writing "+absPath, err)
	}

	return nil
}

// sidecarPath computes the conflict-sidecar filesystem path next to
// absPath, per spec.md section 4.4 step 4.
func sidecarPath(absPath string) string {
	dir, base := filepath.Split(absPath)
	return dir + merge.ConflictSidecarSuffix(base)
}

// optHash returns h if present, else nil, keeping absent-vs-empty
// distinct for the classifier.
func optHash(h classify.Hash, present bool) classify.Hash {
	if !present {
		return nil
	}

	return h
}

func recHash(rec *store.Record) classify.Hash {
	if rec == nil {
		return nil
	}

	return rec.Hash
}
