// Package walker implements the remote and local tree walkers (spec.md
// component C7). The remote walker is an iterative breadth-first walk
// over a single growing index-based sequence of directories (spec.md
// section 4.8 and 9), never recursion, so it bounds stack usage on deep
// trees.
package walker

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/dsync-go/dsync/internal/dsyncerr"
	"github.com/dsync-go/dsync/internal/ignore"
	"github.com/dsync-go/dsync/internal/remote"
)

// RemoteFile is a discovered remote file, carrying the entry metadata
// needed for content-hash comparison (the content hash may be absent,
// per spec.md section 9 open question 3 — treated as skip downstream).
type RemoteFile struct {
	Path        string
	ContentHash string
	Rev         string
}

// RemoteLister is the subset of remote.Client the walker needs. Defined
// at the consumer per "accept interfaces, return structs".
type RemoteLister interface {
	ListFolder(ctx context.Context, path string) (*remote.ListFolderResult, error)
	ListFolderContinue(ctx context.Context, cursor string) (*remote.ListFolderResult, error)
}

// RemoteTree is the result of walking a remote directory tree.
type RemoteTree struct {
	Dirs  []string
	Files []RemoteFile
}

// WalkRemote enumerates rootPath's tree, filtering every path by
// is_ignored at both file and directory granularity. A directory whose
// relative path matches is_ignored is skipped entirely (its subtree is
// never listed).
func WalkRemote(ctx context.Context, client RemoteLister, rootPath string, isIgnored *ignore.Matcher) (*RemoteTree, error) {
	dirs := []string{rootPath}
	var files []RemoteFile

	for i := 0; i < len(dirs); i++ {
		dir := dirs[i]

		entries, err := listFolderAll(ctx, client, dir)
		if err != nil {
			return nil, err
		}

		for _, e := range entries {
			relPath := e.PathDisplay
			if relPath == "" {
				relPath = joinDropboxPath(dir, e.Name)
			}

			rel := stripRemotePrefix(relPath, rootPath)

			switch {
			case e.IsFolder():
				if isIgnored != nil && isIgnored.IsIgnored(rel, true) {
					continue
				}

				dirs = append(dirs, relPath)
			case e.IsFile():
				if isIgnored != nil && isIgnored.IsIgnored(rel, false) {
					continue
				}

				files = append(files, RemoteFile{Path: relPath, ContentHash: e.ContentHash, Rev: e.Rev})
			default:
				// Unknown entry variants (including "deleted", which
				// list_folder never emits outside of /list_folder/longpoll)
				// are ignored, per spec.md section 4.8.
			}
		}
	}

	return &RemoteTree{Dirs: dirs, Files: files}, nil
}

func listFolderAll(ctx context.Context, client RemoteLister, path string) ([]remote.Entry, error) {
	result, err := client.ListFolder(ctx, path)
	if err != nil {
		return nil, err
	}

	entries := append([]remote.Entry(nil), result.Entries...)

	for result.HasMore {
		result, err = client.ListFolderContinue(ctx, result.Cursor)
		if err != nil {
			return nil, err
		}

		entries = append(entries, result.Entries...)
	}

	return entries, nil
}

func joinDropboxPath(dir, name string) string {
	if dir == "" || dir == "/" {
		return "/" + name
	}

	return dir + "/" + name
}

func stripRemotePrefix(path, rootPath string) string {
	rel := path
	if len(path) >= len(rootPath) {
		rel = path[len(rootPath):]
	}

	return rel
}

// LocalFile is a discovered local working-tree file, relative to
// LOCAL_ROOT, '/'-separated.
type LocalFile struct {
	RelPath string
}

// LocalTree is the result of walking the local working tree.
type LocalTree struct {
	Dirs  []string
	Files []LocalFile
}

// WalkLocal enumerates the local working tree rooted at localRoot,
// excluding the control directory and anything is_ignored.
func WalkLocal(localRoot string, isIgnored *ignore.Matcher, controlDirName string) (*LocalTree, error) {
	var tree LocalTree

	err := filepath.WalkDir(localRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return dsyncerr.IO("walking local tree at "+path, err)
		}

		if path == localRoot {
			return nil
		}

		rel, relErr := filepath.Rel(localRoot, path)
		if relErr != nil {
			return dsyncerr.IO("computing relative path for "+path, relErr)
		}

		rel = filepath.ToSlash(rel)

		if d.IsDir() && d.Name() == controlDirName {
			return filepath.SkipDir
		}

		if isIgnored != nil && isIgnored.IsIgnored(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if d.IsDir() {
			tree.Dirs = append(tree.Dirs, rel)
		} else {
			tree.Files = append(tree.Files, LocalFile{RelPath: rel})
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(tree.Dirs)

	return &tree, nil
}
