// Package repo implements the repository root entity (spec.md component
// C10): the .dsync/ control directory, its JSON config, and the pure
// path mapping between remote and local namespaces.
package repo

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dsync-go/dsync/internal/dsyncerr"
)

// ControlDirName is the control directory under LOCAL_ROOT.
const ControlDirName = ".dsync"

// ConfigFileName is the config file inside the control directory.
const ConfigFileName = ".dsyncconfig"

// DBFileName is the metadata store file inside the control directory.
const DBFileName = ".dsync.db"

// IgnoreFileName is the optional ignore file at LOCAL_ROOT.
const IgnoreFileName = ".dsyncignore"

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Config is the repository's persisted configuration (spec.md section 6).
type Config struct {
	RemotePath string   `json:"remote_path"`
	SyncDirs   []string `json:"sync_dirs"`
}

// Repo is an initialized repository rooted at Root.
type Repo struct {
	Root   string
	Config Config
}

// ControlDir returns LOCAL_ROOT/.dsync.
func (r *Repo) ControlDir() string { return filepath.Join(r.Root, ControlDirName) }

// ConfigPath returns LOCAL_ROOT/.dsync/.dsyncconfig.
func (r *Repo) ConfigPath() string { return filepath.Join(r.ControlDir(), ConfigFileName) }

// DBPath returns LOCAL_ROOT/.dsync/.dsync.db.
func (r *Repo) DBPath() string { return filepath.Join(r.ControlDir(), DBFileName) }

// Open loads an existing repository at root. Returns a ConfigError if
// root is not an initialized repository.
func Open(root string) (*Repo, error) {
	data, err := os.ReadFile(filepath.Join(root, ControlDirName, ConfigFileName))
	if err != nil {
		return nil, dsyncerr.Config(root, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, dsyncerr.Config(root, err)
	}

	return &Repo{Root: root, Config: cfg}, nil
}

// Init creates a fresh .dsync/ control directory at root and returns the
// new (empty) Repo. Does not fail if root already exists as a plain
// directory, but does fail if it is already an initialized repository.
func Init(root, remotePath string) (*Repo, error) {
	controlDir := filepath.Join(root, ControlDirName)

	if _, err := os.Stat(filepath.Join(controlDir, ConfigFileName)); err == nil {
		return nil, dsyncerr.Config(root, errRepoAlreadyExists)
	}

	if err := os.MkdirAll(controlDir, dirPerm); err != nil {
		return nil, dsyncerr.IO("creating control directory", err)
	}

	r := &Repo{Root: root, Config: Config{RemotePath: remotePath, SyncDirs: nil}}

	if err := r.Save(); err != nil {
		return nil, err
	}

	return r, nil
}

// errRepoAlreadyExists is wrapped by Init's ConfigError.
var errRepoAlreadyExists = configAlreadyExistsError{}

type configAlreadyExistsError struct{}

func (configAlreadyExistsError) Error() string { return "repository already initialized" }

// Save persists r.Config to its .dsyncconfig file.
func (r *Repo) Save() error {
	data, err := json.MarshalIndent(r.Config, "", "  ")
	if err != nil {
		return dsyncerr.Config(r.Root, err)
	}

	if err := os.MkdirAll(r.ControlDir(), dirPerm); err != nil {
		return dsyncerr.IO("creating control directory", err)
	}

	if err := os.WriteFile(r.ConfigPath(), data, filePerm); err != nil {
		return dsyncerr.Config(r.Root, err)
	}

	return nil
}

// RemoteToLocal maps a remote path to its local filesystem path under
// r.Root (spec.md section 3): strip the remote_path prefix, split on
// '/', drop empty components, rejoin under LOCAL_ROOT.
func (r *Repo) RemoteToLocal(remotePath string) string {
	rel := strings.TrimPrefix(remotePath, r.Config.RemotePath)

	parts := nonEmptyParts(rel)
	if len(parts) == 0 {
		return r.Root
	}

	return filepath.Join(append([]string{r.Root}, parts...)...)
}

// LocalToRemote is the inverse of RemoteToLocal: canonicalize both paths
// and rejoin with '/'.
func (r *Repo) LocalToRemote(localPath string) (string, error) {
	rel, err := filepath.Rel(r.Root, localPath)
	if err != nil {
		return "", dsyncerr.Config(r.Root, err)
	}

	parts := nonEmptyParts(filepath.ToSlash(rel))
	remote := strings.TrimSuffix(r.Config.RemotePath, "/")

	if len(parts) == 0 {
		return remote, nil
	}

	return remote + "/" + strings.Join(parts, "/"), nil
}

func nonEmptyParts(p string) []string {
	raw := strings.Split(filepath.ToSlash(p), "/")
	out := make([]string, 0, len(raw))

	for _, part := range raw {
		if part != "" && part != "." {
			out = append(out, part)
		}
	}

	return out
}

// RemoteRelPath returns remotePath's slash-joined path relative to the
// repository's remote root, with r.Config.RemotePath stripped and empty
// components dropped. Used by the shadow tree, which is addressed by
// paths relative to LOCAL_ROOT rather than absolute filesystem paths.
func (r *Repo) RemoteRelPath(remotePath string) string {
	return strings.Join(nonEmptyParts(strings.TrimPrefix(remotePath, r.Config.RemotePath)), "/")
}

// DeriveLocalRoot derives a local directory name from a remote path's
// last nonempty component, per spec.md section 6's `clone` command.
func DeriveLocalRoot(remotePath string) string {
	parts := nonEmptyParts(remotePath)
	if len(parts) == 0 {
		return "."
	}

	return parts[len(parts)-1]
}

// SortDescending sorts paths in descending lexical order, as required
// by the pull engine's directory-reconciliation sweep (spec.md section 4.4).
func SortDescending(paths []string) {
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))
}
