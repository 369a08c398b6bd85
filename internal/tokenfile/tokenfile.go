// Package tokenfile caches the OAuth access token at $HOME/.dsync_config
// (spec.md section 6): the raw token bytes, UTF-8, no wrapper, no
// trailing newline.
//
// Adapted from the teacher's internal/tokenfile.go, which caches a
// structured oauth2.Token via JSON: the shape here is simpler (a bare
// token string, per spec), but the atomic write-temp-then-rename
// persistence and owner-only file permissions are kept.
package tokenfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"

	"github.com/dsync-go/dsync/internal/dsyncerr"
)

// FilePerms restricts the token file to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the token file's parent directory.
const DirPerms = 0o700

// DefaultPath returns $HOME/.dsync_config.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", dsyncerr.IO("resolving home directory", err)
	}

	return filepath.Join(home, ".dsync_config"), nil
}

// Load reads the cached token from path. Returns ("", nil) if no token
// is cached yet.
func Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}

	if err != nil {
		return "", dsyncerr.IO("reading token file "+path, err)
	}

	return string(data), nil
}

// Save atomically writes token to path (write-to-temp + rename) with
// owner-only permissions. The file content is exactly the token bytes:
// no trailing newline, no JSON envelope.
func Save(path, token string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return dsyncerr.IO("creating directory "+dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".dsync_config-*.tmp")
	if err != nil {
		return dsyncerr.IO("creating temp token file", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return dsyncerr.IO("setting token file permissions", err)
	}

	if _, err := tmp.WriteString(token); err != nil {
		tmp.Close()
		return dsyncerr.IO("writing token file", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return dsyncerr.IO("syncing token file", err)
	}

	if err := tmp.Close(); err != nil {
		return dsyncerr.IO("closing token file", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return dsyncerr.IO("renaming token file", err)
	}

	success = true

	return nil
}

// StaticSource adapts a fixed token string to remote.TokenSource. The
// cached value is a bare string per spec.md section 6's wire format, but
// in memory it is held as an oauth2.StaticTokenSource, the same
// TokenSource abstraction the teacher threads through its HTTP adapter,
// so a future real OAuth2 flow (refresh, expiry) would plug in here
// without changing remote.TokenSource's shape.
type StaticSource struct {
	inner oauth2.TokenSource
}

// NewStaticSource wraps token in an oauth2.StaticTokenSource.
func NewStaticSource(token string) StaticSource {
	return StaticSource{inner: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})}
}

// Token implements remote.TokenSource.
func (s StaticSource) Token() (string, error) {
	t, err := s.inner.Token()
	if err != nil {
		return "", dsyncerr.Auth(err)
	}

	return t.AccessToken, nil
}

// Bootstrap loads the cached token at path, or, if none is cached,
// prompts the user to paste one on r and persists it for next time.
// Mirrors the original CLI's interactive first-run token capture.
func Bootstrap(path string, r io.Reader, w io.Writer) (string, error) {
	existing, err := Load(path)
	if err != nil {
		return "", err
	}

	if existing != "" {
		return existing, nil
	}

	if _, err := fmt.Fprint(w, "Paste the token here: "); err != nil {
		return "", dsyncerr.IO("writing token prompt", err)
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var token string
	if scanner.Scan() {
		token = scanner.Text()
	}

	if err := scanner.Err(); err != nil {
		return "", dsyncerr.IO("reading pasted token", err)
	}

	if token == "" {
		return "", dsyncerr.Auth(errors.New("no token provided"))
	}

	if err := Save(path, token); err != nil {
		return "", err
	}

	return token, nil
}
