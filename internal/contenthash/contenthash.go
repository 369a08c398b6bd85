// Package contenthash implements the provider's content-hash algorithm:
// files are chunked into 4 MiB contiguous segments, each segment is
// digested with SHA-256, and the concatenation of those digests is itself
// SHA-256-digested. A zero-length file hashes the empty concatenation,
// i.e. SHA-256 of the empty string.
//
// Modeled on pkg/quickxorhash: a streaming hash.Hash implementation so
// large files hash in constant memory regardless of caller buffering.
package contenthash

import (
	"crypto/sha256"
	"fmt"
	"hash"
	"io"
	"os"
)

// Size is the length, in bytes, of a content-hash digest.
const Size = sha256.Size

// ChunkSize is the contiguous segment size the provider hashes independently.
const ChunkSize = 4 * 1024 * 1024

// digest streams bytes into 4 MiB chunks, SHA-256-ing each chunk as it
// fills, and SHA-256-ing the concatenation of chunk digests on Sum.
type digest struct {
	chunk    hash.Hash // running SHA-256 of the current 4 MiB chunk
	chunkLen int       // bytes written into the current chunk so far
	all      hash.Hash // running SHA-256 of the concatenated chunk digests
}

// New returns a new hash.Hash computing the provider's content hash.
func New() hash.Hash {
	return &digest{
		chunk: sha256.New(),
		all:   sha256.New(),
	}
}

func (d *digest) Write(p []byte) (int, error) {
	total := len(p)

	for len(p) > 0 {
		room := ChunkSize - d.chunkLen
		n := len(p)
		if n > room {
			n = room
		}

		d.chunk.Write(p[:n])
		d.chunkLen += n
		p = p[n:]

		if d.chunkLen == ChunkSize {
			d.all.Write(d.chunk.Sum(nil))
			d.chunk = sha256.New()
			d.chunkLen = 0
		}
	}

	return total, nil
}

// Sum appends the digest to b without mutating hash state, so Sum can be
// called mid-stream (mirrors hash.Hash semantics). Any partial final
// chunk is folded in as-is; a fully-empty stream (no Write calls) yields
// SHA-256 of the empty concatenation, matching the zero-length-file case.
func (d *digest) Sum(b []byte) []byte {
	all := cloneHash(d.all)

	if d.chunkLen > 0 {
		all.Write(cloneHash(d.chunk).Sum(nil))
	}

	return append(b, all.Sum(nil)...)
}

func (d *digest) Reset() {
	d.chunk = sha256.New()
	d.chunkLen = 0
	d.all = sha256.New()
}

func (d *digest) Size() int      { return Size }
func (d *digest) BlockSize() int { return sha256.BlockSize }

// cloneHash copies a sha256 hash.Hash's state via its encoding.BinaryMarshaler
// support so Sum can be computed without disturbing the live digest.
func cloneHash(h hash.Hash) hash.Hash {
	marshaler, ok := h.(interface{ MarshalBinary() ([]byte, error) })
	if !ok {
		// crypto/sha256's digest always implements this; fall back to a
		// fresh hash only if that assumption is somehow violated.
		return sha256.New()
	}

	state, err := marshaler.MarshalBinary()
	if err != nil {
		return sha256.New()
	}

	clone := sha256.New()

	if unmarshaler, ok := clone.(interface{ UnmarshalBinary([]byte) error }); ok {
		_ = unmarshaler.UnmarshalBinary(state)
	}

	return clone
}

// Sum256 computes the content hash of b and returns the 32-byte digest.
func Sum256(b []byte) [Size]byte {
	h := New()
	h.Write(b)

	var out [Size]byte
	copy(out[:], h.Sum(nil))

	return out
}

// File computes the content hash of the file at fsPath using streaming I/O
// (constant memory regardless of file size).
func File(fsPath string) ([]byte, error) {
	f, err := os.Open(fsPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s for hashing: %w", fsPath, err)
	}
	defer f.Close()

	h := New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("hashing %s: %w", fsPath, err)
	}

	return h.Sum(nil), nil
}
