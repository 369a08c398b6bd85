// Package classify implements the four-hash state classifier: a pure,
// total function mapping (remote, current, repo, original) content
// hashes to a sync State. It is the single source of truth for state
// transitions in both the pull and push engines.
//
// Modeled on the teacher's internal/sync/planner.go decision-table style
// (PathView -> classifyPathView -> classifyFileWithFlags), collapsed to
// the eight-state table spec'd for this engine.
package classify

import "bytes"

// State is the outcome of classifying a single path's four hashes.
type State int

// The eight classifier outcomes (spec.md section 4.3).
const (
	// NotChanged means nothing to do.
	NotChanged State = iota
	// OnlyLocallyChanged means local is ahead of remote; no remote change.
	OnlyLocallyChanged
	// ToBeUpdated means remote changed, local clean, and a repo record exists.
	ToBeUpdated
	// ToBeCreated means remote has a file the local/repo side has never seen.
	ToBeCreated
	// NotSaved means the working tree has unflushed local edits (repo != current).
	NotSaved
	// Conflicted means both sides diverged from the original independently.
	Conflicted
	// ToBeRemoved means the remote deleted the file and local is clean.
	ToBeRemoved
	// IdenticallyChanged means both sides made identical edits or identical deletions.
	IdenticallyChanged
)

// String renders the state name, mainly for logging.
func (s State) String() string {
	switch s {
	case NotChanged:
		return "NotChanged"
	case OnlyLocallyChanged:
		return "OnlyLocallyChanged"
	case ToBeUpdated:
		return "ToBeUpdated"
	case ToBeCreated:
		return "ToBeCreated"
	case NotSaved:
		return "NotSaved"
	case Conflicted:
		return "Conflicted"
	case ToBeRemoved:
		return "ToBeRemoved"
	case IdenticallyChanged:
		return "IdenticallyChanged"
	default:
		return "Unknown"
	}
}

// Hash is an optional 32-byte content hash. A nil Hash represents
// "absent" (no remote file, no working-tree file, never tracked, or no
// shadow, depending on which of the four slots it fills).
type Hash []byte

// equal reports whether two optional hashes are equal: both present with
// the same bytes, or both absent.
func equal(a, b Hash) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	return bytes.Equal(a, b)
}

// Classify is the total, deterministic function described in spec.md
// section 4.3. remote, current, repo, and original are each an optional
// 32-byte hash.
func Classify(remote, current, repo, original Hash) State {
	if !equal(current, repo) {
		return NotSaved
	}

	if remote != nil {
		return classifyRemotePresent(remote, repo, original)
	}

	return classifyRemoteAbsent(repo, original)
}

// classifyRemotePresent handles the branch where the remote side has a
// file (decision table rule 2).
func classifyRemotePresent(remote, repo, original Hash) State {
	if equal(remote, original) {
		if equal(repo, original) {
			return NotChanged
		}

		return OnlyLocallyChanged
	}

	// remote differs from original.
	if equal(repo, original) {
		if repo != nil {
			return ToBeUpdated
		}

		return ToBeCreated
	}

	if equal(remote, repo) {
		return IdenticallyChanged
	}

	return Conflicted
}

// classifyRemoteAbsent handles the branch where the remote has no file
// for this path (decision table rule 3).
func classifyRemoteAbsent(repo, original Hash) State {
	if equal(repo, original) {
		return ToBeRemoved
	}

	if repo == nil {
		return IdenticallyChanged
	}

	return Conflicted
}
