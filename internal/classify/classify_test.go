package classify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dsync-go/dsync/internal/classify"
)

var (
	hashA = classify.Hash{0xAA}
	hashB = classify.Hash{0xBB}
	hashC = classify.Hash{0xCC}
)

func TestClassify_NotSaved(t *testing.T) {
	// current != repo always yields NotSaved, regardless of other hashes.
	assert.Equal(t, classify.NotSaved, classify.Classify(hashA, hashB, hashC, hashA))
	assert.Equal(t, classify.NotSaved, classify.Classify(nil, hashB, nil, nil))
	assert.Equal(t, classify.NotSaved, classify.Classify(hashA, nil, hashB, hashA))
}

func TestClassify_NotChanged(t *testing.T) {
	// current == repo, remote == original == repo.
	got := classify.Classify(hashA, hashA, hashA, hashA)
	assert.Equal(t, classify.NotChanged, got)
}

func TestClassify_OnlyLocallyChanged(t *testing.T) {
	// remote == original, but repo (== current) diverged from original.
	got := classify.Classify(hashA, hashB, hashB, hashA)
	assert.Equal(t, classify.OnlyLocallyChanged, got)
}

func TestClassify_ToBeUpdated(t *testing.T) {
	// remote differs from original; repo == original and repo present.
	got := classify.Classify(hashB, hashA, hashA, hashA)
	assert.Equal(t, classify.ToBeUpdated, got)
}

func TestClassify_ToBeCreated(t *testing.T) {
	// remote present, never tracked (repo absent), original absent.
	got := classify.Classify(hashA, nil, nil, nil)
	assert.Equal(t, classify.ToBeCreated, got)
}

func TestClassify_IdenticallyChanged_BothEdited(t *testing.T) {
	// remote differs from original, repo == current == remote.
	got := classify.Classify(hashB, hashB, hashB, hashA)
	assert.Equal(t, classify.IdenticallyChanged, got)
}

func TestClassify_Conflicted_BothDiverged(t *testing.T) {
	// remote, repo, and original are pairwise distinct.
	got := classify.Classify(hashB, hashC, hashC, hashA)
	assert.Equal(t, classify.Conflicted, got)
}

func TestClassify_ToBeRemoved(t *testing.T) {
	// remote absent, repo == original (clean).
	got := classify.Classify(nil, hashA, hashA, hashA)
	assert.Equal(t, classify.ToBeRemoved, got)
}

func TestClassify_IdenticallyChanged_BothDeleted(t *testing.T) {
	// remote absent, repo absent (never tracked or already cleared), current absent.
	got := classify.Classify(nil, nil, nil, hashA)
	assert.Equal(t, classify.IdenticallyChanged, got)
}

func TestClassify_Conflicted_RemoteDeletedLocalKept(t *testing.T) {
	// remote absent, repo present but differs from original.
	got := classify.Classify(nil, hashB, hashB, hashA)
	assert.Equal(t, classify.Conflicted, got)
}

func TestClassify_Total(t *testing.T) {
	// Every combination of presence/absence across the four slots must
	// produce some defined state without panicking.
	hashes := []classify.Hash{nil, hashA, hashB}

	for _, r := range hashes {
		for _, c := range hashes {
			for _, rp := range hashes {
				for _, o := range hashes {
					state := classify.Classify(r, c, rp, o)
					assert.GreaterOrEqual(t, int(state), 0)
				}
			}
		}
	}
}
