// Package merge implements the textual three-way merge used by the pull
// engine's Conflicted case (spec.md section 4.4). The algorithm itself
// is explicitly out of scope for the sync engine's core (spec.md
// section 1 lists it as a pure function the engine calls into); this
// package provides a concrete implementation built on sergi/go-diff's
// line-level diff primitives rather than a hand-rolled LCS, matching how
// the rest of the pack layers merge/patch tooling on top of a diff
// library instead of reimplementing one.
package merge

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	markerLocalStart = "<<<<<<< "
	markerSeparator  = "======="
	markerRemoteEnd  = ">>>>>>> "
)

// Result is the outcome of a three-way merge attempt.
type Result struct {
	// Text is the merged content. On success it contains no conflict
	// markers. On failure it contains inline "<<<<<<<"/"======="/">>>>>>>"
	// markers around unresolved hunks.
	Text []byte
	// OK is true when every hunk resolved without a genuine conflict.
	OK bool
}

// ThreeWay merges local and remote against their common original,
// labeling conflict markers with localLabel and remoteLabel (spec.md
// section 4.4 calls for "local data" / "remote data").
func ThreeWay(original, local, remote []byte, localLabel, remoteLabel string) Result {
	originalLines := splitLines(string(original))
	localHunks := diffHunks(original, local)
	remoteHunks := diffHunks(original, remote)

	groups := groupOverlapping(localHunks, remoteHunks)

	var out []string

	ok := true
	pos := 0

	for _, g := range groups {
		// Copy any untouched original lines before this group.
		out = append(out, originalLines[pos:g.start]...)

		span := originalLines[g.start:g.end]

		switch {
		case len(g.local) == 0:
			out = append(out, renderSide(span, g.start, g.remote)...)
		case len(g.remote) == 0:
			out = append(out, renderSide(span, g.start, g.local)...)
		default:
			localText := renderSide(span, g.start, g.local)
			remoteText := renderSide(span, g.start, g.remote)

			if sameLines(localText, remoteText) {
				out = append(out, localText...)
			} else {
				ok = false
				out = append(out, markerLocalStart+localLabel)
				out = append(out, localText...)
				out = append(out, markerSeparator)
				out = append(out, remoteText...)
				out = append(out, markerRemoteEnd+remoteLabel)
			}
		}

		pos = g.end
	}

	out = append(out, originalLines[pos:]...)

	return Result{Text: []byte(strings.Join(out, "\n")), OK: ok}
}

// hunk is a replacement of original[start:end) with lines.
type hunk struct {
	start, end int
	lines      []string
}

// taggedHunk associates a hunk with the side (local or remote) it came
// from, for grouping purposes.
type taggedHunk struct {
	hunk
	isLocal bool
}

// group is a maximal run of overlapping (or touching) hunks from either
// side, covering original[start:end).
type group struct {
	start, end    int
	local, remote []taggedHunk
}

func groupOverlapping(localHunks, remoteHunks []hunk) []group {
	var all []taggedHunk

	for _, h := range localHunks {
		all = append(all, taggedHunk{hunk: h, isLocal: true})
	}

	for _, h := range remoteHunks {
		all = append(all, taggedHunk{hunk: h, isLocal: false})
	}

	sortHunks(all)

	var groups []group

	i := 0
	for i < len(all) {
		g := group{start: all[i].start, end: all[i].end}
		addToGroup(&g, all[i])

		j := i + 1
		for j < len(all) && all[j].start < g.end {
			if all[j].end > g.end {
				g.end = all[j].end
			}

			addToGroup(&g, all[j])
			j++
		}

		groups = append(groups, g)
		i = j
	}

	return groups
}

func addToGroup(g *group, h taggedHunk) {
	if h.isLocal {
		g.local = append(g.local, h)
	} else {
		g.remote = append(g.remote, h)
	}
}

func sortHunks(hunks []taggedHunk) {
	for i := 1; i < len(hunks); i++ {
		for j := i; j > 0 && hunks[j].start < hunks[j-1].start; j-- {
			hunks[j], hunks[j-1] = hunks[j-1], hunks[j]
		}
	}
}

// renderSide reconstructs one side's version of original[spanStart:spanStart+len(span))
// by replaying that side's hunks over the span, keeping uncovered parts as
// the original lines.
func renderSide(span []string, spanStart int, sideHunks []taggedHunk) []string {
	var out []string

	pos := spanStart

	for _, h := range sideHunks {
		out = append(out, span[pos-spanStart:h.start-spanStart]...)
		out = append(out, h.lines...)
		pos = h.end
	}

	out = append(out, span[pos-spanStart:]...)

	return out
}

func sameLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

// diffHunks computes the non-equal hunks transforming original into
// modified, expressed as replacement ranges over original's line index
// space.
func diffHunks(original, modified []byte) []hunk {
	dmp := diffmatchpatch.New()

	a, b, lines := dmp.DiffLinesToChars(string(original), string(modified))
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	var hunks []hunk

	origPos := 0

	i := 0
	for i < len(diffs) {
		d := diffs[i]

		if d.Type == diffmatchpatch.DiffEqual {
			origPos += countLines(d.Text)
			i++

			continue
		}

		start := origPos

		var newLines []string

		for i < len(diffs) && diffs[i].Type != diffmatchpatch.DiffEqual {
			switch diffs[i].Type {
			case diffmatchpatch.DiffDelete:
				origPos += countLines(diffs[i].Text)
			case diffmatchpatch.DiffInsert:
				newLines = append(newLines, splitLines(diffs[i].Text)...)
			case diffmatchpatch.DiffEqual:
				// unreachable: loop condition excludes DiffEqual
			}

			i++
		}

		hunks = append(hunks, hunk{start: start, end: origPos, lines: newLines})
	}

	return hunks
}

// splitLines splits text on '\n', dropping a single trailing empty
// element produced by a final newline (DiffLinesToChars always emits
// whole lines including their terminator, so this keeps line counts
// aligned with countLines).
func splitLines(text string) []string {
	if text == "" {
		return nil
	}

	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	return lines
}

func countLines(text string) int {
	return len(splitLines(text))
}

// ConflictSidecarSuffix computes the sidecar path for a binary/undecodable
// conflict, inserting "CONFLICTED" before the final extension (spec.md
// section 4.4 step 4): "notes.txt" -> "notes.CONFLICTED.txt"; no
// extension -> "notes.CONFLICTED".
func ConflictSidecarSuffix(path string) string {
	dir, base := splitDirBase(path)

	ext := extOf(base)
	stem := base[:len(base)-len(ext)]

	if ext == "" {
		return joinDirBase(dir, fmt.Sprintf("%s.CONFLICTED", stem))
	}

	return joinDirBase(dir, fmt.Sprintf("%s.CONFLICTED%s", stem, ext))
}

func splitDirBase(path string) (dir, base string) {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return "", path
	}

	return path[:idx+1], path[idx+1:]
}

func joinDirBase(dir, base string) string {
	return dir + base
}

// extOf returns the extension of base (including the leading '.'), or ""
// if base has no extension. A dotfile with no other dot (".bashrc") is
// treated as having no extension, matching spec.md's example behavior.
func extOf(base string) string {
	idx := strings.LastIndexByte(base, '.')
	if idx <= 0 {
		return ""
	}

	return base[idx:]
}
