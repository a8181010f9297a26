// Package anchor keeps caller-held document offsets valid across edits.
package anchor

import (
	"sync"
	"unicode/utf8"

	"github.com/gofrs/uuid"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/uber/lsp-session/src/lspclient/internal/errors"
	"go.lsp.dev/uri"
)

// Position is where an anchor currently points.
type Position struct {
	URI uri.URI
	// Offset counts Unicode code points from the start of the document.
	Offset int
	// Deleted is set once the text the anchor pointed into was removed. Offset then points at the deletion.
	Deleted bool
}

// Table tracks anchors for every open document.
type Table struct {
	mu      sync.Mutex
	anchors map[uuid.UUID]*Position
}

// NewTable returns an empty anchor table.
func NewTable() *Table {
	return &Table{anchors: make(map[uuid.UUID]*Position)}
}

// Add anchors a code point offset of a document and returns its id.
func (t *Table) Add(u uri.URI, offset int) uuid.UUID {
	id := uuid.Must(uuid.NewV4())
	t.mu.Lock()
	defer t.mu.Unlock()
	t.anchors[id] = &Position{URI: u, Offset: offset}
	return id
}

// Resolve returns the current position of an anchor.
func (t *Table) Resolve(id uuid.UUID) (Position, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.anchors[id]
	if !ok {
		return Position{}, &errors.UUIDNotFoundError{UUID: id}
	}
	return *p, nil
}

// Remove forgets an anchor.
func (t *Table) Remove(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.anchors, id)
}

// Drop forgets every anchor of a document and returns how many were dropped.
func (t *Table) Drop(u uri.URI) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	dropped := 0
	for id, p := range t.anchors {
		if p.URI == u {
			delete(t.anchors, id)
			dropped++
		}
	}
	return dropped
}

// Shift moves the anchors of a document from before to after.
func (t *Table) Shift(u uri.URI, before, after string) {
	if before == after {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var diffs []diffmatchpatch.Diff
	for _, p := range t.anchors {
		if p.URI != u || p.Deleted {
			continue
		}
		if diffs == nil {
			diffs = diffmatchpatch.New().DiffMain(before, after, false)
		}
		p.Offset, p.Deleted = ShiftOffset(diffs, p.Offset)
	}
}

// ShiftOffset returns where a code point offset of the old text lands in the new text,
// and whether the text at that offset was deleted.
// It follows diffmatchpatch's DiffXIndex, counting code points instead of bytes.
func ShiftOffset(diffs []diffmatchpatch.Diff, loc int) (int, bool) {
	chars1 := 0
	chars2 := 0
	lastChars1 := 0
	lastChars2 := 0
	lastDiff := diffmatchpatch.Diff{}
	for _, aDiff := range diffs {
		n := utf8.RuneCountInString(aDiff.Text)
		if aDiff.Type != diffmatchpatch.DiffInsert {
			// Equality or deletion.
			chars1 += n
		}
		if aDiff.Type != diffmatchpatch.DiffDelete {
			// Equality or insertion.
			chars2 += n
		}
		if chars1 > loc {
			// Overshot the location.
			lastDiff = aDiff
			break
		}
		lastChars1 = chars1
		lastChars2 = chars2
	}
	if lastDiff.Type == diffmatchpatch.DiffDelete {
		return lastChars2, true
	}
	// Add the remaining character length.
	return lastChars2 + (loc - lastChars1), false
}
