// Package position translates between editor positions and LSP protocol positions.
package position

import (
	"unicode/utf8"

	"github.com/uber/lsp-session/src/lspclient/entity"
	"github.com/uber/lsp-session/src/lspclient/internal/errors"
	"go.lsp.dev/protocol"
)

// Snapshot is an immutable view of one version of a document's text.
// Editor columns and offsets count Unicode code points; protocol characters count UTF-16 code units.
type Snapshot struct {
	text   string
	mapper *TextOffsetMapper

	// runeStart[i] is the code point offset of the start of line i.
	runeStart []int
	runeLen   []int
	total     int
}

// NewSnapshot indexes the lines of text.
func NewSnapshot(text string) *Snapshot {
	s := &Snapshot{
		text:   text,
		mapper: NewTextOffsetMapper([]byte(text)),
	}

	lines := s.mapper.LineCount()
	s.runeStart = make([]int, lines)
	s.runeLen = make([]int, lines)
	offset := 0
	for i := 0; i < lines; i++ {
		start, end, _ := s.mapper.LineBounds(i)
		s.runeStart[i] = offset
		s.runeLen[i] = utf8.RuneCountInString(text[start:end])

		next := len(text)
		if i+1 < lines {
			next, _, _ = s.mapper.LineBounds(i + 1)
		}
		offset += utf8.RuneCountInString(text[start:next])
	}
	s.total = offset
	return s
}

// Text returns the text the snapshot was built from.
func (s *Snapshot) Text() string {
	return s.text
}

// LineCount returns the number of lines in the snapshot.
func (s *Snapshot) LineCount() int {
	return len(s.runeStart)
}

// ToProtocol converts an editor position into a protocol position.
func (s *Snapshot) ToProtocol(p entity.EditorPosition) (protocol.Position, error) {
	offset, err := s.byteOffset(p)
	if err != nil {
		return protocol.Position{}, err
	}
	return s.mapper.OffsetPosition(offset)
}

// ToEditor converts a protocol position into an editor position.
func (s *Snapshot) ToEditor(p protocol.Position) (entity.EditorPosition, error) {
	offset, err := s.mapper.PositionOffset(p)
	if err != nil {
		return entity.EditorPosition{}, err
	}
	start, _, _ := s.mapper.LineBounds(int(p.Line))
	return entity.EditorPosition{
		Line:   int(p.Line),
		Column: utf8.RuneCountInString(s.text[start:offset]),
	}, nil
}

// OffsetToEditor converts a code point offset from the start of the document into an editor position.
func (s *Snapshot) OffsetToEditor(offset int) (entity.EditorPosition, error) {
	if offset < 0 || offset > s.total {
		return entity.EditorPosition{}, errors.InvalidOffsetError(offset, "offset out of range")
	}
	line := len(s.runeStart) - 1
	for i := 1; i < len(s.runeStart); i++ {
		if offset < s.runeStart[i] {
			line = i - 1
			break
		}
	}
	column := offset - s.runeStart[line]
	if column > s.runeLen[line] {
		return entity.EditorPosition{}, errors.InvalidOffsetError(offset, "offset inside a line terminator")
	}
	return entity.EditorPosition{Line: line, Column: column}, nil
}

// EditorToOffset converts an editor position into a code point offset from the start of the document.
func (s *Snapshot) EditorToOffset(p entity.EditorPosition) (int, error) {
	if err := s.validate(p); err != nil {
		return 0, err
	}
	return s.runeStart[p.Line] + p.Column, nil
}

// RangeToProtocol converts an editor range into a protocol range.
func (s *Snapshot) RangeToProtocol(r entity.EditorRange) (protocol.Range, error) {
	start, err := s.ToProtocol(r.Start)
	if err != nil {
		return protocol.Range{}, err
	}
	end, err := s.ToProtocol(r.End)
	if err != nil {
		return protocol.Range{}, err
	}
	return protocol.Range{Start: start, End: end}, nil
}

// RangeToEditor converts a protocol range into an editor range.
func (s *Snapshot) RangeToEditor(r protocol.Range) (entity.EditorRange, error) {
	start, err := s.ToEditor(r.Start)
	if err != nil {
		return entity.EditorRange{}, err
	}
	end, err := s.ToEditor(r.End)
	if err != nil {
		return entity.EditorRange{}, err
	}
	return entity.EditorRange{Start: start, End: end}, nil
}

func (s *Snapshot) validate(p entity.EditorPosition) error {
	if p.Line < 0 || p.Line >= len(s.runeStart) {
		return &errors.InvalidPositionError{Line: p.Line, Character: p.Column, Reason: "line out of range"}
	}
	if p.Column < 0 || p.Column > s.runeLen[p.Line] {
		return &errors.InvalidPositionError{Line: p.Line, Character: p.Column, Reason: "column is beyond end of line"}
	}
	return nil
}

// byteOffset returns the byte offset of a valid editor position.
func (s *Snapshot) byteOffset(p entity.EditorPosition) (int, error) {
	if err := s.validate(p); err != nil {
		return 0, err
	}
	start, end, _ := s.mapper.LineBounds(p.Line)
	offset := start
	for i := 0; i < p.Column && offset < end; i++ {
		_, sz := utf8.DecodeRuneInString(s.text[offset:end])
		offset += sz
	}
	return offset, nil
}
