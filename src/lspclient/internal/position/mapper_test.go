package position

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"
)

func TestPositionOffset(t *testing.T) {
	tests := []struct {
		name    string
		content string
		pos     protocol.Position
		want    int
		wantErr string
	}{
		{
			name:    "first line",
			content: "abc\ndef",
			pos:     protocol.Position{Line: 0, Character: 2},
			want:    2,
		},
		{
			name:    "second line",
			content: "abc\ndef",
			pos:     protocol.Position{Line: 1, Character: 1},
			want:    5,
		},
		{
			name:    "multi byte",
			content: "é😀x",
			pos:     protocol.Position{Line: 0, Character: 3},
			want:    6,
		},
		{
			name:    "end of crlf line",
			content: "ab\r\ncd",
			pos:     protocol.Position{Line: 0, Character: 2},
			want:    2,
		},
		{
			name:    "onto carriage return",
			content: "ab\r\ncd",
			pos:     protocol.Position{Line: 0, Character: 3},
			wantErr: "column is beyond end of line",
		},
		{
			name:    "line out of range",
			content: "abc",
			pos:     protocol.Position{Line: 10, Character: 0},
			wantErr: "line out of range",
		},
		{
			name:    "middle of surrogate pair",
			content: "😀",
			pos:     protocol.Position{Line: 0, Character: 1},
			wantErr: "surrogate pair",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewTextOffsetMapper([]byte(tt.content))
			got, err := m.PositionOffset(tt.pos)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOffsetPosition(t *testing.T) {
	tests := []struct {
		name    string
		content string
		offset  int
		want    protocol.Position
		wantErr bool
	}{
		{
			name:    "start",
			content: "abc",
			offset:  0,
			want:    protocol.Position{Line: 0, Character: 0},
		},
		{
			name:    "newline boundary",
			content: "abc\ndef",
			offset:  4,
			want:    protocol.Position{Line: 1, Character: 0},
		},
		{
			name:    "lf of crlf maps before cr",
			content: "ab\r\ncd",
			offset:  3,
			want:    protocol.Position{Line: 0, Character: 2},
		},
		{
			name:    "lone cr at eof is content",
			content: "ab\r",
			offset:  3,
			want:    protocol.Position{Line: 0, Character: 3},
		},
		{
			name:    "astral rune",
			content: "😀a",
			offset:  4,
			want:    protocol.Position{Line: 0, Character: 2},
		},
		{
			name:    "out of range",
			content: "abc",
			offset:  4,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewTextOffsetMapper([]byte(tt.content))
			got, err := m.OffsetPosition(tt.offset)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUTF16Len(t *testing.T) {
	assert.Equal(t, 0, UTF16Len(nil))
	assert.Equal(t, 3, UTF16Len([]byte("abc")))
	assert.Equal(t, 2, UTF16Len([]byte("日本")))
	assert.Equal(t, 3, UTF16Len([]byte("😀a")))
}
