package errors

import (
	"fmt"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCustomErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "transport",
			err:  &TransportError{Method: "textDocument/hover", Err: New("broken pipe")},
		},
		{
			name: "timeout",
			err:  &TimeoutError{Category: "hover", Timeout: time.Second},
		},
		{
			name: "session crashed",
			err:  &SessionCrashedError{},
		},
		{
			name: "session crashed with cause",
			err:  &SessionCrashedError{Cause: New("eof")},
		},
		{
			name: "session closed",
			err:  &SessionClosedError{State: "closed"},
		},
		{
			name: "invalid position",
			err:  &InvalidPositionError{Line: 4, Character: 2, Reason: "line out of range"},
		},
		{
			name: "invalid offset",
			err:  InvalidOffsetError(12, "offset out of range"),
		},
		{
			name: "untracked document",
			err:  &UntrackedDocumentError{Handle: "editor-1"},
		},
		{
			name: "unknown server",
			err:  &UnknownServerError{Name: "gopls"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.err)
			assert.True(t, len(tt.err.Error()) > 0)
		})
	}
}

func TestClassification(t *testing.T) {
	id := uuid.Must(uuid.NewV4())
	tests := []struct {
		name        string
		err         error
		noResult    bool
		sessionGone bool
		badRequest  bool
	}{
		{
			name:     "timeout",
			err:      &TimeoutError{Category: "hover"},
			noResult: true,
		},
		{
			name:     "wrapped transport",
			err:      fmt.Errorf("hover: %w", &TransportError{Err: New("reset")}),
			noResult: true,
		},
		{
			name:        "crashed",
			err:         &SessionCrashedError{Session: id},
			sessionGone: true,
		},
		{
			name:        "closed",
			err:         &SessionClosedError{Session: id, State: "closed"},
			sessionGone: true,
		},
		{
			name:       "invalid position",
			err:        &InvalidPositionError{},
			badRequest: true,
		},
		{
			name:       "untracked",
			err:        fmt.Errorf("resolving: %w", &UntrackedDocumentError{}),
			badRequest: true,
		},
		{
			name: "cancelled",
			err:  ErrCancelled,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.noResult, IsNoResult(tt.err))
			assert.Equal(t, tt.sessionGone, IsSessionGone(tt.err))
			assert.Equal(t, tt.badRequest, IsBadRequest(tt.err))
		})
	}
}

func TestUnwrap(t *testing.T) {
	cause := New("pipe closed")
	assert.True(t, Is(&SessionCrashedError{Cause: cause}, cause))
	assert.True(t, Is(&TransportError{Err: cause}, cause))

	var crashed *SessionCrashedError
	assert.True(t, As(fmt.Errorf("wrap: %w", &SessionCrashedError{Cause: cause}), &crashed))
	assert.Equal(t, cause, crashed.Cause)
}
