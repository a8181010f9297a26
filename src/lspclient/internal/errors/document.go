package errors

import (
	"fmt"
)

// InvalidPositionError indicates that a position or offset falls outside of the document.
type InvalidPositionError struct {
	Line      int
	Character int
	Reason    string
}

// Error is an implementation of the error interface.
func (e *InvalidPositionError) Error() string {
	return fmt.Sprintf("invalid position %d:%d: %s", e.Line, e.Character, e.Reason)
}

// InvalidOffsetError returns an InvalidPositionError for a flat offset.
func InvalidOffsetError(offset int, reason string) *InvalidPositionError {
	return &InvalidPositionError{Line: -1, Character: offset, Reason: reason}
}

// UntrackedDocumentError indicates that an editor's document was never opened on a session.
type UntrackedDocumentError struct {
	Handle string
}

// Error is an implementation of the error interface.
func (e *UntrackedDocumentError) Error() string {
	return fmt.Sprintf("document for editor %q is not tracked", e.Handle)
}

// UnknownServerError indicates that no language server is configured under the given name.
type UnknownServerError struct {
	Name string
}

// Error is an implementation of the error interface.
func (e *UnknownServerError) Error() string {
	return fmt.Sprintf("no language server configured as %q", e.Name)
}
