package entity

import "go.lsp.dev/protocol"

// Action is a code action or bare command offered by the server for a range.
type Action struct {
	Title       string                  `json:"title" yaml:"title"`
	Kind        protocol.CodeActionKind `json:"kind,omitempty" yaml:"kind,omitempty"`
	IsPreferred bool                    `json:"isPreferred,omitempty" yaml:"isPreferred,omitempty"`
	// DisabledReason is set when the server offers the action but it cannot be applied.
	DisabledReason string                  `json:"disabledReason,omitempty" yaml:"disabledReason,omitempty"`
	Edit           *protocol.WorkspaceEdit `json:"edit,omitempty" yaml:"-"`
	Command        *protocol.Command       `json:"command,omitempty" yaml:"command,omitempty"`
	Diagnostics    []protocol.Diagnostic   `json:"diagnostics,omitempty" yaml:"-"`
	// Edits are the changes Edit makes to the requested document, in editor coordinates.
	Edits []EditorEdit `json:"edits,omitempty" yaml:"edits,omitempty"`
}

// EditorEdit replaces a range of a document with new text.
type EditorEdit struct {
	Range   EditorRange `json:"range" yaml:"range"`
	NewText string      `json:"newText" yaml:"newText"`
}

// Disabled reports whether the server marked the action as not applicable.
func (a Action) Disabled() bool {
	return a.DisabledReason != ""
}
