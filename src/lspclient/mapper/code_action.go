package mapper

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/uber/lsp-session/src/lspclient/entity"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// codeActionOrCommand decodes either a Command (command is a string) or a CodeAction (command is an object).
type codeActionOrCommand struct {
	Title       string                  `json:"title"`
	Kind        protocol.CodeActionKind `json:"kind"`
	IsPreferred bool                    `json:"isPreferred"`
	Disabled    *struct {
		Reason string `json:"reason"`
	} `json:"disabled"`
	Edit        *protocol.WorkspaceEdit `json:"edit"`
	Command     json.RawMessage         `json:"command"`
	Arguments   []interface{}           `json:"arguments"`
	Diagnostics []protocol.Diagnostic   `json:"diagnostics"`
}

// RawToActions decodes a textDocument/codeAction result. A null result yields no actions.
func RawToActions(raw json.RawMessage) ([]entity.Action, error) {
	if isNull(raw) {
		return []entity.Action{}, nil
	}

	var items []codeActionOrCommand
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decoding code actions: %w", err)
	}

	actions := make([]entity.Action, 0, len(items))
	for i, item := range items {
		action := entity.Action{
			Title:       item.Title,
			Kind:        item.Kind,
			IsPreferred: item.IsPreferred,
			Edit:        item.Edit,
			Diagnostics: item.Diagnostics,
		}
		if item.Disabled != nil {
			action.DisabledReason = item.Disabled.Reason
		}

		cmd := bytes.TrimSpace(item.Command)
		switch {
		case isNull(cmd):
		case cmd[0] == '"':
			var name string
			if err := json.Unmarshal(cmd, &name); err != nil {
				return nil, fmt.Errorf("decoding command of action %d: %w", i, err)
			}
			action.Command = &protocol.Command{Title: item.Title, Command: name, Arguments: item.Arguments}
		default:
			var command protocol.Command
			if err := json.Unmarshal(cmd, &command); err != nil {
				return nil, fmt.Errorf("decoding command of action %d: %w", i, err)
			}
			action.Command = &command
		}
		actions = append(actions, action)
	}
	return actions, nil
}

// DocumentEdits returns the text edits a workspace edit makes to one document, in the order the server sent them.
func DocumentEdits(edit *protocol.WorkspaceEdit, u uri.URI) []protocol.TextEdit {
	if edit == nil {
		return nil
	}
	var edits []protocol.TextEdit
	edits = append(edits, edit.Changes[u]...)
	for _, change := range edit.DocumentChanges {
		if change.TextDocument.URI == u {
			edits = append(edits, change.Edits...)
		}
	}
	return edits
}
