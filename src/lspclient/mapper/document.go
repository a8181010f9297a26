package mapper

import (
	"github.com/uber/lsp-session/src/lspclient/entity"
	"go.lsp.dev/protocol"
)

// DidOpenParams builds the didOpen notification for a document.
func DidOpenParams(id entity.DocumentIdentifier, languageID protocol.LanguageIdentifier, text string) *protocol.DidOpenTextDocumentParams {
	return &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        id.URI,
			LanguageID: languageID,
			Version:    id.Version,
			Text:       text,
		},
	}
}

// DidChangeParams builds a full-text didChange notification.
func DidChangeParams(id entity.DocumentIdentifier, text string) *protocol.DidChangeTextDocumentParams {
	return &protocol.DidChangeTextDocumentParams{
		TextDocument: id.Versioned(),
		ContentChanges: []protocol.TextDocumentContentChangeEvent{
			{Text: text},
		},
	}
}

// DidCloseParams builds the didClose notification for a document.
func DidCloseParams(id entity.DocumentIdentifier) *protocol.DidCloseTextDocumentParams {
	return &protocol.DidCloseTextDocumentParams{
		TextDocument: id.TextDocument(),
	}
}

// HoverParams builds a hover request at a protocol position.
func HoverParams(id entity.DocumentIdentifier, pos protocol.Position) *protocol.HoverParams {
	return &protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: id.TextDocument(),
			Position:     pos,
		},
	}
}

// CodeActionParams builds a code action request for a range, carrying the diagnostics that overlap it.
func CodeActionParams(id entity.DocumentIdentifier, rng protocol.Range, diagnostics []protocol.Diagnostic) *protocol.CodeActionParams {
	return &protocol.CodeActionParams{
		TextDocument: id.TextDocument(),
		Range:        rng,
		Context: protocol.CodeActionContext{
			Diagnostics: DiagnosticsInRange(diagnostics, rng),
		},
	}
}

// DiagnosticsInRange returns the diagnostics whose range intersects rng. The result is never nil.
func DiagnosticsInRange(diagnostics []protocol.Diagnostic, rng protocol.Range) []protocol.Diagnostic {
	result := []protocol.Diagnostic{}
	for _, d := range diagnostics {
		if !positionBefore(d.Range.End, rng.Start) && !positionBefore(rng.End, d.Range.Start) {
			result = append(result, d)
		}
	}
	return result
}

func positionBefore(a, b protocol.Position) bool {
	return a.Line < b.Line || (a.Line == b.Line && a.Character < b.Character)
}
