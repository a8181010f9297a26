package entity

import (
	"fmt"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// EditorHandle identifies one open editor in the host IDE. It is opaque to this module.
type EditorHandle string

// DocumentIdentifier identifies an open document on the server side.
type DocumentIdentifier struct {
	URI     uri.URI `json:"uri" zap:"uri"`
	Version int32   `json:"version" zap:"version"`
}

// TextDocument returns the protocol identifier used for requests.
func (d DocumentIdentifier) TextDocument() protocol.TextDocumentIdentifier {
	return protocol.TextDocumentIdentifier{URI: d.URI}
}

// Versioned returns the protocol identifier used for change notifications.
func (d DocumentIdentifier) Versioned() protocol.VersionedTextDocumentIdentifier {
	return protocol.VersionedTextDocumentIdentifier{
		TextDocumentIdentifier: d.TextDocument(),
		Version:                d.Version,
	}
}

// String implements fmt.Stringer.
func (d DocumentIdentifier) String() string {
	return fmt.Sprintf("%s@%d", d.URI, d.Version)
}

// EditorPosition is a position as the editor sees it: 0-based line and a column counted in Unicode code points.
type EditorPosition struct {
	Line   int `json:"line" yaml:"line"`
	Column int `json:"column" yaml:"column"`
}

// EditorRange is a half-open range of editor positions.
type EditorRange struct {
	Start EditorPosition `json:"start" yaml:"start"`
	End   EditorPosition `json:"end" yaml:"end"`
}

// Editor describes the document shown in an editor when it is opened.
type Editor struct {
	Path       string
	LanguageID protocol.LanguageIdentifier
	Text       string
}
