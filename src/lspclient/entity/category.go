// Package entity contains the domain types shared by the lsp client session core.
package entity

import (
	"fmt"
	"strings"

	"go.lsp.dev/protocol"
)

// Category is a class of request used as the key for timeout and failure bookkeeping.
type Category int

const (
	// CategoryHover covers textDocument/hover.
	CategoryHover Category = iota
	// CategoryCodeAction covers textDocument/codeAction.
	CategoryCodeAction
	// CategoryCompletion covers textDocument/completion.
	CategoryCompletion
	// CategoryDefinition covers textDocument/definition.
	CategoryDefinition
	// CategoryReferences covers textDocument/references.
	CategoryReferences
	// CategoryDocHighlight covers textDocument/documentHighlight.
	CategoryDocHighlight
	// CategorySignature covers textDocument/signatureHelp.
	CategorySignature
	// CategoryFormatting covers textDocument/formatting.
	CategoryFormatting
	// CategorySymbols covers textDocument/documentSymbol.
	CategorySymbols
	// CategoryCodeLens covers textDocument/codeLens.
	CategoryCodeLens
	// CategoryExecuteCommand covers workspace/executeCommand.
	CategoryExecuteCommand
	// CategoryWillSave covers textDocument/willSaveWaitUntil.
	CategoryWillSave
	// CategoryInit covers the initialize handshake.
	CategoryInit
	// CategoryShutdown covers the shutdown request.
	CategoryShutdown
)

var _categoryNames = map[Category]string{
	CategoryHover:          "hover",
	CategoryCodeAction:     "codeAction",
	CategoryCompletion:     "completion",
	CategoryDefinition:     "definition",
	CategoryReferences:     "references",
	CategoryDocHighlight:   "docHighlight",
	CategorySignature:      "signature",
	CategoryFormatting:     "formatting",
	CategorySymbols:        "symbols",
	CategoryCodeLens:       "codeLens",
	CategoryExecuteCommand: "executeCommand",
	CategoryWillSave:       "willSave",
	CategoryInit:           "init",
	CategoryShutdown:       "shutdown",
}

var _categoryMethods = map[Category]string{
	CategoryHover:          protocol.MethodTextDocumentHover,
	CategoryCodeAction:     protocol.MethodTextDocumentCodeAction,
	CategoryCompletion:     protocol.MethodTextDocumentCompletion,
	CategoryDefinition:     protocol.MethodTextDocumentDefinition,
	CategoryReferences:     protocol.MethodTextDocumentReferences,
	CategoryDocHighlight:   protocol.MethodTextDocumentDocumentHighlight,
	CategorySignature:      protocol.MethodTextDocumentSignatureHelp,
	CategoryFormatting:     protocol.MethodTextDocumentFormatting,
	CategorySymbols:        protocol.MethodTextDocumentDocumentSymbol,
	CategoryCodeLens:       protocol.MethodTextDocumentCodeLens,
	CategoryExecuteCommand: protocol.MethodWorkspaceExecuteCommand,
	CategoryWillSave:       protocol.MethodTextDocumentWillSaveWaitUntil,
	CategoryInit:           protocol.MethodInitialize,
	CategoryShutdown:       protocol.MethodShutdown,
}

// Categories returns every known category in declaration order.
func Categories() []Category {
	all := make([]Category, 0, len(_categoryNames))
	for c := CategoryHover; c <= CategoryShutdown; c++ {
		all = append(all, c)
	}
	return all
}

// String returns the configuration key of the category.
func (c Category) String() string {
	if name, ok := _categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// Method returns the LSP method issued for requests of this category.
func (c Category) Method() string {
	return _categoryMethods[c]
}

// ParseCategory maps a configuration key (case-insensitive, "_" and "-" ignored) to a Category.
func ParseCategory(name string) (Category, error) {
	normalized := normalizeCategoryName(name)
	for c, n := range _categoryNames {
		if normalizeCategoryName(n) == normalized {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown request category %q", name)
}

func normalizeCategoryName(name string) string {
	name = strings.ReplaceAll(name, "_", "")
	name = strings.ReplaceAll(name, "-", "")
	return strings.ToLower(name)
}
