// Package factory builds values shared by tests across packages.
package factory

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/uber/lsp-session/src/lspclient/entity"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
)

// UUID is a user-defined factory for a random uuid.UUID.
func UUID() uuid.UUID {
	return uuid.Must(uuid.NewV4())
}

// JSONRPCRequest is a user-defined factory for a JSON-RPC request containing the specified method and parameters.
func JSONRPCRequest(method string, params interface{}) jsonrpc2.Request {
	req, _ := jsonrpc2.NewCall(jsonrpc2.NewNumberID(5), method, params)
	return req
}

// JSONRPCNotification is a factory for a JSON-RPC notification.
func JSONRPCNotification(method string, params interface{}) jsonrpc2.Request {
	req, _ := jsonrpc2.NewNotification(method, params)
	return req
}

// EditorHandle returns a unique editor handle.
func EditorHandle() entity.EditorHandle {
	return entity.EditorHandle(fmt.Sprintf("editor-%s", UUID()))
}

// GoEditor returns an editor over a small Go file at the given path.
func GoEditor(path string) entity.Editor {
	return entity.Editor{
		Path:       path,
		LanguageID: protocol.LanguageIdentifier("go"),
		Text:       "package main\n\nfunc main() {\n\tprintln(\"héllo 😀\")\n}\n",
	}
}

// Text returns random multi-line text mixing ASCII, BMP and astral characters.
func Text(lines int) string {
	alphabet := []string{"a", "b", "z", " ", "\t", "é", "日", "😀", "🎉"}
	var sb strings.Builder
	for i := 0; i < lines; i++ {
		n := rand.Intn(20)
		for j := 0; j < n; j++ {
			sb.WriteString(alphabet[rand.Intn(len(alphabet))])
		}
		if i%3 == 0 {
			sb.WriteString("\r\n")
		} else {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// Range returns a random protocol.Range.
func Range() protocol.Range {
	start := protocol.Position{Line: uint32(rand.Intn(100)), Character: uint32(rand.Intn(100))}
	end := protocol.Position{Line: start.Line + uint32(rand.Intn(100)), Character: uint32(rand.Intn(100))}

	if start.Line == end.Line && start.Character > end.Character {
		end.Character = start.Character + uint32(rand.Intn(100))
	}

	return protocol.Range{
		Start: start,
		End:   end,
	}
}
