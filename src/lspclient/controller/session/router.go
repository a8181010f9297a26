package session

import (
	"context"

	"github.com/uber/lsp-session/src/lspclient/mapper"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
)

// handle serves requests and notifications sent by the server.
func (s *Session) handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	switch req.Method() {
	// Window methods.
	case protocol.MethodWindowLogMessage:
		return s.logMessage(ctx, reply, req)

	case protocol.MethodWindowShowMessage:
		return s.showMessage(ctx, reply, req)

	case protocol.MethodWindowShowMessageRequest:
		// No action is ever picked.
		return reply(ctx, nil, nil)

	case protocol.MethodWorkDoneProgressCreate, protocol.MethodProgress, protocol.MethodTelemetryEvent:
		return reply(ctx, nil, nil)

	// Diagnostics.
	case protocol.MethodTextDocumentPublishDiagnostics:
		return s.publishDiagnostics(ctx, reply, req)

	// Client and workspace methods.
	case protocol.MethodClientRegisterCapability, protocol.MethodClientUnregisterCapability:
		return reply(ctx, nil, nil)

	case protocol.MethodWorkspaceConfiguration:
		return s.configuration(ctx, reply, req)

	case protocol.MethodWorkspaceWorkspaceFolders:
		return reply(ctx, s.workspaceFolders(), nil)

	default:
		return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
	}
}

func (s *Session) logMessage(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	params, err := mapper.RequestToLogMessageParams(req)
	if err != nil {
		return reply(ctx, nil, err)
	}
	s.logAtLevel(params.Type, "server log", params.Message)
	return reply(ctx, nil, nil)
}

func (s *Session) showMessage(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	params, err := mapper.RequestToShowMessageParams(req)
	if err != nil {
		return reply(ctx, nil, err)
	}
	s.logAtLevel(params.Type, "server message", params.Message)
	return reply(ctx, nil, nil)
}

func (s *Session) logAtLevel(t protocol.MessageType, msg, serverMsg string) {
	switch t {
	case protocol.MessageTypeError:
		s.logger.Errorw(msg, "message", serverMsg)
	case protocol.MessageTypeWarning:
		s.logger.Warnw(msg, "message", serverMsg)
	case protocol.MessageTypeInfo:
		s.logger.Infow(msg, "message", serverMsg)
	default:
		s.logger.Debugw(msg, "message", serverMsg)
	}
}

func (s *Session) publishDiagnostics(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	params, err := mapper.RequestToPublishDiagnosticsParams(req)
	if err != nil {
		return reply(ctx, nil, err)
	}

	s.diagMu.Lock()
	if len(params.Diagnostics) == 0 {
		delete(s.diagnostics, params.URI)
	} else {
		s.diagnostics[params.URI] = params.Diagnostics
	}
	s.diagMu.Unlock()
	return reply(ctx, nil, nil)
}

// configuration answers every requested item with null, which servers read as "use your defaults".
func (s *Session) configuration(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	params, err := mapper.RequestToConfigurationParams(req)
	if err != nil {
		return reply(ctx, nil, err)
	}
	return reply(ctx, make([]interface{}, len(params.Items)), nil)
}
