// Package request issues LSP requests on one connection and correlates their outcomes.
package request

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	tally "github.com/uber-go/tally/v4"
	"github.com/uber/lsp-session/src/lspclient/entity"
	"github.com/uber/lsp-session/src/lspclient/internal/errors"
	"github.com/uber/lsp-session/src/lspclient/internal/future"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"
)

const _cancelNotifyTimeout = time.Second

// Outcomes receives the success or failure of every request that completes on the wire.
type Outcomes interface {
	NotifySuccess(c entity.Category)
	NotifyFailure(c entity.Category)
}

// Manager submits requests without blocking the caller.
// Every request ends in exactly one of: completed (success recorded), failed (failure recorded),
// cancelled (nothing recorded), or failed by FailAll (nothing recorded). An outcome is recorded
// only by the call that settled the future.
type Manager struct {
	conn     jsonrpc2.Conn
	outcomes Outcomes
	logger   *zap.SugaredLogger
	stats    tally.Scope

	mu       sync.Mutex
	inFlight map[uuid.UUID]*pending
	closed   error
}

type pending struct {
	category entity.Category
	method   string
	cancel   context.CancelFunc
	fail     func(error) bool
}

// New returns a Manager that issues requests on conn.
func New(conn jsonrpc2.Conn, outcomes Outcomes, logger *zap.SugaredLogger, stats tally.Scope) *Manager {
	return &Manager{
		conn:     conn,
		outcomes: outcomes,
		logger:   logger.With("component", "request"),
		stats:    stats.SubScope("request"),
		inFlight: make(map[uuid.UUID]*pending),
	}
}

// Send issues method with params and returns immediately.
// The returned future settles with the decoded result, a *errors.TransportError, the error given to FailAll,
// or errors.ErrCancelled. Cancelling the future or ctx sends a best-effort $/cancelRequest.
func Send[T any](ctx context.Context, m *Manager, category entity.Category, method string, params interface{}) *future.Future[T] {
	m.mu.Lock()
	if m.closed != nil {
		err := m.closed
		m.mu.Unlock()
		return future.Failed[T](err)
	}

	id := uuid.Must(uuid.NewV4())
	callCtx, cancel := context.WithCancel(ctx)
	f := future.New[T](func() { m.cancel(id) })
	m.inFlight[id] = &pending{
		category: category,
		method:   method,
		cancel:   cancel,
		fail:     f.Fail,
	}
	m.mu.Unlock()

	scope := m.stats.Tagged(map[string]string{"category": category.String()})
	scope.Counter("sent").Inc(1)

	go func() {
		defer cancel()

		var result T
		wireID, err := m.conn.Call(callCtx, method, params, &result)

		if callCtx.Err() != nil {
			// Cancelled by the future, the caller's context or FailAll.
			if p, ok := m.remove(id); ok {
				p.fail(errors.ErrCancelled)
			}
			scope.Counter("cancelled").Inc(1)
			m.notifyCancel(wireID)
			return
		}

		if _, ok := m.remove(id); !ok {
			return
		}

		if err != nil {
			if f.Fail(&errors.TransportError{Method: method, Err: err}) {
				scope.Counter("failure").Inc(1)
				m.outcomes.NotifyFailure(category)
			}
			return
		}

		if f.Complete(result) {
			scope.Counter("success").Inc(1)
			m.outcomes.NotifySuccess(category)
		}
	}()

	return f
}

// Notify sends a notification. It fails once the manager has been failed.
func (m *Manager) Notify(ctx context.Context, method string, params interface{}) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed != nil {
		return closed
	}

	if err := m.conn.Notify(ctx, method, params); err != nil {
		return &errors.TransportError{Method: method, Err: err}
	}
	return nil
}

// FailAll fails every in-flight request with err and rejects later requests with the same error.
// No outcome is recorded for the failed requests.
func (m *Manager) FailAll(err error) {
	m.mu.Lock()
	if m.closed != nil {
		m.mu.Unlock()
		return
	}
	m.closed = err
	inFlight := m.inFlight
	m.inFlight = make(map[uuid.UUID]*pending)
	m.mu.Unlock()

	for _, p := range inFlight {
		p.cancel()
		p.fail(err)
	}
	if len(inFlight) > 0 {
		m.logger.Infow("failed in-flight requests", "count", len(inFlight), "error", err)
	}
}

// InFlight returns the number of requests awaiting a response.
func (m *Manager) InFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inFlight)
}

func (m *Manager) cancel(id uuid.UUID) {
	if p, ok := m.remove(id); ok {
		p.cancel()
	}
}

func (m *Manager) remove(id uuid.UUID) (*pending, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.inFlight[id]
	if ok {
		delete(m.inFlight, id)
	}
	return p, ok
}

// notifyCancel asks the server to abandon a request. The connection may already be gone.
func (m *Manager) notifyCancel(id jsonrpc2.ID) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), _cancelNotifyTimeout)
	defer cancel()
	if err := m.conn.Notify(ctx, protocol.MethodCancelRequest, &protocol.CancelParams{ID: &id}); err != nil {
		m.logger.Debugw("failed to send cancel request", "id", id, "error", err)
	}
}

// Hover requests hover information. The raw result is decoded by the caller since servers answer with several shapes.
func (m *Manager) Hover(ctx context.Context, params *protocol.HoverParams) *future.Future[json.RawMessage] {
	return Send[json.RawMessage](ctx, m, entity.CategoryHover, protocol.MethodTextDocumentHover, params)
}

// CodeAction requests code actions; the result mixes commands and code actions.
func (m *Manager) CodeAction(ctx context.Context, params *protocol.CodeActionParams) *future.Future[json.RawMessage] {
	return Send[json.RawMessage](ctx, m, entity.CategoryCodeAction, protocol.MethodTextDocumentCodeAction, params)
}

// Completion requests completion items; the result is either a list or an array.
func (m *Manager) Completion(ctx context.Context, params *protocol.CompletionParams) *future.Future[json.RawMessage] {
	return Send[json.RawMessage](ctx, m, entity.CategoryCompletion, protocol.MethodTextDocumentCompletion, params)
}

// Definition requests definitions; the result is a location, an array of locations or of links.
func (m *Manager) Definition(ctx context.Context, params *protocol.DefinitionParams) *future.Future[json.RawMessage] {
	return Send[json.RawMessage](ctx, m, entity.CategoryDefinition, protocol.MethodTextDocumentDefinition, params)
}

// References requests reference locations.
func (m *Manager) References(ctx context.Context, params *protocol.ReferenceParams) *future.Future[[]protocol.Location] {
	return Send[[]protocol.Location](ctx, m, entity.CategoryReferences, protocol.MethodTextDocumentReferences, params)
}

// DocumentHighlight requests highlights of the symbol under the cursor.
func (m *Manager) DocumentHighlight(ctx context.Context, params *protocol.DocumentHighlightParams) *future.Future[[]protocol.DocumentHighlight] {
	return Send[[]protocol.DocumentHighlight](ctx, m, entity.CategoryDocHighlight, protocol.MethodTextDocumentDocumentHighlight, params)
}

// SignatureHelp requests signature information.
func (m *Manager) SignatureHelp(ctx context.Context, params *protocol.SignatureHelpParams) *future.Future[*protocol.SignatureHelp] {
	return Send[*protocol.SignatureHelp](ctx, m, entity.CategorySignature, protocol.MethodTextDocumentSignatureHelp, params)
}

// Formatting requests whole-document formatting edits.
func (m *Manager) Formatting(ctx context.Context, params *protocol.DocumentFormattingParams) *future.Future[[]protocol.TextEdit] {
	return Send[[]protocol.TextEdit](ctx, m, entity.CategoryFormatting, protocol.MethodTextDocumentFormatting, params)
}

// DocumentSymbol requests document symbols; the result is flat or hierarchical.
func (m *Manager) DocumentSymbol(ctx context.Context, params *protocol.DocumentSymbolParams) *future.Future[json.RawMessage] {
	return Send[json.RawMessage](ctx, m, entity.CategorySymbols, protocol.MethodTextDocumentDocumentSymbol, params)
}

// CodeLens requests code lenses.
func (m *Manager) CodeLens(ctx context.Context, params *protocol.CodeLensParams) *future.Future[[]protocol.CodeLens] {
	return Send[[]protocol.CodeLens](ctx, m, entity.CategoryCodeLens, protocol.MethodTextDocumentCodeLens, params)
}

// ExecuteCommand runs a server command.
func (m *Manager) ExecuteCommand(ctx context.Context, params *protocol.ExecuteCommandParams) *future.Future[json.RawMessage] {
	return Send[json.RawMessage](ctx, m, entity.CategoryExecuteCommand, protocol.MethodWorkspaceExecuteCommand, params)
}

// WillSaveWaitUntil requests edits to apply before saving.
func (m *Manager) WillSaveWaitUntil(ctx context.Context, params *protocol.WillSaveTextDocumentParams) *future.Future[[]protocol.TextEdit] {
	return Send[[]protocol.TextEdit](ctx, m, entity.CategoryWillSave, protocol.MethodTextDocumentWillSaveWaitUntil, params)
}

// Initialize starts the initialize handshake.
func (m *Manager) Initialize(ctx context.Context, params *protocol.InitializeParams) *future.Future[*protocol.InitializeResult] {
	return Send[*protocol.InitializeResult](ctx, m, entity.CategoryInit, protocol.MethodInitialize, params)
}

// Shutdown asks the server to shut down.
func (m *Manager) Shutdown(ctx context.Context) *future.Future[json.RawMessage] {
	return Send[json.RawMessage](ctx, m, entity.CategoryShutdown, protocol.MethodShutdown, nil)
}
