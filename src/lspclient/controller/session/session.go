// Package session wraps one connection to a language server.
package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	tally "github.com/uber-go/tally/v4"
	"github.com/uber/lsp-session/src/lspclient/controller/request"
	"github.com/uber/lsp-session/src/lspclient/controller/timeout"
	"github.com/uber/lsp-session/src/lspclient/entity"
	"github.com/uber/lsp-session/src/lspclient/internal/clock"
	"github.com/uber/lsp-session/src/lspclient/internal/errors"
	"github.com/uber/lsp-session/src/lspclient/internal/future"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	_clientName    = "lsp-session"
	_clientVersion = "0.1.0"
)

// Params are the dependencies of one session.
type Params struct {
	Name   string
	Config entity.ServerConfig
	Conn   jsonrpc2.Conn
	// Closer releases the transport behind Conn, including Conn itself. When nil, Conn is closed directly.
	Closer io.Closer
	// Restarts is the number of sessions started for the same server before this one.
	Restarts int

	Policy timeout.Policy
	Clock  clock.Clock
	Logger *zap.SugaredLogger
	Stats  tally.Scope
}

// Session is the state machine of one server connection: Starting -> Healthy -> Crashed|Closed.
// Terminal states are never left; a restarted server gets a new Session.
type Session struct {
	id       uuid.UUID
	name     string
	cfg      entity.ServerConfig
	conn     jsonrpc2.Conn
	closer   io.Closer
	restarts int

	policy timeout.Policy
	clock  clock.Clock
	logger *zap.SugaredLogger
	stats  tally.Scope

	requests *request.Manager

	// ctx scopes the handler of server-to-client traffic.
	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.RWMutex
	state        entity.SessionState
	started      bool
	closing      bool
	startedAt    time.Time
	lastErr      error
	capabilities protocol.ServerCapabilities
	terminated   chan struct{}

	subsMu  sync.Mutex
	subs    map[int]Listener
	nextSub int

	diagMu      sync.RWMutex
	diagnostics map[uri.URI][]protocol.Diagnostic

	releaseOnce sync.Once
	releaseErr  error
}

// New creates a session in the Starting state. Nothing is sent until Start.
func New(p Params) *Session {
	id := uuid.Must(uuid.NewV4())
	ctx, cancel := context.WithCancel(context.Background())
	stats := p.Stats.Tagged(map[string]string{"server": p.Name})

	s := &Session{
		id:          id,
		name:        p.Name,
		cfg:         p.Config,
		conn:        p.Conn,
		closer:      p.Closer,
		restarts:    p.Restarts,
		policy:      p.Policy,
		clock:       p.Clock,
		logger:      p.Logger.With("component", "session", "server", p.Name, "session", id.String()),
		stats:       stats.SubScope("session"),
		ctx:         ctx,
		cancel:      cancel,
		state:       entity.SessionStateStarting,
		startedAt:   p.Clock.Now(),
		terminated:  make(chan struct{}),
		subs:        make(map[int]Listener),
		diagnostics: make(map[uri.URI][]protocol.Diagnostic),
	}
	s.requests = request.New(p.Conn, s, p.Logger.With("server", p.Name, "session", id.String()), stats)
	return s
}

// ID returns the unique id of the session.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Name returns the configured name of the server.
func (s *Session) Name() string {
	return s.name
}

// State returns the current lifecycle state.
func (s *Session) State() entity.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Capabilities returns what the server announced during initialize.
func (s *Session) Capabilities() protocol.ServerCapabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capabilities
}

// Info describes the session for status reporting.
func (s *Session) Info() entity.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info := entity.SessionInfo{
		UUID:      s.id,
		Server:    s.name,
		State:     s.state,
		StartedAt: s.startedAt,
		Restarts:  s.restarts,
	}
	if s.lastErr != nil {
		info.LastErr = s.lastErr.Error()
	}
	return info
}

// Terminated is closed once the session reaches Crashed or Closed.
func (s *Session) Terminated() <-chan struct{} {
	return s.terminated
}

// Start serves the connection and performs the initialize handshake bounded by the init timeout.
// On failure the session is Crashed and the error is returned.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started || s.state != entity.SessionStateStarting {
		s.mu.Unlock()
		return fmt.Errorf("session %q was already started", s.id)
	}
	s.started = true
	s.mu.Unlock()

	s.conn.Go(s.ctx, jsonrpc2.AsyncHandler(s.handle))
	go s.watch()

	result, err := await(ctx, s, entity.CategoryInit, s.requests.Initialize(ctx, s.initializeParams()))
	if err == nil {
		err = s.requests.Notify(ctx, protocol.MethodInitialized, &protocol.InitializedParams{})
	}
	if err != nil {
		s.Crashed(fmt.Errorf("initialize: %w", err))
		return err
	}

	s.mu.Lock()
	if s.state != entity.SessionStateStarting {
		state := s.state
		s.mu.Unlock()
		return &errors.SessionClosedError{Session: s.id, State: state.String()}
	}
	s.state = entity.SessionStateHealthy
	if result != nil {
		s.capabilities = result.Capabilities
	}
	s.mu.Unlock()

	if result != nil && result.ServerInfo != nil {
		s.logger.Infow("language server started", "serverName", result.ServerInfo.Name, "serverVersion", result.ServerInfo.Version)
	} else {
		s.logger.Infow("language server started")
	}
	s.stats.Counter("started").Inc(1)
	s.emit(Event{Type: EventStarted, Session: s.id, Server: s.name})
	return nil
}

// RequestManager returns the manager to issue requests with.
// It fails with errors.ErrSessionStarting before the handshake completed and with
// *errors.SessionClosedError once the session is Crashed or Closed.
func (s *Session) RequestManager() (*request.Manager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch s.state {
	case entity.SessionStateHealthy:
		return s.requests, nil
	case entity.SessionStateStarting:
		return nil, errors.ErrSessionStarting
	default:
		return nil, &errors.SessionClosedError{Session: s.id, State: s.state.String()}
	}
}

// NotifySuccess records a successful request of category c.
func (s *Session) NotifySuccess(c entity.Category) {
	s.policy.RecordSuccess(c)
	s.stats.Tagged(map[string]string{"category": c.String()}).Counter("success").Inc(1)
}

// NotifyFailure records a failed or timed out request of category c.
func (s *Session) NotifyFailure(c entity.Category) {
	s.policy.RecordFailure(c)
	s.stats.Tagged(map[string]string{"category": c.String()}).Counter("failure").Inc(1)
}

// Crashed moves the session to Crashed. In-flight requests fail with *errors.SessionCrashedError,
// the transport is released and subscribers are notified. It is a no-op in a terminal state.
func (s *Session) Crashed(cause error) {
	if cause == nil {
		cause = errors.ErrTransportClosed
	}
	if !s.terminate(entity.SessionStateCrashed, cause) {
		return
	}

	err := &errors.SessionCrashedError{Session: s.id, Cause: cause}
	s.logger.Warnw("language server crashed", "error", cause, "inFlight", s.requests.InFlight())
	s.requests.FailAll(err)
	if releaseErr := s.release(); releaseErr != nil {
		s.logger.Warnw("failed to release crashed session", "error", releaseErr)
	}
	s.stats.Counter("crashed").Inc(1)
	s.emit(Event{Type: EventCrashed, Session: s.id, Server: s.name, Err: err})
}

// Close shuts the server down cleanly: shutdown bounded by the shutdown timeout, then exit.
// A session still Starting is closed without the handshake. Closing a terminal session is a no-op.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.state.Terminal() || s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	healthy := s.state == entity.SessionStateHealthy
	s.mu.Unlock()

	var err error
	if healthy {
		err = s.shutdown(ctx)
	}

	if !s.terminate(entity.SessionStateClosed, nil) {
		// Crashed while shutting down.
		return err
	}
	s.requests.FailAll(&errors.SessionClosedError{Session: s.id, State: entity.SessionStateClosed.String()})
	err = multierr.Append(err, s.release())
	s.logger.Infow("language server closed", "error", err)
	s.stats.Counter("closed").Inc(1)
	s.emit(Event{Type: EventClosed, Session: s.id, Server: s.name})
	return err
}

func (s *Session) shutdown(ctx context.Context) error {
	_, err := await(ctx, s, entity.CategoryShutdown, s.requests.Shutdown(ctx))
	var te *errors.TimeoutError
	if errors.As(err, &te) {
		return err
	}
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return s.requests.Notify(ctx, protocol.MethodExit, nil)
}

// await waits for f at most the current timeout of c. An expired wait cancels f and records a
// failure of c, unless f settled before the cancel; its outcome was then recorded by the request manager.
func await[T any](ctx context.Context, s *Session, c entity.Category, f *future.Future[T]) (T, error) {
	wait := s.policy.GetTimeout(c)
	v, err := f.Wait(ctx, s.clock.After(wait))
	if !errors.Is(err, errors.ErrWaitExpired) {
		if err != nil {
			f.Cancel()
		}
		return v, err
	}
	if !f.Cancel() {
		return f.Wait(ctx, nil)
	}
	s.NotifyFailure(c)
	return v, &errors.TimeoutError{Category: c.String(), Timeout: wait}
}

// Subscribe registers l for lifecycle events and returns a func that removes it.
func (s *Session) Subscribe(l Listener) (unsubscribe func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = l
	return func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		delete(s.subs, id)
	}
}

// Diagnostics returns the latest diagnostics the server published for a document.
func (s *Session) Diagnostics(u uri.URI) []protocol.Diagnostic {
	s.diagMu.RLock()
	defer s.diagMu.RUnlock()
	return s.diagnostics[u]
}

func (s *Session) emit(e Event) {
	s.subsMu.Lock()
	listeners := make([]Listener, 0, len(s.subs))
	for _, l := range s.subs {
		listeners = append(listeners, l)
	}
	s.subsMu.Unlock()

	for _, l := range listeners {
		l(e)
	}
}

// terminate moves the session into a terminal state and reports whether this call did it.
func (s *Session) terminate(to entity.SessionState, cause error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return false
	}
	s.state = to
	s.lastErr = cause
	close(s.terminated)
	return true
}

// watch crashes the session when the connection ends on its own.
func (s *Session) watch() {
	select {
	case <-s.conn.Done():
	case <-s.terminated:
		return
	}

	s.mu.RLock()
	closing := s.closing
	s.mu.RUnlock()
	if closing {
		return
	}
	s.Crashed(s.conn.Err())
}

func (s *Session) release() error {
	s.releaseOnce.Do(func() {
		s.cancel()
		if s.closer != nil {
			s.releaseErr = s.closer.Close()
		} else {
			s.releaseErr = s.conn.Close()
		}
	})
	return s.releaseErr
}

func (s *Session) initializeParams() *protocol.InitializeParams {
	params := &protocol.InitializeParams{
		ProcessID: int32(os.Getpid()),
		ClientInfo: &protocol.ClientInfo{
			Name:    _clientName,
			Version: _clientVersion,
		},
		InitializationOptions: s.cfg.InitializationOptions,
		Capabilities: protocol.ClientCapabilities{
			TextDocument: &protocol.TextDocumentClientCapabilities{
				Hover: &protocol.HoverTextDocumentClientCapabilities{
					ContentFormat: []protocol.MarkupKind{protocol.Markdown, protocol.PlainText},
				},
			},
		},
	}
	if s.cfg.RootURI != "" {
		params.RootURI = protocol.DocumentURI(s.cfg.RootURI)
		params.WorkspaceFolders = s.workspaceFolders()
	}
	return params
}

func (s *Session) workspaceFolders() []protocol.WorkspaceFolder {
	if s.cfg.RootURI == "" {
		return []protocol.WorkspaceFolder{}
	}
	return []protocol.WorkspaceFolder{{URI: s.cfg.RootURI, Name: s.name}}
}
