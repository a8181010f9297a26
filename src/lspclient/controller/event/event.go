// Package event resolves editors to language server sessions and runs requests on their behalf.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	tally "github.com/uber-go/tally/v4"
	"github.com/uber/lsp-session/src/lspclient/controller/servers"
	"github.com/uber/lsp-session/src/lspclient/controller/session"
	"github.com/uber/lsp-session/src/lspclient/controller/timeout"
	"github.com/uber/lsp-session/src/lspclient/entity"
	"github.com/uber/lsp-session/src/lspclient/internal/anchor"
	"github.com/uber/lsp-session/src/lspclient/internal/clock"
	"github.com/uber/lsp-session/src/lspclient/internal/errors"
	"github.com/uber/lsp-session/src/lspclient/internal/future"
	"github.com/uber/lsp-session/src/lspclient/mapper"
	"github.com/uber/lsp-session/src/lspclient/repository/document"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	_cacheConfigKey = "codeActionCache"

	_defaultCacheSize = 256
	_defaultCacheTTL  = 30 * time.Second
)

// Manager is the entry point of editor integrations.
// Hover and code action requests never fail because a server is slow, missing or broken:
// those cases yield an empty result. Errors are reserved for caller mistakes and sessions that went away.
type Manager interface {
	// EditorOpened starts tracking the document of an editor and opens it on its server,
	// starting the server if needed.
	EditorOpened(ctx context.Context, handle entity.EditorHandle, editor entity.Editor) error
	// EditorChanged replaces the text of a document.
	EditorChanged(ctx context.Context, handle entity.EditorHandle, text string) error
	// EditorClosed stops tracking a document.
	EditorClosed(ctx context.Context, handle entity.EditorHandle) error

	// ForDocument returns the healthy session the document is open on, or nil if the feature is unavailable.
	ForDocument(ctx context.Context, handle entity.EditorHandle) *session.Session
	// GetIdentifier returns the server-side identifier of a document open on a session.
	GetIdentifier(ctx context.Context, handle entity.EditorHandle) (entity.DocumentIdentifier, error)

	// RequestHover returns the hover text at a code point offset, or "" when there is none.
	RequestHover(ctx context.Context, handle entity.EditorHandle, offset int) *future.Future[string]
	// RequestCodeActions returns the code actions of a range.
	RequestCodeActions(ctx context.Context, handle entity.EditorHandle, rng entity.EditorRange) *future.Future[[]entity.Action]

	// Anchor remembers an offset that follows later edits of the document.
	Anchor(ctx context.Context, handle entity.EditorHandle, offset int) (uuid.UUID, error)
	// ResolveAnchor returns where an anchor points now.
	ResolveAnchor(id uuid.UUID) (anchor.Position, error)
	// ReleaseAnchor forgets an anchor.
	ReleaseAnchor(id uuid.UUID)
}

// CacheConfig sizes the code action cache.
type CacheConfig struct {
	Size int           `yaml:"size"`
	TTL  time.Duration `yaml:"ttl"`
}

// Params are inbound parameters to initialize a new Manager.
type Params struct {
	fx.In

	Config    config.Provider
	Servers   servers.Pool
	Documents document.Repository
	Policy    timeout.Policy
	Clock     clock.Clock
	Logger    *zap.SugaredLogger
	Stats     tally.Scope
	Lifecycle fx.Lifecycle
}

type cacheKey struct {
	uri     uri.URI
	version int32
	rng     protocol.Range
}

type cachedActions struct {
	actions   []entity.Action
	expiresAt time.Time
}

type manager struct {
	servers   servers.Pool
	documents document.Repository
	policy    timeout.Policy
	clock     clock.Clock
	logger    *zap.SugaredLogger
	stats     tally.Scope

	anchors     *anchor.Table
	codeActions *lru.Cache[cacheKey, cachedActions]
	cacheTTL    time.Duration

	// lifecycleMu orders the notifications of every document: didOpen, didChange, didClose.
	lifecycleMu sync.Mutex

	// ctx bounds server starts triggered by editors.
	ctx         context.Context
	cancel      context.CancelFunc
	starts      sync.WaitGroup
	unsubscribe func()
}

// New creates the event manager. It follows session events while the app runs.
func New(p Params) (Manager, error) {
	cacheCfg := CacheConfig{}
	if err := p.Config.Get(_cacheConfigKey).Populate(&cacheCfg); err != nil {
		return nil, fmt.Errorf("getting configuration for %q: %w", _cacheConfigKey, err)
	}
	if cacheCfg.Size <= 0 {
		cacheCfg.Size = _defaultCacheSize
	}
	if cacheCfg.TTL <= 0 {
		cacheCfg.TTL = _defaultCacheTTL
	}

	codeActions, err := lru.New[cacheKey, cachedActions](cacheCfg.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to create code action cache: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &manager{
		servers:     p.Servers,
		documents:   p.Documents,
		policy:      p.Policy,
		clock:       p.Clock,
		logger:      p.Logger.With("component", "event"),
		stats:       p.Stats.SubScope("event"),
		anchors:     anchor.NewTable(),
		codeActions: codeActions,
		cacheTTL:    cacheCfg.TTL,
		ctx:         ctx,
		cancel:      cancel,
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			m.unsubscribe = m.servers.Subscribe(m.onSessionEvent)
			return nil
		},
		OnStop: func(context.Context) error {
			if m.unsubscribe != nil {
				m.unsubscribe()
			}
			m.cancel()
			m.starts.Wait()
			return nil
		},
	})
	return m, nil
}

func (m *manager) EditorOpened(ctx context.Context, handle entity.EditorHandle, editor entity.Editor) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	doc, err := m.documents.Add(ctx, handle, editor)
	if err != nil {
		return err
	}
	if doc.Editors > 1 || doc.Opened() {
		// Another editor shows the same file. The server sees one document for both.
		return nil
	}

	name, ok := m.servers.ServerFor(doc.LanguageID)
	if !ok {
		m.logger.Debugw("no language server for document", "uri", doc.URI, "languageID", doc.LanguageID)
		return nil
	}

	if s := m.servers.Get(name); s != nil && s.State() == entity.SessionStateHealthy {
		return m.open(ctx, s, doc)
	}

	// The document is opened by onSessionEvent once the server is up.
	m.starts.Add(1)
	go func() {
		defer m.starts.Done()
		if _, err := m.servers.Ensure(m.ctx, name); err != nil {
			m.logger.Warnw("language server unavailable", "server", name, "uri", doc.URI, "error", err)
		}
	}()
	return nil
}

func (m *manager) EditorChanged(ctx context.Context, handle entity.EditorHandle, text string) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	before, err := m.documents.Get(ctx, handle)
	if err != nil {
		return err
	}
	doc, err := m.documents.Update(ctx, handle, text)
	if err != nil {
		return err
	}
	m.anchors.Shift(doc.URI, before.Snapshot.Text(), text)

	s := m.sessionOf(doc)
	if s == nil {
		return nil
	}
	return m.notify(ctx, s, protocol.MethodTextDocumentDidChange, mapper.DidChangeParams(doc.Identifier(), text))
}

func (m *manager) EditorClosed(ctx context.Context, handle entity.EditorHandle) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	doc, err := m.documents.Remove(ctx, handle)
	if err != nil {
		return err
	}
	if doc.Editors > 0 {
		return nil
	}
	m.anchors.Drop(doc.URI)

	s := m.sessionOf(doc)
	if s == nil {
		return nil
	}
	return m.notify(ctx, s, protocol.MethodTextDocumentDidClose, mapper.DidCloseParams(doc.Identifier()))
}

func (m *manager) ForDocument(ctx context.Context, handle entity.EditorHandle) *session.Session {
	doc, err := m.documents.Get(ctx, handle)
	if err != nil {
		return nil
	}
	return m.sessionOf(doc)
}

func (m *manager) GetIdentifier(ctx context.Context, handle entity.EditorHandle) (entity.DocumentIdentifier, error) {
	doc, err := m.documents.Get(ctx, handle)
	if err != nil {
		return entity.DocumentIdentifier{}, err
	}
	if !doc.Opened() {
		return entity.DocumentIdentifier{}, &errors.UntrackedDocumentError{Handle: string(handle)}
	}
	return doc.Identifier(), nil
}

func (m *manager) RequestHover(ctx context.Context, handle entity.EditorHandle, offset int) *future.Future[string] {
	req, ok, err := m.resolve(ctx, handle, entity.CategoryHover)
	if err != nil {
		return future.Failed[string](err)
	}
	if !ok {
		return future.Completed("")
	}

	editorPos, err := req.doc.Snapshot.OffsetToEditor(offset)
	if err != nil {
		return future.Failed[string](err)
	}
	pos, err := req.doc.Snapshot.ToProtocol(editorPos)
	if err != nil {
		return future.Failed[string](err)
	}

	f := req.requests.Hover(ctx, mapper.HoverParams(req.doc.Identifier(), pos))
	return await(ctx, m, req.session, entity.CategoryHover, f, mapper.RawToHoverText)
}

func (m *manager) RequestCodeActions(ctx context.Context, handle entity.EditorHandle, rng entity.EditorRange) *future.Future[[]entity.Action] {
	req, ok, err := m.resolve(ctx, handle, entity.CategoryCodeAction)
	if err != nil {
		return future.Failed[[]entity.Action](err)
	}
	if !ok {
		return future.Completed([]entity.Action{})
	}

	protoRange, err := req.doc.Snapshot.RangeToProtocol(rng)
	if err != nil {
		return future.Failed[[]entity.Action](err)
	}

	key := cacheKey{uri: req.doc.URI, version: req.doc.Version, rng: protoRange}
	if cached, ok := m.codeActions.Get(key); ok {
		if m.clock.Now().Before(cached.expiresAt) {
			m.stats.Counter("code_action_cache_hit").Inc(1)
			return future.Completed(cloneActions(cached.actions))
		}
		m.codeActions.Remove(key)
	}

	params := mapper.CodeActionParams(req.doc.Identifier(), protoRange, req.session.Diagnostics(req.doc.URI))
	f := req.requests.CodeAction(ctx, params)
	return await(ctx, m, req.session, entity.CategoryCodeAction, f, func(raw json.RawMessage) ([]entity.Action, error) {
		actions, err := mapper.RawToActions(raw)
		if err != nil {
			return nil, err
		}
		for i := range actions {
			actions[i].Edits = m.editorEdits(req.doc, actions[i].Edit)
		}
		m.codeActions.Add(key, cachedActions{actions: actions, expiresAt: m.clock.Now().Add(m.cacheTTL)})
		return cloneActions(actions), nil
	})
}

// editorEdits translates the edits of doc into editor coordinates. Edits the snapshot cannot place drop them all.
func (m *manager) editorEdits(doc document.Document, edit *protocol.WorkspaceEdit) []entity.EditorEdit {
	changes := mapper.DocumentEdits(edit, doc.URI)
	if len(changes) == 0 {
		return nil
	}
	edits := make([]entity.EditorEdit, 0, len(changes))
	for _, c := range changes {
		rng, err := doc.Snapshot.RangeToEditor(c.Range)
		if err != nil {
			m.logger.Debugw("dropping edits outside the document", "uri", doc.URI, "error", err)
			return nil
		}
		edits = append(edits, entity.EditorEdit{Range: rng, NewText: c.NewText})
	}
	return edits
}

// cloneActions copies the slices callers may modify so that cached results stay intact.
func cloneActions(actions []entity.Action) []entity.Action {
	out := make([]entity.Action, len(actions))
	for i, a := range actions {
		a.Edits = append([]entity.EditorEdit(nil), a.Edits...)
		a.Diagnostics = append([]protocol.Diagnostic(nil), a.Diagnostics...)
		out[i] = a
	}
	return out
}

func (m *manager) Anchor(ctx context.Context, handle entity.EditorHandle, offset int) (uuid.UUID, error) {
	doc, err := m.documents.Get(ctx, handle)
	if err != nil {
		return uuid.Nil, err
	}
	if _, err := doc.Snapshot.OffsetToEditor(offset); err != nil {
		return uuid.Nil, err
	}
	return m.anchors.Add(doc.URI, offset), nil
}

func (m *manager) ResolveAnchor(id uuid.UUID) (anchor.Position, error) {
	return m.anchors.Resolve(id)
}

func (m *manager) ReleaseAnchor(id uuid.UUID) {
	m.anchors.Remove(id)
}
