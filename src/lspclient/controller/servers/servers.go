// Package servers supervises one session per configured language server and restarts crashed servers.
package servers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	tally "github.com/uber-go/tally/v4"
	"github.com/uber/lsp-session/src/lspclient/controller/session"
	"github.com/uber/lsp-session/src/lspclient/controller/timeout"
	"github.com/uber/lsp-session/src/lspclient/entity"
	"github.com/uber/lsp-session/src/lspclient/internal/clock"
	"github.com/uber/lsp-session/src/lspclient/internal/errors"
	"github.com/uber/lsp-session/src/lspclient/internal/future"
	"github.com/uber/lsp-session/src/lspclient/internal/jsonrpcfx"
	sessionrepository "github.com/uber/lsp-session/src/lspclient/repository/session"
	"go.lsp.dev/protocol"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	_defaultMaxRestarts    = 3
	_defaultRestartBackoff = 500 * time.Millisecond
	_maxRestartBackoff     = 30 * time.Second
)

// Pool owns the sessions of every configured server.
type Pool interface {
	// ServerFor returns the name of the server handling a language.
	ServerFor(languageID protocol.LanguageIdentifier) (string, bool)
	// Get returns the current session of a server, or nil if it was never started.
	Get(name string) *session.Session
	// Ensure returns a healthy session of the server, starting one if needed.
	// Concurrent callers share a single start attempt.
	Ensure(ctx context.Context, name string) (*session.Session, error)
	// Subscribe registers a listener for the events of every session.
	Subscribe(l session.Listener) (unsubscribe func())
	// Sessions lists every session started so far, including terminated ones.
	Sessions(ctx context.Context) ([]entity.SessionInfo, error)
	// Session returns the status record of one session.
	Session(ctx context.Context, id uuid.UUID) (entity.SessionInfo, error)
	// Shutdown closes every session. No session is started afterwards.
	Shutdown(ctx context.Context) error
}

// Params are inbound parameters to initialize a new Pool.
type Params struct {
	fx.In

	Config    config.Provider
	Transport jsonrpcfx.Transport
	Policy    timeout.Policy
	Clock     clock.Clock
	Sessions  sessionrepository.Repository
	Logger    *zap.SugaredLogger
	Stats     tally.Scope
	Lifecycle fx.Lifecycle
}

type server struct {
	name string
	cfg  entity.ServerConfig

	current *session.Session
	// healthy is set once the current session completed its handshake.
	healthy  bool
	starting *future.Future[*session.Session]
	restarts int
	// exhausted is set once the restart budget is spent; Ensure refuses the server from then on.
	exhausted bool
}

type pool struct {
	transport jsonrpcfx.Transport
	policy    timeout.Policy
	clock     clock.Clock
	sessions  sessionrepository.Repository
	logger    *zap.SugaredLogger
	stats     tally.Scope
	// Sessions get the unscoped logger and metrics.
	baseLogger *zap.SugaredLogger
	baseStats  tally.Scope

	// ctx ends on Shutdown and stops pending restarts.
	ctx      context.Context
	cancel   context.CancelFunc
	restarts sync.WaitGroup

	mu      sync.Mutex
	servers map[string]*server
	names   []string
	closed  bool

	subsMu  sync.Mutex
	subs    map[int]session.Listener
	nextSub int
}

// New creates a pool from the "servers" configuration block. Servers are started lazily.
func New(p Params) (Pool, error) {
	cfgs := entity.ServerConfigs{}
	if err := p.Config.Get(entity.ServerConfigKey).Populate(&cfgs); err != nil {
		return nil, fmt.Errorf("getting configuration for %q: %w", entity.ServerConfigKey, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	pl := &pool{
		transport:  p.Transport,
		policy:     p.Policy,
		clock:      p.Clock,
		sessions:   p.Sessions,
		logger:     p.Logger.With("component", "servers"),
		stats:      p.Stats.SubScope("servers"),
		baseLogger: p.Logger,
		baseStats:  p.Stats,
		ctx:        ctx,
		cancel:     cancel,
		servers:    make(map[string]*server, len(cfgs)),
		subs:       make(map[int]session.Listener),
	}
	for name, cfg := range cfgs {
		if cfg.Command == "" && cfg.Address == "" {
			cancel()
			return nil, fmt.Errorf("server %q needs a command or an address", name)
		}
		if cfg.MaxRestarts == 0 {
			cfg.MaxRestarts = _defaultMaxRestarts
		}
		if cfg.RestartBackoff <= 0 {
			cfg.RestartBackoff = _defaultRestartBackoff
		}
		pl.servers[name] = &server{name: name, cfg: cfg}
		pl.names = append(pl.names, name)
	}
	sort.Strings(pl.names)

	if p.Lifecycle != nil {
		p.Lifecycle.Append(fx.Hook{OnStop: pl.Shutdown})
	}
	return pl, nil
}

// ServerFor returns the first server, in name order, that serves the language.
func (p *pool) ServerFor(languageID protocol.LanguageIdentifier) (string, bool) {
	for _, name := range p.names {
		if p.servers[name].cfg.Serves(languageID) {
			return name, true
		}
	}
	return "", false
}

func (p *pool) Get(name string) *session.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.servers[name]; ok {
		return s.current
	}
	return nil
}

func (p *pool) Ensure(ctx context.Context, name string) (*session.Session, error) {
	p.mu.Lock()
	srv, ok := p.servers[name]
	if !ok {
		p.mu.Unlock()
		return nil, &errors.UnknownServerError{Name: name}
	}
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("server pool is shut down")
	}
	if srv.exhausted {
		restarts := srv.restarts - 1
		p.mu.Unlock()
		return nil, &errors.ServerExhaustedError{Name: name, Restarts: restarts}
	}
	if srv.current != nil && srv.current.State() == entity.SessionStateHealthy {
		s := srv.current
		p.mu.Unlock()
		return s, nil
	}
	attempt := srv.starting
	if attempt == nil {
		attempt = future.New[*session.Session](nil)
		srv.starting = attempt
		restarts := srv.restarts
		p.mu.Unlock()
		// The attempt is shared, so it must not end with the first caller's context.
		go p.start(context.WithoutCancel(ctx), srv, restarts, attempt)
	} else {
		p.mu.Unlock()
	}

	// Start is bounded by the init timeout, so the attempt always settles.
	return attempt.Wait(ctx, nil)
}

func (p *pool) start(ctx context.Context, srv *server, restarts int, attempt *future.Future[*session.Session]) {
	s, err := p.launch(ctx, srv, restarts)

	p.mu.Lock()
	srv.starting = nil
	p.mu.Unlock()

	if err != nil {
		p.logger.Warnw("failed to start language server", "server", srv.name, "error", err)
		p.stats.Tagged(map[string]string{"server": srv.name}).Counter("start_failure").Inc(1)
		attempt.Fail(err)
		return
	}
	attempt.Complete(s)
}

func (p *pool) launch(ctx context.Context, srv *server, restarts int) (*session.Session, error) {
	conn, err := p.transport.Connect(ctx, srv.name, srv.cfg)
	if err != nil {
		return nil, err
	}

	s := session.New(session.Params{
		Name:     srv.name,
		Config:   srv.cfg,
		Conn:     conn.Conn,
		Closer:   conn,
		Restarts: restarts,
		Policy:   p.policy,
		Clock:    p.clock,
		Logger:   p.baseLogger,
		Stats:    p.baseStats,
	})
	s.Subscribe(func(e session.Event) { p.onEvent(srv, s, e) })

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, multierr.Append(fmt.Errorf("server pool is shut down"), conn.Close())
	}
	srv.current = s
	srv.healthy = false
	p.mu.Unlock()
	p.record(s)

	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *pool) onEvent(srv *server, s *session.Session, e session.Event) {
	p.record(s)

	restart := false
	p.mu.Lock()
	if srv.current == s {
		switch e.Type {
		case session.EventStarted:
			srv.healthy = true
		case session.EventCrashed:
			restart = srv.healthy && !p.closed
			srv.healthy = false
		}
	}
	p.mu.Unlock()

	p.subsMu.Lock()
	listeners := make([]session.Listener, 0, len(p.subs))
	for _, l := range p.subs {
		listeners = append(listeners, l)
	}
	p.subsMu.Unlock()
	for _, l := range listeners {
		l(e)
	}

	if restart {
		p.scheduleRestart(srv)
	}
}

// scheduleRestart starts the server again after an exponential backoff, until its restarts are exhausted.
func (p *pool) scheduleRestart(srv *server) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	srv.restarts++
	attempt := srv.restarts
	max := srv.cfg.MaxRestarts
	giveUp := max < 0 || attempt > max
	if giveUp {
		srv.exhausted = true
	} else {
		// Added under mu so that Shutdown, which sets closed first, waits for it.
		p.restarts.Add(1)
	}
	p.mu.Unlock()

	if giveUp {
		p.logger.Warnw("language server crashed too often, not restarting", "server", srv.name, "restarts", attempt-1)
		p.stats.Tagged(map[string]string{"server": srv.name}).Counter("given_up").Inc(1)
		return
	}

	backoff := srv.cfg.RestartBackoff << (attempt - 1)
	if backoff > _maxRestartBackoff || backoff <= 0 {
		backoff = _maxRestartBackoff
	}
	p.logger.Infow("restarting language server", "server", srv.name, "attempt", attempt, "backoff", backoff)
	p.stats.Tagged(map[string]string{"server": srv.name}).Counter("restart").Inc(1)

	go func() {
		defer p.restarts.Done()
		select {
		case <-p.clock.After(backoff):
		case <-p.ctx.Done():
			return
		}
		if _, err := p.Ensure(p.ctx, srv.name); err != nil {
			p.logger.Warnw("failed to restart language server", "server", srv.name, "error", err)
		}
	}()
}

func (p *pool) record(s *session.Session) {
	if err := p.sessions.Set(context.Background(), s.Info()); err != nil {
		p.logger.Warnw("failed to record session", "session", s.ID().String(), "error", err)
	}
}

func (p *pool) Sessions(ctx context.Context) ([]entity.SessionInfo, error) {
	return p.sessions.List(ctx)
}

func (p *pool) Session(ctx context.Context, id uuid.UUID) (entity.SessionInfo, error) {
	return p.sessions.Get(ctx, id)
}

func (p *pool) Subscribe(l session.Listener) (unsubscribe func()) {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = l
	return func() {
		p.subsMu.Lock()
		defer p.subsMu.Unlock()
		delete(p.subs, id)
	}
}

func (p *pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	var live []*session.Session
	for _, name := range p.names {
		if s := p.servers[name].current; s != nil {
			live = append(live, s)
		}
	}
	p.mu.Unlock()

	p.cancel()
	p.restarts.Wait()

	g, ctx := errgroup.WithContext(ctx)
	for _, s := range live {
		s := s
		g.Go(func() error {
			if err := s.Close(ctx); err != nil {
				return fmt.Errorf("closing %q: %w", s.Name(), err)
			}
			return nil
		})
	}
	err := g.Wait()
	p.logger.Infow("server pool shut down", "sessions", len(live), "error", err)
	return err
}
