// Package jsonrpcfx connects to language servers over JSON-RPC, either by launching them or by dialing TCP.
package jsonrpcfx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/uber/lsp-session/src/lspclient/entity"
	"github.com/uber/lsp-session/src/lspclient/internal/executor"
	"github.com/uber/lsp-session/src/lspclient/internal/fs"
	"github.com/uber/lsp-session/src/lspclient/internal/logfilewriter"
	"go.lsp.dev/jsonrpc2"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	_configKey = "transport"

	_defaultDialTimeout     = 5 * time.Second
	_defaultStopGracePeriod = 2 * time.Second
)

// Module is an fx module providing the transport to language servers.
var Module = fx.Provide(New)

// Config controls how servers are reached.
type Config struct {
	// LogDir holds one directory per server with the stderr of each launch. Defaults to the temp directory.
	LogDir   string `yaml:"logDir"`
	KeepLogs bool   `yaml:"keepLogs"`

	DialTimeout time.Duration `yaml:"dialTimeout"`
	// StopGracePeriod is how long a server gets to exit once its stdin is closed before it is killed.
	StopGracePeriod time.Duration `yaml:"stopGracePeriod"`
}

// Transport opens JSON-RPC connections to language servers.
type Transport interface {
	Connect(ctx context.Context, name string, cfg entity.ServerConfig) (*Connection, error)
}

// Params define values to be used by the transport.
type Params struct {
	fx.In

	Config   config.Provider
	Logger   *zap.SugaredLogger
	Executor executor.Executor
	FS       fs.FS
}

type transport struct {
	cfg      Config
	logger   *zap.SugaredLogger
	executor executor.Executor
	fs       fs.FS
}

// New creates a transport configured from the "transport" key.
func New(p Params) (Transport, error) {
	if p.Config == nil || p.Executor == nil || p.FS == nil {
		return nil, errors.New("required parameters are missing")
	}

	cfg := Config{}
	if err := p.Config.Get(_configKey).Populate(&cfg); err != nil {
		return nil, fmt.Errorf("getting config field %q: %w", _configKey, err)
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = _defaultDialTimeout
	}
	if cfg.StopGracePeriod <= 0 {
		cfg.StopGracePeriod = _defaultStopGracePeriod
	}

	return &transport{
		cfg:      cfg,
		logger:   p.Logger.With("component", "transport"),
		executor: p.Executor,
		fs:       p.FS,
	}, nil
}

// Connection is an open JSON-RPC connection together with the resources backing it.
// The caller is responsible for calling Conn.Go and for calling Close.
type Connection struct {
	Conn jsonrpc2.Conn
	// LogPath is the file receiving the server's stderr. It is empty for TCP servers.
	LogPath string

	release   []func() error
	closeOnce sync.Once
	closeErr  error
}

// Close closes the connection and releases the process and log file behind it.
// It is safe to call more than once.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		err := c.Conn.Close()
		for _, release := range c.release {
			err = multierr.Append(err, release())
		}
		c.closeErr = err
	})
	return c.closeErr
}

// Connect reaches the named server: over TCP when an address is configured, otherwise by launching its command.
func (t *transport) Connect(ctx context.Context, name string, cfg entity.ServerConfig) (*Connection, error) {
	switch {
	case cfg.Address != "":
		return t.dial(ctx, name, cfg.Address)
	case cfg.Command != "":
		return t.launch(name, cfg)
	default:
		return nil, fmt.Errorf("server %q has neither a command nor an address", name)
	}
}

func (t *transport) dial(ctx context.Context, name, address string) (*Connection, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.DialTimeout)
	defer cancel()

	var d net.Dialer
	netConn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dialing %q at %s: %w", name, address, err)
	}
	t.logger.Infow("connected to language server", "server", name, "address", address)

	return &Connection{Conn: jsonrpc2.NewConn(jsonrpc2.NewStream(netConn))}, nil
}

func (t *transport) launch(name string, cfg entity.ServerConfig) (*Connection, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	// The server's stdout is forwarded through a pipe owned here so that the connection
	// sees the exit status of the process instead of a bare EOF.
	outR, outW := io.Pipe()
	cmd.Stdout = outW

	sink, err := logfilewriter.New(t.fs, t.cfg.LogDir, name, t.cfg.KeepLogs)
	if err != nil {
		return nil, fmt.Errorf("creating stderr log for %q: %w", name, err)
	}
	cmd.Stderr = sink

	var env []string
	if len(cfg.Env) > 0 {
		env = append(os.Environ(), cfg.Env...)
	}
	if err := t.executor.Start(cmd, env); err != nil {
		return nil, multierr.Append(fmt.Errorf("starting %q: %w", name, err), sink.Close())
	}

	p := &process{cmd: cmd, exited: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		if p.err == nil {
			outW.Close()
		} else {
			outW.CloseWithError(p.err)
		}
		close(p.exited)
	}()

	t.logger.Infow("launched language server", "server", name, "pid", cmd.Process.Pid, "stderr", sink.Path())

	return &Connection{
		Conn:    jsonrpc2.NewConn(jsonrpc2.NewStream(&stdio{ReadCloser: outR, WriteCloser: stdin})),
		LogPath: sink.Path(),
		release: []func() error{
			func() error { return t.stop(name, p) },
			sink.Close,
		},
	}, nil
}

// stop waits for the process to exit on its own, then kills it.
func (t *transport) stop(name string, p *process) error {
	select {
	case <-p.exited:
	case <-time.After(t.cfg.StopGracePeriod):
		t.logger.Warnw("language server did not exit, killing it", "server", name, "pid", p.cmd.Process.Pid)
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("killing %q: %w", name, err)
		}
		<-p.exited
	}
	t.logger.Infow("language server exited", "server", name, "status", p.cmd.ProcessState.String())
	return nil
}

type process struct {
	cmd    *exec.Cmd
	exited chan struct{}
	// err is set before exited is closed.
	err error
}

// stdio joins the server's stdout and stdin into a single stream.
type stdio struct {
	io.ReadCloser
	io.WriteCloser
}

// Close closes both directions.
func (s *stdio) Close() error {
	return multierr.Append(s.WriteCloser.Close(), s.ReadCloser.Close())
}
