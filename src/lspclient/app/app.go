package app

import (
	"context"
	"time"

	tally "github.com/uber-go/tally/v4"
	"github.com/uber/lsp-session/src/lspclient/controller"
	"github.com/uber/lsp-session/src/lspclient/internal/clock"
	"github.com/uber/lsp-session/src/lspclient/internal/core"
	"github.com/uber/lsp-session/src/lspclient/internal/executor"
	"github.com/uber/lsp-session/src/lspclient/internal/fs"
	"github.com/uber/lsp-session/src/lspclient/internal/jsonrpcfx"
	"github.com/uber/lsp-session/src/lspclient/repository/document"
	"github.com/uber/lsp-session/src/lspclient/repository/session"
	"go.uber.org/fx"
)

const _serviceName = "lsp-session"

// Module defines the LSP client application module.
var Module = fx.Options(
	controller.Module,
	jsonrpcfx.Module,
	fs.Module,
	executor.Module,
	core.ConfigModule,
	core.LoggerModule,
	fx.Provide(clock.New),
	fx.Provide(session.New),
	fx.Provide(document.New),
	fx.Provide(newRootScope),
	fx.Decorate(decorateEnvContext),
	fx.Decorate(decorateConfigProvider),
	fx.Provide(func() Context {
		return Context{
			Environment:        EnvLocal,
			RuntimeEnvironment: EnvLocal,
		}
	}),
)

func newRootScope(lc fx.Lifecycle, env Context) tally.Scope {
	rs, closer := tally.NewRootScope(tally.ScopeOptions{
		Tags: map[string]string{
			"service": _serviceName,
			"env":     env.Environment,
		},
	}, 1*time.Second)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return closer.Close()
		},
	})

	return rs
}
