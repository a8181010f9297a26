package controller

import (
	"github.com/uber/lsp-session/src/lspclient/controller/event"
	"github.com/uber/lsp-session/src/lspclient/controller/servers"
	"github.com/uber/lsp-session/src/lspclient/controller/timeout"
	"go.uber.org/fx"
)

// Module provides the controllers, leaf to root.
var Module = fx.Options(
	fx.Provide(timeout.New),
	fx.Provide(servers.New),
	fx.Provide(event.New),
)
