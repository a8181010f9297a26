package app

import (
	"fmt"
	"os"
	"path"

	"github.com/uber/lsp-session/src/lspclient/internal/fs"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Context describes where the client runs.
type Context struct {
	Environment        string `yaml:"environment"`
	RuntimeEnvironment string `yaml:"runtimeEnvironment"`
}

const (
	// EnvLocal indicates that the client is running locally.
	EnvLocal = "local"

	// EnvDevelopment indicates that the client is running in a development environment.
	EnvDevelopment = "development"

	// Environment variables
	_envLSPClientEnvironment = "LSPCLIENT_ENVIRONMENT"
)

func decorateEnvContext(env Context) Context {
	envValue := EnvLocal
	if os.Getenv(_envLSPClientEnvironment) == EnvDevelopment {
		envValue = EnvDevelopment
	}

	env.Environment = envValue
	env.RuntimeEnvironment = envValue
	return env
}

// DecorateConfigParams is the set of dependencies required to decorate the config.Provider.
type DecorateConfigParams struct {
	fx.In

	Cfg config.Provider
	FS  fs.FS
}

// decorateConfigProvider runs the startup steps that depend on the configuration before it is used.
func decorateConfigProvider(p DecorateConfigParams) (config.Provider, error) {
	combined, err := ensureLogFolder(p.Cfg, p.FS)
	if err != nil {
		return nil, fmt.Errorf("ensuring log folder: %v", err)
	}

	return combined, nil
}

// ensureLogFolder creates the directories of every log output and of the server stderr logs.
func ensureLogFolder(cfg config.Provider, fs fs.FS) (config.Provider, error) {
	var c zap.Config
	if err := cfg.Get("logging").Populate(&c); err != nil {
		return nil, fmt.Errorf("loading logging config: %v", err)
	}

	var dirs []string
	for _, outputPath := range c.OutputPaths {
		if outputPath == "stdout" || outputPath == "stderr" {
			continue
		}
		dirs = append(dirs, path.Dir(outputPath))
	}

	var logDir string
	if err := cfg.Get("transport.logDir").Populate(&logDir); err != nil {
		return nil, fmt.Errorf("loading transport config: %v", err)
	}
	if logDir != "" {
		dirs = append(dirs, logDir)
	}

	for _, dir := range dirs {
		if err := fs.MkdirAll(dir); err != nil {
			return nil, fmt.Errorf("creating logging directory: %v", err)
		}
	}

	return cfg, nil
}
