package entity

import (
	"time"

	"github.com/gofrs/uuid"
	"go.lsp.dev/protocol"
)

// SessionState is the lifecycle state of one connection to a language server.
type SessionState int32

const (
	// SessionStateStarting indicates the initialize handshake is in progress.
	SessionStateStarting SessionState = iota
	// SessionStateHealthy indicates the session accepts requests.
	SessionStateHealthy
	// SessionStateCrashed is terminal: the server or transport failed.
	SessionStateCrashed
	// SessionStateClosed is terminal: the session was shut down cleanly.
	SessionStateClosed
)

// String returns a human-readable state name.
func (s SessionState) String() string {
	switch s {
	case SessionStateStarting:
		return "starting"
	case SessionStateHealthy:
		return "healthy"
	case SessionStateCrashed:
		return "crashed"
	case SessionStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalYAML renders the state by name.
func (s SessionState) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// Terminal reports whether no further transitions can leave this state.
func (s SessionState) Terminal() bool {
	return s == SessionStateCrashed || s == SessionStateClosed
}

// ServerConfigKey is the configuration key holding the language servers.
const ServerConfigKey = "servers"

// ServerConfigs maps a server name to how it is launched.
type ServerConfigs map[string]ServerConfig

// ServerConfig describes how to reach one language server.
type ServerConfig struct {
	// Command and Args launch the server as a child process speaking LSP over stdio.
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Env     []string `yaml:"env"`
	Dir     string   `yaml:"dir"`
	// Address connects to an already running server over TCP instead of launching one.
	Address string `yaml:"address"`
	// Languages lists the language identifiers served.
	Languages []protocol.LanguageIdentifier `yaml:"languages"`
	// RootURI is sent as the workspace root during initialize.
	RootURI               string      `yaml:"rootURI"`
	InitializationOptions interface{} `yaml:"initializationOptions"`
	// MaxRestarts bounds how many times a crashed server is started again.
	MaxRestarts    int           `yaml:"maxRestarts"`
	RestartBackoff time.Duration `yaml:"restartBackoff"`
}

// Serves reports whether the server handles the given language.
func (c ServerConfig) Serves(languageID protocol.LanguageIdentifier) bool {
	for _, l := range c.Languages {
		if l == languageID {
			return true
		}
	}
	return false
}

// SessionInfo is a point-in-time description of one session, kept for status reporting.
type SessionInfo struct {
	UUID      uuid.UUID    `yaml:"uuid"`
	Server    string       `yaml:"server"`
	State     SessionState `yaml:"state"`
	StartedAt time.Time    `yaml:"startedAt"`
	// Restarts counts the sessions started for the same server before this one.
	Restarts int    `yaml:"restarts"`
	LastErr  string `yaml:"lastError,omitempty"`
}
