package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "meta.yaml", "files:\n  - base.yaml\n  - local.yaml\n  - missing.yaml\n")
	writeFile(t, dir, "base.yaml", "logging:\n  level: info\ntransport:\n  logDir: ${LSPCLIENT_TEST_LOG_DIR:/tmp/lsp}\ntimeouts:\n  hover:\n    default: 2s\n")
	writeFile(t, dir, "local.yaml", "logging:\n  level: debug\n")

	t.Setenv("LSPCLIENT_TEST_LOG_DIR", "/var/log/lsp")
	provider, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "config", provider.Name())
	assert.Equal(t, "debug", provider.Get("logging.level").String(), "later files win")
	assert.Equal(t, "/var/log/lsp", provider.Get("transport.logDir").String())
	assert.Equal(t, "2s", provider.Get("timeouts.hover.default").String())
	assert.False(t, provider.Get("nonexistent.path").HasValue())
}

func TestLoadConfigErrors(t *testing.T) {
	t.Run("missing meta", func(t *testing.T) {
		_, err := LoadConfig(t.TempDir())
		assert.ErrorContains(t, err, "meta configuration")
	})

	t.Run("no listed file exists", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "meta.yaml", "files:\n  - base.yaml\n")
		_, err := LoadConfig(dir)
		assert.ErrorContains(t, err, "no configuration files found")
	})
}

func TestNewConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "meta.yaml", "files: [base.yaml]\n")
	writeFile(t, dir, "base.yaml", "servers:\n  gopls:\n    command: gopls\n")

	t.Setenv(_envConfigDir, dir)
	provider, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "gopls", provider.Get("servers.gopls.command").String())
}

func TestGetConfigDir(t *testing.T) {
	t.Setenv(_envConfigDir, "/custom/config/path")
	assert.Equal(t, "/custom/config/path", getConfigDir())

	t.Setenv(_envConfigDir, "")
	assert.Equal(t, _defaultConfigDir, getConfigDir())
}

func TestShippedConfig(t *testing.T) {
	t.Setenv("LSPCLIENT_LOG_DIR", "/var/log/lsp")
	provider, err := LoadConfig(filepath.Join("..", "..", "config"))
	require.NoError(t, err)

	assert.Equal(t, "gopls", provider.Get("servers.gopls.command").String())
	assert.Equal(t, "/var/log/lsp", provider.Get("transport.logDir").String())
	assert.Equal(t, "debug", provider.Get("logging.level").String(), "local.yaml wins")
}
