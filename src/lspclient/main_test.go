package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber/lsp-session/src/lspclient/controller/servers/serversmock"
	"github.com/uber/lsp-session/src/lspclient/entity"
	"github.com/uber/lsp-session/src/lspclient/internal/errors"
	"github.com/uber/lsp-session/src/lspclient/internal/fs/fsmock"
	"go.lsp.dev/protocol"
	"go.uber.org/fx"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDependenciesAreSatisfied(t *testing.T) {
	assert.NoError(t, fx.ValidateApp(opts()))
}

func TestParseRange(t *testing.T) {
	rng, err := parseRange("3:1-4:12")
	require.NoError(t, err)
	assert.Equal(t, entity.EditorRange{
		Start: entity.EditorPosition{Line: 3, Column: 1},
		End:   entity.EditorPosition{Line: 4, Column: 12},
	}, rng)

	for _, bad := range []string{"", "3:1", "3-4", "a:1-2:2", "1:1-2:b"} {
		_, err := parseRange(bad)
		assert.Error(t, err, bad)
	}
}

func TestLanguageFor(t *testing.T) {
	l, err := languageFor("/src/Main.JAVA")
	require.NoError(t, err)
	assert.Equal(t, protocol.LanguageIdentifier("java"), l)

	_, err = languageFor("Makefile")
	assert.ErrorContains(t, err, "--language")
}

func TestPrintYAML(t *testing.T) {
	var buf bytes.Buffer
	err := printYAML(&buf, hoverOutput{
		File:   "main.go",
		Offset: 29,
		Session: entity.SessionInfo{
			UUID:      uuid.Must(uuid.FromString("6ba7b810-9dad-11d1-80b4-00c04fd430c8")),
			Server:    "gopls",
			State:     entity.SessionStateHealthy,
			StartedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		Hover: "func println(args ...Type)",
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "file: main.go\n")
	assert.Contains(t, out, "offset: 29\n")
	assert.Contains(t, out, "  server: gopls\n")
	assert.Contains(t, out, "  state: healthy\n")
	assert.Contains(t, out, "hover: func println(args ...Type)\n")
	assert.NotContains(t, out, "lastError")
}

func TestRootCmdValidation(t *testing.T) {
	t.Run("file is required", func(t *testing.T) {
		cmd := newRootCmd()
		cmd.SetArgs([]string{"hover", "--offset", "1"})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		assert.ErrorContains(t, cmd.Execute(), `"file"`)
	})

	t.Run("range is parsed before starting", func(t *testing.T) {
		cmd := newRootCmd()
		cmd.SetArgs([]string{"codeactions", "--file", "main.go", "--range", "nonsense"})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		assert.ErrorContains(t, cmd.Execute(), "invalid range")
	})

	t.Run("unknown language", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "notes.txt")
		require.NoError(t, os.WriteFile(file, []byte("hello\n"), 0o644))

		cmd := newRootCmd()
		cmd.SetArgs([]string{"hover", "--file", file})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		assert.ErrorContains(t, cmd.Execute(), "can't guess the language")
	})
}

func TestOpenFile(t *testing.T) {
	ctx := context.Background()

	t.Run("unreadable file", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		fsys := fsmock.NewMockFS(ctrl)
		fsys.EXPECT().ReadFile("/src/main.go").Return(nil, os.ErrNotExist)

		p := probe{fs: fsys, servers: serversmock.NewMockPool(ctrl)}
		_, err := p.open(ctx, "/src/main.go", "go")
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("no server for the language", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		fsys := fsmock.NewMockFS(ctrl)
		pool := serversmock.NewMockPool(ctrl)
		fsys.EXPECT().ReadFile("/src/Main.cob").Return([]byte("IDENTIFICATION DIVISION.\n"), nil)
		pool.EXPECT().ServerFor(protocol.LanguageIdentifier("cobol")).Return("", false)

		p := probe{fs: fsys, servers: pool}
		_, err := p.open(ctx, "/src/Main.cob", "cobol")
		assert.ErrorContains(t, err, `no language server configured for "cobol"`)
	})

	t.Run("server refused", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		fsys := fsmock.NewMockFS(ctrl)
		pool := serversmock.NewMockPool(ctrl)
		fsys.EXPECT().ReadFile("/src/main.go").Return([]byte("package main\n"), nil)
		pool.EXPECT().ServerFor(protocol.LanguageIdentifier("go")).Return("gopls", true)
		pool.EXPECT().Ensure(gomock.Any(), "gopls").Return(nil, &errors.ServerExhaustedError{Name: "gopls", Restarts: 3})

		p := probe{fs: fsys, servers: pool}
		_, err := p.open(ctx, "/src/main.go", "go")
		var exhausted *errors.ServerExhaustedError
		assert.ErrorAs(t, err, &exhausted)
	})
}

func TestPrintSessions(t *testing.T) {
	ctrl := gomock.NewController(t)
	pool := serversmock.NewMockPool(ctrl)
	pool.EXPECT().Sessions(gomock.Any()).Return([]entity.SessionInfo{
		{
			UUID:     uuid.Must(uuid.FromString("6ba7b811-9dad-11d1-80b4-00c04fd430c8")),
			Server:   "gopls",
			State:    entity.SessionStateHealthy,
			Restarts: 1,
		},
		{
			UUID:    uuid.Must(uuid.FromString("6ba7b810-9dad-11d1-80b4-00c04fd430c8")),
			Server:  "gopls",
			State:   entity.SessionStateCrashed,
			LastErr: "unexpected EOF",
		},
	}, nil)

	var buf bytes.Buffer
	require.NoError(t, probe{servers: pool}.printSessions(context.Background(), &buf))

	out := buf.String()
	assert.Contains(t, out, "sessions:\n")
	assert.Contains(t, out, "state: healthy\n")
	assert.Contains(t, out, "state: crashed\n")
	assert.Contains(t, out, "restarts: 1\n")
	assert.Contains(t, out, "unexpected EOF")
}
