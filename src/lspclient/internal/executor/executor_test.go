package executor

import (
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// Instantiates the new Executor through fx provider
func fxExecutor(t *testing.T) (Executor, *observer.ObservedLogs) {
	var e Executor
	core, recorded := observer.New(zap.InfoLevel)
	logger := zap.New(core).Sugar()

	fxtest.New(t,
		fx.Supply(logger),
		Module,
		fx.Populate(&e),
	).RequireStart().RequireStop()

	return e, recorded
}

func TestStart(t *testing.T) {
	e, recorded := fxExecutor(t)

	t.Run("without stdin", func(t *testing.T) {
		binPath, err := exec.LookPath("true")
		if errors.Is(err, exec.ErrNotFound) {
			t.Skip("no true available")
		}
		require.NoError(t, err)

		cmd := exec.Command("true", "1", "2")
		cmd.Dir = "/"
		env := []string{"KEY1=VAL1", "KEY2=VAL2"}
		require.NoError(t, e.Start(cmd, env))
		assert.NoError(t, cmd.Wait())
		assert.Equal(t, env, cmd.Env)

		logs := recorded.TakeAll()
		require.Len(t, logs, 1)
		assert.Equal(t, map[string]interface{}{
			"Path": binPath,
			"Dir":  "/",
			"Args": []interface{}{"1", "2"},
		}, logs[0].ContextMap())
	})

	t.Run("with stdin", func(t *testing.T) {
		binPath, err := exec.LookPath("cat")
		if errors.Is(err, exec.ErrNotFound) {
			t.Skip("no cat available")
		}
		require.NoError(t, err)

		var out strings.Builder
		cmd := exec.Command("cat")
		cmd.Stdin = strings.NewReader("SomeInput")
		cmd.Stdout = &out
		require.NoError(t, e.Start(cmd, nil))
		require.NoError(t, cmd.Wait())
		assert.Equal(t, "SomeInput", out.String())
		assert.Nil(t, cmd.Env)

		logs := recorded.TakeAll()
		require.Len(t, logs, 1)
		assert.Equal(t, map[string]interface{}{
			"Path":  binPath,
			"Dir":   "",
			"Args":  []interface{}{},
			"Stdin": "SomeInput",
		}, logs[0].ContextMap())
	})

	t.Run("missing binary", func(t *testing.T) {
		cmd := exec.Command(filepath.Join(t.TempDir(), "no-such-server"))
		assert.Error(t, e.Start(cmd, nil))
		assert.Len(t, recorded.TakeAll(), 1)
	})
}

func TestNilStartFunc(t *testing.T) {
	core, recorded := observer.New(zap.InfoLevel)
	e := NewExecutor(WithLogger(zap.New(core).Sugar()), WithStartFunc(nil))

	cmd := exec.Command("anything")
	assert.NoError(t, e.Start(cmd, []string{"A=B"}))
	assert.Nil(t, cmd.Process)
	assert.Len(t, recorded.FilterMessage("missing StartFunc - skipped execution").All(), 1)
}

func TestStartFunc(t *testing.T) {
	var started *exec.Cmd
	e := NewExecutor(WithStartFunc(func(cmd *exec.Cmd) error {
		started = cmd
		return nil
	}))

	cmd := exec.Command("gopls", "serve")
	require.NoError(t, e.Start(cmd, nil))
	assert.Same(t, cmd, started)
}
