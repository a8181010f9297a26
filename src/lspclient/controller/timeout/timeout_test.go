package timeout

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tally "github.com/uber-go/tally/v4"
	"github.com/uber/lsp-session/src/lspclient/entity"
	"github.com/uber/lsp-session/src/lspclient/internal/fs"
	"github.com/uber/lsp-session/src/lspclient/internal/fs/fsmock"
	"go.uber.org/config"
	"go.uber.org/fx/fxtest"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestPolicy(t *testing.T, cfg Config) Policy {
	p, err := NewWithConfig(cfg, zap.NewNop().Sugar(), tally.NewTestScope("", nil))
	require.NoError(t, err)
	return p
}

func TestDefaults(t *testing.T) {
	p := newTestPolicy(t, nil)
	assert.Equal(t, 2*time.Second, p.GetTimeout(entity.CategoryHover))
	assert.Equal(t, 1*time.Second, p.GetTimeout(entity.CategoryCompletion))
	assert.Equal(t, 10*time.Second, p.GetTimeout(entity.CategoryInit))
	assert.Equal(t, 5*time.Second, p.GetTimeout(entity.CategoryShutdown))

	for _, c := range entity.Categories() {
		r := p.Snapshot(c)
		assert.Equal(t, r.Default, r.Current, c.String())
		assert.Equal(t, 4*r.Default, r.Max, c.String())
		assert.Equal(t, 1.5, r.BackoffFactor, c.String())
	}
}

func TestRecordFailure(t *testing.T) {
	p := newTestPolicy(t, nil)

	want := []time.Duration{
		3 * time.Second,
		4500 * time.Millisecond,
		6750 * time.Millisecond,
		8 * time.Second,
		8 * time.Second,
	}
	prev := p.GetTimeout(entity.CategoryHover)
	for i, w := range want {
		p.RecordFailure(entity.CategoryHover)
		got := p.GetTimeout(entity.CategoryHover)
		assert.Equal(t, w, got, "failure %d", i+1)
		assert.GreaterOrEqual(t, got, prev)
		assert.LessOrEqual(t, got, 8*time.Second)
		prev = got
	}

	r := p.Snapshot(entity.CategoryHover)
	assert.Equal(t, int64(5), r.Failures)
	assert.Equal(t, 5, r.ConsecutiveFailures)
	assert.Equal(t, 0, r.ConsecutiveSuccesses)
}

func TestRecordSuccess(t *testing.T) {
	p := newTestPolicy(t, nil)

	p.RecordSuccess(entity.CategoryHover)
	assert.Equal(t, 2*time.Second, p.GetTimeout(entity.CategoryHover), "never below default")

	for i := 0; i < 10; i++ {
		p.RecordFailure(entity.CategoryHover)
	}
	require.Equal(t, 8*time.Second, p.GetTimeout(entity.CategoryHover))

	prev := p.GetTimeout(entity.CategoryHover)
	for i := 0; i < 10; i++ {
		p.RecordSuccess(entity.CategoryHover)
		got := p.GetTimeout(entity.CategoryHover)
		assert.LessOrEqual(t, got, prev)
		assert.GreaterOrEqual(t, got, 2*time.Second)
		prev = got
	}
	assert.Equal(t, 2*time.Second, prev)

	r := p.Snapshot(entity.CategoryHover)
	assert.Equal(t, int64(11), r.Successes)
	assert.Equal(t, 10, r.ConsecutiveSuccesses)
	assert.Equal(t, 0, r.ConsecutiveFailures)
}

func TestCategoryIsolation(t *testing.T) {
	p := newTestPolicy(t, nil)
	for i := 0; i < 3; i++ {
		p.RecordFailure(entity.CategoryHover)
	}
	assert.Equal(t, 6750*time.Millisecond, p.GetTimeout(entity.CategoryHover))
	assert.Equal(t, 2*time.Second, p.GetTimeout(entity.CategoryCodeAction))
	assert.Equal(t, int64(0), p.Snapshot(entity.CategoryCodeAction).Failures)
}

func TestConcurrentRecords(t *testing.T) {
	p := newTestPolicy(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			p.RecordFailure(entity.CategoryHover)
			_ = p.GetTimeout(entity.CategoryHover)
		}()
		go func() {
			defer wg.Done()
			p.RecordSuccess(entity.CategoryHover)
			p.RecordFailure(entity.CategoryCodeAction)
		}()
	}
	wg.Wait()

	hover := p.Snapshot(entity.CategoryHover)
	assert.Equal(t, int64(50), hover.Failures)
	assert.Equal(t, int64(50), hover.Successes)
	assert.GreaterOrEqual(t, hover.Current, hover.Default)
	assert.LessOrEqual(t, hover.Current, hover.Max)
	assert.Equal(t, 8*time.Second, p.GetTimeout(entity.CategoryCodeAction))
}

func TestReconfigure(t *testing.T) {
	p := newTestPolicy(t, nil)
	for i := 0; i < 4; i++ {
		p.RecordFailure(entity.CategoryHover)
	}
	require.Equal(t, 8*time.Second, p.GetTimeout(entity.CategoryHover))

	err := p.Reconfigure(Config{"hover": {Default: time.Second, Max: 3 * time.Second, BackoffFactor: 2}})
	require.NoError(t, err)

	r := p.Snapshot(entity.CategoryHover)
	assert.Equal(t, 3*time.Second, r.Current, "clamped into the new max")
	assert.Equal(t, int64(4), r.Failures, "counters survive")
	assert.Equal(t, 2.0, r.BackoffFactor)

	err = p.Reconfigure(Config{"completion": {Default: 5 * time.Second}})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, p.GetTimeout(entity.CategoryCompletion), "raised to the new default")
	assert.Equal(t, 20*time.Second, p.Snapshot(entity.CategoryCompletion).Max)
}

func TestInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		msg  string
	}{
		{
			name: "unknown category",
			cfg:  Config{"rename": {Default: time.Second}},
			msg:  "unknown request category",
		},
		{
			name: "factor not above one",
			cfg:  Config{"hover": {BackoffFactor: 1}},
			msg:  "backoffFactor",
		},
		{
			name: "max below default",
			cfg:  Config{"hover": {Default: 3 * time.Second, Max: time.Second}},
			msg:  "below default",
		},
		{
			name: "negative default",
			cfg:  Config{"code_action": {Default: -time.Second}},
			msg:  "must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWithConfig(tt.cfg, zap.NewNop().Sugar(), tally.NoopScope)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestGauges(t *testing.T) {
	scope := tally.NewTestScope("", nil)
	p, err := NewWithConfig(nil, zap.NewNop().Sugar(), scope)
	require.NoError(t, err)

	p.RecordFailure(entity.CategoryHover)

	var found bool
	for _, g := range scope.Snapshot().Gauges() {
		if g.Name() == "timeout.hover_ms" {
			found = true
			assert.Equal(t, float64(3000), g.Value())
		}
	}
	assert.True(t, found)
}

func TestNewFromProvider(t *testing.T) {
	provider, err := config.NewYAML(config.Source(strings.NewReader(`
timeouts:
  hover:
    default: 500ms
    max: 2s
  codeAction:
    backoffFactor: 3
`)))
	require.NoError(t, err)

	p, err := New(Params{
		Config:    provider,
		FS:        fs.New(),
		Logger:    zap.NewNop().Sugar(),
		Stats:     tally.NoopScope,
		Lifecycle: fxtest.NewLifecycle(t),
	})
	require.NoError(t, err)

	hover := p.Snapshot(entity.CategoryHover)
	assert.Equal(t, 500*time.Millisecond, hover.Current)
	assert.Equal(t, 2*time.Second, hover.Max)

	p.RecordFailure(entity.CategoryCodeAction)
	assert.Equal(t, 6*time.Second, p.GetTimeout(entity.CategoryCodeAction))
}

func TestWatchOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "timeouts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hover:\n  default: 1s\n  max: 2s\n"), 0o644))

	provider, err := config.NewYAML(config.Source(strings.NewReader("timeoutOverridesFile: " + path + "\n")))
	require.NoError(t, err)

	lc := fxtest.NewLifecycle(t)
	p, err := New(Params{
		Config:    provider,
		FS:        fs.New(),
		Logger:    zap.NewNop().Sugar(),
		Stats:     tally.NoopScope,
		Lifecycle: lc,
	})
	require.NoError(t, err)

	lc.RequireStart()
	hover := p.Snapshot(entity.CategoryHover)
	assert.Equal(t, time.Second, hover.Default, "loaded on start")
	assert.Equal(t, 2*time.Second, hover.Max)
	assert.Equal(t, 2*time.Second, hover.Current)

	require.NoError(t, os.WriteFile(path, []byte("hover:\n  default: 2500ms\n  max: 5s\n"), 0o644))
	assert.Eventually(t, func() bool {
		return p.GetTimeout(entity.CategoryHover) == 2500*time.Millisecond
	}, 5*time.Second, 10*time.Millisecond)

	lc.RequireStop()
}

func TestWatcherReload(t *testing.T) {
	ctrl := gomock.NewController(t)
	fsys := fsmock.NewMockFS(ctrl)
	pol, err := newPolicy(nil, zap.NewNop().Sugar(), tally.NoopScope)
	require.NoError(t, err)
	w := newWatcher(pol, fsys, "/etc/lsp/../lsp/timeouts.yaml")
	assert.Equal(t, "/etc/lsp/timeouts.yaml", w.path)

	gomock.InOrder(
		fsys.EXPECT().ReadFile("/etc/lsp/timeouts.yaml").Return([]byte("codeAction:\n  default: 4s\n  max: 6s\n"), nil),
		fsys.EXPECT().ReadFile("/etc/lsp/timeouts.yaml").Return(nil, os.ErrPermission),
		fsys.EXPECT().ReadFile("/etc/lsp/timeouts.yaml").Return([]byte("codeAction: [unterminated"), nil),
	)

	require.NoError(t, w.reload())
	assert.Equal(t, 4*time.Second, pol.GetTimeout(entity.CategoryCodeAction))

	assert.ErrorIs(t, w.reload(), os.ErrPermission)
	assert.Error(t, w.reload())
	assert.Equal(t, 4*time.Second, pol.GetTimeout(entity.CategoryCodeAction), "failed reloads keep the last overrides")
}

func TestWatcherStartWithoutFile(t *testing.T) {
	ctrl := gomock.NewController(t)
	fsys := fsmock.NewMockFS(ctrl)
	core, logs := observer.New(zap.DebugLevel)
	pol, err := newPolicy(nil, zap.New(core).Sugar(), tally.NoopScope)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "timeouts.yaml")
	fsys.EXPECT().ReadFile(path).Return(nil, os.ErrNotExist)

	w := newWatcher(pol, fsys, path)
	require.NoError(t, w.start(context.Background()))
	assert.Zero(t, logs.FilterMessage("failed to load timeout overrides").Len(), "a missing file is not reported")
	assert.Equal(t, 2*time.Second, pol.GetTimeout(entity.CategoryHover))
	require.NoError(t, w.stop(context.Background()))
}

func TestParseOverrides(t *testing.T) {
	cfg, err := parseOverrides([]byte("definition:\n  default: 3s\n  backoffFactor: 2.5\n"))
	require.NoError(t, err)
	assert.Equal(t, CategoryConfig{Default: 3 * time.Second, BackoffFactor: 2.5}, cfg["definition"])

	_, err = parseOverrides([]byte("definition: [unterminated"))
	assert.Error(t, err)
}
