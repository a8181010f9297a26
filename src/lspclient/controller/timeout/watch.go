package timeout

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/uber/lsp-session/src/lspclient/internal/fs"
	"gopkg.in/yaml.v3"
)

const _debounceTimeout = 50 * time.Millisecond

// watcher reloads an overrides file whenever it is created or written.
type watcher struct {
	policy *policy
	fs     fs.FS
	path   string

	cancel context.CancelFunc
	done   chan struct{}

	debounceMu sync.Mutex
	debounce   *time.Timer
}

func newWatcher(p *policy, fsys fs.FS, path string) *watcher {
	return &watcher{policy: p, fs: fsys, path: filepath.Clean(path)}
}

func (w *watcher) start(context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fs watcher for timeouts: %w", err)
	}
	// The directory is watched so that editors replacing the file by rename are seen.
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return fmt.Errorf("watching %q: %w", w.path, err)
	}

	if err := w.reload(); err != nil && !os.IsNotExist(err) {
		w.policy.logger.Warnw("failed to load timeout overrides", "path", w.path, "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.handleChanges(ctx, fsw)
	return nil
}

func (w *watcher) stop(context.Context) error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	<-w.done
	return nil
}

func (w *watcher) handleChanges(ctx context.Context, fsw *fsnotify.Watcher) {
	defer close(w.done)
	for {
		select {
		case event := <-fsw.Events:
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			w.handleDebounce()

		case err := <-fsw.Errors:
			w.policy.logger.Warnw("failure in timeout overrides watcher", "error", err)

		case <-ctx.Done():
			w.debounceMu.Lock()
			if w.debounce != nil {
				w.debounce.Stop()
				w.debounce = nil
			}
			w.debounceMu.Unlock()

			if err := fsw.Close(); err != nil {
				w.policy.logger.Warnw("failed to close timeout overrides watcher", "error", err)
			}
			return
		}
	}
}

func (w *watcher) handleDebounce() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(_debounceTimeout, func() {
		w.debounceMu.Lock()
		w.debounce = nil
		w.debounceMu.Unlock()

		if err := w.reload(); err != nil {
			w.policy.logger.Warnw("failed to reload timeout overrides", "path", w.path, "error", err)
			return
		}
		w.policy.logger.Infow("reloaded timeout overrides", "path", w.path)
	})
}

// reload reads the overrides file, which holds the same mapping as the "timeouts" configuration block.
func (w *watcher) reload() error {
	data, err := w.fs.ReadFile(w.path)
	if err != nil {
		return err
	}
	overrides, err := parseOverrides(data)
	if err != nil {
		return err
	}
	return w.policy.override(overrides)
}

func parseOverrides(data []byte) (Config, error) {
	cfg := Config{}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decoding timeout overrides: %w", err)
	}
	return cfg, nil
}
