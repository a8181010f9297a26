// Package timeout implements the adaptive per-category timeout policy.
package timeout

import (
	"fmt"
	"sync"
	"time"

	tally "github.com/uber-go/tally/v4"
	"github.com/uber/lsp-session/src/lspclient/entity"
	"github.com/uber/lsp-session/src/lspclient/internal/fs"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Policy tracks the current timeout of every request category.
// A failure lengthens the category's timeout up to its maximum; a success shortens it back towards its default.
type Policy interface {
	GetTimeout(c entity.Category) time.Duration
	RecordSuccess(c entity.Category)
	RecordFailure(c entity.Category)
	Snapshot(c entity.Category) Record
	Reconfigure(cfg Config) error
}

// Record is the state of one category.
type Record struct {
	Current       time.Duration
	Default       time.Duration
	Max           time.Duration
	BackoffFactor float64

	ConsecutiveSuccesses int
	ConsecutiveFailures  int
	Successes            int64
	Failures             int64
}

// Params are inbound parameters to initialize a new Policy.
type Params struct {
	fx.In

	Config    config.Provider
	FS        fs.FS
	Logger    *zap.SugaredLogger
	Stats     tally.Scope
	Lifecycle fx.Lifecycle
}

type category struct {
	mu    sync.Mutex
	rec   Record
	gauge tally.Gauge
}

type policy struct {
	// Fixed at construction; only the entries themselves mutate.
	categories map[entity.Category]*category
	logger     *zap.SugaredLogger

	baseMu sync.Mutex
	base   Config
}

// New creates a Policy from the "timeouts" configuration block.
// When an overrides file is configured, it is watched for the lifetime of the app.
func New(p Params) (Policy, error) {
	cfg := Config{}
	if err := p.Config.Get(ConfigKey).Populate(&cfg); err != nil {
		return nil, fmt.Errorf("getting configuration for %q: %w", ConfigKey, err)
	}

	pol, err := newPolicy(cfg, p.Logger, p.Stats)
	if err != nil {
		return nil, err
	}

	var overrides string
	if err := p.Config.Get(OverridesFileKey).Populate(&overrides); err != nil {
		return nil, fmt.Errorf("getting configuration for %q: %w", OverridesFileKey, err)
	}
	if overrides != "" && p.Lifecycle != nil {
		w := newWatcher(pol, p.FS, overrides)
		p.Lifecycle.Append(fx.Hook{
			OnStart: w.start,
			OnStop:  w.stop,
		})
	}
	return pol, nil
}

// NewWithConfig creates a Policy from an explicit configuration.
func NewWithConfig(cfg Config, logger *zap.SugaredLogger, stats tally.Scope) (Policy, error) {
	return newPolicy(cfg, logger, stats)
}

func newPolicy(cfg Config, logger *zap.SugaredLogger, stats tally.Scope) (*policy, error) {
	resolved, err := cfg.resolve()
	if err != nil {
		return nil, fmt.Errorf("invalid timeout configuration: %w", err)
	}

	scope := stats.SubScope("timeout")
	pol := &policy{
		categories: make(map[entity.Category]*category, len(resolved)),
		logger:     logger.With("component", "timeout"),
		base:       cfg,
	}
	for c, cc := range resolved {
		cat := &category{
			rec: Record{
				Current:       cc.Default,
				Default:       cc.Default,
				Max:           cc.Max,
				BackoffFactor: cc.BackoffFactor,
			},
			gauge: scope.Gauge(c.String() + "_ms"),
		}
		cat.publish()
		pol.categories[c] = cat
	}
	return pol, nil
}

// GetTimeout returns the current timeout of the category.
func (p *policy) GetTimeout(c entity.Category) time.Duration {
	cat, ok := p.categories[c]
	if !ok {
		return DefaultCategoryConfig(c).Default
	}
	cat.mu.Lock()
	defer cat.mu.Unlock()
	return cat.rec.Current
}

// RecordSuccess shortens the category's timeout, never below its default.
func (p *policy) RecordSuccess(c entity.Category) {
	cat, ok := p.categories[c]
	if !ok {
		return
	}
	cat.mu.Lock()
	defer cat.mu.Unlock()

	r := &cat.rec
	r.Successes++
	r.ConsecutiveSuccesses++
	r.ConsecutiveFailures = 0
	r.Current = maxDuration(r.Default, time.Duration(float64(r.Current)/r.BackoffFactor))
	cat.publish()
}

// RecordFailure lengthens the category's timeout, never above its maximum.
func (p *policy) RecordFailure(c entity.Category) {
	cat, ok := p.categories[c]
	if !ok {
		return
	}
	cat.mu.Lock()
	defer cat.mu.Unlock()

	r := &cat.rec
	r.Failures++
	r.ConsecutiveFailures++
	r.ConsecutiveSuccesses = 0
	r.Current = minDuration(r.Max, time.Duration(float64(r.Current)*r.BackoffFactor))
	cat.publish()

	if r.Current == r.Max {
		p.logger.Debugw("timeout reached its maximum", "category", c.String(), "timeout", r.Current, "consecutiveFailures", r.ConsecutiveFailures)
	}
}

// Snapshot returns a copy of the category's state.
func (p *policy) Snapshot(c entity.Category) Record {
	cat, ok := p.categories[c]
	if !ok {
		cc := DefaultCategoryConfig(c)
		return Record{Current: cc.Default, Default: cc.Default, Max: cc.Max, BackoffFactor: cc.BackoffFactor}
	}
	cat.mu.Lock()
	defer cat.mu.Unlock()
	return cat.rec
}

// Reconfigure applies new bounds. Counters are kept and current timeouts are clamped into the new bounds.
// Invalid entries are reported and leave their category on the built-in settings.
func (p *policy) Reconfigure(cfg Config) error {
	resolved, err := cfg.resolve()
	for c, cc := range resolved {
		cat, ok := p.categories[c]
		if !ok {
			continue
		}
		cat.mu.Lock()
		r := &cat.rec
		r.Default = cc.Default
		r.Max = cc.Max
		r.BackoffFactor = cc.BackoffFactor
		r.Current = minDuration(r.Max, maxDuration(r.Default, r.Current))
		cat.publish()
		cat.mu.Unlock()
	}
	if err != nil {
		p.logger.Warnw("timeout configuration partially rejected", "error", err)
	}
	return err
}

// override applies entries on top of the configuration the policy was created with.
func (p *policy) override(overrides Config) error {
	p.baseMu.Lock()
	merged := make(Config, len(p.base)+len(overrides))
	for name, cc := range p.base {
		merged[name] = cc
	}
	p.baseMu.Unlock()

	for name, cc := range overrides {
		prev := merged[name]
		if cc.Default != 0 {
			prev.Default = cc.Default
		}
		if cc.Max != 0 {
			prev.Max = cc.Max
		}
		if cc.BackoffFactor != 0 {
			prev.BackoffFactor = cc.BackoffFactor
		}
		merged[name] = prev
	}
	return p.Reconfigure(merged)
}

// publish must be called with mu held.
func (c *category) publish() {
	c.gauge.Update(float64(c.rec.Current / time.Millisecond))
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
