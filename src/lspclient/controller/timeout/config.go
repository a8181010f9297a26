package timeout

import (
	"fmt"
	"time"

	"github.com/uber/lsp-session/src/lspclient/entity"
	"go.uber.org/multierr"
)

const (
	// ConfigKey is the configuration key holding per-category timeout settings.
	ConfigKey = "timeouts"
	// OverridesFileKey is the configuration key naming an optional YAML file watched for timeout changes.
	OverridesFileKey = "timeoutOverridesFile"

	_defaultBackoffFactor = 1.5
	_defaultMaxMultiplier = 4
)

var _defaultTimeouts = map[entity.Category]time.Duration{
	entity.CategoryHover:          2 * time.Second,
	entity.CategoryCodeAction:     2 * time.Second,
	entity.CategoryCompletion:     1 * time.Second,
	entity.CategoryDefinition:     2 * time.Second,
	entity.CategoryReferences:     2 * time.Second,
	entity.CategoryDocHighlight:   1 * time.Second,
	entity.CategorySignature:      1 * time.Second,
	entity.CategoryFormatting:     2 * time.Second,
	entity.CategorySymbols:        2 * time.Second,
	entity.CategoryCodeLens:       2 * time.Second,
	entity.CategoryExecuteCommand: 2 * time.Second,
	entity.CategoryWillSave:       2 * time.Second,
	entity.CategoryInit:           10 * time.Second,
	entity.CategoryShutdown:       5 * time.Second,
}

// CategoryConfig bounds the adaptive timeout of one category.
type CategoryConfig struct {
	Default       time.Duration `yaml:"default"`
	Max           time.Duration `yaml:"max"`
	BackoffFactor float64       `yaml:"backoffFactor"`
}

// Config maps category names (see entity.Category.String) to their settings.
type Config map[string]CategoryConfig

// DefaultCategoryConfig returns the built-in settings for a category.
func DefaultCategoryConfig(c entity.Category) CategoryConfig {
	d, ok := _defaultTimeouts[c]
	if !ok {
		d = 2 * time.Second
	}
	return CategoryConfig{
		Default:       d,
		Max:           _defaultMaxMultiplier * d,
		BackoffFactor: _defaultBackoffFactor,
	}
}

// resolve fills every category, using built-in values for fields that are missing.
// Invalid entries are reported and replaced by the built-in settings.
func (c Config) resolve() (map[entity.Category]CategoryConfig, error) {
	resolved := make(map[entity.Category]CategoryConfig, len(_defaultTimeouts))
	for _, category := range entity.Categories() {
		resolved[category] = DefaultCategoryConfig(category)
	}

	var errs error
	for name, cc := range c {
		category, err := entity.ParseCategory(name)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}

		merged := resolved[category]
		if cc.Default != 0 {
			merged.Default = cc.Default
			if cc.Max == 0 {
				merged.Max = _defaultMaxMultiplier * cc.Default
			}
		}
		if cc.Max != 0 {
			merged.Max = cc.Max
		}
		if cc.BackoffFactor != 0 {
			merged.BackoffFactor = cc.BackoffFactor
		}

		if err := merged.validate(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("timeouts.%s: %w", name, err))
			continue
		}
		resolved[category] = merged
	}
	return resolved, errs
}

func (cc CategoryConfig) validate() error {
	switch {
	case cc.Default <= 0:
		return fmt.Errorf("default must be positive, got %v", cc.Default)
	case cc.Max < cc.Default:
		return fmt.Errorf("max %v is below default %v", cc.Max, cc.Default)
	case cc.BackoffFactor <= 1:
		return fmt.Errorf("backoffFactor must be greater than 1, got %v", cc.BackoffFactor)
	}
	return nil
}
