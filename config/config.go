// Package config loads the runtime's YAML-sourced configuration surface
// (spec.md §6 "Configuration (enumerated)") and normalizes it to the
// defaults/clamps the tick loop, transport server, and queue construct
// themselves from.
package config

import (
	"math"

	"github.com/forgelabs/ember/content"
)

// Defaults for the enumerated configuration surface.
const (
	DefaultStepSizeMs              = 100
	DefaultMaxStepsPerFrame        = 10
	DefaultMaxCommandQueueSize     = 10_000
	DefaultDirtyEpsilonAbsolute    = 1e-9
	DefaultDirtyEpsilonRelative    = 1e-6
	DefaultDirtyEpsilonCeiling     = 1e-3
	DefaultDirtyEpsilonOverrideMax = 1.0
)

// SchedulerConfig configures the host-driven wall-clock scheduler.
type SchedulerConfig struct {
	// IntervalMs is the scheduler tick interval. <= 0 falls back to
	// StepSizeMs.
	IntervalMs int `yaml:"intervalMs"`
}

// LimitsConfig configures resource ceilings shared by the queue and
// transport server.
type LimitsConfig struct {
	MaxCommandQueueSize int `yaml:"maxCommandQueueSize"`
}

// PrecisionConfig configures the dirty-set comparison epsilons. Values are
// non-negative finite floats; non-conforming values fall back to defaults.
// After normalization: Absolute <= Ceiling <= OverrideMax.
type PrecisionConfig struct {
	DirtyEpsilonAbsolute    float64 `yaml:"dirtyEpsilonAbsolute"`
	DirtyEpsilonRelative    float64 `yaml:"dirtyEpsilonRelative"`
	DirtyEpsilonCeiling     float64 `yaml:"dirtyEpsilonCeiling"`
	DirtyEpsilonOverrideMax float64 `yaml:"dirtyEpsilonOverrideMax"`
}

// SystemsConfig toggles optional handler registration groups.
type SystemsConfig struct {
	Automation bool `yaml:"automation"`
	Transforms bool `yaml:"transforms"`
}

// RuntimeConfig is the enumerated configuration surface of spec.md §6,
// loadable from YAML. ContentPack is not YAML-unmarshaled — it is an
// already-validated collaborator the host attaches after loading (the
// content DSL validator that produces it is an excluded component).
type RuntimeConfig struct {
	StepSizeMs       int             `yaml:"stepSizeMs"`
	MaxStepsPerFrame int             `yaml:"maxStepsPerFrame"`
	Scheduler        SchedulerConfig `yaml:"scheduler"`
	Limits           LimitsConfig    `yaml:"limits"`
	Precision        PrecisionConfig `yaml:"precision"`
	Systems          SystemsConfig   `yaml:"systems"`
	RNGSeed          *int64          `yaml:"rngSeed,omitempty"`

	ContentPack *content.Pack `yaml:"-"`
}

func nonNegativeFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// Normalize applies every default/clamp rule from spec.md §6 and returns a
// value the rest of the module treats as already valid. Call it once after
// Load and before constructing the tick loop.
func (c RuntimeConfig) Normalize() RuntimeConfig {
	if c.StepSizeMs <= 0 {
		c.StepSizeMs = DefaultStepSizeMs
	}
	if c.MaxStepsPerFrame <= 0 {
		c.MaxStepsPerFrame = DefaultMaxStepsPerFrame
	}
	if c.Scheduler.IntervalMs <= 0 {
		c.Scheduler.IntervalMs = c.StepSizeMs
	}
	if c.Limits.MaxCommandQueueSize <= 0 {
		c.Limits.MaxCommandQueueSize = DefaultMaxCommandQueueSize
	}

	p := &c.Precision
	if !nonNegativeFinite(p.DirtyEpsilonAbsolute) {
		p.DirtyEpsilonAbsolute = DefaultDirtyEpsilonAbsolute
	}
	if !nonNegativeFinite(p.DirtyEpsilonRelative) {
		p.DirtyEpsilonRelative = DefaultDirtyEpsilonRelative
	}
	if !nonNegativeFinite(p.DirtyEpsilonCeiling) {
		p.DirtyEpsilonCeiling = DefaultDirtyEpsilonCeiling
	}
	if !nonNegativeFinite(p.DirtyEpsilonOverrideMax) {
		p.DirtyEpsilonOverrideMax = DefaultDirtyEpsilonOverrideMax
	}

	// Enforce absolute <= ceiling <= overrideMax after normalization.
	if p.DirtyEpsilonCeiling < p.DirtyEpsilonAbsolute {
		p.DirtyEpsilonCeiling = p.DirtyEpsilonAbsolute
	}
	if p.DirtyEpsilonOverrideMax < p.DirtyEpsilonCeiling {
		p.DirtyEpsilonOverrideMax = p.DirtyEpsilonCeiling
	}

	return c
}
