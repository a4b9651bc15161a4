// Package config loads the JSON configuration consumed by the server
// wrapper, per spec.md section 6 ("Configuration") and SPEC_FULL.md
// section 1.1. JSON config loading is an explicit external collaborator
// (spec.md section 1: "out of scope... JSON config loading"), but the core
// still needs a plain struct to consume, modeled on the teacher's
// server.Config / server.DefaultConfig() shape.
//
// Author: momentics <momentics@gmail.com>
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cast"
)

// ParallelTempering holds the temperature-ladder shape, per spec.md
// section 6's "parallelTempering.{stacks,chains,swapInterval}".
type ParallelTempering struct {
	Stacks       int `json:"stacks"`
	Chains       int `json:"chains"`
	SwapInterval int `json:"swapInterval"`
}

// Bounds is a pair of per-dimension reflective bounds for the Gaussian
// proposal, per spec.md section 4.10. Either field may be left empty
// (length 0) to mean "unbounded in every dimension".
type Bounds struct {
	Min []float64 `json:"min"`
	Max []float64 `json:"max"`
}

// Config is the complete JSON configuration document, per spec.md
// section 6's configuration table plus SPEC_FULL.md section 3.1's
// adapter-tuning supplements from original_source/src/app/settings.hpp.
type Config struct {
	Dimensionality    int               `json:"dimensionality"`
	ParallelTempering ParallelTempering `json:"parallelTempering"`
	NSamplesTotal     int               `json:"nSamplesTotal"`
	NJobTypes         int               `json:"nJobTypes"`
	OptimalAcceptRate float64           `json:"optimalAcceptRate"`
	OptimalSwapRate   float64           `json:"optimalSwapRate"`
	LoggingRateSec    float64           `json:"loggingRateSec"`
	HeartbeatTimeoutSec int             `json:"heartbeatTimeoutSec"`
	OutputPath        string            `json:"outputPath"`
	UseInitial        bool              `json:"useInitial"`
	Initial           []float64         `json:"initial"`
	Bounds            Bounds            `json:"bounds"`

	// Adapter tuning, recovered from original_source/src/app/settings.hpp
	// per SPEC_FULL.md section 3.1; all optional, defaulting to the values
	// spec.md section 4.8 already specifies so existing configs without
	// them still parse.
	AdaptorPeriod   int `json:"adaptorPeriod"`
	AnnealingLength int `json:"annealingLength"`
	WindowSize      int `json:"windowSize"`

	// Loosely-typed numeric overrides, coerced with spf13/cast the way
	// viper-based configs in the retrieval pack do (SPEC_FULL.md section
	// 2.1); these let a config author write "50" or 50 or 50.0 for the
	// adapter prior count interchangeably.
	AdapterPriorRaw json.RawMessage `json:"adapterPrior,omitempty"`
}

// DefaultHeartbeatTimeoutSec is spec.md section 6's default.
const DefaultHeartbeatTimeoutSec = 15

// DefaultWindowSize is spec.md section 4.8's default logging window.
const DefaultWindowSize = 1000

// DefaultAdapterPrior is spec.md section 4.8's default regression prior count.
const DefaultAdapterPrior = 50.0

// DefaultConfig returns a Config with every default spec.md names applied,
// mirroring the teacher's server.DefaultConfig().
func DefaultConfig() Config {
	return Config{
		HeartbeatTimeoutSec: DefaultHeartbeatTimeoutSec,
		WindowSize:          DefaultWindowSize,
	}
}

// Load reads and parses the JSON config at path, applying defaults to any
// field the document omits. It returns a wrapped error on any I/O or
// schema failure, per spec.md section 7's "Config/schema error... Exit
// non-zero before starting threads" policy — the caller (cmd/*/main.go)
// is expected to os.Exit(1) on a non-nil error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.HeartbeatTimeoutSec <= 0 {
		cfg.HeartbeatTimeoutSec = DefaultHeartbeatTimeoutSec
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required fields are present, per spec.md section 7's
// "missing required JSON field" error kind.
func (c Config) Validate() error {
	if c.Dimensionality <= 0 {
		return fmt.Errorf("config: dimensionality must be > 0")
	}
	if c.ParallelTempering.Stacks <= 0 {
		return fmt.Errorf("config: parallelTempering.stacks must be > 0")
	}
	if c.ParallelTempering.Chains <= 0 {
		return fmt.Errorf("config: parallelTempering.chains must be > 0")
	}
	if c.NJobTypes <= 0 {
		return fmt.Errorf("config: nJobTypes must be > 0")
	}
	if c.UseInitial && len(c.Initial) != c.Dimensionality {
		return fmt.Errorf("config: initial has length %d, want dimensionality %d", len(c.Initial), c.Dimensionality)
	}
	if len(c.Bounds.Min) != 0 && len(c.Bounds.Min) != c.Dimensionality {
		return fmt.Errorf("config: bounds.min has length %d, want dimensionality %d", len(c.Bounds.Min), c.Dimensionality)
	}
	if len(c.Bounds.Max) != 0 && len(c.Bounds.Max) != c.Dimensionality {
		return fmt.Errorf("config: bounds.max has length %d, want dimensionality %d", len(c.Bounds.Max), c.Dimensionality)
	}
	return nil
}

// HeartbeatTimeout returns HeartbeatTimeoutSec as a time.Duration.
func (c Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.HeartbeatTimeoutSec) * time.Second
}

// LoggingRate returns LoggingRateSec as a time.Duration.
func (c Config) LoggingRate() time.Duration {
	return time.Duration(c.LoggingRateSec * float64(time.Second))
}

// AdapterPrior coerces AdapterPriorRaw to a float64 via spf13/cast,
// falling back to DefaultAdapterPrior when unset or unparsable — per
// SPEC_FULL.md section 2.1's "coercing loosely-typed JSON numeric fields".
func (c Config) AdapterPrior() float64 {
	if len(c.AdapterPriorRaw) == 0 {
		return DefaultAdapterPrior
	}
	var v any
	if err := json.Unmarshal(c.AdapterPriorRaw, &v); err != nil {
		return DefaultAdapterPrior
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || f <= 0 {
		return DefaultAdapterPrior
	}
	return f
}
