// Package config loads the runtime tunables that sit outside language
// semantics: GC behavior and frame/stack sizing. Values come from an
// optional aster.yaml file first, then are overridden by ASTER_-prefixed
// environment variables.
package config

import (
	"os"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"
)

// Runtime holds the tunables that never change language behavior, only how
// hard the implementation works to support it.
type Runtime struct {
	// FramesMax bounds call-frame nesting (spec.md §7: "stack overflow" is a
	// runtime error, not a panic).
	FramesMax int `yaml:"frames_max" env:"FRAMES_MAX" envDefault:"64"`

	// GCGrowthFactor is the multiplier applied to bytesAllocated to compute
	// the next collection threshold.
	GCGrowthFactor int `yaml:"gc_growth_factor" env:"GC_GROWTH_FACTOR" envDefault:"2"`

	// GCStress, when true, forces a collection on every allocation. Intended
	// for exercising root-marking bugs in tests, never for normal runs.
	GCStress bool `yaml:"gc_stress" env:"GC_STRESS" envDefault:"false"`

	// GCLog, when true, makes the heap print a line for every collection's
	// start/end and byte counts.
	GCLog bool `yaml:"gc_log" env:"GC_LOG" envDefault:"false"`
}

// Default returns the tunables a freshly started CLI would use with no
// config file and no environment overrides.
func Default() Runtime {
	var r Runtime
	// env.Parse against a zero-value struct also applies envDefault tags,
	// which is the only way to get Runtime's defaults without duplicating
	// them here.
	_ = env.Parse(&r)
	return r
}

// Load reads yamlPath (if it exists) into a Runtime, then applies
// ASTER_-prefixed environment variable overrides. A missing yamlPath is not
// an error: the file is optional.
func Load(yamlPath string) (Runtime, error) {
	r := Runtime{FramesMax: 64, GCGrowthFactor: 2}

	if yamlPath != "" {
		b, err := os.ReadFile(yamlPath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &r); err != nil {
				return Runtime{}, err
			}
		case os.IsNotExist(err):
			// no file to load, keep the struct defaults above
		default:
			return Runtime{}, err
		}
	}

	// Parse into a separate struct and copy only the fields whose variable is
	// set, so that envDefault tags never replace a value read from the file.
	var e Runtime
	if err := env.Parse(&e, env.Options{Prefix: "ASTER_"}); err != nil {
		return Runtime{}, err
	}
	if _, ok := os.LookupEnv("ASTER_FRAMES_MAX"); ok {
		r.FramesMax = e.FramesMax
	}
	if _, ok := os.LookupEnv("ASTER_GC_GROWTH_FACTOR"); ok {
		r.GCGrowthFactor = e.GCGrowthFactor
	}
	if _, ok := os.LookupEnv("ASTER_GC_STRESS"); ok {
		r.GCStress = e.GCStress
	}
	if _, ok := os.LookupEnv("ASTER_GC_LOG"); ok {
		r.GCLog = e.GCLog
	}
	return r, nil
}
