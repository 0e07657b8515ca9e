// Package config loads engine-level options: the recompute cycle guard
// limit, the default prefetch batch size, and whether telemetry spans are
// emitted. Environment construction takes these as an explicit struct
// rather than reaching for a process-wide singleton, since the core has
// no CLI or file surface of its own — config here exists purely so a
// host collaborator can tune the engine.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// EngineOptions tunes the behavior of internal/env's Environment.
type EngineOptions struct {
	// ComputeCycleLimit bounds the number of recompute passes the flush
	// orchestrator runs over the compute queue before raising
	// ComputeCycleError.
	ComputeCycleLimit int `yaml:"compute-cycle-limit"`

	// PrefetchBatchSize is the default batch size collaborators should use
	// when calling Store.Prefetch; the core does not enforce it.
	PrefetchBatchSize int `yaml:"prefetch-batch-size"`

	// TelemetryEnabled gates whether the pipeline engine and flush
	// orchestrator start OTel spans. Even when true, spans cost nothing
	// observable until a host process installs a real exporter.
	TelemetryEnabled bool `yaml:"telemetry-enabled"`
}

// Default returns the options a freshly constructed Environment uses when
// the caller supplies none.
func Default() EngineOptions {
	return EngineOptions{
		ComputeCycleLimit: 100,
		PrefetchBatchSize: 200,
		TelemetryEnabled:  true,
	}
}

// Load reads EngineOptions from a YAML file at path, layering its values
// over Default(). A missing file is not an error: it returns Default()
// unchanged, following internal/config/local_config.go's
// read-file-or-return-zero-value style so a host process never needs a
// "does this config exist" check before calling Load.
func Load(path string) (EngineOptions, error) {
	opts := Default()

	data, err := os.ReadFile(path) // #nosec G304 -- path is caller-controlled, not derived from untrusted input
	if err != nil {
		if os.IsNotExist(err) {
			return opts, nil
		}
		return opts, err
	}

	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, err
	}
	return opts, nil
}
