// Package config holds the YAML-tunable knobs for the sender/receiver
// binaries: RTO bounds, initial window sizing, and telemetry enablement.
// Adapted from the teacher's cmd/session-service/config.Config and its
// load-over-defaults pattern in cmd/session-service/main.go's loadConfig,
// generalized from a service's Server/Store sections to this protocol's
// transport tunables. Every field here is read by the transport it names —
// see internal/rto.Tunables, internal/congestion.Config, and the
// internal/receiver.Receiver fields it overlays.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the full set of tunables a sender or receiver may override.
type Config struct {
	Transport TransportConfig `yaml:"Transport"`
	Log       LogConfig       `yaml:"Log"`
	Metrics   MetricsConfig   `yaml:"Metrics"`
	Tracing   TracingConfig   `yaml:"Tracing"`
}

// TransportConfig tunes the protocol engine shared by both variants.
type TransportConfig struct {
	// FixedWindowSize is Variant A's default SWS, in bytes, used by
	// cmd/qrudp-bench and as a fallback when a Variant A sender is
	// constructed with no explicit window size. The CLI's positional
	// window-bytes argument (spec §6) always takes precedence for the
	// qrudp-sender-sr binary, since the spec requires it on every
	// invocation.
	FixedWindowSize uint32 `yaml:"FixedWindowSize"`

	// InitialSsthresh seeds Variant B's congestion controller; 0 means
	// congestion.DefaultConfig's "unlimited until first loss" value.
	InitialSsthresh uint32 `yaml:"InitialSsthresh"`

	// SelectiveRepeat and Reno overlay the two variants' distinct RTO
	// profiles (spec §4.2) — each variant's defaults, clamps, and initial
	// value differ, so they are not shared fields.
	SelectiveRepeat SelectiveRepeatTuning `yaml:"SelectiveRepeat"`
	Reno            RenoTuning            `yaml:"Reno"`

	// ReceiveTimeout is the receiver's per-read deadline during transfer.
	ReceiveTimeout time.Duration `yaml:"ReceiveTimeout"`

	// MaxConsecutiveTimeouts aborts the receiver after this many idle reads.
	MaxConsecutiveTimeouts int `yaml:"MaxConsecutiveTimeouts"`

	// HandshakeTimeout and HandshakeRetries bound the initial request.
	HandshakeTimeout time.Duration `yaml:"HandshakeTimeout"`
	HandshakeRetries int           `yaml:"HandshakeRetries"`
}

// SelectiveRepeatTuning overlays Variant A's RTO estimator: initial value,
// minimum floor, and the exponential-backoff cap (spec §4.2). A zero field
// leaves the estimator's own spec-mandated default in place.
type SelectiveRepeatTuning struct {
	InitialRTO time.Duration `yaml:"InitialRTO"`
	MinRTO     time.Duration `yaml:"MinRTO"`
	MaxBackoff time.Duration `yaml:"MaxBackoff"`
}

// RenoTuning overlays Variant B's RTO estimator: initial value and the
// min/max clamp (spec §4.2). A zero field leaves the estimator's own
// spec-mandated default in place.
type RenoTuning struct {
	InitialRTO time.Duration `yaml:"InitialRTO"`
	MinRTO     time.Duration `yaml:"MinRTO"`
	MaxRTO     time.Duration `yaml:"MaxRTO"`
}

// LogConfig configures the shared zap logger.
type LogConfig struct {
	Level  string `yaml:"Level"`
	Format string `yaml:"Format"`
}

// MetricsConfig controls the optional Prometheus HTTP endpoint.
type MetricsConfig struct {
	Enable bool   `yaml:"Enable"`
	Addr   string `yaml:"Addr"`
	Path   string `yaml:"Path"`
}

// TracingConfig controls the optional OpenTelemetry exporter.
type TracingConfig struct {
	Enable     bool    `yaml:"Enable"`
	Exporter   string  `yaml:"Exporter"`
	Endpoint   string  `yaml:"Endpoint"`
	SampleRate float64 `yaml:"SampleRate"`
}

// Default returns the spec's default tunables (spec §4.2, §4.4, §9),
// reproduced here field-for-field so an absent config file drives the
// transport identically to a file that sets every field explicitly.
func Default() *Config {
	return &Config{
		Transport: TransportConfig{
			FixedWindowSize: 4096,
			InitialSsthresh: 0, // 0 => congestion package's "unlimited" default
			SelectiveRepeat: SelectiveRepeatTuning{
				InitialRTO: 500 * time.Millisecond,
				MinRTO:     100 * time.Millisecond,
				MaxBackoff: 2 * time.Second,
			},
			Reno: RenoTuning{
				InitialRTO: 3 * time.Second,
				MinRTO:     200 * time.Millisecond,
				MaxRTO:     3 * time.Second,
			},
			ReceiveTimeout:         time.Second,
			MaxConsecutiveTimeouts: 10,
			HandshakeTimeout:       2 * time.Second,
			HandshakeRetries:       5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Enable: false,
			Addr:   "0.0.0.0:9090",
			Path:   "/metrics",
		},
		Tracing: TracingConfig{
			Enable:     false,
			Exporter:   "stdout",
			SampleRate: 1.0,
		},
	}
}

// Load reads filename and unmarshals it on top of Default(), so any field
// the file omits keeps its default value. A missing file is not an error:
// it yields the defaults unchanged, matching the CLI's "config is optional"
// surface.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", filename, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", filename, err)
	}
	return cfg, nil
}
