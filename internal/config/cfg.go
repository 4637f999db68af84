// Package config loads the engine's single YAML configuration document.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/pinba-platform/pinba2/internal/report"
)

// Config is the top-level engine configuration.
type Config struct {
	// Logging configures the shared logging subsystem.
	Logging LoggingConfig `yaml:"logging"`
	// Collector configures the UDP collector thread pool.
	Collector CollectorConfig `yaml:"collector"`
	// Repacker configures the repacker thread pool.
	Repacker RepackerConfig `yaml:"repacker"`
	// Coordinator configures the fan-out coordinator.
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	// Dictionary configures the shared string dictionary.
	Dictionary DictionaryConfig `yaml:"dictionary"`
	// Reports lists the report configurations active at startup.
	Reports []report.Config `yaml:"reports"`
	// GopsAddr enables the gops runtime-introspection agent when non-empty.
	GopsAddr string `yaml:"gops_addr,omitempty"`
	// MetricsAddr, when non-empty, serves Prometheus metrics on this address.
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

// LoggingConfig configures the shared logging subsystem.
type LoggingConfig struct {
	Level zapcore.Level `yaml:"level"`
}

// CollectorConfig configures the UDP collector thread pool (spec.md §4.1).
type CollectorConfig struct {
	// Address is the UDP listen address, e.g. "0.0.0.0".
	Address string `yaml:"address"`
	// Port is the UDP listen port.
	Port uint16 `yaml:"port"`
	// NThreads is the number of collector worker threads (each with its
	// own SO_REUSEPORT socket).
	NThreads int `yaml:"n_threads"`
	// BatchSize is the number of raw records per raw batch.
	BatchSize int `yaml:"batch_size"`
	// BatchTimeout is the max time a partially-filled batch is held open.
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	// OutputQueueCapacity is the number of raw batches the output queue to
	// the repacker pool can hold before sends start dropping.
	OutputQueueCapacity int `yaml:"output_queue_capacity"`
	// RecvBufferSize is the requested kernel socket receive buffer size.
	RecvBufferSize datasize.ByteSize `yaml:"recv_buffer_size"`
	// BindRetry bounds the startup bind-retry backoff; zero disables retry.
	BindRetry BindRetryConfig `yaml:"bind_retry"`
}

// BindRetryConfig controls the one-time startup socket bind retry.
type BindRetryConfig struct {
	MaxElapsedTime time.Duration `yaml:"max_elapsed_time"`
}

// RepackerConfig configures the repacker thread pool (spec.md §4.2).
type RepackerConfig struct {
	// NThreads is the number of repacker worker threads.
	NThreads int `yaml:"n_threads"`
	// BatchSize is the number of packets per packet batch.
	BatchSize int `yaml:"batch_size"`
	// BatchTimeout is the max time a partially-filled packet batch is held
	// open.
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	// OutputQueueCapacity is the coordinator-facing output queue capacity.
	OutputQueueCapacity int `yaml:"output_queue_capacity"`
	// InputQueueCapacity is the collector-facing input queue capacity.
	InputQueueCapacity int `yaml:"input_queue_capacity"`
	// ReapInterval is how often sealed word-slices are reaped.
	ReapInterval time.Duration `yaml:"reap_interval"`
}

// CoordinatorConfig configures the coordinator (spec.md §4.3).
type CoordinatorConfig struct {
	// ReportQueueCapacity is the per-report-host fan-out queue capacity.
	ReportQueueCapacity int `yaml:"report_queue_capacity"`
}

// DictionaryConfig configures the shared dictionary (spec.md §4.5).
type DictionaryConfig struct {
	// Shards is the number of shards in the sharded dictionary.
	Shards int `yaml:"shards"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{Level: zapcore.InfoLevel},
		Collector: CollectorConfig{
			Address:             "0.0.0.0",
			Port:                5002,
			NThreads:            4,
			BatchSize:           512,
			BatchTimeout:        200 * time.Millisecond,
			OutputQueueCapacity: 1024,
			RecvBufferSize:      8 * datasize.MB,
			BindRetry:           BindRetryConfig{MaxElapsedTime: 5 * time.Second},
		},
		Repacker: RepackerConfig{
			NThreads:            4,
			BatchSize:           512,
			BatchTimeout:        200 * time.Millisecond,
			OutputQueueCapacity: 1024,
			InputQueueCapacity:  1024,
			ReapInterval:        time.Second,
		},
		Coordinator: CoordinatorConfig{
			ReportQueueCapacity: 1024,
		},
		Dictionary: DictionaryConfig{
			Shards: 64,
		},
	}
}

// LoadConfig loads configuration from a YAML file at the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML configuration: %w", err)
	}

	return cfg, nil
}
