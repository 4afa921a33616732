package testsupport

import (
	"path/filepath"
	"testing"

	"segue/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.FeatureStore.Backend = config.BackendDir
	cfg.FeatureStore.Dir = filepath.Join(base, "features")
	cfg.Workflow.QueuePollInterval = 1
	cfg.Analysis.ExtractionTimeout = 30

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithWorkers sets the worker count on the test config.
func WithWorkers(workers int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.Workers = workers
	}
}
