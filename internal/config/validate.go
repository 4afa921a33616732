package config

import (
	"errors"
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}

	c.FeatureStore.Backend = strings.ToLower(strings.TrimSpace(c.FeatureStore.Backend))
	if c.FeatureStore.Backend == "" {
		c.FeatureStore.Backend = BackendDir
	}
	if strings.TrimSpace(c.FeatureStore.Dir) == "" {
		c.FeatureStore.Dir = defaultFeatureDir
	}
	if c.FeatureStore.Dir, err = expandPath(c.FeatureStore.Dir); err != nil {
		return fmt.Errorf("feature_store.dir: %w", err)
	}

	if strings.TrimSpace(c.Analysis.FFmpegCommand) == "" {
		c.Analysis.FFmpegCommand = defaultFFmpegCommand
	}
	if c.Analysis.ExtractionTimeout <= 0 {
		c.Analysis.ExtractionTimeout = defaultExtractionTimeout
	}
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.Workers <= 0 {
		c.Workflow.Workers = defaultWorkers
	}
	if strings.TrimSpace(c.Redis.Addr) == "" {
		c.Redis.Addr = defaultRedisAddr
	}
	if c.Redis.TTLSeconds <= 0 {
		c.Redis.TTLSeconds = defaultRedisTTLSeconds
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateFeatureStore(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateFeatureStore() error {
	switch c.FeatureStore.Backend {
	case BackendDir:
		if c.FeatureStore.Dir == "" {
			return errors.New("feature_store.dir must be set when backend is \"dir\"")
		}
	case BackendMinio:
		if strings.TrimSpace(c.FeatureStore.Endpoint) == "" {
			return errors.New("feature_store.endpoint must be set when backend is \"minio\"")
		}
		if strings.TrimSpace(c.FeatureStore.Bucket) == "" {
			return errors.New("feature_store.bucket must be set when backend is \"minio\"")
		}
		if strings.TrimSpace(c.FeatureStore.AccessKey) == "" || strings.TrimSpace(c.FeatureStore.SecretKey) == "" {
			return errors.New("feature_store.access_key and feature_store.secret_key must be set when backend is \"minio\"")
		}
	default:
		return fmt.Errorf("feature_store.backend: unsupported value %q", c.FeatureStore.Backend)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
