package main

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"segue/internal/analysis"
	"segue/internal/config"
	"segue/internal/features"
	"segue/internal/jobs"
	"segue/internal/library"
	"segue/internal/logging"
	"segue/internal/manifest"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) newLogger(outputs ...string) (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: outputs,
	})
}

// openRepository builds the configured feature repository: a local directory
// or a minio bucket, optionally fronted by the Redis read-through cache.
func (c *commandContext) openRepository(ctx context.Context, logger *slog.Logger) (features.Repository, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	var repo features.Repository
	switch cfg.FeatureStore.Backend {
	case config.BackendMinio:
		repo, err = features.NewObjectStore(ctx, features.ObjectStoreOptions{
			Endpoint:  cfg.FeatureStore.Endpoint,
			AccessKey: cfg.FeatureStore.AccessKey,
			SecretKey: cfg.FeatureStore.SecretKey,
			Bucket:    cfg.FeatureStore.Bucket,
			Region:    cfg.FeatureStore.Region,
			UseSSL:    cfg.FeatureStore.UseSSL,
		})
	default:
		repo, err = features.NewDirStore(cfg.FeatureStore.Dir)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Redis.Enabled {
		repo = features.NewCachedRepository(repo, features.CacheOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      time.Duration(cfg.Redis.TTLSeconds) * time.Second,
		}, logger)
	}
	return repo, nil
}

func (c *commandContext) openManifestStore() (*manifest.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return manifest.Open(cfg)
}

func (c *commandContext) openJobStore() (*jobs.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return jobs.OpenStore(cfg)
}

func (c *commandContext) newQueue(store *jobs.Store, logger *slog.Logger) (*jobs.Queue, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	poll := time.Duration(cfg.Workflow.QueuePollInterval) * time.Second
	return jobs.NewQueue(store, cfg.Workflow.Workers, poll, logger), nil
}

func (c *commandContext) newExtractor(logger *slog.Logger) (*analysis.Extractor, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	decoder := analysis.NewAutoDecoder(cfg.Analysis.FFmpegCommand)
	timeout := time.Duration(cfg.Analysis.ExtractionTimeout) * time.Second
	return analysis.NewExtractor(decoder, timeout, logger), nil
}

// openLibrary wires the read side used by search and recommendation commands.
func (c *commandContext) openLibrary(ctx context.Context, logger *slog.Logger) (*library.Library, *manifest.Store, error) {
	store, err := c.openManifestStore()
	if err != nil {
		return nil, nil, err
	}
	repo, err := c.openRepository(ctx, logger)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return library.New(store, repo), store, nil
}
