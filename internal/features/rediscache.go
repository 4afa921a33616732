package features

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"segue/internal/logging"
)

// CachedRepository wraps a Repository with a read-through Redis cache. Cache
// failures degrade to the underlying repository and are logged at debug level;
// the cache never changes observable semantics.
type CachedRepository struct {
	inner  Repository
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// CacheOptions configures the Redis connection and entry lifetime.
type CacheOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewCachedRepository wraps inner with a Redis cache.
func NewCachedRepository(inner Repository, opts CacheOptions, logger *slog.Logger) *CachedRepository {
	return &CachedRepository{
		inner: inner,
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		ttl:    opts.TTL,
		logger: logging.NewComponentLogger(logger, "feature-cache"),
	}
}

// Close releases the Redis connection.
func (c *CachedRepository) Close() error {
	return c.client.Close()
}

type cachedEntry struct {
	Summary  json.RawMessage `json:"summary"`
	Bars     []byte          `json:"bars"`
	Phrases  []byte          `json:"phrases"`
	Waveform []byte          `json:"waveform"`
}

func cacheKey(trackID string) string {
	return "segue:features:" + trackID
}

// Save writes through to the inner repository and refreshes the cache entry.
func (c *CachedRepository) Save(ctx context.Context, trackID string, set *FeatureSet, summary *Summary) error {
	if err := c.inner.Save(ctx, trackID, set, summary); err != nil {
		return err
	}
	if err := c.put(ctx, trackID, set, summary); err != nil {
		c.logger.Debug("cache put failed", logging.String(logging.FieldTrackID, trackID), logging.Error(err))
	}
	return nil
}

// Load returns the cached artifacts when present, falling back to the inner
// repository and populating the cache on a miss.
func (c *CachedRepository) Load(ctx context.Context, trackID string) (*FeatureSet, *Summary, error) {
	if set, summary, err := c.get(ctx, trackID); err == nil {
		return set, summary, nil
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Debug("cache get failed", logging.String(logging.FieldTrackID, trackID), logging.Error(err))
	}

	set, summary, err := c.inner.Load(ctx, trackID)
	if err != nil {
		return nil, nil, err
	}
	if err := c.put(ctx, trackID, set, summary); err != nil {
		c.logger.Debug("cache put failed", logging.String(logging.FieldTrackID, trackID), logging.Error(err))
	}
	return set, summary, nil
}

// Exists consults the cache before the inner repository.
func (c *CachedRepository) Exists(ctx context.Context, trackID string) (bool, error) {
	n, err := c.client.Exists(ctx, cacheKey(trackID)).Result()
	if err == nil && n > 0 {
		return true, nil
	}
	return c.inner.Exists(ctx, trackID)
}

func (c *CachedRepository) put(ctx context.Context, trackID string, set *FeatureSet, summary *Summary) error {
	objects, err := encodeObjects(set, summary)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(cachedEntry{
		Summary:  objects[objectSummary],
		Bars:     objects[objectBarVectors],
		Phrases:  objects[objectPhraseVectors],
		Waveform: objects[objectWaveform],
	})
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	return c.client.Set(ctx, cacheKey(trackID), payload, c.ttl).Err()
}

func (c *CachedRepository) get(ctx context.Context, trackID string) (*FeatureSet, *Summary, error) {
	payload, err := c.client.Get(ctx, cacheKey(trackID)).Bytes()
	if err != nil {
		return nil, nil, err
	}
	var entry cachedEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil, nil, fmt.Errorf("unmarshal cache entry: %w", err)
	}
	return decodeObjects(trackID, entry.Summary, entry.Bars, entry.Phrases, entry.Waveform)
}
