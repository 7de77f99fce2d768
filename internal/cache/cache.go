// Package cache implements the volatile lookup layer over Redis.
//
// It holds exactly three relations: short:<code> → original URL,
// original:<url> → the cached shorten payload, and a precomputed analytics
// summary. Entries are advisory, the durable store stays authoritative.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mvoronin/url-shortener/internal/config"
	"github.com/mvoronin/url-shortener/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	shortKeyPrefix    = "short:"
	originalKeyPrefix = "original:"
	analyticsKey      = "analytics"
)

const (
	// urlTTL bounds how long URL lookup entries live without invalidation.
	urlTTL = time.Hour
	// analyticsTTL is the outer staleness bound for the analytics summary.
	analyticsTTL = time.Minute
)

// ErrCacheMiss is returned when the requested key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// URLEntry is the payload cached under original:<url>.
type URLEntry struct {
	ShortURL    string `json:"shortUrl"`
	OriginalURL string `json:"originalUrl"`
	ShortCode   string `json:"shortCode"`
}

// Cache is a Redis-backed implementation of the volatile cache.
type Cache struct {
	client *redis.Client
}

// New connects to Redis and verifies connectivity with a ping.
func New(ctx context.Context, cfg config.Redis) (*Cache, error) {
	const op = "cache.New"

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: failed to connect to redis: %w", op, err)
	}

	return &Cache{client: client}, nil
}

// Close closes the underlying Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// GetOriginalURL returns the original URL cached under short:<code>.
func (c *Cache) GetOriginalURL(ctx context.Context, shortCode string) (string, error) {
	const op = "cache.Cache.GetOriginalURL"

	target, err := c.client.Get(ctx, shortKeyPrefix+shortCode).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("%s: %w", op, ErrCacheMiss)
		}

		return "", fmt.Errorf("%s: failed to get key: %w", op, err)
	}

	return target, nil
}

// SetOriginalURL caches the original URL under short:<code> with the URL TTL.
func (c *Cache) SetOriginalURL(ctx context.Context, shortCode, originalURL string) error {
	const op = "cache.Cache.SetOriginalURL"

	if err := c.client.Set(ctx, shortKeyPrefix+shortCode, originalURL, urlTTL).Err(); err != nil {
		return fmt.Errorf("%s: failed to set key: %w", op, err)
	}

	return nil
}

// GetURLEntry returns the shorten payload cached under original:<url>.
func (c *Cache) GetURLEntry(ctx context.Context, originalURL string) (*URLEntry, error) {
	const op = "cache.Cache.GetURLEntry"

	data, err := c.client.Get(ctx, originalKeyPrefix+originalURL).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s: %w", op, ErrCacheMiss)
		}

		return nil, fmt.Errorf("%s: failed to get key: %w", op, err)
	}

	entry := new(URLEntry)
	if err := json.Unmarshal(data, entry); err != nil {
		return nil, fmt.Errorf("%s: failed to unmarshal entry: %w", op, err)
	}

	return entry, nil
}

// SetURLEntry caches the shorten payload under original:<url> with the URL TTL.
func (c *Cache) SetURLEntry(ctx context.Context, entry *URLEntry) error {
	const op = "cache.Cache.SetURLEntry"

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%s: failed to marshal entry: %w", op, err)
	}

	if err := c.client.Set(ctx, originalKeyPrefix+entry.OriginalURL, data, urlTTL).Err(); err != nil {
		return fmt.Errorf("%s: failed to set key: %w", op, err)
	}

	return nil
}

// GetAnalytics returns the cached analytics summary.
func (c *Cache) GetAnalytics(ctx context.Context) (*models.AnalyticsSummary, error) {
	const op = "cache.Cache.GetAnalytics"

	data, err := c.client.Get(ctx, analyticsKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s: %w", op, ErrCacheMiss)
		}

		return nil, fmt.Errorf("%s: failed to get key: %w", op, err)
	}

	summary := new(models.AnalyticsSummary)
	if err := json.Unmarshal(data, summary); err != nil {
		return nil, fmt.Errorf("%s: failed to unmarshal summary: %w", op, err)
	}

	return summary, nil
}

// SetAnalytics caches the analytics summary with the analytics TTL.
func (c *Cache) SetAnalytics(ctx context.Context, summary *models.AnalyticsSummary) error {
	const op = "cache.Cache.SetAnalytics"

	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("%s: failed to marshal summary: %w", op, err)
	}

	if err := c.client.Set(ctx, analyticsKey, data, analyticsTTL).Err(); err != nil {
		return fmt.Errorf("%s: failed to set key: %w", op, err)
	}

	return nil
}

// InvalidateAnalytics deletes the analytics summary so the next read
// recomputes it from the durable store.
func (c *Cache) InvalidateAnalytics(ctx context.Context) error {
	const op = "cache.Cache.InvalidateAnalytics"

	if err := c.client.Del(ctx, analyticsKey).Err(); err != nil {
		return fmt.Errorf("%s: failed to delete key: %w", op, err)
	}

	return nil
}
