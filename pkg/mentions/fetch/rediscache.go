package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/otherjamesbrown/mentionkit/config"
	"github.com/otherjamesbrown/mentionkit/pkg/logging"
	"github.com/otherjamesbrown/mentionkit/pkg/mentions"
	"github.com/otherjamesbrown/mentionkit/pkg/mentions/directory"
)

// RedisCache is a read-through cache in front of another fetcher. Only
// successful results are stored. Redis failures are logged and the inner
// fetcher is used as if the entry were missing.
type RedisCache struct {
	client redis.Cmdable
	inner  directory.Fetcher
	ttl    time.Duration
	prefix string
	log    logging.Logger
}

// RedisOption configures a RedisCache.
type RedisOption func(*RedisCache)

// WithTTL sets how long cached scopes live.
func WithTTL(ttl time.Duration) RedisOption {
	return func(c *RedisCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithKeyPrefix sets the Redis key prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(c *RedisCache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithRedisLogger sets the cache logger.
func WithRedisLogger(l logging.Logger) RedisOption {
	return func(c *RedisCache) { c.log = l }
}

// NewRedisCache wraps inner.
func NewRedisCache(client redis.Cmdable, inner directory.Fetcher, opts ...RedisOption) *RedisCache {
	c := &RedisCache{
		client: client,
		inner:  inner,
		ttl:    config.DefaultRedisTTL,
		prefix: config.DefaultRedisKeyPrefix,
		log:    logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewRedisClient connects to the configured Redis and pings it.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("testing redis connection: %w", err)
	}
	return client, nil
}

// Key returns the Redis key for scope.
func (c *RedisCache) Key(scope string) string {
	return c.prefix + scope
}

// FetchMentionCandidates implements directory.Fetcher.
func (c *RedisCache) FetchMentionCandidates(ctx context.Context, scope string) (*directory.FetchResult, error) {
	log := c.log.With(logging.F("scope", scope))

	if cached, ok := c.get(ctx, scope, log); ok {
		return &directory.FetchResult{Success: true, Data: cached}, nil
	}

	res, err := c.inner.FetchMentionCandidates(ctx, scope)
	if err != nil || res == nil || !res.Success {
		return res, err
	}

	c.set(ctx, scope, res.Data, log)
	return res, nil
}

// Invalidate drops the cached entry for scope.
func (c *RedisCache) Invalidate(ctx context.Context, scope string) error {
	if err := c.client.Del(ctx, c.Key(scope)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate %s: %w", c.Key(scope), err)
	}
	return nil
}

func (c *RedisCache) get(ctx context.Context, scope string, log logging.Logger) ([]mentions.Candidate, bool) {
	raw, err := c.client.Get(ctx, c.Key(scope)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		log.Warn("redis read failed, falling through", logging.Err(err))
		return nil, false
	}

	var out []mentions.Candidate
	if err := json.Unmarshal(raw, &out); err != nil {
		log.Warn("discarding unreadable cache entry", logging.Err(err))
		return nil, false
	}
	if out == nil {
		out = []mentions.Candidate{}
	}
	return out, true
}

func (c *RedisCache) set(ctx context.Context, scope string, data []mentions.Candidate, log logging.Logger) {
	if data == nil {
		data = []mentions.Candidate{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		log.Warn("could not encode candidates for cache", logging.Err(err))
		return
	}
	if err := c.client.Set(ctx, c.Key(scope), raw, c.ttl).Err(); err != nil {
		log.Warn("redis write failed", logging.Err(err))
	}
}
