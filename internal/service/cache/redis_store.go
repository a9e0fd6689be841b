package cache

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/kapu/astrofm-go/internal/constants"
	apperrors "github.com/kapu/astrofm-go/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore shares cache entries between service instances. Entries are
// gzip-compressed JSON envelopes; the Redis TTL ends with the validity window
// but the calendar check on read stays authoritative.
type RedisStore struct {
	client    *redis.Client
	clock     Clock
	prefix    string
	opTimeout time.Duration
	logger    *zap.Logger
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func NewRedisStore(cfg RedisConfig, clock Clock, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		// lets the per-operation deadline bound socket reads and writes
		ContextTimeoutEnabled: true,
	})

	ctx, cancel := context.WithTimeout(context.Background(), constants.RedisConfig.ReadyTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, apperrors.NewCacheError("failed to connect to Redis", "ping", "", err)
	}

	logger.Info("Redis connected",
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		zap.Int("db", cfg.DB),
	)

	return NewRedisStoreFromClient(client, clock, logger), nil
}

// NewRedisStoreFromClient wraps an existing client without pinging it.
func NewRedisStoreFromClient(client *redis.Client, clock Clock, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		client:    client,
		clock:     clock,
		prefix:    constants.RedisConfig.KeyPrefix,
		opTimeout: constants.RedisConfig.OpTimeout,
		logger:    logger,
	}
}

// opContext bounds a single Redis round trip. A slow cache is treated like a
// failed one so slices fall through to the remote fetch.
func (c *RedisStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.opTimeout)
}

func (c *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	opCtx, cancel := c.opContext(ctx)
	value, err := c.client.Get(opCtx, c.prefix+key).Bytes()
	cancel()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		c.logger.Error("Cache get failed", zap.String("key", key), zap.Error(err))
		return nil, apperrors.NewCacheError("get failed", "get", key, err)
	}

	raw, err := decompress(value)
	if err != nil {
		c.logger.Warn("Dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		c.evict(ctx, key)
		return nil, ErrMiss
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Warn("Dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		c.evict(ctx, key)
		return nil, ErrMiss
	}

	if !entry.Validity.Fresh(entry.StoredAt, c.clock.now(), c.clock.location()) {
		c.evict(ctx, key)
		return nil, ErrMiss
	}

	return &entry, nil
}

func (c *RedisStore) Put(ctx context.Context, key string, payload []byte, validity Validity) error {
	now := c.clock.now()
	jsonData, err := json.Marshal(Entry{
		Key:      key,
		Payload:  payload,
		Validity: validity,
		StoredAt: now,
	})
	if err != nil {
		return apperrors.NewCacheError("marshal failed", "put", key, err)
	}

	compressed, err := compress(jsonData)
	if err != nil {
		return apperrors.NewCacheError("compress failed", "put", key, err)
	}

	opCtx, cancel := c.opContext(ctx)
	defer cancel()
	if err := c.client.Set(opCtx, c.prefix+key, compressed, windowTTL(validity, now, c.clock.location())).Err(); err != nil {
		c.logger.Error("Cache set failed", zap.String("key", key), zap.Error(err))
		return apperrors.NewCacheError("set failed", "put", key, err)
	}
	return nil
}

func (c *RedisStore) Invalidate(ctx context.Context, key string) error {
	opCtx, cancel := c.opContext(ctx)
	defer cancel()
	if err := c.client.Del(opCtx, c.prefix+key).Err(); err != nil {
		c.logger.Error("Cache delete failed", zap.String("key", key), zap.Error(err))
		return apperrors.NewCacheError("delete failed", "invalidate", key, err)
	}
	return nil
}

// Clear removes every entry under the store's prefix.
func (c *RedisStore) Clear(ctx context.Context) (int, error) {
	removed := 0
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		opCtx, cancel := c.opContext(ctx)
		err := c.client.Del(opCtx, iter.Val()).Err()
		cancel()
		if err != nil {
			return removed, apperrors.NewCacheError("delete failed", "clear", iter.Val(), err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, apperrors.NewCacheError("scan failed", "clear", c.prefix, err)
	}
	return removed, nil
}

func (c *RedisStore) IsConnected(ctx context.Context) bool {
	opCtx, cancel := c.opContext(ctx)
	defer cancel()
	return c.client.Ping(opCtx).Err() == nil
}

func (c *RedisStore) Close() error {
	if err := c.client.Close(); err != nil {
		c.logger.Error("Failed to close Redis connection", zap.Error(err))
		return err
	}
	c.logger.Info("Redis disconnected")
	return nil
}

func (c *RedisStore) evict(ctx context.Context, key string) {
	opCtx, cancel := c.opContext(ctx)
	defer cancel()
	if err := c.client.Del(opCtx, c.prefix+key).Err(); err != nil {
		c.logger.Warn("Lazy eviction failed", zap.String("key", key), zap.Error(err))
	}
}

// windowTTL is the Redis expiry matching the validity window; 0 keeps the key.
func windowTTL(validity Validity, now time.Time, loc *time.Location) time.Duration {
	expires := validity.ExpiresAt(now, loc)
	if expires.IsZero() {
		return 0
	}
	ttl := expires.Sub(now)
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func compress(data []byte) ([]byte, error) {
	var b bytes.Buffer
	w := gzip.NewWriter(&b)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
