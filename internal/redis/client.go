package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dericksozo/telegram-whale-tracker/internal/logger"
)

// Config holds Redis connection configuration
type Config struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Client wraps the Redis client. It is the single shared store behind raw
// delivery records, the token metadata cache, and subscriber records, so
// every uniqueness-sensitive write goes through PutIfAbsent (SETNX) rather
// than a read-then-write sequence.
type Client struct {
	rdb *redis.Client
	log logger.Logger
}

// buildRedisAddr constructs Redis address from host and port.
// If host already contains a port (e.g., "host:port"), use it as-is.
func buildRedisAddr(host string, port int) string {
	if strings.Contains(host, ":") {
		return host
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// NewClient creates a new Redis client and verifies the connection.
func NewClient(cfg Config, log logger.Logger) (*Client, error) {
	addr := buildRedisAddr(cfg.Host, cfg.Port)

	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	client := &Client{
		rdb: rdb,
		log: log.With(logger.F("component", "redis")),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	client.log.Info("redis connected successfully",
		logger.F("addr", addr),
		logger.F("db", cfg.DB),
	)

	return client, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	c.log.Info("closing redis connection")
	return c.rdb.Close()
}

// Ping checks if Redis is available
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// PutIfAbsent stores a key only if it does not exist, as a single atomic
// check-and-set. ttl of 0 means no expiration. Returns true when this call
// inserted the key.
func (c *Client) PutIfAbsent(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, value, ttl).Result()
}

// Put sets a key-value pair with optional expiration (0 = no expiry)
func (c *Client) Put(ctx context.Context, key string, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Get retrieves a value by key. A missing key returns ("", false, nil).
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Del deletes one or more keys
func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

// ScanPrefix walks all keys under a prefix and calls fn with each key and
// its value. It uses cursor-based SCAN so each round trip is finite and the
// walk is restartable; keys written concurrently may or may not be seen.
// A key deleted between SCAN and GET is skipped.
func (c *Client) ScanPrefix(ctx context.Context, prefix string, fn func(key, value string) error) error {
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("scan %q: %w", prefix, err)
		}

		for _, key := range keys {
			val, err := c.rdb.Get(ctx, key).Result()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return fmt.Errorf("get %q: %w", key, err)
			}
			if err := fn(key, val); err != nil {
				return err
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Eval runs a Lua script (used by the rate limiter).
func (c *Client) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return c.rdb.Eval(ctx, script, keys, args...).Result()
}
