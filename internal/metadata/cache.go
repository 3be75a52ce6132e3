package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dericksozo/telegram-whale-tracker/internal/logger"
	"github.com/dericksozo/telegram-whale-tracker/pkg/models"
)

const (
	// cacheKeyPrefix is the prefix for token metadata cache keys
	cacheKeyPrefix = "token:meta:"
	// cacheTTL bounds how long a metadata entry is served without a fresh
	// lookup, to tolerate upstream metadata corrections.
	cacheTTL = time.Hour
)

// CacheStore is the slice of the idempotency store the cache needs.
type CacheStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key string, value string, ttl time.Duration) error
}

// cachedEntry wraps metadata with its write time so staleness is enforced
// even if the backing store ignores TTLs.
type cachedEntry struct {
	Metadata  models.TokenMetadata `json:"metadata"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Cache is a read-through TTL cache for token metadata, keyed by the
// lookup target (token address, chain id hint).
type Cache struct {
	store CacheStore
	log   logger.Logger
	ttl   time.Duration
}

// NewCache creates a token metadata cache.
func NewCache(store CacheStore, log logger.Logger) *Cache {
	return &Cache{
		store: store,
		log:   log.With(logger.F("component", "metadata-cache")),
		ttl:   cacheTTL,
	}
}

// SetTTL overrides the entry lifetime (used by tests and the refresh job).
func (c *Cache) SetTTL(ttl time.Duration) {
	c.ttl = ttl
}

// Key builds the cache key for a lookup target.
func Key(tokenAddress string, chainID int64) string {
	return fmt.Sprintf("%s%d:%s", cacheKeyPrefix, chainID, tokenAddress)
}

// KeyPrefix returns the namespace all metadata cache entries live under.
func KeyPrefix() string {
	return cacheKeyPrefix
}

// ParseKey recovers the lookup target from a cache key. The bulk refresh
// job uses this to re-resolve every cached token.
func ParseKey(key string) (tokenAddress string, chainID int64, err error) {
	rest, found := strings.CutPrefix(key, cacheKeyPrefix)
	if !found {
		return "", 0, fmt.Errorf("not a metadata cache key: %s", key)
	}
	chainPart, token, found := strings.Cut(rest, ":")
	if !found || token == "" {
		return "", 0, fmt.Errorf("malformed metadata cache key: %s", key)
	}
	id, err := strconv.ParseInt(chainPart, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed chain id in cache key %s: %w", key, err)
	}
	return token, id, nil
}

// Get retrieves cached metadata for a lookup target.
// Returns nil if not found, expired, or invalid.
func (c *Cache) Get(ctx context.Context, tokenAddress string, chainID int64) (*models.TokenMetadata, error) {
	raw, ok, err := c.store.Get(ctx, Key(tokenAddress, chainID))
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata cache entry: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var entry cachedEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata cache entry: %w", err)
	}

	if time.Since(entry.UpdatedAt) >= c.ttl {
		c.log.Debug("metadata cache entry too old",
			logger.F("token", tokenAddress),
			logger.F("chain_id", chainID),
			logger.F("age_seconds", time.Since(entry.UpdatedAt).Seconds()),
		)
		return nil, nil
	}

	if !entry.Metadata.IsValid() {
		return nil, nil
	}

	return &entry.Metadata, nil
}

// Set caches a valid metadata result. Invalid results are refused; they
// must be treated as not-found and never served from cache.
func (c *Cache) Set(ctx context.Context, tokenAddress string, chainID int64, meta *models.TokenMetadata) error {
	if !meta.IsValid() {
		return fmt.Errorf("refusing to cache invalid metadata for %s", tokenAddress)
	}

	entry := cachedEntry{
		Metadata:  *meta,
		UpdatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata cache entry: %w", err)
	}

	if err := c.store.Put(ctx, Key(tokenAddress, chainID), string(data), c.ttl); err != nil {
		return fmt.Errorf("failed to cache metadata: %w", err)
	}

	c.log.Debug("metadata cached",
		logger.F("token", tokenAddress),
		logger.F("chain_id", chainID),
		logger.F("symbol", meta.Symbol),
	)

	return nil
}
