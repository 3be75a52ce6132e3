// Command refresh walks every cached token metadata entry and re-resolves
// it against the metadata provider, paced under the provider's rate limit.
// Run it from cron to keep symbols, names and prices from going stale
// between webhook-driven lookups.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dericksozo/telegram-whale-tracker/internal/config"
	"github.com/dericksozo/telegram-whale-tracker/internal/logger"
	"github.com/dericksozo/telegram-whale-tracker/internal/metadata"
	intRedis "github.com/dericksozo/telegram-whale-tracker/internal/redis"
)

// Flags
var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", logger.F("error", err))
	}

	var output = os.Stdout
	if cfg.Logger.Output == "stderr" {
		output = os.Stderr
	}
	log := logger.New(logger.Config{
		Level:      logger.ParseLevel(cfg.Logger.Level),
		Format:     cfg.Logger.Format,
		Output:     output,
		TimeFormat: cfg.Logger.TimeFormat,
		AppName:    cfg.App.Name + "-refresh",
	})
	logger.SetGlobal(log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	redisClient, err := intRedis.NewClient(intRedis.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	}, log)
	if err != nil {
		log.Fatal("failed to connect to redis", logger.F("error", err))
	}
	defer redisClient.Close()

	cache := metadata.NewCache(redisClient, log)
	if cfg.Metadata.CacheTTL > 0 {
		cache.SetTTL(cfg.Metadata.CacheTTL)
	}
	provider := metadata.NewProvider(metadata.ProviderConfig{
		BaseURL:         cfg.Metadata.BaseURL,
		APIKey:          cfg.Metadata.APIKey,
		Timeout:         cfg.Metadata.Timeout,
		MinCallInterval: cfg.Metadata.MinCallInterval,
	}, log)

	limiter := intRedis.NewRateLimiter(redisClient, log)
	limitCfg := intRedis.RateLimitConfig{
		Key:    "sim:token-info",
		Limit:  2,
		Window: time.Second,
	}

	start := time.Now()
	var scanned, refreshed, dropped, failed int

	err = redisClient.ScanPrefix(ctx, metadata.KeyPrefix(), func(key, value string) error {
		scanned++

		token, chainID, err := metadata.ParseKey(key)
		if err != nil {
			log.Warn("skipping unparsable cache key", logger.F("key", key), logger.F("error", err))
			return nil
		}

		if err := limiter.WaitForSlot(ctx, limitCfg); err != nil {
			return err
		}

		meta, err := provider.TokenInfo(ctx, token, chainID)
		if err != nil {
			failed++
			log.Warn("refresh lookup failed",
				logger.F("token", token),
				logger.F("chain_id", chainID),
				logger.F("error", err),
			)
			return nil
		}
		if !meta.IsValid() {
			// The token fell out of the provider's index; drop the entry so
			// the serving path stops treating it as known.
			dropped++
			if err := redisClient.Del(ctx, key); err != nil {
				log.Warn("failed to drop stale cache entry", logger.F("key", key), logger.F("error", err))
			}
			return nil
		}

		if err := cache.Set(ctx, token, chainID, meta); err != nil {
			failed++
			log.Warn("failed to rewrite cache entry", logger.F("key", key), logger.F("error", err))
			return nil
		}
		refreshed++
		return nil
	})
	if err != nil {
		log.Fatal("refresh aborted", logger.F("error", err))
	}

	log.Info("metadata refresh complete",
		logger.F("scanned", scanned),
		logger.F("refreshed", refreshed),
		logger.F("dropped", dropped),
		logger.F("failed", failed),
		logger.F("duration", time.Since(start).String()),
	)
}
