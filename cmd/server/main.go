package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dericksozo/telegram-whale-tracker/internal/broadcast"
	"github.com/dericksozo/telegram-whale-tracker/internal/config"
	"github.com/dericksozo/telegram-whale-tracker/internal/handler"
	"github.com/dericksozo/telegram-whale-tracker/internal/logger"
	"github.com/dericksozo/telegram-whale-tracker/internal/metadata"
	"github.com/dericksozo/telegram-whale-tracker/internal/recorder"
	intRedis "github.com/dericksozo/telegram-whale-tracker/internal/redis"
	"github.com/dericksozo/telegram-whale-tracker/internal/subscribers"
	"github.com/dericksozo/telegram-whale-tracker/internal/telegram"
	"github.com/dericksozo/telegram-whale-tracker/internal/web"
)

// Flags
var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")
)

// Application holds all application components
type Application struct {
	cfg         *config.Config
	log         logger.Logger
	redisClient *intRedis.Client
	rateLimiter *intRedis.RateLimiter
	notifier    *telegram.Notifier
	directory   *subscribers.Directory
	poller      *telegram.CommandPoller
	webServer   *web.Server

	pollerDone chan struct{}
}

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", logger.F("error", err))
	}

	// Initialize logger
	log := initLogger(cfg)
	log.Info("starting whale tracker",
		logger.F("app", cfg.App.Name),
		logger.F("env", cfg.App.Environment),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := &Application{cfg: cfg, log: log}
	if err := app.initialize(ctx); err != nil {
		log.Fatal("failed to initialize application", logger.F("error", err))
	}

	app.start(ctx)

	// Wait for shutdown signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	sig := <-shutdown
	log.Info("shutdown signal received", logger.F("signal", sig.String()))

	// Graceful shutdown
	app.shutdown(cancel)
}

// initialize initializes all application components
func (app *Application) initialize(ctx context.Context) error {
	cfg := app.cfg
	log := app.log

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
		return err
	}
	app.redisClient = redisClient
	app.rateLimiter = intRedis.NewRateLimiter(redisClient, log)

	app.notifier = telegram.NewNotifier(telegram.Config{
		BotToken:   cfg.Telegram.BotToken,
		Timeout:    cfg.Telegram.Timeout,
		RetryCount: cfg.Telegram.RetryCount,
	}, log)

	app.directory = subscribers.NewDirectory(redisClient, log)
	app.poller = telegram.NewCommandPoller(app.notifier, app.directory, log)

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
	enricher := metadata.NewEnricher(cache, provider, log)

	broadcaster := broadcast.NewBroadcaster(
		app.notifier,
		app.directory,
		app.rateLimiter,
		intRedis.RateLimitConfig{
			Key:    "telegram:send",
			Limit:  cfg.Telegram.RateLimitMax,
			Window: cfg.Telegram.RateLimitWindow,
		},
		log,
	)

	rec := recorder.New(redisClient, log)
	svc := handler.New(rec, enricher, telegram.NewFormatter(), broadcaster, cfg.Metadata.FallbackChainIDs, log)

	app.webServer = web.NewServer(web.Config{
		Port:          cfg.Server.Port,
		WebhookSecret: cfg.Server.WebhookSecret,
	}, svc, log)

	return nil
}

// start starts the web server and the command poller
func (app *Application) start(ctx context.Context) {
	go func() {
		if err := app.webServer.Start(); err != nil {
			app.log.Fatal("web server failed", logger.F("error", err))
		}
	}()

	app.pollerDone = make(chan struct{})
	go func() {
		defer close(app.pollerDone)
		app.poller.Run(ctx)
	}()
}

// shutdown gracefully shuts down all components
func (app *Application) shutdown(cancel context.CancelFunc) {
	app.log.Info("starting graceful shutdown")

	// Cancel main context first to stop the command poller
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.webServer.Shutdown(shutdownCtx); err != nil {
			app.log.Error("web server shutdown failed", logger.F("error", err))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-app.pollerDone:
		case <-shutdownCtx.Done():
			app.log.Warn("command poller did not stop in time")
		}
	}()

	wg.Wait()

	if err := app.redisClient.Close(); err != nil {
		app.log.Error("redis close failed", logger.F("error", err))
	}

	app.log.Info("shutdown complete")
}

func initLogger(cfg *config.Config) logger.Logger {
	var output = os.Stdout
	if cfg.Logger.Output == "stderr" {
		output = os.Stderr
	}

	log := logger.New(logger.Config{
		Level:      logger.ParseLevel(cfg.Logger.Level),
		Format:     cfg.Logger.Format,
		Output:     output,
		TimeFormat: cfg.Logger.TimeFormat,
		AppName:    cfg.App.Name,
	})

	logger.SetGlobal(log)
	return log
}
