package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} or $VAR_NAME patterns
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([a-zA-Z_][a-zA-Z0-9_]*)`)

// Config holds all application configuration
type Config struct {
	App      AppConfig      `yaml:"app"`
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Telegram TelegramConfig `yaml:"telegram"`
	Metadata MetadataConfig `yaml:"metadata"`
	Logger   LoggerConfig   `yaml:"logger"`
}

// AppConfig holds application-level configuration
type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port          int    `yaml:"port"`
	WebhookSecret string `yaml:"webhook_secret"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	BotToken        string        `yaml:"bot_token"`
	Timeout         time.Duration `yaml:"timeout"`
	RetryCount      int           `yaml:"retry_count"`
	RateLimitMax    int           `yaml:"rate_limit_max"`
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`
}

// MetadataConfig holds token metadata provider configuration
type MetadataConfig struct {
	BaseURL          string        `yaml:"base_url"`
	APIKey           string        `yaml:"api_key"`
	Timeout          time.Duration `yaml:"timeout"`
	MinCallInterval  time.Duration `yaml:"min_call_interval"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
	FallbackChainIDs []int64       `yaml:"fallback_chain_ids"`
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // json or text
	Output     string `yaml:"output"` // stdout, stderr, or file path
	TimeFormat string `yaml:"time_format"`
}

// Load loads configuration from file and environment variables
// Load order (later overrides earlier):
// 1. Default values
// 2. .env file (if exists) - loaded into process environment
// 3. Process environment variables (already set in shell)
// 4. YAML config file with ${VAR} expansion
// 5. Environment variable overrides (explicit mappings)
func Load(configPath string) (*Config, error) {
	cfg := defaultConfig()

	// Load .env file first (if exists), won't override existing env vars
	loadDotEnv(configPath)

	// Load from YAML file if exists (with env var expansion)
	if configPath != "" {
		if err := loadFromFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Override with environment variables (explicit mappings take precedence)
	loadFromEnv(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads .env file from multiple possible locations
// It does NOT override existing environment variables
func loadDotEnv(configPath string) {
	envPaths := []string{
		".env",       // Current working directory
		".env.local", // Local override
	}

	// Also check relative to config file location
	if configPath != "" {
		configDir := filepath.Dir(configPath)
		envPaths = append(envPaths,
			filepath.Join(configDir, ".env"),
			filepath.Join(configDir, "..", ".env"),
		)
	}

	// godotenv.Load doesn't override existing vars, so loading multiple
	// files is safe
	for _, envPath := range envPaths {
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
		}
	}
}

// defaultConfig returns configuration with default values
func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "telegram-whale-tracker",
			Environment: "development",
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Redis: RedisConfig{
			Host:         "localhost",
			Port:         6379,
			Password:     "",
			DB:           0,
			PoolSize:     10,
			MinIdleConns: 3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Telegram: TelegramConfig{
			Timeout:         30 * time.Second,
			RetryCount:      3,
			RateLimitMax:    30,
			RateLimitWindow: time.Second,
		},
		Metadata: MetadataConfig{
			BaseURL:          "https://api.sim.dune.com/v1/evm",
			Timeout:          10 * time.Second,
			MinCallInterval:  350 * time.Millisecond,
			CacheTTL:         time.Hour,
			FallbackChainIDs: []int64{1, 56, 137, 8453, 42161},
		},
		Logger: LoggerConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			TimeFormat: time.RFC3339,
		},
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist, use defaults
		}
		return err
	}

	// Expand environment variables in YAML content
	expanded := expandEnvVars(string(data))

	return yaml.Unmarshal([]byte(expanded), cfg)
}

// expandEnvVars replaces ${VAR} or $VAR with environment variable values
func expandEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1] // Remove ${ and }
		} else {
			varName = match[1:] // Remove $
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		// Unset env vars become empty (treated as disabled)
		return ""
	})
}

// loadFromEnv overrides configuration with environment variables
func loadFromEnv(cfg *Config) {
	// App
	if v := os.Getenv("APP_NAME"); v != "" {
		cfg.App.Name = v
	}
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Environment = v
	}

	// Server
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("WEBHOOK_SECRET"); v != "" {
		cfg.Server.WebhookSecret = v
	}

	// Redis
	if v := os.Getenv("REDIS_HOST"); v != "" {
		cfg.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.Port = n
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v := os.Getenv("REDIS_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.PoolSize = n
		}
	}

	// Telegram
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_RATE_LIMIT_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Telegram.RateLimitMax = n
		}
	}
	if v := os.Getenv("TELEGRAM_RATE_LIMIT_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Telegram.RateLimitWindow = d
		}
	}

	// Metadata provider
	if v := os.Getenv("SIM_API_URL"); v != "" {
		cfg.Metadata.BaseURL = v
	}
	if v := os.Getenv("SIM_API_KEY"); v != "" {
		cfg.Metadata.APIKey = v
	}
	if v := os.Getenv("SIM_MIN_CALL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Metadata.MinCallInterval = d
		}
	}
	if v := os.Getenv("METADATA_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Metadata.CacheTTL = d
		}
	}
	// FALLBACK_CHAIN_IDS: comma-separated chain ids tried in order
	// Example: FALLBACK_CHAIN_IDS=1,56,8453
	if v := os.Getenv("FALLBACK_CHAIN_IDS"); v != "" {
		if ids := parseChainIDs(v); len(ids) > 0 {
			cfg.Metadata.FallbackChainIDs = ids
		}
	}

	// Logger
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("LOG_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
}

// parseChainIDs parses a comma-separated chain id list
func parseChainIDs(value string) []int64 {
	parts := strings.Split(value, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Redis.Host == "" {
		return fmt.Errorf("redis host is required")
	}
	if c.Metadata.BaseURL == "" {
		return fmt.Errorf("metadata base_url is required")
	}
	for i, id := range c.Metadata.FallbackChainIDs {
		if id <= 0 {
			return fmt.Errorf("fallback_chain_ids[%d]: invalid chain id %d", i, id)
		}
	}

	// Telegram is optional - alerts are skipped if not configured
	return nil
}

// IsTelegramEnabled returns true if Telegram is configured
func (c *Config) IsTelegramEnabled() bool {
	return c.Telegram.BotToken != ""
}
