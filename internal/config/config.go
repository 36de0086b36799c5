package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/smartcompare/compare-cli/internal/cache"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Serper    SerperConfig    `yaml:"serper" mapstructure:"serper"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Resolve   ResolveConfig   `yaml:"resolve" mapstructure:"resolve"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Retailer  RetailerConfig  `yaml:"retailer" mapstructure:"retailer"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the cache/analytics backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	RedisAddr   string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisDB     int    `yaml:"redis_db" mapstructure:"redis_db"`
}

// SerperConfig holds Serper search API settings.
type SerperConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateRPS   float64 `yaml:"rate_rps" mapstructure:"rate_rps"`
	RateBurst int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ResolveConfig tunes the resolution pipeline.
type ResolveConfig struct {
	Region            string  `yaml:"region" mapstructure:"region"`
	HighValueFloorBHD float64 `yaml:"high_value_floor_bhd" mapstructure:"high_value_floor_bhd"`
	ResultsPerSearch  int     `yaml:"results_per_search" mapstructure:"results_per_search"`
}

// CacheConfig holds per-facet cache lifetimes.
type CacheConfig struct {
	Price    time.Duration `yaml:"price" mapstructure:"price"`
	Estimate time.Duration `yaml:"estimate" mapstructure:"estimate"`
	Specs    time.Duration `yaml:"specs" mapstructure:"specs"`
	Rating   time.Duration `yaml:"rating" mapstructure:"rating"`
	Reviews  time.Duration `yaml:"reviews" mapstructure:"reviews"`
}

// RetailerConfig points at an optional tier-table override.
type RetailerConfig struct {
	TablePath string `yaml:"table_path" mapstructure:"table_path"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SMARTCOMPARE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "smartcompare.db")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("serper.base_url", "https://google.serper.dev")
	v.SetDefault("serper.rate_rps", 5.0)
	v.SetDefault("serper.rate_burst", 10)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("resolve.region", "BH")
	v.SetDefault("resolve.high_value_floor_bhd", 100.0)
	v.SetDefault("resolve.results_per_search", 10)
	v.SetDefault("cache.price", "24h")
	v.SetDefault("cache.estimate", "12h")
	v.SetDefault("cache.specs", "168h")
	v.SetDefault("cache.rating", "24h")
	v.SetDefault("cache.reviews", "168h")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration can support the given mode.
// Modes: "compare" (CLI resolution), "serve" (HTTP API).
func (c *Config) Validate(mode string) error {
	var problems []string

	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	switch c.Store.Driver {
	case "sqlite":
		check(c.Store.SQLitePath != "", "store.sqlite_path is required for the sqlite driver")
	case "postgres":
		check(c.Store.DatabaseURL != "", "store.database_url is required for the postgres driver")
	case "redis":
		check(c.Store.RedisAddr != "", "store.redis_addr is required for the redis driver")
	case "none":
		// Cache disabled; every run hits the sources.
	default:
		problems = append(problems, "store.driver must be one of sqlite, postgres, redis, none")
	}

	check(c.Serper.Key != "", "serper.key is required")
	check(c.Anthropic.Key != "", "anthropic.key is required")
	check(c.Resolve.HighValueFloorBHD >= 0, "resolve.high_value_floor_bhd must be >= 0")
	check(c.Resolve.ResultsPerSearch >= 1 && c.Resolve.ResultsPerSearch <= 100,
		"resolve.results_per_search must be between 1 and 100")

	switch mode {
	case "compare":
	case "serve":
		check(c.Server.Port > 0, "server.port must be > 0")
	default:
		problems = append(problems, "unknown mode "+mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

// TTLs converts the cache section into the pipeline's facet lifetimes.
func (c CacheConfig) TTLs() cache.TTLs {
	return cache.TTLs{
		Price:    c.Price,
		Estimate: c.Estimate,
		Specs:    c.Specs,
		Rating:   c.Rating,
		Reviews:  c.Reviews,
	}
}
