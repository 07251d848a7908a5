// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	PlansURL        string        `yaml:"plans_url"` // upsell target
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type GatewayConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	APIKey  string        `yaml:"api_key"` // service key for unauthenticated calls (plan catalog)
}

type SettlementConfig struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	PollCeiling       time.Duration `yaml:"poll_ceiling"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	StaleAfter        time.Duration `yaml:"stale_after"`
	CancelWorkers     int           `yaml:"cancel_workers"`
	Currency          string        `yaml:"currency"`
}

type AccessConfig struct {
	Freshness             time.Duration `yaml:"freshness"`
	DefaultMaxFreeModules int           `yaml:"default_max_free_modules"`
	CacheTTL              time.Duration `yaml:"cache_ttl"`
	PlanCacheTTL          time.Duration `yaml:"plan_cache_ttl"`
}

type RateLimitConfig struct {
	CheckoutPerMinute int `yaml:"checkout_per_minute"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Settlement SettlementConfig `yaml:"settlement"`
	Access     AccessConfig     `yaml:"access"`
	Auth       AuthConfig       `yaml:"auth"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, then lets the environment (and an
// optional .env next to the binary) override secrets.
func LoadConfig(path string, dev bool) (*Config, error) {
	_ = godotenv.Load() // .env is optional

	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&cfg.Database.URL, "DATABASE_URL")
	override(&cfg.Redis.URL, "REDIS_URL")
	override(&cfg.Redis.Password, "REDIS_PASSWORD")
	override(&cfg.Gateway.BaseURL, "GATEWAY_BASE_URL")
	override(&cfg.Gateway.APIKey, "GATEWAY_API_KEY")
	override(&cfg.Auth.JWTSecret, "AUTH_JWT_SECRET")
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 15 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout <= 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if cfg.HTTP.PlansURL == "" {
		cfg.HTTP.PlansURL = "/plans"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Gateway.Timeout <= 0 {
		cfg.Gateway.Timeout = 15 * time.Second
	}
	if cfg.Settlement.PollInterval <= 0 {
		cfg.Settlement.PollInterval = 3 * time.Second
	}
	if cfg.Settlement.PollCeiling <= 0 {
		cfg.Settlement.PollCeiling = 5 * time.Minute
	}
	if cfg.Settlement.ReconcileInterval <= 0 {
		cfg.Settlement.ReconcileInterval = time.Minute
	}
	if cfg.Settlement.StaleAfter <= 0 {
		cfg.Settlement.StaleAfter = 10 * time.Minute
	}
	if cfg.Settlement.CancelWorkers <= 0 {
		cfg.Settlement.CancelWorkers = 4
	}
	if cfg.Settlement.Currency == "" {
		cfg.Settlement.Currency = "VND"
	}
	if cfg.Access.Freshness <= 0 {
		cfg.Access.Freshness = 30 * time.Second
	}
	if cfg.Access.DefaultMaxFreeModules <= 0 {
		cfg.Access.DefaultMaxFreeModules = 2
	}
	if cfg.Access.CacheTTL <= 0 {
		cfg.Access.CacheTTL = 24 * time.Hour
	}
	if cfg.RateLimit.CheckoutPerMinute <= 0 {
		cfg.RateLimit.CheckoutPerMinute = 10
	}
	if cfg.Access.PlanCacheTTL <= 0 {
		cfg.Access.PlanCacheTTL = time.Hour
	}
}

// Validate performs the minimal checks needed to boot.
func (c *Config) Validate() error {
	if c.Gateway.BaseURL == "" {
		return errors.New("gateway.base_url is required")
	}
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Settlement.PollCeiling < c.Settlement.PollInterval {
		return errors.New("settlement.poll_ceiling must not be shorter than poll_interval")
	}
	return nil
}
