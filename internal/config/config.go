// Package config loads server settings from an optional env file and CCX_* variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment variable, e.g. CCX_ADDR
const EnvPrefix = "CCX"

// DefaultFiles are tried in order when Load is given no explicit file
var DefaultFiles = []string{"ccx.env", ".env"}

// Config holds everything cmd/server needs to wire the exchange
type Config struct {
	Addr              string
	DatabaseURL       string
	JWTSecret         string
	JWTIssuer         string
	RedisAddr         string
	RateLimitBurst    int64
	RateLimitRefill   float64
	TradeLogCap       int
	BookDepth         int
	BroadcastInterval time.Duration
	OpenPrice         decimal.Decimal
	LastPrice         decimal.Decimal
	SeedMarket        bool
	AllowedOrigins    []string
}

// AuthEnabled reports whether bearer tokens are required
func (c *Config) AuthEnabled() bool { return c.JWTSecret != "" }

// JournalEnabled reports whether trades are written to Postgres
func (c *Config) JournalEnabled() bool { return c.DatabaseURL != "" }

// RateLimitEnabled reports whether order placement is rate limited
func (c *Config) RateLimitEnabled() bool { return c.RedisAddr != "" }

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("database_url", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_issuer", "ccx")
	v.SetDefault("redis_addr", "")
	v.SetDefault("rate_limit_burst", 20)
	v.SetDefault("rate_limit_refill", 5.0)
	v.SetDefault("trade_log_cap", 50)
	v.SetDefault("book_depth", 15)
	v.SetDefault("broadcast_interval", "500ms")
	v.SetDefault("open_price", "9.80")
	v.SetDefault("last_price", "10.00")
	v.SetDefault("seed_market", true)
	v.SetDefault("allowed_origins", "*")
}

// Load reads the first existing default file, then applies environment overrides
func Load() (*Config, error) {
	for _, f := range DefaultFiles {
		if _, err := os.Stat(f); err == nil {
			return LoadFile(f)
		}
	}
	return LoadFile("")
}

// LoadFile reads settings from path (skipped when empty) with CCX_* overrides on top
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	openPrice, err := decimal.NewFromString(v.GetString("open_price"))
	if err != nil {
		return nil, fmt.Errorf("invalid open_price: %w", err)
	}
	lastPrice, err := decimal.NewFromString(v.GetString("last_price"))
	if err != nil {
		return nil, fmt.Errorf("invalid last_price: %w", err)
	}

	cfg := &Config{
		Addr:              v.GetString("addr"),
		DatabaseURL:       v.GetString("database_url"),
		JWTSecret:         v.GetString("jwt_secret"),
		JWTIssuer:         v.GetString("jwt_issuer"),
		RedisAddr:         v.GetString("redis_addr"),
		RateLimitBurst:    v.GetInt64("rate_limit_burst"),
		RateLimitRefill:   v.GetFloat64("rate_limit_refill"),
		TradeLogCap:       v.GetInt("trade_log_cap"),
		BookDepth:         v.GetInt("book_depth"),
		BroadcastInterval: v.GetDuration("broadcast_interval"),
		OpenPrice:         openPrice,
		LastPrice:         lastPrice,
		SeedMarket:        v.GetBool("seed_market"),
		AllowedOrigins:    splitList(v.GetString("allowed_origins")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate rejects settings the server cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	if c.TradeLogCap <= 0 {
		errs = append(errs, fmt.Errorf("trade_log_cap must be positive, got %d", c.TradeLogCap))
	}
	if c.BookDepth <= 0 {
		errs = append(errs, fmt.Errorf("book_depth must be positive, got %d", c.BookDepth))
	}
	if c.BroadcastInterval <= 0 {
		errs = append(errs, fmt.Errorf("broadcast_interval must be positive, got %s", c.BroadcastInterval))
	}
	if c.OpenPrice.IsNegative() || c.LastPrice.IsNegative() {
		errs = append(errs, errors.New("open_price and last_price must not be negative"))
	}
	if c.RateLimitEnabled() {
		if c.RateLimitBurst <= 0 {
			errs = append(errs, fmt.Errorf("rate_limit_burst must be positive, got %d", c.RateLimitBurst))
		}
		if c.RateLimitRefill <= 0 {
			errs = append(errs, fmt.Errorf("rate_limit_refill must be positive, got %v", c.RateLimitRefill))
		}
	}
	if len(c.AllowedOrigins) == 0 {
		errs = append(errs, errors.New("allowed_origins must list at least one origin"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
