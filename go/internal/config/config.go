// Package config loads process configuration from an optional YAML file,
// then lets environment variables override individual values.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/gavel/go/internal/auction/broadcast"
	"github.com/mcdev12/gavel/go/internal/auction/engine"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config.yaml"

// Store backends
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

type Config struct {
	Auction  AuctionConfig  `yaml:"auction"`
	Store    StoreConfig    `yaml:"store"`
	Server   ServerConfig   `yaml:"server"`
	NATS     NATSConfig     `yaml:"nats"`
	Auth     AuthConfig     `yaml:"auth"`
	Currency CurrencyConfig `yaml:"currency"`
	LogLevel string         `yaml:"log_level"`
}

type AuctionConfig struct {
	BidTimerSeconds           int   `yaml:"bid_timer_seconds"`
	WaitTimerSeconds          int   `yaml:"wait_timer_seconds"`
	MinBidIncrement           int64 `yaml:"min_bid_increment"`
	ExtensionThresholdSeconds int   `yaml:"bid_extension_threshold_seconds"`
	PersistTimeoutMS          int   `yaml:"persist_timeout_ms"`
}

type StoreConfig struct {
	Backend    string `yaml:"backend"`
	SQLitePath string `yaml:"sqlite_path"`
	// SeedFile is a JSON catalog loaded into the memory and sqlite backends
	SeedFile string `yaml:"seed_file"`
}

type ServerConfig struct {
	Port             string `yaml:"port"`
	GatewayPort      string `yaml:"gateway_port"`
	OutboxHealthPort string `yaml:"outbox_health_port"`
	AuctionURL       string `yaml:"auction_url"`
}

type NATSConfig struct {
	// URL enables JetStream publishing of live events when set
	URL string `yaml:"url"`
}

type AuthConfig struct {
	JWTSecret            string `yaml:"jwt_secret"`
	TokenTTLHours        int    `yaml:"token_ttl_hours"`
	OperatorName         string `yaml:"operator_name"`
	OperatorPasswordHash string `yaml:"operator_password_hash"`
}

type CurrencyConfig struct {
	Scale  int32  `yaml:"scale"`
	Symbol string `yaml:"symbol"`
}

func Default() Config {
	return Config{
		Auction: AuctionConfig{
			BidTimerSeconds:           30,
			WaitTimerSeconds:          10,
			MinBidIncrement:           10,
			ExtensionThresholdSeconds: 15,
			PersistTimeoutMS:          3000,
		},
		Store: StoreConfig{
			Backend:    BackendMemory,
			SQLitePath: "data/gavel.db",
		},
		Server: ServerConfig{
			Port:             "8080",
			GatewayPort:      "8081",
			OutboxHealthPort: "8082",
			AuctionURL:       "http://localhost:8080",
		},
		Auth: AuthConfig{
			TokenTTLHours: 12,
			OperatorName:  "operator",
		},
		LogLevel: "info",
	}
}

// Load reads path (AUCTION_CONFIG when empty, then config.yaml) and applies
// environment overrides. A missing default file is not an error.
func Load(path string) (*Config, error) {
	explicit := true
	if path == "" {
		path = getEnv("AUCTION_CONFIG", "")
	}
	if path == "" {
		path, explicit = DefaultPath, false
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	var err error
	if c.Auction.BidTimerSeconds, err = getEnvAsInt("BID_TIMER_SECONDS", c.Auction.BidTimerSeconds); err != nil {
		return err
	}
	if c.Auction.WaitTimerSeconds, err = getEnvAsInt("WAIT_TIMER_SECONDS", c.Auction.WaitTimerSeconds); err != nil {
		return err
	}
	if c.Auction.ExtensionThresholdSeconds, err = getEnvAsInt("BID_EXTENSION_THRESHOLD_SECONDS", c.Auction.ExtensionThresholdSeconds); err != nil {
		return err
	}
	if c.Auction.PersistTimeoutMS, err = getEnvAsInt("PERSIST_TIMEOUT_MS", c.Auction.PersistTimeoutMS); err != nil {
		return err
	}
	increment, err := getEnvAsInt("MIN_BID_INCREMENT", int(c.Auction.MinBidIncrement))
	if err != nil {
		return err
	}
	c.Auction.MinBidIncrement = int64(increment)

	c.Store.Backend = getEnv("STORE_BACKEND", c.Store.Backend)
	c.Store.SQLitePath = getEnv("SQLITE_PATH", c.Store.SQLitePath)
	c.Store.SeedFile = getEnv("SEED_FILE", c.Store.SeedFile)

	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.GatewayPort = getEnv("GATEWAY_PORT", c.Server.GatewayPort)
	c.Server.OutboxHealthPort = getEnv("OUTBOX_HEALTH_PORT", c.Server.OutboxHealthPort)
	c.Server.AuctionURL = getEnv("AUCTION_URL", c.Server.AuctionURL)

	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)

	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.OperatorName = getEnv("OPERATOR_NAME", c.Auth.OperatorName)
	c.Auth.OperatorPasswordHash = getEnv("OPERATOR_PASSWORD_HASH", c.Auth.OperatorPasswordHash)
	if c.Auth.TokenTTLHours, err = getEnvAsInt("TOKEN_TTL_HOURS", c.Auth.TokenTTLHours); err != nil {
		return err
	}

	scale, err := getEnvAsInt("CURRENCY_SCALE", int(c.Currency.Scale))
	if err != nil {
		return err
	}
	c.Currency.Scale = int32(scale)
	c.Currency.Symbol = getEnv("CURRENCY_SYMBOL", c.Currency.Symbol)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	return nil
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendPostgres, BackendSQLite:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Currency.Scale < 0 {
		return fmt.Errorf("currency scale must not be negative, got %d", c.Currency.Scale)
	}
	if c.Auth.TokenTTLHours <= 0 {
		return fmt.Errorf("token ttl must be positive, got %d hours", c.Auth.TokenTTLHours)
	}
	return c.Engine().Validate()
}

// Engine converts the auction section to engine settings
func (c *Config) Engine() engine.Config {
	return engine.Config{
		BidDuration:        time.Duration(c.Auction.BidTimerSeconds) * time.Second,
		WaitDuration:       time.Duration(c.Auction.WaitTimerSeconds) * time.Second,
		MinBidIncrement:    c.Auction.MinBidIncrement,
		ExtensionThreshold: time.Duration(c.Auction.ExtensionThresholdSeconds) * time.Second,
		PersistTimeout:     time.Duration(c.Auction.PersistTimeoutMS) * time.Millisecond,
	}
}

func (c *Config) Broadcast() broadcast.Config {
	cfg := broadcast.DefaultConfig()
	cfg.CurrencyScale = c.Currency.Scale
	cfg.CurrencySymbol = c.Currency.Symbol
	return cfg
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLHours) * time.Hour
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}
