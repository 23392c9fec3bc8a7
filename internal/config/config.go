// Package config loads thesisd settings from a TOML file, a .env file and
// the process environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/thesisdesk/thesisdesk/ratelimit"
	"github.com/thesisdesk/thesisdesk/types"
)

// Server holds HTTP listener settings.
type Server struct {
	Addr     string `toml:"addr"`
	BasePath string `toml:"base_path"`
	// MetricsPath serves Prometheus metrics. Empty disables the endpoint.
	MetricsPath     string `toml:"metrics_path"`
	ShutdownSeconds int    `toml:"shutdown_seconds"`
}

// Store selects and configures the persistence backend.
type Store struct {
	Driver     string `toml:"driver"` // memory, mongo or sqlite
	MongoURI   string `toml:"mongo_uri"`
	Database   string `toml:"database"`
	SQLitePath string `toml:"sqlite_path"`
}

// Pricing holds the per-page base price in minor units.
type Pricing struct {
	PricePerPage int64  `toml:"price_per_page"`
	Currency     string `toml:"currency"`
}

// Storage configures attachment blobs.
type Storage struct {
	// Dir is the local blob root. Empty keeps blobs in memory.
	Dir               string `toml:"dir"`
	MaxAttachmentSize int64  `toml:"max_attachment_size"`
}

// Auth configures bearer token verification.
type Auth struct {
	JWTSecret string `toml:"jwt_secret"`
	Issuer    string `toml:"issuer"`
	// TrustHeaders reads identity from X-User-ID and X-User-Role instead of
	// a token. Only for use behind an authenticating proxy.
	TrustHeaders bool `toml:"trust_headers"`
}

// Logging controls the slog handler.
type Logging struct {
	Format string `toml:"format"` // text or json
	Level  string `toml:"level"`
}

// Config encapsulates every thesisd setting.
type Config struct {
	Server    Server           `toml:"server"`
	Store     Store            `toml:"store"`
	Pricing   Pricing          `toml:"pricing"`
	Storage   Storage          `toml:"storage"`
	Auth      Auth             `toml:"auth"`
	RateLimit ratelimit.Config `toml:"ratelimit"`
	Logging   Logging          `toml:"logging"`
}

// Default returns a config that runs a self-contained in-memory desk.
func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			BasePath:        "/api/v1",
			MetricsPath:     "/metrics",
			ShutdownSeconds: 15,
		},
		Store: Store{
			Driver:   "memory",
			Database: "thesisdesk",
		},
		Pricing: Pricing{
			PricePerPage: 40000,
			Currency:     "kes",
		},
		Storage: Storage{
			MaxAttachmentSize: 25 << 20,
		},
		Auth: Auth{
			Issuer: "thesisdesk",
		},
		RateLimit: ratelimit.Config{
			RequestsPerSecond: 10,
			Burst:             20,
			MaxKeys:           ratelimit.DefaultMaxKeys,
		},
		Logging: Logging{
			Format: "text",
			Level:  "info",
		},
	}
}

// Load reads path (when it exists), then .env, then the environment.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("open config: %w", err)
		default:
			defer file.Close()
			decoder := toml.NewDecoder(file)
			decoder.DisallowUnknownFields()
			if err := decoder.Decode(&cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PricePerPage returns the configured base price as Money.
func (c *Config) PricePerPage() types.Money {
	return types.Money{Amount: c.Pricing.PricePerPage, Currency: c.Pricing.Currency}
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Addr, "THESISDESK_ADDR")
	setString(&c.Store.Driver, "THESISDESK_STORE")
	setString(&c.Store.MongoURI, "THESISDESK_MONGO_URI")
	setString(&c.Store.Database, "THESISDESK_MONGO_DATABASE")
	setString(&c.Store.SQLitePath, "THESISDESK_SQLITE_PATH")
	setString(&c.Storage.Dir, "THESISDESK_BLOB_DIR")
	setString(&c.Auth.JWTSecret, "THESISDESK_JWT_SECRET")
	setString(&c.Logging.Level, "THESISDESK_LOG_LEVEL")
	setString(&c.Logging.Format, "THESISDESK_LOG_FORMAT")

	if v, ok := os.LookupEnv("THESISDESK_PRICE_PER_PAGE"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("THESISDESK_PRICE_PER_PAGE: %w", err)
		}
		c.Pricing.PricePerPage = n
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func (c *Config) normalize() {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	c.Pricing.Currency = strings.ToLower(strings.TrimSpace(c.Pricing.Currency))
	c.Server.BasePath = "/" + strings.Trim(c.Server.BasePath, "/")

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format != "json" {
		c.Logging.Format = "text"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory":
	case "mongo":
		if c.Store.MongoURI == "" {
			return errors.New("store.mongo_uri is required for the mongo driver (or set THESISDESK_MONGO_URI)")
		}
		if c.Store.Database == "" {
			return errors.New("store.database is required for the mongo driver")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path is required for the sqlite driver (or set THESISDESK_SQLITE_PATH)")
		}
	default:
		return fmt.Errorf("store.driver %q is not supported (memory, mongo, sqlite)", c.Store.Driver)
	}
	if c.Pricing.PricePerPage <= 0 {
		return errors.New("pricing.price_per_page must be positive")
	}
	if len(c.Pricing.Currency) != 3 {
		return fmt.Errorf("pricing.currency %q is not an ISO 4217 code", c.Pricing.Currency)
	}
	if c.Storage.MaxAttachmentSize <= 0 {
		return errors.New("storage.max_attachment_size must be positive")
	}
	if !c.Auth.TrustHeaders && c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required unless auth.trust_headers is set (or set THESISDESK_JWT_SECRET)")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	return nil
}
