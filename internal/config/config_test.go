package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesisdesk/thesisdesk/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"THESISDESK_ADDR", "THESISDESK_STORE", "THESISDESK_MONGO_URI",
		"THESISDESK_MONGO_DATABASE", "THESISDESK_BLOB_DIR", "THESISDESK_JWT_SECRET",
		"THESISDESK_LOG_LEVEL", "THESISDESK_LOG_FORMAT", "THESISDESK_PRICE_PER_PAGE",
		"THESISDESK_SQLITE_PATH",
	} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "thesisd.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
[server]
addr = ":9000"
base_path = "desk/"

[store]
driver = "MONGO"
mongo_uri = "mongodb://localhost:27017/?replicaSet=rs0"

[pricing]
price_per_page = 50000
currency = "USD"

[auth]
jwt_secret = "s3cret"

[ratelimit]
requests_per_second = 2.5
burst = 5

[logging]
format = "JSON"
level = "Debug"
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "/desk", cfg.Server.BasePath)
	assert.Equal(t, "mongo", cfg.Store.Driver)
	assert.Equal(t, "thesisdesk", cfg.Store.Database)
	assert.Equal(t, "usd", cfg.PricePerPage().Currency)
	assert.Equal(t, int64(50000), cfg.PricePerPage().Amount)
	assert.Equal(t, 2.5, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 5, cfg.RateLimit.Burst)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("THESISDESK_JWT_SECRET", "from-env")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, int64(40000), cfg.Pricing.PricePerPage)
	assert.Equal(t, "/api/v1", cfg.Server.BasePath)
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
[pricing]
price_per_page = 100

[auth]
trust_headers = true
`)
	t.Setenv("THESISDESK_PRICE_PER_PAGE", "250")
	t.Setenv("THESISDESK_ADDR", "127.0.0.1:7000")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(250), cfg.Pricing.PricePerPage)
	assert.Equal(t, "127.0.0.1:7000", cfg.Server.Addr)

	t.Setenv("THESISDESK_PRICE_PER_PAGE", "lots")
	_, err = config.Load(path)
	assert.ErrorContains(t, err, "THESISDESK_PRICE_PER_PAGE")
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "[pricing]\nprice_per_pgae = 1\n")

	_, err := config.Load(path)
	assert.ErrorContains(t, err, "parse config")
}

func TestValidate(t *testing.T) {
	valid := func() config.Config {
		cfg := config.Default()
		cfg.Auth.JWTSecret = "x"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"ok", func(*config.Config) {}, ""},
		{"unknown driver", func(c *config.Config) { c.Store.Driver = "postgres" }, "store.driver"},
		{"mongo without uri", func(c *config.Config) { c.Store.Driver = "mongo" }, "store.mongo_uri"},
		{"sqlite without path", func(c *config.Config) { c.Store.Driver = "sqlite" }, "store.sqlite_path"},
		{"sqlite", func(c *config.Config) {
			c.Store.Driver = "sqlite"
			c.Store.SQLitePath = "desk.db"
		}, ""},
		{"free pages", func(c *config.Config) { c.Pricing.PricePerPage = 0 }, "pricing.price_per_page"},
		{"bad currency", func(c *config.Config) { c.Pricing.Currency = "shilling" }, "pricing.currency"},
		{"no upload size", func(c *config.Config) { c.Storage.MaxAttachmentSize = 0 }, "storage.max_attachment_size"},
		{"no secret", func(c *config.Config) { c.Auth.JWTSecret = "" }, "auth.jwt_secret"},
		{"header auth", func(c *config.Config) {
			c.Auth.JWTSecret = ""
			c.Auth.TrustHeaders = true
		}, ""},
		{"bad level", func(c *config.Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
