// Package extension provides the Forge extension adapter for the thesis desk.
//
// It implements the forge.Extension interface to integrate the desk
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.thesisdesk" or
// "thesisdesk" keys.
package extension

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/thesisdesk/thesisdesk"
	"github.com/thesisdesk/thesisdesk/api"
	"github.com/thesisdesk/thesisdesk/store"
	"github.com/thesisdesk/thesisdesk/store/memory"
	"github.com/thesisdesk/thesisdesk/types"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "thesisdesk"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Thesis chapter pricing, payments and writer earnings"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the desk as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config   Config
	engine   *thesisdesk.Desk
	store    store.Store
	deskOpts []thesisdesk.Option

	identity api.IdentityResolver
	apiOpts  []api.Option
	handler  *api.Handler
}

// New creates a new thesis desk Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Desk.
// This is nil until Register is called.
func (e *Extension) Engine() *thesisdesk.Desk { return e.engine }

// Handler returns the desk API mounted under the configured base path, or
// nil when routes are disabled or no identity resolver was given.
func (e *Extension) Handler() http.Handler {
	if e.handler == nil {
		return nil
	}
	return e.handler.Router(e.config.BasePath)
}

// Register implements [forge.Extension]. It loads configuration,
// initializes the desk, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	e.engine = thesisdesk.New(e.store, e.buildDeskOpts()...)

	if err := vessel.Provide(fapp.Container(), func() (*thesisdesk.Desk, error) {
		return e.engine, nil
	}); err != nil {
		return err
	}

	if e.config.DisableRoutes {
		return nil
	}
	if e.identity == nil {
		e.Logger().Warn("thesisdesk: no identity resolver configured; HTTP handler not provided")
		return nil
	}

	e.handler = api.New(e.engine, e.identity, e.apiOpts...)
	return vessel.Provide(fapp.Container(), func() (*api.Handler, error) {
		return e.handler, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("thesisdesk: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("thesisdesk: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildDeskOpts constructs thesisdesk.Option values from the resolved config.
func (e *Extension) buildDeskOpts() []thesisdesk.Option {
	opts := make([]thesisdesk.Option, 0, len(e.deskOpts)+2)

	if e.config.PricePerPage > 0 {
		opts = append(opts, thesisdesk.WithPricePerPage(types.Money{
			Amount:   e.config.PricePerPage,
			Currency: strings.ToLower(e.config.Currency),
		}))
	}
	if e.config.MaxAttachmentSize > 0 {
		opts = append(opts, thesisdesk.WithMaxAttachmentSize(e.config.MaxAttachmentSize))
	}

	// Pass-through options come last so they win.
	opts = append(opts, e.deskOpts...)

	return opts
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("thesisdesk: configuration is required but not found in config files; " +
				"ensure 'extensions.thesisdesk' or 'thesisdesk' key exists in your config")
		}
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("thesisdesk: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("base_path", e.config.BasePath),
		forge.F("price_per_page", e.config.PricePerPage),
		forge.F("currency", e.config.Currency),
		forge.F("max_attachment_size", e.config.MaxAttachmentSize),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.thesisdesk", "thesisdesk"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("thesisdesk: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("thesisdesk: loaded config from file", forge.F("key", key))
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.PricePerPage == 0 {
		cfg.PricePerPage = defaults.PricePerPage
		cfg.Currency = defaults.Currency
	}
	if cfg.Currency == "" {
		cfg.Currency = defaults.Currency
	}
	if cfg.MaxAttachmentSize == 0 {
		cfg.MaxAttachmentSize = defaults.MaxAttachmentSize
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	if yamlConfig.BasePath == "" && programmaticConfig.BasePath != "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}
	if yamlConfig.PricePerPage == 0 && programmaticConfig.PricePerPage != 0 {
		yamlConfig.PricePerPage = programmaticConfig.PricePerPage
		if yamlConfig.Currency == "" {
			yamlConfig.Currency = programmaticConfig.Currency
		}
	}
	if yamlConfig.MaxAttachmentSize == 0 && programmaticConfig.MaxAttachmentSize != 0 {
		yamlConfig.MaxAttachmentSize = programmaticConfig.MaxAttachmentSize
	}

	return e.mergeWithDefaults(yamlConfig)
}
