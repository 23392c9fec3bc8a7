package extension

import (
	"github.com/thesisdesk/thesisdesk"
	"github.com/thesisdesk/thesisdesk/api"
	"github.com/thesisdesk/thesisdesk/plugin"
	"github.com/thesisdesk/thesisdesk/store"
)

// Option configures the thesis desk Forge extension.
type Option func(*Extension)

// WithStore sets the store for the desk engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithDeskOption passes a thesisdesk.Option through to the underlying engine.
func WithDeskOption(opt thesisdesk.Option) Option {
	return func(e *Extension) {
		e.deskOpts = append(e.deskOpts, opt)
	}
}

// WithPlugin registers a desk plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.deskOpts = append(e.deskOpts, thesisdesk.WithPlugin(p))
	}
}

// WithIdentity sets how API callers are identified. Without it no HTTP
// handler is provided.
func WithIdentity(r api.IdentityResolver) Option {
	return func(e *Extension) { e.identity = r }
}

// WithAPIOption passes an api.Option through to the HTTP handler.
func WithAPIOption(opt api.Option) Option {
	return func(e *Extension) {
		e.apiOpts = append(e.apiOpts, opt)
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes skips the HTTP handler.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithBasePath sets the URL prefix for desk routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithPricePerPage sets the base page price in minor units of currency.
func WithPricePerPage(amount int64, currency string) Option {
	return func(e *Extension) {
		e.config.PricePerPage = amount
		e.config.Currency = currency
	}
}

// WithMaxAttachmentSize caps a single upload in bytes.
func WithMaxAttachmentSize(n int64) Option {
	return func(e *Extension) { e.config.MaxAttachmentSize = n }
}
