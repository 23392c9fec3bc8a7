package extension

// Config holds the thesis desk extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.thesisdesk" or "thesisdesk" keys).
type Config struct {
	// DisableRoutes skips providing the HTTP handler to the container.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix for desk routes (default: "/thesisdesk").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// PricePerPage is the base page price in minor units (default: 40000).
	PricePerPage int64 `json:"price_per_page" mapstructure:"price_per_page" yaml:"price_per_page"`

	// Currency is the ISO 4217 code of PricePerPage (default: "kes").
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// MaxAttachmentSize caps a single upload in bytes (default: 25 MiB).
	MaxAttachmentSize int64 `json:"max_attachment_size" mapstructure:"max_attachment_size" yaml:"max_attachment_size"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:          "/thesisdesk",
		PricePerPage:      40000,
		Currency:          "kes",
		MaxAttachmentSize: 25 << 20,
	}
}
