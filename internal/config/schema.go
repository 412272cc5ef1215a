package config

import (
	"sort"
	"strings"
	"time"
)

// Config holds skim configuration.
// Stored at: {home}/config.yaml
type Config struct {
	// BooksDir overrides the books root (default: {home}/books).
	BooksDir string `mapstructure:"books_dir" yaml:"books_dir" json:"books_dir"`
	// RateLimitInterval is the minimum gap between two summarizer calls made by the queue.
	RateLimitInterval time.Duration `mapstructure:"rate_limit_interval" yaml:"rate_limit_interval" json:"rate_limit_interval"`
	// TickInterval is how often the background driver ticks the queue.
	TickInterval time.Duration `mapstructure:"tick_interval" yaml:"tick_interval" json:"tick_interval"`
	// Summarizer names the provider used for summaries.
	Summarizer string `mapstructure:"summarizer" yaml:"summarizer" json:"summarizer"`

	Providers     map[string]ProviderCfg `mapstructure:"providers" yaml:"providers" json:"providers"`
	Server        ServerCfg              `mapstructure:"server" yaml:"server" json:"server"`
	Database      DatabaseCfg            `mapstructure:"database" yaml:"database" json:"database"`
	MobiConverter string                 `mapstructure:"mobi_converter" yaml:"mobi_converter" json:"mobi_converter"`
}

// ProviderCfg configures one summarization provider.
type ProviderCfg struct {
	Type       string        `mapstructure:"type" yaml:"type" json:"type"` // "gemini", "openai", "mock"
	Model      string        `mapstructure:"model" yaml:"model" json:"model"`
	APIKey     string        `mapstructure:"api_key" yaml:"api_key" json:"api_key"` // supports ${ENV_VAR} syntax
	BaseURL    string        `mapstructure:"base_url" yaml:"base_url" json:"base_url,omitempty"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries" json:"max_retries"`
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
}

// ServerCfg configures the HTTP server.
type ServerCfg struct {
	Host           string   `mapstructure:"host" yaml:"host" json:"host"`
	Port           string   `mapstructure:"port" yaml:"port" json:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins" json:"allowed_origins"`
}

// DatabaseCfg configures the call history database.
type DatabaseCfg struct {
	// Path of the SQLite file (default: {home}/skim.db).
	Path string `mapstructure:"path" yaml:"path" json:"path"`
}

const (
	DefaultRateLimitInterval = time.Second
	DefaultTickInterval      = 250 * time.Millisecond
	DefaultSummarizer        = "gemini"
	DefaultHost              = "127.0.0.1"
	DefaultPort              = "8080"
	DefaultOrigin            = "http://localhost:5173"
	DefaultMobiConverter     = "ebook-convert"
)

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RateLimitInterval: DefaultRateLimitInterval,
		TickInterval:      DefaultTickInterval,
		Summarizer:        DefaultSummarizer,
		Providers: map[string]ProviderCfg{
			"gemini": {
				Type:       "gemini",
				Model:      "gemini-2.0-flash-001",
				APIKey:     "${GEMINI_API_KEY}",
				Timeout:    2 * time.Minute,
				MaxRetries: 2,
				Enabled:    true,
			},
			"openai": {
				Type:       "openai",
				Model:      "gpt-4o-mini",
				APIKey:     "${OPENAI_API_KEY}",
				Timeout:    2 * time.Minute,
				MaxRetries: 2,
				Enabled:    true,
			},
		},
		Server: ServerCfg{
			Host:           DefaultHost,
			Port:           DefaultPort,
			AllowedOrigins: []string{DefaultOrigin},
		},
		MobiConverter: DefaultMobiConverter,
	}
}

// GetProvider returns a provider config by name.
func (c *Config) GetProvider(name string) (ProviderCfg, bool) {
	cfg, ok := c.Providers[name]
	return cfg, ok
}

// EnabledProviders returns the sorted names of all enabled providers.
func (c *Config) EnabledProviders() []string {
	names := make([]string, 0, len(c.Providers))
	for name, cfg := range c.Providers {
		if cfg.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

const redacted = "[redacted]"

// Redacted returns a copy safe to show to clients. Literal API keys are
// hidden; ${ENV_VAR} references are kept since they name no secret.
func (c *Config) Redacted() *Config {
	out := *c
	out.Providers = make(map[string]ProviderCfg, len(c.Providers))
	for name, p := range c.Providers {
		if p.APIKey != "" && !isEnvRef(p.APIKey) {
			p.APIKey = redacted
		}
		out.Providers[name] = p
	}
	out.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	return &out
}

func isEnvRef(s string) bool {
	return strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") && strings.Count(s, "${") == 1
}
