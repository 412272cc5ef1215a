package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/jackzampolin/skim/internal/providers"
)

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	v         *viper.Viper
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
	logger    *slog.Logger
}

// NewManager creates a new config manager and loads initial config.
// homePath is searched for config.yaml when cfgFile is empty.
func NewManager(cfgFile, homePath string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
		logger:    slog.Default(),
	}

	if err := cm.initViper(cfgFile, homePath); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// SetLogger sets the logger used for reload messages.
func (cm *Manager) SetLogger(logger *slog.Logger) {
	if logger != nil {
		cm.logger = logger
	}
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile, homePath string) error {
	v := cm.v
	defaults := DefaultConfig()
	v.SetDefault("books_dir", defaults.BooksDir)
	v.SetDefault("rate_limit_interval", defaults.RateLimitInterval)
	v.SetDefault("tick_interval", defaults.TickInterval)
	v.SetDefault("summarizer", defaults.Summarizer)
	v.SetDefault("server.host", defaults.Server.Host)
	v.SetDefault("server.port", defaults.Server.Port)
	v.SetDefault("server.allowed_origins", defaults.Server.AllowedOrigins)
	v.SetDefault("database.path", defaults.Database.Path)
	v.SetDefault("mobi_converter", defaults.MobiConverter)
	for name, p := range defaults.Providers {
		prefix := "providers." + name + "."
		v.SetDefault(prefix+"type", p.Type)
		v.SetDefault(prefix+"model", p.Model)
		v.SetDefault(prefix+"api_key", p.APIKey)
		v.SetDefault(prefix+"timeout", p.Timeout)
		v.SetDefault(prefix+"max_retries", p.MaxRetries)
		v.SetDefault(prefix+"enabled", p.Enabled)
	}

	// Environment variables with SKIM_ prefix, e.g. SKIM_SERVER_PORT
	v.SetEnvPrefix("SKIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if homePath != "" {
			v.AddConfigPath(homePath)
		} else {
			v.AddConfigPath("$HOME/.skim")
		}
	}

	// Try to read config file (not required)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	if c.RateLimitInterval < 0 {
		return fmt.Errorf("rate_limit_interval must not be negative, got %s", c.RateLimitInterval)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval)
	}
	return nil
}

// ConfigFile returns the config file in use, or "" when running on defaults.
func (cm *Manager) ConfigFile() string {
	return cm.v.ConfigFileUsed()
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			cm.logger.Warn("ignoring invalid config change", "file", e.Name, "error", err)
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		cm.logger.Info("config reloaded", "file", e.Name)
		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envVarPattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// ToProviderRegistryConfig converts the config to a format suitable for providers.Registry.
// It resolves all ${ENV_VAR} references in API keys.
func (c *Config) ToProviderRegistryConfig() providers.RegistryConfig {
	cfg := providers.RegistryConfig{
		Default:   c.Summarizer,
		Providers: make(map[string]providers.ProviderConfig, len(c.Providers)),
	}

	for name, p := range c.Providers {
		cfg.Providers[name] = providers.ProviderConfig{
			Type:       p.Type,
			Model:      p.Model,
			APIKey:     ResolveEnvVars(p.APIKey),
			BaseURL:    p.BaseURL,
			Timeout:    p.Timeout,
			MaxRetries: p.MaxRetries,
			Enabled:    p.Enabled,
		}
	}

	return cfg
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(DefaultConfig().document())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Skim configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export GEMINI_API_KEY=xxx OPENAI_API_KEY=xxx
# Every key can also be overridden with SKIM_<KEY>, e.g. SKIM_RATE_LIMIT_INTERVAL=2s

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}

// document renders the config in a stable key order with durations as strings.
func (c *Config) document() yaml.MapSlice {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	provs := make(yaml.MapSlice, 0, len(names))
	for _, name := range names {
		p := c.Providers[name]
		entry := yaml.MapSlice{
			{Key: "type", Value: p.Type},
			{Key: "model", Value: p.Model},
			{Key: "api_key", Value: p.APIKey},
		}
		if p.BaseURL != "" {
			entry = append(entry, yaml.MapItem{Key: "base_url", Value: p.BaseURL})
		}
		entry = append(entry,
			yaml.MapItem{Key: "timeout", Value: p.Timeout.String()},
			yaml.MapItem{Key: "max_retries", Value: p.MaxRetries},
			yaml.MapItem{Key: "enabled", Value: p.Enabled},
		)
		provs = append(provs, yaml.MapItem{Key: name, Value: entry})
	}

	return yaml.MapSlice{
		{Key: "books_dir", Value: c.BooksDir},
		{Key: "rate_limit_interval", Value: c.RateLimitInterval.String()},
		{Key: "tick_interval", Value: c.TickInterval.String()},
		{Key: "summarizer", Value: c.Summarizer},
		{Key: "providers", Value: provs},
		{Key: "server", Value: yaml.MapSlice{
			{Key: "host", Value: c.Server.Host},
			{Key: "port", Value: c.Server.Port},
			{Key: "allowed_origins", Value: c.Server.AllowedOrigins},
		}},
		{Key: "database", Value: yaml.MapSlice{
			{Key: "path", Value: c.Database.Path},
		}},
		{Key: "mobi_converter", Value: c.MobiConverter},
	}
}
