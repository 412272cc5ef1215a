package providers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jackzampolin/skim/internal/types"
)

// Registry holds the configured summarizers and the name of the default one.
// It supports config-driven instantiation, hot-reload, and provides thread-safe access.
//
// Registry itself implements Summarizer by delegating to the current default,
// so callers holding it pick up reloads without re-wiring.
type Registry struct {
	mu          sync.RWMutex
	summarizers map[string]Summarizer
	configs     map[string]ProviderConfig
	defaultName string
	logger      *slog.Logger
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		summarizers: make(map[string]Summarizer),
		configs:     make(map[string]ProviderConfig),
		logger:      slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register registers a summarizer by name. The first registered summarizer
// becomes the default if none is set.
func (r *Registry) Register(name string, s Summarizer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replace(name, s)
	if r.defaultName == "" {
		r.defaultName = name
	}
	if r.logger != nil {
		r.logger.Info("registered summarizer", "name", name)
	}
}

// Unregister removes a summarizer by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(name)
	if r.logger != nil {
		r.logger.Info("unregistered summarizer", "name", name)
	}
}

// Get returns a summarizer by name.
func (r *Registry) Get(name string) (Summarizer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.summarizers[name]
	if !ok {
		return nil, fmt.Errorf("summarizer not found: %s", name)
	}
	return s, nil
}

// Has checks if a summarizer is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.summarizers[name]
	return ok
}

// List returns all registered summarizer names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.summarizers))
	for name := range r.summarizers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetDefault selects the summarizer used by Summarize.
func (r *Registry) SetDefault(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultName = name
}

// DefaultName returns the name of the default summarizer.
func (r *Registry) DefaultName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultName
}

// Default returns the default summarizer.
func (r *Registry) Default() (Summarizer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.defaultName == "" {
		return nil, fmt.Errorf("%w: no summarizer configured", types.ErrUpstream)
	}
	s, ok := r.summarizers[r.defaultName]
	if !ok {
		return nil, fmt.Errorf("%w: summarizer %q is not available (missing API key?)", types.ErrUpstream, r.defaultName)
	}
	return s, nil
}

// Name returns the default summarizer name.
func (r *Registry) Name() string {
	return r.DefaultName()
}

// Summarize delegates to the default summarizer.
func (r *Registry) Summarize(ctx context.Context, text string, depth types.Depth) (*SummaryResult, error) {
	s, err := r.Default()
	if err != nil {
		return failed(r.DefaultName(), "", time.Now(), err), err
	}
	return s.Summarize(ctx, text, depth)
}

// RegistryConfig defines the summarizers to instantiate from config.
// This mirrors the config.Config structure for provider setup.
type RegistryConfig struct {
	// Default names the summarizer used by Summarize.
	Default string

	// Providers maps provider names to their config
	Providers map[string]ProviderConfig
}

// ProviderConfig matches config.ProviderCfg with a resolved API key.
type ProviderConfig struct {
	Type       string // "gemini", "openai", "mock"
	Model      string
	APIKey     string // Resolved API key
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	Enabled    bool
}

// NewRegistryFromConfig creates a registry with summarizers based on configuration.
// Only enabled providers with valid API keys will be registered.
func NewRegistryFromConfig(cfg RegistryConfig) *Registry {
	r := NewRegistry()
	r.Reload(cfg)
	return r
}

// Reload updates the registry based on new configuration.
// Providers that are no longer configured will be unregistered.
// Providers with changed settings will be re-registered.
func (r *Registry) Reload(cfg RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := make(map[string]bool)

	for name, provCfg := range cfg.Providers {
		if !provCfg.Enabled || (provCfg.APIKey == "" && provCfg.Type != MockName) {
			continue
		}
		want[name] = true

		existing, hasExisting := r.configs[name]
		if hasExisting && existing == provCfg {
			continue
		}

		s, err := createSummarizer(provCfg)
		if err != nil {
			if r.logger != nil {
				r.logger.Warn("failed to create summarizer", "name", name, "type", provCfg.Type, "error", err)
			}
			delete(want, name)
			continue
		}
		r.replace(name, s)
		r.configs[name] = provCfg
		if r.logger != nil {
			if hasExisting {
				r.logger.Info("updated summarizer", "name", name, "type", provCfg.Type)
			} else {
				r.logger.Info("registered summarizer", "name", name, "type", provCfg.Type)
			}
		}
	}

	// Remove providers that are no longer configured
	for name := range r.summarizers {
		if !want[name] {
			r.remove(name)
			if r.logger != nil {
				r.logger.Info("unregistered summarizer", "name", name)
			}
		}
	}

	if cfg.Default != "" {
		r.defaultName = cfg.Default
	}
	if r.logger != nil && r.defaultName != "" {
		if _, ok := r.summarizers[r.defaultName]; !ok {
			r.logger.Warn("default summarizer is not available", "name", r.defaultName)
		}
	}
}

// replace must be called with the lock held.
func (r *Registry) replace(name string, s Summarizer) {
	if old, ok := r.summarizers[name]; ok {
		closeQuietly(old)
	}
	r.summarizers[name] = s
}

// remove must be called with the lock held.
func (r *Registry) remove(name string) {
	if old, ok := r.summarizers[name]; ok {
		closeQuietly(old)
	}
	delete(r.summarizers, name)
	delete(r.configs, name)
}

func closeQuietly(s Summarizer) {
	if c, ok := s.(io.Closer); ok {
		_ = c.Close()
	}
}

// createSummarizer creates a summarizer based on provider type.
func createSummarizer(cfg ProviderConfig) (Summarizer, error) {
	switch cfg.Type {
	case OpenAIName:
		return NewOpenAIClient(OpenAIConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
		}), nil
	case GeminiName:
		return NewGeminiClient(context.Background(), GeminiConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	case MockName:
		return NewMockSummarizer(), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
	}
}
