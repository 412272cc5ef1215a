// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/skim/internal/config"
	"github.com/jackzampolin/skim/internal/home"
	"github.com/jackzampolin/skim/internal/jobs"
	"github.com/jackzampolin/skim/internal/library"
	"github.com/jackzampolin/skim/internal/llmcall"
	"github.com/jackzampolin/skim/internal/providers"
	"github.com/jackzampolin/skim/internal/store"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Store        *store.Store
	Queue        *jobs.Queue
	Driver       *jobs.Driver
	Library      *library.Library
	Registry     *providers.Registry
	ConfigMgr    *config.Manager
	Logger       *slog.Logger
	Home         *home.Dir
	LLMCallStore *llmcall.Store
	Recorder     *llmcall.Recorder
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// StoreFrom extracts the book store from context.
func StoreFrom(ctx context.Context) *store.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Store
	}
	return nil
}

// QueueFrom extracts the job queue from context.
func QueueFrom(ctx context.Context) *jobs.Queue {
	if s := ServicesFrom(ctx); s != nil {
		return s.Queue
	}
	return nil
}

// DriverFrom extracts the background driver from context.
func DriverFrom(ctx context.Context) *jobs.Driver {
	if s := ServicesFrom(ctx); s != nil {
		return s.Driver
	}
	return nil
}

// LibraryFrom extracts the library from context.
func LibraryFrom(ctx context.Context) *library.Library {
	if s := ServicesFrom(ctx); s != nil {
		return s.Library
	}
	return nil
}

// RegistryFrom extracts the provider registry from context.
func RegistryFrom(ctx context.Context) *providers.Registry {
	if s := ServicesFrom(ctx); s != nil {
		return s.Registry
	}
	return nil
}

// ConfigFrom returns the current configuration, or nil without a manager.
func ConfigFrom(ctx context.Context) *config.Config {
	if s := ServicesFrom(ctx); s != nil && s.ConfigMgr != nil {
		return s.ConfigMgr.Get()
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}

// LLMCallStoreFrom extracts the LLM call store from context.
func LLMCallStoreFrom(ctx context.Context) *llmcall.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.LLMCallStore
	}
	return nil
}

// RecorderFrom extracts the call recorder from context.
func RecorderFrom(ctx context.Context) *llmcall.Recorder {
	if s := ServicesFrom(ctx); s != nil {
		return s.Recorder
	}
	return nil
}
