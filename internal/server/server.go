package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/skim/internal/api"
	"github.com/jackzampolin/skim/internal/config"
	"github.com/jackzampolin/skim/internal/home"
	"github.com/jackzampolin/skim/internal/ingest"
	"github.com/jackzampolin/skim/internal/jobs"
	"github.com/jackzampolin/skim/internal/library"
	"github.com/jackzampolin/skim/internal/llmcall"
	"github.com/jackzampolin/skim/internal/providers"
	"github.com/jackzampolin/skim/internal/server/endpoints"
	"github.com/jackzampolin/skim/internal/store"
	"github.com/jackzampolin/skim/internal/svcctx"
)

// Server is the main Skim HTTP server. Start wires the store, queue and
// call history, then runs the HTTP listener and the background driver
// until the context is cancelled.
type Server struct {
	httpServer *http.Server
	registry   *providers.Registry
	configMgr  *config.Manager
	home       *home.Dir
	logger     *slog.Logger
	cfg        Config

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu       sync.RWMutex
	running  bool
	services *svcctx.Services
	listener net.Listener
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8080, "0" picks a free port)
	Port string
	// Home is the skim home directory
	Home *home.Dir
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Summarizer overrides the provider registry (used by tests)
	Summarizer providers.Summarizer
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Home == nil {
		return nil, errors.New("home directory is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	appCfg := config.DefaultConfig()
	if cfg.ConfigManager != nil {
		appCfg = cfg.ConfigManager.Get()
	}
	if cfg.Host == "" {
		cfg.Host = appCfg.Server.Host
	}
	if cfg.Port == "" {
		cfg.Port = appCfg.Server.Port
	}

	// Create provider registry
	registry := providers.NewRegistry()
	registry.SetLogger(cfg.Logger)

	// If config manager provided, set up providers and hot reload
	if cfg.ConfigManager != nil {
		registry.Reload(appCfg.ToProviderRegistryConfig())

		cfg.ConfigManager.OnChange(func(c *config.Config) {
			registry.Reload(c.ToProviderRegistryConfig())
			cfg.Logger.Info("provider registry reloaded from config")
		})
	}

	s := &Server{
		registry:  registry,
		configMgr: cfg.ConfigManager,
		home:      cfg.Home,
		logger:    cfg.Logger,
		cfg:       cfg,
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All() {
		s.endpointRegistry.Register(ep)
	}

	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:        net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:     withCORS(appCfg.Server.AllowedOrigins, s.withServices(mux)),
		ReadTimeout: 5 * time.Minute, // uploads
		// Whole-book summaries are generated synchronously.
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start initializes services and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()
	defer s.setNotRunning()

	appCfg := config.DefaultConfig()
	if s.configMgr != nil {
		appCfg = s.configMgr.Get()
	}

	dir := s.home
	if appCfg.BooksDir != "" {
		dir = dir.WithBooksPath(appCfg.BooksDir)
	}
	if err := dir.EnsureExists(); err != nil {
		return err
	}

	dbPath := appCfg.Database.Path
	if dbPath == "" {
		dbPath = dir.DatabasePath()
	}
	s.logger.Info("opening call history", "path", dbPath)
	callStore, err := llmcall.Open(ctx, dbPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := callStore.Close(); err != nil {
			s.logger.Error("call history close error", "error", err)
		}
	}()

	services, err := s.buildServices(appCfg, dir, callStore)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}

	s.mu.Lock()
	s.services = services
	s.listener = ln
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("starting HTTP server", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return services.Driver.Run(gctx)
	})
	g.Go(func() error {
		return services.Recorder.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP server shutdown error", "error", err)
		}
		return nil
	})

	err = g.Wait()
	s.logger.Info("server stopped")
	return err
}

// buildServices creates the store, queue, driver and library.
func (s *Server) buildServices(appCfg *config.Config, dir *home.Dir, callStore *llmcall.Store) (*svcctx.Services, error) {
	st := store.New(dir, s.logger)
	recorder := llmcall.NewRecorder(callStore, s.logger, 0)

	var summarizer providers.Summarizer = s.registry
	if s.cfg.Summarizer != nil {
		summarizer = s.cfg.Summarizer
	}

	queue, err := jobs.NewQueue(jobs.Config{
		Store:      st,
		Summarizer: summarizer,
		Interval:   appCfg.RateLimitInterval,
		Recorder:   recorder,
		Logger:     s.logger,
	})
	if err != nil {
		return nil, err
	}
	driver := jobs.NewDriver(queue, appCfg.TickInterval, s.logger)

	ingester := ingest.New(st, ingest.Config{
		MobiConverter: appCfg.MobiConverter,
		Logger:        s.logger,
	})
	lib, err := library.New(library.Config{
		Store:      st,
		Queue:      queue,
		Summarizer: summarizer,
		Ingester:   ingester,
		Recorder:   recorder,
		Logger:     s.logger,
	})
	if err != nil {
		return nil, err
	}

	if s.configMgr != nil {
		s.configMgr.OnChange(func(c *config.Config) {
			queue.Limiter().SetInterval(c.RateLimitInterval)
			s.logger.Info("rate limit interval updated", "interval", c.RateLimitInterval)
		})
	}

	return &svcctx.Services{
		Store:        st,
		Queue:        queue,
		Driver:       driver,
		Library:      lib,
		Registry:     s.registry,
		ConfigMgr:    s.configMgr,
		Logger:       s.logger,
		Home:         dir,
		LLMCallStore: callStore,
		Recorder:     recorder,
	}, nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.services = nil
	s.listener = nil
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the bound address once listening, else the configured one.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Registry returns the provider registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

// Services returns the running services, or nil before Start has finished
// initializing.
func (s *Server) Services() *svcctx.Services {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.services
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if services := s.Services(); services != nil {
			ctx = svcctx.WithServices(ctx, services)
		} else {
			// Health and status endpoints still report the registry.
			ctx = svcctx.WithServices(ctx, &svcctx.Services{
				Registry:  s.registry,
				ConfigMgr: s.configMgr,
				Logger:    s.logger,
				Home:      s.home,
			})
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable until Start has built the queue.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc := svcctx.ServicesFrom(r.Context()); svc == nil || svc.Library == nil || svc.Queue == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
