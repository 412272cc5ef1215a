package endpoints

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/skim/internal/api"
	"github.com/jackzampolin/skim/internal/jobs"
	"github.com/jackzampolin/skim/internal/svcctx"
	"github.com/jackzampolin/skim/internal/types"
	"github.com/jackzampolin/skim/version"
)

// RootResponse is the response for GET /.
type RootResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

// RootEndpoint handles GET /.
type RootEndpoint struct{}

func (e *RootEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/{$}", e.handler
}

func (e *RootEndpoint) RequiresInit() bool { return false }

func (e *RootEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RootResponse{Message: "Skim API is running", Version: version.GitRelease})
}

// Command is nil: "skim version" covers the CLI side.
func (e *RootEndpoint) Command(getServerURL func() string) *cobra.Command { return nil }

// HealthResponse is the response for health check endpoints.
type HealthResponse struct {
	Status   string `json:"status"`
	Queue    string `json:"queue,omitempty"`
	Database string `json:"database,omitempty"`
}

// HealthEndpoint handles GET /health.
type HealthEndpoint struct{}

func (e *HealthEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/health", e.handler
}

func (e *HealthEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary	Health check
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	HealthResponse
//	@Router		/health [get]
func (e *HealthEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (e *HealthEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			if err := client.Get(cmd.Context(), "/health", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ReadyEndpoint handles GET /ready.
type ReadyEndpoint struct{}

func (e *ReadyEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/ready", e.handler
}

func (e *ReadyEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Readiness check
//	@Description	Ready once the queue is built and the call history database answers
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Failure		503	{object}	HealthResponse
//	@Router			/ready [get]
func (e *ReadyEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Queue: "ok", Database: "ok"}

	if svcctx.QueueFrom(r.Context()) == nil {
		resp.Status = "degraded"
		resp.Queue = "not_initialized"
	}
	if db := svcctx.LLMCallStoreFrom(r.Context()); db == nil {
		resp.Status = "degraded"
		resp.Database = "not_initialized"
	} else if err := db.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Database = "unhealthy"
	}

	if resp.Status != "ok" {
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *ReadyEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "Check server readiness (queue and call history)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			if err := client.Get(cmd.Context(), "/ready", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// StatusResponse is the detailed status response.
type StatusResponse struct {
	Server    string             `json:"server"`
	Version   string             `json:"version"`
	Providers ProvidersStatus    `json:"providers"`
	Queue     *jobs.Stats        `json:"queue,omitempty"`
	Driver    *jobs.DriverStatus `json:"driver,omitempty"`
	Recorder  *RecorderStatus    `json:"recorder,omitempty"`
}

// ProvidersStatus shows registered summarizers.
type ProvidersStatus struct {
	Default    string   `json:"default"`
	Registered []string `json:"registered"`
}

// RecorderStatus reports the call history writer.
type RecorderStatus struct {
	Dropped int64 `json:"dropped"`
}

// StatusEndpoint handles GET /status.
type StatusEndpoint struct{}

func (e *StatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/status", e.handler
}

func (e *StatusEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Server status
//	@Description	Providers, queue depth, rate limiter state and driver ticks
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Router			/status [get]
func (e *StatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Server:  "running",
		Version: version.GitRelease,
	}

	if registry := svcctx.RegistryFrom(r.Context()); registry != nil {
		resp.Providers.Default = registry.DefaultName()
		resp.Providers.Registered = registry.List()
	}
	if q := svcctx.QueueFrom(r.Context()); q != nil {
		stats := q.Stats()
		resp.Queue = &stats
	} else {
		resp.Server = "initializing"
	}
	if d := svcctx.DriverFrom(r.Context()); d != nil {
		status := d.Status()
		resp.Driver = &status
	}
	if rec := svcctx.RecorderFrom(r.Context()); rec != nil {
		resp.Recorder = &RecorderStatus{Dropped: rec.Dropped()}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *StatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get detailed server status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp StatusResponse
			if err := client.Get(cmd.Context(), "/status", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeErr maps err onto an HTTP status by its error class.
func writeErr(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrInvalidInput), errors.Is(err, types.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, types.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
