package api

import (
	"net/http"

	"github.com/spf13/cobra"
)

// Registry holds all registered endpoints.
type Registry struct {
	endpoints []Endpoint
}

// NewRegistry creates a new endpoint registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an endpoint to the registry.
func (r *Registry) Register(ep Endpoint) {
	r.endpoints = append(r.endpoints, ep)
}

// RegisterRoutes registers all endpoint HTTP routes with the given mux.
// initMiddleware wraps handlers that require full server initialization.
func (r *Registry) RegisterRoutes(mux *http.ServeMux, initMiddleware func(http.HandlerFunc) http.HandlerFunc) {
	for _, ep := range r.endpoints {
		method, path, handler := ep.Route()
		if ep.RequiresInit() {
			handler = initMiddleware(handler)
		}
		mux.HandleFunc(method+" "+path, handler)
	}
}

// BuildCommands adds a command for every registered endpoint to parent.
// Endpoints implementing Grouped are nested under a group command whose
// short help comes from groups.
func (r *Registry) BuildCommands(parent *cobra.Command, getServerURL func() string, groups map[string]string) {
	groupCmds := make(map[string]*cobra.Command)
	for _, ep := range r.endpoints {
		cmd := ep.Command(getServerURL)
		if cmd == nil {
			continue
		}
		g, ok := ep.(Grouped)
		if !ok || g.Group() == "" {
			parent.AddCommand(cmd)
			continue
		}
		name := g.Group()
		groupCmd, ok := groupCmds[name]
		if !ok {
			groupCmd = &cobra.Command{Use: name, Short: groups[name]}
			groupCmds[name] = groupCmd
			parent.AddCommand(groupCmd)
		}
		groupCmd.AddCommand(cmd)
	}
}

// Endpoints returns all registered endpoints.
func (r *Registry) Endpoints() []Endpoint {
	return r.endpoints
}
