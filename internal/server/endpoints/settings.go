package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/skim/internal/api"
	"github.com/jackzampolin/skim/internal/config"
	"github.com/jackzampolin/skim/internal/svcctx"
)

// SettingsResponse is the effective configuration with secrets removed.
type SettingsResponse struct {
	ConfigFile string         `json:"config_file,omitempty"`
	Settings   *config.Config `json:"settings"`
}

// SettingsEndpoint handles GET /settings.
type SettingsEndpoint struct{}

func (e *SettingsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/settings", e.handler
}

func (e *SettingsEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Effective settings
//	@Description	The loaded configuration. Literal API keys are redacted.
//	@Tags			settings
//	@Produce		json
//	@Success		200	{object}	SettingsResponse
//	@Router			/settings [get]
func (e *SettingsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := SettingsResponse{}
	if svc := svcctx.ServicesFrom(r.Context()); svc != nil && svc.ConfigMgr != nil {
		resp.ConfigFile = svc.ConfigMgr.ConfigFile()
		resp.Settings = svc.ConfigMgr.Get().Redacted()
	} else {
		resp.Settings = config.DefaultConfig().Redacted()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *SettingsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "settings",
		Short: "Show the server's effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp SettingsResponse
			if err := client.Get(cmd.Context(), "/settings", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
