package endpoints

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/skim/internal/api"
	"github.com/jackzampolin/skim/internal/library"
	"github.com/jackzampolin/skim/internal/svcctx"
	"github.com/jackzampolin/skim/internal/types"
)

// SummaryEndpoint handles GET /summary/{id}.
type SummaryEndpoint struct{}

func (e *SummaryEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/summary/{id}", e.handler
}

func (e *SummaryEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get summaries
//	@Description	Without section, returns every chapter's summary at depth. With section=chapter-N, returns that chapter only.
//	@Description	Missing summaries are generated synchronously and cached.
//	@Tags			summary
//	@Produce		json
//	@Param			id		path		string	true	"Book ID"
//	@Param			depth	query		int		false	"Summary depth 1-4 (default 1)"
//	@Param			section	query		string	false	"Chapter ID (chapter-N)"
//	@Success		200		{object}	library.BookSummary
//	@Success		200		{object}	library.SectionSummary
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		502		{object}	ErrorResponse
//	@Router			/summary/{id} [get]
func (e *SummaryEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	depth, err := types.ParseDepth(r.URL.Query().Get("depth"))
	if err != nil {
		writeErr(w, err)
		return
	}

	lib := svcctx.LibraryFrom(r.Context())
	id := r.PathValue("id")

	if section := r.URL.Query().Get("section"); section != "" {
		res, err := lib.SectionSummary(r.Context(), id, section, depth)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	res, err := lib.Summary(r.Context(), id, depth)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (e *SummaryEndpoint) Command(getServerURL func() string) *cobra.Command {
	var depth int
	var section string
	cmd := &cobra.Command{
		Use:   "summary <book-id>",
		Short: "Get a book's summaries, generating missing ones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			params := url.Values{}
			params.Set("depth", strconv.Itoa(depth))
			if section != "" {
				params.Set("section", section)
				var resp library.SectionSummary
				if err := client.Get(cmd.Context(), "/summary/"+args[0]+"?"+params.Encode(), &resp); err != nil {
					return err
				}
				return api.Output(resp)
			}

			var resp library.BookSummary
			if err := client.Get(cmd.Context(), "/summary/"+args[0]+"?"+params.Encode(), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 1, "Summary depth (1-4)")
	cmd.Flags().StringVar(&section, "section", "", "Only this chapter (chapter-N)")
	return cmd
}
