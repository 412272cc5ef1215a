package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/skim/internal/api"
	"github.com/jackzampolin/skim/internal/library"
	"github.com/jackzampolin/skim/internal/svcctx"
)

// RetryResponse is returned when a chapter is requeued.
type RetryResponse struct {
	Status string `json:"status"`
}

// RetryChapterEndpoint handles POST /books/{id}/chapters/{chapterId}/retry.
type RetryChapterEndpoint struct{}

func (e *RetryChapterEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/books/{id}/chapters/{chapterId}/retry", e.handler
}

func (e *RetryChapterEndpoint) RequiresInit() bool { return true }

func (e *RetryChapterEndpoint) Group() string { return booksGroup }

// handler godoc
//
//	@Summary		Retry a failed chapter
//	@Description	Requeues a chapter whose status is error. Any other status is rejected.
//	@Tags			books
//	@Produce		json
//	@Param			id			path		string	true	"Book ID"
//	@Param			chapterId	path		string	true	"Chapter ID (chapter-N)"
//	@Success		200			{object}	RetryResponse
//	@Failure		400			{object}	ErrorResponse
//	@Router			/books/{id}/chapters/{chapterId}/retry [post]
func (e *RetryChapterEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	lib := svcctx.LibraryFrom(r.Context())
	if err := lib.Retry(r.PathValue("id"), r.PathValue("chapterId")); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RetryResponse{Status: "queued"})
}

func (e *RetryChapterEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <book-id> <chapter-id>",
		Short: "Retry a chapter whose summary failed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp RetryResponse
			path := "/books/" + args[0] + "/chapters/" + args[1] + "/retry"
			if err := client.Post(cmd.Context(), path, nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// InvalidateChapterEndpoint handles DELETE /books/{id}/chapters/{chapterId}/summary.
type InvalidateChapterEndpoint struct{}

func (e *InvalidateChapterEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/books/{id}/chapters/{chapterId}/summary", e.handler
}

func (e *InvalidateChapterEndpoint) RequiresInit() bool { return true }

func (e *InvalidateChapterEndpoint) Group() string { return booksGroup }

// handler godoc
//
//	@Summary		Delete a chapter's summaries
//	@Description	Deletes every cached depth for the chapter and queues it again.
//	@Tags			books
//	@Produce		json
//	@Param			id			path		string	true	"Book ID"
//	@Param			chapterId	path		string	true	"Chapter ID (chapter-N)"
//	@Success		200			{object}	library.InvalidateResult
//	@Failure		400			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Router			/books/{id}/chapters/{chapterId}/summary [delete]
func (e *InvalidateChapterEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	res, err := svcctx.LibraryFrom(r.Context()).Invalidate(r.PathValue("id"), r.PathValue("chapterId"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (e *InvalidateChapterEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <book-id> <chapter-id>",
		Short: "Delete a chapter's cached summaries and requeue it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp library.InvalidateResult
			path := "/books/" + args[0] + "/chapters/" + args[1] + "/summary"
			if err := client.Delete(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
