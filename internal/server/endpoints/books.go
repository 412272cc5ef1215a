package endpoints

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/skim/internal/api"
	"github.com/jackzampolin/skim/internal/jobs"
	"github.com/jackzampolin/skim/internal/store"
	"github.com/jackzampolin/skim/internal/svcctx"
	"github.com/jackzampolin/skim/internal/types"
)

const booksGroup = "books"

// ListBooksEndpoint handles GET /books.
type ListBooksEndpoint struct{}

func (e *ListBooksEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/books", e.handler
}

func (e *ListBooksEndpoint) RequiresInit() bool { return true }

func (e *ListBooksEndpoint) Group() string { return booksGroup }

// handler godoc
//
//	@Summary		List books
//	@Description	Every uploaded book, newest first. Books with unreadable metadata are skipped.
//	@Tags			books
//	@Produce		json
//	@Success		200	{array}		store.BookSummary
//	@Failure		500	{object}	ErrorResponse
//	@Router			/books [get]
func (e *ListBooksEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	books, err := svcctx.LibraryFrom(r.Context()).ListBooks()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (e *ListBooksEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all books",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var books []store.BookSummary
			if err := client.Get(cmd.Context(), "/books", &books); err != nil {
				return err
			}
			return api.Output(books)
		},
	}
}

// GetBookEndpoint handles GET /books/{id}.
type GetBookEndpoint struct{}

func (e *GetBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/books/{id}", e.handler
}

func (e *GetBookEndpoint) RequiresInit() bool { return true }

func (e *GetBookEndpoint) Group() string { return booksGroup }

// handler godoc
//
//	@Summary		Get a book
//	@Description	Book detail with metadata. The first view after startup queues every chapter for summarization.
//	@Tags			books
//	@Produce		json
//	@Param			id	path		string	true	"Book ID"
//	@Success		200	{object}	store.Book
//	@Failure		404	{object}	ErrorResponse
//	@Router			/books/{id} [get]
func (e *GetBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	book, err := svcctx.LibraryFrom(r.Context()).GetBook(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (e *GetBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <book-id>",
		Short: "Get a book and start processing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var book store.Book
			if err := client.Get(cmd.Context(), "/books/"+args[0], &book); err != nil {
				return err
			}
			return api.Output(book)
		},
	}
}

// DeleteBookResponse is returned after deleting a book.
type DeleteBookResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

// DeleteBookEndpoint handles DELETE /books/{id}.
type DeleteBookEndpoint struct{}

func (e *DeleteBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/books/{id}", e.handler
}

func (e *DeleteBookEndpoint) RequiresInit() bool { return true }

func (e *DeleteBookEndpoint) Group() string { return booksGroup }

// handler godoc
//
//	@Summary		Delete a book
//	@Description	Removes the book directory and forgets its status. Queued tasks for it are skipped.
//	@Tags			books
//	@Produce		json
//	@Param			id	path		string	true	"Book ID"
//	@Success		200	{object}	DeleteBookResponse
//	@Failure		404	{object}	ErrorResponse
//	@Router			/books/{id} [delete]
func (e *DeleteBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := svcctx.LibraryFrom(r.Context()).DeleteBook(id); err != nil {
		writeErr(w, err)
		return
	}
	if calls := svcctx.LLMCallStoreFrom(r.Context()); calls != nil {
		if n, err := calls.DeleteBook(r.Context(), id); err != nil {
			svcctx.LoggerFrom(r.Context()).Warn("failed to delete call history", "book_id", id, "error", err)
		} else if n > 0 {
			svcctx.LoggerFrom(r.Context()).Info("call history deleted", "book_id", id, "calls", n)
		}
	}
	writeJSON(w, http.StatusOK, DeleteBookResponse{Status: "deleted", ID: id})
}

func (e *DeleteBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <book-id>",
		Short: "Delete a book and its summaries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp DeleteBookResponse
			if err := client.Delete(cmd.Context(), "/books/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// BookStatusEndpoint handles GET /books/{id}/status.
type BookStatusEndpoint struct{}

func (e *BookStatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/books/{id}/status", e.handler
}

func (e *BookStatusEndpoint) RequiresInit() bool { return true }

func (e *BookStatusEndpoint) Group() string { return booksGroup }

// handler godoc
//
//	@Summary		Book processing status
//	@Description	Per-chapter status table. Books that have not been viewed since startup report zero chapters.
//	@Tags			books
//	@Produce		json
//	@Param			id	path		string	true	"Book ID"
//	@Success		200	{object}	jobs.BookStatus
//	@Router			/books/{id}/status [get]
func (e *BookStatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, svcctx.LibraryFrom(r.Context()).Status(r.PathValue("id")))
}

func (e *BookStatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	var wait bool
	var timeout, interval time.Duration
	cmd := &cobra.Command{
		Use:   "status <book-id>",
		Short: "Get chapter processing status for a book",
		Long: `Get chapter processing status for a book.

With --wait, polls until no chapter is pending or processing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			path := "/books/" + args[0] + "/status"
			if !wait {
				var status jobs.BookStatus
				if err := client.Get(cmd.Context(), path, &status); err != nil {
					return err
				}
				return api.Output(status)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			// Viewing the book starts processing if the server has not seen it yet.
			if err := client.Get(ctx, "/books/"+args[0], nil); err != nil {
				return err
			}
			status, err := WaitForBook(ctx, client, path, interval)
			if err != nil {
				return err
			}
			return api.Output(status)
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "Poll until every chapter is complete or errored")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "Give up waiting after this long")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Polling interval")
	return cmd
}

// WaitForBook polls a book status path until Done. Request errors stop the
// wait immediately.
func WaitForBook(ctx context.Context, client *api.Client, path string, interval time.Duration) (*jobs.BookStatus, error) {
	var status jobs.BookStatus
	err := retry.Do(
		func() error {
			var current jobs.BookStatus
			if err := client.Get(ctx, path, &current); err != nil {
				return retry.Unrecoverable(err)
			}
			status = current
			if current.TotalChapters == 0 || !current.Done() {
				return fmt.Errorf("%d of %d chapters complete", current.CompletedChapters, current.TotalChapters)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return &status, err
	}
	return &status, nil
}

// NonChaptersResponse lists chapters flagged as front or back matter.
type NonChaptersResponse struct {
	NonChapters []types.ChapterID `json:"non_chapters"`
}

// NonChaptersEndpoint handles GET /books/{id}/non-chapters.
type NonChaptersEndpoint struct{}

func (e *NonChaptersEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/books/{id}/non-chapters", e.handler
}

func (e *NonChaptersEndpoint) RequiresInit() bool { return true }

func (e *NonChaptersEndpoint) Group() string { return booksGroup }

// handler godoc
//
//	@Summary	List non-chapters
//	@Tags		books
//	@Produce	json
//	@Param		id	path		string	true	"Book ID"
//	@Success	200	{object}	NonChaptersResponse
//	@Failure	404	{object}	ErrorResponse
//	@Router		/books/{id}/non-chapters [get]
func (e *NonChaptersEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ids, err := svcctx.LibraryFrom(r.Context()).NonChapters(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NonChaptersResponse{NonChapters: ids})
}

func (e *NonChaptersEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "non-chapters <book-id>",
		Short: "List chapters flagged as front or back matter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp NonChaptersResponse
			if err := client.Get(cmd.Context(), "/books/"+args[0]+"/non-chapters", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
