package endpoints

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/skim/internal/api"
	"github.com/jackzampolin/skim/internal/ingest"
	"github.com/jackzampolin/skim/internal/svcctx"
)

// MaxUploadSize caps the multipart body accepted by POST /upload.
const MaxUploadSize = 512 << 20

// UploadEndpoint handles POST /upload.
type UploadEndpoint struct {
	// MaxSize caps the request body; zero uses MaxUploadSize.
	MaxSize int64
}

func (e *UploadEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/upload", e.handler
}

func (e *UploadEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Upload a book
//	@Description	Accepts a PDF, EPUB or MOBI file, splits it into chapters and queues every chapter.
//	@Tags			books
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"Book file (.pdf, .epub, .mobi)"
//	@Success		200		{object}	ingest.Result
//	@Failure		400		{object}	ErrorResponse
//	@Failure		413		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/upload [post]
func (e *UploadEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	limit := e.MaxSize
	if limit <= 0 {
		limit = MaxUploadSize
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "missing file: "+err.Error())
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "no filename provided")
		return
	}

	res, err := svcctx.LibraryFrom(r.Context()).Upload(r.Context(), header.Filename, file)
	if err != nil {
		svcctx.LoggerFrom(r.Context()).Warn("upload failed", "filename", header.Filename, "error", err)
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (e *UploadEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a PDF, EPUB or MOBI book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ingest.Result
			if err := client.Upload(cmd.Context(), "/upload", args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
