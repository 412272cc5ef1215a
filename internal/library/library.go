// Package library is the control surface the HTTP layer talks to. It passes
// through to the store and the job queue, and serves on-demand summaries.
package library

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/singleflight"

	"github.com/jackzampolin/skim/internal/ingest"
	"github.com/jackzampolin/skim/internal/jobs"
	"github.com/jackzampolin/skim/internal/llmcall"
	"github.com/jackzampolin/skim/internal/providers"
	"github.com/jackzampolin/skim/internal/store"
	"github.com/jackzampolin/skim/internal/types"
)

// Config configures a Library.
type Config struct {
	Store      *store.Store
	Queue      *jobs.Queue
	Summarizer providers.Summarizer
	Ingester   *ingest.Ingester
	Recorder   *llmcall.Recorder
	Logger     *slog.Logger
}

// Library wires the store, queue and summarizer together.
type Library struct {
	store      *store.Store
	queue      *jobs.Queue
	summarizer providers.Summarizer
	ingester   *ingest.Ingester
	recorder   *llmcall.Recorder
	logger     *slog.Logger

	generating singleflight.Group
}

// New creates a Library.
func New(cfg Config) (*Library, error) {
	if cfg.Store == nil || cfg.Queue == nil || cfg.Summarizer == nil {
		return nil, fmt.Errorf("library: store, queue and summarizer are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ingester := cfg.Ingester
	if ingester == nil {
		ingester = ingest.New(cfg.Store, ingest.Config{Logger: logger})
	}
	return &Library{
		store:      cfg.Store,
		queue:      cfg.Queue,
		summarizer: cfg.Summarizer,
		ingester:   ingester,
		recorder:   cfg.Recorder,
		logger:     logger,
	}, nil
}

// ListBooks returns every readable book, newest first.
func (l *Library) ListBooks() ([]store.BookSummary, error) {
	return l.store.ListBooks()
}

// GetBook returns a book and starts processing it if this is the first time
// it has been seen since startup.
func (l *Library) GetBook(bookID string) (*store.Book, error) {
	book, err := l.store.GetBook(bookID)
	if err != nil {
		return nil, err
	}
	if initialized, err := l.queue.EnsureBook(bookID); err != nil {
		l.logger.Warn("failed to initialize book processing", "book_id", bookID, "error", err)
	} else if initialized {
		l.logger.Info("book processing initialized", "book_id", bookID)
	}
	return book, nil
}

// Status returns the processing status of a book. Unknown books report zeroes.
func (l *Library) Status(bookID string) jobs.BookStatus {
	return l.queue.GetStatus(bookID)
}

// Retry requeues a failed chapter.
func (l *Library) Retry(bookID, chapterID string) error {
	return l.queue.RetryChapter(bookID, chapterID)
}

// InvalidateResult reports the cached summaries removed for a chapter.
type InvalidateResult struct {
	Status       string   `json:"status"`
	Message      string   `json:"message"`
	DeletedFiles []string `json:"deleted_files"`
}

// Invalidate deletes a chapter's cached summaries and queues it again.
func (l *Library) Invalidate(bookID, chapterID string) (*InvalidateResult, error) {
	deleted, err := l.queue.InvalidateChapter(bookID, chapterID)
	if err != nil {
		return nil, err
	}
	if deleted == nil {
		deleted = []string{}
	}
	return &InvalidateResult{
		Status:       "success",
		Message:      fmt.Sprintf("Deleted %d summary files", len(deleted)),
		DeletedFiles: deleted,
	}, nil
}

// NonChapters lists the chapters flagged as front or back matter.
func (l *Library) NonChapters(bookID string) ([]types.ChapterID, error) {
	return l.store.NonChapters(bookID)
}

// Upload converts an uploaded file, stores it, and queues every chapter.
func (l *Library) Upload(ctx context.Context, filename string, r io.Reader) (*ingest.Result, error) {
	// Validate before spooling the body to disk.
	if _, err := ingest.FileType(filename); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp("", "skim-upload-*"+filepath.Ext(filename))
	if err != nil {
		return nil, fmt.Errorf("%w: create upload file: %v", types.ErrStorage, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("%w: save upload: %v", types.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("%w: save upload: %v", types.ErrStorage, err)
	}

	res, err := l.ingester.Ingest(ctx, ingest.Request{Filename: filename, Path: tmp.Name()})
	if err != nil {
		return nil, err
	}
	// A view that lands between the write and this call may have initialized
	// the book already; EnsureBook queues it exactly once either way.
	if _, err := l.queue.EnsureBook(res.BookID); err != nil {
		return nil, err
	}
	return res, nil
}

// DeleteBook removes a book from disk and stops tracking it. Tasks already
// queued for it are skipped.
func (l *Library) DeleteBook(bookID string) error {
	if err := l.store.DeleteBook(bookID); err != nil {
		return err
	}
	l.queue.ForgetBook(bookID)
	return nil
}
