// Package ingest turns uploaded PDF, EPUB and MOBI files into chapter text
// and stores them as new books.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/jackzampolin/skim/internal/home"
	"github.com/jackzampolin/skim/internal/store"
	"github.com/jackzampolin/skim/internal/types"
)

// Document is the result of converting one file.
type Document struct {
	// Title from the file's own metadata, if it has any.
	Title    string
	Text     string
	Markdown string
	Chapters []store.ChapterInput
}

// Converter extracts text and chapters from a file on disk.
type Converter interface {
	Convert(ctx context.Context, path string) (*Document, error)
}

// Config configures an Ingester.
type Config struct {
	// MobiConverter is the Calibre ebook-convert binary used for MOBI files.
	MobiConverter string
	Logger        *slog.Logger
}

// Ingester converts uploads and writes them to the store.
type Ingester struct {
	store      *store.Store
	converters map[string]Converter
	logger     *slog.Logger
}

// New creates an Ingester with the built-in converters.
func New(st *store.Store, cfg Config) *Ingester {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{
		store: st,
		converters: map[string]Converter{
			FormatPDF:  &PDFConverter{},
			FormatEPUB: NewEPUBConverter(),
			FormatMOBI: &MOBIConverter{Binary: cfg.MobiConverter},
		},
		logger: logger,
	}
}

// SetConverter replaces the converter for a format.
func (in *Ingester) SetConverter(format string, c Converter) {
	in.converters[format] = c
}

// Request describes one upload. Path holds the uploaded bytes.
type Request struct {
	Filename string
	Path     string
}

// Result is returned after a successful ingest.
type Result struct {
	BookID   string            `json:"bookId"`
	Title    string            `json:"title"`
	Formats  map[string]string `json:"formats"`
	Metadata *store.Metadata   `json:"metadata"`
}

// Ingest converts the uploaded file and stores it as a new book.
func (in *Ingester) Ingest(ctx context.Context, req Request) (*Result, error) {
	fileType, err := FileType(req.Filename)
	if err != nil {
		return nil, err
	}
	conv, ok := in.converters[fileType]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported file type: %s", types.ErrInvalidInput, fileType)
	}

	filename := filepath.Base(req.Filename)
	logger := in.logger.With("filename", filename, "file_type", fileType)
	logger.Info("converting upload")

	doc, err := conv.Convert(ctx, req.Path)
	if err != nil {
		if errors.Is(err, types.ErrInvalidInput) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: failed to convert %s: %v", types.ErrInvalidInput, filename, err)
	}

	chapters := make([]store.ChapterInput, 0, len(doc.Chapters))
	for _, ch := range doc.Chapters {
		content := CleanText(ch.Content)
		if content == "" {
			continue
		}
		chapters = append(chapters, store.ChapterInput{Title: ch.Title, Content: content})
	}
	if len(chapters) == 0 {
		return nil, fmt.Errorf("%w: no text could be extracted from %s", types.ErrInvalidInput, filename)
	}

	title := strings.TrimSpace(doc.Title)
	if title == "" {
		title = filename
	}

	input := store.BookInput{
		Title:      title,
		FileType:   fileType,
		Chapters:   chapters,
		Text:       CleanText(doc.Text),
		Markdown:   doc.Markdown,
		SourcePath: req.Path,
		SourceName: filename,
	}

	var (
		bookID string
		meta   *store.Metadata
	)
	// A collision on the random suffix is retried once with a fresh id.
	for attempt := 0; attempt < 2; attempt++ {
		bookID = NewBookID(filename)
		meta, err = in.store.InitBook(bookID, input)
		if !errors.Is(err, types.ErrAlreadyExists) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	formats := map[string]string{
		"original": home.OriginalDirName + "/" + filename,
	}
	if input.Text != "" {
		formats["text"] = home.TextFileName
	}
	if input.Markdown != "" {
		formats["markdown"] = home.MarkdownFileName
	}

	logger.Info("upload ingested", "book_id", bookID, "chapters", len(chapters))
	return &Result{
		BookID:   bookID,
		Title:    title,
		Formats:  formats,
		Metadata: meta,
	}, nil
}
