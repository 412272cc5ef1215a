// Package store is the filesystem-backed Chapter Store.
//
// Each book is a directory holding metadata.json, raw chapter text under
// chapters/, and cached summaries under summaries/. A summary file's presence
// is the cache hit signal; there is no separate index.
package store

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jackzampolin/skim/internal/home"
	"github.com/jackzampolin/skim/internal/types"
)

// Store reads and writes books under a home directory.
// Metadata mutations are serialized through mu; readers rely on atomic renames.
type Store struct {
	dir    *home.Dir
	logger *slog.Logger

	mu sync.Mutex
}

// New creates a Store rooted at dir.BooksPath().
func New(dir *home.Dir, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}
}

// Dir returns the home directory layout used by the store.
func (s *Store) Dir() *home.Dir {
	return s.dir
}

// ChapterInput is one chapter handed to InitBook.
type ChapterInput struct {
	Title   string
	Content string
}

// BookInput describes a freshly converted book.
type BookInput struct {
	Title    string
	FileType string
	Chapters []ChapterInput

	// Optional renditions of the whole book.
	Text     string
	Markdown string

	// SourcePath is copied into original/ under SourceName when set.
	SourcePath string
	SourceName string
}

// InitBook creates the on-disk layout for a new book and writes its metadata.
// The book is assembled in a staging directory and renamed into place, so a
// partially written book is never visible to readers.
func (s *Store) InitBook(bookID string, in BookInput) (*Metadata, error) {
	if err := validateID(bookID); err != nil {
		return nil, err
	}
	if len(in.Chapters) == 0 {
		return nil, fmt.Errorf("%w: book has no chapters", types.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	final := s.dir.BookDir(bookID)
	if _, err := os.Stat(final); err == nil {
		return nil, fmt.Errorf("%w: book %s", types.ErrAlreadyExists, bookID)
	}
	if err := os.MkdirAll(s.dir.BooksPath(), 0o755); err != nil {
		return nil, storageErr("create books directory", err)
	}

	staging, err := os.MkdirTemp(s.dir.BooksPath(), ".staging-"+bookID+"-")
	if err != nil {
		return nil, storageErr("create staging directory", err)
	}
	defer os.RemoveAll(staging)

	stagedDir := s.dir.WithBooksPath(filepath.Dir(staging))
	stagedID := filepath.Base(staging)

	for _, sub := range []string{stagedDir.ChaptersDir(stagedID), stagedDir.SummariesDir(stagedID)} {
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return nil, storageErr("create book layout", err)
		}
	}

	meta := &Metadata{
		Title:        in.Title,
		FileType:     in.FileType,
		ChapterCount: len(in.Chapters),
		UploadedAt:   time.Now().UTC(),
		Chapters:     make([]ChapterMeta, 0, len(in.Chapters)),
	}
	for i, ch := range in.Chapters {
		n := i + 1
		if err := os.WriteFile(stagedDir.ChapterPath(stagedID, n), []byte(ch.Content), 0o644); err != nil {
			return nil, storageErr("write chapter", err)
		}
		meta.Chapters = append(meta.Chapters, ChapterMeta{
			Number: n,
			Title:  ch.Title,
			Length: len(ch.Content),
		})
	}

	if in.Text != "" {
		if err := os.WriteFile(stagedDir.TextPath(stagedID), []byte(in.Text), 0o644); err != nil {
			return nil, storageErr("write text rendition", err)
		}
	}
	if in.Markdown != "" {
		if err := os.WriteFile(stagedDir.MarkdownPath(stagedID), []byte(in.Markdown), 0o644); err != nil {
			return nil, storageErr("write markdown rendition", err)
		}
	}
	if in.SourcePath != "" {
		name := in.SourceName
		if name == "" {
			name = filepath.Base(in.SourcePath)
		}
		if err := copySource(in.SourcePath, filepath.Join(stagedDir.OriginalDir(stagedID), filepath.Base(name))); err != nil {
			return nil, storageErr("copy original", err)
		}
	}

	data, err := encodeMetadata(meta)
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(stagedDir.MetadataPath(stagedID), data); err != nil {
		return nil, storageErr("write metadata", err)
	}

	if err := os.Rename(staging, final); err != nil {
		return nil, storageErr("publish book", err)
	}

	s.logger.Info("book stored", "book_id", bookID, "title", meta.Title, "chapters", meta.ChapterCount)
	return meta, nil
}

// ReadMetadata loads and validates a book's metadata.json.
func (s *Store) ReadMetadata(bookID string) (*Metadata, error) {
	if err := validateID(bookID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.dir.MetadataPath(bookID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: book %s", types.ErrNotFound, bookID)
		}
		return nil, storageErr("read metadata", err)
	}
	meta, err := decodeMetadata(data)
	if err != nil {
		return nil, fmt.Errorf("%w: book %s: %v", types.ErrStorage, bookID, err)
	}
	return meta, nil
}

// BookExists reports whether a book directory with metadata exists.
func (s *Store) BookExists(bookID string) bool {
	if validateID(bookID) != nil {
		return false
	}
	_, err := os.Stat(s.dir.MetadataPath(bookID))
	return err == nil
}

// ReadChapter returns the raw text of chapter n.
func (s *Store) ReadChapter(bookID string, n int) (string, error) {
	if err := validateID(bookID); err != nil {
		return "", err
	}
	data, err := os.ReadFile(s.dir.ChapterPath(bookID, n))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: book %s chapter %d", types.ErrNotFound, bookID, n)
		}
		return "", storageErr("read chapter", err)
	}
	return string(data), nil
}

// HasCachedSummary reports whether a summary file exists for the key.
func (s *Store) HasCachedSummary(bookID string, n int, depth types.Depth) bool {
	if validateID(bookID) != nil {
		return false
	}
	_, err := os.Stat(s.dir.SummaryPath(bookID, n, int(depth)))
	return err == nil
}

// ReadCachedSummary returns the cached summary for the key, or ok=false when absent.
// It never triggers generation.
func (s *Store) ReadCachedSummary(bookID string, n int, depth types.Depth) (string, bool, error) {
	if err := validateID(bookID); err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(s.dir.SummaryPath(bookID, n, int(depth)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, storageErr("read summary", err)
	}
	return string(data), true, nil
}

// WriteSummary stores a summary, overwriting any previous value.
// The book must exist; summaries/ is created as needed.
func (s *Store) WriteSummary(bookID string, n int, depth types.Depth, text string) error {
	if err := validateID(bookID); err != nil {
		return err
	}
	if !depth.Valid() {
		return fmt.Errorf("%w: depth %d", types.ErrInvalidInput, depth)
	}
	if _, err := os.Stat(s.dir.BookDir(bookID)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: book %s", types.ErrNotFound, bookID)
		}
		return storageErr("stat book", err)
	}
	if err := os.MkdirAll(s.dir.SummariesDir(bookID), 0o755); err != nil {
		return storageErr("create summaries directory", err)
	}
	if err := writeFileAtomic(s.dir.SummaryPath(bookID, n, int(depth)), []byte(text)); err != nil {
		return storageErr("write summary", err)
	}
	return nil
}

// DeleteSummaries removes every depth variant of chapter n and returns the removed paths.
func (s *Store) DeleteSummaries(bookID string, n int) ([]string, error) {
	if err := validateID(bookID); err != nil {
		return nil, err
	}
	var deleted []string
	for _, d := range types.Depths() {
		path := s.dir.SummaryPath(bookID, n, int(d))
		err := os.Remove(path)
		switch {
		case err == nil:
			deleted = append(deleted, path)
		case errors.Is(err, fs.ErrNotExist):
		default:
			return deleted, storageErr("delete summary", err)
		}
	}
	return deleted, nil
}

// MarkNonChapter flags chapter n as front or back matter in metadata.json.
func (s *Store) MarkNonChapter(bookID string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.ReadMetadata(bookID)
	if err != nil {
		return err
	}

	found := false
	for i := range meta.Chapters {
		if meta.Chapters[i].Number == n {
			if meta.Chapters[i].IsNonChapter {
				return nil
			}
			meta.Chapters[i].IsNonChapter = true
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: book %s chapter %d", types.ErrNotFound, bookID, n)
	}

	data, err := encodeMetadata(meta)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.dir.MetadataPath(bookID), data); err != nil {
		return storageErr("write metadata", err)
	}
	s.logger.Info("chapter marked as non-chapter", "book_id", bookID, "chapter", n)
	return nil
}

// NonChapters returns the ids of chapters flagged as non-chapters.
func (s *Store) NonChapters(bookID string) ([]types.ChapterID, error) {
	meta, err := s.ReadMetadata(bookID)
	if err != nil {
		return nil, err
	}
	ids := make([]types.ChapterID, 0)
	for _, ch := range meta.Chapters {
		if ch.IsNonChapter {
			ids = append(ids, ch.ID())
		}
	}
	return ids, nil
}

// DeleteBook removes a book and everything cached for it.
func (s *Store) DeleteBook(bookID string) error {
	if err := validateID(bookID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.dir.BookDir(bookID)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: book %s", types.ErrNotFound, bookID)
		}
		return storageErr("stat book", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return storageErr("delete book", err)
	}
	s.logger.Info("book deleted", "book_id", bookID)
	return nil
}

// validateID rejects ids that would escape the books directory.
func validateID(bookID string) error {
	if bookID == "" || bookID == "." || bookID == ".." ||
		strings.HasPrefix(bookID, ".") || strings.ContainsAny(bookID, `/\`) {
		return fmt.Errorf("%w: book id %q", types.ErrInvalidInput, bookID)
	}
	return nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", types.ErrStorage, op, err)
}

// writeFileAtomic writes to a temp file in the target directory and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func copySource(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
