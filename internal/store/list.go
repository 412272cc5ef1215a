package store

import (
	"errors"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"
)

// BookSummary is one entry of the book listing.
type BookSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Book is a book with its full metadata.
type Book struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	UploadedAt time.Time `json:"uploadedAt"`
	Metadata   *Metadata `json:"metadata"`
}

// ListBooks scans the books directory, newest upload first.
// Books with missing or corrupt metadata are skipped.
func (s *Store) ListBooks() ([]BookSummary, error) {
	entries, err := os.ReadDir(s.dir.BooksPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []BookSummary{}, nil
		}
		return nil, storageErr("list books", err)
	}

	books := make([]BookSummary, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		book, err := s.GetBook(entry.Name())
		if err != nil {
			s.logger.Debug("skipping book", "book_id", entry.Name(), "error", err)
			continue
		}
		books = append(books, BookSummary{
			ID:         book.ID,
			Title:      book.Title,
			UploadedAt: book.UploadedAt,
		})
	}

	sort.SliceStable(books, func(i, j int) bool {
		return books[i].UploadedAt.After(books[j].UploadedAt)
	})
	return books, nil
}

// GetBook returns a book with its metadata.
func (s *Store) GetBook(bookID string) (*Book, error) {
	meta, err := s.ReadMetadata(bookID)
	if err != nil {
		return nil, err
	}

	uploadedAt := meta.UploadedAt
	if uploadedAt.IsZero() {
		if info, err := os.Stat(s.dir.BookDir(bookID)); err == nil {
			uploadedAt = info.ModTime().UTC()
		}
	}

	title := meta.Title
	if title == "" {
		title = "Untitled"
	}

	return &Book{
		ID:         bookID,
		Title:      title,
		UploadedAt: uploadedAt,
		Metadata:   meta,
	}, nil
}
