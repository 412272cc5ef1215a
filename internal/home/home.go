package home

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	// DefaultDirName is the default name for the skim home directory.
	DefaultDirName = ".skim"

	// BooksDirName is the subdirectory holding one directory per book.
	BooksDirName = "books"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// DatabaseFileName holds summarization call history.
	DatabaseFileName = "skim.db"

	MetadataFileName = "metadata.json"
	ChaptersDirName  = "chapters"
	SummariesDirName = "summaries"
	OriginalDirName  = "original"
	TextFileName     = "content.txt"
	MarkdownFileName = "content.md"
)

// Dir represents the skim home directory structure.
//
// Book layout under BooksPath():
//
//	<book-id>/metadata.json
//	<book-id>/chapters/chapter-N.txt
//	<book-id>/summaries/chapter-N-depth-D.txt
type Dir struct {
	path      string
	booksPath string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.skim).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// WithBooksPath returns a copy of d whose books live at p instead of <home>/books.
// An empty p keeps the default.
func (d *Dir) WithBooksPath(p string) *Dir {
	return &Dir{path: d.path, booksPath: p}
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// BooksPath returns the directory holding all books.
func (d *Dir) BooksPath() string {
	if d.booksPath != "" {
		return d.booksPath
	}
	return filepath.Join(d.path, BooksDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// DatabasePath returns the default path of the call history database.
func (d *Dir) DatabasePath() string {
	return filepath.Join(d.path, DatabaseFileName)
}

// EnsureExists creates the home directory and the books directory if they don't exist.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return fmt.Errorf("failed to create home directory: %w", err)
	}
	if err := os.MkdirAll(d.BooksPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create books directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// BookDir returns the directory of a book.
func (d *Dir) BookDir(bookID string) string {
	return filepath.Join(d.BooksPath(), bookID)
}

// MetadataPath returns the path of a book's metadata.json.
func (d *Dir) MetadataPath(bookID string) string {
	return filepath.Join(d.BookDir(bookID), MetadataFileName)
}

// ChaptersDir returns the directory of a book's raw chapter text.
func (d *Dir) ChaptersDir(bookID string) string {
	return filepath.Join(d.BookDir(bookID), ChaptersDirName)
}

// ChapterPath returns the path of chapter n (1-indexed).
func (d *Dir) ChapterPath(bookID string, n int) string {
	return filepath.Join(d.ChaptersDir(bookID), "chapter-"+strconv.Itoa(n)+".txt")
}

// SummariesDir returns the directory of a book's cached summaries.
func (d *Dir) SummariesDir(bookID string) string {
	return filepath.Join(d.BookDir(bookID), SummariesDirName)
}

// SummaryPath returns the cached summary path for chapter n at the given depth.
func (d *Dir) SummaryPath(bookID string, n, depth int) string {
	return filepath.Join(d.SummariesDir(bookID), fmt.Sprintf("chapter-%d-depth-%d.txt", n, depth))
}

// OriginalDir returns the directory holding the uploaded source file.
func (d *Dir) OriginalDir(bookID string) string {
	return filepath.Join(d.BookDir(bookID), OriginalDirName)
}

// TextPath returns the path of the full cleaned text of a book.
func (d *Dir) TextPath(bookID string) string {
	return filepath.Join(d.BookDir(bookID), TextFileName)
}

// MarkdownPath returns the path of the markdown rendition of a book.
func (d *Dir) MarkdownPath(bookID string) string {
	return filepath.Join(d.BookDir(bookID), MarkdownFileName)
}
