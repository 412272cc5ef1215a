package home

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("with explicit path", func(t *testing.T) {
		dir, err := New("/tmp/test-skim")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dir.Path() != "/tmp/test-skim" {
			t.Errorf("expected path /tmp/test-skim, got %s", dir.Path())
		}
	})

	t.Run("with empty path uses default", func(t *testing.T) {
		dir, err := New("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, DefaultDirName)
		if dir.Path() != expected {
			t.Errorf("expected path %s, got %s", expected, dir.Path())
		}
	})
}

func TestDir_Paths(t *testing.T) {
	dir, _ := New("/tmp/test-skim")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"BooksPath", dir.BooksPath(), "/tmp/test-skim/books"},
		{"ConfigPath", dir.ConfigPath(), "/tmp/test-skim/config.yaml"},
		{"DatabasePath", dir.DatabasePath(), "/tmp/test-skim/skim.db"},
		{"MetadataPath", dir.MetadataPath("b1"), "/tmp/test-skim/books/b1/metadata.json"},
		{"ChapterPath", dir.ChapterPath("b1", 3), "/tmp/test-skim/books/b1/chapters/chapter-3.txt"},
		{"SummaryPath", dir.SummaryPath("b1", 3, 2), "/tmp/test-skim/books/b1/summaries/chapter-3-depth-2.txt"},
		{"OriginalDir", dir.OriginalDir("b1"), "/tmp/test-skim/books/b1/original"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %s, want %s", tt.got, tt.want)
			}
		})
	}
}

func TestDir_WithBooksPath(t *testing.T) {
	dir, _ := New("/tmp/test-skim")

	custom := dir.WithBooksPath("/srv/books")
	if custom.BooksPath() != "/srv/books" {
		t.Errorf("expected /srv/books, got %s", custom.BooksPath())
	}
	if custom.ChapterPath("b1", 1) != "/srv/books/b1/chapters/chapter-1.txt" {
		t.Errorf("unexpected chapter path %s", custom.ChapterPath("b1", 1))
	}
	if custom.ConfigPath() != dir.ConfigPath() {
		t.Error("config path should not move with the books path")
	}

	if dir.WithBooksPath("").BooksPath() != "/tmp/test-skim/books" {
		t.Error("empty books path should keep the default")
	}
}

func TestDir_EnsureExists(t *testing.T) {
	tmpDir := t.TempDir()
	skimDir := filepath.Join(tmpDir, "skim-test")

	dir, err := New(skimDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dir.Exists() {
		t.Error("directory should not exist before EnsureExists")
	}

	if err := dir.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists failed: %v", err)
	}

	if !dir.Exists() {
		t.Error("directory should exist after EnsureExists")
	}
	if _, err := os.Stat(dir.BooksPath()); os.IsNotExist(err) {
		t.Error("books directory should exist after EnsureExists")
	}
}

func TestDir_ConfigExists(t *testing.T) {
	tmpDir := t.TempDir()
	dir, _ := New(tmpDir)

	if dir.ConfigExists() {
		t.Error("config should not exist initially")
	}

	if err := os.WriteFile(dir.ConfigPath(), []byte("books_dir: /tmp\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	if !dir.ConfigExists() {
		t.Error("config should exist after creation")
	}
}
