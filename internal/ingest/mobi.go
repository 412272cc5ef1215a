package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/jackzampolin/skim/internal/types"
)

// DefaultMobiConverter is Calibre's command line converter.
const DefaultMobiConverter = "ebook-convert"

// MOBIConverter converts MOBI files by running Calibre's ebook-convert.
type MOBIConverter struct {
	// Binary overrides DefaultMobiConverter.
	Binary string
}

// Convert implements Converter. A missing converter binary is reported as
// types.ErrInvalidInput since the format cannot be handled on this host.
func (c *MOBIConverter) Convert(ctx context.Context, path string) (*Document, error) {
	bin := c.Binary
	if bin == "" {
		bin = DefaultMobiConverter
	}
	resolved, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("%w: mobi conversion requires %s: %v", types.ErrInvalidInput, bin, err)
	}

	tmp, err := os.MkdirTemp("", "skim-mobi-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)

	text, err := runConvert(ctx, resolved, path, filepath.Join(tmp, "book.txt"))
	if err != nil {
		return nil, err
	}

	// Markdown is a best-effort rendition.
	markdown, _ := runConvert(ctx, resolved, path, filepath.Join(tmp, "book-md.txt"),
		"--txt-output-formatting=markdown")

	return &Document{
		Text:     text,
		Markdown: markdown,
		Chapters: DetectChapters(text),
	}, nil
}

func runConvert(ctx context.Context, bin, in, out string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, bin, append([]string{in, out}, args...)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("%s failed: %s", filepath.Base(bin), lastLine(output))
		}
		return "", err
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func lastLine(b []byte) string {
	end := len(b)
	for end > 0 && (b[end-1] == '\n' || b[end-1] == '\r') {
		end--
	}
	start := end
	for start > 0 && b[start-1] != '\n' {
		start--
	}
	return string(b[start:end])
}
