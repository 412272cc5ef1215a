package ingest

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/jackzampolin/skim/internal/store"
	"github.com/jackzampolin/skim/internal/types"
)

// Supported upload formats.
const (
	FormatPDF  = "pdf"
	FormatEPUB = "epub"
	FormatMOBI = "mobi"
)

// FullTextTitle names the single chapter of a book without chapter headings.
const FullTextTitle = "Full Text"

var (
	chapterPattern = regexp.MustCompile(`(?m)^(?:Chapter|CHAPTER)\s+(?:[0-9]+|[IVXLC]+)[.\s]*(.*?)(?:\n|$)`)
	blankLines     = regexp.MustCompile(`\n{3,}`)
	spaceRuns      = regexp.MustCompile(` +`)
)

// FileType returns the upload format for filename, or types.ErrInvalidInput
// for an empty name or an unsupported extension.
func FileType(filename string) (string, error) {
	if strings.TrimSpace(filename) == "" {
		return "", fmt.Errorf("%w: no filename provided", types.ErrInvalidInput)
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	switch ext {
	case FormatPDF, FormatEPUB, FormatMOBI:
		return ext, nil
	case "":
		return "", fmt.Errorf("%w: file %q has no extension", types.ErrInvalidInput, filename)
	default:
		return "", fmt.Errorf("%w: unsupported file type: %s", types.ErrInvalidInput, ext)
	}
}

// NewBookID derives a book id from the uploaded filename: dots become
// underscores and eight random hex characters are appended.
func NewBookID(filename string) string {
	base := strings.ReplaceAll(filepath.Base(filename), ".", "_")
	base = strings.Trim(base, "_")
	if base == "" {
		base = "book"
	}
	id := uuid.New()
	return fmt.Sprintf("%s_%x", base, id[:4])
}

// CleanText normalizes extracted text: runs of blank lines collapse to one,
// runs of spaces to a single space, and '|' (a common OCR misread) becomes 'I'.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	text = spaceRuns.ReplaceAllString(text, " ")
	text = strings.ReplaceAll(text, "|", "I")
	return strings.TrimSpace(text)
}

// DetectChapters splits text at lines starting with "Chapter N" or
// "CHAPTER IV". Each chapter runs from its heading to the next one. Text
// without any heading becomes a single "Full Text" chapter.
func DetectChapters(text string) []store.ChapterInput {
	matches := chapterPattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return []store.ChapterInput{{Title: FullTextTitle, Content: text}}
	}

	chapters := make([]store.ChapterInput, 0, len(matches))
	for i, m := range matches {
		end := len(text)
		if i < len(matches)-1 {
			end = matches[i+1][0]
		}
		chapters = append(chapters, store.ChapterInput{
			Title:   strings.TrimSpace(text[m[0]:m[1]]),
			Content: strings.TrimSpace(text[m[0]:end]),
		})
	}
	return chapters
}
