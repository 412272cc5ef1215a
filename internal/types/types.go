// Package types provides shared types used across multiple packages.
// This package has no dependencies on other skim packages to avoid import cycles.
package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Depth is the requested level of summary detail, 1 (shortest) to 4.
type Depth int

const (
	MinDepth Depth = 1
	MaxDepth Depth = 4
)

// Depths lists every valid depth in ascending order.
func Depths() []Depth {
	return []Depth{1, 2, 3, 4}
}

// Valid reports whether d is within 1..4.
func (d Depth) Valid() bool {
	return d >= MinDepth && d <= MaxDepth
}

// ParseDepth parses a query value. An empty string yields depth 1.
func ParseDepth(s string) (Depth, error) {
	if s == "" {
		return MinDepth, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: depth %q is not a number", ErrInvalidInput, s)
	}
	d := Depth(n)
	if !d.Valid() {
		return 0, fmt.Errorf("%w: depth must be between 1 and 4, got %d", ErrInvalidInput, n)
	}
	return d, nil
}

// ChapterID identifies a chapter within a book: "chapter-N" with N 1-based.
type ChapterID string

const chapterPrefix = "chapter-"

// NewChapterID returns the id for chapter number n.
func NewChapterID(n int) ChapterID {
	return ChapterID(chapterPrefix + strconv.Itoa(n))
}

// ParseChapterID validates s and returns it with its chapter number. Only the
// canonical form is accepted, so "chapter-01" and "chapter-+1" are rejected.
func ParseChapterID(s string) (ChapterID, int, error) {
	rest, ok := strings.CutPrefix(s, chapterPrefix)
	if !ok {
		return "", 0, fmt.Errorf("%w: chapter id %q must look like chapter-N", ErrInvalidInput, s)
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 || strconv.Itoa(n) != rest {
		return "", 0, fmt.Errorf("%w: chapter id %q must look like chapter-N", ErrInvalidInput, s)
	}
	return NewChapterID(n), n, nil
}

// Number returns the chapter number, or 0 if the id is malformed.
func (c ChapterID) Number() int {
	_, n, err := ParseChapterID(string(c))
	if err != nil {
		return 0
	}
	return n
}

func (c ChapterID) String() string {
	return string(c)
}

// ChapterStatus is the processing state of one chapter.
type ChapterStatus string

const (
	StatusPending    ChapterStatus = "pending"
	StatusProcessing ChapterStatus = "processing"
	StatusComplete   ChapterStatus = "complete"
	StatusError      ChapterStatus = "error"
)

// NonChapterSentinel is the depth-1 summary text that flags front or back matter.
const NonChapterSentinel = "N/A"

// IsNonChapterSummary reports whether a depth-1 summary is the non-chapter sentinel.
func IsNonChapterSummary(text string) bool {
	return strings.TrimSpace(text) == NonChapterSentinel
}
