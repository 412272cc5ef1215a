package library

import (
	"context"
	"fmt"

	"github.com/jackzampolin/skim/internal/llmcall"
	"github.com/jackzampolin/skim/internal/types"
)

// Section is one chapter summary.
type Section struct {
	ID      types.ChapterID `json:"id"`
	Title   string          `json:"title"`
	Content string          `json:"content"`
	Depth   types.Depth     `json:"depth"`
}

// BookSummary is the whole-book summary tree: a root node whose sections
// hold one summary per chapter.
type BookSummary struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Content  string    `json:"content"`
	Depth    int       `json:"depth"`
	Sections []Section `json:"sections"`
}

// SectionSummary is the summary of a single chapter.
type SectionSummary struct {
	Text  string          `json:"text"`
	ID    types.ChapterID `json:"id"`
	Title string          `json:"title"`
	Depth types.Depth     `json:"depth"`
}

// Summary returns every chapter's summary at depth, generating and caching
// the missing ones. Generation here bypasses the queue's rate limiter.
func (l *Library) Summary(ctx context.Context, bookID string, depth types.Depth) (*BookSummary, error) {
	if !depth.Valid() {
		return nil, fmt.Errorf("%w: depth must be between 1 and 4, got %d", types.ErrInvalidInput, depth)
	}
	book, err := l.store.GetBook(bookID)
	if err != nil {
		return nil, err
	}

	out := &BookSummary{
		ID:       "root",
		Title:    book.Title,
		Sections: make([]Section, 0, len(book.Metadata.Chapters)),
	}
	for _, ch := range book.Metadata.Chapters {
		text, err := l.chapterSummary(ctx, bookID, ch.Number, depth)
		if err != nil {
			return nil, err
		}
		out.Sections = append(out.Sections, Section{
			ID:      ch.ID(),
			Title:   ch.Title,
			Content: text,
			Depth:   depth,
		})
	}
	return out, nil
}

// SectionSummary returns one chapter's summary at depth, generating and
// caching it if needed.
func (l *Library) SectionSummary(ctx context.Context, bookID, section string, depth types.Depth) (*SectionSummary, error) {
	if !depth.Valid() {
		return nil, fmt.Errorf("%w: depth must be between 1 and 4, got %d", types.ErrInvalidInput, depth)
	}
	id, n, err := types.ParseChapterID(section)
	if err != nil {
		return nil, err
	}
	meta, err := l.store.ReadMetadata(bookID)
	if err != nil {
		return nil, err
	}
	if _, ok := meta.Chapter(n); !ok {
		return nil, fmt.Errorf("%w: book %s has no %s", types.ErrNotFound, bookID, id)
	}

	text, err := l.chapterSummary(ctx, bookID, n, depth)
	if err != nil {
		return nil, err
	}
	return &SectionSummary{
		Text:  text,
		ID:    id,
		Title: fmt.Sprintf("Chapter %d", n),
		Depth: depth,
	}, nil
}

// chapterSummary reads the cached summary or generates it. Concurrent
// requests for the same key share one summarizer call.
func (l *Library) chapterSummary(ctx context.Context, bookID string, n int, depth types.Depth) (string, error) {
	if text, ok, err := l.store.ReadCachedSummary(bookID, n, depth); err != nil {
		return "", err
	} else if ok {
		return text, nil
	}

	key := fmt.Sprintf("%s/%d/%d", bookID, n, depth)
	v, err, _ := l.generating.Do(key, func() (any, error) {
		return l.generate(ctx, bookID, n, depth)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (l *Library) generate(ctx context.Context, bookID string, n int, depth types.Depth) (string, error) {
	if text, ok, err := l.store.ReadCachedSummary(bookID, n, depth); err == nil && ok {
		return text, nil
	}

	content, err := l.store.ReadChapter(bookID, n)
	if err != nil {
		return "", err
	}

	result, err := l.summarizer.Summarize(ctx, content, depth)
	l.recorder.Record(result, llmcall.RecordOptions{
		BookID:    bookID,
		ChapterID: string(types.NewChapterID(n)),
		Depth:     int(depth),
		Source:    llmcall.SourceOnDemand,
	})
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", fmt.Errorf("%w: %s returned no result", types.ErrUpstream, l.summarizer.Name())
	}

	if err := l.store.WriteSummary(bookID, n, depth, result.Text); err != nil {
		return "", err
	}
	if depth == types.MinDepth && types.IsNonChapterSummary(result.Text) {
		if err := l.store.MarkNonChapter(bookID, n); err != nil {
			l.logger.Warn("failed to mark non-chapter", "book_id", bookID, "chapter", n, "error", err)
		}
	}

	l.logger.Info("summary generated on demand", "book_id", bookID, "chapter", n, "depth", depth)
	return result.Text, nil
}
