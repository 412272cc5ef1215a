// Package jobs runs the chapter summarization pipeline: a FIFO queue of
// per-chapter tasks, the per-book status table, and the driver that drains
// the queue one rate-limited call at a time.
package jobs

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jackzampolin/skim/internal/llmcall"
	"github.com/jackzampolin/skim/internal/providers"
	"github.com/jackzampolin/skim/internal/store"
	"github.com/jackzampolin/skim/internal/types"
)

// DefaultInterval is the minimum time between two summarizer calls.
const DefaultInterval = time.Second

// BookStore is the slice of the chapter store the queue depends on.
// *store.Store implements it.
type BookStore interface {
	ReadMetadata(bookID string) (*store.Metadata, error)
	ReadChapter(bookID string, n int) (string, error)
	HasCachedSummary(bookID string, n int, depth types.Depth) bool
	WriteSummary(bookID string, n int, depth types.Depth, text string) error
	DeleteSummaries(bookID string, n int) ([]string, error)
	MarkNonChapter(bookID string, n int) error
}

// Config configures a new queue.
type Config struct {
	Store      BookStore
	Summarizer providers.Summarizer

	// Limiter is shared with anything else that must respect the global
	// interval. When nil one is created from Interval and Now.
	Limiter  *providers.RateLimiter
	Interval time.Duration

	// Recorder receives every summarizer call. Optional.
	Recorder *llmcall.Recorder

	Logger *slog.Logger
	Now    func() time.Time
}

// Queue owns the task list and the status table. All mutations are
// serialized by mu; summarizer calls happen outside it.
type Queue struct {
	mu    sync.Mutex
	tasks []Task
	books map[string]*bookState

	// tickMu makes Tick single-flight.
	tickMu sync.Mutex
	inits  singleflight.Group

	store      BookStore
	summarizer providers.Summarizer
	limiter    *providers.RateLimiter
	recorder   *llmcall.Recorder
	logger     *slog.Logger
	now        func() time.Time

	// Statistics
	calls     atomic.Int64
	failures  atomic.Int64
	cacheHits atomic.Int64
	skipped   atomic.Int64
}

// NewQueue creates an empty queue.
func NewQueue(cfg Config) (*Queue, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("jobs: store is required")
	}
	if cfg.Summarizer == nil {
		return nil, fmt.Errorf("jobs: summarizer is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	limiter := cfg.Limiter
	if limiter == nil {
		interval := cfg.Interval
		if interval == 0 {
			interval = DefaultInterval
		}
		limiter = providers.NewRateLimiterWithClock(interval, now)
	}

	return &Queue{
		books:      make(map[string]*bookState),
		store:      cfg.Store,
		summarizer: cfg.Summarizer,
		limiter:    limiter,
		recorder:   cfg.Recorder,
		logger:     logger,
		now:        now,
	}, nil
}

// Limiter returns the rate limiter guarding summarizer calls.
func (q *Queue) Limiter() *providers.RateLimiter {
	return q.limiter
}

// EnqueueBook resets the status table for a book and queues a depth-1 task
// for every chapter that is not already cached. Cached chapters are marked
// complete immediately.
func (q *Queue) EnqueueBook(bookID string, chapters []store.ChapterMeta) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enqueueBookLocked(bookID, chapters)
}

func (q *Queue) enqueueBookLocked(bookID string, chapters []store.ChapterMeta) int {
	state := newBookState()
	queued := 0
	for _, ch := range chapters {
		id := ch.ID()
		if q.store.HasCachedSummary(bookID, ch.Number, types.MinDepth) {
			state.set(id, ch.Title, types.StatusComplete)
			continue
		}
		state.set(id, ch.Title, types.StatusPending)
		q.pushLocked(Task{
			BookID:    bookID,
			ChapterID: id,
			Number:    ch.Number,
			Title:     ch.Title,
			Depth:     types.MinDepth,
		})
		queued++
	}
	q.books[bookID] = state

	q.logger.Info("book enqueued",
		"book_id", bookID,
		"chapters", len(chapters),
		"queued", queued,
		"cached", len(chapters)-queued)
	return queued
}

// EnsureBook initializes the status table for a book the first time it is
// seen, reading its chapters from the store. Concurrent calls for the same
// book enqueue it once. Returns true if this call initialized the book.
func (q *Queue) EnsureBook(bookID string) (bool, error) {
	if q.Tracked(bookID) {
		return false, nil
	}

	v, err, _ := q.inits.Do(bookID, func() (any, error) {
		meta, err := q.store.ReadMetadata(bookID)
		if err != nil {
			return false, err
		}

		q.mu.Lock()
		defer q.mu.Unlock()
		if _, ok := q.books[bookID]; ok {
			return false, nil
		}
		q.enqueueBookLocked(bookID, meta.Chapters)
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Tracked reports whether the book has a status table.
func (q *Queue) Tracked(bookID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.books[bookID]
	return ok
}

// ForgetBook drops the status table for a deleted book. Tasks already queued
// for it are skipped when popped.
func (q *Queue) ForgetBook(bookID string) {
	q.mu.Lock()
	delete(q.books, bookID)
	q.mu.Unlock()
}

// GetStatus returns a snapshot of a book's status table. Unknown books yield
// a zeroed status rather than an error.
func (q *Queue) GetStatus(bookID string) BookStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	state, ok := q.books[bookID]
	if !ok {
		return BookStatus{Chapters: []ChapterState{}}
	}
	return state.snapshot()
}

// RetryChapter requeues a chapter whose last attempt failed. It fails with
// types.ErrInvalidState unless the chapter's status is exactly error.
func (q *Queue) RetryChapter(bookID, chapterID string) error {
	id, n, err := types.ParseChapterID(chapterID)
	if err != nil {
		return err
	}

	// Metadata is only used for the display title; a missing or stale
	// record falls back to the raw id.
	meta, _ := q.store.ReadMetadata(bookID)
	title := meta.ChapterTitle(id)

	q.mu.Lock()
	defer q.mu.Unlock()

	state, ok := q.books[bookID]
	if !ok {
		return fmt.Errorf("%w: book %s is not being processed", types.ErrInvalidState, bookID)
	}
	st, ok := state.chapters[id]
	if !ok || st.Status != types.StatusError {
		return fmt.Errorf("%w: chapter %s is not in error state", types.ErrInvalidState, id)
	}

	state.set(id, title, types.StatusPending)
	q.pushLocked(Task{BookID: bookID, ChapterID: id, Number: n, Title: title, Depth: types.MinDepth})

	q.logger.Info("chapter retry queued", "book_id", bookID, "chapter", id)
	return nil
}

// InvalidateChapter deletes every cached depth of a chapter, resets it to
// pending, and queues a fresh depth-1 task. Returns the removed files.
func (q *Queue) InvalidateChapter(bookID, chapterID string) ([]string, error) {
	id, n, err := types.ParseChapterID(chapterID)
	if err != nil {
		return nil, err
	}
	if _, err := q.EnsureBook(bookID); err != nil {
		return nil, err
	}

	meta, err := q.store.ReadMetadata(bookID)
	if err != nil {
		return nil, err
	}
	ch, ok := meta.Chapter(n)
	if !ok {
		return nil, fmt.Errorf("%w: book %s has no %s", types.ErrNotFound, bookID, id)
	}
	title := meta.ChapterTitle(id)

	q.mu.Lock()
	defer q.mu.Unlock()

	deleted, err := q.store.DeleteSummaries(bookID, ch.Number)
	if err != nil {
		return deleted, err
	}

	state, ok := q.books[bookID]
	if !ok {
		state = newBookState()
		q.books[bookID] = state
	}
	state.set(id, title, types.StatusPending)
	q.pushLocked(Task{BookID: bookID, ChapterID: id, Number: n, Title: title, Depth: types.MinDepth})

	q.logger.Info("chapter invalidated", "book_id", bookID, "chapter", id, "deleted", len(deleted))
	return deleted, nil
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Tasks returns a copy of the queued tasks in FIFO order.
func (q *Queue) Tasks() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Task, len(q.tasks))
	copy(out, q.tasks)
	return out
}

// pushLocked must be called with mu held.
func (q *Queue) pushLocked(t Task) {
	t.EnqueuedAt = q.now()
	q.tasks = append(q.tasks, t)
}

// popLocked must be called with mu held.
func (q *Queue) popLocked() (Task, bool) {
	if len(q.tasks) == 0 {
		return Task{}, false
	}
	t := q.tasks[0]
	q.tasks[0] = Task{}
	q.tasks = q.tasks[1:]
	return t, true
}
