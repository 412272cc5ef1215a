package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/skim/internal/home"
	"github.com/jackzampolin/skim/internal/providers"
	"github.com/jackzampolin/skim/internal/store"
	"github.com/jackzampolin/skim/internal/types"
)

const testBook = "x_pdf_1a2b3c4d"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	queue *Queue
	store *store.Store
	mock  *providers.MockSummarizer
	clock *testClock
	meta  *store.Metadata
}

func chapterText(n int) string {
	return fmt.Sprintf("text of chapter %d", n)
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	dir, err := home.New(t.TempDir())
	if err != nil {
		t.Fatalf("home.New() error = %v", err)
	}
	return store.New(dir, nil)
}

func initBook(t *testing.T, s *store.Store, bookID string, chapters int) *store.Metadata {
	t.Helper()
	in := store.BookInput{Title: "X.pdf", FileType: "pdf"}
	for i := 1; i <= chapters; i++ {
		in.Chapters = append(in.Chapters, store.ChapterInput{
			Title:   fmt.Sprintf("Chapter %d", i),
			Content: chapterText(i),
		})
	}
	meta, err := s.InitBook(bookID, in)
	if err != nil {
		t.Fatalf("InitBook() error = %v", err)
	}
	return meta
}

func newFixture(t *testing.T, chapters int) *fixture {
	t.Helper()
	return newFixtureWith(t, chapters, nil)
}

func newFixtureWith(t *testing.T, chapters int, summarizer providers.Summarizer) *fixture {
	t.Helper()
	s := newStore(t)
	meta := initBook(t, s, testBook, chapters)

	mock := providers.NewMockSummarizer()
	if summarizer == nil {
		summarizer = mock
	}
	clock := newTestClock()
	q, err := NewQueue(Config{
		Store:      s,
		Summarizer: summarizer,
		Interval:   time.Second,
		Now:        clock.Now,
	})
	if err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}
	return &fixture{queue: q, store: s, mock: mock, clock: clock, meta: meta}
}

func taskChapters(tasks []Task) []types.ChapterID {
	out := make([]types.ChapterID, len(tasks))
	for i, task := range tasks {
		out[i] = task.ChapterID
	}
	return out
}

func chapterStatus(t *testing.T, q *Queue, bookID string, id types.ChapterID) ChapterState {
	t.Helper()
	for _, ch := range q.GetStatus(bookID).Chapters {
		if ch.ID == id {
			return ch
		}
	}
	t.Fatalf("chapter %s not in status table", id)
	return ChapterState{}
}

func TestNewQueue_RequiresDependencies(t *testing.T) {
	if _, err := NewQueue(Config{Summarizer: providers.NewMockSummarizer()}); err == nil {
		t.Error("expected error without store")
	}
	if _, err := NewQueue(Config{Store: newStore(t)}); err == nil {
		t.Error("expected error without summarizer")
	}
}

func TestEnqueueBook_NothingCached(t *testing.T) {
	f := newFixture(t, 4)

	queued := f.queue.EnqueueBook(testBook, f.meta.Chapters)
	if queued != 4 {
		t.Errorf("EnqueueBook() = %d, want 4", queued)
	}
	if f.queue.Len() != 4 {
		t.Errorf("Len() = %d, want 4", f.queue.Len())
	}

	status := f.queue.GetStatus(testBook)
	if status.TotalChapters != 4 || status.CompletedChapters != 0 {
		t.Errorf("status totals = %d/%d, want 4/0", status.TotalChapters, status.CompletedChapters)
	}
	for _, ch := range status.Chapters {
		if ch.Status != types.StatusPending {
			t.Errorf("%s status = %s, want pending", ch.ID, ch.Status)
		}
	}
}

func TestEnqueueBook_SkipsCachedChapters(t *testing.T) {
	f := newFixture(t, 3)
	if err := f.store.WriteSummary(testBook, 2, 1, "already done"); err != nil {
		t.Fatalf("WriteSummary() error = %v", err)
	}

	f.queue.EnqueueBook(testBook, f.meta.Chapters)

	status := f.queue.GetStatus(testBook)
	if status.TotalChapters != 3 || status.CompletedChapters != 1 {
		t.Fatalf("status totals = %d/%d, want 3/1", status.TotalChapters, status.CompletedChapters)
	}
	want := []types.ChapterStatus{types.StatusPending, types.StatusComplete, types.StatusPending}
	for i, ch := range status.Chapters {
		if ch.ID != types.NewChapterID(i+1) {
			t.Errorf("chapters[%d].ID = %s", i, ch.ID)
		}
		if ch.Status != want[i] {
			t.Errorf("chapters[%d].Status = %s, want %s", i, ch.Status, want[i])
		}
	}

	got := taskChapters(f.queue.Tasks())
	if len(got) != 2 || got[0] != "chapter-1" || got[1] != "chapter-3" {
		t.Errorf("queued tasks = %v, want [chapter-1 chapter-3]", got)
	}
	if f.mock.RequestCount() != 0 {
		t.Errorf("summarizer called %d times during enqueue", f.mock.RequestCount())
	}
}

func TestEnqueueBook_ResetsStatusTable(t *testing.T) {
	f := newFixture(t, 2)
	f.queue.EnqueueBook(testBook, f.meta.Chapters)
	f.queue.EnqueueBook(testBook, f.meta.Chapters[:1])

	status := f.queue.GetStatus(testBook)
	if status.TotalChapters != 1 {
		t.Errorf("TotalChapters = %d, want 1 after re-enqueue", status.TotalChapters)
	}
}

func TestGetStatus_UnknownBook(t *testing.T) {
	f := newFixture(t, 1)
	status := f.queue.GetStatus("nope")
	if status.TotalChapters != 0 || status.CompletedChapters != 0 || status.Chapters == nil || len(status.Chapters) != 0 {
		t.Errorf("GetStatus(unknown) = %+v, want zeroed", status)
	}
}

func TestTick(t *testing.T) {
	t.Run("idle", func(t *testing.T) {
		f := newFixture(t, 1)
		if got := f.queue.Tick(context.Background()); got != TickIdle {
			t.Errorf("Tick() = %s, want idle", got)
		}
	})

	t.Run("summarizes and stores", func(t *testing.T) {
		f := newFixture(t, 1)
		f.mock.ResponseText = "a summary"
		f.queue.EnqueueBook(testBook, f.meta.Chapters)

		if got := f.queue.Tick(context.Background()); got != TickComplete {
			t.Fatalf("Tick() = %s, want complete", got)
		}

		text, ok, err := f.store.ReadCachedSummary(testBook, 1, 1)
		if err != nil || !ok || text != "a summary" {
			t.Errorf("ReadCachedSummary() = %q, %v, %v", text, ok, err)
		}
		if st := chapterStatus(t, f.queue, testBook, "chapter-1"); st.Status != types.StatusComplete {
			t.Errorf("status = %s, want complete", st.Status)
		}
		calls := f.mock.Calls()
		if len(calls) != 1 || calls[0].Text != chapterText(1) || calls[0].Depth != 1 {
			t.Errorf("summarizer calls = %+v", calls)
		}
		if f.queue.Len() != 0 {
			t.Errorf("Len() = %d, want 0", f.queue.Len())
		}
	})

	t.Run("respects rate limit", func(t *testing.T) {
		f := newFixture(t, 3)
		f.queue.EnqueueBook(testBook, f.meta.Chapters)

		if got := f.queue.Tick(context.Background()); got != TickComplete {
			t.Fatalf("first Tick() = %s, want complete", got)
		}
		f.clock.Advance(500 * time.Millisecond)
		if got := f.queue.Tick(context.Background()); got != TickThrottled {
			t.Fatalf("second Tick() = %s, want throttled", got)
		}
		if f.mock.RequestCount() != 1 {
			t.Fatalf("RequestCount = %d, want 1", f.mock.RequestCount())
		}

		f.clock.Advance(500 * time.Millisecond)
		if got := f.queue.Tick(context.Background()); got != TickComplete {
			t.Fatalf("third Tick() = %s, want complete", got)
		}
		if f.mock.RequestCount() != 2 {
			t.Errorf("RequestCount = %d, want 2", f.mock.RequestCount())
		}
	})

	t.Run("failure does not stall queue", func(t *testing.T) {
		f := newFixture(t, 2)
		f.mock.FailOn = map[string]bool{chapterText(1): true}
		f.queue.EnqueueBook(testBook, f.meta.Chapters)

		if got := f.queue.Tick(context.Background()); got != TickFailed {
			t.Fatalf("Tick() = %s, want failed", got)
		}
		st := chapterStatus(t, f.queue, testBook, "chapter-1")
		if st.Status != types.StatusError || st.Error == nil {
			t.Errorf("chapter-1 = %+v, want error with message", st)
		}
		if f.store.HasCachedSummary(testBook, 1, 1) {
			t.Error("failed chapter should not be cached")
		}

		// Failures count against the rate limit too.
		if got := f.queue.Tick(context.Background()); got != TickThrottled {
			t.Fatalf("Tick() = %s, want throttled", got)
		}

		f.clock.Advance(time.Second)
		if got := f.queue.Tick(context.Background()); got != TickComplete {
			t.Fatalf("Tick() = %s, want complete", got)
		}
		if st := chapterStatus(t, f.queue, testBook, "chapter-2"); st.Status != types.StatusComplete {
			t.Errorf("chapter-2 status = %s, want complete", st.Status)
		}
		if st := chapterStatus(t, f.queue, testBook, "chapter-1"); st.Status != types.StatusError {
			t.Errorf("chapter-1 status = %s, want error (no automatic requeue)", st.Status)
		}
	})

	t.Run("non-chapter sentinel", func(t *testing.T) {
		f := newFixture(t, 2)
		f.mock.Responses = map[string]string{chapterText(1): types.NonChapterSentinel}
		f.queue.EnqueueBook(testBook, f.meta.Chapters)

		if got := f.queue.Tick(context.Background()); got != TickNonChapter {
			t.Fatalf("Tick() = %s, want non_chapter", got)
		}
		if st := chapterStatus(t, f.queue, testBook, "chapter-1"); st.Status != types.StatusComplete {
			t.Errorf("status = %s, want complete", st.Status)
		}
		meta, err := f.store.ReadMetadata(testBook)
		if err != nil {
			t.Fatalf("ReadMetadata() error = %v", err)
		}
		if !meta.Chapters[0].IsNonChapter {
			t.Error("chapter 1 not flagged as non-chapter")
		}
		if meta.Chapters[1].IsNonChapter {
			t.Error("chapter 2 flagged as non-chapter")
		}
		if text, ok, _ := f.store.ReadCachedSummary(testBook, 1, 1); !ok || text != types.NonChapterSentinel {
			t.Errorf("sentinel not persisted: %q, %v", text, ok)
		}
	})

	t.Run("cache hit skips summarizer and limiter", func(t *testing.T) {
		f := newFixture(t, 2)
		f.queue.EnqueueBook(testBook, f.meta.Chapters)
		if err := f.store.WriteSummary(testBook, 1, 1, "filled on demand"); err != nil {
			t.Fatalf("WriteSummary() error = %v", err)
		}

		if got := f.queue.Tick(context.Background()); got != TickCached {
			t.Fatalf("Tick() = %s, want cached", got)
		}
		if f.mock.RequestCount() != 0 {
			t.Errorf("RequestCount = %d, want 0", f.mock.RequestCount())
		}
		if got := f.queue.Tick(context.Background()); got != TickComplete {
			t.Fatalf("Tick() after cache hit = %s, want complete", got)
		}
		if text, _, _ := f.store.ReadCachedSummary(testBook, 1, 1); text != "filled on demand" {
			t.Errorf("cached summary overwritten: %q", text)
		}
		if f.queue.Stats().CacheHits != 1 {
			t.Errorf("CacheHits = %d, want 1", f.queue.Stats().CacheHits)
		}
	})

	t.Run("skips forgotten book", func(t *testing.T) {
		f := newFixture(t, 2)
		f.queue.EnqueueBook(testBook, f.meta.Chapters)
		f.queue.ForgetBook(testBook)
		if err := f.store.DeleteBook(testBook); err != nil {
			t.Fatalf("DeleteBook() error = %v", err)
		}

		if got := f.queue.Tick(context.Background()); got != TickSkipped {
			t.Fatalf("Tick() = %s, want skipped", got)
		}
		if got := f.queue.Tick(context.Background()); got != TickSkipped {
			t.Fatalf("Tick() = %s, want skipped", got)
		}
		if got := f.queue.Tick(context.Background()); got != TickIdle {
			t.Fatalf("Tick() = %s, want idle", got)
		}
		if f.mock.RequestCount() != 0 {
			t.Errorf("RequestCount = %d, want 0", f.mock.RequestCount())
		}
	})

	t.Run("missing chapter file fails chapter", func(t *testing.T) {
		f := newFixture(t, 1)
		f.queue.EnqueueBook(testBook, f.meta.Chapters)
		if err := os.Remove(f.store.Dir().ChapterPath(testBook, 1)); err != nil {
			t.Fatalf("remove chapter: %v", err)
		}

		if got := f.queue.Tick(context.Background()); got != TickFailed {
			t.Fatalf("Tick() = %s, want failed", got)
		}
		if st := chapterStatus(t, f.queue, testBook, "chapter-1"); st.Status != types.StatusError {
			t.Errorf("status = %s, want error", st.Status)
		}
	})
}

type blockingSummarizer struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingSummarizer() *blockingSummarizer {
	return &blockingSummarizer{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (b *blockingSummarizer) Name() string { return "blocking" }

func (b *blockingSummarizer) Summarize(ctx context.Context, text string, depth types.Depth) (*providers.SummaryResult, error) {
	b.started <- struct{}{}
	<-b.release
	return &providers.SummaryResult{Text: "done", Provider: "blocking", Success: true}, nil
}

func TestTick_SingleFlightAndProcessingState(t *testing.T) {
	b := newBlockingSummarizer()
	f := newFixtureWith(t, 2, b)
	f.queue.EnqueueBook(testBook, f.meta.Chapters)

	done := make(chan TickOutcome, 1)
	go func() { done <- f.queue.Tick(context.Background()) }()
	<-b.started

	if st := chapterStatus(t, f.queue, testBook, "chapter-1"); st.Status != types.StatusProcessing {
		t.Errorf("status during call = %s, want processing", st.Status)
	}
	if got := f.queue.Tick(context.Background()); got != TickBusy {
		t.Errorf("concurrent Tick() = %s, want busy", got)
	}

	close(b.release)
	if got := <-done; got != TickComplete {
		t.Fatalf("Tick() = %s, want complete", got)
	}
	if st := chapterStatus(t, f.queue, testBook, "chapter-1"); st.Status != types.StatusComplete {
		t.Errorf("status after call = %s, want complete", st.Status)
	}
}

func TestTick_ResetDuringCallWins(t *testing.T) {
	b := newBlockingSummarizer()
	f := newFixtureWith(t, 1, b)
	f.queue.EnqueueBook(testBook, f.meta.Chapters)

	done := make(chan TickOutcome, 1)
	go func() { done <- f.queue.Tick(context.Background()) }()
	<-b.started

	if _, err := f.queue.InvalidateChapter(testBook, "chapter-1"); err != nil {
		t.Fatalf("InvalidateChapter() error = %v", err)
	}
	close(b.release)
	if got := <-done; got != TickDiscarded {
		t.Fatalf("Tick() = %s, want discarded", got)
	}

	if st := chapterStatus(t, f.queue, testBook, "chapter-1"); st.Status != types.StatusPending {
		t.Errorf("status = %s, want pending (reset while processing)", st.Status)
	}
	if f.store.HasCachedSummary(testBook, 1, 1) {
		t.Error("stale result written after invalidation")
	}
	if f.queue.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", f.queue.Len())
	}

	// The requeued task regenerates instead of hitting a stale cache.
	f.clock.Advance(time.Second)
	if got := f.queue.Tick(context.Background()); got != TickComplete {
		t.Fatalf("requeued Tick() = %s, want complete", got)
	}
	if text, ok, _ := f.store.ReadCachedSummary(testBook, 1, 1); !ok || text != "done" {
		t.Errorf("ReadCachedSummary() = %q, %v", text, ok)
	}
}

func TestTick_DuplicateTaskDoesNotRestartChapter(t *testing.T) {
	tests := []struct {
		name       string
		shouldFail bool
		wantStatus types.ChapterStatus
	}{
		{"after failure", true, types.StatusError},
		{"after completion", false, types.StatusComplete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 1)
			f.queue.EnqueueBook(testBook, f.meta.Chapters)
			// Invalidating a pending chapter leaves two tasks for it.
			if _, err := f.queue.InvalidateChapter(testBook, "chapter-1"); err != nil {
				t.Fatalf("InvalidateChapter() error = %v", err)
			}
			if f.queue.Len() != 2 {
				t.Fatalf("Len() = %d, want 2", f.queue.Len())
			}

			f.mock.ShouldFail = tt.shouldFail
			f.queue.Tick(context.Background())
			if st := chapterStatus(t, f.queue, testBook, "chapter-1"); st.Status != tt.wantStatus {
				t.Fatalf("status = %s, want %s", st.Status, tt.wantStatus)
			}

			f.mock.ShouldFail = false
			f.clock.Advance(time.Second)
			if got := f.queue.Tick(context.Background()); got != TickSkipped {
				t.Fatalf("duplicate Tick() = %s, want skipped", got)
			}
			if f.mock.RequestCount() != 1 {
				t.Errorf("RequestCount = %d, want 1", f.mock.RequestCount())
			}
			if st := chapterStatus(t, f.queue, testBook, "chapter-1"); st.Status != tt.wantStatus {
				t.Errorf("status after duplicate = %s, want %s", st.Status, tt.wantStatus)
			}
		})
	}
}

func TestRetryChapter(t *testing.T) {
	t.Run("rejects non-error chapter", func(t *testing.T) {
		f := newFixture(t, 2)
		f.queue.EnqueueBook(testBook, f.meta.Chapters)
		before := f.queue.Tasks()
		beforeStatus := f.queue.GetStatus(testBook)

		err := f.queue.RetryChapter(testBook, "chapter-1")
		if !errors.Is(err, types.ErrInvalidState) {
			t.Fatalf("RetryChapter() error = %v, want ErrInvalidState", err)
		}
		if len(f.queue.Tasks()) != len(before) {
			t.Errorf("queue mutated: %d tasks, want %d", len(f.queue.Tasks()), len(before))
		}
		after := f.queue.GetStatus(testBook)
		for i := range after.Chapters {
			if after.Chapters[i] != beforeStatus.Chapters[i] {
				t.Errorf("status mutated: %+v -> %+v", beforeStatus.Chapters[i], after.Chapters[i])
			}
		}
	})

	t.Run("rejects complete chapter", func(t *testing.T) {
		f := newFixture(t, 1)
		f.queue.EnqueueBook(testBook, f.meta.Chapters)
		f.queue.Tick(context.Background())

		if err := f.queue.RetryChapter(testBook, "chapter-1"); !errors.Is(err, types.ErrInvalidState) {
			t.Errorf("RetryChapter() error = %v, want ErrInvalidState", err)
		}
	})

	t.Run("rejects untracked book", func(t *testing.T) {
		f := newFixture(t, 1)
		if err := f.queue.RetryChapter(testBook, "chapter-1"); !errors.Is(err, types.ErrInvalidState) {
			t.Errorf("RetryChapter() error = %v, want ErrInvalidState", err)
		}
	})

	t.Run("rejects malformed id", func(t *testing.T) {
		f := newFixture(t, 1)
		if err := f.queue.RetryChapter(testBook, "one"); !errors.Is(err, types.ErrInvalidInput) {
			t.Errorf("RetryChapter() error = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("error chapter is requeued and processed", func(t *testing.T) {
		f := newFixture(t, 1)
		f.mock.ShouldFail = true
		f.queue.EnqueueBook(testBook, f.meta.Chapters)
		if got := f.queue.Tick(context.Background()); got != TickFailed {
			t.Fatalf("Tick() = %s, want failed", got)
		}

		if err := f.queue.RetryChapter(testBook, "chapter-1"); err != nil {
			t.Fatalf("RetryChapter() error = %v", err)
		}
		st := chapterStatus(t, f.queue, testBook, "chapter-1")
		if st.Status != types.StatusPending || st.Error != nil {
			t.Errorf("after retry = %+v, want pending without error", st)
		}
		if st.Title != "Chapter 1" {
			t.Errorf("title = %q, want title from metadata", st.Title)
		}
		tasks := f.queue.Tasks()
		if len(tasks) != 1 || tasks[0].ChapterID != "chapter-1" {
			t.Fatalf("tasks = %v", taskChapters(tasks))
		}

		// A second retry races the first and must not double-queue.
		if err := f.queue.RetryChapter(testBook, "chapter-1"); !errors.Is(err, types.ErrInvalidState) {
			t.Errorf("second RetryChapter() error = %v, want ErrInvalidState", err)
		}

		f.mock.ShouldFail = false
		f.clock.Advance(time.Second)
		if got := f.queue.Tick(context.Background()); got != TickComplete {
			t.Fatalf("Tick() = %s, want complete", got)
		}
		if st := chapterStatus(t, f.queue, testBook, "chapter-1"); st.Status != types.StatusComplete {
			t.Errorf("status = %s, want complete", st.Status)
		}
	})

	t.Run("title falls back to id without metadata", func(t *testing.T) {
		f := newFixture(t, 1)
		f.mock.ShouldFail = true
		f.queue.EnqueueBook(testBook, f.meta.Chapters)
		f.queue.Tick(context.Background())
		if err := os.Remove(f.store.Dir().MetadataPath(testBook)); err != nil {
			t.Fatalf("remove metadata: %v", err)
		}

		if err := f.queue.RetryChapter(testBook, "chapter-1"); err != nil {
			t.Fatalf("RetryChapter() error = %v", err)
		}
		if st := chapterStatus(t, f.queue, testBook, "chapter-1"); st.Title != "chapter-1" {
			t.Errorf("title = %q, want raw id", st.Title)
		}
	})
}

func TestInvalidateChapter(t *testing.T) {
	f := newFixture(t, 2)
	for _, w := range []struct {
		n     int
		depth types.Depth
	}{{1, 1}, {1, 2}, {1, 4}, {2, 1}, {2, 3}} {
		if err := f.store.WriteSummary(testBook, w.n, w.depth, "cached"); err != nil {
			t.Fatalf("WriteSummary() error = %v", err)
		}
	}
	f.queue.EnqueueBook(testBook, f.meta.Chapters)
	if f.queue.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 with everything cached", f.queue.Len())
	}

	deleted, err := f.queue.InvalidateChapter(testBook, "chapter-1")
	if err != nil {
		t.Fatalf("InvalidateChapter() error = %v", err)
	}
	if len(deleted) != 3 {
		t.Errorf("deleted %d files, want 3: %v", len(deleted), deleted)
	}
	for _, d := range types.Depths() {
		if f.store.HasCachedSummary(testBook, 1, d) {
			t.Errorf("chapter 1 depth %d still cached", d)
		}
	}
	if !f.store.HasCachedSummary(testBook, 2, 1) || !f.store.HasCachedSummary(testBook, 2, 3) {
		t.Error("chapter 2 summaries were touched")
	}

	if st := chapterStatus(t, f.queue, testBook, "chapter-1"); st.Status != types.StatusPending {
		t.Errorf("chapter-1 status = %s, want pending", st.Status)
	}
	if st := chapterStatus(t, f.queue, testBook, "chapter-2"); st.Status != types.StatusComplete {
		t.Errorf("chapter-2 status = %s, want complete", st.Status)
	}
	if got := taskChapters(f.queue.Tasks()); len(got) != 1 || got[0] != "chapter-1" {
		t.Errorf("tasks = %v, want [chapter-1]", got)
	}
	if status := f.queue.GetStatus(testBook); status.TotalChapters != 2 {
		t.Errorf("TotalChapters = %d, want 2", status.TotalChapters)
	}
}

func TestInvalidateChapter_Errors(t *testing.T) {
	f := newFixture(t, 1)

	if _, err := f.queue.InvalidateChapter("missing", "chapter-1"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("unknown book error = %v, want ErrNotFound", err)
	}
	if _, err := f.queue.InvalidateChapter(testBook, "chapter-9"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("unknown chapter error = %v, want ErrNotFound", err)
	}
	if _, err := f.queue.InvalidateChapter(testBook, "bogus"); !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("malformed id error = %v, want ErrInvalidInput", err)
	}
}

func TestInvalidateChapter_NonCanonicalID(t *testing.T) {
	f := newFixture(t, 3)
	f.queue.EnqueueBook(testBook, f.meta.Chapters)

	for _, id := range []string{"chapter-01", "chapter-+1", "chapter-001"} {
		if _, err := f.queue.InvalidateChapter(testBook, id); !errors.Is(err, types.ErrInvalidInput) {
			t.Errorf("InvalidateChapter(%q) error = %v, want ErrInvalidInput", id, err)
		}
		if err := f.queue.RetryChapter(testBook, id); !errors.Is(err, types.ErrInvalidInput) {
			t.Errorf("RetryChapter(%q) error = %v, want ErrInvalidInput", id, err)
		}
	}

	status := f.queue.GetStatus(testBook)
	if status.TotalChapters != 3 || len(status.Chapters) != 3 {
		t.Errorf("status table has %d entries, want 3", len(status.Chapters))
	}
	if f.queue.Len() != 3 {
		t.Errorf("Len() = %d, want 3", f.queue.Len())
	}
}

func TestInvalidateChapter_UntrackedBookInitializesFirst(t *testing.T) {
	f := newFixture(t, 2)

	if _, err := f.queue.InvalidateChapter(testBook, "chapter-2"); err != nil {
		t.Fatalf("InvalidateChapter() error = %v", err)
	}
	status := f.queue.GetStatus(testBook)
	if status.TotalChapters != 2 {
		t.Errorf("TotalChapters = %d, want 2", status.TotalChapters)
	}
}

func TestEnsureBook(t *testing.T) {
	t.Run("initializes once under concurrency", func(t *testing.T) {
		f := newFixture(t, 3)

		var wg sync.WaitGroup
		var mu sync.Mutex
		initialized := 0
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := f.queue.EnsureBook(testBook)
				if err != nil {
					t.Errorf("EnsureBook() error = %v", err)
					return
				}
				if ok {
					mu.Lock()
					initialized++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if initialized != 1 {
			t.Errorf("initialized %d times, want 1", initialized)
		}
		if f.queue.Len() != 3 {
			t.Errorf("Len() = %d, want 3", f.queue.Len())
		}
	})

	t.Run("uses cache", func(t *testing.T) {
		f := newFixture(t, 2)
		_ = f.store.WriteSummary(testBook, 1, 1, "done")

		if _, err := f.queue.EnsureBook(testBook); err != nil {
			t.Fatalf("EnsureBook() error = %v", err)
		}
		if status := f.queue.GetStatus(testBook); status.CompletedChapters != 1 {
			t.Errorf("CompletedChapters = %d, want 1", status.CompletedChapters)
		}

		ok, _ := f.queue.EnsureBook(testBook)
		if ok {
			t.Error("second EnsureBook() reinitialized the book")
		}
		if f.queue.Len() != 1 {
			t.Errorf("Len() = %d, want 1", f.queue.Len())
		}
	})

	t.Run("missing book", func(t *testing.T) {
		f := newFixture(t, 1)
		if _, err := f.queue.EnsureBook("missing"); !errors.Is(err, types.ErrNotFound) {
			t.Errorf("EnsureBook() error = %v, want ErrNotFound", err)
		}
		if f.queue.Tracked("missing") {
			t.Error("missing book is tracked")
		}
	})
}

func TestStats(t *testing.T) {
	f := newFixture(t, 2)
	f.mock.FailOn = map[string]bool{chapterText(2): true}
	f.queue.EnqueueBook(testBook, f.meta.Chapters)

	f.queue.Tick(context.Background())
	f.clock.Advance(time.Second)
	f.queue.Tick(context.Background())

	stats := f.queue.Stats()
	if stats.Calls != 2 || stats.Failures != 1 || stats.Queued != 0 || stats.Books != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
	if stats.Summarizer != providers.MockName {
		t.Errorf("Summarizer = %q", stats.Summarizer)
	}
	if stats.RateLimiter.TotalCalls != 2 {
		t.Errorf("RateLimiter.TotalCalls = %d, want 2", stats.RateLimiter.TotalCalls)
	}
}
