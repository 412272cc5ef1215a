package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/jackzampolin/skim/internal/llmcall"
	"github.com/jackzampolin/skim/internal/providers"
	"github.com/jackzampolin/skim/internal/types"
)

// Tick processes at most one queued task. It is a no-op when the queue is
// empty, when the rate limit interval has not elapsed since the last
// summarizer call, or when another Tick is already running.
//
// A failing chapter moves to error and is left for manual retry; it never
// blocks the tasks behind it.
func (q *Queue) Tick(ctx context.Context) TickOutcome {
	if !q.tickMu.TryLock() {
		return TickBusy
	}
	defer q.tickMu.Unlock()

	q.mu.Lock()
	if len(q.tasks) == 0 {
		q.mu.Unlock()
		return TickIdle
	}
	if !q.limiter.Ready() {
		q.mu.Unlock()
		return TickThrottled
	}
	task, _ := q.popLocked()
	if !q.startLocked(task) {
		q.mu.Unlock()
		q.skipped.Add(1)
		q.logger.Debug("skipping task for chapter that is not pending", "book_id", task.BookID, "chapter", task.ChapterID)
		return TickSkipped
	}
	q.mu.Unlock()

	return q.process(ctx, task)
}

// startLocked moves the task's chapter from pending to processing. It returns
// false when the book or chapter is no longer tracked, or when the chapter is
// not pending: a duplicate task never restarts a finished or failed chapter.
func (q *Queue) startLocked(task Task) bool {
	st := q.chapterLocked(task)
	if st == nil || st.Status != types.StatusPending {
		return false
	}
	st.Status = types.StatusProcessing
	st.Error = nil
	return true
}

// chapterLocked returns the status row for the task's chapter, or nil.
func (q *Queue) chapterLocked(task Task) *ChapterState {
	state, ok := q.books[task.BookID]
	if !ok {
		return nil
	}
	return state.chapters[task.ChapterID]
}

// runningLocked returns the status row for the task's chapter if it is still
// processing. Tick is single-flight, so a processing row belongs to the task
// in flight; any reset moves it out of processing.
func (q *Queue) runningLocked(task Task) *ChapterState {
	st := q.chapterLocked(task)
	if st == nil || st.Status != types.StatusProcessing {
		return nil
	}
	return st
}

func (q *Queue) process(ctx context.Context, task Task) TickOutcome {
	logger := q.logger.With("book_id", task.BookID, "chapter", task.ChapterID, "depth", task.Depth)

	// The cache may have been filled since enqueue, e.g. by an on-demand request.
	if q.store.HasCachedSummary(task.BookID, task.Number, task.Depth) {
		q.cacheHits.Add(1)
		q.finish(task, types.StatusComplete, "")
		logger.Debug("chapter already cached")
		return TickCached
	}

	text, err := q.store.ReadChapter(task.BookID, task.Number)
	if err != nil {
		q.failures.Add(1)
		q.finish(task, types.StatusError, err.Error())
		logger.Warn("failed to read chapter", "error", err)
		return TickFailed
	}

	start := q.now()
	result, err := q.summarizer.Summarize(ctx, text, task.Depth)
	q.limiter.Mark()
	q.calls.Add(1)
	q.record(task, result)

	if err == nil && result == nil {
		err = fmt.Errorf("%w: %s returned no result", types.ErrUpstream, q.summarizer.Name())
	}
	if err != nil {
		q.failures.Add(1)
		q.finish(task, types.StatusError, err.Error())
		logger.Warn("chapter summarization failed", "error", err)
		return TickFailed
	}

	outcome, err := q.commit(task, result.Text)
	switch {
	case err != nil:
		q.failures.Add(1)
		logger.Warn("failed to store summary", "error", err)
		return TickFailed
	case outcome == TickDiscarded:
		logger.Info("discarding summary for chapter reset during call")
		return outcome
	}

	logger.Info("chapter summarized",
		"provider", result.Provider,
		"non_chapter", outcome == TickNonChapter,
		"elapsed", q.now().Sub(start).Round(time.Millisecond))
	return outcome
}

// commit stores a fresh summary and completes the chapter. The write happens
// under mu so it cannot interleave with InvalidateChapter deleting the cache.
// A chapter that was reset while the call ran gets TickDiscarded and its
// cache is left untouched, so the requeued task makes a new call.
func (q *Queue) commit(task Task, text string) (TickOutcome, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := q.runningLocked(task)
	if st == nil {
		return TickDiscarded, nil
	}
	if err := q.store.WriteSummary(task.BookID, task.Number, task.Depth, text); err != nil {
		st.Status = types.StatusError
		st.Error = errorText(err.Error())
		return TickFailed, err
	}

	outcome := TickComplete
	if task.Depth == types.MinDepth && types.IsNonChapterSummary(text) {
		if err := q.store.MarkNonChapter(task.BookID, task.Number); err != nil {
			q.logger.Warn("failed to mark non-chapter", "book_id", task.BookID, "chapter", task.ChapterID, "error", err)
		}
		outcome = TickNonChapter
	}
	st.Status = types.StatusComplete
	st.Error = nil
	return outcome, nil
}

// finish records the final status of a task. A chapter that was reset while
// the task ran (invalidated, retried, or re-enqueued) keeps its newer state.
func (q *Queue) finish(task Task, status types.ChapterStatus, errMsg string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := q.runningLocked(task)
	if st == nil {
		return
	}
	st.Status = status
	st.Error = errorText(errMsg)
}

func errorText(msg string) *string {
	if msg == "" {
		return nil
	}
	return &msg
}

func (q *Queue) record(task Task, result *providers.SummaryResult) {
	q.recorder.Record(result, llmcall.RecordOptions{
		BookID:    task.BookID,
		ChapterID: string(task.ChapterID),
		Depth:     int(task.Depth),
		Source:    llmcall.SourceQueue,
	})
}

// Stats reports queue counters and limiter state.
type Stats struct {
	Queued      int                         `json:"queued"`
	Books       int                         `json:"books"`
	Calls       int64                       `json:"calls"`
	Failures    int64                       `json:"failures"`
	CacheHits   int64                       `json:"cache_hits"`
	Skipped     int64                       `json:"skipped"`
	Summarizer  string                      `json:"summarizer"`
	RateLimiter providers.RateLimiterStatus `json:"rate_limiter"`
}

// Stats returns current queue statistics.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	queued, books := len(q.tasks), len(q.books)
	q.mu.Unlock()

	return Stats{
		Queued:      queued,
		Books:       books,
		Calls:       q.calls.Load(),
		Failures:    q.failures.Load(),
		CacheHits:   q.cacheHits.Load(),
		Skipped:     q.skipped.Load(),
		Summarizer:  q.summarizer.Name(),
		RateLimiter: q.limiter.Status(),
	}
}
