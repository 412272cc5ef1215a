package jobs

import (
	"time"

	"github.com/jackzampolin/skim/internal/types"
)

// Task is a queued intent to summarize one chapter at a given depth.
// Tasks are ephemeral and live only in the queue.
type Task struct {
	BookID     string          `json:"book_id"`
	ChapterID  types.ChapterID `json:"chapter_id"`
	Number     int             `json:"number"`
	Title      string          `json:"title"`
	Depth      types.Depth     `json:"depth"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// ChapterState is one row of a book's status table. Error is nil unless the
// last attempt failed.
type ChapterState struct {
	ID     types.ChapterID     `json:"id"`
	Title  string              `json:"title"`
	Status types.ChapterStatus `json:"status"`
	Error  *string             `json:"error"`
}

// BookStatus is a copy-out snapshot of a book's status table.
type BookStatus struct {
	TotalChapters     int            `json:"totalChapters"`
	CompletedChapters int            `json:"completedChapters"`
	Chapters          []ChapterState `json:"chapters"`
}

// Done reports whether every chapter has finished, successfully or not.
func (s BookStatus) Done() bool {
	for _, ch := range s.Chapters {
		if ch.Status == types.StatusPending || ch.Status == types.StatusProcessing {
			return false
		}
	}
	return true
}

// TickOutcome describes what a single Tick did.
type TickOutcome string

const (
	TickBusy       TickOutcome = "busy"        // another tick was running
	TickIdle       TickOutcome = "idle"        // queue empty
	TickThrottled  TickOutcome = "throttled"   // minimum interval not yet elapsed
	TickSkipped    TickOutcome = "skipped"     // chapter untracked or no longer pending
	TickDiscarded  TickOutcome = "discarded"   // chapter reset while the call ran
	TickCached     TickOutcome = "cached"      // summary already on disk, no call made
	TickComplete   TickOutcome = "complete"    // summary generated and stored
	TickNonChapter TickOutcome = "non_chapter" // summarizer flagged front or back matter
	TickFailed     TickOutcome = "failed"      // chapter moved to error
)

// bookState is the status table for one book. order preserves chapter order.
type bookState struct {
	order    []types.ChapterID
	chapters map[types.ChapterID]*ChapterState
}

func newBookState() *bookState {
	return &bookState{chapters: make(map[types.ChapterID]*ChapterState)}
}

func (b *bookState) set(id types.ChapterID, title string, status types.ChapterStatus) {
	if st, ok := b.chapters[id]; ok {
		st.Title = title
		st.Status = status
		st.Error = nil
		return
	}
	b.order = append(b.order, id)
	b.chapters[id] = &ChapterState{ID: id, Title: title, Status: status}
}

func (b *bookState) snapshot() BookStatus {
	out := BookStatus{
		TotalChapters: len(b.order),
		Chapters:      make([]ChapterState, 0, len(b.order)),
	}
	for _, id := range b.order {
		st := *b.chapters[id]
		if st.Status == types.StatusComplete {
			out.CompletedChapters++
		}
		out.Chapters = append(out.Chapters, st)
	}
	return out
}
