package llmcall

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackzampolin/skim/internal/providers"
)

const (
	defaultRecorderBuffer = 256
	drainTimeout          = 5 * time.Second
)

// Recorder handles fire-and-forget LLM call recording.
// Calls are queued on a buffered channel and written by Run.
type Recorder struct {
	store   *Store
	ch      chan *Call
	logger  *slog.Logger
	dropped atomic.Int64
}

// NewRecorder creates a new LLM call recorder. A buffer <= 0 uses the default.
func NewRecorder(store *Store, logger *slog.Logger, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = defaultRecorderBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:  store,
		ch:     make(chan *Call, buffer),
		logger: logger,
	}
}

// Record captures an LLM call asynchronously.
// This is non-blocking: when the buffer is full the call is dropped.
func (r *Recorder) Record(result *providers.SummaryResult, opts RecordOptions) {
	if r == nil || r.store == nil {
		return
	}
	r.RecordCall(FromSummaryResult(result, opts))
}

// RecordCall captures an already-constructed Call asynchronously.
func (r *Recorder) RecordCall(call *Call) {
	if r == nil || r.store == nil || call == nil {
		return
	}
	select {
	case r.ch <- call:
	default:
		r.dropped.Add(1)
		r.logger.Warn("llm call recorder buffer full, dropping record", "call_id", call.ID)
	}
}

// Dropped returns how many records were discarded because the buffer was full.
func (r *Recorder) Dropped() int64 {
	if r == nil {
		return 0
	}
	return r.dropped.Load()
}

// Run writes queued calls until ctx is cancelled, then drains what is left.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case call := <-r.ch:
			r.write(ctx, call)
		case <-ctx.Done():
			r.drain()
			return nil
		}
	}
}

func (r *Recorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case call := <-r.ch:
			r.write(ctx, call)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, call *Call) {
	if err := r.store.Insert(ctx, call); err != nil {
		r.logger.Warn("failed to record llm call", "call_id", call.ID, "error", err)
	}
}
