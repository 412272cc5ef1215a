package jobs

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTickInterval is how often the driver calls Tick. Tick throttles
// itself, so this only bounds the latency between eligible calls.
const DefaultTickInterval = 250 * time.Millisecond

// Driver calls Queue.Tick on a fixed period until its context is cancelled.
// Ticks run inline in the driver goroutine, so two never overlap.
type Driver struct {
	queue    *Queue
	interval time.Duration
	logger   *slog.Logger

	running atomic.Bool
	ticks   atomic.Int64

	mu          sync.Mutex
	lastTick    time.Time
	lastOutcome TickOutcome
	outcomes    map[TickOutcome]int64
}

// DriverStatus reports driver state.
type DriverStatus struct {
	Running     bool                  `json:"running"`
	Interval    time.Duration         `json:"interval"`
	Ticks       int64                 `json:"ticks"`
	LastTick    time.Time             `json:"last_tick,omitzero"`
	LastOutcome TickOutcome           `json:"last_outcome,omitempty"`
	Outcomes    map[TickOutcome]int64 `json:"outcomes"`
}

// NewDriver creates a driver for q. A non-positive interval uses DefaultTickInterval.
func NewDriver(q *Queue, interval time.Duration, logger *slog.Logger) *Driver {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		queue:    q,
		interval: interval,
		logger:   logger,
		outcomes: make(map[TickOutcome]int64),
	}
}

// Run ticks until ctx is cancelled. It returns nil on cancellation.
func (d *Driver) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		d.logger.Warn("driver already running")
		return nil
	}
	defer d.running.Store(false)

	d.logger.Info("queue driver started", "interval", d.interval)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("queue driver stopped", "ticks", d.ticks.Load())
			return nil
		case now := <-ticker.C:
			outcome := d.queue.Tick(ctx)
			d.observe(now, outcome)
		}
	}
}

func (d *Driver) observe(now time.Time, outcome TickOutcome) {
	d.ticks.Add(1)
	d.mu.Lock()
	d.lastTick = now
	d.lastOutcome = outcome
	d.outcomes[outcome]++
	d.mu.Unlock()
}

// Status returns the current driver status.
func (d *Driver) Status() DriverStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	outcomes := make(map[TickOutcome]int64, len(d.outcomes))
	for k, v := range d.outcomes {
		outcomes[k] = v
	}
	return DriverStatus{
		Running:     d.running.Load(),
		Interval:    d.interval,
		Ticks:       d.ticks.Load(),
		LastTick:    d.lastTick,
		LastOutcome: d.lastOutcome,
		Outcomes:    outcomes,
	}
}
