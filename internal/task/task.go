package task

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// StartInput is the payload for start_download (§6).
type StartInput struct {
	ID          string
	URL         string
	Name        string
	OutputDir   string
	ThreadCount int
	Headers     map[string]string
}

// Task tracks one download's mutable state. Status transitions are
// serialized by mu (§5 "Status transitions for a single task are totally
// ordered"); per-segment counters are plain atomics so the hot path never
// takes mu.
type Task struct {
	StartInput
	CreatedAt time.Time

	mu     sync.Mutex
	status Status

	doneCount  atomic.Int64
	totalCount atomic.Int64
	bytesTotal atomic.Int64
	speedBits  atomic.Int64 // math.Float64bits(speedBps)

	lastErr error

	events chan Event

	cancel context.CancelFunc
	done   chan struct{} // closed when the driver goroutine returns
}

// New creates a Task in the "new" state. The event channel is unbounded in
// practice (a large fixed buffer) so a slow UI consumer never blocks a
// segment worker's progress publish.
func New(in StartInput) *Task {
	return &Task{
		StartInput: in,
		CreatedAt:  time.Now(),
		status:     StatusNew,
		events:     make(chan Event, 4096),
		done:       make(chan struct{}),
	}
}

// Events returns the task's event channel.
func (t *Task) Events() <-chan Event { return t.events }

// Status returns the current lifecycle status.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// setStatus transitions the task and is always called from the single
// driver goroutine, so transitions for one task are totally ordered.
func (t *Task) setStatus(s Status) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

// MarkQueued transitions a newly created task from "new" to "queued"
// (§4.6's `new(10) -> queued(1)` step). The registry calls this once,
// right after New and before the driver goroutine is spawned, so
// Status()/Snapshot() can observe "queued" for the window between
// admission and the driver goroutine actually running.
func (t *Task) MarkQueued() {
	t.setStatus(StatusQueued)
}

// LastError returns the error that moved the task to a failure state, if any.
func (t *Task) LastError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

func (t *Task) setLastError(err error) {
	t.mu.Lock()
	t.lastErr = err
	t.mu.Unlock()
}

// Snapshot is the derived, unpersisted progress view (§3).
type Snapshot struct {
	DoneCount  int
	TotalCount int
	BytesTotal int64
	SpeedBps   float64
	Status     Status
}

// Snapshot returns the task's current progress.
func (t *Task) Snapshot() Snapshot {
	return Snapshot{
		DoneCount:  int(t.doneCount.Load()),
		TotalCount: int(t.totalCount.Load()),
		BytesTotal: t.bytesTotal.Load(),
		SpeedBps:   t.loadSpeedBps(),
		Status:     t.Status(),
	}
}

func (t *Task) storeSpeedBps(v float64) { t.speedBits.Store(int64(math.Float64bits(v))) }
func (t *Task) loadSpeedBps() float64   { return math.Float64frombits(uint64(t.speedBits.Load())) }

// Done returns a channel closed when the driver goroutine has returned.
func (t *Task) Done() <-chan struct{} { return t.done }

// Cancel requests cooperative cancellation. Idempotent; calling it on a
// terminal task is a no-op (§5).
func (t *Task) Cancel() {
	t.mu.Lock()
	terminal := t.status.Terminal()
	cancel := t.cancel
	t.mu.Unlock()
	if terminal || cancel == nil {
		return
	}
	cancel()
}
