package orchestrator

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"albumvideo/internal/engine"
)

// Metric keys recorded per track. Values are milliseconds.
const (
	metricSpawnLatency    = "spawn_latency_ms"
	metricFirstProgress   = "first_progress_ms"
	metricFirstOutputByte = "first_output_byte_ms"
)

// Job is one render request's lifecycle, from acceptance to a terminal
// state. Exactly one job occupies the process-wide current-job slot.
type Job struct {
	ID        string
	CreatedAt time.Time

	fsm *engine.FSM

	mu              sync.Mutex
	metrics         map[string]float64
	cancelRequested bool
	cancelDeferred  bool
	cancelCh        chan struct{}
}

func newJob() *Job {
	return &Job{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		fsm:       engine.New(),
		metrics:   make(map[string]float64),
		cancelCh:  make(chan struct{}),
	}
}

// Phase returns the job's current lifecycle state.
func (j *Job) Phase() engine.State {
	return j.fsm.State()
}

// RequestCancel registers a cancellation. Outside FINALIZING it takes
// effect immediately by releasing the cancel channel. During FINALIZING
// it is deferred: an in-place abort mid-rename could leave an output
// half-renamed, so the supervisor finishes the in-flight finalize first.
// Returns true when the cancellation was applied immediately.
func (j *Job) RequestCancel() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancelRequested {
		return !j.cancelDeferred
	}
	j.cancelRequested = true
	if j.fsm.State() == engine.StateFinalizing {
		j.cancelDeferred = true
		return false
	}
	close(j.cancelCh)
	return true
}

// CancelRequested reports whether any cancellation, immediate or
// deferred, has been registered.
func (j *Job) CancelRequested() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelRequested
}

// cancelChan is selected on by the supervisor; closed on immediate
// cancellation.
func (j *Job) cancelChan() <-chan struct{} {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelCh
}

// recordMetric accumulates a per-track metric sample. Rejected once a
// terminal state has committed.
func (j *Job) recordMetric(key string, valueMs float64) error {
	if err := j.fsm.AssertCanMutateMetrics(key); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.metrics[key] += valueMs
	return nil
}

// metric returns the accumulated value for a key.
func (j *Job) metric(key string) float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.metrics[key]
}
