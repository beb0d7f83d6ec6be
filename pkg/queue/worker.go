// Package queue implements the call queues and their cluster-replicated
// registry. Each queue is a worker owning an ordered set of waiting
// calls; the manager maps queue names to workers across the cluster with
// a single leader, and ranks bindable queues for the dispatcher.
package queue

import (
	"sort"
	"sync"
	"time"

	"github.com/opencpx/cpx/internal/logger"
	"github.com/opencpx/cpx/pkg/channel"
	"github.com/opencpx/cpx/pkg/metrics"
)

// DefaultRecipe is the recipe applied when the configuration names none.
const DefaultRecipe = "default"

// QueuedCall is one waiting call. Lower priority values are served first;
// ties are broken by enqueue time, oldest first.
type QueuedCall struct {
	ID          string       `json:"id"`
	Priority    int          `json:"priority"`
	EnqueueTime time.Time    `json:"enqueue_time"`
	Call        channel.Call `json:"call"`
}

// Worker holds the waiting calls of one queue. All methods are safe for
// concurrent use; the manager and dispatcher share the handle.
type Worker struct {
	name    string
	recipe  string
	weight  int
	metrics metrics.QueueMetrics

	mu      sync.Mutex
	calls   []QueuedCall
	err     error
	stopped bool
	done    chan struct{}
}

// NewWorker starts a queue worker. A weight below 1 is clamped to 1.
func NewWorker(name, recipe string, weight int, m metrics.QueueMetrics) *Worker {
	if weight < 1 {
		weight = 1
	}
	if recipe == "" {
		recipe = DefaultRecipe
	}
	return &Worker{
		name:    name,
		recipe:  recipe,
		weight:  weight,
		metrics: m,
		done:    make(chan struct{}),
	}
}

// Name returns the queue name.
func (w *Worker) Name() string { return w.name }

// Recipe returns the recipe name the worker was started with.
func (w *Worker) Recipe() string { return w.recipe }

// Weight returns the ranking weight.
func (w *Worker) Weight() int { return w.weight }

// Enqueue adds a call with the given priority.
func (w *Worker) Enqueue(call channel.Call, priority int) {
	qc := QueuedCall{
		ID:          call.ID,
		Priority:    priority,
		EnqueueTime: time.Now(),
		Call:        call,
	}
	w.enqueue(qc)
}

// EnqueueAt adds a call with an explicit enqueue time, preserving the
// original wait when a call is requeued after a failed ring.
func (w *Worker) EnqueueAt(call channel.Call, priority int, at time.Time) {
	w.enqueue(QueuedCall{ID: call.ID, Priority: priority, EnqueueTime: at, Call: call})
}

func (w *Worker) enqueue(qc QueuedCall) {
	w.mu.Lock()
	w.calls = append(w.calls, qc)
	sort.SliceStable(w.calls, func(i, j int) bool {
		if w.calls[i].Priority != w.calls[j].Priority {
			return w.calls[i].Priority < w.calls[j].Priority
		}
		return w.calls[i].EnqueueTime.Before(w.calls[j].EnqueueTime)
	})
	depth := len(w.calls)
	w.mu.Unlock()

	if w.metrics != nil {
		w.metrics.SetQueueDepth(w.name, depth)
	}
	logger.Debug("call enqueued",
		logger.KeyQueue, w.name,
		logger.KeyCallID, qc.ID,
		logger.KeyPriority, qc.Priority)
}

// Ask peeks at the best bindable call without removing it. The second
// return is false when nothing is bindable.
func (w *Worker) Ask() (QueuedCall, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || len(w.calls) == 0 {
		return QueuedCall{}, false
	}
	return w.calls[0], true
}

// Remove takes a call out of the queue, typically after it was bound to
// an agent.
func (w *Worker) Remove(callID string) bool {
	w.mu.Lock()
	found := false
	for i, qc := range w.calls {
		if qc.ID == callID {
			w.calls = append(w.calls[:i], w.calls[i+1:]...)
			found = true
			break
		}
	}
	depth := len(w.calls)
	w.mu.Unlock()

	if found && w.metrics != nil {
		w.metrics.SetQueueDepth(w.name, depth)
	}
	return found
}

// Count returns the number of waiting calls.
func (w *Worker) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.calls)
}

// Calls returns a copy of the waiting calls in service order.
func (w *Worker) Calls() []QueuedCall {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]QueuedCall, len(w.calls))
	copy(out, w.calls)
	return out
}

// Stop shuts the worker down normally. The manager drops the registry
// entry without restarting.
func (w *Worker) Stop() {
	w.exit(nil)
}

// Kill terminates the worker abnormally. The manager restarts the queue
// from its persisted configuration.
func (w *Worker) Kill(reason error) {
	w.exit(reason)
}

func (w *Worker) exit(reason error) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.err = reason
	w.mu.Unlock()
	close(w.done)
}

// Done is closed when the worker exits.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Err returns the exit reason, nil for a normal stop. Valid once Done is
// closed.
func (w *Worker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
