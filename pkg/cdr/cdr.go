// Package cdr journals call detail records: the per-call lifecycle trail
// consumed by downstream billing and reporting. The daemon appends records
// as channels move through their states; the journal is replayable per
// call id.
package cdr

import (
	"context"
	"sync"
	"time"

	"github.com/opencpx/cpx/pkg/metrics"
)

// Record event names.
const (
	EventInit        = "init"
	EventStateChange = "state_change"
	EventEndWrapup   = "endwrapup"
	EventTerminated  = "terminated"
)

// Record is one journal entry for a call.
type Record struct {
	CallID    string         `json:"call_id"`
	Agent     string         `json:"agent,omitempty"`
	Event     string         `json:"event"`
	State     string         `json:"state,omitempty"`
	Timestamp int64          `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Sink receives lifecycle records. Implementations must be safe for
// concurrent use; Record is called from channel goroutines.
type Sink interface {
	Record(ctx context.Context, rec Record) error
}

// WithMetrics wraps a sink so every append is counted. A nil metrics
// instance returns the sink unwrapped.
func WithMetrics(sink Sink, m metrics.CDRMetrics) Sink {
	if m == nil {
		return sink
	}
	return &meteredSink{next: sink, metrics: m}
}

type meteredSink struct {
	next    Sink
	metrics metrics.CDRMetrics
}

func (s *meteredSink) Record(ctx context.Context, rec Record) error {
	err := s.next.Record(ctx, rec)
	if err != nil {
		s.metrics.RecordJournalError()
		return err
	}
	s.metrics.RecordJournaled(rec.Event)
	return nil
}

// MemorySink keeps records in memory. Used in tests and as the journal
// when persistence is disabled.
type MemorySink struct {
	mu   sync.Mutex
	recs []Record
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Record(_ context.Context, rec Record) error {
	if rec.Timestamp == 0 {
		rec.Timestamp = time.Now().Unix()
	}
	s.mu.Lock()
	s.recs = append(s.recs, rec)
	s.mu.Unlock()
	return nil
}

// Records returns a copy of everything journaled so far.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.recs))
	copy(out, s.recs)
	return out
}

// List returns the records for one call in append order.
func (s *MemorySink) List(_ context.Context, callID string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, r := range s.recs {
		if r.CallID == callID {
			out = append(out, r)
		}
	}
	return out, nil
}
