package endpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrHungUp is returned by operations on a driver that already exited.
var ErrHungUp = errors.New("endpoint: hung up")

// LocalStarter spawns in-process drivers. It stands in for a PBX
// connection on single-node installs and in tests; started drivers ring
// by recording the call id rather than signalling a switch.
type LocalStarter struct {
	mu   sync.Mutex
	last *Local
}

func NewLocalStarter() *LocalStarter {
	return &LocalStarter{}
}

func (s *LocalStarter) Start(_ context.Context, spec Spec) (Endpoint, error) {
	if spec.Data == "" {
		return nil, fmt.Errorf("endpoint %s requires an address", spec.Type)
	}
	d := &Local{spec: spec, done: make(chan struct{})}
	s.mu.Lock()
	s.last = d
	s.mu.Unlock()
	return d, nil
}

// Last returns the most recently started driver, or nil.
func (s *LocalStarter) Last() *Local {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Local is the in-process Endpoint implementation.
type Local struct {
	spec Spec

	mu      sync.Mutex
	ringing string
	err     error
	closed  bool
	done    chan struct{}
}

func (d *Local) Spec() Spec { return d.spec }

func (d *Local) Ring(_ context.Context, callID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrHungUp
	}
	d.ringing = callID
	return nil
}

// RingingCall reports the call id of the last Ring, or "".
func (d *Local) RingingCall() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ringing
}

func (d *Local) Hangup() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.done)
}

// Fail terminates the driver with a reason, as a PBX-side drop would.
func (d *Local) Fail(reason error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.err = reason
	d.closed = true
	close(d.done)
}

func (d *Local) Done() <-chan struct{} { return d.done }

func (d *Local) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}
