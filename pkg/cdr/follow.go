package cdr

import (
	"context"

	"github.com/opencpx/cpx/internal/logger"
	"github.com/opencpx/cpx/pkg/event"
)

// Follow consumes channel lifecycle events from sub and journals them.
// Returns when sub is closed or ctx is cancelled. Events that do not
// describe a channel are ignored.
func Follow(ctx context.Context, sink Sink, sub <-chan event.Event) {
	for {
		select {
		case e, ok := <-sub:
			if !ok {
				return
			}
			rec, ok := recordFromEvent(e)
			if !ok {
				continue
			}
			if err := sink.Record(ctx, rec); err != nil {
				logger.Warn("failed to journal lifecycle event",
					logger.KeyCallID, rec.CallID,
					logger.Err(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

func recordFromEvent(e event.Event) (Record, bool) {
	var name string
	switch e.Type {
	case event.TypeInitiatedChannel:
		name = EventInit
	case event.TypeChannelStateUpdate:
		name = EventStateChange
	case event.TypeTerminatedChannel:
		name = EventTerminated
		if ew, _ := e.Data["endwrapup"].(bool); ew {
			name = EventEndWrapup
		}
	default:
		return Record{}, false
	}

	callID, _ := e.Data["call"].(string)
	state, _ := e.Data["state"].(string)

	return Record{
		CallID:    callID,
		Agent:     e.Agent,
		Event:     name,
		State:     state,
		Timestamp: e.Timestamp,
		Data:      e.Data,
	}, true
}
