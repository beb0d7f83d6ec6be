package event

import (
	"sync"
	"time"

	"github.com/opencpx/cpx/pkg/metrics"
)

// subscriberBuffer is the per-subscriber channel capacity. A subscriber
// that falls further behind loses its oldest pending events.
const subscriberBuffer = 64

type subscriber struct {
	ch    chan Event
	agent string // filter; empty receives everything
}

// Manager fans events out to subscribers. Broadcast never blocks the
// publisher: full subscribers drop their oldest pending event.
type Manager struct {
	mu      sync.RWMutex
	subs    map[<-chan Event]*subscriber
	metrics metrics.EventMetrics
}

// NewManager creates an event manager. metrics may be nil.
func NewManager(m metrics.EventMetrics) *Manager {
	return &Manager{
		subs:    make(map[<-chan Event]*subscriber),
		metrics: m,
	}
}

// Subscribe registers for every event.
func (m *Manager) Subscribe() <-chan Event {
	return m.subscribe("")
}

// SubscribeAgent registers for events scoped to one agent login. Broadcast
// events (empty Agent field) are delivered too.
func (m *Manager) SubscribeAgent(login string) <-chan Event {
	return m.subscribe(login)
}

func (m *Manager) subscribe(agent string) <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	m.mu.Lock()
	m.subs[ch] = &subscriber{ch: ch, agent: agent}
	count := len(m.subs)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SetSubscribers(count)
	}
	return ch
}

// Evict removes a subscriber and closes its channel. Safe to call with a
// channel that was already evicted.
func (m *Manager) Evict(ch <-chan Event) {
	m.mu.Lock()
	sub, ok := m.subs[ch]
	if ok {
		delete(m.subs, ch)
	}
	count := len(m.subs)
	m.mu.Unlock()

	// No publisher can reach the subscriber once it left the map, so the
	// close cannot race a send.
	if ok {
		close(sub.ch)
	}
	if m.metrics != nil {
		m.metrics.SetSubscribers(count)
	}
}

// SubscribersCount returns the number of registered subscribers.
func (m *Manager) SubscribersCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

// Publish broadcasts an event to every matching subscriber without
// blocking. A subscriber whose buffer is full loses its oldest pending
// event to make room for the new one.
func (m *Manager) Publish(e Event) {
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().Unix()
	}

	m.mu.RLock()
	for _, sub := range m.subs {
		if sub.agent != "" && e.Agent != "" && sub.agent != e.Agent {
			continue
		}
		m.deliver(sub, e)
	}
	m.mu.RUnlock()

	if m.metrics != nil {
		m.metrics.RecordPublished(string(e.Type))
	}
}

func (m *Manager) deliver(sub *subscriber, e Event) {
	select {
	case sub.ch <- e:
		return
	default:
	}

	// Buffer full: drop the oldest entry and retry once. The second send
	// can still lose to a concurrent publisher, in which case this event
	// is the one dropped.
	select {
	case <-sub.ch:
		if m.metrics != nil {
			m.metrics.RecordDropped(string(e.Type))
		}
	default:
	}

	select {
	case sub.ch <- e:
	default:
		if m.metrics != nil {
			m.metrics.RecordDropped(string(e.Type))
		}
	}
}
