package engine

import (
	"sync"
	"time"

	"github.com/rickgao/inplay-odds/internal/connection"
	"github.com/rickgao/inplay-odds/internal/model"
)

// EventKind identifies what changed.
type EventKind string

const (
	EventMarketUpdated   EventKind = "market_updated"
	EventMarketRemoved   EventKind = "market_removed"
	EventChangesExpired  EventKind = "changes_expired"
	EventSnapshotLoaded  EventKind = "snapshot_loaded"
	EventSnapshotFailed  EventKind = "snapshot_failed"
	EventConnectionState EventKind = "connection_state"
)

// Event is one state-changed notification.
type Event struct {
	Kind     EventKind
	MarketID model.ID         // Market events only
	State    connection.State // EventConnectionState only
	Err      error            // Failures only
	At       time.Time
}

// notifier fans events out to subscribers. Sends never block: a full
// subscriber channel loses its oldest event.
type notifier struct {
	mu     sync.Mutex
	buffer int
	next   int
	subs   map[int]chan Event
	closed bool

	dropped int64
}

func newNotifier(buffer int) *notifier {
	if buffer < 1 {
		buffer = 1
	}
	return &notifier{
		buffer: buffer,
		subs:   make(map[int]chan Event),
	}
}

// subscribe returns a new event channel and a func that releases it.
func (n *notifier) subscribe() (<-chan Event, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan Event, n.buffer)
	if n.closed {
		close(ch)
		return ch, func() {}
	}

	id := n.next
	n.next++
	n.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if c, ok := n.subs[id]; ok {
				delete(n.subs, id)
				close(c)
			}
		})
	}
}

func (n *notifier) publish(e Event) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.subs {
		select {
		case ch <- e:
			continue
		default:
		}

		// Full: drop the oldest to make room.
		select {
		case <-ch:
			n.dropped++
		default:
		}
		select {
		case ch <- e:
		default:
		}
	}
}

// close releases every subscriber; later subscribe calls get a closed channel.
func (n *notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	n.closed = true
	for id, ch := range n.subs {
		close(ch)
		delete(n.subs, id)
	}
}

func (n *notifier) droppedCount() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dropped
}
