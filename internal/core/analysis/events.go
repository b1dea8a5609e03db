package analysis

import (
	"sync"

	"github.com/neilberkman/rentcheck/internal/core/models"
)

// EventType identifies what changed.
type EventType string

const (
	EventDraftChanged    EventType = "draft_changed"
	EventAnalysisUpdated EventType = "analysis_updated"
	EventCurrentChanged  EventType = "current_changed"
	EventHistoryChanged  EventType = "history_changed"
	EventChatUpdated     EventType = "chat_updated"
)

// Event notifies presentation code of a state change. Analysis is a copy.
type Event struct {
	Type       EventType
	AnalysisID string
	Analysis   *models.Analysis
	Err        error
}

const subscriberBuffer = 64

type broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	next   int
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan Event)}
}

func (b *broadcaster) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// publish never blocks; a subscriber that falls behind misses events and
// re-reads state through the orchestrator accessors.
func (b *broadcaster) publish(e Event) (dropped int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			dropped++
		}
	}
	return dropped
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
