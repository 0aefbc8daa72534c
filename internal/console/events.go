package console

import (
	"sync"

	"github.com/capitalize-ai/operator-console/internal/model"
)

// EventType names what changed.
type EventType string

const (
	EventConversations EventType = "conversations"
	EventMessages      EventType = "messages"
	EventTaskProgress  EventType = "task-progress"
)

// Event tells subscribers which part of the session to re-read.
type Event struct {
	Type           EventType           `json:"type"`
	ConversationID string              `json:"conversationId,omitempty"`
	UnreadCount    int                 `json:"unreadCount,omitempty"`
	TaskID         string              `json:"taskId,omitempty"`
	Progress       *model.TaskProgress `json:"progress,omitempty"`
}

const subscriberBuffer = 64

// hub fans events out to subscribers. A subscriber that falls behind misses
// events rather than blocking the session.
type hub struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[chan Event]struct{})}
}

func (h *hub) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
}

func (h *hub) publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
