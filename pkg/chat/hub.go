// Package chat implements the chat transport surface: creating a thread
// against a case, posting messages, and streaming new messages to
// subscribers over a websocket. It is a single-process broadcaster rather
// than the Postgres LISTEN/NOTIFY event bus the teacher uses for its
// session/stage event stream — chat volume is a handful of messages per
// case, not a continuous progress feed, so a per-process fan-out hub is
// enough and keeps the durable queue as the only cross-process channel
// Tarka needs.
package chat

import "sync"

// Hub fans out newly posted messages to any websocket subscribers watching
// a given thread. Subscribers that aren't currently reading are dropped
// rather than blocking a publish — chat is best-effort live, not guaranteed
// delivery; a client that misses an update can always refetch the thread.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan []byte]struct{}
}

// NewHub builds an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan []byte]struct{})}
}

// Subscribe registers a new listener for threadID and returns its channel
// plus a function to unregister it.
func (h *Hub) Subscribe(threadID string) (ch chan []byte, unsubscribe func()) {
	ch = make(chan []byte, 8)

	h.mu.Lock()
	if h.subs[threadID] == nil {
		h.subs[threadID] = make(map[chan []byte]struct{})
	}
	h.subs[threadID][ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs[threadID], ch)
		if len(h.subs[threadID]) == 0 {
			delete(h.subs, threadID)
		}
		h.mu.Unlock()
		close(ch)
	}
}

// Publish sends data to every current subscriber of threadID, dropping it
// for any subscriber whose channel is full.
func (h *Hub) Publish(threadID string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[threadID] {
		select {
		case ch <- data:
		default:
		}
	}
}
