package events

import (
	"sync"
)

// sink is one session's outbound SSE channel. Writes beyond its buffer
// disconnect the session (spec.md §5) — Hub.Dispatch uses a non-blocking
// send and closes the sink on overflow rather than stalling the listener
// goroutine for every other session on the node.
type sink struct {
	ch     chan Message
	closed bool
}

// Message is the SSE envelope's payload half (spec.md §6): { action, data }
// paired with the subscription identity that matched it.
type Message struct {
	SubscriptionID string
	SessionID      string
	NodeID         string
	Action         string
	Data           interface{}
}

// Hub is the per-node in-memory session table spec.md §5 describes: a map
// from sessionId to an SSE sink, plus the local index of which
// subscriptionId/sessionId pairs care about a given target (object id or
// feather name) so Dispatch doesn't need a database round trip per
// notification.
type Hub struct {
	mu        sync.RWMutex
	sinks     map[string]*sink
	bySession map[string]map[string]string // sessionId -> subscriptionId -> target
	byTarget  map[string]map[string]string // target -> subscriptionId -> sessionId
	nodeID    string
	bufSize   int
}

// NewHub creates a Hub for this process's nodeId.
func NewHub(nodeID string, bufSize int) *Hub {
	return &Hub{
		sinks:     make(map[string]*sink),
		bySession: make(map[string]map[string]string),
		byTarget:  make(map[string]map[string]string),
		nodeID:    nodeID,
		bufSize:   bufSize,
	}
}

// Open registers sessionId's SSE sink, creating it if absent, and returns
// the channel handlers read from to stream events to the client.
func (h *Hub) Open(sessionID string) <-chan Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sinks[sessionID]
	if !ok {
		s = &sink{ch: make(chan Message, h.bufSize)}
		h.sinks[sessionID] = s
	}
	return s.ch
}

// Close disconnects sessionId's sink and drops its local subscription
// index, mirroring spec.md §5's cancellation contract (the caller is
// still responsible for unsubscribe/unlock against the database).
func (h *Hub) Close(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sinks[sessionID]; ok && !s.closed {
		s.closed = true
		close(s.ch)
	}
	delete(h.sinks, sessionID)

	for subID, target := range h.bySession[sessionID] {
		if byTarget, ok := h.byTarget[target]; ok {
			delete(byTarget, subID)
			if len(byTarget) == 0 {
				delete(h.byTarget, target)
			}
		}
	}
	delete(h.bySession, sessionID)
}

// Track indexes (subscriptionId, sessionId) against target locally, so a
// later Dispatch for that target reaches this session without a query.
func (h *Hub) Track(target, subscriptionID, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.byTarget[target] == nil {
		h.byTarget[target] = make(map[string]string)
	}
	h.byTarget[target][subscriptionID] = sessionID

	if h.bySession[sessionID] == nil {
		h.bySession[sessionID] = make(map[string]string)
	}
	h.bySession[sessionID][subscriptionID] = target
}

// Untrack removes subscriptionId from the local index (used by the /do
// unsubscribe handler when scope=subscription).
func (h *Hub) Untrack(subscriptionID, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	target, ok := h.bySession[sessionID][subscriptionID]
	if !ok {
		return
	}
	delete(h.bySession[sessionID], subscriptionID)
	if byTarget, ok := h.byTarget[target]; ok {
		delete(byTarget, subscriptionID)
		if len(byTarget) == 0 {
			delete(h.byTarget, target)
		}
	}
}

// Dispatch fans a notify payload out to every locally tracked session
// subscribed to target. A send that would block (the session's buffer is
// full) disconnects that session instead of stalling every other
// subscriber on this node.
func (h *Hub) Dispatch(target, action string, data interface{}) {
	h.mu.RLock()
	subs := h.byTarget[target]
	matches := make(map[string]string, len(subs))
	for subID, sessionID := range subs {
		matches[subID] = sessionID
	}
	h.mu.RUnlock()

	for subID, sessionID := range matches {
		h.mu.RLock()
		s, ok := h.sinks[sessionID]
		h.mu.RUnlock()
		if !ok || s.closed {
			continue
		}

		msg := Message{SubscriptionID: subID, SessionID: sessionID, NodeID: h.nodeID, Action: action, Data: data}
		select {
		case s.ch <- msg:
		default:
			h.Close(sessionID)
		}
	}
}
