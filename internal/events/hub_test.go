package events

import (
	"testing"
	"time"
)

func TestHubTrackAndDispatchDeliversToSubscribedSession(t *testing.T) {
	h := NewHub("node-1", 4)
	ch := h.Open("session-1")
	h.Track("obj-1", "sub-1", "session-1")

	h.Dispatch("obj-1", "update", map[string]interface{}{"id": "obj-1"})

	select {
	case msg := <-ch:
		if msg.Action != "update" || msg.SubscriptionID != "sub-1" {
			t.Errorf("unexpected message: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a dispatched message")
	}
}

func TestHubDispatchIgnoresUnmatchedTarget(t *testing.T) {
	h := NewHub("node-1", 4)
	ch := h.Open("session-1")
	h.Track("obj-1", "sub-1", "session-1")

	h.Dispatch("obj-2", "update", nil)

	select {
	case msg := <-ch:
		t.Fatalf("expected no message, got %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubCloseRemovesSubscriptionIndex(t *testing.T) {
	h := NewHub("node-1", 4)
	h.Open("session-1")
	h.Track("obj-1", "sub-1", "session-1")

	h.Close("session-1")
	h.Dispatch("obj-1", "update", nil) // must not panic on closed sink

	h.mu.RLock()
	_, stillTracked := h.byTarget["obj-1"]
	h.mu.RUnlock()
	if stillTracked {
		t.Error("expected target index to be cleared after Close")
	}
}

func TestHubDispatchDisconnectsOnFullBuffer(t *testing.T) {
	h := NewHub("node-1", 1)
	h.Open("session-1")
	h.Track("obj-1", "sub-1", "session-1")

	h.Dispatch("obj-1", "update", nil) // fills the buffer of 1
	h.Dispatch("obj-1", "update", nil) // buffer full -> disconnect

	h.mu.RLock()
	_, exists := h.sinks["session-1"]
	h.mu.RUnlock()
	if exists {
		t.Error("expected session to be disconnected after buffer overflow")
	}
}

func TestHubUntrackStopsFurtherDispatch(t *testing.T) {
	h := NewHub("node-1", 4)
	ch := h.Open("session-1")
	h.Track("obj-1", "sub-1", "session-1")
	h.Untrack("sub-1", "session-1")

	h.Dispatch("obj-1", "update", nil)

	select {
	case msg := <-ch:
		t.Fatalf("expected no message after Untrack, got %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}
