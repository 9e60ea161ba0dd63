package events

import (
	"context"
	"encoding/json"
	"log"

	"github.com/lib/pq"
	"github.com/localnerve/featherdb/internal/apperr"
	"github.com/localnerve/featherdb/internal/models"
	"github.com/localnerve/featherdb/internal/tools"
	"gorm.io/gorm"
)

// notifyPayload is what Notify sends over the wire and Listen parses back.
type notifyPayload struct {
	Target   string      `json:"target"`
	IsFeather bool       `json:"isFeather"`
	Action   string      `json:"action"`
	Data     interface{} `json:"data"`
}

// Listen opens a LISTEN on the channel named after nodeId and, for every
// notification, sanitizes the payload and dispatches it through hub — the
// node's own locally held per-session SSE channels (spec.md §4.4). Exactly
// one listener runs per node; the caller owns the *pq.Listener's lifetime
// (internal/database.OpenListener constructs it).
func Listen(ctx context.Context, listener *pq.Listener, nodeID string, hub *Hub) error {
	if err := listener.Listen(nodeID); err != nil {
		return apperr.Internal(err)
	}

	for {
		select {
		case <-ctx.Done():
			return listener.Unlisten(nodeID)
		case n := <-listener.NotificationChannel():
			if n == nil {
				continue // reconnected; pq.Listener replays LISTEN itself
			}
			var payload notifyPayload
			if err := json.Unmarshal([]byte(n.Extra), &payload); err != nil {
				log.Printf("events: malformed notify payload on node %s: %v", nodeID, err)
				continue
			}
			sanitized := tools.Sanitize(payload.Data)
			hub.Dispatch(payload.Target, payload.Action, sanitized)
		}
	}
}

// Notify finds every node with a subscription row matching the object id
// or the feather, and sends each one a NOTIFY on its own channel. Called
// after commit, never inside the transaction that produced the change
// (spec.md §5's ordering guarantee: subscribers observe a change no
// earlier than the commit).
func Notify(db *gorm.DB, objectID, featherName, action string, data interface{}) error {
	var nodeIDs []string
	if err := db.Model(&models.Subscription{}).
		Distinct("node_id").
		Where("(target = ? AND is_feather = false) OR (target = ? AND is_feather = true)", objectID, featherName).
		Pluck("node_id", &nodeIDs).Error; err != nil {
		return apperr.Internal(err)
	}

	if len(nodeIDs) == 0 {
		return nil
	}

	payload, err := json.Marshal(notifyPayload{Target: objectID, Action: action, Data: data})
	if err != nil {
		return apperr.Internal(err)
	}
	featherPayload, err := json.Marshal(notifyPayload{Target: featherName, IsFeather: true, Action: action, Data: data})
	if err != nil {
		return apperr.Internal(err)
	}

	for _, nodeID := range nodeIDs {
		if err := db.Exec("SELECT pg_notify(?, ?)", nodeID, string(payload)).Error; err != nil {
			return apperr.Internal(err)
		}
		if err := db.Exec("SELECT pg_notify(?, ?)", nodeID, string(featherPayload)).Error; err != nil {
			return apperr.Internal(err)
		}
	}
	return nil
}
