// Package events implements spec.md §4.4: the per-node LISTEN channel,
// the subscription table, NOTIFY payload dispatch, and per-session SSE
// fan-out. Grounded on lib/pq's pq.Listener (see _examples/storj-storj and
// _examples/cockroachdb-cockroach for the same dependency) and on the
// teacher's in-memory-map-plus-channel style for anything not backed by
// the database.
package events

import (
	"github.com/localnerve/featherdb/internal/apperr"
	"github.com/localnerve/featherdb/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Subscription mirrors spec.md §4.4's subscribe payload.
type Subscription struct {
	NodeID         string
	SessionID      string
	SubscriptionID string
}

// Subscribe inserts a subscription row per id (and one for feather, if
// given, so inserts into the feather become notifications even before any
// matching id exists). Merge=false (the default) deletes any prior rows
// for subscriptionId first. Duplicate rows are silently ignored.
func Subscribe(db *gorm.DB, sub Subscription, ids []string, feather string, merge bool) error {
	if sub.NodeID == "" || sub.SessionID == "" || sub.SubscriptionID == "" {
		return apperr.Validation("subscribe requires nodeId, sessionId, and subscriptionId")
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if !merge {
			if err := tx.Where("subscription_id = ?", sub.SubscriptionID).
				Delete(&models.Subscription{}).Error; err != nil {
				return apperr.Internal(err)
			}
		}

		var rows []models.Subscription
		for _, id := range ids {
			rows = append(rows, models.Subscription{
				NodeID: sub.NodeID, SessionID: sub.SessionID,
				SubscriptionID: sub.SubscriptionID, Target: id, IsFeather: false,
			})
		}
		if feather != "" {
			rows = append(rows, models.Subscription{
				NodeID: sub.NodeID, SessionID: sub.SessionID,
				SubscriptionID: sub.SubscriptionID, Target: feather, IsFeather: true,
			})
		}
		if len(rows) == 0 {
			return nil
		}

		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
			return apperr.Internal(err)
		}
		return nil
	})
}

// UnsubscribeScope is the granularity unsubscribe deletes at.
type UnsubscribeScope string

const (
	ScopeSubscription UnsubscribeScope = "subscription"
	ScopeSession       UnsubscribeScope = "session"
	ScopeNode          UnsubscribeScope = "node"
)

// Unsubscribe deletes matching subscription rows. An empty id resolves
// without error (spec.md §4.4).
func Unsubscribe(db *gorm.DB, id string, scope UnsubscribeScope) error {
	if id == "" {
		return nil
	}

	var column string
	switch scope {
	case ScopeSubscription:
		column = "subscription_id"
	case ScopeSession:
		column = "session_id"
	case ScopeNode:
		column = "node_id"
	default:
		return apperr.Validation("unsubscribe: unknown scope %q", scope)
	}

	if err := db.Where(column+" = ?", id).Delete(&models.Subscription{}).Error; err != nil {
		return apperr.Internal(err)
	}
	return nil
}
