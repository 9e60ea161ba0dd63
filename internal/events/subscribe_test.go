package events

import (
	"testing"

	"github.com/localnerve/featherdb/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupEventsDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory db: %v", err)
	}
	if err := db.AutoMigrate(&models.Subscription{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestSubscribeInsertsRowPerIDAndFeather(t *testing.T) {
	db := setupEventsDB(t)
	sub := Subscription{NodeID: "node-1", SessionID: "sess-1", SubscriptionID: "sub-1"}

	if err := Subscribe(db, sub, []string{"obj-1", "obj-2"}, "Invoice", false); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	var rows []models.Subscription
	db.Where("subscription_id = ?", "sub-1").Find(&rows)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows (2 ids + feather), got %d", len(rows))
	}
}

func TestSubscribeMergeFalseDeletesPriorRows(t *testing.T) {
	db := setupEventsDB(t)
	sub := Subscription{NodeID: "node-1", SessionID: "sess-1", SubscriptionID: "sub-1"}

	if err := Subscribe(db, sub, []string{"obj-1"}, "", false); err != nil {
		t.Fatalf("first subscribe failed: %v", err)
	}
	if err := Subscribe(db, sub, []string{"obj-2"}, "", false); err != nil {
		t.Fatalf("second subscribe failed: %v", err)
	}

	var rows []models.Subscription
	db.Where("subscription_id = ?", "sub-1").Find(&rows)
	if len(rows) != 1 || rows[0].Target != "obj-2" {
		t.Fatalf("expected merge=false to replace rows, got %+v", rows)
	}
}

func TestUnsubscribeEmptyIDIsNoop(t *testing.T) {
	db := setupEventsDB(t)
	if err := Unsubscribe(db, "", ScopeSession); err != nil {
		t.Fatalf("expected no error for empty id, got %v", err)
	}
}

func TestUnsubscribeByScope(t *testing.T) {
	db := setupEventsDB(t)
	db.Create(&models.Subscription{NodeID: "n1", SessionID: "s1", SubscriptionID: "sub-1", Target: "obj-1"})
	db.Create(&models.Subscription{NodeID: "n1", SessionID: "s1", SubscriptionID: "sub-2", Target: "obj-2"})

	if err := Unsubscribe(db, "s1", ScopeSession); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}

	var count int64
	db.Model(&models.Subscription{}).Where("session_id = ?", "s1").Count(&count)
	if count != 0 {
		t.Errorf("expected all rows for session s1 to be removed, found %d", count)
	}
}
