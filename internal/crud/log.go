package crud

import (
	"encoding/json"
	"time"

	"github.com/localnerve/featherdb/internal/apperr"
	"github.com/localnerve/featherdb/internal/models"
	"gorm.io/gorm"
)

// writeLog inserts the change-log row spec.md §4.6.1 step 9, §4.6.3 step
// 10, and §4.6.4 step 5 each call for, in the same transaction as the
// change it records (spec.md §5: a commit is atomic with its log).
func writeLog(tx *gorm.DB, objectID, featherName, action, userID string, change interface{}) error {
	raw, err := json.Marshal(change)
	if err != nil {
		return apperr.Internal(err)
	}
	now := time.Now().UTC()
	entry := models.LogEntry{
		ObjectID:    objectID,
		FeatherName: featherName,
		Action:      action,
		Change:      raw,
		Created:     now,
		CreatedBy:   userID,
		Updated:     now,
		UpdatedBy:   userID,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return apperr.Internal(err)
	}
	return nil
}
