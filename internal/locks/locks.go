// Package locks implements spec.md §4.5: pessimistic per-record locks
// stored in-line on the object row's lock column (present on every feather
// via inheritance from the Object root table), keyed by holder identity
// and event key. Grounded on the teacher's clause.Locking{Strength:
// "UPDATE"}/version-compare pattern in internal/services, adapted from a
// version column to a nullable jsonb lock composite.
package locks

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/localnerve/featherdb/internal/apperr"
	"github.com/localnerve/featherdb/internal/tools"
	"gorm.io/gorm"
)

// Entry is the lock composite spec.md §3 stores on the object row.
type Entry struct {
	Username   string    `json:"username"`
	AcquiredAt time.Time `json:"acquiredAt"`
	NodeID     string    `json:"nodeId"`
	EventKey   string    `json:"eventKey"`
}

// rootTable is the object root table every feather inherits lock/is_deleted
// from; updating it without ONLY reaches every descendant's rows too,
// Postgres's own inheritance semantics for unqualified DML.
const rootTable = "object"

// Acquire locks objectPK for user/eventKey on nodeID, returning true iff
// the object was unlocked or already held by this exact (user, eventKey,
// nodeID) — a re-acquire by the same session is idempotent, not a
// conflict.
func Acquire(db *gorm.DB, objectPK int64, nodeID, user, eventKey string) (bool, error) {
	entry := Entry{Username: user, AcquiredAt: time.Now().UTC(), NodeID: nodeID, EventKey: eventKey}
	raw, err := json.Marshal(entry)
	if err != nil {
		return false, apperr.Internal(err)
	}

	result := db.Exec(fmt.Sprintf(
		`UPDATE %s SET lock = ?::jsonb WHERE %s = ? AND lock IS NULL`,
		tools.Ident(rootTable), tools.PKColumn()), string(raw), objectPK)
	if result.Error != nil {
		return false, apperr.Internal(result.Error)
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	existing, err := load(db, objectPK)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, apperr.NotFound("object not found")
	}
	return existing.Username == user && existing.EventKey == eventKey && existing.NodeID == nodeID, nil
}

// Criteria is any non-empty subset of {id, username, eventKey, nodeId}
// Unlock filters by; at least one field must be set.
type Criteria struct {
	ID       string
	Username string
	EventKey string
	NodeID   string
}

// Release clears the lock on every row matching criteria.
func Release(db *gorm.DB, c Criteria) error {
	var clauses []string
	var args []interface{}

	if c.ID != "" {
		clauses = append(clauses, "id = ?")
		args = append(args, c.ID)
	}
	if c.Username != "" {
		clauses = append(clauses, "lock->>'username' = ?")
		args = append(args, c.Username)
	}
	if c.EventKey != "" {
		clauses = append(clauses, "lock->>'eventKey' = ?")
		args = append(args, c.EventKey)
	}
	if c.NodeID != "" {
		clauses = append(clauses, "lock->>'nodeId' = ?")
		args = append(args, c.NodeID)
	}
	if len(clauses) == 0 {
		return apperr.Validation("unlock requires at least one of id, username, eventKey, nodeId")
	}

	query := fmt.Sprintf("UPDATE %s SET lock = NULL WHERE %s",
		tools.Ident(rootTable), strings.Join(clauses, " AND "))
	if err := db.Exec(query, args...).Error; err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// Check verifies objectPK's lock, if any, matches eventKey — the guard
// doUpdate/doDelete run before mutating a row (spec.md §4.6.3 step 4,
// §4.6.4 step 2).
func Check(db *gorm.DB, objectPK int64, eventKey string) error {
	entry, err := load(db, objectPK)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}
	if entry.EventKey != eventKey {
		return apperr.Conflict("Record is locked by %s", entry.Username)
	}
	return nil
}

func load(db *gorm.DB, objectPK int64) (*Entry, error) {
	var raw []byte
	row := db.Raw(fmt.Sprintf("SELECT lock FROM %s WHERE %s = ?", tools.Ident(rootTable), tools.PKColumn()), objectPK).Row()
	if err := row.Scan(&raw); err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, apperr.Internal(err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, apperr.Internal(err)
	}
	return &entry, nil
}
