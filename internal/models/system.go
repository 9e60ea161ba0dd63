// Package models holds the GORM-backed system tables of spec.md §6: the
// catalog, auth, subscription, settings, role and log tables. Per-feather
// object tables are data-driven and are not GORM models — catalog issues
// their DDL directly (see internal/catalog).
package models

import (
	"time"

	"gorm.io/datatypes"
)

// Feather is the catalog row of spec.md §3 ("$feather" system table):
// exactly one row per feather name, holding the raw, unmerged spec the
// administrator saved. catalog.GetFeather performs the inheritance merge.
type Feather struct {
	FeatherID        uint64         `gorm:"primaryKey;autoIncrement"`
	Name             string         `gorm:"uniqueIndex;size:255;not null"`
	Plural           string         `gorm:"size:255"`
	Inherits         string         `gorm:"size:255;not null;default:'Object'"`
	IsChild          bool           `gorm:"not null;default:false"`
	IsSystem         bool           `gorm:"not null;default:false"`
	IsReadOnly       bool           `gorm:"not null;default:false"`
	IsFetchOnStartup bool           `gorm:"not null;default:false"`
	Properties       datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (Feather) TableName() string { return "$feather" }

// Role is a named principal group. Role membership is transitive: a role
// may itself be a member of another role (auth.IsAuthorized walks the
// closure).
type Role struct {
	RoleID    uint64 `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"uniqueIndex;size:255;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Role) TableName() string { return "role" }

// RoleMember associates a user or a role with a containing role.
type RoleMember struct {
	RoleMemberID uint64 `gorm:"primaryKey;autoIncrement"`
	RoleID       uint64 `gorm:"not null;index"`
	MemberUserID string `gorm:"size:64;index"`
	MemberRoleID uint64 `gorm:"index"`
	CreatedAt    time.Time
}

func (RoleMember) TableName() string { return "role_member" }

// UserAccount is a local shadow of the Authorizer-issued user id, so that
// authorization grants, locks, and log rows can foreign-key a stable id
// without round-tripping the external auth service on every request.
type UserAccount struct {
	UserID    string `gorm:"primaryKey;size:64"`
	Username  string `gorm:"uniqueIndex;size:255;not null"`
	IsSuper   bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (UserAccount) TableName() string { return "user_account" }

// AuthGrant is spec.md §3's authorization grant: a row on a feather (class
// grant), an object (instance grant), or a folder with IsMemberAuth set
// (propagated to contained objects with IsInherited=true).
type AuthGrant struct {
	AuthGrantID  uint64 `gorm:"primaryKey;autoIncrement"`
	ObjectPK     int64  `gorm:"index"` // -1 for a feather-row (class) grant
	FeatherName  string `gorm:"size:255;index"`
	RolePK       uint64 `gorm:"not null;index"`
	CanCreate    bool   `gorm:"not null;default:false"`
	CanRead      bool   `gorm:"not null;default:false"`
	CanUpdate    bool   `gorm:"not null;default:false"`
	CanDelete    bool   `gorm:"not null;default:false"`
	IsMemberAuth bool   `gorm:"not null;default:false"`
	IsInherited  bool   `gorm:"not null;default:false"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (AuthGrant) TableName() string { return "$auth" }

// Subscription is spec.md §3/§4.4's (nodeId, sessionId, subscriptionId,
// target) row. Target is either an object id or a feather name.
type Subscription struct {
	SubscriptionRowID uint64 `gorm:"primaryKey;autoIncrement"`
	NodeID            string `gorm:"size:64;not null;index:idx_sub_node"`
	SessionID         string `gorm:"size:64;not null;index:idx_sub_session"`
	SubscriptionID    string `gorm:"size:64;not null;index:idx_sub_subid;uniqueIndex:idx_sub_unique"`
	Target            string `gorm:"size:255;not null;uniqueIndex:idx_sub_unique"`
	IsFeather         bool   `gorm:"not null;default:false"`
	CreatedAt         time.Time
}

func (Subscription) TableName() string { return "$subscription" }

// LogEntry is the spec.md §3 change-log row.
type LogEntry struct {
	LogID       uint64         `gorm:"primaryKey;autoIncrement"`
	ObjectID    string         `gorm:"size:64;not null;index"`
	FeatherName string         `gorm:"size:255;not null;index"`
	Action      string         `gorm:"size:16;not null"` // POST|PATCH|DELETE
	Change      datatypes.JSON `gorm:"type:jsonb"`
	Created     time.Time      `gorm:"not null"`
	CreatedBy   string         `gorm:"size:64;not null"`
	Updated     time.Time      `gorm:"not null"`
	UpdatedBy   string         `gorm:"size:64;not null"`
}

func (LogEntry) TableName() string { return "log" }

// Settings is a named, versioned JSON blob (spec.md §6 /settings route).
type Settings struct {
	Name      string         `gorm:"primaryKey;size:255"`
	Data      datatypes.JSON `gorm:"type:jsonb"`
	Etag      string         `gorm:"size:64;not null"`
	UpdatedAt time.Time
}

func (Settings) TableName() string { return "$settings" }

// Workbook is a named page-layout blob (spec.md §6 /workbook route).
type Workbook struct {
	Name      string         `gorm:"primaryKey;size:255"`
	Data      datatypes.JSON `gorm:"type:jsonb"`
	Etag      string         `gorm:"size:64;not null"`
	UpdatedAt time.Time
}

func (Workbook) TableName() string { return "$model" }
