// Package auth implements spec.md §4.3: role membership checks, per-object
// and per-class authorization grants, and propagation of folder member
// grants onto contained objects. It is grounded on the teacher's
// transaction-then-diff shape in internal/services, generalized from a
// fixed document schema to the spec's grant table.
package auth

import (
	"fmt"

	"github.com/localnerve/featherdb/internal/apperr"
	"github.com/localnerve/featherdb/internal/catalog"
	"github.com/localnerve/featherdb/internal/models"
	"github.com/localnerve/featherdb/internal/tools"
	"gorm.io/gorm"
)

// IsAuthorizedParams mirrors spec.md §4.3's isAuthorized payload.
type IsAuthorizedParams struct {
	Action      tools.AuthAction
	FeatherName string
	ObjectPK    int64 // 0 when checking canCreate against the feather/folder only
	FolderPK    int64 // 0 when no folder is attached
	UserPK      string
	IsSuper     bool
}

// IsAuthorized reports whether the current user holds Action, following
// spec.md §4.3's tie rule: inherited grants lose to direct grants, among
// equals the most permissive wins, and a super user bypasses every check.
func IsAuthorized(db *gorm.DB, p IsAuthorizedParams) (bool, error) {
	if p.IsSuper {
		return true, nil
	}

	if p.Action == "canCreate" {
		return isAuthorizedCreate(db, p)
	}

	if p.ObjectPK == 0 {
		return false, apperr.Validation("isAuthorized: %s requires an object", p.Action)
	}

	table := catalog.TableName(p.FeatherName)
	frag, err := tools.BuildAuthSQL(p.Action, table, p.FeatherName, "$2", "$3", false)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1 AND (%s))`,
		tools.Ident(table), tools.QualifiedIdent(table, tools.PKColumn()), frag)

	var ok bool
	row := db.Raw(query, p.ObjectPK, p.UserPK, p.FeatherName).Row()
	if err := row.Scan(&ok); err != nil {
		return false, apperr.Internal(err)
	}
	return ok, nil
}

func isAuthorizedCreate(db *gorm.DB, p IsAuthorizedParams) (bool, error) {
	closure := fmt.Sprintf(`(
		WITH RECURSIVE role_closure AS (
			SELECT role_id AS role_pk FROM role_member WHERE member_user_id = $1
			UNION
			SELECT rm.role_id FROM role_member rm
			JOIN role_closure rc ON rm.member_role_id = rc.role_pk
		)
		SELECT role_pk FROM role_closure
	)`)

	var classGranted bool
	classQuery := fmt.Sprintf(`SELECT EXISTS (
		SELECT 1 FROM "$auth" WHERE object_pk = -1 AND feather_name = $2
		AND can_create = true AND role_pk IN %s
	)`, closure)
	if err := db.Raw(classQuery, p.UserPK, p.FeatherName).Row().Scan(&classGranted); err != nil {
		return false, apperr.Internal(err)
	}
	if !classGranted {
		return false, nil
	}

	if p.FolderPK == 0 {
		return true, nil
	}

	var folderMember bool
	folderQuery := fmt.Sprintf(`SELECT EXISTS (
		SELECT 1 FROM "$auth" WHERE object_pk = $2 AND is_member_auth = true
		AND role_pk IN %s
	)`, closure)
	if err := db.Raw(folderQuery, p.UserPK, p.FolderPK).Row().Scan(&folderMember); err != nil {
		return false, apperr.Internal(err)
	}
	return folderMember, nil
}

// Actions is the canCreate/canRead/canUpdate/canDelete quadruple
// saveAuthorization upserts. A field set to nil leaves that action
// untouched; false clears it (and may delete the row if every action and
// isMember end up false).
type Actions struct {
	CanCreate *bool
	CanRead   *bool
	CanUpdate *bool
	CanDelete *bool
}

// SaveAuthorizationParams mirrors spec.md §4.3's saveAuthorization payload.
// Exactly one of FeatherName (class grant) or ObjectPK (instance grant)
// should be set.
type SaveAuthorizationParams struct {
	FeatherName string
	ObjectPK    int64
	RolePK      uint64
	IsMember    *bool
	Actions     Actions
}

// SaveAuthorization upserts a grant row. Deleting the last action on a
// member grant deletes the row. Setting a member grant on a folder
// triggers PropagateAuth via the caller (crud owns the containment
// lookup); this function only persists the grant row itself.
func SaveAuthorization(db *gorm.DB, p SaveAuthorizationParams) error {
	objectPK := p.ObjectPK
	if p.FeatherName != "" {
		objectPK = -1
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var grant models.AuthGrant
		err := tx.Where("object_pk = ? AND feather_name = ? AND role_pk = ?", objectPK, p.FeatherName, p.RolePK).
			First(&grant).Error
		isNew := err == gorm.ErrRecordNotFound
		if err != nil && !isNew {
			return apperr.Internal(err)
		}

		if isNew {
			grant = models.AuthGrant{ObjectPK: objectPK, FeatherName: p.FeatherName, RolePK: p.RolePK}
		}

		applyBool(&grant.CanCreate, p.Actions.CanCreate)
		applyBool(&grant.CanRead, p.Actions.CanRead)
		applyBool(&grant.CanUpdate, p.Actions.CanUpdate)
		applyBool(&grant.CanDelete, p.Actions.CanDelete)
		if p.IsMember != nil {
			grant.IsMemberAuth = *p.IsMember
		}

		if !grant.CanCreate && !grant.CanRead && !grant.CanUpdate && !grant.CanDelete && !grant.IsMemberAuth {
			if !isNew {
				return tx.Delete(&grant).Error
			}
			return nil
		}

		if isNew {
			return tx.Create(&grant).Error
		}
		return tx.Save(&grant).Error
	})
}

func applyBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
