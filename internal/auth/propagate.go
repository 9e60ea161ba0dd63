package auth

import (
	"github.com/localnerve/featherdb/internal/apperr"
	"github.com/localnerve/featherdb/internal/models"
	"gorm.io/gorm"
)

// ContainmentLookup enumerates a folder's directly contained object _pks
// and child folder _pks. auth has no notion of which feather is "Folder"
// or how containment is wired (that is schema data); the crud layer, which
// does know, supplies this.
type ContainmentLookup func(folderPK int64) (objectPKs []int64, childFolderPKs []int64, err error)

// PropagateAuth recursively walks folder -> contained objects -> child
// folders, replacing each contained object's inherited member grant for
// roleID (spec.md §4.3). A direct (non-inherited) grant on an object stops
// the walk from overwriting it. isDeleted=true retracts the inherited
// grant instead of (re)applying it — the behavior a folder hard-delete
// uses (spec.md §9 resolved open question on isHard/propagateAuth).
func PropagateAuth(db *gorm.DB, folderPK int64, roleID uint64, isDeleted bool, lookup ContainmentLookup) error {
	return db.Transaction(func(tx *gorm.DB) error {
		return propagateOne(tx, folderPK, roleID, isDeleted, lookup)
	})
}

func propagateOne(tx *gorm.DB, folderPK int64, roleID uint64, isDeleted bool, lookup ContainmentLookup) error {
	objectPKs, childFolderPKs, err := lookup(folderPK)
	if err != nil {
		return err
	}

	for _, objPK := range objectPKs {
		var direct models.AuthGrant
		err := tx.Where("object_pk = ? AND role_pk = ? AND is_inherited = false", objPK, roleID).
			First(&direct).Error
		if err == nil {
			continue // direct grant stops the walk from overwriting it
		}
		if err != gorm.ErrRecordNotFound {
			return apperr.Internal(err)
		}

		if isDeleted {
			if err := tx.Where("object_pk = ? AND role_pk = ? AND is_inherited = true", objPK, roleID).
				Delete(&models.AuthGrant{}).Error; err != nil {
				return apperr.Internal(err)
			}
			continue
		}

		var inherited models.AuthGrant
		err = tx.Where("object_pk = ? AND role_pk = ? AND is_inherited = true", objPK, roleID).
			First(&inherited).Error
		if err == gorm.ErrRecordNotFound {
			inherited = models.AuthGrant{ObjectPK: objPK, RolePK: roleID, IsInherited: true}
		} else if err != nil {
			return apperr.Internal(err)
		}
		inherited.IsMemberAuth = true
		inherited.CanRead = true
		if err := tx.Save(&inherited).Error; err != nil {
			return apperr.Internal(err)
		}
	}

	for _, childFolderPK := range childFolderPKs {
		if err := propagateOne(tx, childFolderPK, roleID, isDeleted, lookup); err != nil {
			return err
		}
	}

	return nil
}
