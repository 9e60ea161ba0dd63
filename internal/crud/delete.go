package crud

import (
	"fmt"

	"github.com/localnerve/featherdb/internal/apperr"
	"github.com/localnerve/featherdb/internal/auth"
	"github.com/localnerve/featherdb/internal/catalog"
	"github.com/localnerve/featherdb/internal/locks"
	"github.com/localnerve/featherdb/internal/models"
	"github.com/localnerve/featherdb/internal/tools"
	"github.com/localnerve/featherdb/internal/types"
	"gorm.io/gorm"
)

// DoDelete implements spec.md §4.6.4: soft-deletes by default, cascading
// into every parentOf array element and isChild composite so a folder (or
// any owning object) can't be left with orphaned children, and hard-deletes
// (with the same cascade) when req.IsHard is set. Writes the DELETE log
// entry itself and returns the object's last-known state.
func DoDelete(db *gorm.DB, req Request) (map[string]interface{}, error) {
	spec, err := catalog.GetFeather(db, req.Name, nil)
	if err != nil {
		return nil, err
	}
	if spec.IsChild && !req.IsChild && !req.IsSuper {
		return nil, apperr.Unauthorized("feather %q is a child type and cannot be deleted directly", req.Name)
	}

	var persisted map[string]interface{}

	err = db.Transaction(func(tx *gorm.DB) error {
		table := catalog.TableName(req.Name)

		pk, err := lockRow(tx, table, req.ID)
		if err != nil {
			return err
		}

		ok, err := auth.IsAuthorized(tx, auth.IsAuthorizedParams{
			Action: "canDelete", FeatherName: req.Name, ObjectPK: pk, UserPK: req.UserID, IsSuper: req.IsSuper,
		})
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Unauthorized("not authorized to delete %q", req.ID)
		}

		if err := locks.Check(tx, pk, req.EventKey); err != nil {
			return err
		}

		old, err := reselectRow(tx, spec, pk, req)
		if err != nil {
			return err
		}
		if deleted, _ := old["isDeleted"].(bool); deleted && !req.IsHard {
			return apperr.Conflict("object %q is already deleted", req.ID)
		}
		persisted = old

		if err := cascadeDelete(tx, spec, old, req); err != nil {
			return err
		}

		isFolder := spec.Name == "Folder" || spec.EffectiveInherits() == "Folder"

		if req.IsHard {
			if err := hardDeleteRow(tx, table, pk); err != nil {
				return err
			}
			if isFolder {
				roleIDs, err := memberRolesOnFolder(tx, pk)
				if err != nil {
					return err
				}
				for _, roleID := range roleIDs {
					if err := auth.PropagateAuth(tx, pk, roleID, true, containmentLookup(tx)); err != nil {
						return err
					}
				}
			}
		} else {
			if err := softDeleteRow(tx, table, pk, req.UserID); err != nil {
				return err
			}
		}

		return writeLog(tx, req.ID, req.Name, "DELETE", req.UserID, persisted)
	})
	if err != nil {
		return nil, err
	}
	return persisted, nil
}

// cascadeDelete recurses DoDelete onto every parentOf array element and
// isChild composite rec carries, so a hard delete never leaves an orphaned
// child row behind and a soft delete marks the whole ownership tree
// deleted together (spec.md §4.6.4 step 4).
func cascadeDelete(tx *gorm.DB, spec *types.FeatherSpec, rec map[string]interface{}, req Request) error {
	for name, prop := range spec.Properties {
		if !prop.IsRelation() {
			continue
		}

		if prop.Relation.EffectiveKind() == types.ToMany {
			children, _ := rec[name].([]interface{})
			for _, v := range children {
				child, ok := v.(map[string]interface{})
				if !ok {
					continue
				}
				id, _ := child["id"].(string)
				if id == "" {
					continue
				}
				childReq := req
				childReq.Name = prop.Relation.Feather
				childReq.ID = id
				childReq.IsChild = true
				if _, err := DoDelete(tx, childReq); err != nil {
					return err
				}
			}
			continue
		}

		if prop.Relation.IsChild {
			child, ok := rec[name].(map[string]interface{})
			if !ok {
				continue
			}
			id, _ := child["id"].(string)
			if id == "" {
				continue
			}
			childReq := req
			childReq.Name = prop.Relation.Feather
			childReq.ID = id
			childReq.IsChild = true
			if _, err := DoDelete(tx, childReq); err != nil {
				return err
			}
		}
	}
	return nil
}

func softDeleteRow(tx *gorm.DB, table string, pk int64, userID string) error {
	query := fmt.Sprintf("UPDATE %s SET %s = TRUE, updated_by = $1 WHERE %s = $2",
		tools.Ident(table), tools.Ident("is_deleted"), tools.Ident(tools.PKColumn()))
	if err := tx.Exec(query, userID, pk).Error; err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func hardDeleteRow(tx *gorm.DB, table string, pk int64) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", tools.Ident(table), tools.Ident(tools.PKColumn()))
	if err := tx.Exec(query, pk).Error; err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// memberRolesOnFolder returns every role holding a member grant directly on
// folderPK, the set PropagateAuth needs to retract when the folder is
// hard-deleted (spec.md §9 resolved open question on isHard/propagateAuth).
func memberRolesOnFolder(tx *gorm.DB, folderPK int64) ([]uint64, error) {
	var roleIDs []uint64
	err := tx.Model(&models.AuthGrant{}).
		Where("object_pk = ? AND is_member_auth = true", folderPK).
		Distinct().Pluck("role_pk", &roleIDs).Error
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return roleIDs, nil
}

// containmentLookup builds the auth.ContainmentLookup PropagateAuth needs:
// every feather with a to-one relation property named "folder" (the same
// convention resolveFolderPK uses for canCreate) contributes its rows under
// a given folder; a feather inheriting from Folder itself contributes its
// rows as child folders to recurse into.
func containmentLookup(tx *gorm.DB) auth.ContainmentLookup {
	return func(folderPK int64) ([]int64, []int64, error) {
		var names []string
		if err := tx.Model(&models.Feather{}).Pluck("name", &names).Error; err != nil {
			return nil, nil, apperr.Internal(err)
		}

		var objectPKs, childFolderPKs []int64
		for _, name := range names {
			spec, err := catalog.GetFeather(tx, name, nil)
			if err != nil {
				continue
			}
			prop, ok := spec.Properties["folder"]
			if !ok || !prop.IsRelation() || prop.Relation.EffectiveKind() == types.ToMany {
				continue
			}

			table := catalog.TableName(name)
			query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 AND %s = FALSE",
				tools.QualifiedIdent(table, tools.PKColumn()), tools.Ident(table),
				tools.QualifiedIdent(table, "folder"), tools.QualifiedIdent(table, "is_deleted"))

			rows, err := tx.Raw(query, folderPK).Rows()
			if err != nil {
				return nil, nil, apperr.Internal(err)
			}
			var pks []int64
			for rows.Next() {
				var pk int64
				if err := rows.Scan(&pk); err != nil {
					rows.Close()
					return nil, nil, apperr.Internal(err)
				}
				pks = append(pks, pk)
			}
			rows.Close()

			isFolderType := name == "Folder" || spec.EffectiveInherits() == "Folder"
			if isFolderType {
				childFolderPKs = append(childFolderPKs, pks...)
			} else {
				objectPKs = append(objectPKs, pks...)
			}
		}
		return objectPKs, childFolderPKs, nil
	}
}
