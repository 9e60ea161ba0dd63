package crud

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/localnerve/featherdb/internal/apperr"
	"github.com/localnerve/featherdb/internal/auth"
	"github.com/localnerve/featherdb/internal/catalog"
	"github.com/localnerve/featherdb/internal/locks"
	"github.com/localnerve/featherdb/internal/patch"
	"github.com/localnerve/featherdb/internal/tools"
	"github.com/localnerve/featherdb/internal/types"
	"gorm.io/gorm"
)

// DoUpdate implements spec.md §4.6.3: patch.Apply against the current row
// under a pessimistic row lock, reconciling relation properties in
// lockstep, and returns the reconciliation diff between the caller's
// intended patch and what was actually persisted.
func DoUpdate(db *gorm.DB, req Request) (map[string]interface{}, []patch.Operation, error) {
	if len(req.Patch) == 0 {
		return nil, []patch.Operation{}, nil
	}

	spec, err := catalog.GetFeather(db, req.Name, nil)
	if err != nil {
		return nil, nil, err
	}
	if spec.IsChild && !req.IsChild && !req.IsSuper {
		return nil, nil, apperr.Unauthorized("feather %q is a child type and cannot be updated directly", req.Name)
	}

	var persisted map[string]interface{}
	var oldRec map[string]interface{}

	err = db.Transaction(func(tx *gorm.DB) error {
		table := catalog.TableName(req.Name)

		pk, err := lockRow(tx, table, req.ID)
		if err != nil {
			return err
		}

		ok, err := auth.IsAuthorized(tx, auth.IsAuthorizedParams{
			Action: "canUpdate", FeatherName: req.Name, ObjectPK: pk, UserPK: req.UserID, IsSuper: req.IsSuper,
		})
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Unauthorized("not authorized to update %q", req.ID)
		}

		if err := locks.Check(tx, pk, req.EventKey); err != nil {
			return err
		}

		old, err := reselectRow(tx, spec, pk, req)
		if err != nil {
			return err
		}
		oldRec = old

		patched, err := patch.Apply(old, req.Patch)
		if err != nil {
			return err
		}
		newRec, ok := patched.(map[string]interface{})
		if !ok {
			return apperr.Validation("patch must apply to an object")
		}

		if err := rejectMissingRequired(spec, newRec); err != nil {
			return err
		}

		columns := map[string]interface{}{}
		if err := probeChangedNaturalKeys(tx, spec, table, old, newRec, pk); err != nil {
			return err
		}

		for name, prop := range spec.Properties {
			if err := resolveUpdateColumn(tx, table, name, prop, old, newRec, req, pk, columns); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		columns["updated"] = now
		columns["updated_by"] = req.UserID
		columns["etag"] = uuid.NewString()

		if len(columns) > 0 {
			if err := updateRow(tx, table, pk, columns); err != nil {
				return err
			}
		}

		row, err := reselectRow(tx, spec, pk, req)
		if err != nil {
			return err
		}
		persisted = row

		if err := writeLog(tx, req.ID, req.Name, "PATCH", req.UserID, persisted); err != nil {
			return err
		}

		return locks.Release(tx, locks.Criteria{ID: req.ID, EventKey: req.EventKey})
	})
	if err != nil {
		return nil, nil, err
	}

	cacheRec, err := patch.Apply(oldRec, req.Patch)
	if err != nil {
		return nil, nil, err
	}
	diff, err := patch.Diff(cacheRec, persisted)
	if err != nil {
		return nil, nil, err
	}
	return persisted, diff, nil
}

// rejectMissingRequired enforces spec.md §4.6.3 step 6: a patch that nulls
// out a required property is rejected before anything is written.
func rejectMissingRequired(spec *types.FeatherSpec, newRec map[string]interface{}) error {
	for name, prop := range spec.Properties {
		if !prop.IsRequired {
			continue
		}
		v, ok := newRec[name]
		if !ok || v == nil {
			return apperr.Validation("property %q is required on feather %q", name, spec.Name)
		}
	}
	return nil
}

// probeChangedNaturalKeys re-runs the uniqueness probe for every
// isNaturalKey property the patch actually changed (spec.md §4.6.3 step 7).
func probeChangedNaturalKeys(tx *gorm.DB, spec *types.FeatherSpec, table string, old, newRec map[string]interface{}, excludePK int64) error {
	for name, prop := range spec.Properties {
		if !prop.IsNaturalKey || prop.Autonumber != nil {
			continue
		}
		newVal, ok := newRec[name]
		if !ok {
			continue
		}
		if fmt.Sprint(old[name]) == fmt.Sprint(newVal) {
			continue
		}
		col := tools.SnakeCase(name)
		if err := checkNaturalKeyUnique(tx, table, col, spec.Name, name, newVal, excludePK); err != nil {
			return err
		}
	}
	return nil
}

// resolveUpdateColumn resolves one property's physical column(s) for the
// SET list, reconciling relation properties against their prior value
// rather than blindly re-inserting (spec.md §4.6.3 step 8). Autonumber
// properties are immutable after creation and never appear in the SET list.
func resolveUpdateColumn(tx *gorm.DB, table, name string, prop *types.Property, old, newRec map[string]interface{}, req Request, parentPK int64, columns map[string]interface{}) error {
	if prop.Autonumber != nil {
		return nil
	}

	col := tools.SnakeCase(name)
	newVal, provided := newRec[name]

	if prop.IsRelation() {
		// an absent key means "leave unchanged" (spec.md §9); only an
		// explicit null in newRec means "clear", which reconcileToMany's
		// empty-newList branch already handles as a genuine wipe.
		if !provided {
			return nil
		}
		if prop.Relation.EffectiveKind() == types.ToMany {
			return reconcileToMany(tx, prop, name, old[name], newVal, req, parentPK)
		}
		return reconcileToOne(tx, prop, col, old[name], newVal, req, columns)
	}

	if prop.Format == "money" {
		money, _ := newVal.(map[string]interface{})
		columns[col+"_amount"] = money["amount"]
		columns[col+"_currency"] = money["currency"]
		columns[col+"_effective"] = money["effective"]
		columns[col+"_base_amount"] = money["baseAmount"]
		return nil
	}

	if !provided {
		return nil
	}

	if prop.ScalarType == "object" || prop.ScalarType == "array" {
		encoded, err := encodeJSONColumn(newVal)
		if err != nil {
			return err
		}
		columns[col] = encoded
		return nil
	}

	columns[col] = newVal
	return nil
}

// reconcileToOne resolves a to-one relation's new value, recursing an
// isChild composite's update/insert/delete in lockstep: the composite's id
// is never allowed to change underneath its owner (spec.md §4.6.3 step 8).
func reconcileToOne(tx *gorm.DB, prop *types.Property, col string, oldVal, newVal interface{}, req Request, columns map[string]interface{}) error {
	if !prop.Relation.IsChild {
		if newVal == nil {
			columns[col] = -1
			return nil
		}
		id := extractID(newVal)
		if id == "" {
			columns[col] = -1
			return nil
		}
		pk, err := tools.GetKey(tx, prop.Relation.Feather, id, req.UserID, req.IsSuper, tools.CanRead)
		if err != nil {
			return err
		}
		columns[col] = pk
		return nil
	}

	oldData, hadOld := oldVal.(map[string]interface{})
	newData, hasNew := newVal.(map[string]interface{})

	switch {
	case !hadOld && hasNew:
		childReq := req
		childReq.Name = prop.Relation.Feather
		childReq.ID = ""
		childReq.Data = newData
		childReq.IsChild = true
		pk, _, _, err := doInsert(tx, childReq)
		if err != nil {
			return err
		}
		columns[col] = pk

	case hadOld && !hasNew:
		childReq := req
		childReq.Name = prop.Relation.Feather
		childReq.ID, _ = oldData["id"].(string)
		childReq.IsChild = true
		if _, err := DoDelete(tx, childReq); err != nil {
			return err
		}
		columns[col] = -1

	case hadOld && hasNew:
		oldID, _ := oldData["id"].(string)
		newID, _ := newData["id"].(string)
		if newID != "" && newID != oldID {
			return apperr.Validation("property %q is an owned composite: its id cannot be changed by a patch", col)
		}
		childPatch, err := patch.Diff(oldData, newData)
		if err != nil {
			return err
		}
		if len(childPatch) > 0 {
			childReq := req
			childReq.Name = prop.Relation.Feather
			childReq.ID = oldID
			childReq.Patch = childPatch
			childReq.IsChild = true
			if _, _, err := DoUpdate(tx, childReq); err != nil {
				return err
			}
		}
	}

	return nil
}

// reconcileToMany reconciles a parentOf array property against its prior
// value: elements present in old but missing from newVal are deleted,
// elements common to both are diffed and patched, and elements new to
// newVal are inserted as children of parentPK (spec.md §4.6.3 step 8).
func reconcileToMany(tx *gorm.DB, prop *types.Property, name string, oldVal, newVal interface{}, req Request, parentPK int64) error {
	oldList, _ := oldVal.([]interface{})
	newList, _ := newVal.([]interface{})

	oldByID := map[string]map[string]interface{}{}
	for _, v := range oldList {
		if m, ok := v.(map[string]interface{}); ok {
			if id, ok := m["id"].(string); ok {
				oldByID[id] = m
			}
		}
	}

	seen := map[string]bool{}

	for _, v := range newList {
		data, ok := v.(map[string]interface{})
		if !ok {
			return apperr.Validation("property %q expects an array of objects", name)
		}
		id, _ := data["id"].(string)

		if id != "" {
			if oldData, existed := oldByID[id]; existed {
				seen[id] = true
				childPatch, err := patch.Diff(oldData, data)
				if err != nil {
					return err
				}
				if len(childPatch) > 0 {
					childReq := req
					childReq.Name = prop.Relation.Feather
					childReq.ID = id
					childReq.Patch = childPatch
					childReq.IsChild = true
					if _, _, err := DoUpdate(tx, childReq); err != nil {
						return err
					}
				}
				continue
			}
		}

		childReq := req
		childReq.Name = prop.Relation.Feather
		childReq.ID = ""
		childReq.Data = data
		childReq.IsChild = true
		childReq.ParentPK = &parentPK
		childReq.ParentRelation = backRefOrLookup(tx, prop, req)
		if _, _, _, err := doInsert(tx, childReq); err != nil {
			return err
		}
	}

	for id := range oldByID {
		if seen[id] {
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

	return nil
}

// backRefOrLookup resolves the childOf property on prop's target feather
// that back-references the owning feather, for stamping a newly inserted
// array element (spec.md §4.6.3 step 8).
func backRefOrLookup(tx *gorm.DB, prop *types.Property, req Request) string {
	childSpec, err := catalog.GetFeather(tx, prop.Relation.Feather, nil)
	if err != nil {
		return ""
	}
	backRef, err := findChildOfProperty(childSpec, req.Name)
	if err != nil {
		return ""
	}
	return backRef
}

// updateRow writes columns onto table's row identified by pk.
func updateRow(tx *gorm.DB, table string, pk int64, columns map[string]interface{}) error {
	names := make([]string, 0, len(columns))
	for k := range columns {
		names = append(names, k)
	}

	sets := make([]string, len(names))
	args := make([]interface{}, len(names)+1)
	for i, n := range names {
		sets[i] = fmt.Sprintf("%s = $%d", tools.Ident(n), i+1)
		args[i] = columns[n]
	}
	args[len(names)] = pk

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		tools.Ident(table), strings.Join(sets, ", "), tools.Ident(tools.PKColumn()), len(names)+1)

	if err := tx.Exec(query, args...).Error; err != nil {
		return apperr.Internal(err)
	}
	return nil
}
