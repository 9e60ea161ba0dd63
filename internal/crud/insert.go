package crud

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/localnerve/featherdb/internal/apperr"
	"github.com/localnerve/featherdb/internal/auth"
	"github.com/localnerve/featherdb/internal/catalog"
	"github.com/localnerve/featherdb/internal/patch"
	"github.com/localnerve/featherdb/internal/tools"
	"github.com/localnerve/featherdb/internal/types"
	"gorm.io/gorm"
)

// DoInsert implements spec.md §4.6.1. The caller (the request pipeline) is
// responsible for upsert detection — an id that already resolves to a row
// is downgraded to a PATCH before DoInsert is ever called.
func DoInsert(db *gorm.DB, req Request) (map[string]interface{}, []patch.Operation, error) {
	_, persisted, diff, err := doInsert(db, req)
	if err != nil {
		return nil, nil, err
	}
	return persisted, diff, nil
}

// doInsert is DoInsert's implementation, additionally returning the
// inserted row's surrogate _pk so a parentOf/isChild recursion can stamp
// it onto the owner without a second lookup.
func doInsert(db *gorm.DB, req Request) (int64, map[string]interface{}, []patch.Operation, error) {
	spec, err := catalog.GetFeather(db, req.Name, nil)
	if err != nil {
		return 0, nil, nil, err
	}
	if spec.IsChild && !req.IsChild && !req.IsSuper {
		return 0, nil, nil, apperr.Unauthorized("feather %q is a child type and cannot be inserted directly", req.Name)
	}
	if err := rejectUnknownKeys(spec, req.Data); err != nil {
		return 0, nil, nil, err
	}

	cacheRec := cloneMap(req.Data)
	var persisted map[string]interface{}
	var resultPK int64

	err = db.Transaction(func(tx *gorm.DB) error {
		folderPK, err := resolveFolderPK(tx, spec, req)
		if err != nil {
			return err
		}
		ok, err := auth.IsAuthorized(tx, auth.IsAuthorizedParams{
			Action: "canCreate", FeatherName: req.Name, FolderPK: folderPK, UserPK: req.UserID, IsSuper: req.IsSuper,
		})
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Unauthorized("not authorized to create %q", req.Name)
		}

		table := catalog.TableName(req.Name)
		now := time.Now().UTC()

		id := req.ID
		if id == "" {
			id = uuid.NewString()
		}
		etag := uuid.NewString()

		columns := map[string]interface{}{
			"id":         id,
			"created":    now,
			"created_by": req.UserID,
			"updated":    now,
			"updated_by": req.UserID,
			"is_deleted": false,
			"etag":       etag,
		}

		var toManyProps []relationColumn
		for name, prop := range spec.Properties {
			if req.ParentRelation == name && req.ParentPK != nil {
				columns[tools.SnakeCase(name)] = *req.ParentPK
				continue
			}

			if prop.IsRelation() {
				if prop.Relation.EffectiveKind() == types.ToMany {
					toManyProps = append(toManyProps, relationColumn{name: name, prop: prop})
					continue
				}
				pk, err := resolveToOneValue(tx, prop, req.Data[name], req)
				if err != nil {
					return err
				}
				columns[tools.SnakeCase(name)] = pk
				continue
			}

			if err := resolveScalarColumn(tx, table, name, prop, req, now, columns); err != nil {
				return err
			}
		}

		if err := probeNaturalKey(tx, spec, table, columns, 0); err != nil {
			return err
		}

		pk, err := insertRow(tx, table, columns)
		if err != nil {
			return err
		}
		resultPK = pk

		for _, rc := range toManyProps {
			values, ok := req.Data[rc.name].([]interface{})
			if !ok {
				continue
			}
			childSpec, err := catalog.GetFeather(tx, rc.prop.Relation.Feather, nil)
			if err != nil {
				return err
			}
			backRef, err := findChildOfProperty(childSpec, spec.Name)
			if err != nil {
				return err
			}
			for _, v := range values {
				childData, ok := v.(map[string]interface{})
				if !ok {
					return apperr.Validation("property %q expects an array of objects", rc.name)
				}
				childReq := req
				childReq.Name = rc.prop.Relation.Feather
				childReq.ID = ""
				childReq.Data = childData
				childReq.IsChild = true
				childReq.ParentPK = &pk
				childReq.ParentRelation = backRef
				if _, _, _, err := doInsert(tx, childReq); err != nil {
					return err
				}
			}
		}

		row, err := reselectRow(tx, spec, pk, req)
		if err != nil {
			return err
		}
		persisted = row

		if err := writeLog(tx, id, req.Name, "POST", req.UserID, persisted); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		return 0, nil, nil, err
	}

	diff, err := patch.Diff(cacheRec, persisted)
	if err != nil {
		return 0, nil, nil, err
	}
	return resultPK, persisted, diff, nil
}

func rejectUnknownKeys(spec *types.FeatherSpec, data map[string]interface{}) error {
	for k := range data {
		if k == "id" {
			continue
		}
		if _, ok := spec.Properties[k]; !ok {
			return apperr.Validation("unknown property %q on feather %q", k, spec.Name)
		}
	}
	return nil
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// resolveFolderPK resolves the request's attached folder, if any, for the
// canCreate class-or-folder-member authorization check (spec.md §4.6.1
// step 4). Folder attachment is expressed as a to-one relation property
// named "folder" by convention; feathers without one simply have no
// folder gate.
func resolveFolderPK(tx *gorm.DB, spec *types.FeatherSpec, req Request) (int64, error) {
	prop, ok := spec.Properties["folder"]
	if !ok || !prop.IsRelation() {
		return 0, nil
	}
	raw, ok := req.Data["folder"]
	if !ok || raw == nil {
		return 0, nil
	}
	return resolveToOneValue(tx, prop, raw, req)
}

// resolveToOneValue resolves a to-one relation property's value to the
// referenced row's _pk, -1 when absent. An isChild relation's value is the
// nested record to create, not a reference.
func resolveToOneValue(tx *gorm.DB, prop *types.Property, value interface{}, req Request) (int64, error) {
	if prop.Relation.IsChild {
		data, ok := value.(map[string]interface{})
		if !ok {
			return -1, nil
		}
		childReq := req
		childReq.Name = prop.Relation.Feather
		childReq.ID = ""
		childReq.Data = data
		childReq.IsChild = true
		childReq.ParentPK = nil
		childReq.ParentRelation = ""
		pk, _, _, err := doInsert(tx, childReq)
		if err != nil {
			return 0, err
		}
		return pk, nil
	}

	id := extractID(value)
	if id == "" {
		return -1, nil
	}
	return tools.GetKey(tx, prop.Relation.Feather, id, req.UserID, req.IsSuper, tools.CanRead)
}

func extractID(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case map[string]interface{}:
		if id, ok := v["id"].(string); ok {
			return id
		}
	}
	return ""
}

// resolveScalarColumn resolves one non-relation property's physical
// column(s) into columns (spec.md §4.6.1 step 7).
func resolveScalarColumn(tx *gorm.DB, table, name string, prop *types.Property, req Request, now time.Time, columns map[string]interface{}) error {
	col := tools.SnakeCase(name)
	raw, provided := req.Data[name]

	if prop.Autonumber != nil {
		next, err := nextAutonumber(tx, table, col, prop.Autonumber)
		if err != nil {
			return err
		}
		columns[col] = next
		return nil
	}

	if prop.Format == "money" {
		var money map[string]interface{}
		if provided {
			money, _ = raw.(map[string]interface{})
		}
		if money == nil {
			def, err := resolveScalarDefault(prop, now)
			if err != nil {
				return err
			}
			money, _ = def.(map[string]interface{})
		}
		columns[col+"_amount"] = money["amount"]
		columns[col+"_currency"] = money["currency"]
		columns[col+"_effective"] = money["effective"]
		columns[col+"_base_amount"] = money["baseAmount"]
		return nil
	}

	var value interface{}
	if provided {
		value = raw
	} else {
		def, err := resolveScalarDefault(prop, now)
		if err != nil {
			return err
		}
		value = def
	}

	if prop.IsRequired && value == nil {
		return apperr.Validation("property %q is required on feather %q", name, req.Name)
	}

	if prop.ScalarType == "object" || prop.ScalarType == "array" {
		encoded, err := encodeJSONColumn(value)
		if err != nil {
			return err
		}
		columns[col] = encoded
		return nil
	}

	columns[col] = value
	return nil
}

// encodeJSONColumn JSON-encodes v for a jsonb column, accepting a value
// that is already a JSON string as-is (spec.md §4.6.1 step 7).
func encodeJSONColumn(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok {
		var probe interface{}
		if json.Unmarshal([]byte(s), &probe) == nil {
			return s, nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return string(raw), nil
}

// probeNaturalKey runs the single isNaturalKey, non-autonumber uniqueness
// check against the column values about to be written (spec.md §4.6.1
// step 3).
func probeNaturalKey(tx *gorm.DB, spec *types.FeatherSpec, table string, columns map[string]interface{}, excludePK int64) error {
	for name, prop := range spec.Properties {
		if !prop.IsNaturalKey || prop.Autonumber != nil {
			continue
		}
		col := tools.SnakeCase(name)
		value, ok := columns[col]
		if !ok || value == nil {
			continue
		}
		if err := checkNaturalKeyUnique(tx, table, col, spec.Name, name, value, excludePK); err != nil {
			return err
		}
		return nil // spec.md §4.6.1 step 3: a single natural-key probe
	}
	return nil
}

// insertRow inserts columns into table and returns the new row's _pk.
func insertRow(tx *gorm.DB, table string, columns map[string]interface{}) (int64, error) {
	names := make([]string, 0, len(columns))
	for k := range columns {
		names = append(names, k)
	}

	idents := make([]string, len(names))
	placeholders := make([]string, len(names))
	args := make([]interface{}, len(names))
	for i, n := range names {
		idents[i] = tools.Ident(n)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = columns[n]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		tools.Ident(table), strings.Join(idents, ", "), strings.Join(placeholders, ", "), tools.Ident(tools.PKColumn()))

	var pk int64
	row := tx.Raw(query, args...).Row()
	if err := row.Scan(&pk); err != nil {
		return 0, apperr.Internal(err)
	}
	return pk, nil
}
