package crud

import (
	"fmt"
	"strings"

	"github.com/localnerve/featherdb/internal/apperr"
	"github.com/localnerve/featherdb/internal/catalog"
	"github.com/localnerve/featherdb/internal/events"
	"github.com/localnerve/featherdb/internal/tools"
	"github.com/localnerve/featherdb/internal/types"
	"gorm.io/gorm"
)

// DoSelect implements spec.md §4.6.2. Returns a single sanitized map for
// req.ID, or a []map[string]interface{} for a filtered query.
func DoSelect(db *gorm.DB, req Request) (interface{}, error) {
	spec, err := catalog.GetFeather(db, req.Name, nil)
	if err != nil {
		return nil, err
	}
	if spec.IsChild && !req.IsChild && !req.IsSuper {
		return nil, apperr.Unauthorized("feather %q is a child type and cannot be selected directly", req.Name)
	}

	if req.Filter != nil && req.Filter.HasLimitZero() {
		return []map[string]interface{}{}, nil
	}

	rows, err := selectRows(db, spec, req)
	if err != nil {
		return nil, err
	}

	if req.Subscription != nil {
		ids := make([]string, 0, len(rows))
		for _, r := range rows {
			if id, ok := r["id"].(string); ok {
				ids = append(ids, id)
			}
		}
		featherName := ""
		if req.Filter == nil || len(req.Filter.Criteria) == 0 {
			featherName = req.Name // unconstrained result set: stream late arrivals too
		}
		if err := events.Subscribe(db, events.Subscription{
			NodeID: req.Subscription.NodeID, SessionID: req.Subscription.SessionID, SubscriptionID: req.Subscription.SubscriptionID,
		}, ids, featherName, req.Subscription.Merge); err != nil {
			return nil, err
		}
	}

	if req.ID != "" {
		if len(rows) == 0 {
			return nil, apperr.NotFound("object %q not found on feather %q", req.ID, req.Name)
		}
		return rows[0], nil
	}
	return rows, nil
}

// selectRows runs the compiled query for spec and resolves every row's
// relation properties.
func selectRows(db *gorm.DB, spec *types.FeatherSpec, req Request) ([]map[string]interface{}, error) {
	table := catalog.TableName(spec.Name)
	cols, relProps := buildSelectColumns(table, spec)

	var joins []string
	seen := map[string]bool{}
	var tokens []interface{}
	var whereClauses []string

	if req.ID != "" {
		tokens = append(tokens, req.ID)
		whereClauses = append(whereClauses, fmt.Sprintf("%s = $%d", tools.QualifiedIdent(table, "id"), len(tokens)))
	} else if req.Filter != nil && len(req.Filter.Criteria) > 0 {
		frag, err := tools.BuildFilterSQL(req.Filter.Criteria, spec.Name, lookup(db), &joins, seen, &tokens)
		if err != nil {
			return nil, apperr.Validation("%s", err)
		}
		whereClauses = append(whereClauses, frag)
	}

	if !req.ShowDeleted {
		whereClauses = append(whereClauses, tools.QualifiedIdent(table, "is_deleted")+" = FALSE")
	}

	tokens = append(tokens, req.UserID, spec.Name)
	authFrag, err := tools.BuildAuthSQL(tools.CanRead, table, spec.Name, fmt.Sprintf("$%d", len(tokens)-1), fmt.Sprintf("$%d", len(tokens)), req.IsSuper)
	if err != nil {
		return nil, err
	}
	whereClauses = append(whereClauses, authFrag)

	var orderBy string
	if req.Filter != nil && len(req.Filter.Sort) > 0 {
		orderBy, err = tools.ProcessSort(req.Filter.Sort, spec.Name, lookup(db), &joins, seen)
		if err != nil {
			return nil, apperr.Validation("%s", err)
		}
	} else {
		orderBy = "ORDER BY " + tools.QualifiedIdent(table, tools.PKColumn()) + " ASC"
	}

	limitClause := ""
	if req.Filter != nil && req.Filter.Limit != nil {
		limitClause = fmt.Sprintf("LIMIT %d", *req.Filter.Limit)
	}
	offsetClause := ""
	if req.Filter != nil && req.Filter.Offset > 0 {
		offsetClause = fmt.Sprintf("OFFSET %d", req.Filter.Offset)
	}

	query := fmt.Sprintf("SELECT %s FROM %s %s WHERE %s %s %s %s",
		strings.Join(cols, ", "), tools.Ident(table), strings.Join(joins, " "),
		strings.Join(whereClauses, " AND "), orderBy, limitClause, offsetClause)

	sqlRows, err := db.Raw(query, tokens...).Rows()
	if err != nil {
		return nil, apperr.Internal(err)
	}
	raws, err := scanRows(sqlRows)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]interface{}, 0, len(raws))
	for _, raw := range raws {
		resolved, err := resolveRelations(db, raw, relProps, spec, req)
		if err != nil {
			return nil, err
		}
		sanitized, _ := tools.Sanitize(resolved).(map[string]interface{})
		out = append(out, sanitized)
	}
	return out, nil
}

// resolveRelations substitutes each relation/money property's raw columns
// for its resolved value (spec.md §4.6.2 step 5).
func resolveRelations(db *gorm.DB, raw map[string]interface{}, relProps []relationColumn, spec *types.FeatherSpec, req Request) (map[string]interface{}, error) {
	pk, _ := raw[tools.PKColumn()].(int64)

	for _, rc := range relProps {
		col := tools.SnakeCase(rc.name)

		if rc.prop.Format == "money" {
			raw[col] = map[string]interface{}{
				"amount":     raw["_money_"+col+"_amount"],
				"currency":   raw["_money_"+col+"_currency"],
				"effective":  raw["_money_"+col+"_effective"],
				"baseAmount": raw["_money_"+col+"_base_amount"],
			}
			continue
		}

		if rc.prop.Relation.EffectiveKind() == types.ToMany {
			childSpec, err := catalog.GetFeather(db, rc.prop.Relation.Feather, nil)
			if err != nil {
				return nil, err
			}
			backRef, err := findChildOfProperty(childSpec, spec.Name)
			if err != nil {
				return nil, err
			}
			children, err := selectChildRows(db, childSpec, backRef, pk, req)
			if err != nil {
				return nil, err
			}
			raw[col] = children
			continue
		}

		fk, ok := raw["_rel_"+col].(int64)
		if !ok || fk == -1 {
			raw[col] = nil
			continue
		}
		related, err := selectRelatedOne(db, rc.prop.Relation, fk, req)
		if err != nil {
			return nil, err
		}
		raw[col] = related
	}

	return raw, nil
}

// selectRelatedOne loads a to-one relation's referenced row, projected to
// its declared property list (or just id if none was declared).
func selectRelatedOne(db *gorm.DB, rel *types.Relation, pk int64, req Request) (map[string]interface{}, error) {
	relSpec, err := catalog.GetFeather(db, rel.Feather, nil)
	if err != nil {
		return nil, err
	}
	table := catalog.TableName(rel.Feather)
	cols, relProps := buildSelectColumns(table, relSpec)
	if len(rel.Properties) > 0 {
		cols = filterColumnsByProperties(cols, rel.Properties)
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", strings.Join(cols, ", "), tools.Ident(table), tools.QualifiedIdent(table, tools.PKColumn()))
	sqlRows, err := db.Raw(query, pk).Rows()
	if err != nil {
		return nil, apperr.Internal(err)
	}
	raws, err := scanRows(sqlRows)
	if err != nil {
		return nil, err
	}
	if len(raws) == 0 {
		return nil, nil
	}

	resolved, err := resolveRelations(db, raws[0], relProps, relSpec, req)
	if err != nil {
		return nil, err
	}
	sanitized, _ := tools.Sanitize(resolved).(map[string]interface{})
	return sanitized, nil
}

// selectChildRows loads every row of childSpec's table back-referencing
// parentPK through backRef, ordered by _pk (spec.md §4.6.2 step 5).
func selectChildRows(db *gorm.DB, childSpec *types.FeatherSpec, backRef string, parentPK int64, req Request) ([]map[string]interface{}, error) {
	table := catalog.TableName(childSpec.Name)
	cols, relProps := buildSelectColumns(table, childSpec)
	backRefCol := tools.SnakeCase(backRef)

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 AND %s = FALSE ORDER BY %s ASC",
		strings.Join(cols, ", "), tools.Ident(table),
		tools.QualifiedIdent(table, backRefCol), tools.QualifiedIdent(table, "is_deleted"),
		tools.QualifiedIdent(table, tools.PKColumn()))

	sqlRows, err := db.Raw(query, parentPK).Rows()
	if err != nil {
		return nil, apperr.Internal(err)
	}
	raws, err := scanRows(sqlRows)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]interface{}, 0, len(raws))
	childReq := req
	childReq.IsChild = true
	for _, raw := range raws {
		resolved, err := resolveRelations(db, raw, relProps, childSpec, childReq)
		if err != nil {
			return nil, err
		}
		sanitized, _ := tools.Sanitize(resolved).(map[string]interface{})
		out = append(out, sanitized)
	}
	return out, nil
}

// filterColumnsByProperties narrows a select list to id/_pk plus the named
// properties, for a to-one relation that declared which columns it wants
// projected.
func filterColumnsByProperties(cols []string, names []string) []string {
	want := map[string]bool{tools.Ident(tools.PKColumn()): true, tools.Ident("id"): true}
	for _, n := range names {
		want[tools.Ident(tools.SnakeCase(n))] = true
		want[tools.Ident("_rel_"+tools.SnakeCase(n))] = true
		want[tools.Ident("_money_"+tools.SnakeCase(n)+"_amount")] = true
		want[tools.Ident("_money_"+tools.SnakeCase(n)+"_currency")] = true
		want[tools.Ident("_money_"+tools.SnakeCase(n)+"_effective")] = true
		want[tools.Ident("_money_"+tools.SnakeCase(n)+"_base_amount")] = true
	}
	var out []string
	for _, c := range cols {
		alias := c[strings.LastIndex(c, " ")+1:]
		if want[alias] {
			out = append(out, c)
		}
	}
	return out
}

// reselectRow loads a single freshly-written row by _pk, used by
// doInsert/doUpdate to build the persisted record they log and diff
// (spec.md §4.6.1 step 9, §4.6.3 step 10).
func reselectRow(db *gorm.DB, spec *types.FeatherSpec, pk int64, req Request) (map[string]interface{}, error) {
	table := catalog.TableName(spec.Name)
	cols, relProps := buildSelectColumns(table, spec)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", strings.Join(cols, ", "), tools.Ident(table), tools.QualifiedIdent(table, tools.PKColumn()))

	sqlRows, err := db.Raw(query, pk).Rows()
	if err != nil {
		return nil, apperr.Internal(err)
	}
	raws, err := scanRows(sqlRows)
	if err != nil {
		return nil, err
	}
	if len(raws) == 0 {
		return nil, apperr.Internal(fmt.Errorf("reselect: row _pk=%d vanished from %q mid-transaction", pk, table))
	}

	resolved, err := resolveRelations(db, raws[0], relProps, spec, req)
	if err != nil {
		return nil, err
	}
	sanitized, _ := tools.Sanitize(resolved).(map[string]interface{})
	return sanitized, nil
}
