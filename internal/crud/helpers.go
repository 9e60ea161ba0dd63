package crud

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/localnerve/featherdb/internal/apperr"
	"github.com/localnerve/featherdb/internal/catalog"
	"github.com/localnerve/featherdb/internal/tools"
	"github.com/localnerve/featherdb/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/hints"
)

// lookup adapts catalog.GetFeather to tools.FeatherLookup for the filter,
// sort, and path-resolution compilers.
func lookup(db *gorm.DB) tools.FeatherLookup {
	return func(name string) (*types.FeatherSpec, error) {
		return catalog.GetFeather(db, name, nil)
	}
}

// humanizeLabel turns a camelCase property name into the space-separated,
// title-cased label the uniqueness-violation message names (spec.md §8
// scenario 2: "...assigned to Last Name on Contact...").
func humanizeLabel(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			b.WriteByte(' ')
			b.WriteRune(r)
			continue
		}
		if i == 0 {
			b.WriteRune(r - 'a' + 'A')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// formatAutonumber renders a sequence value as prefix + zero-padded(seq,
// length) + suffix (spec.md §4.6.1 step 7).
func formatAutonumber(auto *types.Autonumber, seq int64) string {
	digits := fmt.Sprintf("%d", seq)
	if auto.Length > len(digits) {
		digits = strings.Repeat("0", auto.Length-len(digits)) + digits
	}
	return auto.Prefix + digits + auto.Suffix
}

// findChildOfProperty locates the property on childSpec whose relation
// back-references parentFeather, the column a parentOf-array element or an
// isChild composite stamps with its owner's _pk.
func findChildOfProperty(childSpec *types.FeatherSpec, parentFeather string) (string, error) {
	for name, prop := range childSpec.Properties {
		if prop.IsRelation() && prop.Relation.ChildOf == parentFeather {
			return name, nil
		}
	}
	return "", apperr.Internal(fmt.Errorf("feather %q has no childOf property back-referencing %q", childSpec.Name, parentFeather))
}

// checkNaturalKeyUnique probes for an existing, non-deleted row carrying
// value on column (spec.md §4.6.1 step 3, §4.6.3 step 7). excludePK is
// compared against so an update doesn't trip on its own row; pass 0 from
// an insert.
func checkNaturalKeyUnique(db *gorm.DB, table, column, featherName, propName string, value interface{}, excludePK int64) error {
	query := fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1 AND %s = FALSE AND %s <> $2)`,
		tools.Ident(table), tools.Ident(column), tools.Ident("is_deleted"), tools.Ident(tools.PKColumn()),
	)
	var exists bool
	if err := db.Raw(query, value, excludePK).Row().Scan(&exists); err != nil {
		return apperr.Internal(err)
	}
	if exists {
		return apperr.Conflict("Value '%v' assigned to %s on %s is not unique to data type %s.",
			value, humanizeLabel(propName), featherName, featherName)
	}
	return nil
}

// resolveScalarDefault resolves a scalar property's value when the caller
// didn't supply one: the property's own default, else the format/type
// default, resolving a name() reference (spec.md §4.6.1 step 7).
func resolveScalarDefault(prop *types.Property, now time.Time) (interface{}, error) {
	if prop.Default != nil {
		if name, ok := tools.IsNameReference(prop.Default); ok {
			return resolveNamedDefault(name, now)
		}
		return prop.Default, nil
	}

	info, ok := tools.ResolveTypeInfo(prop.ScalarType, prop.Format)
	if !ok || info.Default == nil {
		return nil, nil
	}
	if name, ok := tools.IsNameReference(info.Default); ok {
		return resolveNamedDefault(name, now)
	}
	return info.Default, nil
}

// resolveNamedDefault resolves the small set of name() defaults the format
// table can reference. money() is the only composite default; baseCurrency
// resolution against a settings store is left at "USD" — no settings
// schema for it is specified (spec.md §9 doesn't list it as an open
// question, so this is a pragmatic default rather than a guess on a named
// open question).
func resolveNamedDefault(name string, now time.Time) (interface{}, error) {
	switch name {
	case "now":
		return now, nil
	case "money":
		return map[string]interface{}{
			"amount":      0,
			"currency":    "USD",
			"effective":   nil,
			"baseAmount":  nil,
		}, nil
	default:
		return nil, apperr.Internal(fmt.Errorf("unknown default function %q()", name))
	}
}

// buildSelectColumns returns the SQL select list for every declared
// property of spec plus the system columns, and the subset of properties
// that need a second-pass relation resolution. Relation pk columns are
// aliased with a leading underscore so tools.Sanitize drops the raw
// surrogate value; resolveRelations substitutes the resolved nested value
// back in under the property's real name.
func buildSelectColumns(table string, spec *types.FeatherSpec) ([]string, []relationColumn) {
	cols := []string{
		tools.QualifiedIdent(table, tools.PKColumn()) + " AS " + tools.Ident(tools.PKColumn()),
		tools.QualifiedIdent(table, "id") + " AS " + tools.Ident("id"),
		tools.QualifiedIdent(table, "created") + " AS " + tools.Ident("created"),
		tools.QualifiedIdent(table, "created_by") + " AS " + tools.Ident("created_by"),
		tools.QualifiedIdent(table, "updated") + " AS " + tools.Ident("updated"),
		tools.QualifiedIdent(table, "updated_by") + " AS " + tools.Ident("updated_by"),
		tools.QualifiedIdent(table, "is_deleted") + " AS " + tools.Ident("is_deleted"),
		tools.QualifiedIdent(table, "etag") + " AS " + tools.Ident("etag"),
		tools.QualifiedIdent(table, "lock") + " AS " + tools.Ident("lock"),
	}

	var relProps []relationColumn
	for name, prop := range spec.Properties {
		col := tools.SnakeCase(name)
		if prop.IsRelation() {
			relProps = append(relProps, relationColumn{name: name, prop: prop})
			if prop.Relation.EffectiveKind() == types.ToMany {
				continue // materialized by the second pass, no column here
			}
			cols = append(cols, fmt.Sprintf("%s AS %s", tools.QualifiedIdent(table, col), tools.Ident("_rel_"+col)))
			continue
		}
		if prop.Format == "money" {
			cols = append(cols,
				fmt.Sprintf("%s AS %s", tools.QualifiedIdent(table, col+"_amount"), tools.Ident("_money_"+col+"_amount")),
				fmt.Sprintf("%s AS %s", tools.QualifiedIdent(table, col+"_currency"), tools.Ident("_money_"+col+"_currency")),
				fmt.Sprintf("%s AS %s", tools.QualifiedIdent(table, col+"_effective"), tools.Ident("_money_"+col+"_effective")),
				fmt.Sprintf("%s AS %s", tools.QualifiedIdent(table, col+"_base_amount"), tools.Ident("_money_"+col+"_base_amount")),
			)
			relProps = append(relProps, relationColumn{name: name, prop: prop})
			continue
		}
		cols = append(cols, fmt.Sprintf("%s AS %s", tools.QualifiedIdent(table, col), tools.Ident(col)))
	}
	return cols, relProps
}

// scanRows drains rows into one map per row keyed by column name, the raw
// driver value as-is (no sanitizing — callers resolve relations first).
func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	defer rows.Close()
	names, err := rows.Columns()
	if err != nil {
		return nil, apperr.Internal(err)
	}

	var out []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(names))
		ptrs := make([]interface{}, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, apperr.Internal(err)
		}
		row := make(map[string]interface{}, len(names))
		for i, n := range names {
			row[n] = values[i]
		}
		out = append(out, row)
	}
	return out, nil
}

// lockRow takes a row-level lock (SELECT ... FOR UPDATE by id) on a
// feather's physical row and returns its surrogate _pk; the statement is
// tagged with a "crud-row-lock" SQL comment (spec.md §5: writes are
// serialized within a transaction).
func lockRow(tx *gorm.DB, table, id string) (int64, error) {
	var pk int64
	row := tx.Table(table).
		Clauses(clause.Locking{Strength: "UPDATE"}, hints.Comment("SELECT", "crud-row-lock")).
		Select(tools.PKColumn()).
		Where("id = ?", id).
		Row()
	if err := row.Scan(&pk); err != nil {
		if err == sql.ErrNoRows {
			return 0, apperr.NotFound("object %q not found", id)
		}
		return 0, apperr.Internal(err)
	}
	return pk, nil
}
