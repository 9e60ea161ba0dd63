package catalog

import (
	"fmt"
	"strings"

	"github.com/localnerve/featherdb/internal/tools"
	"github.com/localnerve/featherdb/internal/types"
)

// systemColumns are present on every feather's physical table via
// inheritance from the Object root table (spec.md §3). They are only
// emitted when synthesizing the root table itself; every other feather's
// CREATE TABLE ... INHERITS (parent) picks them up automatically.
var systemColumns = []string{
	tools.PKColumn() + " BIGSERIAL PRIMARY KEY",
	"id TEXT NOT NULL UNIQUE",
	"created TIMESTAMPTZ NOT NULL",
	"created_by TEXT NOT NULL",
	"updated TIMESTAMPTZ NOT NULL",
	"updated_by TEXT NOT NULL",
	"is_deleted BOOLEAN NOT NULL DEFAULT FALSE",
	"etag TEXT NOT NULL",
	"lock JSONB",
}

// columnDef is one physical column a property compiles to. A money
// property compiles to four columnDefs (spec.md §4.6.1 step 7); every
// other scalar or to-one relation compiles to exactly one.
type columnDef struct {
	name   string
	dbType string
}

// propertyColumns returns the physical columns for prop, or nil for a
// parentOf to-many relation (which has no column on this table — it is
// materialized by a back-reference column on the child's table). An
// isChild composite gets a BIGINT column like any other to-one relation.
func propertyColumns(name string, prop *types.Property) []columnDef {
	col := tools.SnakeCase(name)

	if prop.IsRelation() {
		if prop.Relation.EffectiveKind() == types.ToMany {
			return nil
		}
		// to-one, childOf back-reference, or isChild composite: a bigint FK
		// to the referenced _pk, -1 sentinel for none
		return []columnDef{{name: col, dbType: "BIGINT"}}
	}

	if prop.Format == "money" {
		return []columnDef{
			{name: col + "_amount", dbType: "NUMERIC"},
			{name: col + "_currency", dbType: "TEXT"},
			{name: col + "_effective", dbType: "DATE"},
			{name: col + "_base_amount", dbType: "NUMERIC"},
		}
	}

	info, ok := tools.ResolveTypeInfo(prop.ScalarType, prop.Format)
	if !ok {
		info = tools.TypeInfo{DBType: "TEXT"}
	}
	dbType := strings.ToUpper(info.DBType)
	if prop.Autonumber != nil {
		dbType = "TEXT"
	}
	if prop.Precision > 0 && (dbType == "NUMERIC" || dbType == "DOUBLE PRECISION") {
		dbType = fmt.Sprintf("NUMERIC(%d,%d)", prop.Precision, prop.Scale)
	}
	return []columnDef{{name: col, dbType: dbType}}
}

// createRootTableSQL provisions the Object root table. SaveFeather runs it
// on every save; IF NOT EXISTS makes every run after the first a no-op.
func createRootTableSQL() string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		tools.Ident(TableName(rootFeather)), strings.Join(systemColumns, ",\n\t"))
}

// createTableSQL provisions a non-root feather's table, inheriting the
// parent's columns via Postgres single-table inheritance.
func createTableSQL(spec *types.FeatherSpec, columns []columnDef) string {
	table := TableName(spec.Name)
	parent := TableName(spec.EffectiveInherits())

	var defs []string
	for _, c := range columns {
		defs = append(defs, fmt.Sprintf("%s %s", tools.Ident(c.name), c.dbType))
	}
	if len(defs) == 0 {
		defs = append(defs, fmt.Sprintf("%s BIGINT", tools.Ident("_placeholder_no_own_columns")))
	}

	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n) INHERITS (%s)",
		tools.Ident(table), strings.Join(defs, ",\n\t"), tools.Ident(parent))
}

func addColumnSQL(table string, c columnDef) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s",
		tools.Ident(table), tools.Ident(c.name), c.dbType)
}

func dropColumnSQL(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN IF EXISTS %s",
		tools.Ident(table), tools.Ident(column))
}

func dropTableSQL(table string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", tools.Ident(table))
}

func dropViewSQL(view string) string {
	return fmt.Sprintf("DROP VIEW IF EXISTS %s", tools.Ident(view))
}

// allColumns flattens every non-relation-to-many property into its
// physical columns, in map-iteration order.
func allColumns(props map[string]*types.Property) []columnDef {
	var out []columnDef
	for name, p := range props {
		out = append(out, propertyColumns(name, p)...)
	}
	return out
}
