package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/localnerve/featherdb/internal/tools"
	"github.com/localnerve/featherdb/internal/types"
)

// ViewName is the read-convenience view recreated whenever a feather (or
// an ancestor/descendant whose money columns it shares) is saved.
func ViewName(featherName string) string {
	return TableName(featherName) + "_v"
}

// createViewSQL recreates the feather's view, reassembling each money
// property's four physical columns into a single jsonb object so
// doSelect's post-processing (spec.md §4.6.2) reads one value per
// property instead of knowing about the composite's column layout.
func createViewSQL(spec *types.FeatherSpec, merged map[string]*types.Property) string {
	table := TableName(spec.Name)
	view := ViewName(spec.Name)

	selects := []string{
		tools.QualifiedIdent(table, tools.PKColumn()),
		tools.QualifiedIdent(table, "id"),
		tools.QualifiedIdent(table, "created"),
		tools.QualifiedIdent(table, "created_by"),
		tools.QualifiedIdent(table, "updated"),
		tools.QualifiedIdent(table, "updated_by"),
		tools.QualifiedIdent(table, "is_deleted"),
		tools.QualifiedIdent(table, "etag"),
		tools.QualifiedIdent(table, "lock"),
	}

	names := make([]string, 0, len(merged))
	for n := range merged {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, name := range names {
		prop := merged[name]
		col := tools.SnakeCase(name)
		if prop.IsRelation() && prop.Relation.EffectiveKind() == types.ToMany {
			continue // materialized by doSelect's second pass, not the view
		}
		if prop.Format == "money" {
			selects = append(selects, fmt.Sprintf(
				"jsonb_build_object('amount', %s, 'currency', %s, 'effective', %s, 'baseAmount', %s) AS %s",
				tools.QualifiedIdent(table, col+"_amount"),
				tools.QualifiedIdent(table, col+"_currency"),
				tools.QualifiedIdent(table, col+"_effective"),
				tools.QualifiedIdent(table, col+"_base_amount"),
				tools.Ident(col),
			))
			continue
		}
		selects = append(selects, fmt.Sprintf("%s AS %s", tools.QualifiedIdent(table, col), tools.Ident(col)))
	}

	return fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT\n\t%s\nFROM %s",
		tools.Ident(view), strings.Join(selects, ",\n\t"), tools.Ident(table))
}
