package tools

import (
	"fmt"
	"strings"

	"github.com/localnerve/featherdb/internal/types"
)

// FeatherLookup resolves a feather's merged descriptor. catalog.GetFeather
// satisfies this; tools never imports catalog directly to avoid a cycle.
type FeatherLookup func(name string) (*types.FeatherSpec, error)

// TableName is the snake_case physical table name of a feather (spec.md
// §3's storage invariant).
func TableName(featherName string) string {
	return SnakeCase(featherName)
}

// ResolvePath resolves a dotted property path such as "parent.child.attr"
// against feather, emitting a chain of LEFT JOINs onto joins (only once per
// alias) and returning the qualified, quoted column reference for the
// final segment.
func ResolvePath(dotted string, feather string, lookup FeatherLookup, joins *[]string, seen map[string]bool) (string, error) {
	segments := strings.Split(dotted, ".")
	if len(segments) == 0 {
		return "", fmt.Errorf("invalid argument: empty path")
	}

	currentFeather := feather
	currentAlias := TableName(feather)

	for i, seg := range segments {
		last := i == len(segments)-1
		spec, err := lookup(currentFeather)
		if err != nil {
			return "", fmt.Errorf("invalid argument: unknown feather %q in path %q", currentFeather, dotted)
		}
		if last {
			if seg != "id" && seg != "_pk" {
				if _, ok := spec.Properties[seg]; !ok {
					return "", fmt.Errorf("invalid argument: unknown property %q on feather %q", seg, currentFeather)
				}
			}
			col := SnakeCase(seg)
			return QualifiedIdent(currentAlias, col), nil
		}

		prop, ok := spec.Properties[seg]
		if !ok || !prop.IsRelation() {
			return "", fmt.Errorf("invalid argument: %q is not a relation on feather %q", seg, currentFeather)
		}

		targetFeather := prop.Relation.Feather
		targetAlias := currentAlias + "_" + SnakeCase(seg)
		aliasKey := currentAlias + ">" + seg

		if !seen[aliasKey] {
			joinClause := fmt.Sprintf(
				"LEFT JOIN %s AS %s ON %s = %s",
				Ident(TableName(targetFeather)), Ident(targetAlias),
				QualifiedIdent(currentAlias, SnakeCase(seg)), QualifiedIdent(targetAlias, PKColumn()),
			)
			*joins = append(*joins, joinClause)
			seen[aliasKey] = true
		}

		currentFeather = targetFeather
		currentAlias = targetAlias
	}

	return "", fmt.Errorf("invalid argument: malformed path %q", dotted)
}
