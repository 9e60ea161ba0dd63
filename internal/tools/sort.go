package tools

import (
	"fmt"
	"strings"

	"github.com/localnerve/featherdb/internal/types"
)

// ProcessSort compiles a filter's sort terms into an ORDER BY clause,
// resolving each property's path (possibly joining into a relation) and
// appending pkcol() as a final, stable tiebreaker (spec.md §4.1).
func ProcessSort(sort []types.SortTerm, feather string, lookup FeatherLookup, joins *[]string, seen map[string]bool) (string, error) {
	table := TableName(feather)
	var terms []string

	for _, s := range sort {
		order := strings.ToUpper(s.Order)
		if order == "" {
			order = "ASC"
		}
		if order != "ASC" && order != "DESC" {
			return "", fmt.Errorf("invalid argument: unknown sort order %q", s.Order)
		}
		col, err := ResolvePath(s.Property, feather, lookup, joins, seen)
		if err != nil {
			return "", err
		}
		terms = append(terms, fmt.Sprintf("%s %s", col, order))
	}

	terms = append(terms, fmt.Sprintf("%s ASC", QualifiedIdent(table, PKColumn())))
	return "ORDER BY " + strings.Join(terms, ", "), nil
}
