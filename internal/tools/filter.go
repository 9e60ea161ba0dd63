package tools

import (
	"fmt"
	"strings"

	"github.com/localnerve/featherdb/internal/types"
)

// BuildFilterSQL compiles a filter's criteria into a parameterized WHERE
// fragment. tokens accumulates the positional arguments in order; the
// returned fragment references them as $N continuing from the current
// length of tokens. A Criterion whose Property is a []interface{} compiles
// to a disjunction of the same operator/value over each named property
// (spec.md §6's "list of property names" case).
func BuildFilterSQL(criteria []types.Criterion, feather string, lookup FeatherLookup, joins *[]string, seen map[string]bool, tokens *[]interface{}) (string, error) {
	if len(criteria) == 0 {
		return "TRUE", nil
	}

	var clauses []string
	for _, c := range criteria {
		if !SupportsOperator(opOrEq(c.Operator)) {
			return "", fmt.Errorf("invalid argument: unknown operator %q", c.Operator)
		}

		props, err := propertyNames(c.Property)
		if err != nil {
			return "", err
		}

		var disjuncts []string
		for _, p := range props {
			col, err := ResolvePath(p, feather, lookup, joins, seen)
			if err != nil {
				return "", err
			}
			frag, err := compareFragment(col, c.Operator, c.Value, tokens)
			if err != nil {
				return "", err
			}
			disjuncts = append(disjuncts, frag)
		}

		if len(disjuncts) == 1 {
			clauses = append(clauses, disjuncts[0])
		} else {
			clauses = append(clauses, "("+strings.Join(disjuncts, " OR ")+")")
		}
	}

	return strings.Join(clauses, " AND "), nil
}

func opOrEq(op string) string {
	if op == "" {
		return "="
	}
	return op
}

func propertyNames(prop interface{}) ([]string, error) {
	switch v := prop.(type) {
	case string:
		return []string{v}, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("invalid argument: non-string property name in disjunction")
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("invalid argument: unsupported property reference %v", prop)
	}
}

func compareFragment(col, op string, value interface{}, tokens *[]interface{}) (string, error) {
	op = opOrEq(op)

	if op == "IN" {
		values, ok := value.([]interface{})
		if !ok {
			return "", fmt.Errorf("invalid argument: IN requires an array value")
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			*tokens = append(*tokens, v)
			placeholders[i] = fmt.Sprintf("$%d", len(*tokens))
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")), nil
	}

	if value == nil {
		switch op {
		case "=":
			return fmt.Sprintf("%s IS NULL", col), nil
		case "!=", "<>":
			return fmt.Sprintf("%s IS NOT NULL", col), nil
		}
	}

	*tokens = append(*tokens, value)
	return fmt.Sprintf("%s %s $%d", col, op, len(*tokens)), nil
}
