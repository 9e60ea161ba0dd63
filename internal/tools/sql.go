// Package tools holds the SQL primitives every other core package is built
// on: identifier escaping, the scalar format/type default tables, the
// sanitizer, dotted-path join resolution, sort compilation, the
// authorization WHERE-clause builder, and id-to-surrogate-key lookup.
// Nothing here talks feather inheritance or triggers — that is catalog's
// and pipeline's job.
package tools

import (
	"fmt"

	"github.com/lib/pq"
)

// PKColumn is the never-exposed surrogate primary key every object table
// carries (spec.md §3).
func PKColumn() string { return "_pk" }

// Ident quotes a SQL identifier, grounded on lib/pq's own QuoteIdentifier
// (the same package supplies events' LISTEN/NOTIFY connection).
func Ident(name string) string {
	return pq.QuoteIdentifier(name)
}

// QualifiedIdent quotes a "table.column" pair as %I.%I would in PL/pgSQL.
func QualifiedIdent(table, column string) string {
	return fmt.Sprintf("%s.%s", Ident(table), Ident(column))
}

// TypeInfo is one row of the formats/types tables spec.md §4.1 calls for:
// the physical column type and its literal (or name()-referenced) default.
type TypeInfo struct {
	DBType  string
	Default interface{} // a literal, or a string like "now()" resolved at insert time
}

// Types maps a property's bare scalar keyword to its physical type.
var Types = map[string]TypeInfo{
	"string":   {DBType: "text", Default: ""},
	"boolean":  {DBType: "boolean", Default: false},
	"integer":  {DBType: "integer", Default: 0},
	"number":   {DBType: "double precision", Default: 0},
	"object":   {DBType: "jsonb", Default: nil},
	"array":    {DBType: "jsonb", Default: nil},
}

// Formats maps a property's format (which refines a scalar type) to its
// physical type and default. A format not listed here falls back to Types.
var Formats = map[string]TypeInfo{
	"date":     {DBType: "date", Default: nil},
	"dateTime": {DBType: "timestamptz", Default: "now()"},
	"money":    {DBType: "jsonb", Default: "money()"},
	"color":    {DBType: "text", Default: "#000000"},
	"email":    {DBType: "text", Default: ""},
	"url":      {DBType: "text", Default: ""},
	"textArea": {DBType: "text", Default: ""},
	"password": {DBType: "text", Default: ""},
}

// ResolveTypeInfo returns the physical type/default for a property given its
// scalar type and (optional) format, format taking precedence.
func ResolveTypeInfo(scalarType, format string) (TypeInfo, bool) {
	if format != "" {
		if info, ok := Formats[format]; ok {
			return info, true
		}
	}
	info, ok := Types[scalarType]
	return info, ok
}

// IsNameReference reports whether a default value is a named function
// reference like "now()" or "money()", to be resolved at insert time rather
// than used as a literal.
func IsNameReference(v interface{}) (string, bool) {
	s, ok := v.(string)
	if !ok || len(s) < 2 {
		return "", false
	}
	if s[len(s)-2:] == "()" {
		return s[:len(s)-2], true
	}
	return "", false
}
