package tools

import (
	"fmt"
)

// AuthAction is one of the three row-level checks buildAuthSql compiles.
type AuthAction string

const (
	CanRead   AuthAction = "canRead"
	CanUpdate AuthAction = "canUpdate"
	CanDelete AuthAction = "canDelete"
)

var authColumn = map[AuthAction]string{
	CanRead:   "can_read",
	CanUpdate: "can_update",
	CanDelete: "can_delete",
}

// roleClosureSQL is the transitive role-membership closure for a user: every
// role the user is a direct member of, plus every role those roles are
// members of, recursively. It is inlined as a correlated subquery rather
// than a shared CTE so BuildAuthSQL's fragment can be dropped into any
// WHERE clause without the caller having to thread a WITH block through.
const roleClosureSQL = `(
	WITH RECURSIVE role_closure AS (
		SELECT role_id AS role_pk FROM role_member WHERE member_user_id = %s
		UNION
		SELECT rm.role_id FROM role_member rm
		JOIN role_closure rc ON rm.member_role_id = rc.role_pk
	)
	SELECT role_pk FROM role_closure
)`

// BuildAuthSQL returns a boolean SQL fragment suitable for ANDing into a
// WHERE clause: it is true for a row in table (aliased by table, qualified
// by _pk) iff the current user's role closure holds action on that object,
// directly, via the feather's class grant, or via an inherited (folder
// member) grant not overridden by a direct deny. action must be one of
// canRead, canUpdate, canDelete (spec.md §4.1). A super user bypasses the
// check entirely.
//
// Ties resolve per spec.md §4.3: inherited grants lose to direct grants,
// and among equals (a direct deny alongside an equally-direct allow or
// class grant) the most permissive wins. A direct deny therefore only
// vetoes an inherited allow — it never overrides a direct object grant or
// a class grant, both of which are always non-inherited.
func BuildAuthSQL(action AuthAction, table, featherName string, userParam, featherParam string, isSuper bool) (string, error) {
	if isSuper {
		return "TRUE", nil
	}
	col, ok := authColumn[action]
	if !ok {
		return "", fmt.Errorf("invalid argument: unknown auth action %q", action)
	}

	closure := fmt.Sprintf(roleClosureSQL, userParam)
	pk := QualifiedIdent(table, PKColumn())

	noDirectDeny := fmt.Sprintf(`NOT EXISTS (
		SELECT 1 FROM "$auth" auth_d
		WHERE auth_d.object_pk = %s
		  AND auth_d.is_inherited = false
		  AND auth_d.%s = false
		  AND auth_d.role_pk IN %s
	)`, pk, col, closure)

	directAllow := fmt.Sprintf(`EXISTS (
		SELECT 1 FROM "$auth" auth_do
		WHERE auth_do.object_pk = %s
		  AND auth_do.is_inherited = false
		  AND auth_do.%s = true
		  AND auth_do.role_pk IN %s
	)`, pk, col, closure)

	objectGrant := fmt.Sprintf(`EXISTS (
		SELECT 1 FROM "$auth" auth_o
		WHERE auth_o.object_pk = %s
		  AND auth_o.%s = true
		  AND auth_o.role_pk IN %s
	)`, pk, col, closure)

	classGrant := fmt.Sprintf(`EXISTS (
		SELECT 1 FROM "$auth" auth_c
		WHERE auth_c.object_pk = -1
		  AND auth_c.feather_name = %s
		  AND auth_c.%s = true
		  AND auth_c.role_pk IN %s
	)`, featherParam, col, closure)

	return fmt.Sprintf("(%s) OR (%s) OR ((%s) AND (%s))", directAllow, classGrant, noDirectDeny, objectGrant), nil
}

// SupportsOperator reports whether op is a filter operator tools/filters
// will compile, guarding against SQL injection via an unvalidated operator
// string (spec.md §4.1 error semantics: unknown operator is an invalid
// argument).
func SupportsOperator(op string) bool {
	_, ok := SupportedOperatorSet[op]
	return ok
}

// SupportedOperatorSet mirrors types.SupportedOperators for quick lookups
// without importing types into every caller of SupportsOperator.
var SupportedOperatorSet = map[string]bool{
	"=": true, "!=": true, "<": true, ">": true, "<=": true, ">=": true,
	"<>": true, "~": true, "~*": true, "!~": true, "!~*": true, "IN": true,
}
