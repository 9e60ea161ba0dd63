package tools

import (
	"fmt"

	"github.com/localnerve/featherdb/internal/apperr"
	"gorm.io/gorm"
)

// GetKey resolves a single object id to its surrogate _pk, honoring
// authorization for action. Returns apperr.NotFound if the row doesn't
// exist or isn't visible under the auth fragment (the two are
// indistinguishable to the caller by design: existence of a row you can't
// read is not observable).
func GetKey(db *gorm.DB, feather, id, userID string, isSuper bool, action AuthAction) (int64, error) {
	table := TableName(feather)
	authFrag, err := BuildAuthSQL(action, table, feather, "$2", "$3", isSuper)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 AND (%s)`,
		QualifiedIdent(table, PKColumn()), Ident(table), authFrag)

	var pk int64
	row := db.Raw(query, id, userID, feather).Row()
	if err := row.Scan(&pk); err != nil {
		return 0, apperr.NotFound("object %q not found on feather %q", id, feather)
	}
	return pk, nil
}

// GetKeys resolves a batch of ids to surrogate _pks, skipping any id that
// doesn't exist or isn't authorized rather than failing the whole batch —
// callers that need strict resolution (a single to-one reference or lock
// target) use GetKey instead.
func GetKeys(db *gorm.DB, feather string, ids []string, userID string, isSuper bool, action AuthAction) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	table := TableName(feather)
	authFrag, err := BuildAuthSQL(action, table, feather, "$2", "$3", isSuper)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ANY($1) AND (%s)`,
		QualifiedIdent(table, PKColumn()), Ident(table), authFrag)

	rows, err := db.Raw(query, ids, userID, feather).Rows()
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var pk int64
		if err := rows.Scan(&pk); err != nil {
			return nil, apperr.Internal(err)
		}
		out = append(out, pk)
	}
	return out, nil
}
