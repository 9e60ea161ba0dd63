package crud

import (
	"fmt"

	"github.com/localnerve/featherdb/internal/apperr"
	"github.com/localnerve/featherdb/internal/tools"
	"github.com/localnerve/featherdb/internal/types"
	"gorm.io/gorm"
)

// autonumberSequenceName is the sequence an autonumber property draws from
// when it doesn't name one explicitly.
func autonumberSequenceName(table, column string, auto *types.Autonumber) string {
	if auto.Sequence != "" {
		return auto.Sequence
	}
	return table + "_" + column + "_autonumber_seq"
}

// nextAutonumber creates the backing sequence on first use and returns the
// formatted next value (spec.md §4.6.1 step 7).
func nextAutonumber(tx *gorm.DB, table, column string, auto *types.Autonumber) (string, error) {
	seqName := autonumberSequenceName(table, column, auto)
	if err := tx.Exec(fmt.Sprintf("CREATE SEQUENCE IF NOT EXISTS %s", tools.Ident(seqName))).Error; err != nil {
		return "", apperr.Internal(fmt.Errorf("provisioning autonumber sequence %q: %w", seqName, err))
	}

	var next int64
	row := tx.Raw(fmt.Sprintf("SELECT nextval('%s')", seqName)).Row()
	if err := row.Scan(&next); err != nil {
		return "", apperr.Internal(err)
	}

	return formatAutonumber(auto, next), nil
}
