package catalog

import (
	"fmt"

	"github.com/localnerve/featherdb/internal/apperr"
	"github.com/localnerve/featherdb/internal/models"
	"github.com/localnerve/featherdb/internal/types"
	"gorm.io/gorm"
)

// DeleteFeather drops the table and its view, removes the catalog entry,
// and rebuilds any parent feather whose parentOf pointed at name
// (spec.md §4.2).
func DeleteFeather(db *gorm.DB, name string) error {
	if name == rootFeather {
		return apperr.Validation("the root feather %q cannot be deleted", rootFeather)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var row models.Feather
		if err := tx.Where("name = ?", name).First(&row).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperr.NotFound("feather %q not found", name)
			}
			return apperr.Internal(err)
		}

		if err := tx.Exec(dropViewSQL(ViewName(name))).Error; err != nil {
			return apperr.Internal(fmt.Errorf("dropping view for feather %q: %w", name, err))
		}
		if err := tx.Exec(dropTableSQL(TableName(name))).Error; err != nil {
			return apperr.Internal(fmt.Errorf("dropping table for feather %q: %w", name, err))
		}

		var parents []models.Feather
		if err := tx.Find(&parents).Error; err != nil {
			return apperr.Internal(err)
		}
		for _, parentRow := range parents {
			parentSpec, err := rowToSpec(&parentRow)
			if err != nil {
				return err
			}
			changed := false
			for pname, prop := range parentSpec.Properties {
				if prop.IsRelation() && prop.Relation.EffectiveKind() == types.ToMany && prop.Relation.Feather == name {
					delete(parentSpec.Properties, pname)
					changed = true
				}
			}
			if changed {
				if err := saveCatalogRow(tx, &parentRow, parentSpec, false); err != nil {
					return err
				}
				if err := recreateViews(tx, parentSpec); err != nil {
					return err
				}
			}
		}

		if err := tx.Delete(&row).Error; err != nil {
			return apperr.Internal(err)
		}
		return nil
	})
}
