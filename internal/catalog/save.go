package catalog

import (
	"encoding/json"
	"fmt"

	"github.com/localnerve/featherdb/internal/apperr"
	"github.com/localnerve/featherdb/internal/models"
	"github.com/localnerve/featherdb/internal/types"
	"gorm.io/gorm"
)

// SaveFeather is idempotent (spec.md §4.2). On first save it provisions the
// physical table, inheriting the parent's; on later saves it diffs the
// incoming properties against the stored feather, drops and adds columns,
// and recreates the feather's view. childOf properties automatically
// inject a matching parentOf descriptor on the parent feather; two
// properties claiming the same parentOf slot is an error.
func SaveFeather(db *gorm.DB, spec *types.FeatherSpec) error {
	if spec.Name == "" {
		return apperr.Validation("feather name is required")
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(createRootTableSQL()).Error; err != nil {
			return apperr.Internal(fmt.Errorf("provisioning root table: %w", err))
		}

		var existing models.Feather
		err := tx.Where("name = ?", spec.Name).First(&existing).Error
		isNew := err == gorm.ErrRecordNotFound
		if err != nil && !isNew {
			return apperr.Internal(err)
		}

		var oldSpec *types.FeatherSpec
		if !isNew {
			oldSpec, err = rowToSpec(&existing)
			if err != nil {
				return err
			}
		}

		if err := injectParentOf(tx, spec); err != nil {
			return err
		}

		if isNew {
			if err := createTable(tx, spec); err != nil {
				return err
			}
		} else {
			if err := diffColumns(tx, oldSpec, spec); err != nil {
				return err
			}
		}

		if err := saveCatalogRow(tx, &existing, spec, isNew); err != nil {
			return err
		}

		if err := recreateViews(tx, spec); err != nil {
			return err
		}

		return nil
	})
}

func createTable(tx *gorm.DB, spec *types.FeatherSpec) error {
	if spec.Name == rootFeather {
		return nil // already provisioned by createRootTableSQL
	}
	columns := allColumns(spec.Properties)
	if err := tx.Exec(createTableSQL(spec, columns)).Error; err != nil {
		return apperr.Internal(fmt.Errorf("creating table for feather %q: %w", spec.Name, err))
	}
	return nil
}

// diffColumns drops columns for properties the new spec removed (unless
// they are a parentOf marker, which is re-injected rather than dropped)
// and adds columns for properties the new spec introduced.
func diffColumns(tx *gorm.DB, oldSpec, newSpec *types.FeatherSpec) error {
	table := TableName(newSpec.Name)

	for name, oldProp := range oldSpec.Properties {
		if _, stillPresent := newSpec.Properties[name]; stillPresent {
			continue
		}
		if oldProp.IsRelation() && oldProp.Relation.EffectiveKind() == types.ToMany {
			newSpec.Properties[name] = oldProp // re-inject parentOf marker
			continue
		}
		for _, col := range propertyColumns(name, oldProp) {
			if err := tx.Exec(dropColumnSQL(table, col.name)).Error; err != nil {
				return apperr.Internal(fmt.Errorf("dropping column %q on %q: %w", col.name, table, err))
			}
		}
	}

	for name, newProp := range newSpec.Properties {
		if _, existed := oldSpec.Properties[name]; existed {
			continue
		}
		for _, col := range propertyColumns(name, newProp) {
			if err := tx.Exec(addColumnSQL(table, col)).Error; err != nil {
				return apperr.Internal(fmt.Errorf("adding column %q on %q: %w", col.name, table, err))
			}
		}
	}

	return nil
}

// injectParentOf walks spec's properties for childOf relations and ensures
// the referenced parent feather carries a matching parentOf property,
// erroring if two child feathers would claim the same slot name.
func injectParentOf(tx *gorm.DB, spec *types.FeatherSpec) error {
	for name, prop := range spec.Properties {
		if !prop.IsRelation() || prop.Relation.ChildOf == "" {
			continue
		}
		parentName := prop.Relation.ChildOf
		if parentName == spec.Name {
			continue // self-referential childOf within the same save, nothing to inject elsewhere
		}

		var parentRow models.Feather
		if err := tx.Where("name = ?", parentName).First(&parentRow).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperr.Validation("childOf parent feather %q not found for property %q", parentName, name)
			}
			return apperr.Internal(err)
		}
		parentSpec, err := rowToSpec(&parentRow)
		if err != nil {
			return err
		}

		slot := name + "s" // pluralized slot name on the parent holding the child array
		for existingName, existingProp := range parentSpec.Properties {
			if existingName == slot {
				if existingProp.IsRelation() && existingProp.Relation.ParentOf != "" && existingProp.Relation.ParentOf != spec.Name {
					return apperr.Conflict("parent feather %q already has a parentOf slot %q for %q", parentName, slot, existingProp.Relation.ParentOf)
				}
				continue
			}
			if existingProp.IsRelation() && existingProp.Relation.ParentOf == spec.Name && existingProp.Relation.EffectiveKind() == types.ToMany {
				return apperr.Conflict("parent feather %q already has a parentOf slot %q for %q", parentName, existingName, spec.Name)
			}
		}

		parentSpec.Properties[slot] = &types.Property{
			Name:     slot,
			Relation: &types.Relation{Feather: spec.Name, ParentOf: spec.Name},
		}
		if err := saveCatalogRow(tx, &parentRow, parentSpec, false); err != nil {
			return err
		}
	}
	return nil
}

func saveCatalogRow(tx *gorm.DB, row *models.Feather, spec *types.FeatherSpec, isNew bool) error {
	raw, err := json.Marshal(spec.Properties)
	if err != nil {
		return apperr.Internal(err)
	}

	row.Name = spec.Name
	row.Plural = spec.Plural
	row.Inherits = spec.EffectiveInherits()
	row.IsChild = spec.IsChild
	row.IsSystem = spec.IsSystem
	row.IsReadOnly = spec.IsReadOnly
	row.IsFetchOnStartup = spec.IsFetchOnStartup
	row.Properties = raw

	if isNew {
		if err := tx.Create(row).Error; err != nil {
			return apperr.Internal(err)
		}
		return nil
	}
	if err := tx.Save(row).Error; err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// recreateViews rebuilds spec's own view and propagates the rebuild up the
// full ancestor chain and down through the full transitive descendant set
// of the inheritance hierarchy — a saved property change three levels down
// a chain still refreshes the great-grandparent's view and every generation
// of children below spec, not just one hop each way. Feathers that only
// point at spec through a relation property are not rebuilt.
//
// The name-collecting walk (ancestorNames/descendantNames) is kept separate
// from the SQL side-effecting part (recreateViewFor) the same way
// internal/pipeline's ancestorChain is kept separate from trigger dispatch:
// the walk is plain row lookups a SQLite-backed unit test can exercise,
// the view DDL itself is Postgres-only and covered by the integration suite.
func recreateViews(tx *gorm.DB, spec *types.FeatherSpec) error {
	if err := recreateViewFor(tx, spec.Name); err != nil {
		return err
	}

	visited := map[string]bool{spec.Name: true}

	ancestors, err := ancestorNames(tx, spec.EffectiveInherits())
	if err != nil {
		return err
	}
	for _, name := range ancestors {
		if visited[name] {
			continue
		}
		visited[name] = true
		if err := recreateViewFor(tx, name); err != nil {
			return err
		}
	}

	descendants, err := descendantNames(tx, spec.Name)
	if err != nil {
		return err
	}
	for _, name := range descendants {
		if visited[name] {
			continue
		}
		visited[name] = true
		if err := recreateViewFor(tx, name); err != nil {
			return err
		}
	}
	return nil
}

// recreateViewFor reloads name's stored spec and rebuilds its view.
func recreateViewFor(tx *gorm.DB, name string) error {
	var row models.Feather
	if err := tx.Where("name = ?", name).First(&row).Error; err != nil {
		return apperr.Internal(err)
	}
	rowSpec, err := rowToSpec(&row)
	if err != nil {
		return err
	}
	merged, err := mergedPropertiesTx(tx, name)
	if err != nil {
		return err
	}
	if err := tx.Exec(createViewSQL(rowSpec, merged)).Error; err != nil {
		return apperr.Internal(fmt.Errorf("recreating view for feather %q: %w", name, err))
	}
	return nil
}

// ancestorNames walks up the `inherits` chain from name, stopping at the
// implicit Object root (which has no catalog row) or a repeated name
// (guards against a corrupt inheritance cycle looping forever).
func ancestorNames(tx *gorm.DB, name string) ([]string, error) {
	var names []string
	seen := map[string]bool{}
	current := name

	for current != "" && !seen[current] {
		seen[current] = true

		var row models.Feather
		if err := tx.Where("name = ?", current).First(&row).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				break
			}
			return nil, apperr.Internal(err)
		}
		names = append(names, current)
		current = row.Inherits
	}
	return names, nil
}

// descendantNames breadth-first collects every feather that inherits from
// name, directly or transitively, so a 3+-level chain (A -> B -> C) surfaces
// C when A is the one being saved.
func descendantNames(tx *gorm.DB, name string) ([]string, error) {
	var names []string
	seen := map[string]bool{name: true}
	queue := []string{name}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		var children []models.Feather
		if err := tx.Where("inherits = ?", current).Find(&children).Error; err != nil {
			return nil, apperr.Internal(err)
		}
		for _, child := range children {
			if seen[child.Name] {
				continue
			}
			seen[child.Name] = true
			names = append(names, child.Name)
			queue = append(queue, child.Name)
		}
	}
	return names, nil
}

// mergedPropertiesTx is GetFeather's merge logic against an in-transaction
// handle, used inside SaveFeather's transaction.
func mergedPropertiesTx(tx *gorm.DB, name string) (map[string]*types.Property, error) {
	spec, err := GetFeather(tx, name, &GetFeatherOptions{IncludeInherited: true})
	if err != nil {
		return nil, err
	}
	return spec.Properties, nil
}
