// Package catalog loads and saves feather definitions (spec.md §4.2): the
// schema-as-data record administrators maintain at runtime, the inherited
// property merge, and the DDL synthesis that provisions physical storage
// when a feather is saved. It is the one package allowed to issue DDL, and
// it requires DB_TYPE=postgres for the INHERITS-based table hierarchy
// spec.md §3 describes.
package catalog

import (
	"encoding/json"
	"fmt"

	"github.com/localnerve/featherdb/internal/apperr"
	"github.com/localnerve/featherdb/internal/models"
	"github.com/localnerve/featherdb/internal/tools"
	"github.com/localnerve/featherdb/internal/types"
	"gorm.io/gorm"
)

// rootFeather is the implicit ancestor of every feather that doesn't
// declare its own `inherits` (spec.md §3).
const rootFeather = "Object"

// GetFeatherOptions controls GetFeather's inheritance merge.
type GetFeatherOptions struct {
	IncludeInherited bool // default true
}

// GetFeather loads the merged descriptor for name: inherited properties
// first in parent-to-child order, a child redeclaration overriding the
// parent's and setting InheritedFrom only on fields it did not itself
// override (spec.md §4.2).
func GetFeather(db *gorm.DB, name string, opts *GetFeatherOptions) (*types.FeatherSpec, error) {
	if opts == nil {
		opts = &GetFeatherOptions{IncludeInherited: true}
	}

	chain, err := loadChain(db, name)
	if err != nil {
		return nil, err
	}

	leaf := chain[len(chain)-1]
	merged := &types.FeatherSpec{
		Name:             leaf.Name,
		Plural:           leaf.Plural,
		Inherits:         leaf.Inherits,
		IsChild:          leaf.IsChild,
		IsSystem:         leaf.IsSystem,
		IsReadOnly:       leaf.IsReadOnly,
		IsFetchOnStartup: leaf.IsFetchOnStartup,
		Properties:       map[string]*types.Property{},
	}

	if !opts.IncludeInherited {
		for pname, p := range leaf.Properties {
			cp := *p
			cp.Name = pname
			merged.Properties[pname] = &cp
		}
		return merged, nil
	}

	for _, ancestor := range chain {
		for pname, p := range ancestor.Properties {
			cp := *p
			cp.Name = pname
			// the chain runs root first, so a later (more derived) ancestor's
			// redeclaration replaces whatever an earlier one merged
			if ancestor.Name != leaf.Name && cp.InheritedFrom == "" {
				cp.InheritedFrom = ancestor.Name
			}
			merged.Properties[pname] = &cp
		}
	}

	return merged, nil
}

// loadChain returns the feather's ancestors from the root down to name
// itself, inclusive, by walking `inherits` through the catalog table.
func loadChain(db *gorm.DB, name string) ([]*types.FeatherSpec, error) {
	var chain []*types.FeatherSpec
	seen := map[string]bool{}
	current := name

	for {
		if seen[current] {
			return nil, fmt.Errorf("invalid argument: inheritance cycle detected at %q", current)
		}
		seen[current] = true

		spec, err := loadOne(db, current)
		if err != nil {
			if current == rootFeather {
				break
			}
			return nil, err
		}
		chain = append(chain, spec)

		if current == rootFeather || spec.Inherits == "" {
			break
		}
		current = spec.EffectiveInherits()
	}

	// reverse so the root comes first
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	if len(chain) == 0 || chain[0].Name != rootFeather {
		chain = append([]*types.FeatherSpec{{Name: rootFeather, Properties: map[string]*types.Property{}}}, chain...)
	}
	return chain, nil
}

func loadOne(db *gorm.DB, name string) (*types.FeatherSpec, error) {
	var row models.Feather
	if err := db.Where("name = ?", name).First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.NotFound("feather %q not found", name)
		}
		return nil, apperr.Internal(err)
	}
	return rowToSpec(&row)
}

func rowToSpec(row *models.Feather) (*types.FeatherSpec, error) {
	spec := &types.FeatherSpec{
		Name:             row.Name,
		Plural:           row.Plural,
		Inherits:         row.Inherits,
		IsChild:          row.IsChild,
		IsSystem:         row.IsSystem,
		IsReadOnly:       row.IsReadOnly,
		IsFetchOnStartup: row.IsFetchOnStartup,
		Properties:       map[string]*types.Property{},
	}
	if len(row.Properties) > 0 {
		var raw map[string]*types.Property
		if err := json.Unmarshal(row.Properties, &raw); err != nil {
			return nil, apperr.Internal(fmt.Errorf("corrupt properties for feather %q: %w", row.Name, err))
		}
		for pname, p := range raw {
			p.Name = pname
			spec.Properties[pname] = p
		}
	}
	return spec, nil
}

// TableName exposes tools.TableName for callers outside this package that
// need the physical table of a feather without importing tools directly.
func TableName(featherName string) string {
	return tools.TableName(featherName)
}
