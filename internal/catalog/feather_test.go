package catalog

import (
	"encoding/json"
	"testing"

	"github.com/localnerve/featherdb/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupCatalogDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory db: %v", err)
	}
	if err := db.AutoMigrate(&models.Feather{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func seedFeather(t *testing.T, db *gorm.DB, name, inherits string, props map[string]interface{}) {
	raw, err := json.Marshal(props)
	if err != nil {
		t.Fatalf("failed to marshal properties: %v", err)
	}
	row := models.Feather{Name: name, Inherits: inherits, Properties: raw}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("failed to seed feather %q: %v", name, err)
	}
}

func TestGetFeatherMergesInheritedPropertiesParentFirst(t *testing.T) {
	db := setupCatalogDB(t)
	seedFeather(t, db, "Object", "", map[string]interface{}{})
	seedFeather(t, db, "Party", "Object", map[string]interface{}{
		"displayName": map[string]interface{}{"type": "string"},
	})
	seedFeather(t, db, "Contact", "Party", map[string]interface{}{
		"email": map[string]interface{}{"type": "string", "format": "email"},
	})

	spec, err := GetFeather(db, "Contact", nil)
	if err != nil {
		t.Fatalf("GetFeather failed: %v", err)
	}

	if _, ok := spec.Properties["displayName"]; !ok {
		t.Fatalf("expected inherited property displayName, got %v", spec.Properties)
	}
	if spec.Properties["displayName"].InheritedFrom != "Party" {
		t.Errorf("expected displayName.inheritedFrom=Party, got %q", spec.Properties["displayName"].InheritedFrom)
	}
	if _, ok := spec.Properties["email"]; !ok {
		t.Fatalf("expected own property email, got %v", spec.Properties)
	}
	if spec.Properties["email"].InheritedFrom != "" {
		t.Errorf("expected email.inheritedFrom empty for own property, got %q", spec.Properties["email"].InheritedFrom)
	}
}

func TestGetFeatherChildOverrideWinsOverAncestor(t *testing.T) {
	db := setupCatalogDB(t)
	seedFeather(t, db, "Object", "", map[string]interface{}{})
	seedFeather(t, db, "Party", "Object", map[string]interface{}{
		"displayName": map[string]interface{}{"type": "string", "isRequired": false},
	})
	seedFeather(t, db, "Contact", "Party", map[string]interface{}{
		"displayName": map[string]interface{}{"type": "string", "isRequired": true},
	})

	spec, err := GetFeather(db, "Contact", nil)
	if err != nil {
		t.Fatalf("GetFeather failed: %v", err)
	}

	if !spec.Properties["displayName"].IsRequired {
		t.Error("expected child override of displayName.isRequired=true to win")
	}
	if spec.Properties["displayName"].InheritedFrom != "" {
		t.Errorf("expected overridden property to have no inheritedFrom, got %q", spec.Properties["displayName"].InheritedFrom)
	}
}

func TestGetFeatherWithoutInheritedExcludesAncestors(t *testing.T) {
	db := setupCatalogDB(t)
	seedFeather(t, db, "Object", "", map[string]interface{}{})
	seedFeather(t, db, "Party", "Object", map[string]interface{}{
		"displayName": map[string]interface{}{"type": "string"},
	})
	seedFeather(t, db, "Contact", "Party", map[string]interface{}{
		"email": map[string]interface{}{"type": "string"},
	})

	spec, err := GetFeather(db, "Contact", &GetFeatherOptions{IncludeInherited: false})
	if err != nil {
		t.Fatalf("GetFeather failed: %v", err)
	}
	if _, ok := spec.Properties["displayName"]; ok {
		t.Error("expected inherited property to be excluded")
	}
	if _, ok := spec.Properties["email"]; !ok {
		t.Error("expected own property to be present")
	}
}

func TestGetFeatherUnknownNameReturnsNotFound(t *testing.T) {
	db := setupCatalogDB(t)
	seedFeather(t, db, "Object", "", map[string]interface{}{})

	if _, err := GetFeather(db, "Nonexistent", nil); err == nil {
		t.Fatal("expected an error for unknown feather")
	}
}

func TestGetFeatherResolvesRelationProperty(t *testing.T) {
	db := setupCatalogDB(t)
	seedFeather(t, db, "Object", "", map[string]interface{}{})
	seedFeather(t, db, "Currency", "Object", map[string]interface{}{})
	seedFeather(t, db, "Invoice", "Object", map[string]interface{}{
		"currency": map[string]interface{}{
			"type": map[string]interface{}{"relation": "Currency"},
		},
	})

	spec, err := GetFeather(db, "Invoice", nil)
	if err != nil {
		t.Fatalf("GetFeather failed: %v", err)
	}
	prop := spec.Properties["currency"]
	if !prop.IsRelation() {
		t.Fatal("expected currency to be a relation property")
	}
	if prop.Relation.Feather != "Currency" {
		t.Errorf("expected relation target Currency, got %q", prop.Relation.Feather)
	}
}
