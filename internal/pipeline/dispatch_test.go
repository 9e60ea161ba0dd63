package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/localnerve/featherdb/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupPipelineDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory db: %v", err)
	}
	if err := db.AutoMigrate(&models.Feather{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func seedPipelineFeather(t *testing.T, db *gorm.DB, name, inherits string) {
	raw, err := json.Marshal(map[string]interface{}{})
	if err != nil {
		t.Fatalf("failed to marshal properties: %v", err)
	}
	row := models.Feather{Name: name, Inherits: inherits, Properties: raw}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("failed to seed feather %q: %v", name, err)
	}
}

func TestAncestorChainWalksFromFeatherToObject(t *testing.T) {
	db := setupPipelineDB(t)
	seedPipelineFeather(t, db, "Object", "")
	seedPipelineFeather(t, db, "Party", "Object")
	seedPipelineFeather(t, db, "Contact", "Party")

	chain, err := ancestorChain(db, "Contact")
	if err != nil {
		t.Fatalf("ancestorChain failed: %v", err)
	}
	want := []string{"Contact", "Party", "Object"}
	if len(chain) != len(want) {
		t.Fatalf("ancestorChain = %v, want %v", chain, want)
	}
	for i, name := range want {
		if chain[i] != name {
			t.Errorf("ancestorChain[%d] = %q, want %q", i, chain[i], name)
		}
	}
}

func TestAncestorChainStopsAtObjectWithoutARow(t *testing.T) {
	db := setupPipelineDB(t)
	seedPipelineFeather(t, db, "Invoice", "")

	chain, err := ancestorChain(db, "Invoice")
	if err != nil {
		t.Fatalf("ancestorChain failed: %v", err)
	}
	if len(chain) != 2 || chain[0] != "Invoice" || chain[1] != "Object" {
		t.Fatalf("ancestorChain = %v, want [Invoice Object]", chain)
	}
}

func TestBuildUpsertPatchNullsMissingScalarFields(t *testing.T) {
	old := map[string]interface{}{"id": "x", "name": "Ada", "email": "ada@example.com"}
	data := map[string]interface{}{"name": "Ada Lovelace"}

	ops, err := buildUpsertPatch(old, data)
	if err != nil {
		t.Fatalf("buildUpsertPatch failed: %v", err)
	}

	byPath := map[string]interface{}{}
	for _, op := range ops {
		byPath[op.Path] = op.Value
	}
	if _, ok := byPath["/email"]; !ok {
		t.Errorf("expected a removal/null for /email, got ops %+v", ops)
	}
	if byPath["/name"] != "Ada Lovelace" {
		t.Errorf("expected /name to update to the new value, got ops %+v", ops)
	}
}

func TestBuildUpsertPatchPreservesOmittedArrays(t *testing.T) {
	old := map[string]interface{}{
		"id":       "x",
		"name":     "Ada",
		"lineItems": []interface{}{map[string]interface{}{"id": "li-1", "sku": "A"}},
	}
	data := map[string]interface{}{"name": "Ada Lovelace"}

	ops, err := buildUpsertPatch(old, data)
	if err != nil {
		t.Fatalf("buildUpsertPatch failed: %v", err)
	}

	for _, op := range ops {
		if op.Path == "/lineItems" {
			t.Fatalf("expected an omitted array to be left alone, got op %+v", op)
		}
	}
}

func TestCloneMapIsIndependentOfSource(t *testing.T) {
	src := map[string]interface{}{"a": 1}
	clone := cloneMap(src)
	clone["a"] = 2
	if src["a"] != 1 {
		t.Fatalf("cloneMap shared storage with its source: src[\"a\"] = %v", src["a"])
	}
}
