package catalog

import "testing"

func TestAncestorNamesWalksMultiLevelChain(t *testing.T) {
	db := setupCatalogDB(t)
	seedFeather(t, db, "Object", "", map[string]interface{}{})
	seedFeather(t, db, "Party", "Object", map[string]interface{}{})
	seedFeather(t, db, "Contact", "Party", map[string]interface{}{})
	seedFeather(t, db, "Employee", "Contact", map[string]interface{}{})

	names, err := ancestorNames(db, "Contact")
	if err != nil {
		t.Fatalf("ancestorNames failed: %v", err)
	}
	want := []string{"Contact", "Party", "Object"}
	if len(names) != len(want) {
		t.Fatalf("ancestorNames = %v, want %v", names, want)
	}
	for i, name := range want {
		if names[i] != name {
			t.Errorf("ancestorNames[%d] = %q, want %q", i, names[i], name)
		}
	}
}

func TestAncestorNamesStopsAtRootWithNoCatalogRow(t *testing.T) {
	db := setupCatalogDB(t)
	seedFeather(t, db, "Party", "Object", map[string]interface{}{})

	names, err := ancestorNames(db, "Party")
	if err != nil {
		t.Fatalf("ancestorNames failed: %v", err)
	}
	want := []string{"Party"}
	if len(names) != len(want) || names[0] != want[0] {
		t.Errorf("ancestorNames = %v, want %v", names, want)
	}
}

func TestDescendantNamesWalksMultiLevelChain(t *testing.T) {
	db := setupCatalogDB(t)
	seedFeather(t, db, "Object", "", map[string]interface{}{})
	seedFeather(t, db, "Party", "Object", map[string]interface{}{})
	seedFeather(t, db, "Contact", "Party", map[string]interface{}{})
	seedFeather(t, db, "Employee", "Contact", map[string]interface{}{})
	seedFeather(t, db, "Vendor", "Contact", map[string]interface{}{})

	names, err := descendantNames(db, "Party")
	if err != nil {
		t.Fatalf("descendantNames failed: %v", err)
	}
	got := map[string]bool{}
	for _, n := range names {
		got[n] = true
	}
	for _, want := range []string{"Contact", "Employee", "Vendor"} {
		if !got[want] {
			t.Errorf("descendantNames = %v, missing transitive descendant %q", names, want)
		}
	}
	if got["Object"] || got["Party"] {
		t.Errorf("descendantNames = %v, must not include the feather itself or its ancestors", names)
	}
}

func TestDescendantNamesLeafFeatherHasNone(t *testing.T) {
	db := setupCatalogDB(t)
	seedFeather(t, db, "Object", "", map[string]interface{}{})
	seedFeather(t, db, "Party", "Object", map[string]interface{}{})

	names, err := descendantNames(db, "Party")
	if err != nil {
		t.Fatalf("descendantNames failed: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("descendantNames = %v, want none", names)
	}
}
