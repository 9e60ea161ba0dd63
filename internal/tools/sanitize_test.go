package tools

import (
	"testing"
)

func TestSanitizeDropsInternalKeysAndCamelCases(t *testing.T) {
	in := map[string]interface{}{
		"_pk":        int64(7),
		"first_name": "Ada",
		"is_deleted": false,
		"nested": map[string]interface{}{
			"created_by": "admin",
			"_internal":  "x",
		},
	}

	out := Sanitize(in).(map[string]interface{})

	if _, ok := out["_pk"]; ok {
		t.Fatalf("expected _pk to be dropped, got %v", out)
	}
	if out["firstName"] != "Ada" {
		t.Fatalf("expected firstName=Ada, got %v", out["firstName"])
	}
	nested := out["nested"].(map[string]interface{})
	if nested["createdBy"] != "admin" {
		t.Fatalf("expected nested.createdBy=admin, got %v", nested)
	}
	if _, ok := nested["_internal"]; ok {
		t.Fatalf("expected nested._internal to be dropped, got %v", nested)
	}
}

func TestSanitizeParsesJSONStrings(t *testing.T) {
	in := map[string]interface{}{
		"settings_blob": `{"theme_color":"dark"}`,
	}
	out := Sanitize(in).(map[string]interface{})
	blob, ok := out["settingsBlob"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected settingsBlob to be parsed into a map, got %T: %v", out["settingsBlob"], out["settingsBlob"])
	}
	if blob["themeColor"] != "dark" {
		t.Fatalf("expected nested key to be camelCased, got %v", blob)
	}
}

func TestSanitizeArraysElementwise(t *testing.T) {
	in := []interface{}{
		map[string]interface{}{"_pk": 1, "full_name": "x"},
		map[string]interface{}{"_pk": 2, "full_name": "y"},
	}
	out := Sanitize(in).([]interface{})
	if len(out) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(out))
	}
	first := out[0].(map[string]interface{})
	if _, ok := first["_pk"]; ok {
		t.Fatalf("expected _pk dropped from array element")
	}
	if first["fullName"] != "x" {
		t.Fatalf("expected fullName=x, got %v", first)
	}
}

func TestSnakeAndCamelRoundTrip(t *testing.T) {
	cases := map[string]string{
		"fullName":  "full_name",
		"id":        "id",
		"baseCurrency": "base_currency",
	}
	for camel, snake := range cases {
		if got := SnakeCase(camel); got != snake {
			t.Errorf("SnakeCase(%q) = %q, want %q", camel, got, snake)
		}
		if got := camelCase(snake); got != camel {
			t.Errorf("camelCase(%q) = %q, want %q", snake, got, camel)
		}
	}
}

func TestTableNamePascalToSnake(t *testing.T) {
	if got := TableName("PurchaseOrder"); got != "purchase_order" {
		t.Errorf("TableName(PurchaseOrder) = %q, want purchase_order", got)
	}
	if got := TableName("Object"); got != "object" {
		t.Errorf("TableName(Object) = %q, want object", got)
	}
}

func TestResolveTypeInfoFormatTakesPrecedence(t *testing.T) {
	info, ok := ResolveTypeInfo("string", "dateTime")
	if !ok {
		t.Fatal("expected dateTime format to resolve")
	}
	if info.DBType != "timestamptz" {
		t.Errorf("expected timestamptz, got %s", info.DBType)
	}
}

func TestIsNameReference(t *testing.T) {
	name, ok := IsNameReference("money()")
	if !ok || name != "money" {
		t.Errorf("expected money() to resolve to name=money, ok=true, got name=%q ok=%v", name, ok)
	}
	if _, ok := IsNameReference("plainValue"); ok {
		t.Error("expected plainValue to not be a name reference")
	}
	if _, ok := IsNameReference(42); ok {
		t.Error("expected non-string value to not be a name reference")
	}
}

func TestSupportsOperator(t *testing.T) {
	for _, op := range []string{"=", "!=", "IN", "~*"} {
		if !SupportsOperator(op) {
			t.Errorf("expected %q to be supported", op)
		}
	}
	if SupportsOperator("; DROP TABLE") {
		t.Error("expected injection attempt to be rejected")
	}
}
