package crud

import (
	"testing"

	"github.com/localnerve/featherdb/internal/types"
)

func TestHumanizeLabelSplitsOnUpperCase(t *testing.T) {
	got := humanizeLabel("lastName")
	if got != "Last Name" {
		t.Fatalf("humanizeLabel(lastName) = %q, want %q", got, "Last Name")
	}
}

func TestHumanizeLabelSingleWord(t *testing.T) {
	got := humanizeLabel("email")
	if got != "Email" {
		t.Fatalf("humanizeLabel(email) = %q, want %q", got, "Email")
	}
}

func TestFormatAutonumberPadsAndWraps(t *testing.T) {
	auto := &types.Autonumber{Prefix: "INV-", Suffix: "-X", Length: 5}
	got := formatAutonumber(auto, 42)
	want := "INV-00042-X"
	if got != want {
		t.Fatalf("formatAutonumber = %q, want %q", got, want)
	}
}

func TestFormatAutonumberWidensWhenSequenceExceedsLength(t *testing.T) {
	auto := &types.Autonumber{Length: 2}
	got := formatAutonumber(auto, 12345)
	if got != "12345" {
		t.Fatalf("formatAutonumber = %q, want %q", got, "12345")
	}
}

func TestFindChildOfPropertyLocatesBackReference(t *testing.T) {
	spec := &types.FeatherSpec{
		Name: "LineItem",
		Properties: map[string]*types.Property{
			"order": {Relation: &types.Relation{Feather: "Order", ChildOf: "Order"}},
			"sku":   {ScalarType: "string"},
		},
	}
	got, err := findChildOfProperty(spec, "Order")
	if err != nil {
		t.Fatalf("findChildOfProperty returned error: %v", err)
	}
	if got != "order" {
		t.Fatalf("findChildOfProperty = %q, want %q", got, "order")
	}
}

func TestFindChildOfPropertyMissingBackReference(t *testing.T) {
	spec := &types.FeatherSpec{Name: "Orphan", Properties: map[string]*types.Property{}}
	if _, err := findChildOfProperty(spec, "Order"); err == nil {
		t.Fatal("expected an error for a feather with no childOf back-reference")
	}
}

func TestExtractIDFromString(t *testing.T) {
	if got := extractID("abc-123"); got != "abc-123" {
		t.Fatalf("extractID(string) = %q, want %q", got, "abc-123")
	}
}

func TestExtractIDFromObject(t *testing.T) {
	v := map[string]interface{}{"id": "abc-123", "name": "ignored"}
	if got := extractID(v); got != "abc-123" {
		t.Fatalf("extractID(object) = %q, want %q", got, "abc-123")
	}
}

func TestExtractIDUnresolvable(t *testing.T) {
	if got := extractID(42); got != "" {
		t.Fatalf("extractID(unsupported) = %q, want empty", got)
	}
}

func TestEncodeJSONColumnPassesThroughValidJSONString(t *testing.T) {
	got, err := encodeJSONColumn(`{"a":1}`)
	if err != nil {
		t.Fatalf("encodeJSONColumn returned error: %v", err)
	}
	if got != `{"a":1}` {
		t.Fatalf("encodeJSONColumn = %v, want the string unchanged", got)
	}
}

func TestEncodeJSONColumnMarshalsGoValue(t *testing.T) {
	got, err := encodeJSONColumn(map[string]interface{}{"a": float64(1)})
	if err != nil {
		t.Fatalf("encodeJSONColumn returned error: %v", err)
	}
	if got != `{"a":1}` {
		t.Fatalf("encodeJSONColumn = %v, want %q", got, `{"a":1}`)
	}
}

func TestEncodeJSONColumnNil(t *testing.T) {
	got, err := encodeJSONColumn(nil)
	if err != nil {
		t.Fatalf("encodeJSONColumn returned error: %v", err)
	}
	if got != nil {
		t.Fatalf("encodeJSONColumn(nil) = %v, want nil", got)
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

func TestRejectUnknownKeysAcceptsDeclaredPropertiesAndID(t *testing.T) {
	spec := &types.FeatherSpec{
		Name: "Contact",
		Properties: map[string]*types.Property{
			"lastName": {ScalarType: "string"},
		},
	}
	data := map[string]interface{}{"id": "x", "lastName": "Ada"}
	if err := rejectUnknownKeys(spec, data); err != nil {
		t.Fatalf("rejectUnknownKeys returned error for a valid payload: %v", err)
	}
}

func TestRejectUnknownKeysRejectsUndeclaredProperty(t *testing.T) {
	spec := &types.FeatherSpec{
		Name:       "Contact",
		Properties: map[string]*types.Property{"lastName": {ScalarType: "string"}},
	}
	data := map[string]interface{}{"nickname": "Ace"}
	if err := rejectUnknownKeys(spec, data); err == nil {
		t.Fatal("expected an error for an undeclared property")
	}
}
