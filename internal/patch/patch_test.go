package patch

import "testing"

func TestApplyReplacesField(t *testing.T) {
	doc := map[string]interface{}{"name": "Ada", "age": float64(30)}
	ops := []Operation{{Op: "replace", Path: "/name", Value: "Grace"}}

	out, err := Apply(doc, ops)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	result := out.(map[string]interface{})
	if result["name"] != "Grace" {
		t.Errorf("expected name=Grace, got %v", result["name"])
	}
	if doc["name"] != "Ada" {
		t.Errorf("expected original doc to be unmodified, got %v", doc["name"])
	}
}

func TestApplyRejectsMalformedOp(t *testing.T) {
	doc := map[string]interface{}{"name": "Ada"}
	ops := []Operation{{Op: "bogus", Path: "/name"}}

	if _, err := Apply(doc, ops); err == nil {
		t.Fatal("expected an error for an unknown op")
	}
}

func TestDiffProducesReplaceAndRemove(t *testing.T) {
	before := map[string]interface{}{"name": "Ada", "age": float64(30)}
	after := map[string]interface{}{"name": "Grace"}

	ops, err := Diff(before, after)
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}

	var sawRemoveAge, sawReplaceName bool
	for _, op := range ops {
		if op.Op == "remove" && op.Path == "/age" {
			sawRemoveAge = true
		}
		if op.Op == "replace" && op.Path == "/name" && op.Value == "Grace" {
			sawReplaceName = true
		}
	}
	if !sawRemoveAge || !sawReplaceName {
		t.Errorf("expected remove /age and replace /name, got %+v", ops)
	}
}
