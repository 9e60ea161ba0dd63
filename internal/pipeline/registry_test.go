package pipeline

import (
	"testing"

	"gorm.io/gorm"
)

func noopTrigger(tx *gorm.DB, req *Request, oldRec, newRec map[string]interface{}) (map[string]interface{}, error) {
	return newRec, nil
}

func noopFunction(tx *gorm.DB, req *Request) (interface{}, error) {
	return nil, nil
}

func TestRegisterTriggerRejectsDuplicateMethodPosition(t *testing.T) {
	reg := NewRegistry()
	if err := reg.RegisterTrigger(POST, "Invoice", Before, noopTrigger); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if err := reg.RegisterTrigger(POST, "Invoice", Before, noopTrigger); err == nil {
		t.Fatal("expected a duplicate (method, position) registration to be rejected")
	}
}

func TestRegisterTriggerAllowsDistinctPositionsAndMethods(t *testing.T) {
	reg := NewRegistry()
	if err := reg.RegisterTrigger(POST, "Invoice", Before, noopTrigger); err != nil {
		t.Fatalf("POST BEFORE registration failed: %v", err)
	}
	if err := reg.RegisterTrigger(POST, "Invoice", After, noopTrigger); err != nil {
		t.Fatalf("POST AFTER registration failed: %v", err)
	}
	if err := reg.RegisterTrigger(PATCH, "Invoice", Before, noopTrigger); err != nil {
		t.Fatalf("PATCH BEFORE registration failed: %v", err)
	}
}

func TestLookupTriggerFindsRegisteredHook(t *testing.T) {
	reg := NewRegistry()
	_ = reg.RegisterTrigger(DELETE, "Invoice", After, noopTrigger)

	if _, ok := reg.lookupTrigger(DELETE, "Invoice", After); !ok {
		t.Fatal("expected lookupTrigger to find the registered hook")
	}
	if _, ok := reg.lookupTrigger(DELETE, "Invoice", Before); ok {
		t.Fatal("expected no hook at the unregistered position")
	}
}

func TestRegisterFunctionRejectsDuplicate(t *testing.T) {
	reg := NewRegistry()
	if err := reg.RegisterFunction(POST, "recalcTotals", noopFunction); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if err := reg.RegisterFunction(POST, "recalcTotals", noopFunction); err == nil {
		t.Fatal("expected a duplicate function registration to be rejected")
	}
}

func TestLookupFunctionDistinguishesFromFeatherNames(t *testing.T) {
	reg := NewRegistry()
	_ = reg.RegisterFunction(POST, "recalcTotals", noopFunction)

	if _, ok := reg.lookupFunction(POST, "recalcTotals"); !ok {
		t.Fatal("expected lookupFunction to find the registered function")
	}
	if _, ok := reg.lookupFunction(POST, "Invoice"); ok {
		t.Fatal("expected no function registered under a feather name")
	}
}
