// Package patch wraps github.com/evanphx/json-patch/v5 (RFC 6902) for
// doUpdate's patch application and the POST/PATCH reconciliation diff
// spec.md §4.6.1 step 10 and §4.6.3 step 10 require. No repo in the
// example pack implements JSON Patch itself; this dependency is named
// rather than grounded, per the instruction that out-of-pack deps need
// naming, not grounding.
package patch

import (
	"encoding/json"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/localnerve/featherdb/internal/apperr"
)

// Operation is one RFC 6902 patch operation.
type Operation struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value,omitempty"`
	From  string       `json:"from,omitempty"`
}

// Apply applies ops to a deep-copied serialization of doc, returning the
// patched document without mutating doc.
func Apply(doc interface{}, ops []Operation) (interface{}, error) {
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	patchJSON, err := json.Marshal(ops)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	p, err := jsonpatch.DecodePatch(patchJSON)
	if err != nil {
		return nil, apperr.Validation("malformed json patch: %v", err)
	}

	patched, err := p.Apply(docJSON)
	if err != nil {
		return nil, apperr.Validation("json patch application failed: %v", err)
	}

	var out interface{}
	if err := json.Unmarshal(patched, &out); err != nil {
		return nil, apperr.Internal(err)
	}
	return out, nil
}

// Diff computes the RFC 6902 patch that turns before into after — used to
// build the reconciliation diff doInsert/doUpdate return to the caller
// (spec.md §4.6.1 step 10, §4.6.3 step 10).
func Diff(before, after interface{}) ([]Operation, error) {
	beforeJSON, err := json.Marshal(before)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	afterJSON, err := json.Marshal(after)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	p, err := jsonpatch.CreateMergePatch(beforeJSON, afterJSON)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	// CreateMergePatch produces a merge patch (RFC 7386); re-express it as
	// an RFC 6902 replace-set so callers get a uniform Operation slice
	// regardless of which diff strategy produced it.
	var merge map[string]interface{}
	if err := json.Unmarshal(p, &merge); err != nil {
		return nil, apperr.Internal(err)
	}
	var afterMap map[string]interface{}
	if err := json.Unmarshal(afterJSON, &afterMap); err != nil {
		return nil, apperr.Internal(err)
	}

	// The merge patch only names which top-level keys differ: each replace
	// carries after's whole value for the key (a nested object's merge
	// fragment is partial, and a merge null cannot tell "set to null" from
	// "removed"); a key absent from after becomes a remove.
	ops := make([]Operation, 0, len(merge))
	for k := range merge {
		v, present := afterMap[k]
		if !present {
			ops = append(ops, Operation{Op: "remove", Path: "/" + k})
			continue
		}
		ops = append(ops, Operation{Op: "replace", Path: "/" + k, Value: v})
	}
	return ops, nil
}
