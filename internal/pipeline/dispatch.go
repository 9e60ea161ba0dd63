package pipeline

import (
	"github.com/localnerve/featherdb/internal/apperr"
	"github.com/localnerve/featherdb/internal/catalog"
	"github.com/localnerve/featherdb/internal/crud"
	"github.com/localnerve/featherdb/internal/events"
	"github.com/localnerve/featherdb/internal/patch"
	"gorm.io/gorm"
)

const rootFeather = "Object"

// Dispatch is spec.md §4.7's request(payload, isSuperUser) entry point.
// db is the pooled connection the caller holds; req.Client, when set,
// means the caller is already inside a transaction (a trigger or a
// parent CRUD call recursing back through Dispatch) and Dispatch must
// neither open nor commit one of its own.
func Dispatch(db *gorm.DB, reg *Registry, req Request, isSuperUser bool) (interface{}, []patch.Operation, error) {
	var result interface{}
	var diff []patch.Operation
	var notify *pendingNotify

	nested := req.Client != nil
	run := func(tx *gorm.DB) error {
		out, d, n, err := runOne(tx, reg, req, isSuperUser)
		result, diff, notify = out, d, n
		return err
	}

	var err error
	switch {
	case nested:
		err = run(req.Client)
	case req.Method == GET:
		err = run(db)
	default:
		err = db.Transaction(run)
	}
	if err != nil {
		return nil, nil, apperr.Wrap(err)
	}

	if !nested && notify != nil {
		if notifyErr := events.Notify(db, notify.id, notify.feather, notify.action, notify.data); notifyErr != nil {
			return result, diff, notifyErr
		}
	}
	return result, diff, nil
}

// pendingNotify is the single affected-object notification Dispatch emits
// after commit (spec.md §4.7 step 7). Cascaded children a CRUD call
// recurses into internally (parentOf elements, isChild composites) are
// reachable through the parent's own subscription and are not notified
// individually — a scope decision recorded in DESIGN.md.
type pendingNotify struct {
	id      string
	feather string
	action  string
	data    interface{}
}

func runOne(tx *gorm.DB, reg *Registry, req Request, isSuper bool) (interface{}, []patch.Operation, *pendingNotify, error) {
	if fn, ok := reg.lookupFunction(req.Method, req.Name); ok {
		out, err := fn(tx, &req)
		return out, nil, nil, err
	}

	switch req.Method {
	case GET:
		out, err := crud.DoSelect(tx, toCrudRequest(req, isSuper))
		return out, nil, nil, err
	case POST:
		return runPost(tx, reg, req, isSuper)
	case PATCH, PUT:
		return runPatch(tx, reg, req, isSuper)
	case DELETE:
		return runDelete(tx, reg, req, isSuper)
	default:
		return nil, nil, nil, apperr.Validation("unsupported method %q", req.Method)
	}
}

// runPost implements spec.md §4.7 step 2: an id that already resolves to
// a row downgrades the request to a PATCH before anything else happens.
func runPost(tx *gorm.DB, reg *Registry, req Request, isSuper bool) (interface{}, []patch.Operation, *pendingNotify, error) {
	if req.ID != "" {
		existing, err := crud.DoSelect(tx, crud.Request{Name: req.Name, ID: req.ID, UserID: req.UserID, IsSuper: isSuper})
		if err == nil {
			oldRec, _ := existing.(map[string]interface{})
			ops, diffErr := buildUpsertPatch(oldRec, req.Data)
			if diffErr != nil {
				return nil, nil, nil, diffErr
			}
			req.Patch = ops
			return runPatch(tx, reg, req, isSuper)
		}
		if apperr.StatusCode(err) != 404 {
			return nil, nil, nil, err
		}
	}

	chain, err := ancestorChain(tx, req.Name)
	if err != nil {
		return nil, nil, nil, err
	}

	newRec := cloneMap(req.Data)
	for _, ancestor := range chain {
		if trig, ok := reg.lookupTrigger(POST, ancestor, Before); ok {
			mutated, err := trig(tx, &req, nil, newRec)
			if err != nil {
				return nil, nil, nil, apperr.FromTrigger(err)
			}
			if mutated != nil {
				newRec = mutated
			}
		}
	}
	req.Data = newRec

	persisted, diff, err := crud.DoInsert(tx, toCrudRequest(req, isSuper))
	if err != nil {
		return nil, nil, nil, err
	}

	for _, ancestor := range chain {
		if trig, ok := reg.lookupTrigger(POST, ancestor, After); ok {
			if _, err := trig(tx, &req, nil, persisted); err != nil {
				return nil, nil, nil, apperr.FromTrigger(err)
			}
		}
	}

	id, _ := persisted["id"].(string)
	return persisted, diff, &pendingNotify{id: id, feather: req.Name, action: "create", data: persisted}, nil
}

// runPatch implements spec.md §4.7 steps 3-5 for PATCH (including a POST
// downgraded to one): materialize oldRec/newRec, run the before walk,
// recompute the patch from any trigger mutation, execute, run the after
// walk against the persisted record.
func runPatch(tx *gorm.DB, reg *Registry, req Request, isSuper bool) (interface{}, []patch.Operation, *pendingNotify, error) {
	if len(req.Patch) == 0 {
		return nil, []patch.Operation{}, nil, nil
	}

	existing, err := crud.DoSelect(tx, crud.Request{Name: req.Name, ID: req.ID, UserID: req.UserID, IsSuper: isSuper})
	if err != nil {
		return nil, nil, nil, err
	}
	oldRec, _ := existing.(map[string]interface{})

	applied, err := patch.Apply(oldRec, req.Patch)
	if err != nil {
		return nil, nil, nil, err
	}
	newRec, ok := applied.(map[string]interface{})
	if !ok {
		return nil, nil, nil, apperr.Validation("patch must apply to an object")
	}

	chain, err := ancestorChain(tx, req.Name)
	if err != nil {
		return nil, nil, nil, err
	}

	for _, ancestor := range chain {
		if trig, ok := reg.lookupTrigger(PATCH, ancestor, Before); ok {
			mutated, err := trig(tx, &req, oldRec, newRec)
			if err != nil {
				return nil, nil, nil, apperr.FromTrigger(err)
			}
			if mutated != nil {
				newRec = mutated
			}
		}
	}

	recomputed, err := patch.Diff(oldRec, newRec)
	if err != nil {
		return nil, nil, nil, err
	}
	req.Patch = recomputed

	persisted, diff, err := crud.DoUpdate(tx, toCrudRequest(req, isSuper))
	if err != nil {
		return nil, nil, nil, err
	}

	for _, ancestor := range chain {
		if trig, ok := reg.lookupTrigger(PATCH, ancestor, After); ok {
			if _, err := trig(tx, &req, oldRec, persisted); err != nil {
				return nil, nil, nil, apperr.FromTrigger(err)
			}
		}
	}

	return persisted, diff, &pendingNotify{id: req.ID, feather: req.Name, action: "update", data: persisted}, nil
}

// runDelete implements spec.md §4.7 steps 3-5 for DELETE: oldRec and
// newRec are the same record going in (a delete has no incoming patch to
// apply), and the after walk sees the final (deleted) persisted state.
func runDelete(tx *gorm.DB, reg *Registry, req Request, isSuper bool) (interface{}, []patch.Operation, *pendingNotify, error) {
	existing, err := crud.DoSelect(tx, crud.Request{Name: req.Name, ID: req.ID, UserID: req.UserID, IsSuper: isSuper, ShowDeleted: req.ShowDeleted})
	if err != nil {
		return nil, nil, nil, err
	}
	oldRec, _ := existing.(map[string]interface{})

	chain, err := ancestorChain(tx, req.Name)
	if err != nil {
		return nil, nil, nil, err
	}

	for _, ancestor := range chain {
		if trig, ok := reg.lookupTrigger(DELETE, ancestor, Before); ok {
			if _, err := trig(tx, &req, oldRec, oldRec); err != nil {
				return nil, nil, nil, apperr.FromTrigger(err)
			}
		}
	}

	persisted, err := crud.DoDelete(tx, toCrudRequest(req, isSuper))
	if err != nil {
		return nil, nil, nil, err
	}

	for _, ancestor := range chain {
		if trig, ok := reg.lookupTrigger(DELETE, ancestor, After); ok {
			if _, err := trig(tx, &req, oldRec, persisted); err != nil {
				return nil, nil, nil, apperr.FromTrigger(err)
			}
		}
	}

	return persisted, nil, &pendingNotify{id: req.ID, feather: req.Name, action: "delete", data: persisted}, nil
}

// ancestorChain returns name's inheritance chain from name itself up to
// and including Object, the order spec.md §4.7 step 3 walks for both the
// before and after trigger passes.
func ancestorChain(db *gorm.DB, name string) ([]string, error) {
	var chain []string
	seen := map[string]bool{}
	current := name

	for {
		if seen[current] {
			return nil, apperr.Internal(&cycleError{current})
		}
		seen[current] = true
		chain = append(chain, current)
		if current == rootFeather {
			break
		}
		spec, err := catalog.GetFeather(db, current, &catalog.GetFeatherOptions{IncludeInherited: false})
		if err != nil {
			return nil, err
		}
		current = spec.EffectiveInherits()
	}
	return chain, nil
}

type cycleError struct{ name string }

func (e *cycleError) Error() string { return "inheritance cycle detected at " + e.name }

// buildUpsertPatch computes the JSON-patch between oldRec overlaid with
// nulls for fields missing from data (nested arrays and id are left alone
// so an upsert that omits a parentOf list doesn't read as "delete every
// child") and data itself (spec.md §4.7 step 2).
//
// patch.Diff's underlying jsonpatch.CreateMergePatch (RFC 7396) nulls any
// key present in its "before" argument but absent from its "after"
// argument, regardless of that key's value in "before" — so leaving an
// omitted array untouched in base has no effect by itself; base and data
// must agree on the key for CreateMergePatch to skip it. merged carries
// oldRec's value forward into data's side for every key this function
// means to preserve (id, and any array), so Diff sees the key present and
// unchanged on both sides instead of present-in-base/absent-in-after.
func buildUpsertPatch(oldRec, data map[string]interface{}) ([]patch.Operation, error) {
	base := cloneMap(oldRec)
	merged := cloneMap(data)
	for k, v := range oldRec {
		if _, present := data[k]; present {
			continue
		}
		if _, isArray := v.([]interface{}); k == "id" || isArray {
			merged[k] = v
			continue
		}
		base[k] = nil
	}
	return patch.Diff(base, merged)
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func toCrudRequest(req Request, isSuper bool) crud.Request {
	return crud.Request{
		Name:        req.Name,
		ID:          req.ID,
		Data:        req.Data,
		Patch:       req.Patch,
		Filter:      req.Filter,
		ShowDeleted: req.ShowDeleted,
		IsHard:      req.IsHard,
		UserID:      req.UserID,
		IsSuper:     isSuper,
		EventKey:    req.EventKey,
		Subscription: req.Subscription,
	}
}
