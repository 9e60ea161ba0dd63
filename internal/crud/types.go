// Package crud implements spec.md §4.6: doInsert/doSelect/doUpdate/doDelete
// over any feather, recursing into child feathers, enforcing uniqueness and
// required checks, and autonumbering defaults. Every insert and update
// stamps a fresh etag; a Request carries no etag and none is compared, so a
// write based on a stale etag is not rejected.
// Grounded on the teacher's internal/services transaction-then-diff shape,
// generalized from a fixed document/collection/property schema to the
// catalog's data-driven feather properties.
package crud

import (
	"github.com/localnerve/featherdb/internal/patch"
	"github.com/localnerve/featherdb/internal/types"
)

// Request is the uniform payload every CRUD entry point shares (spec.md
// §4.6's {name, id?, data?, filter?, client, showDeleted?, subscription?}
// plus the (isChild, isSuperUser) recursion pair).
type Request struct {
	Name        string
	ID          string
	Data        map[string]interface{}
	Patch       []patch.Operation
	Filter      *types.Filter
	ShowDeleted bool
	IsHard      bool

	UserID   string
	IsSuper  bool
	IsChild  bool
	EventKey string

	// ParentPK/ParentRelation are set only when crud itself issues a
	// recursive call for a parentOf array element or an isChild composite:
	// ParentPK is the owning row's _pk, ParentRelation the property on
	// this feather whose column receives it.
	ParentPK       *int64
	ParentRelation string

	Subscription *SubscribeRequest
}

// SubscribeRequest mirrors spec.md §4.4's subscribe payload as carried on
// a doSelect request.
type SubscribeRequest struct {
	NodeID         string
	SessionID      string
	SubscriptionID string
	Merge          bool
}

// relationColumn is one relation property resolved during a select's
// second pass (spec.md §4.6.2 step 5).
type relationColumn struct {
	name string // camelCase property name
	prop *types.Property
}
