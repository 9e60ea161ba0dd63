// Package pipeline implements spec.md §4.7: the single request(payload,
// isSuperUser) entry point handlers call instead of reaching into
// internal/crud directly. It owns connection/transaction acquisition,
// upsert detection, the before/after trigger walk up a feather's
// inheritance chain, and post-commit notification. Grounded on the
// teacher's internal/services request-then-notify shape, generalized
// from a fixed app/user document split to a trigger-registry dispatch
// over any feather or registered function.
package pipeline

import (
	"github.com/localnerve/featherdb/internal/crud"
	"github.com/localnerve/featherdb/internal/patch"
	"github.com/localnerve/featherdb/internal/types"
	"gorm.io/gorm"
)

// Method is one of the five verbs a Request carries (spec.md §4.7).
type Method string

const (
	GET    Method = "GET"
	POST   Method = "POST"
	PATCH  Method = "PATCH"
	DELETE Method = "DELETE"
	PUT    Method = "PUT"
)

// Position is where a feather trigger runs relative to CRUD execution.
type Position string

const (
	Before Position = "BEFORE"
	After  Position = "AFTER"
)

// Request is the payload spec.md §4.7 describes: method, name (a feather
// or a registered camelCase function), id/data/filter/subscription, and
// an optional client for a caller that is already inside a transaction
// (a trigger recursing into Dispatch, or a parent CRUD call).
type Request struct {
	Method Method
	Name   string

	ID           string
	Data         map[string]interface{}
	Patch        []patch.Operation
	Filter       *types.Filter
	Subscription *crud.SubscribeRequest
	ShowDeleted  bool
	IsHard       bool

	UserID   string
	EventKey string

	Client *gorm.DB
}

// TriggerFunc is a registered before/after hook for one feather's
// inheritance chain entry. It receives the record as it stood before the
// request (nil for an insert) and as the request intends to leave it, and
// may return a mutated newRec that is propagated back into the effective
// request body (spec.md §4.7 step 3).
type TriggerFunc func(tx *gorm.DB, req *Request, oldRec, newRec map[string]interface{}) (map[string]interface{}, error)

// FunctionFunc is a registered camelCase operation that bypasses feather
// CRUD and the trigger walk entirely — the function is the operation.
type FunctionFunc func(tx *gorm.DB, req *Request) (interface{}, error)
