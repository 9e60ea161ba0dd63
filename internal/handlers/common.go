// common.go
//
// A scalable, high performance drop-in replacement for the jam-build nodejs data service
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of jam-build-propsdb.
// jam-build-propsdb is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// jam-build-propsdb is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with jam-build-propsdb.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

// Package handlers implements spec.md §6's external interface: thin Fiber
// route bindings over internal/pipeline, internal/catalog, internal/events
// and internal/locks. Grounded on the teacher's internal/handlers shape
// (a Handler struct holding *gorm.DB, method receivers per route, inline
// anonymous request-body structs, utils.ErrorResponse/SuccessResponse for
// the response envelope) generalized from a fixed app/user document split
// to the feather domain's dynamic route names.
package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/localnerve/featherdb/internal/apperr"
	"github.com/localnerve/featherdb/internal/config"
	"github.com/localnerve/featherdb/internal/events"
	"github.com/localnerve/featherdb/internal/models"
	"github.com/localnerve/featherdb/internal/pipeline"
	"github.com/localnerve/featherdb/internal/types"
	"github.com/localnerve/featherdb/internal/utils"
)

// Handler holds every dependency a route needs. One instance is built at
// startup in cmd/server and its methods registered against the Fiber app,
// the same shape as the teacher's *AppDataHandler/*UserDataHandler.
type Handler struct {
	DB       *gorm.DB
	Registry *pipeline.Registry
	Hub      *events.Hub
	Config   *config.Config
}

// requestUser reads the userID middleware.RequireSession stamped on the
// context. Empty for routes mounted without the session middleware.
func requestUser(c *fiber.Ctx) string {
	if v, ok := c.Locals("userID").(string); ok {
		return v
	}
	return ""
}

// requestIsSuper mirrors requestUser for the super-user flag.
func requestIsSuper(c *fiber.Ctx) bool {
	if v, ok := c.Locals("isSuperUser").(bool); ok {
		return v
	}
	return false
}

// sendErr maps any error apperr/pipeline/catalog surfaces into the
// teacher's response envelope (spec.md §7's {message, statusCode} plus
// the teacher's ok/timestamp/url/type fields).
func sendErr(c *fiber.Ctx, err error) error {
	wrapped := apperr.Wrap(err)
	return utils.ErrorResponse(c, wrapped.Message, wrapped.StatusCode, wrapped.Type)
}

// spinalToPascal turns "order-line" into "OrderLine" — the feather-name
// form the route surface's {featherSpinal} path segment carries.
func spinalToPascal(spinal string) string {
	parts := strings.Split(spinal, "-")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

// compact strips dashes and lowercases, for case/hyphen-insensitive
// comparison against a feather's stored Plural field.
func compact(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "-", ""))
}

// resolveFeatherName decides whether name (as it arrived in the URL path,
// spinal-cased) addresses a feather by its plural form (a filtered query
// per spec.md §6's `/data/{featherPluralSpinal}` row) or its singular form
// (an insert). Both are POST routes distinguished only by which name the
// path segment matches, so this hits the `$feather` table once per
// request rather than the router disambiguating statically.
func resolveFeatherName(db *gorm.DB, spinal string) (name string, isPlural bool, err error) {
	target := compact(spinal)

	var rows []models.Feather
	if err := db.Select("name", "plural").Find(&rows).Error; err != nil {
		return "", false, apperr.Internal(err)
	}

	for _, row := range rows {
		if compact(row.Name) == target {
			return row.Name, false, nil
		}
	}
	for _, row := range rows {
		if row.Plural != "" && compact(row.Plural) == target {
			return row.Name, true, nil
		}
	}

	// Unknown feather: fall back to the naive spinal->PascalCase form so an
	// insert into a brand-new feather (not yet queried by its plural) still
	// resolves to a name pipeline.Dispatch can reject with a clean 404
	// rather than this layer guessing wrong about plural vs singular.
	return spinalToPascal(spinal), false, nil
}

// trackSubscription mirrors spec.md §4.6.2 step 6's condition for treating
// a result set as unconstrained (populating internal/events.Hub's
// process-local dispatch index, which crud/events never see, since
// crud.DoSelect only persists the durable $subscription row and Hub is a
// handler-layer, in-process concern).
func trackSubscription(h *Handler, req pipeline.Request, result interface{}) {
	sub := req.Subscription
	if sub == nil {
		return
	}

	unconstrained := req.Filter == nil || len(req.Filter.Criteria) == 0
	if unconstrained {
		h.Hub.Track(req.Name, sub.SubscriptionID, sub.SessionID)
	}

	switch rows := result.(type) {
	case map[string]interface{}:
		if id, ok := rows["id"].(string); ok {
			h.Hub.Track(id, sub.SubscriptionID, sub.SessionID)
		}
	case []map[string]interface{}:
		for _, row := range rows {
			if id, ok := row["id"].(string); ok {
				h.Hub.Track(id, sub.SubscriptionID, sub.SessionID)
			}
		}
	}
}

// parseFilter normalizes an already-decoded filter: nil when raw is nil or
// sets no criteria, sort, offset or limit, raw otherwise.
func parseFilter(raw *types.Filter) *types.Filter {
	if raw == nil {
		return nil
	}
	if len(raw.Criteria) == 0 && len(raw.Sort) == 0 && raw.Offset == 0 && raw.Limit == nil {
		return nil
	}
	return raw
}

// subscriptionWire is the wire-format subscription object (JSON tags live
// here rather than on crud.SubscribeRequest, which has none — crud is an
// internal package with no wire concerns of its own); queryData copies it
// into a crud.SubscribeRequest.
type subscriptionWire struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	NodeID    string `json:"nodeId"`
	Merge     bool   `json:"merge"`
}
