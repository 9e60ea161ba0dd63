// data.go
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

package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/localnerve/featherdb/internal/apperr"
	"github.com/localnerve/featherdb/internal/crud"
	"github.com/localnerve/featherdb/internal/patch"
	"github.com/localnerve/featherdb/internal/pipeline"
	"github.com/localnerve/featherdb/internal/types"
)

// filterQueryBody is spec.md §6's Filter object, extended with the
// subscription field POST /data/{featherPluralSpinal} accepts (scenario 5
// of spec.md §8: "POST /data/contact with subscription:{...} and
// limit:10").
type filterQueryBody struct {
	Criteria     []types.Criterion `json:"criteria,omitempty"`
	Sort         []types.SortTerm  `json:"sort,omitempty"`
	Offset       int               `json:"offset,omitempty"`
	Limit        *int              `json:"limit,omitempty"`
	Subscription *subscriptionWire `json:"subscription,omitempty"`
	ShowDeleted  bool              `json:"showDeleted,omitempty"`
}

// PostData handles POST /data/:name (spec.md §6): a filtered query when
// :name matches a feather's plural spinal form, an insert (or upsert, if
// the body carries an id) otherwise.
func (h *Handler) PostData(c *fiber.Ctx) error {
	spinal := c.Params("name")
	name, isPlural, err := resolveFeatherName(h.DB, spinal)
	if err != nil {
		return sendErr(c, err)
	}

	if isPlural {
		return h.queryData(c, name)
	}
	return h.insertData(c, name)
}

func (h *Handler) queryData(c *fiber.Ctx, name string) error {
	var body filterQueryBody
	if err := c.BodyParser(&body); err != nil {
		return sendErr(c, apperr.Validation("invalid filter body: %v", err))
	}

	filter := parseFilter(&types.Filter{Criteria: body.Criteria, Sort: body.Sort, Offset: body.Offset, Limit: body.Limit})

	req := pipeline.Request{
		Method:      pipeline.GET,
		Name:        name,
		Filter:      filter,
		ShowDeleted: body.ShowDeleted,
		UserID:      requestUser(c),
		EventKey:    c.Query("eventKey"),
	}
	if body.Subscription != nil {
		req.Subscription = &crud.SubscribeRequest{
			NodeID:         body.Subscription.NodeID,
			SessionID:      body.Subscription.SessionID,
			SubscriptionID: body.Subscription.ID,
			Merge:          body.Subscription.Merge,
		}
	}

	result, _, err := pipeline.Dispatch(h.DB, h.Registry, req, requestIsSuper(c))
	if err != nil {
		return sendErr(c, err)
	}
	trackSubscription(h, req, result)
	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *Handler) insertData(c *fiber.Ctx, name string) error {
	var data map[string]interface{}
	if err := c.BodyParser(&data); err != nil {
		return sendErr(c, apperr.Validation("invalid record body: %v", err))
	}

	id, _ := data["id"].(string)
	req := pipeline.Request{
		Method:   pipeline.POST,
		Name:     name,
		ID:       id,
		Data:     data,
		UserID:   requestUser(c),
		EventKey: c.Query("eventKey"),
	}

	_, diff, err := pipeline.Dispatch(h.DB, h.Registry, req, requestIsSuper(c))
	if err != nil {
		return sendErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(diff)
}

// GetData handles GET /data/:name/:id (spec.md §6): read one.
func (h *Handler) GetData(c *fiber.Ctx) error {
	name := spinalToPascal(c.Params("name"))
	id := c.Params("id")

	req := pipeline.Request{
		Method:      pipeline.GET,
		Name:        name,
		ID:          id,
		ShowDeleted: c.QueryBool("showDeleted", false),
		UserID:      requestUser(c),
	}

	result, _, err := pipeline.Dispatch(h.DB, h.Registry, req, requestIsSuper(c))
	if err != nil {
		return sendErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

// PatchData handles PATCH /data/:name/:id: the request body is a raw
// RFC-6902 JSON-patch array (spec.md §6's "JSON-patch, used for PATCH
// bodies").
func (h *Handler) PatchData(c *fiber.Ctx) error {
	name := spinalToPascal(c.Params("name"))
	id := c.Params("id")

	var ops []patch.Operation
	if err := c.BodyParser(&ops); err != nil {
		return sendErr(c, apperr.Validation("invalid JSON patch body: %v", err))
	}

	req := pipeline.Request{
		Method:   pipeline.PATCH,
		Name:     name,
		ID:       id,
		Patch:    ops,
		UserID:   requestUser(c),
		EventKey: c.Query("eventKey"),
	}

	_, diff, err := pipeline.Dispatch(h.DB, h.Registry, req, requestIsSuper(c))
	if err != nil {
		return sendErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(diff)
}

// DeleteData handles DELETE /data/:name/:id: soft delete by default,
// ?hard=true performs a hard delete (spec.md §4.6.4).
func (h *Handler) DeleteData(c *fiber.Ctx) error {
	name := spinalToPascal(c.Params("name"))
	id := c.Params("id")

	req := pipeline.Request{
		Method:   pipeline.DELETE,
		Name:     name,
		ID:       id,
		IsHard:   c.QueryBool("hard", false),
		UserID:   requestUser(c),
		EventKey: c.Query("eventKey"),
	}

	result, _, err := pipeline.Dispatch(h.DB, h.Registry, req, requestIsSuper(c))
	if err != nil {
		return sendErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}
