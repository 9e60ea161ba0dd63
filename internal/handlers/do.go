// do.go
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

// do.go implements spec.md §6's `/do` out-of-band control ops. The
// spec.md route table names them `/subscribe/{query}`, `/unsubscribe/{query}`,
// `/lock/{query}`, `/unlock/{query}` — a literal `{query}` path segment
// does not carry a JSON filter/criteria object meaningfully, so this repo
// exposes them as plain `POST /do/subscribe` etc. reading every parameter
// from the JSON body instead. Documented as a divergence in DESIGN.md.
package handlers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/localnerve/featherdb/internal/apperr"
	"github.com/localnerve/featherdb/internal/events"
	"github.com/localnerve/featherdb/internal/locks"
	"github.com/localnerve/featherdb/internal/models"
	"github.com/localnerve/featherdb/internal/tools"
)

type subscribeBody struct {
	SubscriptionID string   `json:"subscriptionId"`
	SessionID      string   `json:"sessionId"`
	NodeID         string   `json:"nodeId"`
	Merge          bool     `json:"merge"`
	Ids            []string `json:"ids,omitempty"`
	Feather        string   `json:"feather,omitempty"`
}

// Subscribe handles POST /do/subscribe (spec.md §4.4's subscribe).
func (h *Handler) Subscribe(c *fiber.Ctx) error {
	var body subscribeBody
	if err := c.BodyParser(&body); err != nil {
		return sendErr(c, apperr.Validation("invalid subscribe body: %v", err))
	}

	sub := events.Subscription{NodeID: body.NodeID, SessionID: body.SessionID, SubscriptionID: body.SubscriptionID}
	if err := events.Subscribe(h.DB, sub, body.Ids, body.Feather, body.Merge); err != nil {
		return sendErr(c, err)
	}

	if body.Feather != "" {
		h.Hub.Track(body.Feather, body.SubscriptionID, body.SessionID)
	}
	for _, id := range body.Ids {
		h.Hub.Track(id, body.SubscriptionID, body.SessionID)
	}
	return c.SendStatus(fiber.StatusOK)
}

type unsubscribeBody struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId,omitempty"`
	Scope     string `json:"scope"`
}

// Unsubscribe handles POST /do/unsubscribe (spec.md §4.4's unsubscribe).
func (h *Handler) Unsubscribe(c *fiber.Ctx) error {
	var body unsubscribeBody
	if err := c.BodyParser(&body); err != nil {
		return sendErr(c, apperr.Validation("invalid unsubscribe body: %v", err))
	}

	scope := events.UnsubscribeScope(body.Scope)
	switch scope {
	case events.ScopeSubscription, events.ScopeSession, events.ScopeNode:
	default:
		return sendErr(c, apperr.Validation("unknown unsubscribe scope %q", body.Scope))
	}

	if err := events.Unsubscribe(h.DB, body.ID, scope); err != nil {
		return sendErr(c, err)
	}

	if scope == events.ScopeSubscription && body.SessionID != "" {
		h.Hub.Untrack(body.ID, body.SessionID)
	}
	return c.SendStatus(fiber.StatusOK)
}

type lockBody struct {
	ID       string `json:"id"`
	Feather  string `json:"feather"`
	NodeID   string `json:"nodeId"`
	EventKey string `json:"eventKey"`
}

// Lock handles POST /do/lock (spec.md §4.5's lock).
func (h *Handler) Lock(c *fiber.Ctx) error {
	var body lockBody
	if err := c.BodyParser(&body); err != nil {
		return sendErr(c, apperr.Validation("invalid lock body: %v", err))
	}
	if body.ID == "" || body.Feather == "" || body.NodeID == "" || body.EventKey == "" {
		return sendErr(c, apperr.Validation("lock requires id, feather, nodeId, and eventKey"))
	}

	userID := requestUser(c)
	pk, err := tools.GetKey(h.DB, body.Feather, body.ID, userID, requestIsSuper(c), tools.CanUpdate)
	if err != nil {
		return sendErr(c, err)
	}

	acquired, err := locks.Acquire(h.DB, pk, body.NodeID, usernameFor(h.DB, userID), body.EventKey)
	if err != nil {
		return sendErr(c, err)
	}
	if !acquired {
		return sendErr(c, apperr.Conflict("record is already locked"))
	}
	return c.SendStatus(fiber.StatusOK)
}

type unlockBody struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username,omitempty"`
	EventKey string `json:"eventKey,omitempty"`
	NodeID   string `json:"nodeId,omitempty"`
}

// Unlock handles POST /do/unlock (spec.md §4.5's unlock).
func (h *Handler) Unlock(c *fiber.Ctx) error {
	var body unlockBody
	if err := c.BodyParser(&body); err != nil {
		return sendErr(c, apperr.Validation("invalid unlock body: %v", err))
	}

	if err := locks.Release(h.DB, locks.Criteria{
		ID: body.ID, Username: body.Username, EventKey: body.EventKey, NodeID: body.NodeID,
	}); err != nil {
		return sendErr(c, err)
	}
	return c.SendStatus(fiber.StatusOK)
}

// usernameFor resolves userID to the display username locks.Entry stores
// (so a conflict message can name the holder per spec.md §4.5), falling
// back to the raw id if no local shadow row exists yet.
func usernameFor(db *gorm.DB, userID string) string {
	if userID == "" {
		return userID
	}
	var account models.UserAccount
	if err := db.First(&account, "user_id = ?", userID).Error; err != nil {
		return userID
	}
	return account.Username
}
