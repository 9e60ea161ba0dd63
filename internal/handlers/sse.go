// sse.go
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
	"bufio"
	"encoding/json"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/localnerve/featherdb/internal/events"
	"github.com/localnerve/featherdb/internal/locks"
)

// sseSubscription is the `message.subscription` half of spec.md §6's SSE
// envelope: `{ message: { subscription: { id, sessionId, nodeId }, action, data } }`.
type sseSubscription struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	NodeID    string `json:"nodeId"`
}

type sseMessage struct {
	Subscription sseSubscription `json:"subscription"`
	Action       string          `json:"action"`
	Data         interface{}     `json:"data"`
}

type sseEnvelope struct {
	Message sseMessage `json:"message"`
}

// SSE handles GET /sse and GET /sse/:sessionId (spec.md §6): the first
// bootstraps a new session id, the second resumes streaming for one
// already issued. Grounded on the teacher's fiber.Ctx handler shape,
// generalized to fasthttp.StreamWriter since the teacher never streams a
// response.
func (h *Handler) SSE(c *fiber.Ctx) error {
	sessionID := c.Params("sessionId")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	ch := h.Hub.Open(sessionID)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Session-Id", sessionID)

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer h.disconnectSession(sessionID)

		bootstrap, _ := json.Marshal(map[string]string{"sessionId": sessionID})
		if _, err := fmt.Fprintf(w, "event: bootstrap\ndata: %s\n\n", bootstrap); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}

		for msg := range ch {
			envelope := sseEnvelope{Message: sseMessage{
				Subscription: sseSubscription{ID: msg.SubscriptionID, SessionID: msg.SessionID, NodeID: msg.NodeID},
				Action:       msg.Action,
				Data:         msg.Data,
			}}
			b, err := json.Marshal(envelope)
			if err != nil {
				log.Printf("sse: failed to marshal envelope for session %s: %v", sessionID, err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	}))

	return nil
}

// disconnectSession implements spec.md §5's cancellation contract: closing
// the SSE channel unsubscribes the session and releases every lock it
// holds. locks.Criteria has no sessionId field (the in-row lock composite
// is keyed by eventKey, not sessionId); this repo treats eventKey as the
// per-tab token spec.md's glossary describes, so releasing by
// EventKey==sessionId is the practical reading of "unlock({sessionId})"
// for a client that scopes its eventKey to its SSE session id. Clients
// that use a distinct eventKey per lock must release those explicitly via
// /do/unlock before disconnecting.
func (h *Handler) disconnectSession(sessionID string) {
	h.Hub.Close(sessionID)
	if err := events.Unsubscribe(h.DB, sessionID, events.ScopeSession); err != nil {
		log.Printf("sse: unsubscribe on disconnect failed for session %s: %v", sessionID, err)
	}
	if err := locks.Release(h.DB, locks.Criteria{EventKey: sessionID}); err != nil {
		log.Printf("sse: lock release on disconnect failed for session %s: %v", sessionID, err)
	}
}
