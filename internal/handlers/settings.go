// settings.go
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
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/localnerve/featherdb/internal/apperr"
	"github.com/localnerve/featherdb/internal/models"
)

// GetSettings handles GET /settings/:name.
func (h *Handler) GetSettings(c *fiber.Ctx) error {
	name := c.Params("name")

	var row models.Settings
	if err := h.DB.First(&row, "name = ?", name).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return sendErr(c, apperr.NotFound("settings %q not found", name))
		}
		return sendErr(c, apperr.Internal(err))
	}
	return c.Status(fiber.StatusOK).Send(row.Data)
}

// SaveSettings handles PUT /settings/:name: the body is the raw settings
// blob, stored as-is (spec.md §9's "global mutable settings cache" note —
// this repo holds no in-process cache since every read hits the row's own
// etag column directly).
func (h *Handler) SaveSettings(c *fiber.Ctx) error {
	name := c.Params("name")

	var payload json.RawMessage
	if err := c.BodyParser(&payload); err != nil {
		return sendErr(c, apperr.Validation("invalid settings body: %v", err))
	}

	row := models.Settings{Name: name, Data: datatypes.JSON(payload), Etag: uuid.NewString()}
	if err := h.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "etag", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return sendErr(c, apperr.Internal(err))
	}
	return c.Status(fiber.StatusOK).JSON(&row)
}

// SettingsDefinition handles GET /settings-definition: every settings
// blob's current value, keyed by name.
func (h *Handler) SettingsDefinition(c *fiber.Ctx) error {
	var rows []models.Settings
	if err := h.DB.Find(&rows).Error; err != nil {
		return sendErr(c, apperr.Internal(err))
	}

	out := make(map[string]json.RawMessage, len(rows))
	for _, r := range rows {
		out[r.Name] = json.RawMessage(r.Data)
	}
	return c.Status(fiber.StatusOK).JSON(out)
}
