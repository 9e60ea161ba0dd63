// workbook.go
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

// ListOrGetWorkbook handles GET /workbook[s] and GET /workbook[s]/:name —
// spec.md §6's `/[{name}]` optional path segment: with a name, one
// workbook; without, every workbook.
func (h *Handler) ListOrGetWorkbook(c *fiber.Ctx) error {
	name := c.Params("name")
	if name == "" {
		var rows []models.Workbook
		if err := h.DB.Find(&rows).Error; err != nil {
			return sendErr(c, apperr.Internal(err))
		}
		return c.Status(fiber.StatusOK).JSON(rows)
	}

	var row models.Workbook
	if err := h.DB.First(&row, "name = ?", name).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return sendErr(c, apperr.NotFound("workbook %q not found", name))
		}
		return sendErr(c, apperr.Internal(err))
	}
	return c.Status(fiber.StatusOK).JSON(&row)
}

// SaveWorkbook handles PUT /workbook/:name.
func (h *Handler) SaveWorkbook(c *fiber.Ctx) error {
	name := c.Params("name")
	if name == "" {
		return sendErr(c, apperr.Validation("workbook name is required"))
	}

	var payload json.RawMessage
	if err := c.BodyParser(&payload); err != nil {
		return sendErr(c, apperr.Validation("invalid workbook body: %v", err))
	}

	row := models.Workbook{Name: name, Data: datatypes.JSON(payload), Etag: uuid.NewString()}
	if err := h.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "etag", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return sendErr(c, apperr.Internal(err))
	}
	return c.Status(fiber.StatusOK).JSON(&row)
}

// DeleteWorkbook handles DELETE /workbook/:name.
func (h *Handler) DeleteWorkbook(c *fiber.Ctx) error {
	name := c.Params("name")
	if name == "" {
		return sendErr(c, apperr.Validation("workbook name is required"))
	}
	if err := h.DB.Delete(&models.Workbook{}, "name = ?", name).Error; err != nil {
		return sendErr(c, apperr.Internal(err))
	}
	return c.SendStatus(fiber.StatusNoContent)
}
