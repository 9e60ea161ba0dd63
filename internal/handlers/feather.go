// feather.go
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
	"github.com/localnerve/featherdb/internal/catalog"
	"github.com/localnerve/featherdb/internal/types"
)

// GetFeather handles GET /feather/:name (spec.md §4.2's getFeather).
func (h *Handler) GetFeather(c *fiber.Ctx) error {
	name := spinalToPascal(c.Params("name"))
	includeInherited := c.QueryBool("includeInherited", true)

	spec, err := catalog.GetFeather(h.DB, name, &catalog.GetFeatherOptions{IncludeInherited: includeInherited})
	if err != nil {
		return sendErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(spec)
}

// SaveFeather handles PUT /feather/:name (spec.md §4.2's saveFeather).
func (h *Handler) SaveFeather(c *fiber.Ctx) error {
	name := spinalToPascal(c.Params("name"))

	var spec types.FeatherSpec
	if err := c.BodyParser(&spec); err != nil {
		return sendErr(c, apperr.Validation("invalid feather body: %v", err))
	}
	if spec.Name == "" {
		spec.Name = name
	}

	if err := catalog.SaveFeather(h.DB, &spec); err != nil {
		return sendErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(&spec)
}

// DeleteFeather handles DELETE /feather/:name (spec.md §4.2's deleteFeather).
func (h *Handler) DeleteFeather(c *fiber.Ctx) error {
	name := spinalToPascal(c.Params("name"))

	if err := catalog.DeleteFeather(h.DB, name); err != nil {
		return sendErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
