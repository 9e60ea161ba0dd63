// module.go
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
	"github.com/localnerve/featherdb/internal/models"
)

// moduleInfo is this repo's stand-in for spec.md §6's `/module`,`/modules`
// listing. Real module/plugin packaging is an explicit spec.md §1
// non-goal ("no packaging/module system beyond feather definitions
// themselves"), so a "module" here is simply a top-level, non-system,
// non-child feather — the closest observable analogue a client asking
// "what kinds of objects exist" can use.
type moduleInfo struct {
	Name   string `json:"name"`
	Plural string `json:"plural,omitempty"`
}

// ListModules handles GET /module and GET /modules.
func (h *Handler) ListModules(c *fiber.Ctx) error {
	var rows []models.Feather
	if err := h.DB.Select("name", "plural").
		Where("is_system = ? AND is_child = ?", false, false).
		Order("name").Find(&rows).Error; err != nil {
		return sendErr(c, apperr.Internal(err))
	}

	out := make([]moduleInfo, 0, len(rows))
	for _, r := range rows {
		out = append(out, moduleInfo{Name: r.Name, Plural: r.Plural})
	}
	return c.Status(fiber.StatusOK).JSON(out)
}
