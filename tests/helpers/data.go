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

package helpers

import (
	"testing"

	"gorm.io/gorm"

	"github.com/localnerve/featherdb/internal/catalog"
	"github.com/localnerve/featherdb/internal/crud"
	"github.com/localnerve/featherdb/internal/types"
)

// CreateTestFeather registers a feather via catalog.SaveFeather, the same
// entry point PUT /feather/:name uses — a Postgres-only DDL synthesis call,
// so this helper (and its callers) only run against a real Postgres
// connection, i.e. the testcontainers integration suite.
func CreateTestFeather(t *testing.T, db *gorm.DB, name, plural string, properties map[string]*types.Property) *types.FeatherSpec {
	t.Helper()
	spec := &types.FeatherSpec{
		Name:       name,
		Plural:     plural,
		Inherits:   "Object",
		Properties: properties,
	}
	if err := catalog.SaveFeather(db, spec); err != nil {
		t.Fatalf("Failed to save feather %s: %v", name, err)
	}
	return spec
}

// InsertTestRecord inserts a row into an already-registered feather via
// crud.DoInsert, mirroring what POST /data/:name does above the pipeline.
func InsertTestRecord(t *testing.T, db *gorm.DB, feather string, data map[string]interface{}) map[string]interface{} {
	t.Helper()
	rec, _, err := crud.DoInsert(db, crud.Request{Name: feather, Data: data})
	if err != nil {
		t.Fatalf("Failed to insert %s record: %v", feather, err)
	}
	return rec
}
