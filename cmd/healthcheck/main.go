// main.go
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

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/localnerve/featherdb/internal/config"
	"github.com/localnerve/featherdb/internal/database"
	"github.com/localnerve/featherdb/internal/utils"
)

// result mirrors the teacher's services.HealthCheck output shape, without
// the teacher's dedicated services package: this repo has no equivalent
// concern beyond "can it reach its database and its auth service", both
// of which already have their own ping primitives (utils.PingService/
// utils.PingAuthorizer, database.Connect) so no third-party library adds
// anything a bare status struct doesn't already cover.
type result struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	r := result{Status: "healthy", Checks: map[string]string{}, Timestamp: time.Now().UTC().Format(time.RFC3339)}

	db, err := database.Connect(cfg)
	if err != nil {
		r.Status = "unhealthy"
		r.Checks["database"] = err.Error()
	} else {
		defer database.Close(db)
		sqlDB, err := db.DB()
		if err != nil || sqlDB.Ping() != nil {
			r.Status = "unhealthy"
			r.Checks["database"] = "ping failed"
		} else {
			r.Checks["database"] = "ok"
		}
	}

	if err := utils.PingService(cfg.AuthzURL, 1500*time.Millisecond); err != nil {
		r.Status = "unhealthy"
		r.Checks["authorizer"] = err.Error()
	} else {
		r.Checks["authorizer"] = "ok"
	}

	output, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal health check result: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(output))

	if r.Status != "healthy" {
		os.Exit(1)
	}
	os.Exit(0)
}
