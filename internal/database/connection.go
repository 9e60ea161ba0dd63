// connection.go
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

package database

import (
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"
	"github.com/localnerve/featherdb/internal/config"
	"github.com/localnerve/featherdb/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func dsn(cfg *config.Config, user, password string) (gorm.Dialector, error) {
	switch cfg.DBType {
	case "mysql", "mariadb":
		return mysql.Open(fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			user, password, cfg.DBHost, cfg.DBPort, cfg.DBDatabase)), nil

	case "postgres", "postgresql":
		return postgres.Open(fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			cfg.DBHost, user, password, cfg.DBDatabase, cfg.DBPort)), nil

	case "sqlite":
		return sqlite.Open(cfg.DBDatabase), nil

	case "sqlserver", "mssql":
		return sqlserver.Open(fmt.Sprintf("sqlserver://%s:%s@%s:%s?database=%s",
			user, password, cfg.DBHost, cfg.DBPort, cfg.DBDatabase)), nil

	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.DBType)
	}
}

func open(cfg *config.Config, user, password string, limit int) (*gorm.DB, error) {
	dialector, err := dsn(cfg, user, password)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(limit)
	sqlDB.SetMaxIdleConns(limit / 2)

	return db, nil
}

// Connect opens the request-pipeline pool. Every CRUD call on this pool is
// authorization-checked through tools.BuildAuthSQL unless the caller is a
// super user.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	db, err := open(cfg, cfg.DBUser, cfg.DBPassword, cfg.DBConnectionLimit)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to %s database: %s (request pool)", cfg.DBType, cfg.DBDatabase)
	return db, nil
}

// ConnectSuper opens the elevated pool. cmd/server runs AutoMigrate on it;
// request handling, catalog DDL included, goes through the Connect pool.
func ConnectSuper(cfg *config.Config) (*gorm.DB, error) {
	db, err := open(cfg, cfg.DBSuperUser, cfg.DBSuperPassword, cfg.DBSuperConnectionLimit)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to %s database: %s (super pool)", cfg.DBType, cfg.DBDatabase)
	return db, nil
}

// AutoMigrate runs automatic migrations for the system tables. Per-feather
// tables are created by catalog.SaveFeather, not here.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Role{},
		&models.RoleMember{},
		&models.UserAccount{},
		&models.Feather{},
		&models.AuthGrant{},
		&models.Subscription{},
		&models.LogEntry{},
		&models.Settings{},
		&models.Workbook{},
	)
}

// OpenListener opens the dedicated LISTEN connection events.Listen uses; it
// is never drawn from the pool returned by Connect/ConnectSuper (spec.md
// §9). minReconnect/maxReconnect follow lib/pq's own Listener backoff
// contract.
func OpenListener(cfg *config.Config, eventCallback func(pq.ListenerEventType, error)) (*pq.Listener, error) {
	if cfg.DBType != "postgres" && cfg.DBType != "postgresql" {
		return nil, fmt.Errorf("events.Listen requires DB_TYPE=postgres, got %q", cfg.DBType)
	}
	connStr := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBDatabase, cfg.DBPort)
	listener := pq.NewListener(connStr, 10*time.Second, time.Minute, eventCallback)
	return listener, nil
}

// Close closes the database connection.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
