// Package db provides GORM connection and migration helpers for Loadline.
package db

import (
	"fmt"

	"github.com/loadline/loadline/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens a GORM connection based on the configured driver.
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case "sqlite":
		return ConnectSQLite(cfg.Path)
	case "mysql":
		return ConnectMySQL(cfg.Host, cfg.Port, cfg.Name)
	default:
		return nil, fmt.Errorf("db: unknown driver %q", cfg.Driver)
	}
}

// ConnectSQLite opens a GORM connection to a SQLite database file.
// Use ":memory:" for an ephemeral database in tests.
func ConnectSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect sqlite %s: %w", path, err)
	}
	return db, nil
}

// DSN builds a MySQL DSN.
func DSN(host string, port int, database string) string {
	return fmt.Sprintf("root@tcp(%s:%d)/%s?parseTime=true", host, port, database)
}

// ConnectMySQL opens a GORM connection to a MySQL database.
func ConnectMySQL(host string, port int, database string) (*gorm.DB, error) {
	dsn := DSN(host, port, database)
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect to %s:%d/%s: %w", host, port, database, err)
	}
	return db, nil
}
