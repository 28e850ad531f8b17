package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver string `split_words:"true" default:"sqlite"`
	DSN    string `split_words:"true" default:"taxi.db"`
	// Seed loads the embedded fixtures on startup when the POI table is empty.
	Seed bool `split_words:"true" default:"true"`
}

// Open connects to the configured relational store.
func (c *Config) Open() (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch c.Driver {
	case DriverSQLite, "":
		dialector = sqlite.Open(c.DSN)
	case DriverPostgres:
		dialector = postgres.Open(c.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", c.Driver, err)
	}
	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
