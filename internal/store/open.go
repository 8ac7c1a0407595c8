package store

import (
	"fmt"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects and configures a Repository backend.
type Options struct {
	Driver      string
	SQLitePath  string
	DatabaseURL string
}

// Open returns the Repository for the configured driver.
func Open(opts Options) (Repository, error) {
	switch opts.Driver {
	case DriverSQLite, "":
		return NewSQLite(opts.SQLitePath)
	case DriverPostgres:
		return NewPostgres(opts.DatabaseURL)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
}
