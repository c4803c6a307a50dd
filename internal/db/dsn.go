package db

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// WithDBName returns a DSN identical to the input but with the database path replaced.
// Supports postgres:// and postgresql:// schemes.
func WithDBName(dsn, database string) (string, error) {
	if dsn == "" {
		return "", fmt.Errorf("empty DSN")
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		// allow missing scheme by prefixing postgres://
		if !strings.Contains(dsn, "://") {
			dsn = "postgres://" + dsn
			u, err = url.Parse(dsn)
			if err != nil {
				return "", err
			}
		}
	}
	if !strings.HasPrefix(database, "/") {
		u.Path = "/" + database
	} else {
		u.Path = database
	}
	return u.String(), nil
}

// OperatorDSN returns the DSN of an operator's database: the named database
// on the postgres cluster, or <dir>/<database>.db for sqlite.
func OperatorDSN(driver, base, sqliteDir, database string) (string, error) {
	if strings.TrimSpace(database) == "" {
		return "", fmt.Errorf("empty database name")
	}
	switch driver {
	case DriverPostgres:
		return WithDBName(base, database)
	case DriverSQLite:
		if sqliteDir == "" {
			sqliteDir = "."
		}
		return filepath.Join(sqliteDir, database+".db") + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", nil
	}
	return "", fmt.Errorf("unsupported driver %q", driver)
}
