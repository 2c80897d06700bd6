package history

import (
	"fmt"
	"strings"
)

// Open creates a Store from a location string:
//
//	""  or "memory"        in-memory store
//	"sqlite:<path>"        SQLiteStore at path
//	"mysql://<dsn>"        MySQLStore with the go-sql-driver DSN
//
// A bare path ending in .db or .sqlite is treated as a SQLite file.
func Open(location string) (Store, error) {
	switch {
	case location == "" || location == "memory":
		return NewMemStore(), nil
	case strings.HasPrefix(location, "sqlite:"):
		path := strings.TrimPrefix(location, "sqlite:")
		if path == "" {
			return nil, fmt.Errorf("history location %q has no path", location)
		}
		return NewSQLiteStore(path)
	case strings.HasPrefix(location, "mysql://"):
		return NewMySQLStore(strings.TrimPrefix(location, "mysql://"))
	case strings.HasSuffix(location, ".db") || strings.HasSuffix(location, ".sqlite"):
		return NewSQLiteStore(location)
	default:
		return nil, fmt.Errorf("unsupported history location %q", location)
	}
}
