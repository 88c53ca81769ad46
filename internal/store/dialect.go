package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Dialect abstracts database-specific SQL and behavior.
type Dialect interface {
	// Name returns "postgres" or "sqlite".
	Name() string

	// DriverName returns the database/sql driver name ("pgx" or "sqlite").
	DriverName() string

	// NewParamBuilder creates a dialect-aware parameter builder.
	NewParamBuilder() ParamBuilder

	// ConsoleTablesSQL returns the DDL for the console's own tables.
	ConsoleTablesSQL() string

	TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error)

	// ArrayParam encodes a string slice for storage.
	// PostgreSQL: the slice as-is (pgx handles TEXT[]). SQLite: JSON text.
	ArrayParam(values []string) any

	// ScanArray decodes a TEXT[] (PostgreSQL) or JSON string (SQLite).
	ScanArray(src any) ([]string, error)

	// SyncCommitOff returns SQL to disable synchronous commit in a
	// transaction, or "" if not applicable.
	SyncCommitOff() string

	// MapError returns a well-known sentinel error for driver errors where
	// one applies.
	MapError(err error) error

	// NeedsBoolFix reports whether boolean columns come back as integers.
	NeedsBoolFix() bool
}

// ParamBuilder accumulates query parameters and generates placeholders.
type ParamBuilder interface {
	// Add appends a value and returns its placeholder.
	Add(v any) string
	Params() []any
}

// NewDialect creates a Dialect for "postgres" or "sqlite".
func NewDialect(driver string) Dialect {
	switch driver {
	case "sqlite":
		return &SQLiteDialect{}
	default:
		return &PostgresDialect{}
	}
}

type paramBuilder struct {
	format string
	params []any
}

func (p *paramBuilder) Add(v any) string {
	p.params = append(p.params, v)
	return fmt.Sprintf(p.format, len(p.params))
}

func (p *paramBuilder) Params() []any { return p.params }
