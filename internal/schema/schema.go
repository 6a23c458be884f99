// Package schema reads table headers from the Postgres database the
// questions are asked against.
package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/born-ml/n2s/internal/config"
)

// ErrTableNotFound is returned when a table has no visible columns.
var ErrTableNotFound = errors.New("table not found")

// DefaultSchema is searched for unqualified table names.
const DefaultSchema = "public"

const pingTimeout = 5 * time.Second

// Open connects to the database described by cfg and verifies the
// connection with a ping.
func Open(ctx context.Context, cfg config.Database) (*sql.DB, error) {
	if cfg.Host == "" || cfg.Name == "" {
		return nil, fmt.Errorf("database host and name are required")
	}

	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open schema db: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping schema db: %w", err)
	}
	return db, nil
}

// Repository queries information_schema.
type Repository struct {
	db *sql.DB
}

// NewRepository wraps an open database handle. The caller owns db.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck pings the database.
func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping schema db: %w", err)
	}
	return nil
}

// Headers returns the column names of table in ordinal order. table may be
// qualified as "schema.table"; otherwise DefaultSchema is used.
func (r *Repository) Headers(ctx context.Context, table string) ([]string, error) {
	schemaName, tableName := splitTable(table)
	if tableName == "" {
		return nil, fmt.Errorf("table name is required")
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT column_name
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position ASC`, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	headers := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		headers = append(headers, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column rows: %w", err)
	}
	if len(headers) == 0 {
		return nil, fmt.Errorf("%s.%s: %w", schemaName, tableName, ErrTableNotFound)
	}
	return headers, nil
}

// Tables lists the base tables of schemaName, or DefaultSchema when empty.
func (r *Repository) Tables(ctx context.Context, schemaName string) ([]string, error) {
	if schemaName == "" {
		schemaName = DefaultSchema
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = $1 AND table_type = 'BASE TABLE'
ORDER BY table_name ASC`, schemaName)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tables := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table rows: %w", err)
	}
	return tables, nil
}

func splitTable(table string) (schemaName, tableName string) {
	table = strings.TrimSpace(table)
	if s, t, ok := strings.Cut(table, "."); ok {
		return s, t
	}
	return DefaultSchema, table
}
