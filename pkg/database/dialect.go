// Package database holds connection helpers and the SQL dialects the load
// core writes through: PostgreSQL (lib/pq), SQL Server (go-mssqldb), SQLite
// (go-sqlite3) and DuckDB (duckdb-go).
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/duckdb/duckdb-go/v2"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	mssql "github.com/microsoft/go-mssqldb"
)

const (
	Postgres  = "postgres"
	SQLServer = "sqlserver"
	SQLite    = "sqlite3"
	DuckDB    = "duckdb"
)

// RowFunc yields the next row of string values, or io.EOF when exhausted.
type RowFunc func() ([]string, error)

// Dialect captures the SQL differences between supported sinks.
type Dialect interface {
	Name() string
	DriverName() string
	QuoteIdent(name string) string
	// TableName returns the qualified name of table within schema.
	TableName(schema, table string) string
	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder(n int) string
	EnsureSchema(schema string) []string
	CreateTableIfNotExists(qualified, columnDefs string) string
	KeyType() string
	TimestampType() string
	// BulkInsert streams rows into table inside tx and returns the row count.
	BulkInsert(ctx context.Context, tx *sql.Tx, schema, table string, columns []string, next RowFunc) (int64, error)
	// InsertIgnore renders a single-row insert that does nothing when a row
	// with the same key already exists. The key is columns[0].
	InsertIgnore(qualified string, columns []string) string
	IsUniqueViolation(err error) bool
}

// DialectFor resolves a driver name as used in configuration.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case Postgres, "postgresql", "pq":
		return postgresDialect{}, nil
	case SQLServer, "mssql":
		return sqlServerDialect{}, nil
	case SQLite, "sqlite":
		return sqliteDialect{}, nil
	case DuckDB:
		return duckDBDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported sink driver %q", driver)
	}
}

func doubleQuote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral renders s as a single-quoted SQL string literal.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func nullable(record []string) []any {
	args := make([]any, len(record))
	for i, v := range record {
		if v == "" {
			args[i] = nil
		} else {
			args[i] = v
		}
	}
	return args
}

// copyRows drives a COPY-style prepared statement: one Exec per row and a
// final argument-less Exec that flushes the stream.
func copyRows(ctx context.Context, tx *sql.Tx, query string, width int, next RowFunc) (int64, error) {
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("preparing bulk copy: %w", err)
	}
	defer stmt.Close()

	var n int64
	for {
		record, err := next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, err
		}
		if len(record) != width {
			return n, fmt.Errorf("row %d has %d values, want %d", n+1, len(record), width)
		}
		if _, err := stmt.ExecContext(ctx, nullable(record)...); err != nil {
			return n, fmt.Errorf("copying row %d: %w", n+1, err)
		}
		n++
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return n, fmt.Errorf("flushing bulk copy: %w", err)
	}
	return n, nil
}

// insertParts quotes columns and renders their bind markers.
func insertParts(d Dialect, columns []string) (quoted, marks []string) {
	quoted = make([]string, len(columns))
	marks = make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.QuoteIdent(c)
		marks[i] = d.Placeholder(i + 1)
	}
	return quoted, marks
}

// onConflictDoNothing serves the dialects that share the upsert clause.
func onConflictDoNothing(d Dialect, qualified string, columns []string) string {
	quoted, marks := insertParts(d, columns)
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
		qualified, strings.Join(quoted, ", "), strings.Join(marks, ", "), quoted[0])
}

// insertRows is the fallback for drivers without a copy protocol.
func insertRows(ctx context.Context, tx *sql.Tx, d Dialect, qualified string, columns []string, next RowFunc) (int64, error) {
	quoted, marks := insertParts(d, columns)
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", qualified, strings.Join(quoted, ", "), strings.Join(marks, ", "))
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	var n int64
	for {
		record, err := next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if len(record) != len(columns) {
			return n, fmt.Errorf("row %d has %d values, want %d", n+1, len(record), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, nullable(record)...); err != nil {
			return n, fmt.Errorf("inserting row %d: %w", n+1, err)
		}
		n++
	}
}

type postgresDialect struct{}

func (postgresDialect) Name() string                  { return Postgres }
func (postgresDialect) DriverName() string            { return "postgres" }
func (postgresDialect) QuoteIdent(name string) string { return pq.QuoteIdentifier(name) }
func (d postgresDialect) TableName(schema, table string) string {
	return d.QuoteIdent(schema) + "." + d.QuoteIdent(table)
}
func (postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }
func (d postgresDialect) EnsureSchema(schema string) []string {
	return []string{"CREATE SCHEMA IF NOT EXISTS " + d.QuoteIdent(schema)}
}
func (postgresDialect) CreateTableIfNotExists(qualified, columnDefs string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", qualified, columnDefs)
}
func (postgresDialect) KeyType() string       { return "TEXT" }
func (postgresDialect) TimestampType() string { return "TIMESTAMPTZ" }

func (postgresDialect) BulkInsert(ctx context.Context, tx *sql.Tx, schema, table string, columns []string, next RowFunc) (int64, error) {
	return copyRows(ctx, tx, pq.CopyInSchema(schema, table, columns...), len(columns), next)
}

func (d postgresDialect) InsertIgnore(qualified string, columns []string) string {
	return onConflictDoNothing(d, qualified, columns)
}

func (postgresDialect) IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

type sqlServerDialect struct{}

func (sqlServerDialect) Name() string       { return SQLServer }
func (sqlServerDialect) DriverName() string { return "sqlserver" }
func (sqlServerDialect) QuoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}
func (d sqlServerDialect) TableName(schema, table string) string {
	return d.QuoteIdent(schema) + "." + d.QuoteIdent(table)
}
func (sqlServerDialect) Placeholder(n int) string { return fmt.Sprintf("@p%d", n) }
func (d sqlServerDialect) EnsureSchema(schema string) []string {
	create := "CREATE SCHEMA " + d.QuoteIdent(schema)
	return []string{fmt.Sprintf("IF SCHEMA_ID(N%s) IS NULL EXEC(N%s)", QuoteLiteral(schema), QuoteLiteral(create))}
}
func (sqlServerDialect) CreateTableIfNotExists(qualified, columnDefs string) string {
	return fmt.Sprintf("IF OBJECT_ID(N%s, N'U') IS NULL CREATE TABLE %s (%s)", QuoteLiteral(qualified), qualified, columnDefs)
}

// NVARCHAR(450) keeps the primary key within the 900-byte index limit.
func (sqlServerDialect) KeyType() string       { return "NVARCHAR(450)" }
func (sqlServerDialect) TimestampType() string { return "DATETIMEOFFSET" }

func (d sqlServerDialect) BulkInsert(ctx context.Context, tx *sql.Tx, schema, table string, columns []string, next RowFunc) (int64, error) {
	return copyRows(ctx, tx, mssql.CopyIn(d.TableName(schema, table), mssql.BulkOptions{}, columns...), len(columns), next)
}

// InsertIgnore guards the insert with an existence check on the key; the
// first bind marker is referenced twice.
func (d sqlServerDialect) InsertIgnore(qualified string, columns []string) string {
	quoted, marks := insertParts(d, columns)
	return fmt.Sprintf("IF NOT EXISTS (SELECT 1 FROM %s WHERE %s = %s) INSERT INTO %s (%s) VALUES (%s)",
		qualified, quoted[0], marks[0], qualified, strings.Join(quoted, ", "), strings.Join(marks, ", "))
}

func (sqlServerDialect) IsUniqueViolation(err error) bool {
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return msErr.Number == 2627 || msErr.Number == 2601
	}
	return false
}

// sqliteDialect has no schemas: schema and table are folded into one name.
type sqliteDialect struct{}

func (sqliteDialect) Name() string                  { return SQLite }
func (sqliteDialect) DriverName() string            { return "sqlite3" }
func (sqliteDialect) QuoteIdent(name string) string { return doubleQuote(name) }
func (d sqliteDialect) TableName(schema, table string) string {
	if schema == "" {
		return d.QuoteIdent(table)
	}
	return d.QuoteIdent(schema + "_" + table)
}
func (sqliteDialect) Placeholder(int) string         { return "?" }
func (sqliteDialect) EnsureSchema(string) []string { return nil }
func (sqliteDialect) CreateTableIfNotExists(qualified, columnDefs string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", qualified, columnDefs)
}
func (sqliteDialect) KeyType() string       { return "TEXT" }
func (sqliteDialect) TimestampType() string { return "TIMESTAMP" }

func (d sqliteDialect) BulkInsert(ctx context.Context, tx *sql.Tx, schema, table string, columns []string, next RowFunc) (int64, error) {
	return insertRows(ctx, tx, d, d.TableName(schema, table), columns, next)
}

func (d sqliteDialect) InsertIgnore(qualified string, columns []string) string {
	return onConflictDoNothing(d, qualified, columns)
}

func (sqliteDialect) IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

type duckDBDialect struct{}

func (duckDBDialect) Name() string                  { return DuckDB }
func (duckDBDialect) DriverName() string            { return "duckdb" }
func (duckDBDialect) QuoteIdent(name string) string { return doubleQuote(name) }
func (d duckDBDialect) TableName(schema, table string) string {
	return d.QuoteIdent(schema) + "." + d.QuoteIdent(table)
}
func (duckDBDialect) Placeholder(int) string { return "?" }
func (d duckDBDialect) EnsureSchema(schema string) []string {
	return []string{"CREATE SCHEMA IF NOT EXISTS " + d.QuoteIdent(schema)}
}
func (duckDBDialect) CreateTableIfNotExists(qualified, columnDefs string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", qualified, columnDefs)
}
func (duckDBDialect) KeyType() string       { return "VARCHAR" }
func (duckDBDialect) TimestampType() string { return "TIMESTAMPTZ" }

func (d duckDBDialect) BulkInsert(ctx context.Context, tx *sql.Tx, schema, table string, columns []string, next RowFunc) (int64, error) {
	return insertRows(ctx, tx, d, d.TableName(schema, table), columns, next)
}

func (d duckDBDialect) InsertIgnore(qualified string, columns []string) string {
	return onConflictDoNothing(d, qualified, columns)
}

func (duckDBDialect) IsUniqueViolation(err error) bool {
	var duckErr *duckdb.Error
	if errors.As(err, &duckErr) && duckErr.Type == duckdb.ErrorTypeConstraint {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "Duplicate key")
}

// IsReadError reports whether a DuckDB statement failed reading its input
// files (missing stage file, unreachable or denied object store) rather than
// writing the target.
func IsReadError(err error) bool {
	if err == nil {
		return false
	}
	var duckErr *duckdb.Error
	if errors.As(err, &duckErr) {
		switch duckErr.Type {
		case duckdb.ErrorTypeIO, duckdb.ErrorTypeHTTP, duckdb.ErrorTypeNetwork:
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "No files found") || strings.Contains(msg, "IO Error") || strings.Contains(msg, "HTTP Error")
}
