// Package ledger records which source objects have been durably loaded.
// An entry exists for a key if and only if that key's rows were committed to
// the target table in the same transaction.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/BartekS5/orderload/pkg/database"
	apperrors "github.com/BartekS5/orderload/pkg/errors"
)

// TableName is the ledger table created inside the raw schema.
const TableName = "_load_history"

// Entry is one loaded source object.
type Entry struct {
	Key      string
	LoadedAt time.Time
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Ledger is backed by a table in the same database as the target table so
// ledger inserts can join the load transaction.
type Ledger struct {
	db      *sql.DB
	dialect database.Dialect
	schema  string
	now     func() time.Time
}

func New(db *sql.DB, dialect database.Dialect, schema string) *Ledger {
	return &Ledger{
		db:      db,
		dialect: dialect,
		schema:  schema,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the load timestamp source.
func (l *Ledger) SetClock(now func() time.Time) { l.now = now }

func (l *Ledger) table() string { return l.dialect.TableName(l.schema, TableName) }

// EnsureStorageExists creates the schema and ledger table when absent. It is
// safe to call on every run.
func (l *Ledger) EnsureStorageExists(ctx context.Context) error {
	stmts := l.dialect.EnsureSchema(l.schema)
	cols := fmt.Sprintf("s3_key %s NOT NULL PRIMARY KEY, loaded_at %s NOT NULL",
		l.dialect.KeyType(), l.dialect.TimestampType())
	stmts = append(stmts, l.dialect.CreateTableIfNotExists(l.table(), cols))
	for _, stmt := range stmts {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return apperrors.Wrap(apperrors.ErrSinkWriteFailure, "ensure ledger storage", err)
		}
	}
	return nil
}

func (l *Ledger) IsLoaded(ctx context.Context, key string) (bool, error) {
	query := fmt.Sprintf("SELECT 1 FROM %s WHERE s3_key = %s", l.table(), l.dialect.Placeholder(1))
	var one int
	err := l.db.QueryRowContext(ctx, query, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking ledger for %q: %w", key, err)
	}
	return true, nil
}

// AllLoadedKeys returns the full key set in one query so a run can filter
// its candidates without a round-trip per key.
func (l *Ledger) AllLoadedKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := l.db.QueryContext(ctx, "SELECT s3_key FROM "+l.table())
	if err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scanning ledger key: %w", err)
		}
		keys[key] = struct{}{}
	}
	return keys, rows.Err()
}

// Entries lists the ledger ordered by key.
func (l *Ledger) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, "SELECT s3_key, loaded_at FROM "+l.table()+" ORDER BY s3_key")
	if err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.LoadedAt); err != nil {
			return nil, fmt.Errorf("scanning ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkLoaded records key in its own transaction.
func (l *Ledger) MarkLoaded(ctx context.Context, key string) error {
	return database.InTx(ctx, l.db, func(tx *sql.Tx) error {
		return l.MarkLoadedTx(ctx, tx, key)
	})
}

// MarkLoadedTx records key inside the caller's unit of work. An existing
// entry is rejected with ErrDuplicateKey.
func (l *Ledger) MarkLoadedTx(ctx context.Context, tx *sql.Tx, key string) error {
	return l.insert(ctx, tx, key)
}

func (l *Ledger) insert(ctx context.Context, ex execer, key string) error {
	query := fmt.Sprintf("INSERT INTO %s (s3_key, loaded_at) VALUES (%s, %s)",
		l.table(), l.dialect.Placeholder(1), l.dialect.Placeholder(2))
	if _, err := ex.ExecContext(ctx, query, key, l.now()); err != nil {
		if l.dialect.IsUniqueViolation(err) {
			return apperrors.Wrap(apperrors.ErrDuplicateKey, fmt.Sprintf("mark %q loaded", key), err)
		}
		return apperrors.Wrap(apperrors.ErrSinkWriteFailure, fmt.Sprintf("mark %q loaded", key), err)
	}
	return nil
}
