package etl

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/BartekS5/orderload/internal/ledger"
	"github.com/BartekS5/orderload/pkg/database"
	apperrors "github.com/BartekS5/orderload/pkg/errors"
)

// SQLExecutor streams a CSV object into a relational table using the
// dialect's bulk copy primitive and records the key in the ledger within the
// same transaction.
type SQLExecutor struct {
	DB        *sql.DB
	Dialect   database.Dialect
	Store     ObjectStore
	Ledger    *ledger.Ledger
	Schema    string
	Table     string
	Delimiter rune
}

func NewSQLExecutor(db *sql.DB, dialect database.Dialect, store ObjectStore, l *ledger.Ledger, schema, table string) *SQLExecutor {
	return &SQLExecutor{
		DB:        db,
		Dialect:   dialect,
		Store:     store,
		Ledger:    l,
		Schema:    schema,
		Table:     table,
		Delimiter: ',',
	}
}

// Ingest loads key. Any error leaves neither table rows nor a ledger entry.
func (e *SQLExecutor) Ingest(ctx context.Context, key string) (Result, error) {
	body, err := e.Store.GetObject(ctx, key)
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.ErrStorageUnavailable, "fetch "+key, err)
	}
	defer body.Close()

	src, err := NewCSVSource(body, e.Delimiter)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", key, err)
	}

	var rows int64
	err = database.InTx(ctx, e.DB, func(tx *sql.Tx) error {
		n, err := e.Dialect.BulkInsert(ctx, tx, e.Schema, e.Table, src.Columns(), src.Next)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrSinkWriteFailure, "bulk append "+key, err)
		}
		rows = n
		return e.Ledger.MarkLoadedTx(ctx, tx, key)
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Rows: rows}, nil
}
