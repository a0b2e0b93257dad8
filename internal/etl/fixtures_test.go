package etl

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BartekS5/orderload/internal/ledger"
	"github.com/BartekS5/orderload/internal/storage"
	"github.com/BartekS5/orderload/pkg/database"
	"github.com/BartekS5/orderload/pkg/models"
)

const (
	testPrefix    = "orders/"
	testProcessed = "orders/processed"
	testSchema    = "raw_orders"
	testTable     = "orders"
)

// ordersCSV renders a header plus n well-formed rows whose ids start at first.
func ordersCSV(first, n int) string {
	var b strings.Builder
	b.WriteString(strings.Join(models.OrderHeader(), ",") + "\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%d,2026-10-18 06:00:00,%d,%d,2,9.99,Warsaw,Widget\n", first+i, 100+i, 7)
	}
	return b.String()
}

type sqliteSink struct {
	db      *sql.DB
	dialect database.Dialect
	ledger  *ledger.Ledger
}

func newSQLiteSink(t *testing.T) *sqliteSink {
	t.Helper()
	ctx := context.Background()
	d, err := database.DialectFor(database.SQLite)
	require.NoError(t, err)
	db, err := database.ConnectSQL(ctx, d, filepath.Join(t.TempDir(), "sink.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.ExecContext(ctx, `CREATE TABLE "raw_orders_orders" (
		order_id INTEGER, order_timestamp TEXT, customer_id INTEGER, product_id INTEGER,
		quantity INTEGER, unit_price REAL, location TEXT, product_description TEXT)`)
	require.NoError(t, err)

	l := ledger.New(db, d, testSchema)
	require.NoError(t, l.EnsureStorageExists(ctx))
	return &sqliteSink{db: db, dialect: d, ledger: l}
}

func (s *sqliteSink) count(t *testing.T, where string) int {
	t.Helper()
	q := `SELECT COUNT(*) FROM "raw_orders_orders"`
	if where != "" {
		q += " WHERE " + where
	}
	var n int
	require.NoError(t, s.db.QueryRow(q).Scan(&n))
	return n
}

func (s *sqliteSink) loadedKeys(t *testing.T) []string {
	t.Helper()
	entries, err := s.ledger.Entries(context.Background())
	require.NoError(t, err)
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys
}

func newSQLPipeline(store *storage.MemStore, s *sqliteSink) *Pipeline {
	exec := NewSQLExecutor(s.db, s.dialect, store, s.ledger, testSchema, testTable)
	return NewPipeline(NewLister(store, testPrefix), s.ledger, exec, NewValidator(".csv", testProcessed), "postgres")
}

// spyExecutor records the keys it is asked to ingest.
type spyExecutor struct {
	mu     sync.Mutex
	keys   []string
	ingest func(key string) (Result, error)
}

func (s *spyExecutor) Ingest(_ context.Context, key string) (Result, error) {
	s.mu.Lock()
	s.keys = append(s.keys, key)
	s.mu.Unlock()
	if s.ingest != nil {
		return s.ingest(key)
	}
	return Result{Rows: 1}, nil
}

func (s *spyExecutor) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.keys...)
}
