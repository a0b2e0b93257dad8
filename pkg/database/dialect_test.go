package database

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/BartekS5/orderload/pkg/errors"
)

func openTestSQLite(t *testing.T) *sql.DB {
	t.Helper()
	d, err := DialectFor(SQLite)
	require.NoError(t, err)
	db, err := ConnectSQL(context.Background(), d, filepath.Join(t.TempDir(), "sink.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func rowsOf(records ...[]string) RowFunc {
	i := 0
	return func() ([]string, error) {
		if i == len(records) {
			return nil, io.EOF
		}
		i++
		return records[i-1], nil
	}
}

func TestDialectFor(t *testing.T) {
	tests := []struct {
		driver string
		want   string
	}{
		{"postgres", Postgres},
		{"postgresql", Postgres},
		{"sqlserver", SQLServer},
		{"MSSQL", SQLServer},
		{"sqlite", SQLite},
		{"sqlite3", SQLite},
		{"duckdb", DuckDB},
	}
	for _, tt := range tests {
		d, err := DialectFor(tt.driver)
		require.NoError(t, err, tt.driver)
		assert.Equal(t, tt.want, d.Name())
	}

	_, err := DialectFor("oracle")
	assert.Error(t, err)
}

func TestTableNames(t *testing.T) {
	pg, _ := DialectFor(Postgres)
	ms, _ := DialectFor(SQLServer)
	lite, _ := DialectFor(SQLite)
	duck, _ := DialectFor(DuckDB)

	assert.Equal(t, `"raw_orders"."orders"`, pg.TableName("raw_orders", "orders"))
	assert.Equal(t, `[raw_orders].[orders]`, ms.TableName("raw_orders", "orders"))
	assert.Equal(t, `"raw_orders_orders"`, lite.TableName("raw_orders", "orders"))
	assert.Equal(t, `"orders"`, lite.TableName("", "orders"))
	assert.Equal(t, `"raw_orders"."orders"`, duck.TableName("raw_orders", "orders"))

	assert.Equal(t, `"we""ird"`, duck.QuoteIdent(`we"ird`))
	assert.Equal(t, `[a]]b]`, ms.QuoteIdent("a]b"))
}

func TestPlaceholders(t *testing.T) {
	pg, _ := DialectFor(Postgres)
	ms, _ := DialectFor(SQLServer)
	lite, _ := DialectFor(SQLite)

	assert.Equal(t, "$2", pg.Placeholder(2))
	assert.Equal(t, "@p2", ms.Placeholder(2))
	assert.Equal(t, "?", lite.Placeholder(2))
}

func TestSQLServerEnsureSchemaIsGuarded(t *testing.T) {
	ms, _ := DialectFor(SQLServer)
	stmts := ms.EnsureSchema("raw_orders")
	require.Len(t, stmts, 1)
	assert.Equal(t, "IF SCHEMA_ID(N'raw_orders') IS NULL EXEC(N'CREATE SCHEMA [raw_orders]')", stmts[0])
}

func TestInsertIgnore(t *testing.T) {
	cols := []string{"customer_id", "email"}
	tests := []struct {
		driver string
		want   string
	}{
		{Postgres, `INSERT INTO "public"."customer_dim" ("customer_id", "email") VALUES ($1, $2) ON CONFLICT ("customer_id") DO NOTHING`},
		{SQLite, `INSERT INTO "public_customer_dim" ("customer_id", "email") VALUES (?, ?) ON CONFLICT ("customer_id") DO NOTHING`},
		{DuckDB, `INSERT INTO "public"."customer_dim" ("customer_id", "email") VALUES (?, ?) ON CONFLICT ("customer_id") DO NOTHING`},
		{SQLServer, `IF NOT EXISTS (SELECT 1 FROM [public].[customer_dim] WHERE [customer_id] = @p1) INSERT INTO [public].[customer_dim] ([customer_id], [email]) VALUES (@p1, @p2)`},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			d, err := DialectFor(tt.driver)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.InsertIgnore(d.TableName("public", "customer_dim"), cols))
		})
	}
}

func TestSQLiteInsertIgnoreKeepsFirstRow(t *testing.T) {
	db := openTestSQLite(t)
	d, _ := DialectFor(SQLite)
	_, err := db.Exec(`CREATE TABLE "c" ("id" INTEGER PRIMARY KEY, "name" TEXT)`)
	require.NoError(t, err)

	stmt := d.InsertIgnore(d.TableName("", "c"), []string{"id", "name"})
	res, err := db.Exec(stmt, 1, "first")
	require.NoError(t, err)
	n, _ := res.RowsAffected()
	assert.EqualValues(t, 1, n)

	res, err = db.Exec(stmt, 1, "second")
	require.NoError(t, err)
	n, _ = res.RowsAffected()
	assert.EqualValues(t, 0, n)

	var name string
	require.NoError(t, db.QueryRow(`SELECT "name" FROM "c" WHERE "id" = 1`).Scan(&name))
	assert.Equal(t, "first", name)
}

func TestIsReadError(t *testing.T) {
	assert.False(t, IsReadError(nil))
	assert.True(t, IsReadError(errors.New(`IO Error: No files found that match the pattern "/stage/a.csv"`)))
	assert.True(t, IsReadError(errors.New("HTTP Error: HTTP GET error on 'https://b.s3.amazonaws.com/a.csv' (HTTP 403)")))
	assert.False(t, IsReadError(errors.New(`Conversion Error: Could not convert string "x" to INT64`)))
}

func TestSQLiteBulkInsertAndUniqueViolation(t *testing.T) {
	db := openTestSQLite(t)
	d, _ := DialectFor(SQLite)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, d.CreateTableIfNotExists(d.TableName("raw", "t"), "id TEXT PRIMARY KEY, note TEXT"))
	require.NoError(t, err)

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	n, err := d.BulkInsert(ctx, tx, "raw", "t", []string{"id", "note"}, rowsOf([]string{"1", "a"}, []string{"2", ""}))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.EqualValues(t, 2, n)

	var note sql.NullString
	require.NoError(t, db.QueryRowContext(ctx, `SELECT note FROM "raw_t" WHERE id = '2'`).Scan(&note))
	assert.False(t, note.Valid, "empty field loads as NULL")

	_, err = db.ExecContext(ctx, `INSERT INTO "raw_t" (id) VALUES ('1')`)
	require.Error(t, err)
	assert.True(t, d.IsUniqueViolation(err))
	assert.False(t, d.IsUniqueViolation(errors.New("disk I/O error")))
}

func TestBulkInsertRejectsRaggedRow(t *testing.T) {
	db := openTestSQLite(t)
	d, _ := DialectFor(SQLite)
	ctx := context.Background()
	_, err := db.ExecContext(ctx, `CREATE TABLE "t" (a TEXT, b TEXT)`)
	require.NoError(t, err)

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	_, err = d.BulkInsert(ctx, tx, "", "t", []string{"a", "b"}, rowsOf([]string{"only-one"}))
	assert.Error(t, err)
}

func TestInTxRollsBackOnError(t *testing.T) {
	db := openTestSQLite(t)
	ctx := context.Background()
	_, err := db.ExecContext(ctx, `CREATE TABLE "t" (a TEXT)`)
	require.NoError(t, err)

	boom := errors.New("ledger insert failed")
	err = InTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO "t" (a) VALUES ('x')`); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM "t"`).Scan(&count))
	assert.Zero(t, count)

	require.NoError(t, InTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO "t" (a) VALUES ('y')`)
		return err
	}))
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM "t"`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestConnectSQLEmptyDSN(t *testing.T) {
	d, _ := DialectFor(Postgres)
	_, err := ConnectSQL(context.Background(), d, "")
	require.Error(t, err)
	assert.Equal(t, "ConnectionFailure", apperrors.Class(err))
}
