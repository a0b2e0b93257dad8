package etl

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/BartekS5/orderload/internal/config"
	"github.com/BartekS5/orderload/internal/ledger"
	"github.com/BartekS5/orderload/pkg/database"
	apperrors "github.com/BartekS5/orderload/pkg/errors"
	"github.com/BartekS5/orderload/pkg/logger"
	"github.com/BartekS5/orderload/pkg/models"
)

// FileFormat describes staged files to the COPY statement.
type FileFormat struct {
	Delimiter  rune
	SkipHeader int
	OnError    config.OnError
}

// Stage is the warehouse-side reference to the bucket location COPY reads
// from. Its URL corresponds to the active prefix.
type Stage struct {
	URL    string
	Prefix string
}

// PathFor maps an object key to the path the warehouse reads.
func (s Stage) PathFor(key string) string {
	return strings.TrimSuffix(s.URL, "/") + "/" + relativeKey(strings.Trim(s.Prefix, "/"), key)
}

// CopyStatement renders a DuckDB COPY of one staged file into table.
func CopyStatement(table, path string, ff FileFormat) string {
	return fmt.Sprintf("COPY %s FROM %s (FORMAT csv, DELIMITER %s, HEADER false, SKIP %d, IGNORE_ERRORS %t)",
		table, database.QuoteLiteral(path), database.QuoteLiteral(string(ff.Delimiter)), ff.SkipHeader, ff.OnError == config.ContinueOnError)
}

// WarehouseExecutor loads staged files with COPY instead of streaming rows.
// The COPY and the ledger entry share one DuckDB transaction; archival runs
// after commit.
type WarehouseExecutor struct {
	DB       *sql.DB
	Dialect  database.Dialect
	Ledger   *ledger.Ledger
	Archiver *Archiver
	Stage    Stage
	Format   FileFormat
	Schema   string
	Table    string
}

// EnsureTable creates the schema and the orders table if absent.
func (w *WarehouseExecutor) EnsureTable(ctx context.Context) error {
	defs := make([]string, len(models.OrderColumns))
	for i, c := range models.OrderColumns {
		defs[i] = w.Dialect.QuoteIdent(c.Name) + " " + c.WarehouseType
	}
	stmts := append(w.Dialect.EnsureSchema(w.Schema),
		w.Dialect.CreateTableIfNotExists(w.Dialect.TableName(w.Schema, w.Table), strings.Join(defs, ", ")))
	for _, stmt := range stmts {
		if _, err := w.DB.ExecContext(ctx, stmt); err != nil {
			return apperrors.Wrap(apperrors.ErrSinkWriteFailure, "ensure warehouse table", err)
		}
	}
	logger.Info("ensured warehouse table", "table", w.Schema+"."+w.Table)
	return nil
}

func (w *WarehouseExecutor) Ingest(ctx context.Context, key string) (Result, error) {
	stagePath := w.Stage.PathFor(key)
	stmt := CopyStatement(w.Dialect.TableName(w.Schema, w.Table), stagePath, w.Format)

	var res Result
	err := database.InTx(ctx, w.DB, func(tx *sql.Tx) error {
		out, err := tx.ExecContext(ctx, stmt)
		if database.IsReadError(err) {
			return apperrors.Wrap(apperrors.ErrStorageUnavailable, "read stage "+stagePath, err)
		}
		if err != nil {
			return apperrors.Wrap(apperrors.ErrSinkWriteFailure, "copy from "+stagePath, err)
		}
		if n, err := out.RowsAffected(); err == nil {
			res.Rows = n
		}
		return w.Ledger.MarkLoadedTx(ctx, tx, key)
	})
	if err != nil {
		return Result{}, err
	}

	if w.Archiver != nil {
		res.ArchivedTo, res.ArchiveErr = w.Archiver.Archive(ctx, key)
	}
	return res, nil
}

// SetupStage prepares db to read the stage. Object-store stages need the
// httpfs extension and, when credentials are configured, an S3 secret.
// Local stages need nothing.
func SetupStage(ctx context.Context, db *sql.DB, stageURL string, s3cfg config.S3Config) error {
	if !strings.HasPrefix(stageURL, "s3://") {
		return nil
	}
	if _, err := db.ExecContext(ctx, "INSTALL httpfs; LOAD httpfs;"); err != nil {
		return apperrors.Wrap(apperrors.ErrConnectionFailure, "load httpfs", err)
	}
	if s3cfg.KeyID == "" {
		logger.Info("no S3 credentials configured, stage reads are anonymous")
		return nil
	}
	if _, err := db.ExecContext(ctx, S3SecretStatement(s3cfg)); err != nil {
		return apperrors.Wrap(apperrors.ErrConnectionFailure, "create S3 secret", err)
	}
	logger.Info("S3 secret created", "region", s3cfg.Region, "endpoint", s3cfg.Endpoint)
	return nil
}

// S3SecretStatement renders the DuckDB secret for the stage bucket. An
// endpoint given as a URL is reduced to its host, and http endpoints
// disable SSL.
func S3SecretStatement(s3cfg config.S3Config) string {
	opts := []string{
		"TYPE S3",
		"KEY_ID " + database.QuoteLiteral(s3cfg.KeyID),
		"SECRET " + database.QuoteLiteral(s3cfg.Secret),
		"REGION " + database.QuoteLiteral(s3cfg.Region),
	}
	if ep := s3cfg.Endpoint; ep != "" {
		useSSL := !strings.HasPrefix(ep, "http://")
		ep = strings.TrimPrefix(strings.TrimPrefix(ep, "http://"), "https://")
		opts = append(opts,
			"ENDPOINT "+database.QuoteLiteral(strings.TrimSuffix(ep, "/")),
			fmt.Sprintf("USE_SSL %t", useSSL))
	}
	if s3cfg.UsePathStyle {
		opts = append(opts, "URL_STYLE 'path'")
	}
	return "CREATE OR REPLACE SECRET orderload_stage (" + strings.Join(opts, ", ") + ")"
}
