package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/BartekS5/orderload/internal/config"
	"github.com/BartekS5/orderload/internal/etl"
	"github.com/BartekS5/orderload/internal/generate"
	"github.com/BartekS5/orderload/internal/ledger"
	"github.com/BartekS5/orderload/internal/storage"
	"github.com/BartekS5/orderload/pkg/database"
	"github.com/BartekS5/orderload/pkg/logger"
	"github.com/BartekS5/orderload/pkg/metrics"
)

// objectStore is what the commands need from the bucket.
type objectStore interface {
	etl.ObjectStore
	generate.Uploader
}

// newObjectStore is replaced in tests.
var newObjectStore = func(cfg *config.Config) objectStore {
	return storage.NewS3Store(cfg)
}

func setup(root *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(root.ConfigFile)
	if err != nil {
		return nil, err
	}
	if root.LogLevel != "" {
		cfg.Logging.Level = root.LogLevel
	}
	if err := logger.InitLogger(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runLoad(cmd *cobra.Command, root *RootOptions, opts *LoadOptions, target string) error {
	cfg, err := setup(root)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx := cmd.Context()
	once := func(ctx context.Context) error {
		return loadOnce(ctx, cfg, target, opts.DryRun, cmd.OutOrStdout())
	}
	if opts.Schedule != "" {
		return runScheduled(ctx, opts.Schedule, target, once)
	}
	return once(ctx)
}

// sinkFor resolves where target keeps its table and ledger.
func sinkFor(cfg *config.Config, target string) (driver, dsn, schema string, err error) {
	switch target {
	case targetPostgres:
		return cfg.Sink.Driver, cfg.Sink.DSN, cfg.RawSchema, nil
	case targetWarehouse:
		return database.DuckDB, cfg.Warehouse.DSN, cfg.Warehouse.Schema, nil
	}
	return "", "", "", fmt.Errorf("unknown load target %q", target)
}

// loadOnce performs one complete run against target and prints its summary.
// Per-object failures are reported, not returned.
func loadOnce(ctx context.Context, cfg *config.Config, target string, dryRun bool, out io.Writer) error {
	driver, dsn, schema, err := sinkFor(cfg, target)
	if err != nil {
		return err
	}
	logger.Info("starting load",
		"target", target,
		"bucket", cfg.Bucket,
		"prefix", cfg.Prefix,
		"table", schema+"."+cfg.OrdersTable,
		"driver", driver,
		"dsn", config.RedactedDSN(dsn),
		"dry_run", dryRun,
	)

	d, err := database.DialectFor(driver)
	if err != nil {
		return err
	}
	db, err := database.ConnectSQL(ctx, d, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	store := newObjectStore(cfg)
	l := ledger.New(db, d, schema)
	var exec etl.Executor
	if target == targetWarehouse {
		w, err := newWarehouseExecutor(ctx, cfg, db, d, l, store, dryRun)
		if err != nil {
			return err
		}
		exec = w
	} else {
		exec = etl.NewSQLExecutor(db, d, store, l, schema, cfg.OrdersTable)
	}

	p := etl.NewPipeline(
		etl.NewLister(store, cfg.Prefix+"/"),
		l,
		exec,
		etl.NewValidator(cfg.Extension, cfg.ProcessedPrefix),
		target,
	)
	p.DryRun = dryRun
	if cfg.Metrics.PushgatewayURL != "" {
		p.Metrics = metrics.New(target)
	}

	summary, runErr := p.Run(ctx)
	if summary == nil {
		logger.Error("load aborted before any object was processed", "target", target, "error", runErr)
		return runErr
	}
	fmt.Fprintln(out, summary.Line())

	// Reporting side channels must not change the outcome of the run.
	reportCtx := context.WithoutCancel(ctx)
	if cfg.Mongo.URI != "" {
		saveRunHistory(reportCtx, cfg, summary)
	}
	if p.Metrics != nil {
		if err := p.Metrics.Push(reportCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
			logger.Warn("metrics push failed", "url", cfg.Metrics.PushgatewayURL, "error", err)
		}
	}
	return runErr
}

func newWarehouseExecutor(ctx context.Context, cfg *config.Config, db *sql.DB, d database.Dialect, l *ledger.Ledger, store etl.ObjectStore, dryRun bool) (*etl.WarehouseExecutor, error) {
	onError := cfg.Warehouse.OnErrorPolicy()
	w := &etl.WarehouseExecutor{
		DB:       db,
		Dialect:  d,
		Ledger:   l,
		Archiver: etl.NewArchiver(store, cfg.Prefix, cfg.ProcessedPrefix),
		Stage:    etl.Stage{URL: cfg.Warehouse.Stage, Prefix: cfg.Prefix},
		Format: etl.FileFormat{
			Delimiter:  []rune(cfg.Warehouse.Delimiter)[0],
			SkipHeader: cfg.Warehouse.SkipHeader,
			OnError:    onError,
		},
		Schema: cfg.Warehouse.Schema,
		Table:  cfg.OrdersTable,
	}
	if onError == config.ContinueOnError {
		logger.Warn("warehouse COPY skips bad rows; a loaded file may be partially ingested", "on_error", onError.String())
	}
	if dryRun {
		return w, nil
	}
	if err := etl.SetupStage(ctx, db, w.Stage.URL, cfg.S3); err != nil {
		return nil, err
	}
	if err := w.EnsureTable(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

func saveRunHistory(ctx context.Context, cfg *config.Config, summary *etl.Summary) {
	client, err := database.ConnectMongo(ctx, cfg.Mongo.URI)
	if err != nil {
		logger.Warn("run history unavailable", "error", err)
		return
	}
	defer client.Disconnect(ctx)

	runs := etl.NewMongoRunStore(client, cfg.Mongo.Database, cfg.Mongo.Collection)
	if err := runs.Save(ctx, summary); err != nil {
		logger.Warn("saving run history failed", "run_id", summary.RunID, "error", err)
	}
}

// runScheduled repeats once on spec until ctx is done. A tick that fires
// while the previous run is still going is skipped.
func runScheduled(ctx context.Context, spec, target string, once func(context.Context) error) error {
	log := logger.WithComponent("scheduler")
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{log})))

	_, err := c.AddFunc(spec, func() {
		if err := once(ctx); err != nil {
			log.Warn("scheduled load failed", "target", target, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	c.Start()
	log.Info("load scheduled", "target", target, "schedule", spec)
	<-ctx.Done()

	stopped := c.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(10 * time.Minute):
		log.Warn("timed out waiting for the running load to finish")
	}
	log.Info("scheduler stopped")
	return nil
}

// cronLogger routes cron's internal messages through slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Info(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}

func openLedger(ctx context.Context, cfg *config.Config, target string) (*ledger.Ledger, *sql.DB, error) {
	driver, dsn, schema, err := sinkFor(cfg, target)
	if err != nil {
		return nil, nil, err
	}
	d, err := database.DialectFor(driver)
	if err != nil {
		return nil, nil, err
	}
	db, err := database.ConnectSQL(ctx, d, dsn)
	if err != nil {
		return nil, nil, err
	}
	return ledger.New(db, d, schema), db, nil
}

func runLedgerInit(cmd *cobra.Command, root *RootOptions, target string) error {
	cfg, err := setup(root)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx := cmd.Context()
	l, db, err := openLedger(ctx, cfg, target)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := l.EnsureStorageExists(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ledger %s ready\n", ledger.TableName)
	return nil
}

func runLedgerList(cmd *cobra.Command, root *RootOptions, target string) error {
	cfg, err := setup(root)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx := cmd.Context()
	l, db, err := openLedger(ctx, cfg, target)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := l.EnsureStorageExists(ctx); err != nil {
		return err
	}
	entries, err := l.Entries(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, e := range entries {
		fmt.Fprintf(out, "%s\t%s\n", e.LoadedAt.UTC().Format(time.RFC3339), e.Key)
	}
	fmt.Fprintf(out, "%d loaded key(s)\n", len(entries))
	return nil
}

func runGenerate(cmd *cobra.Command, root *RootOptions, count int, seed int64) error {
	cfg, err := setup(root)
	if err != nil {
		return err
	}
	defer logger.Close()

	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	key, err := generate.New(seed).Upload(cmd.Context(), newObjectStore(cfg), cfg.Prefix, count)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "uploaded %d orders to s3://%s/%s\n", count, cfg.Bucket, key)
	return nil
}

func runSeedCustomers(cmd *cobra.Command, root *RootOptions, target string, count int, seed int64) error {
	cfg, err := setup(root)
	if err != nil {
		return err
	}
	defer logger.Close()

	if count <= 0 {
		return fmt.Errorf("count must be positive, got %d", count)
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	driver, dsn, schema, err := sinkFor(cfg, target)
	if err != nil {
		return err
	}
	d, err := database.DialectFor(driver)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	db, err := database.ConnectSQL(ctx, d, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	inserted, err := generate.SeedCustomers(ctx, db, d, schema, generate.New(seed).Customers(count))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "seeded %d new customer(s), %d already present\n", inserted, int64(count)-inserted)
	return nil
}
