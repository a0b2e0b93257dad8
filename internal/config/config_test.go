package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable Load reads so the host environment cannot
// leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ORDERS_BUCKET", "ORDERS_PREFIX", "ORDERS_PROCESSED_PREFIX", "RAW_SCHEMA", "ORDERS_TABLE",
		"ORDERS_EXTENSION", "AWS_REGION", "S3_ENDPOINT", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY",
		"S3_USE_PATH_STYLE", "SINK_DRIVER", "DATABASE_URL", "WAREHOUSE_DSN", "WAREHOUSE_SCHEMA",
		"WAREHOUSE_STAGE", "WAREHOUSE_ON_ERROR", "WAREHOUSE_FIELD_DELIMITER", "WAREHOUSE_SKIP_HEADER",
		"MONGO_CONNECTION_STRING", "MONGO_DATABASE", "LOG_LEVEL", "LOG_FORMAT", "LOAD_LOG_FILE",
		"METRICS_PUSHGATEWAY_URL", "STORAGE_RETRY_ATTEMPTS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("ORDERS_BUCKET", "acme-orders")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "acme-orders", cfg.Bucket)
	assert.Equal(t, "orders", cfg.Prefix)
	assert.Equal(t, "orders/processed", cfg.ProcessedPrefix)
	assert.Equal(t, "raw_orders", cfg.RawSchema)
	assert.Equal(t, "orders", cfg.OrdersTable)
	assert.Equal(t, ".csv", cfg.Extension)
	assert.Equal(t, "postgres", cfg.Sink.Driver)
	assert.Equal(t, "s3://acme-orders/orders", cfg.Warehouse.Stage)
	assert.Equal(t, "continueOnError", cfg.Warehouse.OnError)
	assert.Equal(t, 1, cfg.Warehouse.SkipHeader)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ORDERS_BUCKET", "acme-orders")
	t.Setenv("ORDERS_PREFIX", "/incoming/")
	t.Setenv("RAW_SCHEMA", "staging")
	t.Setenv("DATABASE_URL", "postgres://etl:secret@db:5432/orders")
	t.Setenv("WAREHOUSE_ON_ERROR", "abortOnError")
	t.Setenv("WAREHOUSE_SKIP_HEADER", "2")
	t.Setenv("S3_USE_PATH_STYLE", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "incoming", cfg.Prefix)
	assert.Equal(t, "incoming/processed", cfg.ProcessedPrefix)
	assert.Equal(t, "staging", cfg.RawSchema)
	assert.Equal(t, "postgres://etl:secret@db:5432/orders", cfg.Sink.DSN)
	assert.Equal(t, "abortOnError", cfg.Warehouse.OnError)
	assert.Equal(t, 2, cfg.Warehouse.SkipHeader)
	assert.True(t, cfg.S3.UsePathStyle)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "orderload.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bucket: yaml-bucket
prefix: daily
processedPrefix: archive/daily
sink:
  driver: sqlite3
  dsn: /tmp/orders.sqlite
retry:
  maxAttempts: 5
  initialDelay: 1s
`), 0o644))
	t.Setenv("ORDERS_BUCKET", "env-bucket")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-bucket", cfg.Bucket)
	assert.Equal(t, "daily", cfg.Prefix)
	assert.Equal(t, "archive/daily", cfg.ProcessedPrefix)
	assert.Equal(t, "sqlite3", cfg.Sink.Driver)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.InitialDelay)
}

func TestLoadRequiresBucket(t *testing.T) {
	clearEnv(t)
	_, err := Load("")
	assert.ErrorContains(t, err, "ORDERS_BUCKET")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c := defaultConfig()
		c.Bucket = "b"
		c.applyDerivedDefaults()
		return c
	}

	c := base()
	c.ProcessedPrefix = c.Prefix
	assert.Error(t, c.Validate())

	c = base()
	c.Extension = "csv"
	assert.Error(t, c.Validate())

	c = base()
	c.Warehouse.Delimiter = ";;"
	assert.Error(t, c.Validate())

	c = base()
	c.Warehouse.SkipHeader = -1
	assert.Error(t, c.Validate())

	c = base()
	c.Warehouse.OnError = "skip_file"
	assert.ErrorContains(t, c.Validate(), "skip_file")

	assert.NoError(t, base().Validate())
}

func TestLoadRejectsUnknownOnError(t *testing.T) {
	clearEnv(t)
	t.Setenv("ORDERS_BUCKET", "acme-orders")
	t.Setenv("WAREHOUSE_ON_ERROR", "ignore")

	_, err := Load("")
	assert.ErrorContains(t, err, "on-error")
}

func TestLoadRejectsMalformedEnvValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("ORDERS_BUCKET", "acme-orders")
	t.Setenv("WAREHOUSE_SKIP_HEADER", "one")
	t.Setenv("STORAGE_RETRY_ATTEMPTS", "3x")
	t.Setenv("S3_USE_PATH_STYLE", "yes please")

	_, err := Load("")
	require.Error(t, err)
	assert.ErrorContains(t, err, "WAREHOUSE_SKIP_HEADER")
	assert.ErrorContains(t, err, "STORAGE_RETRY_ATTEMPTS")
	assert.ErrorContains(t, err, "S3_USE_PATH_STYLE")
}

func TestParseOnError(t *testing.T) {
	for in, want := range map[string]OnError{
		"abortOnError":    AbortOnError,
		"ABORT":           AbortOnError,
		"continueOnError": ContinueOnError,
		" continue ":      ContinueOnError,
	} {
		got, err := ParseOnError(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseOnError("skip_file")
	assert.Error(t, err)
	assert.Equal(t, "continueOnError", ContinueOnError.String())
	assert.Equal(t, ContinueOnError, WarehouseConfig{OnError: "continue"}.OnErrorPolicy())
}

func TestRedactedDSN(t *testing.T) {
	assert.Equal(t, "postgres://***@db:5432/orders", RedactedDSN("postgres://etl:secret@db:5432/orders"))
	assert.Equal(t, "host=db user=etl password=*** dbname=orders", RedactedDSN("host=db user=etl password=secret dbname=orders"))
	assert.Equal(t, "orders.duckdb", RedactedDSN("orders.duckdb"))
}
