// Package config resolves the load configuration once at process start:
// defaults, then an optional YAML file, then environment variables (which
// main may have seeded from a .env file). The resulting Config is passed
// explicitly to every component.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all settings for a load run.
type Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	ProcessedPrefix string `yaml:"processedPrefix"`
	RawSchema       string `yaml:"rawSchema"`
	OrdersTable     string `yaml:"ordersTable"`
	// Extension is the recognized tabular format marker of source keys.
	Extension string `yaml:"extension"`

	S3        S3Config        `yaml:"s3"`
	Sink      SinkConfig      `yaml:"sink"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Mongo     MongoConfig     `yaml:"mongo"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Retry     RetryConfig     `yaml:"retry"`
}

type S3Config struct {
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	KeyID        string `yaml:"keyId"`
	Secret       string `yaml:"secret"`
	UsePathStyle bool   `yaml:"usePathStyle"`
}

// SinkConfig selects the relational sink.
type SinkConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// WarehouseConfig describes the DuckDB warehouse target and how COPY reads
// staged files.
type WarehouseConfig struct {
	DSN        string `yaml:"dsn"`
	Schema     string `yaml:"schema"`
	Stage      string `yaml:"stage"`
	OnError    string `yaml:"onError"`
	Delimiter  string `yaml:"delimiter"`
	SkipHeader int    `yaml:"skipHeader"`
}

// OnError is the row-level error policy of the warehouse COPY.
//
// With ContinueOnError a COPY that skipped bad rows still reports success, so
// a committed load does not guarantee that every row of the file landed.
type OnError int

const (
	AbortOnError OnError = iota
	ContinueOnError
)

func (o OnError) String() string {
	if o == ContinueOnError {
		return "continueOnError"
	}
	return "abortOnError"
}

func ParseOnError(s string) (OnError, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "abortonerror", "abort", "abort_statement":
		return AbortOnError, nil
	case "continueonerror", "continue":
		return ContinueOnError, nil
	default:
		return AbortOnError, fmt.Errorf("unknown on-error policy %q (want abortOnError or continueOnError)", s)
	}
}

// OnErrorPolicy returns the parsed OnError setting. Validate has already
// rejected unknown values.
func (w WarehouseConfig) OnErrorPolicy() OnError {
	o, _ := ParseOnError(w.OnError)
	return o
}

type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgatewayUrl"`
	Job            string `yaml:"job"`
}

type RetryConfig struct {
	MaxAttempts  int           `yaml:"maxAttempts"`
	InitialDelay time.Duration `yaml:"initialDelay"`
}

// Load builds a Config from defaults, the YAML file at path (if non-empty)
// and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDerivedDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Prefix:      "orders",
		RawSchema:   "raw_orders",
		OrdersTable: "orders",
		Extension:   ".csv",
		S3: S3Config{
			Region: "us-east-1",
		},
		Sink: SinkConfig{
			Driver: "postgres",
		},
		Warehouse: WarehouseConfig{
			DSN:        "orders.duckdb",
			Schema:     "raw_orders",
			OnError:    "continueOnError",
			Delimiter:  ",",
			SkipHeader: 1,
		},
		Mongo: MongoConfig{
			Database:   "orderload",
			Collection: "load_runs",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Job: "orderload",
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
		},
	}
}

// applyDerivedDefaults fills values that depend on other settings.
func (c *Config) applyDerivedDefaults() {
	c.Prefix = strings.Trim(c.Prefix, "/")
	c.ProcessedPrefix = strings.Trim(c.ProcessedPrefix, "/")
	if c.ProcessedPrefix == "" {
		c.ProcessedPrefix = c.Prefix + "/processed"
	}
	if c.Warehouse.Stage == "" && c.Bucket != "" {
		c.Warehouse.Stage = fmt.Sprintf("s3://%s/%s", c.Bucket, c.Prefix)
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("ORDERS_BUCKET environment variable not set")
	}
	if c.Prefix == "" {
		return errors.New("orders prefix must not be empty")
	}
	if c.ProcessedPrefix == c.Prefix {
		return fmt.Errorf("processed prefix %q must differ from the active prefix", c.ProcessedPrefix)
	}
	if c.RawSchema == "" || c.OrdersTable == "" {
		return errors.New("raw schema and orders table must be set")
	}
	if !strings.HasPrefix(c.Extension, ".") {
		return fmt.Errorf("extension %q must start with a dot", c.Extension)
	}
	if c.Warehouse.SkipHeader < 0 {
		return fmt.Errorf("warehouse skip header must be >= 0, got %d", c.Warehouse.SkipHeader)
	}
	if len([]rune(c.Warehouse.Delimiter)) != 1 {
		return fmt.Errorf("warehouse delimiter must be a single character, got %q", c.Warehouse.Delimiter)
	}
	if _, err := ParseOnError(c.Warehouse.OnError); err != nil {
		return fmt.Errorf("warehouse on-error: %w", err)
	}
	return nil
}

// RedactedDSN hides credentials in a connection string for logging.
func RedactedDSN(dsn string) string {
	if i := strings.Index(dsn, "://"); i >= 0 {
		rest := dsn[i+3:]
		if at := strings.LastIndex(rest, "@"); at >= 0 {
			return dsn[:i+3] + "***@" + rest[at+1:]
		}
		return dsn
	}
	if strings.Contains(dsn, "password=") {
		fields := strings.Fields(dsn)
		for i, f := range fields {
			if strings.HasPrefix(f, "password=") {
				fields[i] = "password=***"
			}
		}
		return strings.Join(fields, " ")
	}
	return dsn
}

type lookupFunc func(key string) (string, bool)

// applyEnvOverrides copies set variables into cfg. Numeric and boolean
// variables that do not parse are reported together.
func applyEnvOverrides(cfg *Config, lookup lookupFunc) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
				return
			}
			*dst = b
		}
	}

	str("ORDERS_BUCKET", &cfg.Bucket)
	str("ORDERS_PREFIX", &cfg.Prefix)
	str("ORDERS_PROCESSED_PREFIX", &cfg.ProcessedPrefix)
	str("RAW_SCHEMA", &cfg.RawSchema)
	str("ORDERS_TABLE", &cfg.OrdersTable)
	str("ORDERS_EXTENSION", &cfg.Extension)

	str("AWS_REGION", &cfg.S3.Region)
	str("S3_ENDPOINT", &cfg.S3.Endpoint)
	str("AWS_ACCESS_KEY_ID", &cfg.S3.KeyID)
	str("AWS_SECRET_ACCESS_KEY", &cfg.S3.Secret)
	boolean("S3_USE_PATH_STYLE", &cfg.S3.UsePathStyle)

	str("SINK_DRIVER", &cfg.Sink.Driver)
	str("DATABASE_URL", &cfg.Sink.DSN)

	str("WAREHOUSE_DSN", &cfg.Warehouse.DSN)
	str("WAREHOUSE_SCHEMA", &cfg.Warehouse.Schema)
	str("WAREHOUSE_STAGE", &cfg.Warehouse.Stage)
	str("WAREHOUSE_ON_ERROR", &cfg.Warehouse.OnError)
	str("WAREHOUSE_FIELD_DELIMITER", &cfg.Warehouse.Delimiter)
	integer("WAREHOUSE_SKIP_HEADER", &cfg.Warehouse.SkipHeader)

	str("MONGO_CONNECTION_STRING", &cfg.Mongo.URI)
	str("MONGO_DATABASE", &cfg.Mongo.Database)

	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)
	str("LOAD_LOG_FILE", &cfg.Logging.File)

	str("METRICS_PUSHGATEWAY_URL", &cfg.Metrics.PushgatewayURL)
	integer("STORAGE_RETRY_ATTEMPTS", &cfg.Retry.MaxAttempts)
	return errors.Join(errs...)
}
