package etl

import (
	"context"
	"io"
)

// ObjectStore is the bucket the pipeline reads from. Keys are paths within
// a single bucket bound at construction.
type ObjectStore interface {
	ListKeys(ctx context.Context, prefix string, fn func(key string) error) error
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
	CopyObject(ctx context.Context, srcKey, dstKey string) error
	DeleteObject(ctx context.Context, key string) error
}

// Ledger is the idempotency record consulted before any object is loaded.
type Ledger interface {
	EnsureStorageExists(ctx context.Context) error
	IsLoaded(ctx context.Context, key string) (bool, error)
	AllLoadedKeys(ctx context.Context) (map[string]struct{}, error)
}

// Executor loads one object as a single unit of work: the table append and
// the ledger entry commit together or not at all.
type Executor interface {
	Ingest(ctx context.Context, key string) (Result, error)
}

// Result describes a committed load.
type Result struct {
	Rows int64
	// ArchivedTo is the processed key when the object was relocated.
	ArchivedTo string
	// ArchiveErr is set when the load committed but relocation failed.
	ArchiveErr error
}
