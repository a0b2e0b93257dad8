package etl

import (
	"context"
	"path"
	"strings"

	apperrors "github.com/BartekS5/orderload/pkg/errors"
)

// Archiver relocates loaded objects from the active prefix into the
// processed namespace of the same bucket.
//
// Relocation is copy then delete. A crash or delete failure in between
// leaves the object in both places; the ledger entry written before
// archival keeps it from being loaded again.
type Archiver struct {
	Store           ObjectStore
	Prefix          string
	ProcessedPrefix string
}

func NewArchiver(store ObjectStore, prefix, processedPrefix string) *Archiver {
	return &Archiver{
		Store:           store,
		Prefix:          strings.Trim(prefix, "/"),
		ProcessedPrefix: strings.Trim(processedPrefix, "/"),
	}
}

// Destination maps an active key to its processed key, keeping the path
// below the active prefix.
func (a *Archiver) Destination(key string) string {
	return path.Join(a.ProcessedPrefix, relativeKey(a.Prefix, key))
}

// Archive copies key to its destination, then deletes the original.
func (a *Archiver) Archive(ctx context.Context, key string) (string, error) {
	dst := a.Destination(key)
	if err := a.Store.CopyObject(ctx, key, dst); err != nil {
		return "", apperrors.Wrap(apperrors.ErrStorageUnavailable, "archive copy "+key, err)
	}
	if err := a.Store.DeleteObject(ctx, key); err != nil {
		return dst, apperrors.Wrap(apperrors.ErrStorageUnavailable, "archive delete "+key, err)
	}
	return dst, nil
}

// relativeKey strips prefix from key. Keys outside prefix keep their base
// name only.
func relativeKey(prefix, key string) string {
	if prefix != "" && strings.HasPrefix(key, prefix+"/") {
		return strings.TrimPrefix(key, prefix+"/")
	}
	return path.Base(key)
}
