package etl

import (
	"context"

	apperrors "github.com/BartekS5/orderload/pkg/errors"
)

// Lister enumerates candidate keys under one prefix. Each call starts a new
// pagination, so a failed run can simply be retried as a whole.
type Lister struct {
	Store  ObjectStore
	Prefix string
}

func NewLister(store ObjectStore, prefix string) *Lister {
	return &Lister{Store: store, Prefix: prefix}
}

// Walk calls fn for each key as pages arrive.
func (l *Lister) Walk(ctx context.Context, fn func(key string) error) error {
	if err := l.Store.ListKeys(ctx, l.Prefix, fn); err != nil {
		return apperrors.Wrap(apperrors.ErrStorageUnavailable, "list "+l.Prefix, err)
	}
	return nil
}

// List returns the complete key set as of the start of pagination.
func (l *Lister) List(ctx context.Context) ([]string, error) {
	var keys []string
	err := l.Walk(ctx, func(key string) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}
