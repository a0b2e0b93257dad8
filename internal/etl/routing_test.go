package etl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/orderload/internal/storage"
	apperrors "github.com/BartekS5/orderload/pkg/errors"
)

func TestValidatorCheck(t *testing.T) {
	v := NewValidator(".csv", "orders/processed/")
	tests := []struct {
		key    string
		ok     bool
		reason string
	}{
		{"orders/a.csv", true, ""},
		{"orders/2026/10/a.CSV", true, ""},
		{"orders/", false, ReasonPlaceholder},
		{"orders/2026/", false, ReasonPlaceholder},
		{"orders/a.json", false, ReasonFormat},
		{"orders/a.csv.gz", false, ReasonFormat},
		{"orders/processed/a.csv", false, ReasonAlreadyArchived},
		{"orders/processed_extra/a.csv", true, ""},
	}
	for _, tt := range tests {
		reason, ok := v.Check(tt.key)
		assert.Equal(t, tt.ok, ok, tt.key)
		assert.Equal(t, tt.reason, reason, tt.key)
	}
}

func TestListerWalksEveryPage(t *testing.T) {
	store := storage.NewMemStore(2)
	for _, k := range []string{"orders/a.csv", "orders/b.csv", "orders/c.csv", "orders/d.csv", "orders/e.csv", "other/x.csv"} {
		store.Put(k, "x")
	}

	keys, err := NewLister(store, testPrefix).List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"orders/a.csv", "orders/b.csv", "orders/c.csv", "orders/d.csv", "orders/e.csv"}, keys)
	assert.Equal(t, 3, store.Pages)
}

func TestListerEmptyPrefix(t *testing.T) {
	keys, err := NewLister(storage.NewMemStore(0), testPrefix).List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestListerFailureIsStorageUnavailable(t *testing.T) {
	store := storage.NewMemStore(0)
	store.ListErr = errors.New("access denied")
	_, err := NewLister(store, testPrefix).List(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
}

func TestArchiverMovesObject(t *testing.T) {
	store := storage.NewMemStore(0)
	store.Put("orders/2026/a.csv", "body")
	a := NewArchiver(store, "orders", "orders/processed")

	dst, err := a.Archive(context.Background(), "orders/2026/a.csv")
	require.NoError(t, err)
	assert.Equal(t, "orders/processed/2026/a.csv", dst)
	assert.Equal(t, []string{"orders/processed/2026/a.csv"}, store.Keys())

	body, ok := store.Object(dst)
	require.True(t, ok)
	assert.Equal(t, "body", string(body))
}

func TestArchiverDeleteFailureLeavesBothCopies(t *testing.T) {
	store := storage.NewMemStore(0)
	store.Put("orders/a.csv", "body")
	store.DeleteErr["orders/a.csv"] = errors.New("denied")
	a := NewArchiver(store, "orders", "archive")

	dst, err := a.Archive(context.Background(), "orders/a.csv")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
	assert.Equal(t, "archive/a.csv", dst)
	assert.Equal(t, []string{"archive/a.csv", "orders/a.csv"}, store.Keys())
}

func TestArchiverCopyFailureKeepsSource(t *testing.T) {
	store := storage.NewMemStore(0)
	store.Put("orders/a.csv", "body")
	store.CopyErrs["orders/a.csv"] = errors.New("denied")

	_, err := NewArchiver(store, "orders", "archive").Archive(context.Background(), "orders/a.csv")
	require.Error(t, err)
	assert.Equal(t, []string{"orders/a.csv"}, store.Keys())
}

func TestSummaryLine(t *testing.T) {
	start := time.Date(2026, 10, 18, 6, 0, 0, 0, time.UTC)
	r := NewReporter("run-1", "postgres", start)
	r.Record(Outcome{Key: "orders/a.csv", Status: StatusLoaded, Rows: 10})
	r.Record(Outcome{Key: "orders/b.csv", Status: StatusSkipped, Reason: "already loaded"})
	r.Record(Outcome{Key: "orders/", Status: StatusIgnored, Reason: ReasonPlaceholder})
	r.Record(Outcome{Key: "orders/c.csv", Status: StatusFailed, Err: apperrors.New(apperrors.ErrMalformedSource, "read header", "object is empty")})
	r.Record(Outcome{Key: "orders/d.csv", Status: StatusFailed, Err: apperrors.New(apperrors.ErrMalformedSource, "read row 2", "bad")})

	s := r.Summary(start.Add(time.Minute))
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, int64(10), s.RowsLoaded)
	assert.Equal(t, start.Add(time.Minute), s.FinishedAt)
	assert.Equal(t,
		"load complete: 1 new file(s) ingested out of 5 found (1 skipped, 1 ignored, 2 failed) [MalformedSource=2]",
		s.Line())
}

func TestSummaryLineNothingLoaded(t *testing.T) {
	s := NewReporter("run-2", "warehouse", time.Now()).Summary(time.Now())
	assert.Equal(t,
		"load complete: 0 new file(s) ingested out of 0 found (0 skipped, 0 ignored, 0 failed)\n  (no new files to process)",
		s.Line())
}
