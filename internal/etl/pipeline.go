package etl

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/BartekS5/orderload/pkg/errors"
	"github.com/BartekS5/orderload/pkg/logger"
	"github.com/BartekS5/orderload/pkg/metrics"
)

// Pipeline runs one incremental load: list, filter against the ledger,
// ingest each new object in its own unit of work, report.
type Pipeline struct {
	Lister    *Lister
	Ledger    Ledger
	Executor  Executor
	Validator *Validator
	Target    string
	DryRun    bool

	// Metrics is optional.
	Metrics *metrics.RunMetrics

	now func() time.Time
}

func NewPipeline(lister *Lister, l Ledger, exec Executor, validator *Validator, target string) *Pipeline {
	return &Pipeline{
		Lister:    lister,
		Ledger:    l,
		Executor:  exec,
		Validator: validator,
		Target:    target,
		now:       time.Now,
	}
}

// Run processes every eligible key sequentially. Only run-level failures
// (ledger bootstrap, listing, reading the ledger) are returned as errors;
// per-object failures are recorded in the summary and the run continues.
//
// Cancellation is checked between objects. An object whose unit of work has
// started runs to commit or rollback.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	if p.now == nil {
		p.now = time.Now
	}
	log := logger.WithComponent("pipeline")
	runID := uuid.NewString()
	log = log.With("run_id", runID, "target", p.Target)
	rep := NewReporter(runID, p.Target, p.now())

	if err := p.Ledger.EnsureStorageExists(ctx); err != nil {
		return nil, err
	}

	keys, err := p.Lister.List(ctx)
	if err != nil {
		log.Error("listing failed, aborting run", "prefix", p.Lister.Prefix, "error", err)
		return nil, err
	}
	log.Info("listed objects", "prefix", p.Lister.Prefix, "count", len(keys))

	loaded, err := p.Ledger.AllLoadedKeys(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConnectionFailure, "read ledger", err)
	}

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			s := rep.Summary(p.now())
			return &s, err
		}
		o := p.process(ctx, log, key, loaded)
		rep.Record(o)
		if o.Status == StatusLoaded {
			loaded[key] = struct{}{}
		}
	}

	s := rep.Summary(p.now())
	if p.Metrics != nil {
		p.Metrics.ObserveRun(s.Loaded, s.Failed, s.FinishedAt)
	}
	log.Info("run finished", "total", s.Total, "loaded", s.Loaded, "skipped", s.Skipped,
		"ignored", s.Ignored, "failed", s.Failed, "rows", s.RowsLoaded)
	return &s, nil
}

func (p *Pipeline) process(ctx context.Context, log *slog.Logger, key string, loaded map[string]struct{}) Outcome {
	if reason, ok := p.Validator.Check(key); !ok {
		log.Debug("ignoring key", "key", key, "reason", reason)
		return p.observe(Outcome{Key: key, Status: StatusIgnored, Reason: reason}, 0)
	}
	if _, done := loaded[key]; done {
		log.Debug("skipping already loaded", "key", key)
		return p.observe(Outcome{Key: key, Status: StatusSkipped, Reason: "already loaded"}, 0)
	}
	if p.DryRun {
		log.Info("dry run: would load", "key", key)
		return p.observe(Outcome{Key: key, Status: StatusSkipped, Reason: "dry run"}, 0)
	}

	start := time.Now()
	res, err := p.Executor.Ingest(context.WithoutCancel(ctx), key)
	elapsed := time.Since(start)
	if err != nil {
		class := apperrors.Class(err)
		if errors.Is(err, apperrors.ErrDuplicateKey) {
			log.Error("ledger already holds key; check the candidate filter", "key", key, "class", class, "error", err)
		} else {
			log.Warn("load failed, rolled back", "key", key, "class", class, "error", err)
		}
		return p.observe(Outcome{Key: key, Status: StatusFailed, Err: err}, elapsed)
	}

	log.Info("loaded", "key", key, "rows", res.Rows, "duration", elapsed)
	if res.ArchiveErr != nil {
		log.Warn("loaded but not archived; ledger entry prevents reload", "key", key, "error", res.ArchiveErr)
	} else if res.ArchivedTo != "" {
		log.Info("archived", "key", key, "to", res.ArchivedTo)
	}
	return p.observe(Outcome{Key: key, Status: StatusLoaded, Rows: res.Rows, Err: res.ArchiveErr}, elapsed)
}

func (p *Pipeline) observe(o Outcome, elapsed time.Duration) Outcome {
	if p.Metrics != nil {
		class := ""
		if o.Status == StatusFailed {
			class = apperrors.Class(o.Err)
		}
		p.Metrics.ObserveObject(string(o.Status), class, o.Rows, elapsed)
	}
	return o
}
