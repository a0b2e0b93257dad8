package etl

import (
	"fmt"
	"sort"
	"strings"
	"time"

	apperrors "github.com/BartekS5/orderload/pkg/errors"
)

type Status string

const (
	StatusLoaded  Status = "loaded"
	StatusSkipped Status = "skipped"
	StatusIgnored Status = "ignored"
	StatusFailed  Status = "failed"
)

// Outcome is the result for one listed key.
type Outcome struct {
	Key    string
	Status Status
	Reason string
	Rows   int64
	Err    error
}

type Failure struct {
	Key     string `json:"key" bson:"key"`
	Class   string `json:"class" bson:"class"`
	Message string `json:"message" bson:"message"`
}

// Summary aggregates the outcomes of one run.
type Summary struct {
	RunID      string    `json:"run_id" bson:"_id"`
	Target     string    `json:"target" bson:"target"`
	StartedAt  time.Time `json:"started_at" bson:"started_at"`
	FinishedAt time.Time `json:"finished_at" bson:"finished_at"`

	Total   int `json:"total" bson:"total"`
	Loaded  int `json:"loaded" bson:"loaded"`
	Skipped int `json:"skipped" bson:"skipped"`
	Ignored int `json:"ignored" bson:"ignored"`
	Failed  int `json:"failed" bson:"failed"`

	RowsLoaded      int64     `json:"rows_loaded" bson:"rows_loaded"`
	ArchiveFailures int       `json:"archive_failures" bson:"archive_failures"`
	Failures        []Failure `json:"failures,omitempty" bson:"failures,omitempty"`
}

// Reporter folds outcomes into a Summary. It has no side effects.
type Reporter struct {
	summary Summary
}

func NewReporter(runID, target string, startedAt time.Time) *Reporter {
	return &Reporter{summary: Summary{RunID: runID, Target: target, StartedAt: startedAt}}
}

func (r *Reporter) Record(o Outcome) {
	s := &r.summary
	s.Total++
	switch o.Status {
	case StatusLoaded:
		s.Loaded++
		s.RowsLoaded += o.Rows
		if o.Err != nil {
			s.ArchiveFailures++
		}
	case StatusSkipped:
		s.Skipped++
	case StatusIgnored:
		s.Ignored++
	case StatusFailed:
		s.Failed++
		f := Failure{Key: o.Key, Class: apperrors.Class(o.Err)}
		if o.Err != nil {
			f.Message = o.Err.Error()
		}
		s.Failures = append(s.Failures, f)
	}
}

// Summary returns the aggregate as of finishedAt.
func (r *Reporter) Summary(finishedAt time.Time) Summary {
	s := r.summary
	s.FinishedAt = finishedAt
	s.Failures = append([]Failure(nil), r.summary.Failures...)
	return s
}

// FailuresByClass counts failures per error class.
func (s Summary) FailuresByClass() map[string]int {
	out := make(map[string]int)
	for _, f := range s.Failures {
		out[f.Class]++
	}
	return out
}

// Line is the human-readable one-line result of the run.
func (s Summary) Line() string {
	var b strings.Builder
	fmt.Fprintf(&b, "load complete: %d new file(s) ingested out of %d found (%d skipped, %d ignored, %d failed)",
		s.Loaded, s.Total, s.Skipped, s.Ignored, s.Failed)
	if by := s.FailuresByClass(); len(by) > 0 {
		classes := make([]string, 0, len(by))
		for c := range by {
			classes = append(classes, c)
		}
		sort.Strings(classes)
		parts := make([]string, len(classes))
		for i, c := range classes {
			parts[i] = fmt.Sprintf("%s=%d", c, by[c])
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(parts, ", "))
	}
	if s.ArchiveFailures > 0 {
		fmt.Fprintf(&b, "; %d archive failure(s)", s.ArchiveFailures)
	}
	if s.Loaded == 0 {
		b.WriteString("\n  (no new files to process)")
	}
	return b.String()
}
