package ingest

import (
	"errors"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/record"
)

// Result describes what the router did with a record.
type Result struct {
	Kind     Kind
	Pipeline string
	// Applied is true when the processor wrote its targets.
	Applied bool
	// Err is the swallowed processor condition, if any. It is informational and never a failure.
	Err error
}

// Stats are cumulative router counters.
type Stats struct {
	Logs     int64
	Metrics  int64
	Unknown  int64
	Applied  int64
	Missing  int64
	Mismatch int64
	Skipped  int64
}

type options struct {
	log logr.Logger
}

type Option interface {
	apply(*options)
}

type loggerOption struct {
	log logr.Logger
}

func (o loggerOption) apply(opts *options) {
	opts.log = o.log
}

// WithLogger sets the logger for swallowed extraction conditions, reported with V(1).
func WithLogger(log logr.Logger) Option {
	return loggerOption{log}
}

// Router dispatches records to the first matching rule of the table.
// Router is safe for concurrent use; the table must not be modified after NewRouter.
type Router struct {
	table Table
	log   logr.Logger

	logs     atomic.Int64
	metrics  atomic.Int64
	unknown  atomic.Int64
	applied  atomic.Int64
	missing  atomic.Int64
	mismatch atomic.Int64
	skipped  atomic.Int64
}

func NewRouter(table Table, opts ...Option) *Router {
	options := options{
		log: logr.Discard(),
	}
	for _, o := range opts {
		o.apply(&options)
	}

	return &Router{table: table, log: options.log}
}

// Table returns the rules the router dispatches on.
func (r *Router) Table() Table {
	return r.table
}

// Classify returns the first rule matching the record.
func (r *Router) Classify(rec record.Record) (Rule, bool) {
	for _, rule := range r.table {
		if rule.Matches(rec) {
			return rule, true
		}
	}

	return Rule{}, false
}

// Route classifies the record and applies the matching rule in place.
// Route never fails: records of unknown kind and records the processor cannot use pass through unchanged.
func (r *Router) Route(rec record.Record) Result {
	rule, ok := r.Classify(rec)
	if !ok {
		r.unknown.Add(1)

		return Result{Kind: KindUnknown}
	}

	switch rule.Kind {
	case KindLog:
		r.logs.Add(1)
	case KindMetric:
		r.metrics.Add(1)
	}

	res := Result{Kind: rule.Kind, Pipeline: rule.Pipeline}
	res.Err = rule.Processor.Apply(rec)
	switch {
	case res.Err == nil:
		res.Applied = true
		r.applied.Add(1)
	case errors.Is(res.Err, ErrTargetExists):
		r.skipped.Add(1)
	case errors.Is(res.Err, ErrFieldMissing):
		r.missing.Add(1)
	default:
		r.mismatch.Add(1)
	}
	if res.Err != nil {
		r.log.V(1).Info("record passed through without enrichment", "kind", rule.Kind, "pipeline", rule.Pipeline, "reason", res.Err.Error())
	}

	return res
}

func (r *Router) Stats() Stats {
	return Stats{
		Logs:     r.logs.Load(),
		Metrics:  r.metrics.Load(),
		Unknown:  r.unknown.Load(),
		Applied:  r.applied.Load(),
		Missing:  r.missing.Load(),
		Mismatch: r.mismatch.Load(),
		Skipped:  r.skipped.Load(),
	}
}
