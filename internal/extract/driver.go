package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/donnguyen19/code42cli/internal/domain"
	"github.com/donnguyen19/code42cli/internal/observability"
)

// LookBack is how far into the past --begin may reach. Windows older than
// this are rejected outright, never clamped.
const LookBack = 90 * 24 * time.Hour

// cursorStep is the boundary advance past the newest event seen in a page.
// Event timestamps are tracked at millisecond resolution and the remote
// query uses on-or-after semantics, so advancing by exactly one
// millisecond neither re-fetches nor drops the boundary event.
const cursorStep = time.Millisecond

// Source is the remote query capability. The engine treats pagination
// tokens and filter predicates as opaque.
type Source interface {
	Fetch(ctx context.Context, query domain.Query, pageToken string) (domain.Page, error)
}

// PageHandler delivers one page of records to the configured sinks and
// reports how many records were fully delivered.
type PageHandler interface {
	Handle(ctx context.Context, page domain.Page) (int, error)
}

// CursorStore is the slice of the checkpoint store the driver needs.
type CursorStore interface {
	Get(ctx context.Context, name string) (string, bool, error)
	Replace(ctx context.Context, name, value string) error
}

// Params configures one extraction run.
type Params struct {
	Begin          time.Time
	End            time.Time
	Filters        []domain.Filter
	UseCheckpoint  bool // resume from the stored cursor and record progress
	RecordCursor   bool // record progress without resuming
	CheckpointName string
}

// Driver orchestrates one extraction run: window resolution, the
// sequential page loop, page delivery, and cursor advancement. The cursor
// moves only after a page has been delivered to every sink, so a crashed
// or failed run re-fetches at most the one unconfirmed page
// (at-least-once delivery).
type Driver struct {
	source  Source
	handler PageHandler
	store   CursorStore
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
	onError func(error)
}

// NewDriver wires a Driver. A nil clock means real time; a nil onError
// means errors are only logged.
func NewDriver(
	source Source,
	handler PageHandler,
	store CursorStore,
	clock clockwork.Clock,
	logger *slog.Logger,
	metrics *observability.Metrics,
	onError func(error),
) *Driver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if onError == nil {
		onError = func(error) {}
	}
	return &Driver{
		source:  source,
		handler: handler,
		store:   store,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
		onError: onError,
	}
}

// Extract runs one full extraction. Exactly one run per checkpoint name
// may be active at a time; that discipline belongs to the operator, not
// the store.
func (d *Driver) Extract(ctx context.Context, p Params) (domain.RunResult, error) {
	start := d.clock.Now()

	query, err := d.resolveWindow(ctx, p)
	if err != nil {
		return d.fail(domain.RunResult{}, err)
	}

	d.logger.Info("extraction started",
		"begin", query.Begin.Format(time.RFC3339Nano),
		"end", endForLog(query.End),
		"checkpoint", p.CheckpointName,
		"use_checkpoint", p.UseCheckpoint,
	)

	var result domain.RunResult
	token := ""
	for {
		page, err := d.source.Fetch(ctx, query, token)
		if err != nil {
			return d.fail(result, err)
		}
		if len(page.Events) == 0 {
			break
		}
		d.metrics.PagesFetched.Inc()

		delivered, err := d.handler.Handle(ctx, page)
		result.TotalEvents += delivered
		if err != nil {
			// The failed page is not confirmed: the cursor stays put and a
			// retried run re-fetches and re-emits it in the same order.
			return d.fail(result, err)
		}

		if p.UseCheckpoint || p.RecordCursor {
			if err := d.advanceCursor(ctx, p.CheckpointName, page); err != nil {
				return d.fail(result, err)
			}
		}

		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}

	d.metrics.RunDuration.Observe(d.clock.Since(start).Seconds())

	if result.NoResults() {
		d.metrics.RunsTotal.WithLabelValues("no_results").Inc()
		d.logger.Info("extraction finished with no results")
		return result, nil
	}

	d.metrics.RunsTotal.WithLabelValues("ok").Inc()
	d.logger.Info("extraction finished", "total_events", result.TotalEvents)
	return result, nil
}

// resolveWindow computes the effective query window. A stored cursor wins
// verbatim over any caller-supplied begin; otherwise the begin (defaulting
// to now) must fall within the look-back boundary.
func (d *Driver) resolveWindow(ctx context.Context, p Params) (domain.Query, error) {
	query := domain.Query{End: p.End, Filters: p.Filters}

	if p.UseCheckpoint {
		value, found, err := d.store.Get(ctx, p.CheckpointName)
		if err != nil {
			return query, err
		}
		if found {
			ms, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return query, fmt.Errorf("%w: cursor %q is not an epoch-millisecond value", domain.ErrStoreCorrupt, value)
			}
			query.Begin = time.UnixMilli(ms).UTC()
			return query, nil
		}
	}

	now := d.clock.Now().UTC()
	begin := p.Begin
	if begin.IsZero() {
		begin = now
	}
	if begin.Before(now.Add(-LookBack)) {
		return query, domain.Validationf("begin time %s is outside the %d-day look-back boundary",
			begin.Format(time.RFC3339), int(LookBack.Hours()/24))
	}
	if !p.End.IsZero() && p.End.Before(begin) {
		return query, domain.Validationf("end time precedes begin time")
	}

	query.Begin = begin
	return query, nil
}

// advanceCursor persists the new checkpoint: the maximum event-intrinsic
// timestamp in the confirmed page, stepped forward one millisecond.
func (d *Driver) advanceCursor(ctx context.Context, name string, page domain.Page) error {
	var max time.Time
	for _, event := range page.Events {
		if event.Observed.After(max) {
			max = event.Observed
		}
	}
	if max.IsZero() {
		return nil
	}

	next := max.Add(cursorStep)
	value := strconv.FormatInt(next.UnixMilli(), 10)
	if err := d.store.Replace(ctx, name, value); err != nil {
		return err
	}
	d.metrics.CheckpointTimestamp.Set(float64(next.UnixMilli()))
	return nil
}

func (d *Driver) fail(result domain.RunResult, err error) (domain.RunResult, error) {
	result.HadErrors = true
	d.metrics.RunsTotal.WithLabelValues("error").Inc()
	d.onError(err)
	d.logger.Error("extraction aborted", "error", err, "total_events", result.TotalEvents)
	return result, err
}

func endForLog(end time.Time) string {
	if end.IsZero() {
		return "unbounded"
	}
	return end.Format(time.RFC3339Nano)
}
