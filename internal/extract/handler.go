package extract

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/donnguyen19/code42cli/internal/domain"
	"github.com/donnguyen19/code42cli/internal/format"
	"github.com/donnguyen19/code42cli/internal/observability"
	"github.com/donnguyen19/code42cli/internal/sink"
)

// Handler delivers one page of results: each record is formatted once and
// written to every configured sink, in the order the API returned the
// records and in configuration order across sinks.
type Handler struct {
	formatter format.Formatter
	sinks     []sink.Sink
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewHandler creates a Handler writing through the given formatter to the
// given sinks.
func NewHandler(f format.Formatter, sinks []sink.Sink, logger *slog.Logger, metrics *observability.Metrics) *Handler {
	return &Handler{formatter: f, sinks: sinks, logger: logger, metrics: metrics}
}

// Handle processes one page and returns the number of records delivered to
// all sinks. The first failure fails the whole page immediately and stops
// further records: the driver must never advance the cursor past a
// partially written page.
func (h *Handler) Handle(ctx context.Context, page domain.Page) (int, error) {
	delivered := 0
	for _, event := range page.Events {
		line, err := h.formatter.Format(event)
		if err != nil {
			return delivered, fmt.Errorf("format record: %w", err)
		}
		for _, s := range h.sinks {
			if err := s.Write(ctx, line); err != nil {
				h.metrics.SinkWriteErrors.Inc()
				return delivered, err
			}
		}
		delivered++
		h.metrics.EventsEmitted.Inc()
	}
	return delivered, nil
}
