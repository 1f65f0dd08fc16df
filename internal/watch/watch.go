package watch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/donnguyen19/code42cli/internal/domain"
	"github.com/donnguyen19/code42cli/internal/observability"
)

// Runner executes one checkpointed extraction run.
type Runner func(ctx context.Context) (domain.RunResult, error)

// Watcher re-runs a checkpointed extraction on a fixed interval. A failed
// run does not stop the loop: the cursor never advanced past the failure,
// so the next tick picks up exactly where the last confirmed page ended.
type Watcher struct {
	run      Runner
	interval time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu     sync.Mutex
	ready  bool
	status domain.WatchStatus
}

// New creates a Watcher polling with the given interval.
func New(run Runner, interval time.Duration, runID string, logger *slog.Logger, metrics *observability.Metrics) *Watcher {
	return &Watcher{
		run:      run,
		interval: interval,
		logger:   logger,
		metrics:  metrics,
		status:   domain.WatchStatus{RunID: runID},
	}
}

// Ready reports whether at least one extraction has completed cleanly.
func (w *Watcher) Ready() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ready
}

// Status returns the cumulative run summary.
func (w *Watcher) Status() domain.WatchStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Run polls until the context is cancelled. The first run happens
// immediately; subsequent runs follow the ticker.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watch started", "interval", w.interval)
	w.metrics.WatchActive.Set(1)
	defer w.metrics.WatchActive.Set(0)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.poll(ctx)

		select {
		case <-ctx.Done():
			w.logger.Info("watch stopping", "reason", ctx.Err())
			return nil
		case <-ticker.C:
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	result, err := w.run(ctx)
	if ctx.Err() != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.status.Runs++
	w.status.LastRunAt = time.Now().UTC()
	w.status.LastEvents = result.TotalEvents
	w.status.TotalEvents += result.TotalEvents

	if err != nil {
		w.status.LastError = err.Error()
		w.logger.Error("poll failed, will retry from last checkpoint", "error", err)
		return
	}

	w.status.LastError = ""
	w.ready = true
	if result.TotalEvents > 0 {
		w.logger.Info("poll finished", "events", result.TotalEvents)
	}
}
