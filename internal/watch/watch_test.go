package watch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donnguyen19/code42cli/internal/domain"
	"github.com/donnguyen19/code42cli/internal/observability"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWatcher_PollsUntilCancelled(t *testing.T) {
	var runs atomic.Int32
	runner := func(ctx context.Context) (domain.RunResult, error) {
		runs.Add(1)
		return domain.RunResult{TotalEvents: 2}, nil
	}

	w := New(runner, 10*time.Millisecond, "run-1", discardLogger(), observability.NewMetricsForTesting())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	status := w.Status()
	assert.Equal(t, "run-1", status.RunID)
	assert.GreaterOrEqual(t, status.Runs, 2)
	assert.Equal(t, 2, status.LastEvents)
	assert.Equal(t, status.Runs*2, status.TotalEvents)
	assert.True(t, w.Ready())
}

func TestWatcher_FailedPollKeepsPollingAndStaysNotReady(t *testing.T) {
	var runs atomic.Int32
	runner := func(ctx context.Context) (domain.RunResult, error) {
		runs.Add(1)
		return domain.RunResult{HadErrors: true}, errors.New("transient API failure")
	}

	w := New(runner, 10*time.Millisecond, "run-2", discardLogger(), observability.NewMetricsForTesting())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.False(t, w.Ready())
	assert.Equal(t, "transient API failure", w.Status().LastError)
}

func TestWatcher_RecoveryClearsLastError(t *testing.T) {
	var runs atomic.Int32
	runner := func(ctx context.Context) (domain.RunResult, error) {
		if runs.Add(1) == 1 {
			return domain.RunResult{HadErrors: true}, errors.New("boom")
		}
		return domain.RunResult{}, nil
	}

	w := New(runner, 10*time.Millisecond, "run-3", discardLogger(), observability.NewMetricsForTesting())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return w.Ready() }, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Empty(t, w.Status().LastError)
}
