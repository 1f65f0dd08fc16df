package http_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/donnguyen19/code42cli/internal/adapter/http"
	"github.com/donnguyen19/code42cli/internal/domain"
)

type mockPoller struct {
	ready  bool
	status domain.WatchStatus
}

func (m *mockPoller) Ready() bool                { return m.ready }
func (m *mockPoller) Status() domain.WatchStatus { return m.status }

func newTestServer(poller *mockPoller) *httpadapter.Server {
	return httpadapter.NewServer(":0", poller, poller, slog.Default())
}

func TestHealthzReturns200(t *testing.T) {
	srv := newTestServer(&mockPoller{ready: true})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	srv := newTestServer(&mockPoller{ready: true})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	srv := newTestServer(&mockPoller{ready: false})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatuszReportsRunSummary(t *testing.T) {
	poller := &mockPoller{
		ready: true,
		status: domain.WatchStatus{
			RunID:       "run-1",
			Runs:        3,
			TotalEvents: 42,
			LastRunAt:   time.Date(2026, time.May, 10, 12, 0, 0, 0, time.UTC),
			LastEvents:  7,
		},
	}
	srv := newTestServer(poller)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/statusz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body domain.WatchStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, poller.status, body)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(&mockPoller{ready: true})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
