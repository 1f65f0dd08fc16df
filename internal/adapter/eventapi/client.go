package eventapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/donnguyen19/code42cli/internal/domain"
)

// Service describes one telemetry endpoint of the event API. The cursor
// field is the event-intrinsic timestamp the engine checkpoints on; it is
// also the sort key, so pages arrive in ascending cursor order.
type Service struct {
	Name        string // checkpoint scope name
	Path        string
	RecordsKey  string
	CursorField string
}

var (
	// FileEvents is the file-exfiltration event service.
	FileEvents = Service{
		Name:        "file-events",
		Path:        "/forensic-search/queryservice/api/v1/fileevent",
		RecordsKey:  "fileEvents",
		CursorField: "insertionTimestamp",
	}

	// Alerts is the security alert service.
	Alerts = Service{
		Name:        "alerts",
		Path:        "/svc/api/v1/query-alerts",
		RecordsKey:  "alerts",
		CursorField: "createdAt",
	}
)

// ClientConfig carries the already-validated settings for one API client.
type ClientConfig struct {
	BaseURL         string
	Token           string
	PageSize        int
	Timeout         time.Duration
	RateLimit       float64 // requests per second, 0 = unlimited
	OrQuery         bool    // combine filter groups with OR instead of AND
	IgnoreSSLErrors bool
	MaxRetryElapsed time.Duration
}

// Client queries one service of the event API with token pagination,
// transient-failure retry, and request rate limiting. It implements the
// engine's Source capability.
type Client struct {
	cfg        ClientConfig
	service    Service
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates an authenticated client for the given service.
func NewClient(cfg ClientConfig, service Service, logger *slog.Logger) *Client {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetryElapsed <= 0 {
		cfg.MaxRetryElapsed = 30 * time.Second
	}

	transport := http.DefaultTransport
	if cfg.IgnoreSSLErrors {
		logger.Warn("TLS certificate verification disabled", "base_url", cfg.BaseURL)
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		}
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	return &Client{
		cfg:        cfg,
		service:    service,
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

// Fetch retrieves one page of results for the query. Transient failures
// (network errors, 429, 5xx) are retried with exponential backoff; once
// retries are exhausted the error surfaces as a TransportError and the
// driver aborts without advancing the cursor.
func (c *Client) Fetch(ctx context.Context, query domain.Query, pageToken string) (domain.Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.Page{}, &domain.TransportError{Op: "rate limit wait", Err: err}
	}

	payload, err := json.Marshal(c.buildPayload(query, pageToken))
	if err != nil {
		return domain.Page{}, fmt.Errorf("marshal query: %w", err)
	}

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+c.service.Path, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Debug("query attempt failed", "service", c.service.Name, "error", err)
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			body = data
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			c.logger.Debug("query attempt rejected, will retry", "service", c.service.Name, "status", resp.StatusCode)
			return fmt.Errorf("status %d: %s", resp.StatusCode, data)
		default:
			return backoff.Permanent(fmt.Errorf("status %d: %s", resp.StatusCode, data))
		}
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = c.cfg.MaxRetryElapsed
	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		return domain.Page{}, &domain.TransportError{Op: "query " + c.service.Name, Err: err}
	}

	return c.decodePage(body)
}

// buildPayload compiles the query window and filters into the API's
// filter-group JSON. Results are sorted ascending on the cursor field so
// the checkpoint always moves forward.
func (c *Client) buildPayload(query domain.Query, pageToken string) map[string]any {
	rangeFilters := []map[string]string{{
		"term":     c.service.CursorField,
		"operator": "ON_OR_AFTER",
		"value":    query.Begin.UTC().Format(timestampLayout),
	}}
	if !query.End.IsZero() {
		rangeFilters = append(rangeFilters, map[string]string{
			"term":     c.service.CursorField,
			"operator": "ON_OR_BEFORE",
			"value":    query.End.UTC().Format(timestampLayout),
		})
	}
	groups := []map[string]any{{
		"filterClause": "AND",
		"filters":      rangeFilters,
	}}

	if len(query.Filters) > 0 {
		clause := "AND"
		if c.cfg.OrQuery {
			clause = "OR"
		}
		filters := make([]map[string]string, 0, len(query.Filters))
		for _, f := range query.Filters {
			filters = append(filters, map[string]string{
				"term":     f.Term,
				"operator": f.Operator,
				"value":    f.Value,
			})
		}
		groups = append(groups, map[string]any{
			"filterClause": clause,
			"filters":      filters,
		})
	}

	payload := map[string]any{
		"groups":      groups,
		"groupClause": "AND",
		"pgSize":      c.cfg.PageSize,
		"srtKey":      c.service.CursorField,
		"srtDir":      "asc",
	}
	if pageToken != "" {
		payload["pgToken"] = pageToken
	}
	return payload
}

func (c *Client) decodePage(body []byte) (domain.Page, error) {
	var envelope struct {
		FileEvents  []json.RawMessage `json:"fileEvents"`
		Alerts      []json.RawMessage `json:"alerts"`
		NextPgToken string            `json:"nextPgToken"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return domain.Page{}, &domain.TransportError{Op: "decode " + c.service.Name + " page", Err: err}
	}

	records := envelope.FileEvents
	if c.service.RecordsKey == Alerts.RecordsKey {
		records = envelope.Alerts
	}

	page := domain.Page{NextToken: envelope.NextPgToken}
	for _, raw := range records {
		observed, err := c.observedTime(raw)
		if err != nil {
			return domain.Page{}, fmt.Errorf("record missing usable %s: %w", c.service.CursorField, err)
		}
		page.Events = append(page.Events, domain.Event{Raw: raw, Observed: observed})
	}
	return page, nil
}

// timestampLayout is the API's wire format for timestamps: RFC 3339 at
// millisecond resolution, matching the engine's cursor resolution.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// observedTime extracts the cursor field from a raw record. The API emits
// it as an RFC 3339 string on most services and as epoch milliseconds on
// older ones; both are accepted.
func (c *Client) observedTime(raw json.RawMessage) (time.Time, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return time.Time{}, err
	}

	field, ok := probe[c.service.CursorField]
	if !ok {
		return time.Time{}, fmt.Errorf("field not present")
	}

	var asString string
	if err := json.Unmarshal(field, &asString); err == nil {
		if ts, err := time.Parse(time.RFC3339Nano, asString); err == nil {
			return ts.UTC(), nil
		}
		return time.Time{}, fmt.Errorf("unparsable timestamp %q", asString)
	}

	var asMillis int64
	if err := json.Unmarshal(field, &asMillis); err == nil {
		return time.UnixMilli(asMillis).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("unsupported timestamp encoding %s", field)
}
