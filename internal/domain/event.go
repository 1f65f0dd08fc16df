package domain

import (
	"encoding/json"
	"time"
)

// Event is one security event or alert exactly as the remote API returned
// it. The engine treats the record as opaque: Raw keeps the original bytes
// (and key order) for serialization, Observed carries the event-intrinsic
// timestamp the adapter extracted for cursor advancement.
type Event struct {
	Raw      json.RawMessage
	Observed time.Time
}

// Fields decodes the raw record into a field map for formatters that need
// individual values (CEF). JSON output never calls this; it re-emits Raw.
func (e Event) Fields() (map[string]any, error) {
	fields := make(map[string]any)
	if err := json.Unmarshal(e.Raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// Page is one page of query results plus the continuation token. An empty
// NextToken (or an empty Events slice) terminates the page loop.
type Page struct {
	Events    []Event
	NextToken string
}

// Filter is a single search predicate, passed through to the remote query
// untouched. Construction from CLI flags happens outside the engine.
type Filter struct {
	Term     string
	Operator string
	Value    string
}

// Query is the time-bounded, filtered search one extraction run executes.
// Begin is inclusive (on-or-after); a zero End means unbounded.
type Query struct {
	Begin   time.Time
	End     time.Time
	Filters []Filter
}

// RunResult summarizes one extraction run.
type RunResult struct {
	TotalEvents int
	HadErrors   bool
}

// NoResults reports a run that completed cleanly without emitting any
// events, distinct from a run that errored.
func (r RunResult) NoResults() bool {
	return r.TotalEvents == 0 && !r.HadErrors
}
