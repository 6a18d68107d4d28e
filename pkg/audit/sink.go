// Package audit persists decision records and flowlet events as an
// append-only stream. Nothing in the control path reads it back.
package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"

	apis "github.com/Student-osmania/SDN-offloading/pkg/api/v1alpha1"
)

type Kind string

const (
	KindDecision Kind = "decision"
	KindFlowlet  Kind = "flowlet"
)

// Entry wraps exactly one of Decision or Flowlet.
type Entry struct {
	Kind      Kind                 `json:"kind"`
	Timestamp time.Time            `json:"timestamp"`
	Decision  *apis.DecisionRecord `json:"decision,omitempty"`
	Flowlet   *apis.FlowletEvent   `json:"flowlet,omitempty"`
}

func DecisionEntry(r apis.DecisionRecord) Entry {
	return Entry{Kind: KindDecision, Timestamp: r.Timestamp, Decision: &r}
}

func FlowletEntry(e apis.FlowletEvent) Entry {
	return Entry{Kind: KindFlowlet, Timestamp: e.Timestamp, Flowlet: &e}
}

// ID returns the id of the wrapped record.
func (e Entry) ID() string {
	switch {
	case e.Decision != nil:
		return e.Decision.ID
	case e.Flowlet != nil:
		return e.Flowlet.ID
	}
	return ""
}

// Flow returns the flow the wrapped record belongs to.
func (e Entry) Flow() apis.FlowKey {
	switch {
	case e.Decision != nil:
		return e.Decision.Flow
	case e.Flowlet != nil:
		return e.Flowlet.Flow
	}
	return apis.FlowKey{}
}

// Sink receives audit entries. Implementations must be safe for concurrent use.
type Sink interface {
	Record(ctx context.Context, e Entry) error
	Close() error
}

// Memory keeps entries in process, for tests and the status endpoint.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

func (m *Memory) Decisions() []apis.DecisionRecord {
	var out []apis.DecisionRecord
	for _, e := range m.Entries() {
		if e.Decision != nil {
			out = append(out, *e.Decision)
		}
	}
	return out
}

func (m *Memory) Flowlets() []apis.FlowletEvent {
	var out []apis.FlowletEvent
	for _, e := range m.Entries() {
		if e.Flowlet != nil {
			out = append(out, *e.Flowlet)
		}
	}
	return out
}

// Multi fans an entry out to every sink and reports all failures.
type Multi []Sink

func (m Multi) Record(ctx context.Context, e Entry) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Record(ctx, e))
	}
	return err
}

func (m Multi) Close() error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Close())
	}
	return err
}
