package controller

import (
	"sort"
	"sync"
	"time"

	apis "github.com/Student-osmania/SDN-offloading/pkg/api/v1alpha1"
	"github.com/Student-osmania/SDN-offloading/pkg/decision"
)

// flowEntry is the per-flow record. mu serializes control cycles for the
// flow; the published progress copy and the counters are kept apart so
// status reads and stats replies never wait on a cycle.
type flowEntry struct {
	mu        sync.Mutex
	progress  *decision.FlowProgress
	firstSeen time.Time

	snapMu    sync.RWMutex
	published decision.FlowProgress

	statsMu sync.Mutex
	packets uint64
	bytes   uint64
}

// publish copies progress for readers. Caller holds mu.
func (e *flowEntry) publish() {
	e.snapMu.Lock()
	e.published = *e.progress
	e.snapMu.Unlock()
}

func (e *flowEntry) snapshot() decision.FlowProgress {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.published
}

func (e *flowEntry) setCounters(packets, bytes uint64) {
	e.statsMu.Lock()
	e.packets, e.bytes = packets, bytes
	e.statsMu.Unlock()
}

func (e *flowEntry) counters() (packets, bytes uint64) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.packets, e.bytes
}

// Registry is the keyed store of monitored flows.
type Registry struct {
	mu    sync.RWMutex
	flows map[apis.FlowKey]*flowEntry
}

func NewRegistry() *Registry {
	return &Registry{flows: make(map[apis.FlowKey]*flowEntry)}
}

// Register starts monitoring key and reports whether it was new.
func (r *Registry) Register(key apis.FlowKey, totalMB float64, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.flows[key]; ok {
		return false
	}
	e := &flowEntry{
		progress:  decision.NewFlowProgress(key, totalMB),
		firstSeen: now,
	}
	e.published = *e.progress
	r.flows[key] = e
	return true
}

func (r *Registry) get(key apis.FlowKey) (*flowEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.flows[key]
	return e, ok
}

// Progress returns the flow's progress as of its last completed cycle.
func (r *Registry) Progress(key apis.FlowKey) (decision.FlowProgress, bool) {
	e, ok := r.get(key)
	if !ok {
		return decision.FlowProgress{}, false
	}
	return e.snapshot(), true
}

func (r *Registry) Keys() []apis.FlowKey {
	r.mu.RLock()
	out := make([]apis.FlowKey, 0, len(r.flows))
	for k := range r.flows {
		out = append(out, k)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.flows)
}
