package dataplane

import (
	"context"
	"sync"
)

type memorySwitch struct {
	groups map[uint32]Group
	flows  map[Match]FlowRule
	stats  map[Match]FlowStat
}

// Memory is an in-process substrate used by tests and the dry-run mode. It
// enforces add-vs-modify semantics like a real switch.
type Memory struct {
	mu       sync.Mutex
	switches map[uint64]*memorySwitch
	calls    map[string]int
	failures map[string]error
}

func NewMemory() *Memory {
	return &Memory{
		switches: make(map[uint64]*memorySwitch),
		calls:    make(map[string]int),
		failures: make(map[string]error),
	}
}

func (m *Memory) Name() string { return "memory" }

// FailNext makes the next call of op ("add_group", "modify_group",
// "install_flow", "delete_flow", "flow_stats", "groups") return err.
func (m *Memory) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = err
}

// Calls returns how many times op was attempted.
func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Group returns the installed group, for inspection.
func (m *Memory) Group(dpid uint64, id uint32) (Group, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sw, ok := m.switches[dpid]
	if !ok {
		return Group{}, false
	}
	g, ok := sw.groups[id]
	return g, ok
}

// Flow returns the installed rule for a match.
func (m *Memory) Flow(dpid uint64, match Match) (FlowRule, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sw, ok := m.switches[dpid]
	if !ok {
		return FlowRule{}, false
	}
	r, ok := sw.flows[match]
	return r, ok
}

// DropGroup removes a group behind the controller's back, as a switch
// restart would.
func (m *Memory) DropGroup(dpid uint64, id uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sw, ok := m.switches[dpid]; ok {
		delete(sw.groups, id)
	}
}

// ExpireFlow removes a rule the way an idle timeout on the switch would.
func (m *Memory) ExpireFlow(dpid uint64, match Match) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sw, ok := m.switches[dpid]; ok {
		delete(sw.flows, match)
		delete(sw.stats, match)
	}
}

// OverwriteGroup replaces a group's buckets without going through
// ModifyGroup, as a silently rejected group-mod leaves the switch.
func (m *Memory) OverwriteGroup(dpid uint64, g Group) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sw(dpid).groups[g.ID] = copyGroup(g)
}

// SetFlowStat sets the counters reported for a match.
func (m *Memory) SetFlowStat(dpid uint64, st FlowStat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sw(dpid).stats[st.Match] = st
}

func (m *Memory) sw(dpid uint64) *memorySwitch {
	sw, ok := m.switches[dpid]
	if !ok {
		sw = &memorySwitch{
			groups: make(map[uint32]Group),
			flows:  make(map[Match]FlowRule),
			stats:  make(map[Match]FlowStat),
		}
		m.switches[dpid] = sw
	}
	return sw
}

func (m *Memory) begin(op string) error {
	m.calls[op]++
	if err, ok := m.failures[op]; ok {
		delete(m.failures, op)
		return err
	}
	return nil
}

func copyGroup(g Group) Group {
	g.Buckets = append([]Bucket(nil), g.Buckets...)
	return g
}

func (m *Memory) AddGroup(_ context.Context, dpid uint64, g Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("add_group"); err != nil {
		return err
	}
	sw := m.sw(dpid)
	if _, ok := sw.groups[g.ID]; ok {
		return ErrGroupExists
	}
	sw.groups[g.ID] = copyGroup(g)
	return nil
}

func (m *Memory) ModifyGroup(_ context.Context, dpid uint64, g Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("modify_group"); err != nil {
		return err
	}
	sw := m.sw(dpid)
	if _, ok := sw.groups[g.ID]; !ok {
		return ErrGroupNotFound
	}
	sw.groups[g.ID] = copyGroup(g)
	return nil
}

func (m *Memory) InstallFlow(_ context.Context, dpid uint64, r FlowRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("install_flow"); err != nil {
		return err
	}
	m.sw(dpid).flows[r.Match] = r
	return nil
}

func (m *Memory) DeleteFlow(_ context.Context, dpid uint64, match Match) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("delete_flow"); err != nil {
		return err
	}
	sw := m.sw(dpid)
	delete(sw.flows, match)
	delete(sw.stats, match)
	return nil
}

func (m *Memory) FlowStats(_ context.Context, dpid uint64) ([]FlowStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("flow_stats"); err != nil {
		return nil, err
	}
	sw := m.sw(dpid)
	out := make([]FlowStat, 0, len(sw.flows)+len(sw.stats))
	for match, r := range sw.flows {
		st := sw.stats[match]
		st.Match = match
		st.Priority = r.Priority
		out = append(out, st)
	}
	for match, st := range sw.stats {
		if _, ok := sw.flows[match]; !ok {
			out = append(out, st)
		}
	}
	return out, nil
}

func (m *Memory) Groups(_ context.Context, dpid uint64) ([]Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("groups"); err != nil {
		return nil, err
	}
	sw := m.sw(dpid)
	out := make([]Group, 0, len(sw.groups))
	for _, g := range sw.groups {
		out = append(out, copyGroup(g))
	}
	return out, nil
}
