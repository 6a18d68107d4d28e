// Package flowlet detects flowlet boundaries per flow and owns each flow's
// weighted LTE/WiFi group. New weights only reach the switch at a boundary.
package flowlet

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/workqueue"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	apis "github.com/Student-osmania/SDN-offloading/pkg/api/v1alpha1"
	"github.com/Student-osmania/SDN-offloading/pkg/audit"
	"github.com/Student-osmania/SDN-offloading/pkg/constants"
	"github.com/Student-osmania/SDN-offloading/pkg/dataplane"
	"github.com/Student-osmania/SDN-offloading/pkg/util"
)

// ErrNoDatapath is returned while no switch has connected.
var ErrNoDatapath = errors.New("no datapath connected")

// Operations reported in FlowletEvent.Operation.
const (
	OpNone   = "none"
	OpAdd    = "add"
	OpModify = "modify"
)

type Config struct {
	Gap          time.Duration `yaml:"gap"`
	Scale        int           `yaml:"scale"`
	LTEPort      uint32        `yaml:"ltePort"`
	WiFiPort     uint32        `yaml:"wifiPort"`
	FlowPriority int           `yaml:"flowPriority"`
	IdleTimeout  int           `yaml:"idleTimeout"`
	FirstGroupID uint32        `yaml:"firstGroupID"`
}

func DefaultConfig() Config {
	return Config{
		Gap:          50 * time.Millisecond,
		Scale:        100,
		LTEPort:      constants.LTEPort,
		WiFiPort:     constants.WiFiPort,
		FlowPriority: constants.OffloadFlowPriority,
		IdleTimeout:  constants.OffloadIdleTimeout,
		FirstGroupID: constants.FirstGroupID,
	}
}

// Weights converts the WiFi fraction alpha into integer bucket weights.
// Neither leg drops below 1.
func Weights(alpha float64, scale int) (lte, wifi int) {
	alpha = util.Clamp(alpha, 0, 1)
	wifi = int(math.Round(alpha * float64(scale)))
	lte = int(math.Round((1 - alpha) * float64(scale)))
	if wifi < 1 {
		wifi = 1
	}
	if lte < 1 {
		lte = 1
	}
	return lte, wifi
}

// Observation is the result of feeding one packet timestamp to a flow.
type Observation struct {
	FlowletID uint64
	Boundary  bool
	Gap       time.Duration
}

type proposal struct {
	alpha    float64
	lteMbps  float64
	wifiMbps float64
}

type flowState struct {
	// tx serializes table transactions for the flow.
	tx sync.Mutex

	mu            sync.Mutex
	seen          bool
	lastSeen      time.Time
	lastGap       time.Duration
	flowletID     uint64
	packets       uint64
	groupID       uint32
	installed     bool
	ruleInstalled bool
	alpha         float64
	lteWeight     int
	wifiWeight    int
	pending       *proposal
	// lastWrite is the splitter-wide sequence of the flow's last table write.
	lastWrite uint64
}

// Status is a read-only view of one flow's splitter state.
type Status struct {
	FlowletID      uint64
	Packets        uint64
	GroupID        uint32
	TableInstalled bool
	LTEWeight      int
	WiFiWeight     int
	Pending        bool
}

type Splitter struct {
	cfg   Config
	dp    dataplane.Dataplane
	sink  audit.Sink
	clock clock.PassiveClock
	queue workqueue.TypedRateLimitingInterface[apis.FlowKey]

	// writes sequences table writes so Verify can skip flows changed
	// after its listing was taken.
	writes atomic.Uint64

	mu        sync.RWMutex
	flows     map[apis.FlowKey]*flowState
	nextGroup uint32
	dpid      uint64
	connected bool
}

func New(cfg Config, dp dataplane.Dataplane, sink audit.Sink, clk clock.PassiveClock) *Splitter {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if sink == nil {
		sink = audit.NewMemory()
	}
	return &Splitter{
		cfg:   cfg,
		dp:    dp,
		sink:  sink,
		clock: clk,
		queue: workqueue.NewTypedRateLimitingQueueWithConfig(
			workqueue.DefaultTypedControllerRateLimiter[apis.FlowKey](),
			workqueue.TypedRateLimitingQueueConfig[apis.FlowKey]{Name: "flowlet-commits"},
		),
		flows:     make(map[apis.FlowKey]*flowState),
		nextGroup: cfg.FirstGroupID,
	}
}

// SetDatapath records the switch the groups live on. A different switch
// starts with no tables, so every flow falls back to absent.
func (s *Splitter) SetDatapath(dpid uint64) {
	s.mu.Lock()
	changed := !s.connected || s.dpid != dpid
	s.dpid = dpid
	s.connected = true
	states := make([]*flowState, 0, len(s.flows))
	for _, st := range s.flows {
		states = append(states, st)
	}
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, st := range states {
		st.mu.Lock()
		st.installed = false
		st.ruleInstalled = false
		st.mu.Unlock()
	}
	klog.Infof("Flowlet splitter bound to datapath %d", dpid)
}

func (s *Splitter) Datapath() (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dpid, s.connected
}

func (s *Splitter) state(key apis.FlowKey) *flowState {
	s.mu.RLock()
	st, ok := s.flows[key]
	s.mu.RUnlock()
	if ok {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok = s.flows[key]; ok {
		return st
	}
	st = &flowState{groupID: s.nextGroup}
	s.nextGroup++
	s.flows[key] = st
	return st
}

func (s *Splitter) lookup(key apis.FlowKey) (*flowState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.flows[key]
	return st, ok
}

// Observe records a packet of the flow at now. The first packet, and any
// packet arriving more than Gap after the previous one, opens a new flowlet.
func (s *Splitter) Observe(key apis.FlowKey, now time.Time) Observation {
	st := s.state(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.packets++
	if !st.seen {
		st.seen = true
		st.lastSeen = now
		st.lastGap = 0
		st.flowletID = 1
		flowletTransitions.Inc()
		return Observation{FlowletID: 1, Boundary: true}
	}

	gap := now.Sub(st.lastSeen)
	if now.After(st.lastSeen) {
		st.lastSeen = now
	}
	if gap > s.cfg.Gap {
		st.flowletID++
		st.lastGap = gap
		flowletTransitions.Inc()
		return Observation{FlowletID: st.flowletID, Boundary: true, Gap: gap}
	}
	return Observation{FlowletID: st.flowletID, Gap: gap}
}

// ApplySplit proposes alpha for the flow and, when now falls on a flowlet
// boundary or no table is installed yet, pushes the matching weights to the
// switch. Boundaries are judged from packet arrivals only; the call itself
// is not a packet. Inside a flowlet with a table in place it is a no-op and
// the proposal waits for the next boundary.
func (s *Splitter) ApplySplit(ctx context.Context, key apis.FlowKey, alpha float64, now time.Time, lteMbps, wifiMbps float64) (apis.FlowletEvent, error) {
	st := s.state(key)
	st.tx.Lock()
	defer st.tx.Unlock()

	p := &proposal{alpha: util.Clamp(alpha, 0, 1), lteMbps: lteMbps, wifiMbps: wifiMbps}
	st.mu.Lock()
	st.pending = p
	obs := s.peek(st, now)
	ready := st.installed && st.ruleInstalled
	dirty := s.differs(st)
	groupID := st.groupID
	st.mu.Unlock()

	ev := apis.FlowletEvent{
		Flow:      key,
		Timestamp: s.clock.Now(),
		FlowletID: obs.FlowletID,
		GapMs:     durationMs(obs.Gap),
		GroupID:   groupID,
		Alpha:     p.alpha,
		Operation: OpNone,
	}
	if ready && !obs.Boundary {
		klog.V(4).Infof("Flow %s: flowlet %d still active (gap=%v), deferring alpha=%.2f",
			key, obs.FlowletID, obs.Gap, alpha)
		return ev, nil
	}
	if !dirty {
		st.mu.Lock()
		if st.pending == p {
			st.pending = nil
		}
		st.mu.Unlock()
		ev.LTEWeight, ev.WiFiWeight = Weights(p.alpha, s.cfg.Scale)
		ev.Applied = true
		return ev, nil
	}
	return s.commitLocked(ctx, key, st, obs)
}

// peek reports where now falls relative to the last packet without
// recording anything. Caller holds st.mu.
func (s *Splitter) peek(st *flowState, now time.Time) Observation {
	if !st.seen {
		return Observation{FlowletID: 1, Boundary: true}
	}
	gap := now.Sub(st.lastSeen)
	if gap > s.cfg.Gap {
		// The next packet opens the following flowlet.
		return Observation{FlowletID: st.flowletID + 1, Boundary: true, Gap: gap}
	}
	return Observation{FlowletID: st.flowletID, Gap: gap}
}

// Propose stores alpha for the packet path to apply at the next boundary.
// Flows that never had a table are left alone.
func (s *Splitter) Propose(key apis.FlowKey, alpha float64) bool {
	st, ok := s.lookup(key)
	if !ok {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.installed && st.pending == nil {
		return false
	}
	st.pending = &proposal{alpha: util.Clamp(alpha, 0, 1)}
	return true
}

// OnPacket is the packet-arrival path. It never touches the switch itself:
// a boundary with a pending weight change is handed to the commit workers.
func (s *Splitter) OnPacket(key apis.FlowKey, now time.Time) Observation {
	obs := s.Observe(key, now)
	if !obs.Boundary {
		return obs
	}
	st, _ := s.lookup(key)
	st.mu.Lock()
	dirty := st.pending != nil && s.differs(st)
	st.mu.Unlock()
	if dirty {
		s.queue.Add(key)
	}
	return obs
}

// differs reports whether the pending proposal would change the switch.
// Caller holds st.mu.
func (s *Splitter) differs(st *flowState) bool {
	if !st.installed || !st.ruleInstalled {
		return true
	}
	lte, wifi := Weights(st.pending.alpha, s.cfg.Scale)
	return lte != st.lteWeight || wifi != st.wifiWeight
}

// commitLocked pushes the pending proposal. Caller holds st.tx.
func (s *Splitter) commitLocked(ctx context.Context, key apis.FlowKey, st *flowState, obs Observation) (apis.FlowletEvent, error) {
	st.mu.Lock()
	p := st.pending
	groupID := st.groupID
	groupInstalled := st.installed
	ruleInstalled := st.ruleInstalled
	st.mu.Unlock()

	ev := apis.FlowletEvent{
		ID:        uuid.NewString(),
		Flow:      key,
		Timestamp: s.clock.Now(),
		FlowletID: obs.FlowletID,
		GapMs:     durationMs(obs.Gap),
		GroupID:   groupID,
		Operation: OpNone,
	}
	if p == nil {
		ev.Applied = true
		return ev, nil
	}
	ev.Alpha = p.alpha
	ev.LTEMbps = p.lteMbps
	ev.WiFiMbps = p.wifiMbps
	ev.LTEWeight, ev.WiFiWeight = Weights(p.alpha, s.cfg.Scale)

	err := s.transact(ctx, key, st, &ev, groupInstalled, ruleInstalled)
	if err != nil {
		ev.Error = err.Error()
		klog.Warningf("Flow %s: table %s for group %d failed, previous table stays authoritative: %v",
			key, ev.Operation, groupID, err)
	} else {
		ev.Applied = true
		st.mu.Lock()
		if st.pending == p {
			st.pending = nil
		}
		st.mu.Unlock()
		klog.V(2).Infof("Flow %s: flowlet %d gap=%.1fms group %d %s LTE=%d WiFi=%d (pred LTE=%.1f WiFi=%.1f Mbps)",
			key, ev.FlowletID, ev.GapMs, groupID, ev.Operation, ev.LTEWeight, ev.WiFiWeight, ev.LTEMbps, ev.WiFiMbps)
	}

	if rerr := s.sink.Record(ctx, audit.FlowletEntry(ev)); rerr != nil {
		klog.Errorf("Failed to record flowlet event for %s: %v", key, rerr)
	}
	return ev, err
}

func (s *Splitter) transact(ctx context.Context, key apis.FlowKey, st *flowState, ev *apis.FlowletEvent, groupInstalled, ruleInstalled bool) error {
	dpid, ok := s.Datapath()
	if !ok {
		ev.Operation = OpAdd
		groupTransactions.WithLabelValues(OpAdd, "no_datapath").Inc()
		return ErrNoDatapath
	}

	group := dataplane.Group{
		ID:   ev.GroupID,
		Type: constants.GroupTypeSelect,
		Buckets: []dataplane.Bucket{
			{Weight: ev.LTEWeight, Port: s.cfg.LTEPort},
			{Weight: ev.WiFiWeight, Port: s.cfg.WiFiPort},
		},
	}

	var err error
	if groupInstalled {
		ev.Operation = OpModify
		err = s.dp.ModifyGroup(ctx, dpid, group)
	} else {
		ev.Operation = OpAdd
		err = s.dp.AddGroup(ctx, dpid, group)
		if errors.Is(err, dataplane.ErrGroupExists) {
			// Left over from an earlier run on the same switch.
			ev.Operation = OpModify
			err = s.dp.ModifyGroup(ctx, dpid, group)
		}
	}
	if err != nil {
		groupTransactions.WithLabelValues(ev.Operation, "error").Inc()
		return fmt.Errorf("%s group %d: %w", ev.Operation, group.ID, err)
	}
	groupTransactions.WithLabelValues(ev.Operation, "ok").Inc()

	st.mu.Lock()
	st.installed = true
	st.lastWrite = s.writes.Add(1)
	st.alpha = ev.Alpha
	st.lteWeight = ev.LTEWeight
	st.wifiWeight = ev.WiFiWeight
	st.mu.Unlock()

	if ruleInstalled {
		return nil
	}
	rule := dataplane.FlowRule{
		Priority:    s.cfg.FlowPriority,
		IdleTimeout: s.cfg.IdleTimeout,
		Match:       matchFor(key),
		GroupID:     group.ID,
	}
	if err := s.dp.InstallFlow(ctx, dpid, rule); err != nil {
		return fmt.Errorf("install flow %s -> group %d: %w", rule.Match, group.ID, err)
	}
	st.mu.Lock()
	st.ruleInstalled = true
	st.lastWrite = s.writes.Add(1)
	st.mu.Unlock()
	return nil
}

// RemoveOffload deletes the flow rule so the flow returns to the default
// single path. The group is kept and will be modified on the next split.
func (s *Splitter) RemoveOffload(ctx context.Context, key apis.FlowKey) error {
	st, ok := s.lookup(key)
	if !ok {
		return nil
	}
	st.tx.Lock()
	defer st.tx.Unlock()

	st.mu.Lock()
	had := st.ruleInstalled
	st.pending = nil
	st.mu.Unlock()
	if !had {
		return nil
	}

	dpid, ok := s.Datapath()
	if !ok {
		return ErrNoDatapath
	}
	if err := s.dp.DeleteFlow(ctx, dpid, matchFor(key)); err != nil {
		return fmt.Errorf("remove offload for %s: %w", key, err)
	}
	st.mu.Lock()
	st.ruleInstalled = false
	st.lastWrite = s.writes.Add(1)
	st.mu.Unlock()
	klog.Infof("Flow %s: offload rule removed", key)
	return nil
}

// Verify compares the switch's groups and flow rules with what the
// splitter believes is installed. A lost group or an expired rule is marked
// absent, and a group whose buckets drifted from the recorded weights takes
// the switch's weights, so the next boundary rewrites the table. It returns
// how many flows were reconciled.
func (s *Splitter) Verify(ctx context.Context) (int, error) {
	dpid, ok := s.Datapath()
	if !ok {
		return 0, nil
	}
	seq := s.writes.Load()
	groups, err := s.dp.Groups(ctx, dpid)
	if err != nil {
		return 0, fmt.Errorf("list groups on %d: %w", dpid, err)
	}
	stats, err := s.dp.FlowStats(ctx, dpid)
	if err != nil {
		return 0, fmt.Errorf("list flows on %d: %w", dpid, err)
	}
	present := make(map[uint32]dataplane.Group, len(groups))
	for _, g := range groups {
		present[g.ID] = g
	}
	rules := make(map[dataplane.Match]bool, len(stats))
	for _, fs := range stats {
		if fs.Priority == s.cfg.FlowPriority {
			rules[fs.Match] = true
		}
	}

	s.mu.RLock()
	keys := make([]apis.FlowKey, 0, len(s.flows))
	for k := range s.flows {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	reconciled := 0
	for _, k := range keys {
		st, _ := s.lookup(k)
		// A transaction in flight, or one finished after the listing, is
		// judged on the next round.
		if !st.tx.TryLock() {
			continue
		}
		st.mu.Lock()
		if st.lastWrite <= seq {
			offloaded := st.ruleInstalled
			if reason := s.reconcile(k, st, present, rules, dpid); reason != "" {
				reconciled++
				tablesReconciled.WithLabelValues(reason).Inc()
				if offloaded && st.pending == nil {
					st.pending = &proposal{alpha: st.alpha}
				}
			}
		}
		st.mu.Unlock()
		st.tx.Unlock()
	}
	return reconciled, nil
}

// reconcile corrects one flow's view of the switch and names what it found.
// Caller holds st.mu.
func (s *Splitter) reconcile(key apis.FlowKey, st *flowState, groups map[uint32]dataplane.Group, rules map[dataplane.Match]bool, dpid uint64) string {
	if !st.installed && !st.ruleInstalled {
		return ""
	}
	g, ok := groups[st.groupID]
	if st.installed && !ok {
		klog.Warningf("Flow %s: group %d missing on datapath %d, marking absent", key, st.groupID, dpid)
		st.installed = false
		st.ruleInstalled = false
		return "group_missing"
	}

	reason := ""
	if st.installed {
		lte, wifi := s.bucketWeights(g)
		if lte != st.lteWeight || wifi != st.wifiWeight {
			klog.Warningf("Flow %s: group %d carries LTE=%d WiFi=%d, expected LTE=%d WiFi=%d",
				key, st.groupID, lte, wifi, st.lteWeight, st.wifiWeight)
			st.lteWeight, st.wifiWeight = lte, wifi
			reason = "weights_drifted"
		}
	}
	if st.ruleInstalled && !rules[matchFor(key)] {
		klog.Warningf("Flow %s: offload rule gone from datapath %d, marking absent", key, dpid)
		st.ruleInstalled = false
		reason = "rule_missing"
	}
	return reason
}

func (s *Splitter) bucketWeights(g dataplane.Group) (lte, wifi int) {
	for _, b := range g.Buckets {
		switch b.Port {
		case s.cfg.LTEPort:
			lte = b.Weight
		case s.cfg.WiFiPort:
			wifi = b.Weight
		}
	}
	return lte, wifi
}

// Run starts the packet-path commit workers and blocks until ctx is done.
func (s *Splitter) Run(ctx context.Context, workers int) {
	defer utilruntime.HandleCrash()
	defer s.queue.ShutDown()

	for i := 0; i < workers; i++ {
		go wait.UntilWithContext(ctx, s.runWorker, time.Second)
	}
	<-ctx.Done()
}

func (s *Splitter) runWorker(ctx context.Context) {
	for s.processNextWorkItem(ctx) {
	}
}

func (s *Splitter) processNextWorkItem(ctx context.Context) bool {
	key, shutdown := s.queue.Get()
	if shutdown {
		return false
	}
	defer s.queue.Done(key)

	st, ok := s.lookup(key)
	if !ok {
		s.queue.Forget(key)
		return true
	}

	st.tx.Lock()
	st.mu.Lock()
	obs := Observation{FlowletID: st.flowletID, Boundary: true, Gap: st.lastGap}
	dirty := st.pending != nil && s.differs(st)
	st.mu.Unlock()
	if dirty {
		if _, err := s.commitLocked(ctx, key, st, obs); err != nil {
			utilruntime.HandleError(fmt.Errorf("flowlet commit for %s: %w", key, err))
		}
	}
	st.tx.Unlock()

	s.queue.Forget(key)
	return true
}

// Status returns the splitter's view of one flow.
func (s *Splitter) Status(key apis.FlowKey) (Status, bool) {
	st, ok := s.lookup(key)
	if !ok {
		return Status{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return Status{
		FlowletID:      st.flowletID,
		Packets:        st.packets,
		GroupID:        st.groupID,
		TableInstalled: st.installed && st.ruleInstalled,
		LTEWeight:      st.lteWeight,
		WiFiWeight:     st.wifiWeight,
		Pending:        st.pending != nil,
	}, true
}

func matchFor(key apis.FlowKey) dataplane.Match {
	return dataplane.Match{EthType: constants.EthTypeIPv4, IPv4Src: key.Src, IPv4Dst: key.Dst}
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
