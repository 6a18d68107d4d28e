package flowlet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	testclock "k8s.io/utils/clock/testing"

	apis "github.com/Student-osmania/SDN-offloading/pkg/api/v1alpha1"
	"github.com/Student-osmania/SDN-offloading/pkg/audit"
	"github.com/Student-osmania/SDN-offloading/pkg/dataplane"
)

const testDPID = 1

var flowA = apis.FlowKey{Src: "10.0.0.1", Dst: "10.0.0.2"}

func newTestSplitter(t *testing.T) (*Splitter, *dataplane.Memory, *audit.Memory, time.Time) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	dp := dataplane.NewMemory()
	sink := audit.NewMemory()
	s := New(DefaultConfig(), dp, sink, testclock.NewFakeClock(start))
	s.SetDatapath(testDPID)
	return s, dp, sink, start
}

func TestObserveBoundaries(t *testing.T) {
	s, _, _, start := newTestSplitter(t)

	offsets := []time.Duration{0, 10 * time.Millisecond, 70 * time.Millisecond, 75 * time.Millisecond}
	var ids []uint64
	var boundaries []bool
	for _, off := range offsets {
		obs := s.Observe(flowA, start.Add(off))
		ids = append(ids, obs.FlowletID)
		boundaries = append(boundaries, obs.Boundary)
	}

	if diff := cmp.Diff([]uint64{1, 1, 2, 2}, ids); diff != "" {
		t.Errorf("flowlet ids mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]bool{true, false, true, false}, boundaries); diff != "" {
		t.Errorf("boundaries mismatch (-want +got):\n%s", diff)
	}
}

func TestObserveGapExactlyAtThresholdIsSameFlowlet(t *testing.T) {
	s, _, _, start := newTestSplitter(t)
	s.Observe(flowA, start)
	obs := s.Observe(flowA, start.Add(50*time.Millisecond))
	if obs.Boundary || obs.FlowletID != 1 {
		t.Fatalf("gap == threshold must not open a flowlet, got %+v", obs)
	}
}

func TestWeights(t *testing.T) {
	tests := []struct {
		alpha float64
		lte   int
		wifi  int
	}{
		{0, 100, 1},
		{1, 1, 100},
		{0.25, 75, 25},
		{0.5, 50, 50},
		{0.004, 100, 1},
		{-0.2, 100, 1},
		{1.7, 1, 100},
	}
	for _, tt := range tests {
		lte, wifi := Weights(tt.alpha, 100)
		if lte != tt.lte || wifi != tt.wifi {
			t.Errorf("Weights(%v) = (%d, %d), want (%d, %d)", tt.alpha, lte, wifi, tt.lte, tt.wifi)
		}
		if lte < 1 || wifi < 1 {
			t.Errorf("Weights(%v) produced a zero leg", tt.alpha)
		}
	}
}

func TestApplySplitAddsThenModifies(t *testing.T) {
	s, dp, sink, start := newTestSplitter(t)
	ctx := context.Background()

	ev, err := s.ApplySplit(ctx, flowA, 0.3, start, 10, 15)
	if err != nil {
		t.Fatalf("first split: %v", err)
	}
	if ev.Operation != OpAdd || !ev.Applied {
		t.Fatalf("expected applied add, got %+v", ev)
	}
	g, ok := dp.Group(testDPID, ev.GroupID)
	if !ok {
		t.Fatalf("group %d not installed", ev.GroupID)
	}
	want := []dataplane.Bucket{{Weight: 70, Port: 1}, {Weight: 30, Port: 2}}
	if diff := cmp.Diff(want, g.Buckets); diff != "" {
		t.Errorf("buckets mismatch (-want +got):\n%s", diff)
	}
	rule, ok := dp.Flow(testDPID, matchFor(flowA))
	if !ok || rule.GroupID != ev.GroupID || rule.Priority != 100 || rule.IdleTimeout != 60 {
		t.Fatalf("unexpected rule %+v (present=%v)", rule, ok)
	}

	// Next boundary modifies the same group.
	ev, err = s.ApplySplit(ctx, flowA, 0.6, start.Add(200*time.Millisecond), 10, 15)
	if err != nil {
		t.Fatalf("second split: %v", err)
	}
	if ev.Operation != OpModify {
		t.Fatalf("expected modify, got %s", ev.Operation)
	}
	if dp.Calls("add_group") != 1 || dp.Calls("modify_group") != 1 || dp.Calls("install_flow") != 1 {
		t.Errorf("unexpected call counts add=%d modify=%d install=%d",
			dp.Calls("add_group"), dp.Calls("modify_group"), dp.Calls("install_flow"))
	}
	if got := len(sink.Flowlets()); got != 2 {
		t.Errorf("expected 2 audited transactions, got %d", got)
	}
}

func TestApplySplitWithinFlowletIsNoop(t *testing.T) {
	s, dp, sink, start := newTestSplitter(t)
	ctx := context.Background()

	s.Observe(flowA, start)
	if _, err := s.ApplySplit(ctx, flowA, 0.3, start, 10, 15); err != nil {
		t.Fatalf("first split: %v", err)
	}
	s.Observe(flowA, start.Add(10*time.Millisecond))
	ev, err := s.ApplySplit(ctx, flowA, 0.8, start.Add(20*time.Millisecond), 10, 15)
	if err != nil {
		t.Fatalf("second split: %v", err)
	}
	if ev.Operation != OpNone {
		t.Fatalf("expected no-op inside flowlet, got %s", ev.Operation)
	}
	if dp.Calls("modify_group") != 0 {
		t.Errorf("no modify expected inside a flowlet")
	}
	if len(sink.Flowlets()) != 1 {
		t.Errorf("expected one audited transaction, got %d", len(sink.Flowlets()))
	}
	st, _ := s.Status(flowA)
	if !st.Pending || st.WiFiWeight != 30 {
		t.Errorf("proposal should wait for the boundary, status %+v", st)
	}
}

func TestApplySplitFailureKeepsPreviousTable(t *testing.T) {
	s, dp, sink, start := newTestSplitter(t)
	ctx := context.Background()

	first, err := s.ApplySplit(ctx, flowA, 0.3, start, 10, 15)
	if err != nil {
		t.Fatalf("first split: %v", err)
	}

	boom := errors.New("switch unreachable")
	dp.FailNext("modify_group", boom)
	ev, err := s.ApplySplit(ctx, flowA, 0.9, start.Add(time.Second), 10, 15)
	if !errors.Is(err, boom) {
		t.Fatalf("expected switch error, got %v", err)
	}
	if ev.Applied || ev.Error == "" {
		t.Errorf("failed transaction must be reported, got %+v", ev)
	}

	g, _ := dp.Group(testDPID, first.GroupID)
	if g.Buckets[0].Weight != 70 || g.Buckets[1].Weight != 30 {
		t.Errorf("previous weights must stay, got %+v", g.Buckets)
	}
	st, _ := s.Status(flowA)
	if st.LTEWeight != 70 || st.WiFiWeight != 30 || !st.Pending {
		t.Errorf("unexpected status after failure %+v", st)
	}
	flowlets := sink.Flowlets()
	if len(flowlets) != 2 || flowlets[1].Error == "" {
		t.Errorf("failure should be audited, got %+v", flowlets)
	}
}

func TestApplySplitWithoutDatapath(t *testing.T) {
	dp := dataplane.NewMemory()
	s := New(DefaultConfig(), dp, nil, testclock.NewFakeClock(time.Now()))

	_, err := s.ApplySplit(context.Background(), flowA, 0.5, time.Now(), 1, 1)
	if !errors.Is(err, ErrNoDatapath) {
		t.Fatalf("expected ErrNoDatapath, got %v", err)
	}
	if dp.Calls("add_group") != 0 {
		t.Errorf("no switch call expected without datapath")
	}
}

func TestGroupIDsAreAllocatedPerFlow(t *testing.T) {
	s, _, _, start := newTestSplitter(t)
	ctx := context.Background()
	flowB := apis.FlowKey{Src: "10.0.0.1", Dst: "10.0.0.3"}

	a, _ := s.ApplySplit(ctx, flowA, 0.5, start, 1, 1)
	b, _ := s.ApplySplit(ctx, flowB, 0.5, start, 1, 1)
	if a.GroupID != 1 || b.GroupID != 2 {
		t.Fatalf("expected group ids 1 and 2, got %d and %d", a.GroupID, b.GroupID)
	}
}

func TestOnPacketCommitsPendingAtBoundary(t *testing.T) {
	s, dp, _, start := newTestSplitter(t)
	ctx := context.Background()

	s.OnPacket(flowA, start)
	if _, err := s.ApplySplit(ctx, flowA, 0.3, start, 10, 15); err != nil {
		t.Fatalf("split: %v", err)
	}
	if !s.Propose(flowA, 0.5) {
		t.Fatalf("propose should accept a flow with an installed table")
	}

	s.OnPacket(flowA, start.Add(10*time.Millisecond))
	if s.queue.Len() != 0 {
		t.Fatalf("no commit expected inside a flowlet")
	}
	obs := s.OnPacket(flowA, start.Add(100*time.Millisecond))
	if !obs.Boundary {
		t.Fatalf("expected boundary")
	}
	if s.queue.Len() != 1 {
		t.Fatalf("expected one queued commit, got %d", s.queue.Len())
	}

	if !s.processNextWorkItem(ctx) {
		t.Fatalf("worker stopped unexpectedly")
	}
	if dp.Calls("modify_group") != 1 {
		t.Errorf("expected one modify, got %d", dp.Calls("modify_group"))
	}
	st, _ := s.Status(flowA)
	if st.LTEWeight != 50 || st.WiFiWeight != 50 || st.Pending {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestProposeIgnoresUnknownAndUninstalledFlows(t *testing.T) {
	s, _, _, start := newTestSplitter(t)
	if s.Propose(flowA, 0) {
		t.Errorf("unknown flow accepted")
	}
	s.Observe(flowA, start)
	if s.Propose(flowA, 0) {
		t.Errorf("flow without table accepted")
	}
}

func TestVerifyMarksLostGroupsAbsent(t *testing.T) {
	s, dp, _, start := newTestSplitter(t)
	ctx := context.Background()

	ev, err := s.ApplySplit(ctx, flowA, 0.4, start, 1, 1)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	lost, err := s.Verify(ctx)
	if err != nil || lost != 0 {
		t.Fatalf("Verify() = %d, %v; want 0, nil", lost, err)
	}

	dp.DropGroup(testDPID, ev.GroupID)
	lost, err = s.Verify(ctx)
	if err != nil || lost != 1 {
		t.Fatalf("Verify() = %d, %v; want 1, nil", lost, err)
	}

	ev, err = s.ApplySplit(ctx, flowA, 0.4, start.Add(time.Second), 1, 1)
	if err != nil {
		t.Fatalf("re-split: %v", err)
	}
	if ev.Operation != OpAdd {
		t.Errorf("lost group must be added again, got %s", ev.Operation)
	}
	if dp.Calls("add_group") != 2 {
		t.Errorf("expected two adds, got %d", dp.Calls("add_group"))
	}
}

func TestSetDatapathChangeResetsInstalledState(t *testing.T) {
	s, dp, _, start := newTestSplitter(t)
	ctx := context.Background()
	if _, err := s.ApplySplit(ctx, flowA, 0.4, start, 1, 1); err != nil {
		t.Fatalf("split: %v", err)
	}

	s.SetDatapath(testDPID)
	if st, _ := s.Status(flowA); !st.TableInstalled {
		t.Fatalf("same datapath must keep the table")
	}

	s.SetDatapath(2)
	if st, _ := s.Status(flowA); st.TableInstalled {
		t.Fatalf("new datapath starts empty")
	}
	ev, err := s.ApplySplit(ctx, flowA, 0.4, start.Add(time.Second), 1, 1)
	if err != nil || ev.Operation != OpAdd {
		t.Fatalf("expected add on new datapath, got %s, %v", ev.Operation, err)
	}
	if _, ok := dp.Group(2, ev.GroupID); !ok {
		t.Errorf("group missing on datapath 2")
	}
}

func TestRemoveOffload(t *testing.T) {
	s, dp, _, start := newTestSplitter(t)
	ctx := context.Background()
	if _, err := s.ApplySplit(ctx, flowA, 0.4, start, 1, 1); err != nil {
		t.Fatalf("split: %v", err)
	}
	if err := s.RemoveOffload(ctx, flowA); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := dp.Flow(testDPID, matchFor(flowA)); ok {
		t.Errorf("rule still installed")
	}
	if err := s.RemoveOffload(ctx, flowA); err != nil {
		t.Errorf("second remove should be a no-op, got %v", err)
	}
	if dp.Calls("delete_flow") != 1 {
		t.Errorf("expected one delete, got %d", dp.Calls("delete_flow"))
	}
}

func TestApplySplitDuringBurstWaitsForGap(t *testing.T) {
	s, dp, _, start := newTestSplitter(t)
	ctx := context.Background()

	s.OnPacket(flowA, start)
	if _, err := s.ApplySplit(ctx, flowA, 0.3, start, 10, 15); err != nil {
		t.Fatalf("split: %v", err)
	}

	// 5 ms spacing keeps the whole burst inside flowlet 1.
	var last time.Time
	for i := 1; i <= 20; i++ {
		last = start.Add(time.Duration(i) * 5 * time.Millisecond)
		s.OnPacket(flowA, last)
		if i == 10 {
			ev, err := s.ApplySplit(ctx, flowA, 0.7, last.Add(2*time.Millisecond), 10, 15)
			if err != nil {
				t.Fatalf("mid-burst split: %v", err)
			}
			if ev.Operation != OpNone || ev.FlowletID != 1 {
				t.Fatalf("mid-burst split must wait, got op=%s flowlet=%d", ev.Operation, ev.FlowletID)
			}
		}
	}
	st, _ := s.Status(flowA)
	if st.FlowletID != 1 || st.Packets != 21 {
		t.Fatalf("a split call must not count as a packet, got %+v", st)
	}
	if dp.Calls("modify_group") != 0 {
		t.Fatalf("weights changed inside a burst")
	}

	ev, err := s.ApplySplit(ctx, flowA, 0.7, last.Add(80*time.Millisecond), 10, 15)
	if err != nil {
		t.Fatalf("idle split: %v", err)
	}
	if ev.Operation != OpModify || ev.FlowletID != 2 {
		t.Fatalf("idle flow should take the new weights for flowlet 2, got op=%s flowlet=%d", ev.Operation, ev.FlowletID)
	}
	if obs := s.OnPacket(flowA, last.Add(90*time.Millisecond)); !obs.Boundary || obs.FlowletID != 2 {
		t.Errorf("next packet should open flowlet 2, got %+v", obs)
	}
}

func TestApplySplitUnchangedWeightsSkipsSwitch(t *testing.T) {
	s, dp, sink, start := newTestSplitter(t)
	ctx := context.Background()

	if _, err := s.ApplySplit(ctx, flowA, 0.3, start, 10, 15); err != nil {
		t.Fatalf("split: %v", err)
	}
	ev, err := s.ApplySplit(ctx, flowA, 0.3, start.Add(time.Second), 10, 15)
	if err != nil {
		t.Fatalf("repeat split: %v", err)
	}
	if ev.Operation != OpNone || !ev.Applied {
		t.Errorf("same weights should be a no-op, got %+v", ev)
	}
	if dp.Calls("modify_group") != 0 || len(sink.Flowlets()) != 1 {
		t.Errorf("no transaction expected, modify=%d audited=%d", dp.Calls("modify_group"), len(sink.Flowlets()))
	}
	if st, _ := s.Status(flowA); st.Pending {
		t.Errorf("proposal should be settled, got %+v", st)
	}
}

func TestVerifyReinstallsExpiredRule(t *testing.T) {
	s, dp, _, start := newTestSplitter(t)
	ctx := context.Background()

	if _, err := s.ApplySplit(ctx, flowA, 0.3, start, 10, 15); err != nil {
		t.Fatalf("split: %v", err)
	}
	dp.ExpireFlow(testDPID, matchFor(flowA))

	n, err := s.Verify(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Verify() = %d, %v; want 1, nil", n, err)
	}
	st, _ := s.Status(flowA)
	if st.TableInstalled || !st.Pending {
		t.Fatalf("expired rule should leave the flow absent with a pending split, got %+v", st)
	}

	ev, err := s.ApplySplit(ctx, flowA, 0.6, start.Add(2*time.Minute), 10, 15)
	if err != nil {
		t.Fatalf("re-split: %v", err)
	}
	if ev.Operation != OpModify {
		t.Errorf("group survived, want modify, got %s", ev.Operation)
	}
	if dp.Calls("install_flow") != 2 {
		t.Errorf("rule must be installed again, install_flow calls=%d", dp.Calls("install_flow"))
	}
	if _, ok := dp.Flow(testDPID, matchFor(flowA)); !ok {
		t.Errorf("rule missing on the switch")
	}
	if st, _ := s.Status(flowA); !st.TableInstalled {
		t.Errorf("table should be installed again, got %+v", st)
	}
}

func TestVerifyRepairsDriftedWeights(t *testing.T) {
	s, dp, _, start := newTestSplitter(t)
	ctx := context.Background()

	ev, err := s.ApplySplit(ctx, flowA, 0.3, start, 10, 15)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	dp.OverwriteGroup(testDPID, dataplane.Group{
		ID:      ev.GroupID,
		Type:    "SELECT",
		Buckets: []dataplane.Bucket{{Weight: 50, Port: 1}, {Weight: 50, Port: 2}},
	})

	n, err := s.Verify(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Verify() = %d, %v; want 1, nil", n, err)
	}
	st, _ := s.Status(flowA)
	if st.LTEWeight != 50 || st.WiFiWeight != 50 || !st.Pending || !st.TableInstalled {
		t.Fatalf("status should reflect the switch and keep the split pending, got %+v", st)
	}

	if _, err := s.ApplySplit(ctx, flowA, 0.3, start.Add(time.Second), 10, 15); err != nil {
		t.Fatalf("re-split: %v", err)
	}
	g, _ := dp.Group(testDPID, ev.GroupID)
	want := []dataplane.Bucket{{Weight: 70, Port: 1}, {Weight: 30, Port: 2}}
	if diff := cmp.Diff(want, g.Buckets); diff != "" {
		t.Errorf("buckets mismatch (-want +got):\n%s", diff)
	}
	if n, _ := s.Verify(ctx); n != 0 {
		t.Errorf("repaired table should verify clean, got %d", n)
	}
}

// listThenWrite returns a group listing taken before a concurrent write.
type listThenWrite struct {
	*dataplane.Memory
	write func()
}

func (l *listThenWrite) Groups(ctx context.Context, dpid uint64) ([]dataplane.Group, error) {
	groups, err := l.Memory.Groups(ctx, dpid)
	if l.write != nil {
		l.write()
		l.write = nil
	}
	return groups, err
}

func TestVerifySkipsFlowsWrittenAfterListing(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	dp := &listThenWrite{Memory: dataplane.NewMemory()}
	s := New(DefaultConfig(), dp, nil, testclock.NewFakeClock(start))
	s.SetDatapath(testDPID)
	ctx := context.Background()

	dp.write = func() {
		if _, err := s.ApplySplit(ctx, flowA, 0.3, start, 10, 15); err != nil {
			t.Errorf("split: %v", err)
		}
	}
	n, err := s.Verify(ctx)
	if err != nil || n != 0 {
		t.Fatalf("Verify() = %d, %v; want 0, nil", n, err)
	}
	if st, _ := s.Status(flowA); !st.TableInstalled {
		t.Errorf("a fresh table must not be marked lost from a stale listing, got %+v", st)
	}
}

func TestConcurrentPathsKeepOneTablePerFlow(t *testing.T) {
	s, dp, _, start := newTestSplitter(t)
	ctx := context.Background()
	const rounds = 200

	var workers sync.WaitGroup
	for i := 0; i < 2; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			s.runWorker(ctx)
		}()
	}

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_, _ = s.ApplySplit(ctx, flowA, float64(i%10)/10, start.Add(time.Duration(i)*time.Second), 10, 15)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			s.OnPacket(flowA, start.Add(time.Duration(i)*60*time.Millisecond))
			s.Propose(flowA, float64(rounds-i)/rounds)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if _, err := s.Verify(ctx); err != nil {
				t.Errorf("verify: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			s.Status(flowA)
		}
	}()
	wg.Wait()
	s.queue.ShutDown()
	workers.Wait()

	if got := dp.Calls("add_group"); got != 1 {
		t.Errorf("want exactly one add_group for the flow, got %d", got)
	}
	st, _ := s.Status(flowA)
	g, ok := dp.Group(testDPID, st.GroupID)
	if !ok {
		t.Fatalf("group %d missing", st.GroupID)
	}
	if g.Buckets[0].Weight != st.LTEWeight || g.Buckets[1].Weight != st.WiFiWeight {
		t.Errorf("switch buckets %+v disagree with status %+v", g.Buckets, st)
	}
	_, rule := dp.Flow(testDPID, matchFor(flowA))
	if rule != st.TableInstalled {
		t.Errorf("rule present=%v but status installed=%v", rule, st.TableInstalled)
	}
	if n, err := s.Verify(ctx); err != nil || n != 0 {
		t.Errorf("final Verify() = %d, %v; want 0, nil", n, err)
	}
}
