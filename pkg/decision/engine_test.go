package decision_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	testclock "k8s.io/utils/clock/testing"

	apis "github.com/Student-osmania/SDN-offloading/pkg/api/v1alpha1"
	"github.com/Student-osmania/SDN-offloading/pkg/audit"
	"github.com/Student-osmania/SDN-offloading/pkg/constants"
	"github.com/Student-osmania/SDN-offloading/pkg/dataplane"
	"github.com/Student-osmania/SDN-offloading/pkg/decision"
	"github.com/Student-osmania/SDN-offloading/pkg/flowlet"
	"github.com/Student-osmania/SDN-offloading/pkg/negotiation"
	"github.com/Student-osmania/SDN-offloading/pkg/predictor"
	"github.com/Student-osmania/SDN-offloading/pkg/quality"
	"github.com/Student-osmania/SDN-offloading/pkg/telemetry"
)

const node = "ue1"

var flow = apis.FlowKey{Src: "10.0.0.1", Dst: "10.0.0.2"}

type fakeLoad struct{ res negotiation.LoadResult }

func (f *fakeLoad) QueryLoad(context.Context) negotiation.LoadResult { return f.res }

type fakeNegotiator struct {
	errs    []error
	granted float64
	calls   int
	volumes []float64
}

func (f *fakeNegotiator) Negotiate(_ context.Context, requested, volume float64) (negotiation.Grant, error) {
	f.calls++
	f.volumes = append(f.volumes, volume)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return negotiation.Grant{}, err
		}
	}
	return negotiation.Grant{AllocatedMbps: math.Min(requested, f.granted)}, nil
}

type harness struct {
	engine *decision.Engine
	store  *telemetry.Store
	dp     *dataplane.Memory
	split  *flowlet.Splitter
	sink   *audit.Memory
	neg    *fakeNegotiator
	load   *fakeLoad
}

func newHarness(t *testing.T, cfg decision.Config) *harness {
	t.Helper()
	clk := testclock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	classifier := quality.NewClassifier(quality.DefaultThresholds())
	pcfg := predictor.DefaultConfig()
	pred := predictor.New(pcfg, predictor.NewHeuristicScorer(classifier, pcfg.Normalization))

	h := &harness{
		store: telemetry.NewStore(telemetry.DefaultWindowSize, clk),
		dp:    dataplane.NewMemory(),
		sink:  audit.NewMemory(),
		neg:   &fakeNegotiator{granted: 20},
		load:  &fakeLoad{res: negotiation.LoadResult{Load: 0.3, Source: negotiation.LoadSourceRemote}},
	}
	h.split = flowlet.New(flowlet.DefaultConfig(), h.dp, h.sink, clk)
	h.split.SetDatapath(1)
	h.engine = decision.NewEngine(decision.EngineConfig{
		Config:     cfg,
		Node:       node,
		Classifier: classifier,
		Predictor:  pred,
		Telemetry:  h.store,
		Load:       h.load,
		Negotiator: h.neg,
		Splitter:   h.split,
		Sink:       h.sink,
		Clock:      clk,
	})
	return h
}

func (h *harness) fill(n int, lteRSSI, ltePDR, wifiRSSI, wifiPDR float64) {
	for i := 0; i < n; i++ {
		h.store.Ingest(node, apis.TelemetryReport{
			LTERSSI:  lteRSSI,
			LTEPDR:   ltePDR,
			WiFiRSSI: wifiRSSI,
			WiFiPDR:  wifiPDR,
		})
	}
}

func TestRunCycle_GoodLTE_StaysLTEOnly(t *testing.T) {
	h := newHarness(t, decision.DefaultConfig())
	h.fill(30, -65, 0.93, -60, 0.95)
	fp := decision.NewFlowProgress(flow, 10)

	rec := h.engine.RunCycle(context.Background(), fp)

	if rec.LTEQuality != constants.Good || rec.OffloadPriority != 0 {
		t.Errorf("want Good LTE at priority 0, got %s %d", rec.LTEQuality, rec.OffloadPriority)
	}
	if rec.Outcome != constants.OutcomeLTEOnly || rec.Reason != constants.ReasonLTEMeetsDeadline {
		t.Fatalf("want lte_only lte_meets_deadline, got %s %s", rec.Outcome, rec.Reason)
	}
	if rec.Alpha != 0 {
		t.Errorf("want alpha 0, got %v", rec.Alpha)
	}
	if h.neg.calls != 0 || h.dp.Calls("add_group") != 0 {
		t.Errorf("LTE-only cycle must not negotiate or touch the switch")
	}
	if !fp.Completed || fp.RemainingMB != 0 || !rec.Completed {
		t.Errorf("10 MB at ~17.9 Mbps must finish in one 5 s cycle, remaining=%v", fp.RemainingMB)
	}
}

func TestRunCycle_WeakLTE_Offloads(t *testing.T) {
	h := newHarness(t, decision.DefaultConfig())
	h.fill(30, -88, 0.70, -60, 0.95)
	fp := decision.NewFlowProgress(flow, 150)

	rec := h.engine.RunCycle(context.Background(), fp)

	if rec.Outcome != constants.OutcomeOffload || rec.Reason != constants.ReasonLTEBad {
		t.Fatalf("want offload lte_quality_bad, got %s %s", rec.Outcome, rec.Reason)
	}
	if rec.OffloadPriority != 2 {
		t.Errorf("Bad LTE should carry offload priority 2, got %d", rec.OffloadPriority)
	}
	if rec.TLTESeconds < 15 {
		t.Errorf("T_LTE %v should exceed the deadline", rec.TLTESeconds)
	}
	if rec.VWiFiMB <= 1 {
		t.Errorf("V_WiFi %v should be worth negotiating", rec.VWiFiMB)
	}
	if h.neg.calls != 1 || math.Abs(h.neg.volumes[0]-rec.VWiFiMB) > 1e-9 {
		t.Errorf("expected one negotiation for %v MB, got %v", rec.VWiFiMB, h.neg.volumes)
	}
	if !rec.SplitApplied || rec.AllocatedBWMbps != 20 {
		t.Errorf("split applied=%v allocated=%v", rec.SplitApplied, rec.AllocatedBWMbps)
	}

	// alpha = 36 / (3 + 36) * (1 - 0.3)
	if math.Abs(rec.Alpha-36.0/39.0*0.7) > 1e-6 {
		t.Errorf("alpha = %v", rec.Alpha)
	}
	st, ok := h.split.Status(flow)
	if !ok || !st.TableInstalled || st.WiFiWeight != 65 || st.LTEWeight != 35 {
		t.Errorf("unexpected splitter state %+v", st)
	}

	wantRemaining := 150 - rec.LTECapacityMbps/8*5
	if math.Abs(fp.RemainingMB-wantRemaining) > 1e-9 {
		t.Errorf("lte_only accounting: remaining=%v want %v", fp.RemainingMB, wantRemaining)
	}
	if len(h.sink.Decisions()) != 1 || len(h.sink.Flowlets()) != 1 {
		t.Errorf("want 1 decision and 1 flowlet entry, got %d and %d",
			len(h.sink.Decisions()), len(h.sink.Flowlets()))
	}
}

func TestRunCycle_LTEAndWiFiAccounting(t *testing.T) {
	cfg := decision.DefaultConfig()
	cfg.Accounting = decision.AccountingLTEAndWiFi
	h := newHarness(t, cfg)
	h.fill(30, -88, 0.70, -60, 0.95)
	fp := decision.NewFlowProgress(flow, 150)

	rec := h.engine.RunCycle(context.Background(), fp)
	if rec.Outcome != constants.OutcomeOffload {
		t.Fatalf("want offload, got %s", rec.Outcome)
	}
	// 20 Mbps granted over a 5 s cycle carries 12.5 MB on WiFi.
	want := 150 - rec.LTECapacityMbps/8*5 - 12.5
	if math.Abs(fp.RemainingMB-want) > 1e-9 {
		t.Errorf("remaining=%v want %v", fp.RemainingMB, want)
	}
}

func TestRunCycle_RejectedThenRetried(t *testing.T) {
	h := newHarness(t, decision.DefaultConfig())
	h.neg.errs = []error{&negotiation.RejectionError{Reason: constants.NegotiationInvalidCredentials}}
	h.fill(30, -88, 0.70, -60, 0.95)
	fp := decision.NewFlowProgress(flow, 150)

	rec := h.engine.RunCycle(context.Background(), fp)
	if rec.Outcome != constants.OutcomeOffloadNotPerformed || rec.Reason != constants.ReasonNegotiationRejected {
		t.Fatalf("want offload_not_performed negotiation_rejected, got %s %s", rec.Outcome, rec.Reason)
	}
	if rec.Negotiation != constants.NegotiationInvalidCredentials {
		t.Errorf("want rejection reason recorded, got %q", rec.Negotiation)
	}
	if h.dp.Calls("add_group") != 0 {
		t.Fatalf("flow must stay single-path after a rejection")
	}
	if fp.Completed {
		t.Fatalf("flow must keep cycling")
	}

	rec = h.engine.RunCycle(context.Background(), fp)
	if rec.Outcome != constants.OutcomeOffload || !rec.SplitApplied {
		t.Fatalf("retry should offload, got %s %s", rec.Outcome, rec.Reason)
	}
	if h.neg.calls != 2 || rec.Cycle != 2 {
		t.Errorf("want 2 negotiations over 2 cycles, got %d (cycle %d)", h.neg.calls, rec.Cycle)
	}
}

func TestRunCycle_TransportFailure(t *testing.T) {
	h := newHarness(t, decision.DefaultConfig())
	h.neg.errs = []error{fmt.Errorf("%w: connection refused", negotiation.ErrTransport)}
	h.fill(30, -88, 0.70, -60, 0.95)

	rec := h.engine.RunCycle(context.Background(), decision.NewFlowProgress(flow, 150))
	if rec.Outcome != constants.OutcomeOffloadNotPerformed || rec.Reason != constants.ReasonNegotiationFailed {
		t.Fatalf("want negotiation_failed, got %s %s", rec.Outcome, rec.Reason)
	}
}

func TestRunCycle_SplitFailure(t *testing.T) {
	h := newHarness(t, decision.DefaultConfig())
	h.dp.FailNext("add_group", errors.New("switch gone"))
	h.fill(30, -88, 0.70, -60, 0.95)

	rec := h.engine.RunCycle(context.Background(), decision.NewFlowProgress(flow, 150))
	if rec.Outcome != constants.OutcomeOffloadNotPerformed || rec.Reason != constants.ReasonSplitFailed {
		t.Fatalf("want split_failed, got %s %s", rec.Outcome, rec.Reason)
	}
	if rec.SplitApplied {
		t.Errorf("failed split must not be marked applied")
	}
}

func TestRunCycle_Overloaded(t *testing.T) {
	h := newHarness(t, decision.DefaultConfig())
	h.load.res = negotiation.LoadResult{Load: 0.9}
	h.fill(30, -88, 0.70, -60, 0.95)

	rec := h.engine.RunCycle(context.Background(), decision.NewFlowProgress(flow, 150))
	if rec.Outcome != constants.OutcomeLTEOnly || rec.Reason != constants.ReasonWiFiOverloaded {
		t.Fatalf("want wifi_overloaded, got %s %s", rec.Outcome, rec.Reason)
	}
	if h.neg.calls != 0 {
		t.Errorf("overloaded WiFi must not be negotiated with")
	}
}

func TestRunCycle_ColdStart(t *testing.T) {
	h := newHarness(t, decision.DefaultConfig())
	h.fill(5, -88, 0.70, -60, 0.95)
	fp := decision.NewFlowProgress(flow, 150)

	rec := h.engine.RunCycle(context.Background(), fp)
	if rec.Outcome != constants.OutcomeInsufficientData || rec.Reason != constants.ReasonColdStart {
		t.Fatalf("want insufficient_data cold_start, got %s %s", rec.Outcome, rec.Reason)
	}
	if rec.LTEPrediction.ThroughputMbps != 5 || rec.LTEPrediction.Quality != constants.Intermediate {
		t.Errorf("want cold-start prediction, got %+v", rec.LTEPrediction)
	}
	if rec.OffloadPriority != 1 {
		t.Errorf("Intermediate LTE should carry offload priority 1, got %d", rec.OffloadPriority)
	}
	// 5 Mbps for 5 s
	if math.Abs(fp.RemainingMB-146.875) > 1e-9 {
		t.Errorf("remaining=%v want 146.875", fp.RemainingMB)
	}
	if h.neg.calls != 0 {
		t.Errorf("cold start must not negotiate")
	}
}

func TestRunCycle_LTEOnlyProposesZeroAfterOffload(t *testing.T) {
	h := newHarness(t, decision.DefaultConfig())
	h.fill(30, -88, 0.70, -60, 0.95)
	fp := decision.NewFlowProgress(flow, 20)

	if rec := h.engine.RunCycle(context.Background(), fp); rec.Outcome != constants.OutcomeOffload {
		t.Fatalf("want offload on weak LTE, got %s %s", rec.Outcome, rec.Reason)
	}

	h.fill(30, -65, 0.93, -60, 0.95)
	rec := h.engine.RunCycle(context.Background(), fp)
	if rec.Outcome != constants.OutcomeLTEOnly {
		t.Fatalf("want lte_only on recovered LTE, got %s %s", rec.Outcome, rec.Reason)
	}
	st, _ := h.split.Status(flow)
	if !st.Pending {
		t.Errorf("alpha 0 should be pending for the next flowlet, got %+v", st)
	}
	if h.dp.Calls("modify_group") != 0 {
		t.Errorf("the cycle itself must not rewrite the table")
	}
}

func TestRunCycle_RecordsEveryCycle(t *testing.T) {
	h := newHarness(t, decision.DefaultConfig())
	h.fill(30, -65, 0.93, -60, 0.95)
	fp := decision.NewFlowProgress(flow, 100)

	cycles := 0
	for !fp.Completed && cycles < 20 {
		h.engine.RunCycle(context.Background(), fp)
		cycles++
	}
	if !fp.Completed {
		t.Fatalf("flow did not complete in %d cycles", cycles)
	}
	if got := len(h.sink.Decisions()); got != cycles {
		t.Errorf("want %d decision records, got %d", cycles, got)
	}
}
