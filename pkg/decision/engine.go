package decision

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	apis "github.com/Student-osmania/SDN-offloading/pkg/api/v1alpha1"
	"github.com/Student-osmania/SDN-offloading/pkg/audit"
	"github.com/Student-osmania/SDN-offloading/pkg/constants"
	"github.com/Student-osmania/SDN-offloading/pkg/flowlet"
	"github.com/Student-osmania/SDN-offloading/pkg/negotiation"
	"github.com/Student-osmania/SDN-offloading/pkg/quality"
)

// FlowProgress tracks how much of a monitored transfer is left. The engine
// is its only writer; callers serialize cycles per flow.
type FlowProgress struct {
	Key         apis.FlowKey
	TotalMB     float64
	RemainingMB float64
	Cycles      int
	Completed   bool
	LastOutcome constants.Outcome
}

func NewFlowProgress(key apis.FlowKey, totalMB float64) *FlowProgress {
	return &FlowProgress{Key: key, TotalMB: totalMB, RemainingMB: totalMB}
}

type Windows interface {
	Samples(node string, iface constants.Interface) []apis.Sample
}

type Predictor interface {
	Predict(ctx context.Context, iface constants.Interface, samples []apis.Sample) apis.Prediction
	WindowSize() int
}

type LoadQuerier interface {
	QueryLoad(ctx context.Context) negotiation.LoadResult
}

type Negotiator interface {
	Negotiate(ctx context.Context, requestedMbps, volumeMB float64) (negotiation.Grant, error)
}

type Splitter interface {
	ApplySplit(ctx context.Context, key apis.FlowKey, alpha float64, now time.Time, lteMbps, wifiMbps float64) (apis.FlowletEvent, error)
	Propose(key apis.FlowKey, alpha float64) bool
}

type EngineConfig struct {
	Config     Config
	Node       string
	Classifier *quality.Classifier
	Predictor  Predictor
	Telemetry  Windows
	Load       LoadQuerier
	Negotiator Negotiator
	Splitter   Splitter
	Sink       audit.Sink
	Clock      clock.PassiveClock
}

type Engine struct {
	config EngineConfig
	clock  clock.PassiveClock
	sink   audit.Sink
}

func NewEngine(config EngineConfig) *Engine {
	if config.Classifier == nil || config.Predictor == nil || config.Telemetry == nil {
		klog.Fatal("Classifier, Predictor and Telemetry must be provided")
	}
	if config.Load == nil || config.Negotiator == nil || config.Splitter == nil {
		klog.Fatal("Load, Negotiator and Splitter must be provided")
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	sink := config.Sink
	if sink == nil {
		sink = audit.NewMemory()
	}
	return &Engine{config: config, clock: clk, sink: sink}
}

func (e *Engine) Config() Config {
	return e.config.Config
}

// RunCycle runs one control cycle for the flow and returns its record.
// Every path through the cycle produces exactly one record; none of them
// returns an error.
func (e *Engine) RunCycle(ctx context.Context, fp *FlowProgress) apis.DecisionRecord {
	start := e.clock.Now()
	node := e.config.Node

	fp.Cycles++
	rec := apis.DecisionRecord{
		ID:                uuid.NewString(),
		Flow:              fp.Key,
		Cycle:             fp.Cycles,
		Timestamp:         start,
		RemainingBeforeMB: fp.RemainingMB,
	}

	lteSamples := e.config.Telemetry.Samples(node, constants.LTE)
	wifiSamples := e.config.Telemetry.Samples(node, constants.WiFi)
	if n := len(lteSamples); n > 0 {
		rec.LTERSSI = lteSamples[n-1].RSSI
		rec.LTEPDR = lteSamples[n-1].PDR
	}

	var lteMbps float64
	if len(lteSamples) < e.config.Predictor.WindowSize() {
		// Cold start: stay on LTE and account with the default throughput.
		rec.LTEPrediction = e.config.Predictor.Predict(ctx, constants.LTE, lteSamples)
		rec.WiFiPrediction = e.config.Predictor.Predict(ctx, constants.WiFi, wifiSamples)
		rec.LTEQuality = rec.LTEPrediction.Quality
		rec.OffloadPriority = quality.OffloadPriority(rec.LTEQuality)
		rec.Outcome = constants.OutcomeInsufficientData
		rec.Reason = constants.ReasonColdStart
		lteMbps = rec.LTEPrediction.ThroughputMbps
		rec.LTECapacityMbps = lteMbps
		klog.V(2).Infof("Flow %s cycle %d: LTE window has %d/%d samples, staying on LTE",
			fp.Key, fp.Cycles, len(lteSamples), e.config.Predictor.WindowSize())
		e.config.Splitter.Propose(fp.Key, 0)
	} else {
		lteMbps = e.decide(ctx, fp, &rec, lteSamples, wifiSamples)
	}

	e.account(fp, &rec, lteMbps)
	recordDecision(rec)
	cycleLatency.Observe(e.clock.Since(start).Seconds())

	if err := e.sink.Record(ctx, audit.DecisionEntry(rec)); err != nil {
		klog.Errorf("Failed to record decision %s for %s: %v", rec.ID, fp.Key, err)
	}
	klog.V(2).Infof("Flow %s cycle %d: %s (%s) T_LTE=%.1fs alpha=%.2f V_LTE=%.2fMB V_WiFi=%.2fMB remaining=%.2fMB",
		fp.Key, rec.Cycle, rec.Outcome, rec.Reason, rec.TLTESeconds, rec.Alpha, rec.VLTEMB, rec.VWiFiMB, rec.RemainingAfterMB)
	return rec
}

// decide runs steps 1 to 5 of a warmed-up cycle and returns the LTE
// throughput the volume accounting should use.
func (e *Engine) decide(ctx context.Context, fp *FlowProgress, rec *apis.DecisionRecord, lteSamples, wifiSamples []apis.Sample) float64 {
	cfg := e.config.Config

	load := e.config.Load.QueryLoad(ctx)
	rec.WiFiLoad = load.Load
	rec.LoadFallback = load.Fallback

	capacity := cfg.Capacity.Capacity(rec.LTERSSI, rec.LTEPDR)
	rec.LTECapacityMbps = capacity

	rec.LTEPrediction = e.config.Predictor.Predict(ctx, constants.LTE, lteSamples)
	rec.WiFiPrediction = e.config.Predictor.Predict(ctx, constants.WiFi, wifiSamples)
	cls := e.config.Classifier.Classify(rec.LTERSSI, rec.LTEPDR)
	rec.LTEQuality = cls.Quality
	rec.OffloadPriority = quality.OffloadPriority(cls.Quality)
	if quality.NeedsOffload(cls.Quality) {
		klog.V(3).Infof("Flow %s: LTE %s (confidence %.2f, priority %d), weighing the WiFi leg",
			fp.Key, cls.Quality, cls.Confidence, rec.OffloadPriority)
	}

	plan := Evaluate(cfg, PlanInput{
		RemainingMB:     fp.RemainingMB,
		LTECapacityMbps: capacity,
		LTEQuality:      cls.Quality,
		LTEPredMbps:     rec.LTEPrediction.ThroughputMbps,
		WiFiPredMbps:    rec.WiFiPrediction.ThroughputMbps,
		WiFiLoad:        load.Load,
	})
	rec.Outcome = plan.Outcome
	rec.Reason = plan.Reason
	rec.TLTESeconds = plan.TLTESeconds
	rec.Alpha = plan.Alpha
	rec.VLTEMB = plan.VLTEMB
	rec.VWiFiMB = plan.VWiFiMB
	rec.RequestedBWMbps = plan.RequestedBWMbps

	if plan.Outcome != constants.OutcomeOffload {
		if e.config.Splitter.Propose(fp.Key, 0) {
			klog.V(4).Infof("Flow %s: proposed alpha=0 for the next flowlet", fp.Key)
		}
		return capacity
	}

	grant, err := e.config.Negotiator.Negotiate(ctx, plan.RequestedBWMbps, plan.VWiFiMB)
	if err != nil {
		rec.Outcome = constants.OutcomeOffloadNotPerformed
		if reason, ok := negotiation.IsRejection(err); ok {
			rec.Reason = constants.ReasonNegotiationRejected
			rec.Negotiation = reason
			klog.Warningf("Flow %s: offload not performed, WiFi domain rejected: %s", fp.Key, reason)
		} else {
			rec.Reason = constants.ReasonNegotiationFailed
			rec.Negotiation = "transport_error"
			klog.Warningf("Flow %s: offload not performed, negotiation failed: %v", fp.Key, err)
		}
		return capacity
	}
	rec.Negotiation = "granted"
	rec.AllocatedBWMbps = grant.AllocatedMbps

	ev, err := e.config.Splitter.ApplySplit(ctx, fp.Key, plan.Alpha, e.clock.Now(),
		rec.LTEPrediction.ThroughputMbps, rec.WiFiPrediction.ThroughputMbps)
	if err != nil {
		rec.Outcome = constants.OutcomeOffloadNotPerformed
		rec.Reason = constants.ReasonSplitFailed
		klog.Warningf("Flow %s: split not applied, will retry next cycle: %v", fp.Key, err)
		return capacity
	}
	rec.SplitApplied = ev.Applied || ev.Operation == flowlet.OpNone
	return capacity
}

// account decrements the remaining volume and closes the flow at zero.
func (e *Engine) account(fp *FlowProgress, rec *apis.DecisionRecord, lteMbps float64) {
	cfg := e.config.Config
	interval := cfg.Interval.Seconds()

	consumed := lteMbps / 8 * interval
	if cfg.Accounting == AccountingLTEAndWiFi && rec.Outcome == constants.OutcomeOffload {
		consumed += math.Min(rec.VWiFiMB, rec.AllocatedBWMbps/8*interval)
	}

	fp.RemainingMB -= consumed
	if fp.RemainingMB <= 0 {
		fp.RemainingMB = 0
		fp.Completed = true
		klog.Infof("Flow %s complete after %d cycles", fp.Key, fp.Cycles)
	}
	fp.LastOutcome = rec.Outcome

	rec.RemainingAfterMB = fp.RemainingMB
	rec.Completed = fp.Completed
	flowRemaining.WithLabelValues(fp.Key.String()).Set(fp.RemainingMB)
}
