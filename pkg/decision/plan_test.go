package decision_test

import (
	"math"
	"testing"

	"github.com/Student-osmania/SDN-offloading/pkg/constants"
	"github.com/Student-osmania/SDN-offloading/pkg/decision"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestEvaluate_LTEMeetsDeadline_StaysLTE(t *testing.T) {
	p := decision.Evaluate(decision.DefaultConfig(), decision.PlanInput{
		RemainingMB:     10,
		LTECapacityMbps: 17.9,
		LTEQuality:      constants.Good,
		LTEPredMbps:     24,
		WiFiPredMbps:    36,
		WiFiLoad:        0.3,
	})
	if p.Outcome != constants.OutcomeLTEOnly || p.Reason != constants.ReasonLTEMeetsDeadline {
		t.Fatalf("want lte_only lte_meets_deadline, got %s %s", p.Outcome, p.Reason)
	}
	if p.Alpha != 0 {
		t.Errorf("LTE-only plan must carry alpha=0, got %v", p.Alpha)
	}
}

func TestEvaluate_DeadlineMiss_Offloads(t *testing.T) {
	p := decision.Evaluate(decision.DefaultConfig(), decision.PlanInput{
		RemainingMB:     150,
		LTECapacityMbps: 2,
		LTEQuality:      constants.Intermediate,
		LTEPredMbps:     10,
		WiFiPredMbps:    15,
		WiFiLoad:        0.3,
	})
	if p.Outcome != constants.OutcomeOffload || p.Reason != constants.ReasonDeadlineMiss {
		t.Fatalf("want offload lte_misses_deadline, got %s %s", p.Outcome, p.Reason)
	}
	if !approx(p.TLTESeconds, 600) {
		t.Errorf("T_LTE = %v, want 600", p.TLTESeconds)
	}
	if !approx(p.Alpha, 0.42) {
		t.Errorf("alpha = %v, want 0.42", p.Alpha)
	}
	if !approx(p.VLTEMB, 3.75) || !approx(p.VWiFiMB, 146.25) {
		t.Errorf("V_LTE=%v V_WiFi=%v, want 3.75 and 146.25", p.VLTEMB, p.VWiFiMB)
	}
	if !approx(p.RequestedBWMbps, 78) {
		t.Errorf("requested = %v, want 78", p.RequestedBWMbps)
	}
}

func TestEvaluate_BadLTEWithinDeadline_Offloads(t *testing.T) {
	p := decision.Evaluate(decision.DefaultConfig(), decision.PlanInput{
		RemainingMB:     20,
		LTECapacityMbps: 16,
		LTEQuality:      constants.Bad,
		LTEPredMbps:     3,
		WiFiPredMbps:    30,
	})
	if p.Outcome != constants.OutcomeOffload || p.Reason != constants.ReasonLTEBad {
		t.Fatalf("want offload lte_quality_bad, got %s %s", p.Outcome, p.Reason)
	}
	// T_LTE = 10 s leaves 5 s of LTE before the deadline.
	if !approx(p.VLTEMB, 10) || !approx(p.VWiFiMB, 10) {
		t.Errorf("V_LTE=%v V_WiFi=%v, want 10 and 10", p.VLTEMB, p.VWiFiMB)
	}
}

func TestEvaluate_WiFiOverloaded_StaysLTE(t *testing.T) {
	p := decision.Evaluate(decision.DefaultConfig(), decision.PlanInput{
		RemainingMB:     150,
		LTECapacityMbps: 2,
		LTEQuality:      constants.Bad,
		LTEPredMbps:     3,
		WiFiPredMbps:    30,
		WiFiLoad:        0.75,
	})
	if p.Outcome != constants.OutcomeLTEOnly || p.Reason != constants.ReasonWiFiOverloaded {
		t.Fatalf("want lte_only wifi_overloaded, got %s %s", p.Outcome, p.Reason)
	}
}

func TestEvaluate_BelowMinWorth_StaysLTE(t *testing.T) {
	p := decision.Evaluate(decision.DefaultConfig(), decision.PlanInput{
		RemainingMB:     4,
		LTECapacityMbps: 2,
		LTEQuality:      constants.Intermediate,
		LTEPredMbps:     10,
		WiFiPredMbps:    15,
	})
	if p.Outcome != constants.OutcomeLTEOnly || p.Reason != constants.ReasonBelowMinWorth {
		t.Fatalf("want lte_only below min worth, got %s %s", p.Outcome, p.Reason)
	}
	if !approx(p.VWiFiMB, 0.25) || p.Alpha != 0 {
		t.Errorf("V_WiFi=%v alpha=%v, want 0.25 and 0", p.VWiFiMB, p.Alpha)
	}
}

func TestEvaluate_BadLTEIgnoresMinWorth(t *testing.T) {
	// T_LTE just past the deadline leaves almost nothing for WiFi.
	p := decision.Evaluate(decision.DefaultConfig(), decision.PlanInput{
		RemainingMB:     10,
		LTECapacityMbps: 5.25,
		LTEQuality:      constants.Bad,
		LTEPredMbps:     3,
		WiFiPredMbps:    30,
	})
	if p.Outcome != constants.OutcomeOffload {
		t.Fatalf("want offload for Bad LTE, got %s %s", p.Outcome, p.Reason)
	}
	if p.VWiFiMB >= 1 {
		t.Errorf("expected a small WiFi share, got %v", p.VWiFiMB)
	}
}

func TestEvaluate_ZeroCapacity(t *testing.T) {
	p := decision.Evaluate(decision.DefaultConfig(), decision.PlanInput{
		RemainingMB:  50,
		LTEQuality:   constants.Bad,
		WiFiPredMbps: 30,
	})
	if p.Outcome != constants.OutcomeOffload || !math.IsInf(p.TLTESeconds, 1) {
		t.Fatalf("want offload with infinite T_LTE, got %s %v", p.Outcome, p.TLTESeconds)
	}
	if !approx(p.VWiFiMB, 50) || !approx(p.Alpha, 1) {
		t.Errorf("V_WiFi=%v alpha=%v, want 50 and 1", p.VWiFiMB, p.Alpha)
	}
}

// Lowering LTE capacity never turns an offload back into LTE-only.
func TestEvaluate_Monotonic(t *testing.T) {
	cfg := decision.DefaultConfig()
	for _, q := range []constants.Quality{constants.Good, constants.Intermediate, constants.Bad} {
		for _, remaining := range []float64{2, 10, 30, 150} {
			offloaded := false
			for capMbps := 50.0; capMbps >= 0.5; capMbps -= 0.25 {
				p := decision.Evaluate(cfg, decision.PlanInput{
					RemainingMB:     remaining,
					LTECapacityMbps: capMbps,
					LTEQuality:      q,
					LTEPredMbps:     10,
					WiFiPredMbps:    15,
					WiFiLoad:        0.3,
				})
				if offloaded && p.Outcome != constants.OutcomeOffload {
					t.Fatalf("quality=%s remaining=%v: offload flipped to %s (%s) at %v Mbps",
						q, remaining, p.Outcome, p.Reason, capMbps)
				}
				if p.Outcome == constants.OutcomeOffload {
					offloaded = true
				}
			}
		}
	}
}

func TestConfigValidate(t *testing.T) {
	if err := decision.DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	bad := []func(*decision.Config){
		func(c *decision.Config) { c.Deadline = 0 },
		func(c *decision.Config) { c.Interval = -1 },
		func(c *decision.Config) { c.WiFiOverloadThreshold = 1.5 },
		func(c *decision.Config) { c.Accounting = "both" },
		func(c *decision.Config) { c.Capacity.RBFraction = 0 },
	}
	for i, mutate := range bad {
		cfg := decision.DefaultConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestCapacity(t *testing.T) {
	m := decision.DefaultCapacityModel()

	if got := m.Capacity(-65, 0.93); math.Abs(got-17.9155) > 1e-3 {
		t.Errorf("Capacity(-65, 0.93) = %v, want ~17.9155", got)
	}
	if got := m.Capacity(-120, 0.9); got != m.MinMbps {
		t.Errorf("deep fade must clamp to %v, got %v", m.MinMbps, got)
	}
	m.RBFraction = 1
	if got := m.Capacity(-40, 1); got != m.MaxMbps {
		t.Errorf("strong signal must clamp to %v, got %v", m.MaxMbps, got)
	}

	m = decision.DefaultCapacityModel()
	prev := 0.0
	for rssi := -100.0; rssi <= -40; rssi += 5 {
		got := m.Capacity(rssi, 0.9)
		if got < prev {
			t.Fatalf("capacity decreased from %v to %v at %v dBm", prev, got, rssi)
		}
		prev = got
	}
}
