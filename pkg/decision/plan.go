package decision

import (
	"math"

	"github.com/Student-osmania/SDN-offloading/pkg/constants"
	"github.com/Student-osmania/SDN-offloading/pkg/util"
)

// PlanInput is everything one cycle's decision depends on.
type PlanInput struct {
	RemainingMB     float64
	LTECapacityMbps float64
	LTEQuality      constants.Quality
	LTEPredMbps     float64
	WiFiPredMbps    float64
	WiFiLoad        float64
}

// Plan is the split a cycle wants before negotiation.
type Plan struct {
	Outcome         constants.Outcome
	Reason          string
	TLTESeconds     float64
	Alpha           float64
	VLTEMB          float64
	VWiFiMB         float64
	RequestedBWMbps float64
}

// Evaluate applies the deadline rule and, when offloading, sizes the split.
// It is pure; negotiation and the table write happen in the engine.
func Evaluate(cfg Config, in PlanInput) Plan {
	deadline := cfg.Deadline.Seconds()
	lteMBps := in.LTECapacityMbps / 8

	p := Plan{Outcome: constants.OutcomeLTEOnly}
	if lteMBps > 0 {
		p.TLTESeconds = in.RemainingMB / lteMBps
	} else {
		p.TLTESeconds = math.Inf(1)
	}

	if p.TLTESeconds < deadline && in.LTEQuality != constants.Bad {
		p.Reason = constants.ReasonLTEMeetsDeadline
		return p
	}
	if in.WiFiLoad >= cfg.WiFiOverloadThreshold {
		p.Reason = constants.ReasonWiFiOverloaded
		return p
	}

	if total := in.LTEPredMbps + in.WiFiPredMbps; total > 0 {
		p.Alpha = util.Clamp(in.WiFiPredMbps/total*(1-in.WiFiLoad), 0, 1)
	}

	remaining := math.Max(0, deadline-p.TLTESeconds)
	if remaining > 0 {
		p.VLTEMB = lteMBps * remaining
	} else {
		p.VLTEMB = lteMBps * deadline
	}
	p.VWiFiMB = math.Max(0, in.RemainingMB-p.VLTEMB)

	// A Bad LTE leg is abandoned whatever the size of the WiFi share.
	if p.VWiFiMB < cfg.MinWorthMB && in.LTEQuality != constants.Bad {
		p.Reason = constants.ReasonBelowMinWorth
		p.Alpha = 0
		return p
	}

	p.Outcome = constants.OutcomeOffload
	if in.LTEQuality == constants.Bad {
		p.Reason = constants.ReasonLTEBad
	} else {
		p.Reason = constants.ReasonDeadlineMiss
	}
	p.RequestedBWMbps = p.VWiFiMB * 8 / deadline
	return p
}
