// Package quality maps an interface's signal strength and delivery ratio to a
// discrete link-quality label.
package quality

import (
	"fmt"

	"github.com/Student-osmania/SDN-offloading/pkg/constants"
)

// Thresholds are the classifier's decision boundaries.
type Thresholds struct {
	GoodPDR  float64 `yaml:"goodPDR"`
	GoodRSSI float64 `yaml:"goodRSSI"`
	BadPDR   float64 `yaml:"badPDR"`
	BadRSSI  float64 `yaml:"badRSSI"`
}

// DefaultThresholds returns the combined RSSI/PDR table boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{
		GoodPDR:  0.88,
		GoodRSSI: -74,
		BadPDR:   0.76,
		BadRSSI:  -87,
	}
}

// Validate rejects missing or inverted boundaries.
func (t Thresholds) Validate() error {
	if t.GoodPDR <= 0 || t.GoodPDR > 1 {
		return fmt.Errorf("goodPDR must be in (0,1], got %v", t.GoodPDR)
	}
	if t.BadPDR < 0 || t.BadPDR >= t.GoodPDR {
		return fmt.Errorf("badPDR must be in [0, goodPDR), got %v", t.BadPDR)
	}
	if t.GoodRSSI == 0 || t.BadRSSI == 0 {
		return fmt.Errorf("RSSI thresholds must be set (good=%v bad=%v)", t.GoodRSSI, t.BadRSSI)
	}
	if t.BadRSSI >= t.GoodRSSI {
		return fmt.Errorf("badRSSI (%v) must be below goodRSSI (%v)", t.BadRSSI, t.GoodRSSI)
	}
	return nil
}

// Result is a label with its confidence in [0,1].
type Result struct {
	Quality    constants.Quality
	Confidence float64
}

// Classifier is stateless; a single instance may be shared.
type Classifier struct {
	t Thresholds
}

func NewClassifier(t Thresholds) *Classifier {
	return &Classifier{t: t}
}

func (c *Classifier) Thresholds() Thresholds {
	return c.t
}

// Classify applies the delivery-ratio-first rule table:
// Bad if either metric is at or under its bad boundary, Good if both are at
// or over their good boundary, Intermediate otherwise.
func (c *Classifier) Classify(rssi, pdr float64) Result {
	if pdr <= c.t.BadPDR || rssi <= c.t.BadRSSI {
		return Result{Quality: constants.Bad, Confidence: 1}
	}
	if pdr >= c.t.GoodPDR && rssi >= c.t.GoodRSSI {
		return Result{Quality: constants.Good, Confidence: 1}
	}

	// Inside the band: 0 sits on the Bad edge, 1 on the Good edge.
	blend := (c.scoreRSSI(rssi) + c.scorePDR(pdr)) / 2
	conf := blend
	if 1-blend > conf {
		conf = 1 - blend
	}
	return Result{Quality: constants.Intermediate, Confidence: conf}
}

func (c *Classifier) scoreRSSI(rssi float64) float64 {
	return band(rssi, c.t.BadRSSI, c.t.GoodRSSI)
}

func (c *Classifier) scorePDR(pdr float64) float64 {
	return band(pdr, c.t.BadPDR, c.t.GoodPDR)
}

func band(v, lo, hi float64) float64 {
	switch {
	case v >= hi:
		return 1
	case v <= lo:
		return 0
	default:
		return (v - lo) / (hi - lo)
	}
}

// OffloadPriority is 0 (no offload), 1 (check WiFi) or 2 (offload now).
func OffloadPriority(q constants.Quality) int {
	switch q {
	case constants.Intermediate:
		return 1
	case constants.Bad:
		return 2
	default:
		return 0
	}
}

// NeedsOffload reports whether a label warrants looking at the WiFi leg.
func NeedsOffload(q constants.Quality) bool {
	return q == constants.Bad || q == constants.Intermediate
}
