// Package predictor turns an interface's metric window into a predicted
// throughput and quality label.
package predictor

import (
	"context"

	"k8s.io/klog/v2"

	"github.com/Student-osmania/SDN-offloading/pkg/constants"
	"github.com/Student-osmania/SDN-offloading/pkg/quality"
)

// Point is one normalized (signal, delivery ratio) step of a sequence.
type Point struct {
	RSSI float64
	PDR  float64
}

// Scorer classifies a normalized two-channel sequence.
type Scorer interface {
	Score(ctx context.Context, seq []Point) (constants.Quality, float64, error)
	Name() string
}

// Normalization holds the per-channel statistics the sequence is scaled with.
type Normalization struct {
	RSSIMean float64 `yaml:"rssiMean"`
	RSSIStd  float64 `yaml:"rssiStd"`
	PDRMean  float64 `yaml:"pdrMean"`
	PDRStd   float64 `yaml:"pdrStd"`
}

func DefaultNormalization() Normalization {
	return Normalization{RSSIMean: -75, RSSIStd: 8, PDRMean: 0.85, PDRStd: 0.08}
}

func (n Normalization) Normalize(rssi, pdr float64) Point {
	return Point{
		RSSI: (rssi - n.RSSIMean) / nonZero(n.RSSIStd),
		PDR:  (pdr - n.PDRMean) / nonZero(n.PDRStd),
	}
}

func (n Normalization) Denormalize(p Point) (rssi, pdr float64) {
	return p.RSSI*nonZero(n.RSSIStd) + n.RSSIMean, p.PDR*nonZero(n.PDRStd) + n.PDRMean
}

func nonZero(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}

// HeuristicScorer denormalizes the mean of the most recent points and applies
// the threshold classifier. It never fails.
type HeuristicScorer struct {
	classifier *quality.Classifier
	norm       Normalization
	recent     int
}

func NewHeuristicScorer(c *quality.Classifier, norm Normalization) *HeuristicScorer {
	return &HeuristicScorer{classifier: c, norm: norm, recent: 5}
}

func (h *HeuristicScorer) Name() string { return "heuristic" }

func (h *HeuristicScorer) Score(_ context.Context, seq []Point) (constants.Quality, float64, error) {
	if len(seq) == 0 {
		return constants.Intermediate, 0, nil
	}
	start := len(seq) - h.recent
	if start < 0 {
		start = 0
	}
	var mean Point
	for _, p := range seq[start:] {
		mean.RSSI += p.RSSI
		mean.PDR += p.PDR
	}
	n := float64(len(seq) - start)
	mean.RSSI /= n
	mean.PDR /= n

	rssi, pdr := h.norm.Denormalize(mean)
	r := h.classifier.Classify(rssi, pdr)
	return r.Quality, r.Confidence, nil
}

// FallbackScorer asks the primary scorer and falls back to the secondary one
// whenever the primary errors.
type FallbackScorer struct {
	primary  Scorer
	fallback Scorer
}

func NewFallbackScorer(primary, fallback Scorer) *FallbackScorer {
	return &FallbackScorer{primary: primary, fallback: fallback}
}

func (f *FallbackScorer) Name() string {
	return f.primary.Name() + "+" + f.fallback.Name()
}

func (f *FallbackScorer) Score(ctx context.Context, seq []Point) (constants.Quality, float64, error) {
	q, conf, err := f.primary.Score(ctx, seq)
	if err == nil {
		scorerCalls.WithLabelValues(f.primary.Name(), "ok").Inc()
		return q, conf, nil
	}
	scorerCalls.WithLabelValues(f.primary.Name(), "error").Inc()
	klog.Warningf("Scorer %s failed, using %s: %v", f.primary.Name(), f.fallback.Name(), err)
	return f.fallback.Score(ctx, seq)
}

// NewScorer picks the model-backed scorer when a model URL is configured,
// with the heuristic as its fallback, and the heuristic alone otherwise.
func NewScorer(cfg ModelConfig, c *quality.Classifier, norm Normalization) Scorer {
	heuristic := NewHeuristicScorer(c, norm)
	if cfg.URL == "" {
		klog.Info("No quality model configured, using threshold heuristic")
		return heuristic
	}
	klog.Infof("Using quality model at %s with heuristic fallback", cfg.URL)
	return NewFallbackScorer(NewModelScorer(cfg), heuristic)
}
