package predictor

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"

	apis "github.com/Student-osmania/SDN-offloading/pkg/api/v1alpha1"
	"github.com/Student-osmania/SDN-offloading/pkg/constants"
	"github.com/Student-osmania/SDN-offloading/pkg/util"
)

// ThroughputTable maps a label to a throughput in Mbps.
type ThroughputTable map[constants.Quality]float64

// Adjustment thresholds applied to the most recent raw sample after scoring.
type Adjustment struct {
	VideoRSSI    float64 `yaml:"videoRSSI"`
	VideoPDR     float64 `yaml:"videoPDR"`
	StrictRSSI   float64 `yaml:"strictRSSI"`
	StrictPDR    float64 `yaml:"strictPDR"`
	MinRSSI      float64 `yaml:"minRSSI"`
	MinPDR       float64 `yaml:"minPDR"`
	BoostFactor  float64 `yaml:"boostFactor"`
	ShrinkFactor float64 `yaml:"shrinkFactor"`
}

type Config struct {
	WindowSize    int                                     `yaml:"windowSize"`
	ColdStartMbps float64                                 `yaml:"coldStartMbps"`
	MinMbps       float64                                 `yaml:"minMbps"`
	MaxMbps       float64                                 `yaml:"maxMbps"`
	Throughput    map[constants.Interface]ThroughputTable `yaml:"throughput"`
	Adjustment    Adjustment                              `yaml:"adjustment"`
	Normalization Normalization                           `yaml:"normalization"`
	Model         ModelConfig                             `yaml:"model"`
}

func DefaultConfig() Config {
	return Config{
		WindowSize:    30,
		ColdStartMbps: 5.0,
		MinMbps:       0.5,
		MaxMbps:       50,
		Throughput: map[constants.Interface]ThroughputTable{
			constants.LTE:  {constants.Good: 20, constants.Intermediate: 10, constants.Bad: 3},
			constants.WiFi: {constants.Good: 30, constants.Intermediate: 15, constants.Bad: 5},
		},
		Adjustment: Adjustment{
			VideoRSSI:    -80,
			VideoPDR:     0.80,
			StrictRSSI:   -70,
			StrictPDR:    0.90,
			MinRSSI:      -90,
			MinPDR:       0.60,
			BoostFactor:  1.2,
			ShrinkFactor: 0.5,
		},
		Normalization: DefaultNormalization(),
	}
}

func (c Config) Validate() error {
	if c.WindowSize <= 0 {
		return fmt.Errorf("windowSize must be positive, got %d", c.WindowSize)
	}
	if c.MinMbps <= 0 || c.MaxMbps < c.MinMbps {
		return fmt.Errorf("invalid throughput bounds [%v, %v]", c.MinMbps, c.MaxMbps)
	}
	for _, iface := range constants.Interfaces {
		table, ok := c.Throughput[iface]
		if !ok {
			return fmt.Errorf("missing throughput table for %s", iface)
		}
		for _, q := range []constants.Quality{constants.Good, constants.Intermediate, constants.Bad} {
			if table[q] <= 0 {
				return fmt.Errorf("throughput for %s/%s must be positive", iface, q)
			}
		}
	}
	return nil
}

// Predictor is stateless apart from its scorer; windows are owned by the
// telemetry store and passed in.
type Predictor struct {
	cfg    Config
	scorer Scorer
}

func New(cfg Config, scorer Scorer) *Predictor {
	return &Predictor{cfg: cfg, scorer: scorer}
}

func (p *Predictor) WindowSize() int {
	return p.cfg.WindowSize
}

// Predict produces a throughput and label for one interface. Windows shorter
// than WindowSize yield the cold-start prediction regardless of content.
func (p *Predictor) Predict(ctx context.Context, iface constants.Interface, samples []apis.Sample) apis.Prediction {
	if len(samples) < p.cfg.WindowSize {
		return apis.Prediction{
			Interface:      iface,
			ThroughputMbps: p.cfg.ColdStartMbps,
			Quality:        constants.Intermediate,
			Samples:        len(samples),
		}
	}

	window := samples[len(samples)-p.cfg.WindowSize:]
	seq := make([]Point, len(window))
	for i, s := range window {
		seq[i] = p.cfg.Normalization.Normalize(s.RSSI, s.PDR)
	}

	label, conf, err := p.scorer.Score(ctx, seq)
	if err != nil {
		klog.Warningf("Scoring %s window failed, assuming Intermediate: %v", iface, err)
		label, conf = constants.Intermediate, 0
	}

	tp := p.cfg.Throughput[iface][label]
	latest := window[len(window)-1]
	tp, label = p.adjust(tp, label, latest)
	tp = util.Clamp(tp, p.cfg.MinMbps, p.cfg.MaxMbps)

	predictedThroughput.WithLabelValues(string(iface)).Set(tp)
	klog.V(4).Infof("Predicted %s: %.2f Mbps %s (conf=%.2f, scorer=%s, last={%.1fdBm %.2f})",
		iface, tp, label, conf, p.scorer.Name(), latest.RSSI, latest.PDR)

	return apis.Prediction{
		Interface:      iface,
		ThroughputMbps: tp,
		Quality:        label,
		Confidence:     conf,
		WarmedUp:       true,
		Samples:        len(samples),
	}
}

// adjust overrides the scorer at the edges using the raw latest sample.
func (p *Predictor) adjust(tp float64, label constants.Quality, s apis.Sample) (float64, constants.Quality) {
	a := p.cfg.Adjustment
	switch {
	case s.RSSI >= a.VideoRSSI && s.PDR >= a.VideoPDR:
		tp *= a.BoostFactor
		if s.RSSI >= a.StrictRSSI && s.PDR >= a.StrictPDR {
			label = constants.Good
		}
	case s.RSSI < a.MinRSSI || s.PDR < a.MinPDR:
		tp *= a.ShrinkFactor
		label = constants.Bad
	}
	return tp, label
}
