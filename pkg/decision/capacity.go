package decision

import (
	"fmt"
	"math"

	"github.com/Student-osmania/SDN-offloading/pkg/util"
)

// thermalNoiseDBmPerHz is kT at room temperature.
const thermalNoiseDBmPerHz = -174.0

// CapacityModel estimates achievable LTE throughput from the received power
// with a Shannon bound, derated by the resource-block share and delivery ratio.
type CapacityModel struct {
	BandwidthMHz  float64 `yaml:"bandwidthMHz"`
	NoiseFigureDB float64 `yaml:"noiseFigureDB"`
	RBFraction    float64 `yaml:"rbFraction"`
	MinMbps       float64 `yaml:"minMbps"`
	MaxMbps       float64 `yaml:"maxMbps"`
}

func DefaultCapacityModel() CapacityModel {
	return CapacityModel{
		BandwidthMHz:  20,
		NoiseFigureDB: 7,
		RBFraction:    0.1,
		MinMbps:       0.5,
		MaxMbps:       50,
	}
}

func (m CapacityModel) Validate() error {
	if m.BandwidthMHz <= 0 {
		return fmt.Errorf("capacity bandwidthMHz must be positive, got %v", m.BandwidthMHz)
	}
	if m.RBFraction <= 0 || m.RBFraction > 1 {
		return fmt.Errorf("capacity rbFraction must be in (0, 1], got %v", m.RBFraction)
	}
	if m.MinMbps <= 0 || m.MaxMbps < m.MinMbps {
		return fmt.Errorf("invalid capacity bounds [%v, %v]", m.MinMbps, m.MaxMbps)
	}
	return nil
}

// NoiseFloorDBm is the thermal noise over the channel plus the receiver's
// noise figure.
func (m CapacityModel) NoiseFloorDBm() float64 {
	return thermalNoiseDBmPerHz + 10*math.Log10(m.BandwidthMHz*1e6) + m.NoiseFigureDB
}

// Capacity returns the clamped throughput in Mbps for a received power in
// dBm and a delivery ratio.
func (m CapacityModel) Capacity(rssi, pdr float64) float64 {
	snr := math.Pow(10, (rssi-m.NoiseFloorDBm())/10)
	bps := m.BandwidthMHz * 1e6 * math.Log2(1+snr) * m.RBFraction * util.Clamp(pdr, 0, 1)
	return util.Clamp(bps/1e6, m.MinMbps, m.MaxMbps)
}
