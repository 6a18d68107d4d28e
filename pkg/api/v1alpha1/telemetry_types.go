package v1alpha1

import (
	"time"

	"github.com/Student-osmania/SDN-offloading/pkg/constants"
)

// Sample is one (signal strength, delivery ratio) observation of an interface.
type Sample struct {
	RSSI      float64   `json:"rssi"`
	PDR       float64   `json:"pdr"`
	Timestamp time.Time `json:"timestamp"`
}

// Position is the reported location of the mobile node.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// TelemetryReport is the payload accepted on POST /telemetry.
type TelemetryReport struct {
	Node     string   `json:"node,omitempty"`
	Position Position `json:"position"`
	LTERSSI  float64  `json:"lte_rssi"`
	WiFiRSSI float64  `json:"wifi_rssi"`
	LTEPDR   float64  `json:"lte_pdr"`
	WiFiPDR  float64  `json:"wifi_pdr"`
}

// Prediction is the predictor output for one interface.
type Prediction struct {
	Interface      constants.Interface `json:"interface"`
	ThroughputMbps float64             `json:"throughput_mbps"`
	Quality        constants.Quality   `json:"quality"`
	Confidence     float64             `json:"confidence"`
	WarmedUp       bool                `json:"warmed_up"`
	Samples        int                 `json:"samples"`
}
