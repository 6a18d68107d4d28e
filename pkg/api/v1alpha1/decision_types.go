package v1alpha1

import (
	"fmt"
	"strings"
	"time"

	"github.com/Student-osmania/SDN-offloading/pkg/constants"
)

// FlowKey identifies a monitored transfer by its IPv4 source and destination.
type FlowKey struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

func (k FlowKey) String() string {
	return k.Src + "->" + k.Dst
}

// ParseFlowKey is the inverse of FlowKey.String.
func ParseFlowKey(s string) (FlowKey, error) {
	src, dst, ok := strings.Cut(s, "->")
	if !ok || src == "" || dst == "" {
		return FlowKey{}, fmt.Errorf("invalid flow key %q", s)
	}
	return FlowKey{Src: src, Dst: dst}, nil
}

// DecisionRecord is the write-once audit entry emitted by every control cycle.
type DecisionRecord struct {
	ID        string            `json:"id"`
	Flow      FlowKey           `json:"flow"`
	Cycle     int               `json:"cycle"`
	Timestamp time.Time         `json:"timestamp"`
	Outcome   constants.Outcome `json:"outcome"`
	Reason    string            `json:"reason"`

	// Inputs
	LTERSSI         float64           `json:"lte_rssi"`
	LTEPDR          float64           `json:"lte_pdr"`
	LTEQuality      constants.Quality `json:"lte_quality"`
	OffloadPriority int               `json:"offload_priority"`
	WiFiLoad        float64           `json:"wifi_load"`
	LoadFallback    bool              `json:"load_fallback"`
	LTECapacityMbps float64           `json:"lte_capacity_mbps"`
	LTEPrediction   Prediction        `json:"lte_prediction"`
	WiFiPrediction  Prediction        `json:"wifi_prediction"`

	// Computed
	TLTESeconds     float64 `json:"t_lte_s"`
	Alpha           float64 `json:"alpha"`
	VLTEMB          float64 `json:"v_lte_mb"`
	VWiFiMB         float64 `json:"v_wifi_mb"`
	RequestedBWMbps float64 `json:"requested_bw_mbps"`
	AllocatedBWMbps float64 `json:"allocated_bw_mbps"`
	Negotiation     string  `json:"negotiation,omitempty"`
	SplitApplied    bool    `json:"split_applied"`

	// Volume accounting
	RemainingBeforeMB float64 `json:"remaining_before_mb"`
	RemainingAfterMB  float64 `json:"remaining_after_mb"`
	Completed         bool    `json:"completed"`
}

// FlowletEvent records one flowlet transition or table transaction.
type FlowletEvent struct {
	ID         string    `json:"id"`
	Flow       FlowKey   `json:"flow"`
	Timestamp  time.Time `json:"timestamp"`
	FlowletID  uint64    `json:"flowlet_id"`
	GapMs      float64   `json:"gap_ms"`
	Alpha      float64   `json:"alpha"`
	LTEWeight  int       `json:"lte_weight"`
	WiFiWeight int       `json:"wifi_weight"`
	LTEMbps    float64   `json:"lte_mbps"`
	WiFiMbps   float64   `json:"wifi_mbps"`
	GroupID    uint32    `json:"group_id"`
	Operation  string    `json:"operation"`
	Applied    bool      `json:"applied"`
	Error      string    `json:"error,omitempty"`
}
