package v1alpha1

import "time"

// InterfaceStatus is the latest sample and window fill of one interface.
type InterfaceStatus struct {
	Node    string  `json:"node"`
	RSSI    float64 `json:"rssi"`
	PDR     float64 `json:"pdr"`
	Samples int     `json:"samples"`

	Position *Position `json:"position,omitempty"`
}

// FlowStatus summarizes a monitored flow.
type FlowStatus struct {
	Flow           FlowKey `json:"flow"`
	TotalMB        float64 `json:"total_mb"`
	RemainingMB    float64 `json:"remaining_mb"`
	Cycles         int     `json:"cycles"`
	Completed      bool    `json:"completed"`
	FlowletID      uint64  `json:"flowlet_id"`
	Packets        uint64  `json:"packets"`
	ByteCount      uint64  `json:"byte_count"`
	TableInstalled bool    `json:"table_installed"`
	GroupID        uint32  `json:"group_id,omitempty"`
	LTEWeight      int     `json:"lte_weight"`
	WiFiWeight     int     `json:"wifi_weight"`
	LastOutcome    string  `json:"last_outcome,omitempty"`
}

// StatusSnapshot is the read-only view served on GET /status.
type StatusSnapshot struct {
	Timestamp  time.Time                  `json:"timestamp"`
	Datapath   uint64                     `json:"datapath"`
	Interfaces map[string]InterfaceStatus `json:"interfaces"`
	Flows      []FlowStatus               `json:"flows"`
	Sessions   []Session                  `json:"sessions"`
}
