package v1alpha1

import "time"

// LoadResponse is served on GET /load by the WiFi domain.
type LoadResponse struct {
	Load           float64 `json:"load"`
	ThroughputMbps float64 `json:"throughput_mbps"`
	CapacityMbps   float64 `json:"capacity_mbps"`
}

// LegacyLoadResponse is served on GET /wifi_load.
type LegacyLoadResponse struct {
	Load       float64 `json:"load"`
	Clients    int     `json:"clients"`
	MaxClients int     `json:"max_clients"`
	Timestamp  float64 `json:"timestamp"`
}

// ConfirmRequest carries credentials and a bandwidth request on POST /confirm.
type ConfirmRequest struct {
	UEID        string  `json:"ue_id"`
	MAC         string  `json:"mac"`
	RequestedBW float64 `json:"requested_bw"`
	Token       string  `json:"token"`
}

// ConfirmResponse is the grant, or the failure reason when Success is false.
type ConfirmResponse struct {
	Success     bool    `json:"success"`
	AllocatedBW float64 `json:"allocated_bw"`
	Reason      string  `json:"reason,omitempty"`
}

// ClientsUpdate is accepted on POST /clients.
type ClientsUpdate struct {
	Count int `json:"count"`
}

// Session is the per-UE negotiation state.
type Session struct {
	UEID            string    `json:"ue_id"`
	MAC             string    `json:"mac"`
	Authenticated   bool      `json:"authenticated"`
	GrantedBWMbps   float64   `json:"granted_bw_mbps"`
	QuotaConsumedMB float64   `json:"quota_consumed_mb"`
	Grants          int       `json:"grants"`
	LastReason      string    `json:"last_reason,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// WiFiStatus is served on GET /wifi_status.
type WiFiStatus struct {
	Controller    string    `json:"controller"`
	Switches      int       `json:"switches"`
	Load          float64   `json:"load"`
	Clients       int       `json:"clients"`
	CapacityMbps  float64   `json:"capacity_mbps"`
	AllocatedMbps float64   `json:"allocated_mbps"`
	Status        string    `json:"status"`
	Sessions      []Session `json:"sessions"`
}
