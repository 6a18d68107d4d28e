package negotiation

import (
	"fmt"
	"math"
	"sync"

	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	apis "github.com/Student-osmania/SDN-offloading/pkg/api/v1alpha1"
	"github.com/Student-osmania/SDN-offloading/pkg/constants"
	"github.com/Student-osmania/SDN-offloading/pkg/util"
)

type AccessPointConfig struct {
	CapacityMbps float64 `yaml:"capacityMbps"`
	MaxClients   int     `yaml:"maxClients"`
	Secret       string  `yaml:"secret"`

	// UEs maps every known UE id to its MAC address.
	UEs map[string]string `yaml:"ues"`
}

func DefaultAccessPointConfig() AccessPointConfig {
	return AccessPointConfig{
		CapacityMbps: 30,
		MaxClients:   20,
		UEs:          map[string]string{},
	}
}

func (c AccessPointConfig) Validate() error {
	if c.CapacityMbps <= 0 {
		return fmt.Errorf("capacityMbps must be positive, got %v", c.CapacityMbps)
	}
	if c.MaxClients <= 0 {
		return fmt.Errorf("maxClients must be positive, got %d", c.MaxClients)
	}
	if c.Secret == "" {
		return fmt.Errorf("secret is required")
	}
	return nil
}

// AccessPoint is the WiFi domain's side of the exchange: it reports load
// and grants bandwidth out of what is left.
type AccessPoint struct {
	cfg   AccessPointConfig
	clock clock.PassiveClock

	mu          sync.RWMutex
	clients     int
	allocations map[string]float64
	sessions    *SessionStore
}

func NewAccessPoint(cfg AccessPointConfig, clk clock.PassiveClock) *AccessPoint {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &AccessPoint{
		cfg:         cfg,
		clock:       clk,
		allocations: make(map[string]float64),
		sessions:    NewSessionStore(),
	}
}

func (a *AccessPoint) SetClients(n int) {
	if n < 0 {
		n = 0
	}
	a.mu.Lock()
	a.clients = n
	a.mu.Unlock()
	klog.V(2).Infof("WiFi client count set to %d", n)
}

// Load is the larger of the association load and the granted share of
// capacity. With no associated clients a slowly cycling background load
// between 0.30 and 0.66 stands in for unmanaged traffic.
func (a *AccessPoint) Load() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loadLocked()
}

func (a *AccessPoint) loadLocked() float64 {
	var base float64
	if a.clients > 0 {
		base = math.Min(float64(a.clients)/float64(a.cfg.MaxClients), 1)
	} else {
		base = 0.3 + float64(a.clock.Now().Unix()%10)*0.04
	}
	return util.Clamp(math.Max(base, a.allocatedLocked()/a.cfg.CapacityMbps), 0, 1)
}

func (a *AccessPoint) allocatedLocked() float64 {
	var sum float64
	for _, bw := range a.allocations {
		sum += bw
	}
	return sum
}

// Confirm authenticates the request and grants min(requested, available).
// A UE's earlier grant is released first, so repeating a request does not
// double count.
func (a *AccessPoint) Confirm(req apis.ConfirmRequest) apis.ConfirmResponse {
	mac, known := a.cfg.UEs[req.UEID]
	if !known {
		return a.reject(req, constants.NegotiationUnknownUE)
	}
	if mac != req.MAC || !VerifyToken(a.cfg.Secret, req.MAC, req.Token) {
		return a.reject(req, constants.NegotiationInvalidCredentials)
	}

	a.mu.Lock()
	delete(a.allocations, req.UEID)
	load := a.loadLocked()
	available := a.cfg.CapacityMbps * (1 - load)
	if available <= 0 {
		a.mu.Unlock()
		return a.reject(req, constants.NegotiationCapacityExceeded)
	}
	granted := math.Max(0, math.Min(req.RequestedBW, available))
	a.allocations[req.UEID] = granted
	a.mu.Unlock()

	a.sessions.Update(req.UEID, req.MAC, func(s *apis.Session) {
		s.Authenticated = true
		s.GrantedBWMbps = granted
		s.Grants++
		s.LastReason = ""
		s.UpdatedAt = a.clock.Now()
	})
	grantsIssued.Inc()
	klog.Infof("Granted %.2f Mbps to %s (requested %.2f, available %.2f, load %.2f)",
		granted, req.UEID, req.RequestedBW, available, load)
	return apis.ConfirmResponse{Success: true, AllocatedBW: granted}
}

func (a *AccessPoint) reject(req apis.ConfirmRequest, reason string) apis.ConfirmResponse {
	if reason != constants.NegotiationUnknownUE {
		a.sessions.Update(req.UEID, req.MAC, func(s *apis.Session) {
			if reason == constants.NegotiationInvalidCredentials {
				s.Authenticated = false
			}
			s.LastReason = reason
			s.UpdatedAt = a.clock.Now()
		})
	}
	grantsRejected.WithLabelValues(reason).Inc()
	klog.Warningf("Rejected confirm from %q: %s", req.UEID, reason)
	return apis.ConfirmResponse{Success: false, Reason: reason}
}

// Release returns a UE's grant to the pool.
func (a *AccessPoint) Release(ueID string) bool {
	a.mu.Lock()
	_, ok := a.allocations[ueID]
	delete(a.allocations, ueID)
	a.mu.Unlock()
	if ok {
		a.sessions.Update(ueID, a.cfg.UEs[ueID], func(s *apis.Session) {
			s.GrantedBWMbps = 0
			s.UpdatedAt = a.clock.Now()
		})
	}
	return ok
}

func (a *AccessPoint) LoadResponse() apis.LoadResponse {
	a.mu.RLock()
	defer a.mu.RUnlock()
	load := a.loadLocked()
	return apis.LoadResponse{
		Load:           load,
		ThroughputMbps: a.cfg.CapacityMbps * (1 - load),
		CapacityMbps:   a.cfg.CapacityMbps,
	}
}

func (a *AccessPoint) LegacyLoad() apis.LegacyLoadResponse {
	a.mu.RLock()
	defer a.mu.RUnlock()
	now := a.clock.Now()
	return apis.LegacyLoadResponse{
		Load:       a.loadLocked(),
		Clients:    a.clients,
		MaxClients: a.cfg.MaxClients,
		Timestamp:  float64(now.UnixNano()) / 1e9,
	}
}

func (a *AccessPoint) Status(switches int) apis.WiFiStatus {
	a.mu.RLock()
	st := apis.WiFiStatus{
		Controller:    "WiFi",
		Switches:      switches,
		Load:          a.loadLocked(),
		Clients:       a.clients,
		CapacityMbps:  a.cfg.CapacityMbps,
		AllocatedMbps: a.allocatedLocked(),
		Status:        "active",
	}
	a.mu.RUnlock()
	st.Sessions = a.sessions.List()
	return st
}
