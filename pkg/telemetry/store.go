package telemetry

import (
	"sort"
	"sync"
	"time"

	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	apis "github.com/Student-osmania/SDN-offloading/pkg/api/v1alpha1"
	"github.com/Student-osmania/SDN-offloading/pkg/constants"
	"github.com/Student-osmania/SDN-offloading/pkg/util"
)

// Range clamps applied on ingestion.
const (
	MinRSSI = -100.0
	MaxRSSI = -40.0
)

// DefaultNode is used when a report does not name its node.
const DefaultNode = "ue1"

// MeasurementTTL is how long a probed delivery ratio is merged into reports.
const MeasurementTTL = 30 * time.Second

type windowKey struct {
	node  string
	iface constants.Interface
}

type measurement struct {
	pdr float64
	at  time.Time
}

// Store owns one Window per (node, interface). Telemetry reports are the
// only writers of the windows; probed delivery ratios are kept aside and
// merged into the next report. The control cycle reads the windows.
type Store struct {
	size  int
	clock clock.PassiveClock

	mu        sync.RWMutex
	windows   map[windowKey]*Window
	positions map[string]apis.Position
	measured  map[windowKey]measurement
}

func NewStore(size int, clk clock.PassiveClock) *Store {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Store{
		size:      size,
		clock:     clk,
		windows:   make(map[windowKey]*Window),
		positions: make(map[string]apis.Position),
		measured:  make(map[windowKey]measurement),
	}
}

// Window returns the window for (node, iface), creating it on first use.
func (s *Store) Window(node string, iface constants.Interface) *Window {
	k := windowKey{node: node, iface: iface}

	s.mu.RLock()
	w, ok := s.windows[k]
	s.mu.RUnlock()
	if ok {
		return w
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok = s.windows[k]; ok {
		return w
	}
	w = NewWindow(s.size)
	s.windows[k] = w
	return w
}

// Ingest appends one report to the node's LTE and WiFi windows. Values are
// clamped to their physical ranges; nothing else is validated. A fresh
// probed delivery ratio replaces a higher reported one.
func (s *Store) Ingest(node string, r apis.TelemetryReport) {
	if node == "" {
		node = DefaultNode
	}
	now := s.clock.Now()

	s.mu.Lock()
	s.positions[node] = r.Position
	ltePDR := s.mergePDR(windowKey{node, constants.LTE}, r.LTEPDR, now)
	wifiPDR := s.mergePDR(windowKey{node, constants.WiFi}, r.WiFiPDR, now)
	s.mu.Unlock()

	s.Append(node, constants.LTE, apis.Sample{RSSI: r.LTERSSI, PDR: ltePDR, Timestamp: now})
	s.Append(node, constants.WiFi, apis.Sample{RSSI: r.WiFiRSSI, PDR: wifiPDR, Timestamp: now})

	klog.V(5).Infof("Telemetry %s: pos=(%.1f,%.1f) lte={%.1fdBm %.2f} wifi={%.1fdBm %.2f}",
		node, r.Position.X, r.Position.Y, r.LTERSSI, r.LTEPDR, r.WiFiRSSI, r.WiFiPDR)
}

// RecordPDR keeps a measured delivery ratio for (node, iface) until it
// expires or a report picks it up.
func (s *Store) RecordPDR(node string, iface constants.Interface, pdr float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.measured[windowKey{node, iface}] = measurement{pdr: util.Clamp(pdr, 0, 1), at: s.clock.Now()}
}

// mergePDR returns the lower of the reported and a fresh measured ratio.
// Caller holds s.mu.
func (s *Store) mergePDR(k windowKey, reported float64, now time.Time) float64 {
	m, ok := s.measured[k]
	if !ok {
		return reported
	}
	if now.Sub(m.at) > MeasurementTTL {
		delete(s.measured, k)
		return reported
	}
	if m.pdr < reported {
		return m.pdr
	}
	return reported
}

// Append clamps and adds a single sample.
func (s *Store) Append(node string, iface constants.Interface, sample apis.Sample) {
	if sample.RSSI < MinRSSI || sample.RSSI > MaxRSSI {
		samplesClamped.WithLabelValues(string(iface), "rssi").Inc()
		sample.RSSI = util.Clamp(sample.RSSI, MinRSSI, MaxRSSI)
	}
	if sample.PDR < 0 || sample.PDR > 1 {
		samplesClamped.WithLabelValues(string(iface), "pdr").Inc()
		sample.PDR = util.Clamp(sample.PDR, 0, 1)
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = s.clock.Now()
	}
	s.Window(node, iface).Add(sample)
	samplesIngested.WithLabelValues(string(iface)).Inc()
}

func (s *Store) Samples(node string, iface constants.Interface) []apis.Sample {
	return s.Window(node, iface).Samples()
}

func (s *Store) Latest(node string, iface constants.Interface) (apis.Sample, bool) {
	return s.Window(node, iface).Latest()
}

func (s *Store) Position(node string) (apis.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[node]
	return p, ok
}

// Snapshot returns the latest sample of every window keyed "node/iface".
func (s *Store) Snapshot() map[string]apis.InterfaceStatus {
	s.mu.RLock()
	keys := make([]windowKey, 0, len(s.windows))
	for k := range s.windows {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].node != keys[j].node {
			return keys[i].node < keys[j].node
		}
		return keys[i].iface < keys[j].iface
	})

	out := make(map[string]apis.InterfaceStatus, len(keys))
	for _, k := range keys {
		w := s.Window(k.node, k.iface)
		st := apis.InterfaceStatus{Node: k.node, Samples: w.Len()}
		if latest, ok := w.Latest(); ok {
			st.RSSI = latest.RSSI
			st.PDR = latest.PDR
		}
		if pos, ok := s.Position(k.node); ok {
			st.Position = &pos
		}
		out[k.node+"/"+string(k.iface)] = st
	}
	return out
}
