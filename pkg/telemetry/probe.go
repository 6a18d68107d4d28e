package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/go-ping/ping"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"

	"github.com/Student-osmania/SDN-offloading/pkg/constants"
)

// ProbeTarget is an address reachable only through one interface of a node.
type ProbeTarget struct {
	Node      string              `yaml:"node"`
	Interface constants.Interface `yaml:"interface"`
	Address   string              `yaml:"address"`
}

type pingFunc func(ctx context.Context, addr string) (*ping.Statistics, error)

// Probe measures delivery ratio with ICMP echo and hands it to the Store,
// which merges it into the next report of the same interface.
type Probe struct {
	store      *Store
	targets    []ProbeTarget
	interval   time.Duration
	timeout    time.Duration
	privileged bool
	ping       pingFunc
}

// NewProbe builds a probe. privileged selects raw ICMP sockets, which need
// CAP_NET_RAW; otherwise go-ping uses unprivileged UDP echo.
func NewProbe(store *Store, targets []ProbeTarget, interval time.Duration, privileged bool) *Probe {
	p := &Probe{
		store:      store,
		targets:    targets,
		interval:   interval,
		timeout:    5 * time.Second,
		privileged: privileged,
	}
	p.ping = p.icmp
	return p
}

// Run probes every target each interval until ctx is done.
func (p *Probe) Run(ctx context.Context) {
	if len(p.targets) == 0 {
		return
	}
	klog.Infof("Starting delivery-ratio probe for %d targets every %v", len(p.targets), p.interval)
	wait.UntilWithContext(ctx, p.probeAll, p.interval)
}

func (p *Probe) probeAll(ctx context.Context) {
	for _, t := range p.targets {
		pctx, cancel := context.WithTimeout(ctx, p.timeout)
		if err := p.probeOnce(pctx, t); err != nil {
			probeFailures.WithLabelValues(string(t.Interface)).Inc()
			klog.Warningf("Probe %s/%s (%s) failed: %v", t.Node, t.Interface, t.Address, err)
		}
		cancel()
	}
}

func (p *Probe) probeOnce(ctx context.Context, t ProbeTarget) error {
	stats, err := p.ping(ctx, t.Address)
	if err != nil {
		return err
	}
	if stats.PacketsSent == 0 {
		return fmt.Errorf("no echo requests sent to %s", t.Address)
	}

	pdr := 1 - stats.PacketLoss/100
	p.store.RecordPDR(t.Node, t.Interface, pdr)
	klog.V(4).Infof("Probe %s/%s: loss=%.1f%% rtt=%v pdr=%.2f",
		t.Node, t.Interface, stats.PacketLoss, stats.AvgRtt, pdr)
	return nil
}

// icmp performs ICMP pings using go-ping.
func (p *Probe) icmp(ctx context.Context, addr string) (*ping.Statistics, error) {
	pinger, err := ping.NewPinger(addr)
	if err != nil {
		return nil, fmt.Errorf("new pinger: %w", err)
	}
	pinger.SetPrivileged(p.privileged)
	pinger.Count = 5
	pinger.Timeout = 3 * time.Second
	pinger.Interval = 200 * time.Millisecond

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			pinger.Stop()
		case <-done:
		}
	}()

	if err := pinger.Run(); err != nil {
		return nil, fmt.Errorf("ping run: %w", err)
	}
	return pinger.Statistics(), nil
}
