package controller

import (
	"context"
	"fmt"
	"time"

	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/workqueue"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	apis "github.com/Student-osmania/SDN-offloading/pkg/api/v1alpha1"
	"github.com/Student-osmania/SDN-offloading/pkg/constants"
	"github.com/Student-osmania/SDN-offloading/pkg/dataplane"
	"github.com/Student-osmania/SDN-offloading/pkg/decision"
	"github.com/Student-osmania/SDN-offloading/pkg/flowlet"
	"github.com/Student-osmania/SDN-offloading/pkg/negotiation"
	"github.com/Student-osmania/SDN-offloading/pkg/telemetry"
)

type Config struct {
	StatsInterval  time.Duration `yaml:"statsInterval"`
	VerifyInterval time.Duration `yaml:"verifyInterval"`
	PollTimeout    time.Duration `yaml:"pollTimeout"`
	EventBuffer    int           `yaml:"eventBuffer"`
}

func DefaultConfig() Config {
	return Config{
		StatsInterval:  2 * time.Second,
		VerifyInterval: 10 * time.Second,
		PollTimeout:    2 * time.Second,
		EventBuffer:    1024,
	}
}

// Controller owns the monitored flows. Each flow runs its control cycle on
// a delaying work queue; stats and group verification run as independent
// polls; OpenFlow events go through the dispatcher.
type Controller struct {
	cfg Config

	engine    *decision.Engine
	splitter  *flowlet.Splitter
	dataplane dataplane.Dataplane
	telemetry *telemetry.Store
	sessions  *negotiation.SessionStore
	clock     clock.PassiveClock

	registry   *Registry
	workqueue  workqueue.TypedRateLimitingInterface[apis.FlowKey]
	dispatcher *Dispatcher
}

func NewController(
	cfg Config,
	engine *decision.Engine,
	splitter *flowlet.Splitter,
	dp dataplane.Dataplane,
	store *telemetry.Store,
	sessions *negotiation.SessionStore,
	clk clock.PassiveClock,
) *Controller {
	if clk == nil {
		clk = clock.RealClock{}
	}
	c := &Controller{
		cfg:       cfg,
		engine:    engine,
		splitter:  splitter,
		dataplane: dp,
		telemetry: store,
		sessions:  sessions,
		clock:     clk,
		registry:  NewRegistry(),
		workqueue: workqueue.NewTypedRateLimitingQueueWithConfig(
			workqueue.DefaultTypedControllerRateLimiter[apis.FlowKey](),
			workqueue.TypedRateLimitingQueueConfig[apis.FlowKey]{Name: "Flows"},
		),
		dispatcher: NewDispatcher(cfg.EventBuffer),
	}

	klog.Info("Setting up event handlers")
	c.dispatcher.Handle(EventSwitchConnected, c.handleSwitchConnected)
	c.dispatcher.Handle(EventPacketIn, c.handlePacketIn)
	c.dispatcher.Handle(EventStatsReply, c.handleStatsReply)

	return c
}

// Submit hands an event to the dispatcher without blocking. Packets are
// stamped with the controller clock here so flowlet gaps and control
// cycles share one time base.
func (c *Controller) Submit(ev Event) bool {
	if pkt, ok := ev.(PacketIn); ok {
		pkt.Received = c.clock.Now()
		ev = pkt
	}
	return c.dispatcher.Submit(ev)
}

func (c *Controller) Registry() *Registry {
	return c.registry
}

func (c *Controller) Run(ctx context.Context, workers int) error {
	if workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", workers)
	}

	defer utilruntime.HandleCrash()
	defer c.workqueue.ShutDown()

	klog.Info("Starting offload controller")
	go c.dispatcher.Run(ctx)
	go c.splitter.Run(ctx, workers)

	klog.Info("Starting workers")
	for i := 0; i < workers; i++ {
		go wait.UntilWithContext(ctx, c.runWorker, 200*time.Millisecond)
	}
	go wait.UntilWithContext(ctx, c.pollStats, c.cfg.StatsInterval)
	go wait.UntilWithContext(ctx, c.verifyGroups, c.cfg.VerifyInterval)

	klog.Info("Started workers")
	<-ctx.Done()
	klog.Info("Shutting down workers")

	return nil
}

func (c *Controller) runWorker(ctx context.Context) {
	for c.processNextWorkItem(ctx) {
	}
}

func (c *Controller) processNextWorkItem(ctx context.Context) bool {
	key, shutdown := c.workqueue.Get()
	if shutdown {
		return false
	}
	defer c.workqueue.Done(key)

	if c.syncHandler(ctx, key) {
		c.workqueue.AddAfter(key, c.engine.Config().Interval)
	}
	c.workqueue.Forget(key)
	return true
}

// syncHandler runs one cycle for key and reports whether the flow needs
// another one.
func (c *Controller) syncHandler(ctx context.Context, key apis.FlowKey) bool {
	entry, ok := c.registry.get(key)
	if !ok {
		utilruntime.HandleError(fmt.Errorf("flow %s in work queue is not registered", key))
		return false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	defer entry.publish()
	if entry.progress.Completed {
		return false
	}

	c.engine.RunCycle(ctx, entry.progress)
	if !entry.progress.Completed {
		return true
	}

	klog.Infof("Flow %s finished in %v", key, c.clock.Since(entry.firstSeen).Round(time.Second))
	if err := c.splitter.RemoveOffload(ctx, key); err != nil {
		klog.Warningf("Flow %s complete but offload rule not removed: %v", key, err)
	}
	return false
}

func (c *Controller) handleSwitchConnected(_ context.Context, ev Event) error {
	sc, ok := ev.(SwitchConnected)
	if !ok {
		return fmt.Errorf("unexpected event type %T", ev)
	}
	klog.Infof("Switch %d connected", sc.DPID)
	c.splitter.SetDatapath(sc.DPID)
	return nil
}

func (c *Controller) handlePacketIn(_ context.Context, ev Event) error {
	pkt, ok := ev.(PacketIn)
	if !ok {
		return fmt.Errorf("unexpected event type %T", ev)
	}
	if pkt.EthType == constants.EthTypeLLDP {
		return nil
	}
	if pkt.EthType != constants.EthTypeIPv4 || pkt.IPv4Src == "" || pkt.IPv4Dst == "" {
		klog.V(5).Infof("Ignoring non-IPv4 packet-in eth_type=0x%04x", pkt.EthType)
		return nil
	}

	if _, connected := c.splitter.Datapath(); !connected && pkt.DPID != 0 {
		c.splitter.SetDatapath(pkt.DPID)
	}

	now := pkt.Received
	if now.IsZero() {
		now = c.clock.Now()
	}
	key := apis.FlowKey{Src: pkt.IPv4Src, Dst: pkt.IPv4Dst}

	if c.registry.Register(key, c.engine.Config().DefaultFlowMB, now) {
		flowsMonitored.Set(float64(c.registry.Len()))
		klog.Infof("Monitoring flow %s (%.0f MB)", key, c.engine.Config().DefaultFlowMB)
		c.workqueue.AddAfter(key, c.engine.Config().Interval)
	}

	obs := c.splitter.OnPacket(key, now)
	if obs.Boundary {
		klog.V(4).Infof("Flow %s: flowlet %d after %v", key, obs.FlowletID, obs.Gap)
	}
	return nil
}

func (c *Controller) handleStatsReply(_ context.Context, ev Event) error {
	reply, ok := ev.(StatsReply)
	if !ok {
		return fmt.Errorf("unexpected event type %T", ev)
	}
	for _, st := range reply.Stats {
		if st.Match.EthType != constants.EthTypeIPv4 {
			continue
		}
		entry, ok := c.registry.get(apis.FlowKey{Src: st.Match.IPv4Src, Dst: st.Match.IPv4Dst})
		if !ok {
			continue
		}
		entry.setCounters(st.PacketCount, st.ByteCount)
	}
	return nil
}

func (c *Controller) pollStats(ctx context.Context) {
	dpid, ok := c.splitter.Datapath()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
	defer cancel()

	stats, err := c.dataplane.FlowStats(ctx, dpid)
	if err != nil {
		pollErrors.WithLabelValues("stats").Inc()
		utilruntime.HandleError(fmt.Errorf("flow stats from %d: %w", dpid, err))
		return
	}
	c.dispatcher.Submit(StatsReply{DPID: dpid, Stats: stats})
}

func (c *Controller) verifyGroups(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
	defer cancel()

	if _, err := c.splitter.Verify(ctx); err != nil {
		pollErrors.WithLabelValues("verify").Inc()
		utilruntime.HandleError(err)
	}
}

// Status assembles the read-only snapshot served to operators.
func (c *Controller) Status() apis.StatusSnapshot {
	dpid, _ := c.splitter.Datapath()
	snap := apis.StatusSnapshot{
		Timestamp:  c.clock.Now(),
		Datapath:   dpid,
		Interfaces: c.telemetry.Snapshot(),
		Flows:      []apis.FlowStatus{},
		Sessions:   []apis.Session{},
	}
	if c.sessions != nil {
		snap.Sessions = c.sessions.List()
	}

	for _, key := range c.registry.Keys() {
		entry, ok := c.registry.get(key)
		if !ok {
			continue
		}
		p := entry.snapshot()
		fs := apis.FlowStatus{
			Flow:        key,
			TotalMB:     p.TotalMB,
			RemainingMB: p.RemainingMB,
			Cycles:      p.Cycles,
			Completed:   p.Completed,
			LastOutcome: string(p.LastOutcome),
		}
		fs.Packets, fs.ByteCount = entry.counters()

		if st, ok := c.splitter.Status(key); ok {
			fs.FlowletID = st.FlowletID
			fs.TableInstalled = st.TableInstalled
			fs.GroupID = st.GroupID
			fs.LTEWeight = st.LTEWeight
			fs.WiFiWeight = st.WiFiWeight
			if fs.Packets == 0 {
				fs.Packets = st.Packets
			}
		}
		snap.Flows = append(snap.Flows, fs)
	}
	return snap
}
