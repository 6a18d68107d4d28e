package main

import (
	"errors"
	"flag"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	"github.com/Student-osmania/SDN-offloading/pkg/audit"
	"github.com/Student-osmania/SDN-offloading/pkg/config"
	"github.com/Student-osmania/SDN-offloading/pkg/controller"
	"github.com/Student-osmania/SDN-offloading/pkg/dataplane"
	"github.com/Student-osmania/SDN-offloading/pkg/decision"
	"github.com/Student-osmania/SDN-offloading/pkg/flowlet"
	"github.com/Student-osmania/SDN-offloading/pkg/negotiation"
	"github.com/Student-osmania/SDN-offloading/pkg/predictor"
	"github.com/Student-osmania/SDN-offloading/pkg/quality"
	"github.com/Student-osmania/SDN-offloading/pkg/server"
	"github.com/Student-osmania/SDN-offloading/pkg/signals"
	"github.com/Student-osmania/SDN-offloading/pkg/telemetry"
)

type options struct {
	configPath string
	envFile    string
	listen     string
	wifiURL    string
	ryuURL     string
	workers    int
}

func (o *options) AddFlags(flags *pflag.FlagSet) {
	flags.StringVar(&o.configPath, "config", "", "Path to the YAML configuration file")
	flags.StringVar(&o.envFile, "env-file", ".env", "Optional dotenv file loaded before the configuration")
	flags.StringVar(&o.listen, "listen", "", "REST listen address, overrides lte.listen")
	flags.StringVar(&o.wifiURL, "wifi-url", "", "WiFi controller base URL, overrides lte.remote.wifiURL")
	flags.StringVar(&o.ryuURL, "ryu-url", "", "Ryu ofctl_rest base URL, overrides lte.ryuURL")
	flags.IntVar(&o.workers, "workers", 0, "Control cycle workers, overrides lte.workers")
}

func main() {
	opts := &options{}
	opts.AddFlags(pflag.CommandLine)
	gofs := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(gofs)
	pflag.CommandLine.AddGoFlagSet(gofs)
	pflag.Parse()
	defer klog.Flush()

	if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		klog.Fatalf("Error loading %s: %v", opts.envFile, err)
	}

	root, err := config.Load(opts.configPath)
	if err != nil {
		klog.Fatalf("Error loading configuration: %v", err)
	}
	cfg := root.LTE
	if opts.listen != "" {
		cfg.Listen = opts.listen
	}
	if opts.wifiURL != "" {
		cfg.Remote.BaseURL = opts.wifiURL
	}
	if opts.ryuURL != "" {
		cfg.RyuURL = opts.ryuURL
	}
	if opts.workers > 0 {
		cfg.Workers = opts.workers
	}
	if err := cfg.Validate(); err != nil {
		klog.Fatalf("Invalid configuration: %v", err)
	}

	ctx := signals.SetupSignalContext()
	clk := clock.RealClock{}

	hub := server.NewHub()
	sinks := audit.Multi{hub}
	if cfg.Audit.File != "" {
		f, err := audit.OpenFile(cfg.Audit.File)
		if err != nil {
			klog.Fatalf("Error opening audit file: %v", err)
		}
		sinks = append(sinks, f)
	}
	if cfg.Audit.SQLDSN != "" || cfg.Audit.SQLitePath != "" {
		db, err := audit.OpenSQL(ctx, cfg.Audit.SQLDSN, cfg.Audit.SQLitePath)
		if err != nil {
			klog.Fatalf("Error opening audit database: %v", err)
		}
		if n, err := db.Count(ctx, audit.KindDecision); err == nil {
			klog.Infof("Audit database holds %d decision records from earlier runs", n)
		}
		sinks = append(sinks, db)
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			klog.Errorf("Error closing audit sinks: %v", err)
		}
	}()

	var dp dataplane.Dataplane
	if cfg.RyuURL != "" {
		klog.Infof("Programming switches through Ryu at %s", cfg.RyuURL)
		dp = dataplane.NewRyu(cfg.RyuURL, cfg.DataplaneTimeout)
	} else {
		klog.Info("No Ryu URL configured, using the in-process dataplane")
		dp = dataplane.NewMemory()
	}

	store := telemetry.NewStore(cfg.Predictor.WindowSize, clk)
	classifier := quality.NewClassifier(cfg.Thresholds)
	pred := predictor.New(cfg.Predictor,
		predictor.NewScorer(cfg.Predictor.Model, classifier, cfg.Predictor.Normalization))

	remote := negotiation.NewClient(cfg.Remote)
	sessions := negotiation.NewSessionStore()
	negotiator := negotiation.NewNegotiator(remote, cfg.Credentials, sessions, clk)

	splitter := flowlet.New(cfg.Flowlet, dp, sinks, clk)

	engine := decision.NewEngine(decision.EngineConfig{
		Config:     cfg.Decision,
		Node:       cfg.Node,
		Classifier: classifier,
		Predictor:  pred,
		Telemetry:  store,
		Load:       remote,
		Negotiator: negotiator,
		Splitter:   splitter,
		Sink:       sinks,
		Clock:      clk,
	})

	ctrl := controller.NewController(cfg.Controller, engine, splitter, dp, store, sessions, clk)
	srv := server.NewLTEServer(ctrl, store, hub, cfg.Node, newLimiter(cfg.RateLimit))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return ctrl.Run(ctx, cfg.Workers)
	})
	if len(cfg.Probe.Targets) > 0 {
		probe := telemetry.NewProbe(store, cfg.Probe.Targets, cfg.Probe.Interval, cfg.Probe.Privileged)
		g.Go(func() error {
			probe.Run(ctx)
			return nil
		})
	}
	g.Go(func() error {
		return server.Serve(ctx, "lte", cfg.Listen, srv.Router())
	})

	klog.Infof("LTE offloading controller started (node %s, deadline %v, cycle %v)",
		cfg.Node, cfg.Decision.Deadline, cfg.Decision.Interval)
	if err := g.Wait(); err != nil {
		klog.Fatalf("Error running controller: %s", err.Error())
	}
}

func newLimiter(rl config.RateLimit) *rate.Limiter {
	if rl.QPS <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rl.QPS), rl.Burst)
}
