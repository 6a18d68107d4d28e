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

	"github.com/Student-osmania/SDN-offloading/pkg/config"
	"github.com/Student-osmania/SDN-offloading/pkg/negotiation"
	"github.com/Student-osmania/SDN-offloading/pkg/server"
	"github.com/Student-osmania/SDN-offloading/pkg/signals"
)

var (
	configPath string
	envFile    string
	listen     string
	clients    int
)

func main() {
	pflag.StringVar(&configPath, "config", "", "Path to the YAML configuration file")
	pflag.StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before the configuration")
	pflag.StringVar(&listen, "listen", "", "REST listen address, overrides wifi.listen")
	pflag.IntVar(&clients, "clients", 0, "Initial number of associated clients")
	gofs := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(gofs)
	pflag.CommandLine.AddGoFlagSet(gofs)
	pflag.Parse()
	defer klog.Flush()

	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		klog.Fatalf("Error loading %s: %v", envFile, err)
	}

	root, err := config.Load(configPath)
	if err != nil {
		klog.Fatalf("Error loading configuration: %v", err)
	}
	cfg := root.WiFi
	if listen != "" {
		cfg.Listen = listen
	}
	if err := cfg.Validate(); err != nil {
		klog.Fatalf("Invalid configuration: %v", err)
	}

	ctx := signals.SetupSignalContext()

	ap := negotiation.NewAccessPoint(cfg.AccessPoint, clock.RealClock{})
	ap.SetClients(clients)

	var limiter *rate.Limiter
	if cfg.RateLimit.QPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.QPS), cfg.RateLimit.Burst)
	}
	switches := cfg.Switches
	srv := server.NewWiFiServer(ap, func() int { return switches }, limiter)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(ctx, "wifi", cfg.Listen, srv.Router())
	})

	klog.Infof("WiFi controller started (capacity %.1f Mbps, %d UEs known)",
		cfg.AccessPoint.CapacityMbps, len(cfg.AccessPoint.UEs))
	if err := g.Wait(); err != nil {
		klog.Fatalf("Error running WiFi controller: %s", err.Error())
	}
}
