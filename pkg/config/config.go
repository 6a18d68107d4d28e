// Package config loads the YAML configuration shared by both binaries.
// Values are resolved as defaults, then the file, then environment.
package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/Student-osmania/SDN-offloading/pkg/constants"
	"github.com/Student-osmania/SDN-offloading/pkg/controller"
	"github.com/Student-osmania/SDN-offloading/pkg/decision"
	"github.com/Student-osmania/SDN-offloading/pkg/flowlet"
	"github.com/Student-osmania/SDN-offloading/pkg/negotiation"
	"github.com/Student-osmania/SDN-offloading/pkg/predictor"
	"github.com/Student-osmania/SDN-offloading/pkg/quality"
	"github.com/Student-osmania/SDN-offloading/pkg/telemetry"
	"github.com/Student-osmania/SDN-offloading/pkg/util"
)

type Config struct {
	LTE  LTEConfig  `yaml:"lte"`
	WiFi WiFiConfig `yaml:"wifi"`
}

// RateLimit bounds inbound REST traffic. QPS <= 0 disables limiting.
type RateLimit struct {
	QPS   float64 `yaml:"qps"`
	Burst int     `yaml:"burst"`
}

type LTEConfig struct {
	Listen    string    `yaml:"listen"`
	Node      string    `yaml:"node"`
	Workers   int       `yaml:"workers"`
	RateLimit RateLimit `yaml:"rateLimit"`

	// Empty RyuURL programs an in-process table instead of a switch.
	RyuURL           string        `yaml:"ryuURL"`
	DataplaneTimeout time.Duration `yaml:"dataplaneTimeout"`

	Credentials negotiation.Credentials  `yaml:"credentials"`
	Remote      negotiation.ClientConfig `yaml:"remote"`
	Thresholds  quality.Thresholds       `yaml:"thresholds"`
	Predictor   predictor.Config         `yaml:"predictor"`
	Decision    decision.Config          `yaml:"decision"`
	Flowlet     flowlet.Config           `yaml:"flowlet"`
	Controller  controller.Config        `yaml:"controller"`
	Probe       ProbeConfig              `yaml:"probe"`
	Audit       AuditConfig              `yaml:"audit"`
}

type ProbeConfig struct {
	Interval   time.Duration           `yaml:"interval"`
	Privileged bool                    `yaml:"privileged"`
	Targets    []telemetry.ProbeTarget `yaml:"targets"`
}

// AuditConfig selects the persistent sinks. A DSN selects postgres, a
// sqlite path selects sqlite; both empty disables SQL.
type AuditConfig struct {
	File       string `yaml:"file"`
	SQLDSN     string `yaml:"sqlDSN"`
	SQLitePath string `yaml:"sqlitePath"`
}

type WiFiConfig struct {
	Listen      string                        `yaml:"listen"`
	Switches    int                           `yaml:"switches"`
	RateLimit   RateLimit                     `yaml:"rateLimit"`
	AccessPoint negotiation.AccessPointConfig `yaml:"accessPoint"`
}

func Default() *Config {
	return &Config{
		LTE: LTEConfig{
			Listen:           ":8081",
			Node:             telemetry.DefaultNode,
			Workers:          2,
			RateLimit:        RateLimit{QPS: 200, Burst: 400},
			DataplaneTimeout: 2 * time.Second,
			Credentials: negotiation.Credentials{
				UEID: telemetry.DefaultNode,
				MAC:  "00:00:00:00:00:01",
			},
			Remote:     negotiation.DefaultClientConfig(),
			Thresholds: quality.DefaultThresholds(),
			Predictor:  predictor.DefaultConfig(),
			Decision:   decision.DefaultConfig(),
			Flowlet:    flowlet.DefaultConfig(),
			Controller: controller.DefaultConfig(),
			Probe:      ProbeConfig{Interval: 5 * time.Second},
		},
		WiFi: WiFiConfig{
			Listen:      ":8080",
			Switches:    1,
			RateLimit:   RateLimit{QPS: 200, Burst: 400},
			AccessPoint: negotiation.DefaultAccessPointConfig(),
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path yields defaults plus environment. The result is not
// validated; callers validate the half they run.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides selected fields from OFFLOAD_* variables.
func (c *Config) ApplyEnv() {
	l := &c.LTE
	l.Listen = util.GetEnvOrDefault("OFFLOAD_LTE_LISTEN", l.Listen)
	l.Node = util.GetEnvOrDefault("OFFLOAD_NODE", l.Node)
	l.Workers = util.GetEnvInt("OFFLOAD_WORKERS", l.Workers)
	l.RyuURL = util.GetEnvOrDefault("OFFLOAD_RYU_URL", l.RyuURL)
	l.Credentials.UEID = util.GetEnvOrDefault("OFFLOAD_UE_ID", l.Credentials.UEID)
	l.Credentials.MAC = util.GetEnvOrDefault("OFFLOAD_UE_MAC", l.Credentials.MAC)
	l.Credentials.Secret = util.GetEnvOrDefault("OFFLOAD_SECRET", l.Credentials.Secret)
	l.Remote.BaseURL = util.GetEnvOrDefault("OFFLOAD_WIFI_URL", l.Remote.BaseURL)
	l.Remote.Timeout = util.GetEnvDuration("OFFLOAD_NEGOTIATION_TIMEOUT", l.Remote.Timeout)
	l.Remote.FallbackLoad = util.GetEnvFloat("OFFLOAD_FALLBACK_LOAD", l.Remote.FallbackLoad)
	l.Predictor.Model.URL = util.GetEnvOrDefault("OFFLOAD_MODEL_URL", l.Predictor.Model.URL)
	l.Decision.Deadline = util.GetEnvDuration("OFFLOAD_DEADLINE", l.Decision.Deadline)
	l.Decision.Interval = util.GetEnvDuration("OFFLOAD_INTERVAL", l.Decision.Interval)
	l.Decision.DefaultFlowMB = util.GetEnvFloat("OFFLOAD_DEFAULT_FLOW_MB", l.Decision.DefaultFlowMB)
	l.Decision.Accounting = decision.AccountingMode(
		util.GetEnvOrDefault("OFFLOAD_ACCOUNTING", string(l.Decision.Accounting)))
	l.Flowlet.Gap = util.GetEnvDuration("OFFLOAD_FLOWLET_GAP", l.Flowlet.Gap)
	l.Probe.Privileged = util.GetEnvBool("OFFLOAD_PROBE_PRIVILEGED", l.Probe.Privileged)
	l.Audit.File = util.GetEnvOrDefault("OFFLOAD_AUDIT_FILE", l.Audit.File)
	l.Audit.SQLDSN = util.GetEnvOrDefault("OFFLOAD_AUDIT_DSN", l.Audit.SQLDSN)
	l.Audit.SQLitePath = util.GetEnvOrDefault("OFFLOAD_AUDIT_SQLITE", l.Audit.SQLitePath)

	w := &c.WiFi
	w.Listen = util.GetEnvOrDefault("OFFLOAD_WIFI_LISTEN", w.Listen)
	w.AccessPoint.Secret = util.GetEnvOrDefault("OFFLOAD_SECRET", w.AccessPoint.Secret)
	w.AccessPoint.CapacityMbps = util.GetEnvFloat("OFFLOAD_WIFI_CAPACITY_MBPS", w.AccessPoint.CapacityMbps)
	w.AccessPoint.MaxClients = util.GetEnvInt("OFFLOAD_WIFI_MAX_CLIENTS", w.AccessPoint.MaxClients)
}

// Validate reports every problem in the offloading controller's settings.
func (l LTEConfig) Validate() error {
	var errs error
	add := func(err error, section string) {
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", section, err))
		}
	}

	if l.Listen == "" {
		errs = multierr.Append(errs, fmt.Errorf("listen address is required"))
	}
	if l.Workers <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("workers must be positive, got %d", l.Workers))
	}
	if l.Credentials.UEID == "" || l.Credentials.MAC == "" {
		errs = multierr.Append(errs, fmt.Errorf("credentials: ueID and mac are required"))
	}
	if l.Credentials.Secret == "" {
		errs = multierr.Append(errs, fmt.Errorf("credentials: secret is required"))
	}
	add(validateRemote(l.Remote), "remote")
	add(l.Thresholds.Validate(), "thresholds")
	add(l.Predictor.Validate(), "predictor")
	add(l.Decision.Validate(), "decision")
	add(validateFlowlet(l.Flowlet), "flowlet")
	add(validateController(l.Controller), "controller")
	add(validateProbe(l.Probe), "probe")
	return errs
}

func (w WiFiConfig) Validate() error {
	var errs error
	if w.Listen == "" {
		errs = multierr.Append(errs, fmt.Errorf("listen address is required"))
	}
	if w.Switches < 0 {
		errs = multierr.Append(errs, fmt.Errorf("switches must not be negative, got %d", w.Switches))
	}
	if err := w.AccessPoint.Validate(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("accessPoint: %w", err))
	}
	return errs
}

func validateRemote(r negotiation.ClientConfig) error {
	if r.BaseURL == "" {
		return fmt.Errorf("wifiURL is required")
	}
	if r.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", r.Timeout)
	}
	if r.FallbackLoad < 0 || r.FallbackLoad > 1 {
		return fmt.Errorf("fallbackLoad must be in [0, 1], got %v", r.FallbackLoad)
	}
	return nil
}

func validateFlowlet(f flowlet.Config) error {
	if f.Gap <= 0 {
		return fmt.Errorf("gap must be positive, got %v", f.Gap)
	}
	if f.Scale <= 0 {
		return fmt.Errorf("scale must be positive, got %d", f.Scale)
	}
	if f.LTEPort == f.WiFiPort {
		return fmt.Errorf("ltePort and wifiPort must differ, both %d", f.LTEPort)
	}
	if f.FirstGroupID == 0 {
		return fmt.Errorf("firstGroupID must be positive")
	}
	return nil
}

func validateController(c controller.Config) error {
	if c.StatsInterval <= 0 || c.VerifyInterval <= 0 || c.PollTimeout <= 0 {
		return fmt.Errorf("poll intervals and timeout must be positive")
	}
	if c.EventBuffer <= 0 {
		return fmt.Errorf("eventBuffer must be positive, got %d", c.EventBuffer)
	}
	return nil
}

func validateProbe(p ProbeConfig) error {
	if len(p.Targets) == 0 {
		return nil
	}
	if p.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", p.Interval)
	}
	for _, t := range p.Targets {
		if t.Interface != constants.LTE && t.Interface != constants.WiFi {
			return fmt.Errorf("target %s: unknown interface %q", t.Address, t.Interface)
		}
		if t.Address == "" {
			return fmt.Errorf("target for %s has no address", t.Interface)
		}
	}
	return nil
}
