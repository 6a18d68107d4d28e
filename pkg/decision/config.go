// pkg/decision/config.go
package decision

import (
	"fmt"
	"time"
)

// AccountingMode selects how a cycle decrements a flow's remaining volume.
type AccountingMode string

const (
	// AccountingLTEOnly subtracts only what LTE is assumed to carry, even on
	// cycles that offload.
	AccountingLTEOnly AccountingMode = "lte_only"
	// AccountingLTEAndWiFi also subtracts the volume WiFi was granted.
	AccountingLTEAndWiFi AccountingMode = "lte_and_wifi"
)

type Config struct {
	Deadline              time.Duration  `yaml:"deadline"`
	Interval              time.Duration  `yaml:"interval"`
	MinWorthMB            float64        `yaml:"minWorthMB"`
	DefaultFlowMB         float64        `yaml:"defaultFlowMB"`
	WiFiOverloadThreshold float64        `yaml:"wifiOverloadThreshold"`
	Accounting            AccountingMode `yaml:"accounting"`
	Capacity              CapacityModel  `yaml:"capacity"`
}

// Defaults aligned to the testbed: 15 s deadline, 5 s cycles, 150 MB flows
func DefaultConfig() Config {
	return Config{
		Deadline:              15 * time.Second,
		Interval:              5 * time.Second,
		MinWorthMB:            1,
		DefaultFlowMB:         150,
		WiFiOverloadThreshold: 0.75,
		Accounting:            AccountingLTEOnly,
		Capacity:              DefaultCapacityModel(),
	}
}

func (c Config) Validate() error {
	if c.Deadline <= 0 {
		return fmt.Errorf("deadline must be positive, got %v", c.Deadline)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", c.Interval)
	}
	if c.MinWorthMB < 0 {
		return fmt.Errorf("minWorthMB must not be negative, got %v", c.MinWorthMB)
	}
	if c.DefaultFlowMB <= 0 {
		return fmt.Errorf("defaultFlowMB must be positive, got %v", c.DefaultFlowMB)
	}
	if c.WiFiOverloadThreshold <= 0 || c.WiFiOverloadThreshold > 1 {
		return fmt.Errorf("wifiOverloadThreshold must be in (0, 1], got %v", c.WiFiOverloadThreshold)
	}
	switch c.Accounting {
	case AccountingLTEOnly, AccountingLTEAndWiFi:
	default:
		return fmt.Errorf("unknown accounting mode %q", c.Accounting)
	}
	return c.Capacity.Validate()
}
