// Package negotiation implements the load query and bandwidth grant
// exchange between the LTE and WiFi control domains, on both sides.
package negotiation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"k8s.io/klog/v2"

	apis "github.com/Student-osmania/SDN-offloading/pkg/api/v1alpha1"
	"github.com/Student-osmania/SDN-offloading/pkg/constants"
)

// ErrTransport wraps any failure to reach the remote domain or decode its
// answer. It is transient: callers fall back and retry next cycle.
var ErrTransport = errors.New("remote domain unreachable")

// RejectionError is a well-formed refusal from the remote domain.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return "confirm rejected: " + e.Reason
}

const (
	LoadSourceRemote   = "remote"
	LoadSourceCache    = "cache"
	LoadSourceFallback = "fallback"

	loadCacheKey = "load"
)

type ClientConfig struct {
	BaseURL      string        `yaml:"wifiURL"`
	Timeout      time.Duration `yaml:"timeout"`
	FallbackLoad float64       `yaml:"fallbackLoad"`
	LoadCacheTTL time.Duration `yaml:"loadCacheTTL"`
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:      "http://127.0.0.1:8080",
		Timeout:      2 * time.Second,
		FallbackLoad: 0.5,
		LoadCacheTTL: 10 * time.Second,
	}
}

// LoadResult is the WiFi load used by one control cycle.
type LoadResult struct {
	Load           float64
	ThroughputMbps float64
	CapacityMbps   float64
	Fallback       bool
	Source         string
}

// Client talks to the remote WiFi controller's REST surface.
type Client struct {
	cfg   ClientConfig
	http  *http.Client
	cache *ttlcache.Cache[string, apis.LoadResponse]
}

func NewClient(cfg ClientConfig) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{},
		cache: ttlcache.New(
			ttlcache.WithTTL[string, apis.LoadResponse](cfg.LoadCacheTTL),
			ttlcache.WithDisableTouchOnHit[string, apis.LoadResponse](),
		),
	}
}

// loadPayload keeps Load as a pointer so a missing field can be told
// apart from an idle domain.
type loadPayload struct {
	Load           *float64 `json:"load"`
	ThroughputMbps float64  `json:"throughput_mbps"`
	CapacityMbps   float64  `json:"capacity_mbps"`
}

// QueryLoad never fails. A timeout or bad answer is served from the last
// good answer still in cache, then from the configured fallback load.
func (c *Client) QueryLoad(ctx context.Context) LoadResult {
	resp, err := c.fetchLoad(ctx)
	if err == nil {
		c.cache.Set(loadCacheKey, resp, ttlcache.DefaultTTL)
		loadQueries.WithLabelValues(LoadSourceRemote).Inc()
		return LoadResult{
			Load:           resp.Load,
			ThroughputMbps: resp.ThroughputMbps,
			CapacityMbps:   resp.CapacityMbps,
			Source:         LoadSourceRemote,
		}
	}

	if item := c.cache.Get(loadCacheKey); item != nil {
		cached := item.Value()
		klog.Warningf("WiFi load query failed, using cached load %.2f: %v", cached.Load, err)
		loadQueries.WithLabelValues(LoadSourceCache).Inc()
		return LoadResult{
			Load:           cached.Load,
			ThroughputMbps: cached.ThroughputMbps,
			CapacityMbps:   cached.CapacityMbps,
			Fallback:       true,
			Source:         LoadSourceCache,
		}
	}

	klog.Warningf("WiFi load query failed, using fallback load %.2f: %v", c.cfg.FallbackLoad, err)
	loadQueries.WithLabelValues(LoadSourceFallback).Inc()
	return LoadResult{Load: c.cfg.FallbackLoad, Fallback: true, Source: LoadSourceFallback}
}

func (c *Client) fetchLoad(ctx context.Context) (apis.LoadResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(constants.PathLoad), nil)
	if err != nil {
		return apis.LoadResponse{}, fmt.Errorf("build load request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return apis.LoadResponse{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apis.LoadResponse{}, fmt.Errorf("%w: GET %s returned %d", ErrTransport, constants.PathLoad, resp.StatusCode)
	}

	var p loadPayload
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return apis.LoadResponse{}, fmt.Errorf("%w: decode load: %v", ErrTransport, err)
	}
	out := apis.LoadResponse{
		Load:           c.cfg.FallbackLoad,
		ThroughputMbps: p.ThroughputMbps,
		CapacityMbps:   p.CapacityMbps,
	}
	if p.Load != nil {
		out.Load = *p.Load
	} else {
		klog.V(2).Infof("Load answer without a load field, assuming %.2f", c.cfg.FallbackLoad)
	}
	return out, nil
}

// Confirm posts a grant request. Transport problems wrap ErrTransport; a
// decoded answer is returned as is, including refusals.
func (c *Client) Confirm(ctx context.Context, in apis.ConfirmRequest) (*apis.ConfirmResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode confirm: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(constants.PathConfirm), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build confirm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read confirm: %v", ErrTransport, err)
	}
	var out apis.ConfirmResponse
	if err := json.Unmarshal(raw, &out); err != nil || (!out.Success && out.Reason == "") {
		return nil, fmt.Errorf("%w: POST %s returned %d", ErrTransport, constants.PathConfirm, resp.StatusCode)
	}
	return &out, nil
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}
