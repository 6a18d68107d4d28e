package dataplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"k8s.io/klog/v2"
)

// Ryu drives a switch through the ofctl_rest application of a Ryu
// controller.
type Ryu struct {
	baseURL string
	client  *http.Client
}

func NewRyu(baseURL string, timeout time.Duration) *Ryu {
	return &Ryu{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *Ryu) Name() string { return "ryu" }

type ryuAction struct {
	Type    string `json:"type"`
	Port    uint32 `json:"port,omitempty"`
	GroupID uint32 `json:"group_id,omitempty"`
}

type ryuBucket struct {
	Weight  int         `json:"weight"`
	Actions []ryuAction `json:"actions"`
}

type ryuGroupMod struct {
	DPID    uint64      `json:"dpid"`
	Type    string      `json:"type"`
	GroupID uint32      `json:"group_id"`
	Buckets []ryuBucket `json:"buckets"`
}

type ryuMatch struct {
	EthType uint16 `json:"eth_type,omitempty"`
	IPv4Src string `json:"ipv4_src,omitempty"`
	IPv4Dst string `json:"ipv4_dst,omitempty"`

	// Legacy field names used in stats replies.
	DLType uint16 `json:"dl_type,omitempty"`
	NWSrc  string `json:"nw_src,omitempty"`
	NWDst  string `json:"nw_dst,omitempty"`
}

func (m ryuMatch) toMatch() Match {
	out := Match{EthType: m.EthType, IPv4Src: m.IPv4Src, IPv4Dst: m.IPv4Dst}
	if out.EthType == 0 {
		out.EthType = m.DLType
	}
	if out.IPv4Src == "" {
		out.IPv4Src = m.NWSrc
	}
	if out.IPv4Dst == "" {
		out.IPv4Dst = m.NWDst
	}
	return out
}

type ryuFlowMod struct {
	DPID        uint64      `json:"dpid"`
	Priority    int         `json:"priority,omitempty"`
	IdleTimeout int         `json:"idle_timeout,omitempty"`
	Match       ryuMatch    `json:"match"`
	Actions     []ryuAction `json:"actions,omitempty"`
}

type ryuFlowStat struct {
	Priority    int      `json:"priority"`
	Match       ryuMatch `json:"match"`
	PacketCount uint64   `json:"packet_count"`
	ByteCount   uint64   `json:"byte_count"`
	DurationSec uint32   `json:"duration_sec"`
}

type ryuGroupDesc struct {
	Type    string `json:"type"`
	GroupID uint32 `json:"group_id"`
	Buckets []struct {
		Weight  int      `json:"weight"`
		Actions []string `json:"actions"`
	} `json:"buckets"`
}

func groupMod(dpid uint64, g Group) ryuGroupMod {
	mod := ryuGroupMod{DPID: dpid, Type: g.Type, GroupID: g.ID}
	for _, b := range g.Buckets {
		mod.Buckets = append(mod.Buckets, ryuBucket{
			Weight:  b.Weight,
			Actions: []ryuAction{{Type: "OUTPUT", Port: b.Port}},
		})
	}
	return mod
}

func (r *Ryu) AddGroup(ctx context.Context, dpid uint64, g Group) error {
	return r.post(ctx, "/stats/groupentry/add", groupMod(dpid, g))
}

func (r *Ryu) ModifyGroup(ctx context.Context, dpid uint64, g Group) error {
	return r.post(ctx, "/stats/groupentry/modify", groupMod(dpid, g))
}

func (r *Ryu) InstallFlow(ctx context.Context, dpid uint64, rule FlowRule) error {
	return r.post(ctx, "/stats/flowentry/add", ryuFlowMod{
		DPID:        dpid,
		Priority:    rule.Priority,
		IdleTimeout: rule.IdleTimeout,
		Match:       ryuMatch{EthType: rule.Match.EthType, IPv4Src: rule.Match.IPv4Src, IPv4Dst: rule.Match.IPv4Dst},
		Actions:     []ryuAction{{Type: "GROUP", GroupID: rule.GroupID}},
	})
}

func (r *Ryu) DeleteFlow(ctx context.Context, dpid uint64, m Match) error {
	return r.post(ctx, "/stats/flowentry/delete", ryuFlowMod{
		DPID:  dpid,
		Match: ryuMatch{EthType: m.EthType, IPv4Src: m.IPv4Src, IPv4Dst: m.IPv4Dst},
	})
}

func (r *Ryu) FlowStats(ctx context.Context, dpid uint64) ([]FlowStat, error) {
	var reply map[string][]ryuFlowStat
	if err := r.get(ctx, "/stats/flow/"+strconv.FormatUint(dpid, 10), &reply); err != nil {
		return nil, err
	}
	var out []FlowStat
	for _, st := range reply[strconv.FormatUint(dpid, 10)] {
		out = append(out, FlowStat{
			Match:       st.Match.toMatch(),
			Priority:    st.Priority,
			PacketCount: st.PacketCount,
			ByteCount:   st.ByteCount,
			DurationSec: st.DurationSec,
		})
	}
	return out, nil
}

func (r *Ryu) Groups(ctx context.Context, dpid uint64) ([]Group, error) {
	var reply map[string][]ryuGroupDesc
	if err := r.get(ctx, "/stats/groupdesc/"+strconv.FormatUint(dpid, 10), &reply); err != nil {
		return nil, err
	}
	var out []Group
	for _, d := range reply[strconv.FormatUint(dpid, 10)] {
		g := Group{ID: d.GroupID, Type: d.Type}
		for _, b := range d.Buckets {
			g.Buckets = append(g.Buckets, Bucket{Weight: b.Weight, Port: outputPort(b.Actions)})
		}
		out = append(out, g)
	}
	return out, nil
}

// outputPort extracts n from an "OUTPUT:n" action string.
func outputPort(actions []string) uint32 {
	for _, a := range actions {
		if p, ok := strings.CutPrefix(a, "OUTPUT:"); ok {
			if n, err := strconv.ParseUint(p, 10, 32); err == nil {
				return uint32(n)
			}
		}
	}
	return 0
}

func (r *Ryu) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	klog.V(5).Infof("ryu POST %s %s", path, body)
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("ryu %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ryu %s returned status %s: %s", path, resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}

func (r *Ryu) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("ryu %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ErrNoSwitch
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ryu %s returned status %s", path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode ryu %s: %w", path, err)
	}
	return nil
}
