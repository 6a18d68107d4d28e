// Package dataplane is the boundary toward the forwarding substrate: weighted
// groups, flow rules pointing at them, and flow statistics.
package dataplane

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrGroupExists   = errors.New("group already exists")
	ErrGroupNotFound = errors.New("group not found")
	ErrNoSwitch      = errors.New("datapath not connected")
)

// Bucket is one weighted output leg of a select group.
type Bucket struct {
	Weight int    `json:"weight"`
	Port   uint32 `json:"port"`
}

// Group is a weighted multipath group.
type Group struct {
	ID      uint32   `json:"group_id"`
	Type    string   `json:"type"`
	Buckets []Bucket `json:"buckets"`
}

// Match selects the IPv4 traffic of one flow.
type Match struct {
	EthType uint16 `json:"eth_type"`
	IPv4Src string `json:"ipv4_src"`
	IPv4Dst string `json:"ipv4_dst"`
}

func (m Match) String() string {
	return fmt.Sprintf("eth_type=0x%04x,%s->%s", m.EthType, m.IPv4Src, m.IPv4Dst)
}

// FlowRule steers matching traffic into a group.
type FlowRule struct {
	Priority    int    `json:"priority"`
	IdleTimeout int    `json:"idle_timeout"`
	Match       Match  `json:"match"`
	GroupID     uint32 `json:"group_id"`
}

// FlowStat is one entry of a flow statistics reply.
type FlowStat struct {
	Match       Match  `json:"match"`
	Priority    int    `json:"priority"`
	PacketCount uint64 `json:"packet_count"`
	ByteCount   uint64 `json:"byte_count"`
	DurationSec uint32 `json:"duration_sec"`
}

// Dataplane applies group and flow changes to a switch. Each call is a
// single protocol transaction.
type Dataplane interface {
	Name() string
	AddGroup(ctx context.Context, dpid uint64, g Group) error
	ModifyGroup(ctx context.Context, dpid uint64, g Group) error
	InstallFlow(ctx context.Context, dpid uint64, r FlowRule) error
	DeleteFlow(ctx context.Context, dpid uint64, m Match) error
	FlowStats(ctx context.Context, dpid uint64) ([]FlowStat, error)
	Groups(ctx context.Context, dpid uint64) ([]Group, error)
}
