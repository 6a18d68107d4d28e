package controller

import (
	"time"

	"github.com/Student-osmania/SDN-offloading/pkg/dataplane"
)

type EventKind string

const (
	EventSwitchConnected EventKind = "switch_connected"
	EventPacketIn        EventKind = "packet_in"
	EventStatsReply      EventKind = "stats_reply"
)

// Event is one message from the OpenFlow side.
type Event interface {
	Kind() EventKind
}

// SwitchConnected announces the datapath the controller programs.
type SwitchConnected struct {
	DPID uint64 `json:"dpid" binding:"required"`
}

func (SwitchConnected) Kind() EventKind { return EventSwitchConnected }

// PacketIn is a data packet punted to the controller. Timestamp is the
// speaker's own arrival time and is informational; flowlet gaps use
// Received, stamped from the controller clock on submission.
type PacketIn struct {
	DPID      uint64    `json:"dpid"`
	InPort    uint32    `json:"in_port"`
	EthType   uint16    `json:"eth_type"`
	EthSrc    string    `json:"eth_src"`
	EthDst    string    `json:"eth_dst"`
	IPv4Src   string    `json:"ipv4_src"`
	IPv4Dst   string    `json:"ipv4_dst"`
	Length    int       `json:"length"`
	Timestamp time.Time `json:"timestamp"`
	Received  time.Time `json:"-"`
}

func (PacketIn) Kind() EventKind { return EventPacketIn }

// StatsReply carries one flow statistics poll result.
type StatsReply struct {
	DPID  uint64
	Stats []dataplane.FlowStat
}

func (StatsReply) Kind() EventKind { return EventStatsReply }
