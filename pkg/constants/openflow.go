package constants

// This file centralizes the forwarding-rule constants used when steering a
// flow into its weighted group.

const (
	// LTEPort and WiFiPort are the switch output ports of the two legs.
	LTEPort  uint32 = 1
	WiFiPort uint32 = 2

	// FirstGroupID is the id handed to the first offloaded flow.
	FirstGroupID uint32 = 1

	// OffloadFlowPriority is the priority of the flow rule pointing at a group.
	OffloadFlowPriority = 100
	// OffloadIdleTimeout is the idle timeout, in seconds, of that rule.
	OffloadIdleTimeout = 60

	EthTypeIPv4 uint16 = 0x0800
	EthTypeLLDP uint16 = 0x88cc

	// GroupTypeSelect is the weighted select group type.
	GroupTypeSelect = "SELECT"
)
