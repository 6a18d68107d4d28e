package constants

// Outcome is what a control cycle ended up doing for a flow.
type Outcome string

const (
	OutcomeLTEOnly             Outcome = "lte_only"
	OutcomeOffload             Outcome = "offload"
	OutcomeOffloadNotPerformed Outcome = "offload_not_performed"
	OutcomeInsufficientData    Outcome = "insufficient_data"
)

// This file contains constants for control cycle decision reasons.
const (
	// LTE-only reasons
	ReasonColdStart        = "cold_start"
	ReasonLTEMeetsDeadline = "lte_meets_deadline"
	ReasonBelowMinWorth    = "wifi_volume_below_min_worth"
	ReasonWiFiOverloaded   = "wifi_overloaded"

	// Offload reasons
	ReasonDeadlineMiss = "lte_misses_deadline"
	ReasonLTEBad       = "lte_quality_bad"

	// Offload not performed
	ReasonNegotiationRejected = "negotiation_rejected"
	ReasonNegotiationFailed   = "negotiation_failed"
	ReasonSplitFailed         = "split_failed"
)
