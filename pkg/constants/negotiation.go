package constants

// Failure reasons returned by the remote domain on POST /confirm.
const (
	NegotiationUnknownUE          = "unknown_ue"
	NegotiationInvalidCredentials = "invalid_credentials"
	NegotiationCapacityExceeded   = "capacity_exceeded"
)

// REST paths shared by the two controllers.
const (
	PathLoad          = "/load"
	PathLegacyLoad    = "/wifi_load"
	PathConfirm       = "/confirm"
	PathWiFiStatus    = "/wifi_status"
	PathClients       = "/clients"
	PathSessions      = "/sessions"
	PathTelemetry     = "/telemetry"
	PathStatus        = "/status"
	PathStatusStream  = "/ws/status"
	PathPacketIn      = "/events/packet-in"
	PathSwitchConnect = "/events/switch-connected"
	PathMetrics       = "/metrics"
	PathHealth        = "/healthz"
)
