package constants

// Interface identifies one leg of the multipath: the primary LTE path or the
// secondary WiFi path.
type Interface string

const (
	LTE  Interface = "lte"
	WiFi Interface = "wifi"
)

// Interfaces lists both legs in a stable order.
var Interfaces = []Interface{LTE, WiFi}

// Quality is the discrete link-quality label.
type Quality string

const (
	Good         Quality = "Good"
	Intermediate Quality = "Intermediate"
	Bad          Quality = "Bad"
)
