// Package link implements the per-uplink state machine: registration
// lifecycle, congestion window, in-flight sequence tracking and RTT
// estimation for one enrolled SRTLA path.
package link

import "fmt"

// State is the registration lifecycle of a Link. The zero value is
// Disconnected.
type State uint8

const (
	Disconnected State = iota
	RegisteringReg1
	RegisteringReg2
	Connected
	Zombie
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case RegisteringReg1:
		return "registering-reg1"
	case RegisteringReg2:
		return "registering-reg2"
	case Connected:
		return "connected"
	case Zombie:
		return "zombie"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Transport names the physical medium backing a Link, carried only for
// logging and stats labeling; the scheduler does not read it.
type Transport uint8

const (
	TransportOther Transport = iota
	TransportWifi
	TransportCellular
	TransportEthernet
)

func (t Transport) String() string {
	switch t {
	case TransportWifi:
		return "wifi"
	case TransportCellular:
		return "cellular"
	case TransportEthernet:
		return "ethernet"
	default:
		return "other"
	}
}

// ParseTransport maps a config/CLI string to a Transport, defaulting to
// TransportOther for anything unrecognized.
func ParseTransport(s string) Transport {
	switch s {
	case "wifi":
		return TransportWifi
	case "cellular":
		return TransportCellular
	case "ethernet":
		return TransportEthernet
	default:
		return TransportOther
	}
}
