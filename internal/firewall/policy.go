// Package firewall renders kill-switch firewall policy and applies it
// atomically through an OS-specific backend, per spec §4.1. The rendering
// (policy -> rule set) is pure and backend-independent so it can be unit
// tested against the in-memory fake backend without a real OS.
//
// Grounded on grimm-is-flywall/internal/firewall/{manager_linux,atomic,service}.go:
// a mutex-guarded Manager holding the currently-applied state, rules built
// as a full script and pushed in one transaction, Reset identified by a
// stable context tag so it works across process restarts.
package firewall

import "net/netip"

// Case is the tagged variant of a FirewallPolicy (spec §3).
type Case int

const (
	CaseConnecting Case = iota
	CaseConnected
	CaseBlocked
)

func (c Case) String() string {
	switch c {
	case CaseConnecting:
		return "connecting"
	case CaseConnected:
		return "connected"
	case CaseBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Endpoint is one allowed (address, port, protocol) triple.
type Endpoint struct {
	Addr     netip.Addr
	Port     uint16
	Protocol string // "tcp", "udp", or "" for both
}

// TunnelInterface describes the tun device a Connecting/Connected policy
// should allow traffic on, once it exists.
type TunnelInterface struct {
	Name string
	// Exists is false while the monitor hasn't created the tun device yet;
	// the Connecting case still installs peer/DNS/allowed-endpoint rules
	// with the interface clause omitted until this flips true (this is the
	// "InterfaceUp" re-render named in spec §4.7/§4.8).
	Exists bool
}

// DNSConfig names the non-tunnel DNS servers a policy must keep reachable.
type DNSConfig struct {
	Servers []netip.Addr
	// RedirectPort, on macOS only, causes Blocked to redirect 127.0.0.1:53
	// traffic to 127.0.0.1:RedirectPort (spec §4.1).
	RedirectPort uint16
}

// Policy is the tagged FirewallPolicy variant from spec §3/§4.1.
type Policy struct {
	Case Case

	PeerEndpoints    []Endpoint
	WireguardUDP     *Endpoint
	AllowedEndpoints []Endpoint
	DNS              DNSConfig
	AllowLAN         bool
	Tunnel           TunnelInterface

	// BlockHyperV installs (Connecting/Blocked) or removes (Connected) the
	// Hyper-V block-all rule on Windows (spec §4.1).
	BlockHyperV bool
}

// Baseline is the pre-VPN policy Reset must restore: no tunnel rules at
// all, i.e. the system's ordinary, unrestricted network state.
var Baseline = Policy{Case: -1}

// IsBaseline reports whether p is the pre-VPN baseline.
func (p Policy) IsBaseline() bool { return p.Case == Baseline.Case }
