// Package tunnelstate implements the Tunnel State Machine of spec §4.8: a
// single-owner FSM coupling tunnel-monitor lifecycle events, user
// commands and connectivity changes to firewall policy. Grounded on
// grimm-is-flywall/internal/firewall.Manager's mutex-guarded
// current-state-plus-atomic-reapply shape and the teacher's
// services.Service Start/Stop lifecycle, generalized into a full
// handler-dispatch FSM.
package tunnelstate

import (
	"go.nymvpn.network/core/internal/firewall"
	"go.nymvpn.network/core/internal/model"
)

// PolicyConfig carries the parts of a rendered firewall.Policy that come
// from static configuration rather than from the tunnel's own live state
// (spec §4.1/§4.8): the LAN exemption, in-tunnel DNS servers, and
// non-tunnel endpoints the user has always allowed (e.g. the vpn-api
// host).
type PolicyConfig struct {
	AllowLAN         bool
	DNS              firewall.DNSConfig
	AllowedEndpoints []firewall.Endpoint
}

// Case discriminates the machine's PublicState.
type Case int

const (
	CaseDisconnected Case = iota
	CaseConnecting
	CaseConnected
	CaseDisconnecting
	CaseError
	CaseOffline
)

func (c Case) String() string {
	switch c {
	case CaseDisconnected:
		return "Disconnected"
	case CaseConnecting:
		return "Connecting"
	case CaseConnected:
		return "Connected"
	case CaseDisconnecting:
		return "Disconnecting"
	case CaseError:
		return "Error"
	case CaseOffline:
		return "Offline"
	default:
		return "Unknown"
	}
}

// AfterDisconnectKind discriminates what the Disconnecting state does
// once the monitor has been joined.
type AfterDisconnectKind int

const (
	AfterNothing AfterDisconnectKind = iota
	AfterReconnect
	AfterOffline
	AfterError
)

// AfterDisconnect is computed when entering Disconnecting and consumed
// once the in-flight monitor goroutine has been joined.
type AfterDisconnect struct {
	Kind         AfterDisconnectKind
	RetryAttempt int
	Reconnect    bool
	Gateways     *model.SelectedGateways
	Reason       error
}

// PublicState is the externally observable snapshot published after
// every transition (spec §4.8's state table).
type PublicState struct {
	Case            Case
	ConnData        *model.ConnectionData
	RetryAttempt    int
	Gateways        *model.SelectedGateways
	Reason          error
	AfterDisconnect AfterDisconnect
	Reconnect       bool
}

// Settings is the subset of connect parameters SetTunnelSettings compares
// for a change (spec §4.8 "if changed").
type Settings struct {
	TunnelType model.TunnelType
	Entry      model.EntryPoint
	Exit       model.ExitPoint
}

func (s Settings) equal(o Settings) bool {
	return s.TunnelType == o.TunnelType && s.Entry == o.Entry && s.Exit == o.Exit
}
