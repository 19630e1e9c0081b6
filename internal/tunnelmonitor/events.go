// Package tunnelmonitor implements the Tunnel Monitor of spec §4.7: given
// a set of TunnelParameters, it brings up one concrete tunnel stack and
// holds it until cancellation or failure, emitting lifecycle events to
// the tunnel state machine. Grounded on grimm-is-flywall/internal/vpn's
// Manager/Provider split (a thin orchestrator delegating to one of
// several per-technology providers), generalized from the teacher's
// static provider list to this package's one-shot "bring up the
// requested stack" lifecycle.
package tunnelmonitor

import (
	"time"

	"go.nymvpn.network/core/internal/model"
)

// EventKind discriminates TunnelMonitorEvent.
type EventKind int

const (
	EventInitializingClient EventKind = iota
	EventSyncingAccount
	EventRegisteringDevice
	EventRequestingZkNyms
	EventSelectingGateways
	EventSelectedGateways
	EventInterfaceUp
	EventUp
	EventDown
)

func (k EventKind) String() string {
	switch k {
	case EventInitializingClient:
		return "InitializingClient"
	case EventSyncingAccount:
		return "SyncingAccount"
	case EventRegisteringDevice:
		return "RegisteringDevice"
	case EventRequestingZkNyms:
		return "RequestingZkNyms"
	case EventSelectingGateways:
		return "SelectingGateways"
	case EventSelectedGateways:
		return "SelectedGateways"
	case EventInterfaceUp:
		return "InterfaceUp"
	case EventUp:
		return "Up"
	case EventDown:
		return "Down"
	default:
		return "Unknown"
	}
}

// replyAckTimeout bounds how long the monitor waits for the state
// machine to process a Reply-bearing event (spec §5 "5s tunnel monitor
// reply acks").
const replyAckTimeout = 5 * time.Second

// Event is one lifecycle notification sent from the monitor to the
// tunnel state machine. Only the fields relevant to Kind are populated.
type Event struct {
	Kind        EventKind
	Gateways    model.SelectedGateways
	Iface       string
	ConnData    model.ConnectionData
	ErrorReason error

	// Reply, when non-nil, must be closed (or sent an ack) by the state
	// machine within replyAckTimeout before the monitor proceeds; this
	// is how firewall policy re-renders atomically before packets flow.
	Reply chan struct{}
}

// emit sends ev on ch, blocking only as long as the channel has room;
// the channel is expected to be reasonably buffered or drained promptly
// by the state machine's run loop.
func emit(ch chan<- Event, ev Event) {
	ch <- ev
}

// awaitReply blocks until ev.Reply is acked or replyAckTimeout elapses.
// A nil Reply (events that don't require one) returns immediately.
func awaitReply(ev Event) error {
	if ev.Reply == nil {
		return nil
	}
	select {
	case <-ev.Reply:
		return nil
	case <-time.After(replyAckTimeout):
		return errReplyTimeout
	}
}
