package tunnelstate

import (
	"go.nymvpn.network/core/internal/model"
	"go.nymvpn.network/core/internal/tunnelmonitor"
)

// eventKind discriminates the Machine's internal event union. Unexported:
// callers construct events via the typed constructors below, not by
// poking at the struct's fields directly.
type eventKind int

const (
	evConnect eventKind = iota
	evDisconnect
	evSetTunnelSettings
	evShutdown
	evRoutingTableChanged
	evRestoreDefaultRoutesTimer
	evInterfaceChanged
	evConnectivityOnline
	evConnectivityOffline
	evMonitorEvent
	// evMonitorJoined fires once the in-flight monitor goroutine has
	// returned entirely (spec §4.8 "when monitor join finishes"),
	// distinct from evMonitorEvent's per-lifecycle-step Down
	// notification which still requires a Reply ack.
	evMonitorJoined
)

// event is the Machine's single internal event type; Run's selects
// construct these from the source channels and dispatch each one to the
// current handler.
type event struct {
	kind      eventKind
	settings  Settings
	monitor   tunnelmonitor.Event
	joinError error
}

func connectEvent(s Settings) event         { return event{kind: evConnect, settings: s} }
func disconnectEvent() event                { return event{kind: evDisconnect} }
func setSettingsEvent(s Settings) event     { return event{kind: evSetTunnelSettings, settings: s} }
func shutdownEvent() event                  { return event{kind: evShutdown} }
func routingChangedEvent() event            { return event{kind: evRoutingTableChanged} }
func restoreRoutesTimerEvent() event        { return event{kind: evRestoreDefaultRoutesTimer} }
func interfaceChangedEvent() event          { return event{kind: evInterfaceChanged} }
func connectivityOnlineEvent() event        { return event{kind: evConnectivityOnline} }
func connectivityOfflineEvent() event       { return event{kind: evConnectivityOffline} }
func monitorEvent(e tunnelmonitor.Event) event { return event{kind: evMonitorEvent, monitor: e} }
func monitorJoinedEvent(err error) event       { return event{kind: evMonitorJoined, joinError: err} }

// connAttempt bundles the parameters a Connecting state needs to launch
// (or relaunch, on retry) a tunnelmonitor.Monitor run.
type connAttempt struct {
	settings Settings
	attempt  int
	gateways *model.SelectedGateways
}
