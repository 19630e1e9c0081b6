package tunnelstate

import (
	"go.nymvpn.network/core/internal/model"
	"go.nymvpn.network/core/internal/tunnelmonitor"
)

func enterConnecting(m *Machine, a connAttempt) (handler, PublicState) {
	m.startMonitor(a)
	return connectingHandler{settings: a.settings, attempt: a.attempt, gateways: a.gateways},
		PublicState{Case: CaseConnecting, RetryAttempt: a.attempt, Gateways: a.gateways}
}

// disconnectedHandler is spec §4.8's Disconnected state: no tunnel, no
// kill-switch.
type disconnectedHandler struct{}

func (disconnectedHandler) handle(m *Machine, ev event) (handler, PublicState) {
	if ev.kind == evConnect {
		return enterConnecting(m, connAttempt{settings: ev.settings})
	}
	return disconnectedHandler{}, PublicState{Case: CaseDisconnected}
}

// connectingHandler is spec §4.8's Connecting{conn_data?} state.
type connectingHandler struct {
	settings Settings
	attempt  int
	gateways *model.SelectedGateways
	connData *model.ConnectionData
}

func (h connectingHandler) publicState() PublicState {
	return PublicState{Case: CaseConnecting, RetryAttempt: h.attempt, Gateways: h.gateways, ConnData: h.connData}
}

func (h connectingHandler) handle(m *Machine, ev event) (handler, PublicState) {
	switch ev.kind {
	case evMonitorEvent:
		return h.handleMonitorEvent(m, ev.monitor)
	case evDisconnect:
		m.cancelMonitor()
		after := AfterDisconnect{Kind: AfterNothing}
		return disconnectingHandler{after: after, settings: h.settings}, PublicState{Case: CaseDisconnecting, AfterDisconnect: after}
	case evSetTunnelSettings:
		if ev.settings.equal(h.settings) {
			return h, h.publicState()
		}
		m.cancelMonitor()
		after := AfterDisconnect{Kind: AfterReconnect, RetryAttempt: 0}
		return disconnectingHandler{after: after, settings: ev.settings}, PublicState{Case: CaseDisconnecting, AfterDisconnect: after}
	case evConnectivityOffline:
		m.cancelMonitor()
		after := AfterDisconnect{Kind: AfterOffline, Reconnect: true, RetryAttempt: h.attempt, Gateways: h.gateways}
		return disconnectingHandler{after: after, settings: h.settings}, PublicState{Case: CaseDisconnecting, AfterDisconnect: after}
	case evShutdown:
		m.cancelMonitor()
		after := AfterDisconnect{Kind: AfterNothing}
		return disconnectingHandler{after: after, settings: h.settings}, PublicState{Case: CaseDisconnecting, AfterDisconnect: after}
	default:
		return h, h.publicState()
	}
}

func (h connectingHandler) handleMonitorEvent(m *Machine, me tunnelmonitor.Event) (handler, PublicState) {
	switch me.Kind {
	case tunnelmonitor.EventDown:
		ackReply(me)
		var after AfterDisconnect
		if me.ErrorReason == nil {
			after = AfterDisconnect{Kind: AfterReconnect, RetryAttempt: h.attempt + 1}
		} else {
			after = AfterDisconnect{Kind: AfterError, Reason: me.ErrorReason}
		}
		return disconnectingHandler{after: after, settings: h.settings}, PublicState{Case: CaseDisconnecting, AfterDisconnect: after}
	case tunnelmonitor.EventUp:
		connData := me.ConnData
		return connectedHandler{settings: h.settings, attempt: 0, gateways: h.gateways, connData: &connData},
			PublicState{Case: CaseConnected, ConnData: &connData, Gateways: h.gateways}
	case tunnelmonitor.EventSelectedGateways:
		gw := me.Gateways
		ackReply(me)
		h.gateways = &gw
		return h, h.publicState()
	case tunnelmonitor.EventInterfaceUp:
		connData := me.ConnData
		ackReply(me)
		h.connData = &connData
		return h, h.publicState()
	default:
		ackReply(me)
		return h, h.publicState()
	}
}

// connectedHandler is spec §4.8's Connected{conn_data} state.
type connectedHandler struct {
	settings Settings
	attempt  int
	gateways *model.SelectedGateways
	connData *model.ConnectionData
}

func (h connectedHandler) publicState() PublicState {
	return PublicState{Case: CaseConnected, RetryAttempt: h.attempt, Gateways: h.gateways, ConnData: h.connData}
}

func (h connectedHandler) handle(m *Machine, ev event) (handler, PublicState) {
	switch ev.kind {
	case evMonitorEvent:
		me := ev.monitor
		if me.Kind != tunnelmonitor.EventDown {
			ackReply(me)
			return h, h.publicState()
		}
		ackReply(me)
		var after AfterDisconnect
		if me.ErrorReason == nil {
			// Successful-run reconnect resets the attempt counter (spec
			// §4.8 "From Connected: ... successful-run reconnect resets
			// attempt to 0").
			after = AfterDisconnect{Kind: AfterReconnect, RetryAttempt: 0}
		} else {
			after = AfterDisconnect{Kind: AfterError, Reason: me.ErrorReason}
		}
		return disconnectingHandler{after: after, settings: h.settings}, PublicState{Case: CaseDisconnecting, AfterDisconnect: after}
	case evDisconnect:
		m.cancelMonitor()
		after := AfterDisconnect{Kind: AfterNothing}
		return disconnectingHandler{after: after, settings: h.settings}, PublicState{Case: CaseDisconnecting, AfterDisconnect: after}
	case evSetTunnelSettings:
		if ev.settings.equal(h.settings) {
			return h, h.publicState()
		}
		m.cancelMonitor()
		after := AfterDisconnect{Kind: AfterReconnect, RetryAttempt: 0}
		return disconnectingHandler{after: after, settings: ev.settings}, PublicState{Case: CaseDisconnecting, AfterDisconnect: after}
	case evConnectivityOffline:
		m.cancelMonitor()
		after := AfterDisconnect{Kind: AfterOffline, Reconnect: true, RetryAttempt: 0, Gateways: h.gateways}
		return disconnectingHandler{after: after, settings: h.settings}, PublicState{Case: CaseDisconnecting, AfterDisconnect: after}
	case evShutdown:
		m.cancelMonitor()
		after := AfterDisconnect{Kind: AfterNothing}
		return disconnectingHandler{after: after, settings: h.settings}, PublicState{Case: CaseDisconnecting, AfterDisconnect: after}
	default:
		return h, h.publicState()
	}
}

// disconnectingHandler is spec §4.8's Disconnecting{after_disconnect}
// state: the monitor has been told to stop (or has already failed on its
// own) and after is queued for once the join completes.
type disconnectingHandler struct {
	after    AfterDisconnect
	settings Settings
}

func (h disconnectingHandler) handle(m *Machine, ev event) (handler, PublicState) {
	switch ev.kind {
	case evMonitorJoined:
		m.clearMonitor()
		switch h.after.Kind {
		case AfterReconnect:
			return enterConnecting(m, connAttempt{settings: h.settings, attempt: h.after.RetryAttempt, gateways: h.after.Gateways})
		case AfterOffline:
			oh := offlineHandler{settings: h.settings, reconnect: h.after.Reconnect, attempt: h.after.RetryAttempt, gateways: h.after.Gateways}
			return oh, oh.publicState()
		case AfterError:
			eh := errorHandler{settings: h.settings, reason: h.after.Reason}
			return eh, eh.publicState()
		default: // AfterNothing
			return disconnectedHandler{}, PublicState{Case: CaseDisconnected}
		}
	case evMonitorEvent:
		ackReply(ev.monitor)
		return h, PublicState{Case: CaseDisconnecting, AfterDisconnect: h.after}
	default:
		return h, PublicState{Case: CaseDisconnecting, AfterDisconnect: h.after}
	}
}

// errorHandler is spec §4.8's Error(reason) state: kill-switch engaged,
// sticky until the user explicitly acts.
type errorHandler struct {
	settings Settings
	reason   error
}

func (h errorHandler) publicState() PublicState {
	return PublicState{Case: CaseError, Reason: h.reason}
}

func (h errorHandler) handle(m *Machine, ev event) (handler, PublicState) {
	switch ev.kind {
	case evDisconnect, evShutdown:
		return disconnectedHandler{}, PublicState{Case: CaseDisconnected}
	case evSetTunnelSettings:
		return enterConnecting(m, connAttempt{settings: ev.settings})
	default:
		return h, h.publicState()
	}
}

// offlineHandler is spec §4.8's Offline{reconnect} state.
type offlineHandler struct {
	settings  Settings
	reconnect bool
	attempt   int
	gateways  *model.SelectedGateways
}

func (h offlineHandler) publicState() PublicState {
	return PublicState{Case: CaseOffline, Reconnect: h.reconnect, RetryAttempt: h.attempt, Gateways: h.gateways}
}

func (h offlineHandler) handle(m *Machine, ev event) (handler, PublicState) {
	switch ev.kind {
	case evConnectivityOnline:
		if !h.reconnect {
			return h, h.publicState()
		}
		return enterConnecting(m, connAttempt{settings: h.settings, attempt: h.attempt, gateways: h.gateways})
	case evDisconnect:
		h.reconnect = false
		return h, h.publicState()
	case evShutdown:
		return disconnectedHandler{}, PublicState{Case: CaseDisconnected}
	default:
		return h, h.publicState()
	}
}
