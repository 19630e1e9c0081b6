package tunnelstate

import (
	"context"
	"sync"

	"go.nymvpn.network/core/internal/firewall"
	"go.nymvpn.network/core/internal/logging"
	"go.nymvpn.network/core/internal/model"
	"go.nymvpn.network/core/internal/tunnelmonitor"
)

// MonitorRunner starts one tunnel-monitor attempt. It must return once
// ctx is cancelled or the attempt fails, emitting lifecycle events on
// out for the duration (tunnelmonitor.Monitor.Run satisfies this).
type MonitorRunner func(ctx context.Context, params tunnelmonitor.Params, entry model.EntryPoint, exit model.ExitPoint, out chan<- tunnelmonitor.Event) error

// KillSwitchDesired reports whether Offline should keep the Blocked
// policy installed (spec §4.8 "Offline keeps Blocked iff kill-switch is
// desired").
type KillSwitchDesired func() bool

// handler is one FSM state's transition function; it returns the next
// handler (itself, if the event didn't cause a transition) and the
// PublicState to publish.
type handler interface {
	handle(m *Machine, ev event) (handler, PublicState)
}

// Machine is the single-owner Tunnel State Machine. All mutation happens
// on the run() goroutine; Subscribe/observers only ever read published
// snapshots.
type Machine struct {
	runMonitor   MonitorRunner
	firewall     *firewall.Engine
	killSwitch   KillSwitchDesired
	policyConfig PolicyConfig
	logger       *logging.Logger

	current handler
	// activeCancel cancels the in-flight monitor goroutine, if any.
	activeCancel context.CancelFunc
	monitorEvents chan tunnelmonitor.Event
	monitorDone   chan error

	userCmds       chan event
	routingCh      chan event
	restoreTimerCh chan event
	interfaceCh    chan event
	connectivityCh chan event

	mu        sync.RWMutex
	published PublicState

	subscribersMu sync.Mutex
	subscribers   []chan PublicState
}

func New(runMonitor MonitorRunner, fw *firewall.Engine, killSwitch KillSwitchDesired, policyConfig PolicyConfig, logger *logging.Logger) *Machine {
	if logger == nil {
		logger = logging.Default().WithComponent("tunnelstate")
	}
	m := &Machine{
		runMonitor:     runMonitor,
		firewall:       fw,
		killSwitch:     killSwitch,
		policyConfig:   policyConfig,
		logger:         logger,
		current:        disconnectedHandler{},
		userCmds:       make(chan event, 8),
		routingCh:      make(chan event, 8),
		restoreTimerCh: make(chan event, 1),
		interfaceCh:    make(chan event, 8),
		connectivityCh: make(chan event, 1),
		published:      PublicState{Case: CaseDisconnected},
	}
	return m
}

// Connect requests a transition from Disconnected to Connecting. Every
// other state, Error included, ignores it.
func (m *Machine) Connect(s Settings) { m.userCmds <- connectEvent(s) }

// Disconnect requests a transition to Disconnecting{Nothing}.
func (m *Machine) Disconnect() { m.userCmds <- disconnectEvent() }

// SetTunnelSettings requests a reconnect-with-new-settings if s differs
// from the settings of the in-flight/just-completed attempt.
func (m *Machine) SetTunnelSettings(s Settings) { m.userCmds <- setSettingsEvent(s) }

func (m *Machine) NotifyRoutingTableChanged()   { m.routingCh <- routingChangedEvent() }
func (m *Machine) NotifyRestoreRoutesTimerFired() {
	select {
	case m.restoreTimerCh <- restoreRoutesTimerEvent():
	default:
	}
}
func (m *Machine) NotifyInterfaceChanged() { m.interfaceCh <- interfaceChangedEvent() }

func (m *Machine) NotifyConnectivityOnline() {
	select {
	case m.connectivityCh <- connectivityOnlineEvent():
	default:
	}
}

func (m *Machine) NotifyConnectivityOffline() {
	select {
	case m.connectivityCh <- connectivityOfflineEvent():
	default:
	}
}

// State returns the most recently published snapshot.
func (m *Machine) State() PublicState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.published
}

// Subscribe returns a channel receiving every future published state.
// The channel is buffered; a slow reader only misses intermediate
// transitions, never the final one of a burst, since publish replaces
// pending sends non-blockingly.
func (m *Machine) Subscribe() <-chan PublicState {
	ch := make(chan PublicState, 4)
	m.subscribersMu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.subscribersMu.Unlock()
	return ch
}

func (m *Machine) publish(s PublicState) {
	m.mu.Lock()
	m.published = s
	m.mu.Unlock()

	m.subscribersMu.Lock()
	defer m.subscribersMu.Unlock()
	for _, ch := range m.subscribers {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}

// Run is the machine's single owning goroutine. Its first select is
// non-blocking over the five source categories of spec §5 (routing-table
// changes, restore-default-routes timer, interface-change, user commands,
// connectivity); when several are ready, Go's select picks one of them at
// random, so their listed order is not enforced as a priority. Only when
// none is ready does the second select also wait on monitor lifecycle
// events, monitor completion and ctx.
func (m *Machine) Run(ctx context.Context) {
	for {
		var ev event
		select {
		case ev = <-m.routingCh:
		case ev = <-m.restoreTimerCh:
		case ev = <-m.interfaceCh:
		case ev = <-m.userCmds:
		case ev = <-m.connectivityCh:
		default:
			select {
			case ev = <-m.routingCh:
			case ev = <-m.restoreTimerCh:
			case ev = <-m.interfaceCh:
			case ev = <-m.userCmds:
			case ev = <-m.connectivityCh:
			case me := <-m.monitorEventsChan():
				ev = monitorEvent(me)
			case err := <-m.monitorDoneChan():
				ev = monitorJoinedEvent(err)
			case <-ctx.Done():
				ev = shutdownEvent()
			}
		}

		next, pub := m.current.handle(m, ev)
		m.current = next
		m.applyFirewall(pub)
		m.publish(pub)

		if ev.kind == evShutdown && pub.Case == CaseDisconnected {
			return
		}
	}
}

// monitorEventsChan/monitorDoneChan return nil channels (which block
// forever in a select) when no monitor attempt is in flight, so the
// inner select above degrades cleanly to the five named categories.
func (m *Machine) monitorEventsChan() chan tunnelmonitor.Event {
	if m.monitorEvents == nil {
		return nil
	}
	return m.monitorEvents
}

func (m *Machine) monitorDoneChan() chan error {
	if m.monitorDone == nil {
		return nil
	}
	return m.monitorDone
}

// startMonitor launches one tunnel-monitor attempt in the background,
// wiring its event stream and completion into the Run loop's select.
func (m *Machine) startMonitor(a connAttempt) {
	ctx, cancel := context.WithCancel(context.Background())
	m.activeCancel = cancel
	m.monitorEvents = make(chan tunnelmonitor.Event, 8)
	m.monitorDone = make(chan error, 1)

	params := tunnelmonitor.Params{TunnelType: a.settings.TunnelType, RetryAttempt: a.attempt}
	events := m.monitorEvents
	done := m.monitorDone
	go func() {
		err := m.runMonitor(ctx, params, a.settings.Entry, a.settings.Exit, events)
		done <- err
	}()
}

// cancelMonitor requests the in-flight attempt stop, but leaves the event
// and done channels wired until evMonitorJoined actually arrives — the
// monitor still owes one final Down lifecycle event (and its ack) before
// it returns, per tunnelmonitor.Monitor.Run's own shutdown sequence.
func (m *Machine) cancelMonitor() {
	if m.activeCancel != nil {
		m.activeCancel()
		m.activeCancel = nil
	}
}

// clearMonitor detaches the completed attempt's channels once
// evMonitorJoined has been processed.
func (m *Machine) clearMonitor() {
	m.monitorEvents = nil
	m.monitorDone = nil
}

// ackReply unblocks a monitor event's Reply channel, the signal that
// this machine has finished re-rendering firewall policy for it (spec
// §4.7 "wait up to 5 seconds for the state machine to process").
func ackReply(ev tunnelmonitor.Event) {
	if ev.Reply != nil {
		select {
		case ev.Reply <- struct{}{}:
		default:
		}
	}
}

// peerEndpoints flattens the selected gateways' reachable addresses into
// the PeerEndpoints a Connecting/Connected/Blocked policy must always
// permit, so the gateway stays reachable through the kill-switch while
// the tunnel is still being negotiated (spec §4.1/§4.8).
func peerEndpoints(gw *model.SelectedGateways) []firewall.Endpoint {
	if gw == nil {
		return nil
	}
	var eps []firewall.Endpoint
	for _, g := range []model.Gateway{gw.Entry, gw.Exit} {
		for _, ip := range g.IPs {
			if g.WSPort != 0 {
				eps = append(eps, firewall.Endpoint{Addr: ip, Port: uint16(g.WSPort), Protocol: "tcp"})
			}
			if g.WSSPort != 0 {
				eps = append(eps, firewall.Endpoint{Addr: ip, Port: uint16(g.WSSPort), Protocol: "tcp"})
			}
		}
	}
	return eps
}

// basePolicy fills in the config-sourced fields every non-baseline policy
// carries regardless of case: the gateway peer endpoints, the
// always-allowed endpoints, in-tunnel DNS and the LAN exemption.
func (m *Machine) basePolicy(c firewall.Case, gw *model.SelectedGateways) firewall.Policy {
	return firewall.Policy{
		Case:             c,
		PeerEndpoints:    peerEndpoints(gw),
		AllowedEndpoints: m.policyConfig.AllowedEndpoints,
		DNS:              m.policyConfig.DNS,
		AllowLAN:         m.policyConfig.AllowLAN,
	}
}

// applyFirewall renders and applies the policy implied by pub (spec
// §4.8's firewall coupling). Errors are logged, not propagated:
// internal/firewall.Engine.Apply leaves its bookkeeping (and the
// previously-applied rules) untouched on failure rather than falling
// back to Blocked itself, so a failed apply here simply keeps whatever
// policy was last successfully installed.
func (m *Machine) applyFirewall(pub PublicState) {
	if m.firewall == nil {
		return
	}
	var policy firewall.Policy
	switch pub.Case {
	case CaseDisconnected:
		if err := m.firewall.Reset(); err != nil {
			m.logger.Warn("failed to reset firewall policy", "error", err)
		}
		return
	case CaseConnecting:
		policy = m.basePolicy(firewall.CaseConnecting, pub.Gateways)
		if pub.ConnData != nil {
			policy.Tunnel = firewall.TunnelInterface{Exists: true}
		}
	case CaseConnected:
		policy = m.basePolicy(firewall.CaseConnected, pub.Gateways)
		policy.Tunnel = firewall.TunnelInterface{Exists: true}
	case CaseError:
		policy = m.basePolicy(firewall.CaseBlocked, pub.Gateways)
	case CaseOffline:
		if m.killSwitch != nil && m.killSwitch() {
			policy = m.basePolicy(firewall.CaseBlocked, pub.Gateways)
		} else {
			if err := m.firewall.Reset(); err != nil {
				m.logger.Warn("failed to reset firewall policy while offline", "error", err)
			}
			return
		}
	case CaseDisconnecting:
		return
	default:
		return
	}
	if err := m.firewall.Apply(policy); err != nil {
		m.logger.Warn("failed to apply firewall policy", "case", pub.Case, "error", err)
	}
}
