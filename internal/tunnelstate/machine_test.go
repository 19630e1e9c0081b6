package tunnelstate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.nymvpn.network/core/internal/firewall"
	"go.nymvpn.network/core/internal/model"
	"go.nymvpn.network/core/internal/tunnelmonitor"
)

// fakeBackend records the last policy applied/reset so tests can assert on
// firewall coupling without touching the host network stack.
type fakeBackend struct {
	lastApply firewall.Policy
	applies   int
	resets    int
}

func (b *fakeBackend) Apply(p firewall.Policy) error {
	b.lastApply = p
	b.applies++
	return nil
}

func (b *fakeBackend) Reset() error {
	b.resets++
	return nil
}

// scriptedMonitor is a MonitorRunner that sends a fixed list of events
// (waiting for each event's Reply, if set, to be acked) then blocks until
// ctx is cancelled, at which point it returns a caller-supplied error.
type scriptedMonitor struct {
	events  []tunnelmonitor.Event
	retErr  error
}

func (s *scriptedMonitor) run(ctx context.Context, params tunnelmonitor.Params, entry model.EntryPoint, exit model.ExitPoint, out chan<- tunnelmonitor.Event) error {
	for _, ev := range s.events {
		select {
		case out <- ev:
		case <-ctx.Done():
			return s.retErr
		}
		if ev.Reply != nil {
			select {
			case <-ev.Reply:
			case <-ctx.Done():
				return s.retErr
			}
		}
	}
	<-ctx.Done()
	return s.retErr
}

func newTestMachine(runner MonitorRunner) (*Machine, *fakeBackend) {
	backend := &fakeBackend{}
	fw := firewall.NewEngine(backend, nil)
	m := New(runner, fw, func() bool { return true }, PolicyConfig{}, nil)
	return m, backend
}

func waitForCase(t *testing.T, ch <-chan PublicState, want Case) PublicState {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			if s.Case == want {
				return s
			}
		case <-deadline:
			t.Fatalf("timed out waiting for case %s", want)
		}
	}
}

func TestMachine_ConnectDrivesConnectingThenConnected(t *testing.T) {
	sm := &scriptedMonitor{events: []tunnelmonitor.Event{
		{Kind: tunnelmonitor.EventUp, ConnData: model.ConnectionData{}},
	}}
	m, backend := newTestMachine(sm.run)
	sub := m.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.Connect(Settings{TunnelType: model.TunnelMixnet})
	waitForCase(t, sub, CaseConnecting)
	waitForCase(t, sub, CaseConnected)

	require.Eventually(t, func() bool {
		return backend.lastApply.Case == firewall.CaseConnected
	}, time.Second, 10*time.Millisecond)
}

func TestMachine_MonitorDownWithoutErrorReconnects(t *testing.T) {
	reply := make(chan struct{}, 1)
	first := true
	runner := func(ctx context.Context, params tunnelmonitor.Params, entry model.EntryPoint, exit model.ExitPoint, out chan<- tunnelmonitor.Event) error {
		if first {
			first = false
			select {
			case out <- tunnelmonitor.Event{Kind: tunnelmonitor.EventUp}:
			case <-ctx.Done():
				return nil
			}
			// Simulate the tunnel dying on its own: emit Down with a Reply,
			// then return once acked.
			down := tunnelmonitor.Event{Kind: tunnelmonitor.EventDown, Reply: reply}
			select {
			case out <- down:
			case <-ctx.Done():
				return nil
			}
			select {
			case <-reply:
			case <-ctx.Done():
			}
			return nil
		}
		<-ctx.Done()
		return nil
	}

	m, _ := newTestMachine(runner)
	sub := m.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.Connect(Settings{TunnelType: model.TunnelMixnet})
	waitForCase(t, sub, CaseConnected)
	// Down (no error) should drive Disconnecting then back to Connecting,
	// with the retry attempt reset to 0 since the tunnel reached Connected.
	waitForCase(t, sub, CaseDisconnecting)
	s := waitForCase(t, sub, CaseConnecting)
	assert.Equal(t, 0, s.RetryAttempt)
}

func TestMachine_MonitorDownWithErrorEntersErrorState(t *testing.T) {
	reply := make(chan struct{}, 1)
	runner := func(ctx context.Context, params tunnelmonitor.Params, entry model.EntryPoint, exit model.ExitPoint, out chan<- tunnelmonitor.Event) error {
		down := tunnelmonitor.Event{Kind: tunnelmonitor.EventDown, ErrorReason: errors.New("gateway unreachable"), Reply: reply}
		select {
		case out <- down:
		case <-ctx.Done():
			return nil
		}
		select {
		case <-reply:
		case <-ctx.Done():
		}
		return nil
	}

	m, backend := newTestMachine(runner)
	sub := m.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.Connect(Settings{TunnelType: model.TunnelMixnet})
	waitForCase(t, sub, CaseDisconnecting)
	s := waitForCase(t, sub, CaseError)
	require.Error(t, s.Reason)

	require.Eventually(t, func() bool {
		return backend.lastApply.Case == firewall.CaseBlocked
	}, time.Second, 10*time.Millisecond)
}

func TestMachine_ErrorStateIsStickyUntilDisconnect(t *testing.T) {
	reply := make(chan struct{}, 1)
	runner := func(ctx context.Context, params tunnelmonitor.Params, entry model.EntryPoint, exit model.ExitPoint, out chan<- tunnelmonitor.Event) error {
		down := tunnelmonitor.Event{Kind: tunnelmonitor.EventDown, ErrorReason: errors.New("boom"), Reply: reply}
		select {
		case out <- down:
		case <-ctx.Done():
			return nil
		}
		<-reply
		return nil
	}

	m, _ := newTestMachine(runner)
	sub := m.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.Connect(Settings{TunnelType: model.TunnelMixnet})
	waitForCase(t, sub, CaseError)

	// An unrelated routing notification must not knock the machine out of
	// Error.
	m.NotifyRoutingTableChanged()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, CaseError, m.State().Case)

	m.Disconnect()
	waitForCase(t, sub, CaseDisconnected)
}

func TestMachine_ConnectivityOfflineThenOnlineReconnects(t *testing.T) {
	runner := func(ctx context.Context, params tunnelmonitor.Params, entry model.EntryPoint, exit model.ExitPoint, out chan<- tunnelmonitor.Event) error {
		select {
		case out <- tunnelmonitor.Event{Kind: tunnelmonitor.EventUp}:
		case <-ctx.Done():
			return nil
		}
		<-ctx.Done()
		return nil
	}

	m, backend := newTestMachine(runner)
	sub := m.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.Connect(Settings{TunnelType: model.TunnelMixnet})
	waitForCase(t, sub, CaseConnected)

	m.NotifyConnectivityOffline()
	waitForCase(t, sub, CaseDisconnecting)
	s := waitForCase(t, sub, CaseOffline)
	assert.True(t, s.Reconnect)

	require.Eventually(t, func() bool {
		return backend.lastApply.Case == firewall.CaseBlocked
	}, time.Second, 10*time.Millisecond)

	m.NotifyConnectivityOnline()
	waitForCase(t, sub, CaseConnecting)
}

func TestMachine_DisconnectFromOfflineDropsReconnect(t *testing.T) {
	runner := func(ctx context.Context, params tunnelmonitor.Params, entry model.EntryPoint, exit model.ExitPoint, out chan<- tunnelmonitor.Event) error {
		select {
		case out <- tunnelmonitor.Event{Kind: tunnelmonitor.EventUp}:
		case <-ctx.Done():
			return nil
		}
		<-ctx.Done()
		return nil
	}

	m, _ := newTestMachine(runner)
	sub := m.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.Connect(Settings{TunnelType: model.TunnelMixnet})
	waitForCase(t, sub, CaseConnected)
	m.NotifyConnectivityOffline()
	waitForCase(t, sub, CaseOffline)

	m.Disconnect()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, CaseOffline, m.State().Case)
	assert.False(t, m.State().Reconnect)

	m.NotifyConnectivityOnline()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, CaseOffline, m.State().Case, "dropped reconnect must not fire on the next online notification")
}

func TestSettings_Equal(t *testing.T) {
	a := Settings{TunnelType: model.TunnelMixnet, Entry: model.EntryPoint{Kind: model.EntryRandom}}
	b := a
	c := Settings{TunnelType: model.TunnelWireguardTunTun, Entry: model.EntryPoint{Kind: model.EntryRandom}}
	assert.True(t, a.equal(b))
	assert.False(t, a.equal(c))
}
