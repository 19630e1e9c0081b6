package tunnelmonitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.nymvpn.network/core/internal/account"
	"go.nymvpn.network/core/internal/gateway"
	"go.nymvpn.network/core/internal/model"
)

type fakeAccount struct {
	mu       sync.Mutex
	calls    []account.CommandKind
	summary  account.AccountStateSummary
	failNext map[account.CommandKind]bool
}

func (f *fakeAccount) Do(_ context.Context, kind account.CommandKind, _ any) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, kind)
	if f.failNext[kind] {
		return nil, assertErr("boom")
	}
	return nil, nil
}

func (f *fakeAccount) Summary() account.AccountStateSummary {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.summary
}

func (f *fakeAccount) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

type fakeDirectory struct {
	gateways []model.Gateway
}

func (d *fakeDirectory) ListGateways(context.Context, model.TunnelType) ([]model.Gateway, error) {
	return d.gateways, nil
}

type fakeStack struct {
	upCalled   bool
	runBlocks  chan struct{}
	downCalled bool
}

func (s *fakeStack) Up(context.Context) (model.ConnectionData, string, error) {
	s.upCalled = true
	return model.ConnectionData{}, "nymtun0", nil
}

func (s *fakeStack) Run(ctx context.Context) error {
	select {
	case <-s.runBlocks:
		return nil
	case <-ctx.Done():
		return nil
	}
}

func (s *fakeStack) Down(context.Context) error {
	s.downCalled = true
	return nil
}

func twoGateways() []model.Gateway {
	return []model.Gateway{
		{Identity: "entry-1", AuthenticatorAddress: "auth-1"},
		{Identity: "exit-1", AuthenticatorAddress: "auth-2"},
	}
}

func drainEvents(out <-chan Event, done <-chan struct{}) []Event {
	var events []Event
	for {
		select {
		case ev := <-out:
			events = append(events, ev)
			if ev.Reply != nil {
				ev.Reply <- struct{}{}
			}
		case <-done:
			return events
		}
	}
}

func TestMonitor_ColdStart_BlocksOnAccountSetupBeforeGatewaySelection(t *testing.T) {
	acct := &fakeAccount{summary: account.AccountStateSummary{}}
	dir := &fakeDirectory{gateways: twoGateways()}
	selector := gateway.New(nil, nil)
	stack := &fakeStack{runBlocks: make(chan struct{})}
	close(stack.runBlocks)

	m := New(acct, dir, selector, func(model.SelectedGateways, Params) (Stack, error) { return stack, nil }, func() bool { return false }, nil)

	out := make(chan Event, 16)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	var events []Event
	go func() {
		events = drainEvents(out, done)
	}()

	err := m.Run(ctx, Params{TunnelType: model.TunnelWireguardTunTun}, model.EntryPoint{Kind: model.EntryByGatewayID, GatewayID: "entry-1"}, model.ExitPoint{Kind: model.ExitByGatewayID, GatewayID: "exit-1"}, out)
	close(done)

	require.NoError(t, err)
	assert.True(t, stack.upCalled)
	assert.True(t, stack.downCalled)
	assert.GreaterOrEqual(t, acct.callCount(), 2, "cold start must block on sync before proceeding")
	assert.Equal(t, 2, acct.callCount(), "cold start must not register/request since readiness gates are unmet")

	var kinds []EventKind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Contains(t, kinds, EventSelectingGateways)
	assert.Contains(t, kinds, EventSelectedGateways)
	assert.Contains(t, kinds, EventInterfaceUp)
	assert.Contains(t, kinds, EventUp)
	assert.Contains(t, kinds, EventDown)
}

func TestMonitor_WarmStart_FastPathDoesNotBlockOnAccountSetup(t *testing.T) {
	acct := &fakeAccount{summary: account.AccountStateSummary{}}
	dir := &fakeDirectory{gateways: twoGateways()}
	selector := gateway.New(nil, nil)
	stack := &fakeStack{runBlocks: make(chan struct{})}
	close(stack.runBlocks)

	m := New(acct, dir, selector, func(model.SelectedGateways, Params) (Stack, error) { return stack, nil }, func() bool { return true }, nil)

	out := make(chan Event, 16)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	var events []Event
	go func() {
		events = drainEvents(out, done)
	}()

	err := m.Run(ctx, Params{TunnelType: model.TunnelWireguardTunTun}, model.EntryPoint{Kind: model.EntryByGatewayID, GatewayID: "entry-1"}, model.ExitPoint{Kind: model.ExitByGatewayID, GatewayID: "exit-1"}, out)
	close(done)

	require.NoError(t, err)
	var kinds []EventKind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.NotContains(t, kinds, EventRequestingZkNyms, "warm start with unready summary must not request zk-nym synchronously")
}

func TestMonitor_SameEntryAndExit_ReturnsError(t *testing.T) {
	acct := &fakeAccount{}
	dir := &fakeDirectory{gateways: []model.Gateway{{Identity: "only-one", AuthenticatorAddress: "auth"}}}
	selector := gateway.New(nil, nil)
	m := New(acct, dir, selector, func(model.SelectedGateways, Params) (Stack, error) { return nil, nil }, func() bool { return false }, nil)

	out := make(chan Event, 16)
	go func() {
		for range out {
		}
	}()

	err := m.Run(context.Background(), Params{TunnelType: model.TunnelWireguardTunTun},
		model.EntryPoint{Kind: model.EntryByGatewayID, GatewayID: "only-one"},
		model.ExitPoint{Kind: model.ExitByGatewayID, GatewayID: "only-one"}, out)
	require.Error(t, err)
}
