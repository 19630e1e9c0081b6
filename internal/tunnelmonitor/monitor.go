package tunnelmonitor

import (
	"context"

	"go.nymvpn.network/core/internal/account"
	nymerrors "go.nymvpn.network/core/internal/errors"
	"go.nymvpn.network/core/internal/gateway"
	"go.nymvpn.network/core/internal/logging"
	"go.nymvpn.network/core/internal/model"
)

// AccountController is the subset of account.Controller the monitor
// drives through the fast-path account-setup rule.
type AccountController interface {
	Do(ctx context.Context, kind account.CommandKind, payload any) (any, error)
	Summary() account.AccountStateSummary
}

// GatewayDirectory fetches the candidate gateway list to run through the
// Gateway Selector.
type GatewayDirectory interface {
	ListGateways(ctx context.Context, tunnelType model.TunnelType) ([]model.Gateway, error)
}

// StackFactory builds the concrete Stack for one connection attempt,
// once gateways have been selected.
type StackFactory func(gateways model.SelectedGateways, params Params) (Stack, error)

// Monitor brings up one tunnel attempt and emits its lifecycle as Events.
type Monitor struct {
	account  AccountController
	dir      GatewayDirectory
	selector *gateway.Selector
	newStack StackFactory

	// aboveSoftThreshold reports whether locally-held ticketbooks already
	// clear the soft threshold (spec §4.7's fast-path condition); the
	// concrete numeric threshold lives with whoever wires this up
	// (DESIGN.md open-question decision), matching account.Handlers'
	// own BelowSoftThreshold indirection.
	aboveSoftThreshold func() bool

	logger *logging.Logger
}

func New(acct AccountController, dir GatewayDirectory, selector *gateway.Selector, newStack StackFactory, aboveSoftThreshold func() bool, logger *logging.Logger) *Monitor {
	if logger == nil {
		logger = logging.Default().WithComponent("tunnelmonitor")
	}
	return &Monitor{account: acct, dir: dir, selector: selector, newStack: newStack, aboveSoftThreshold: aboveSoftThreshold, logger: logger}
}

// Run executes one connection attempt end to end, emitting events on out,
// and blocks until the stack fails or ctx is cancelled. The caller is
// responsible for retrying with an incremented Params.RetryAttempt and
// waiting retryBackoff(attempt) beforehand.
func (m *Monitor) Run(ctx context.Context, params Params, entry model.EntryPoint, exit model.ExitPoint, out chan<- Event) error {
	emit(out, Event{Kind: EventInitializingClient})

	if err := m.setupAccount(ctx, out); err != nil {
		return err
	}

	emit(out, Event{Kind: EventSelectingGateways})
	gateways, err := m.selectGateways(ctx, params.TunnelType, entry, exit)
	if err != nil {
		return err
	}

	selectedEvent := Event{Kind: EventSelectedGateways, Gateways: gateways, Reply: make(chan struct{}, 1)}
	emit(out, selectedEvent)
	if err := awaitReply(selectedEvent); err != nil {
		return err
	}

	params.Gateways = gateways
	stack, err := m.newStack(gateways, params)
	if err != nil {
		return nymerrors.Wrap(err, nymerrors.KindInternal, "build tunnel stack")
	}

	connData, iface, err := stack.Up(ctx)
	if err != nil {
		_ = stack.Down(ctx)
		return err
	}

	ifaceEvent := Event{Kind: EventInterfaceUp, Iface: iface, ConnData: connData, Reply: make(chan struct{}, 1)}
	emit(out, ifaceEvent)
	if err := awaitReply(ifaceEvent); err != nil {
		_ = stack.Down(ctx)
		return err
	}

	emit(out, Event{Kind: EventUp, Iface: iface, ConnData: connData})

	runErr := stack.Run(ctx)
	downErr := stack.Down(ctx)

	downEvent := Event{Kind: EventDown, ErrorReason: firstNonNil(runErr, downErr), Reply: make(chan struct{}, 1)}
	emit(out, downEvent)
	_ = awaitReply(downEvent)

	return firstNonNil(runErr, downErr)
}

// setupAccount implements spec §4.7's account-setup fast path: fire-and-
// forget sync+register+device when already above the soft threshold,
// otherwise block on each step in sequence so cold starts still enforce
// the readiness preconditions before gateway selection.
func (m *Monitor) setupAccount(ctx context.Context, out chan<- Event) error {
	emit(out, Event{Kind: EventSyncingAccount})

	if m.aboveSoftThreshold != nil && m.aboveSoftThreshold() {
		go func() {
			bg := context.Background()
			_, _ = m.account.Do(bg, account.CmdSyncAccountState, nil)
			_, _ = m.account.Do(bg, account.CmdSyncDeviceState, nil)
			if m.account.Summary().ReadyToRegisterDevice() {
				_, _ = m.account.Do(bg, account.CmdRegisterDevice, nil)
			}
		}()
		return nil
	}

	if _, err := m.account.Do(ctx, account.CmdSyncAccountState, nil); err != nil {
		return nymerrors.Wrap(err, nymerrors.KindUnavailable, "sync account state")
	}
	if _, err := m.account.Do(ctx, account.CmdSyncDeviceState, nil); err != nil {
		return nymerrors.Wrap(err, nymerrors.KindUnavailable, "sync device state")
	}

	if m.account.Summary().ReadyToRegisterDevice() {
		emit(out, Event{Kind: EventRegisteringDevice})
		if _, err := m.account.Do(ctx, account.CmdRegisterDevice, nil); err != nil {
			return nymerrors.Wrap(err, nymerrors.KindUnavailable, "register device")
		}
	}

	if m.account.Summary().ReadyToRequestZkNym() {
		emit(out, Event{Kind: EventRequestingZkNyms})
		if _, err := m.account.Do(ctx, account.CmdRequestZkNym, nil); err != nil {
			return nymerrors.Wrap(err, nymerrors.KindUnavailable, "request zk-nym ticketbook")
		}
	}

	return nil
}

func (m *Monitor) selectGateways(ctx context.Context, tunnelType model.TunnelType, entry model.EntryPoint, exit model.ExitPoint) (model.SelectedGateways, error) {
	all, err := m.dir.ListGateways(ctx, tunnelType)
	if err != nil {
		return model.SelectedGateways{}, nymerrors.Wrap(err, nymerrors.KindUnavailable, "list gateways")
	}
	return m.selector.Select(ctx, all, tunnelType, entry, exit)
}

func firstNonNil(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
