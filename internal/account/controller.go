package account

import (
	"context"
	"sync"
	"time"

	nymerrors "go.nymvpn.network/core/internal/errors"
	"go.nymvpn.network/core/internal/logging"
)

const (
	reapInterval       = 500 * time.Millisecond
	syncInterval       = 5 * time.Minute
	zkNymCheckInterval = 60 * time.Second
	shutdownGrace      = 5 * time.Second
)

// Handlers are the actual command implementations, injected so that
// Controller never imports internal/credential, internal/apiclient or
// internal/wireguard directly — it only knows how to serialize and
// dispatch whatever work those packages provide. Each handler receives the
// command payload and returns the value placed in Result.Value.
type Handlers struct {
	StoreAccount            func(ctx context.Context, mnemonic string) (any, error)
	SyncAccountState        func(ctx context.Context) (any, error)
	SyncDeviceState         func(ctx context.Context) (any, error)
	RegisterDevice          func(ctx context.Context) (any, error)
	RequestZkNym            func(ctx context.Context, payload any) (any, error)
	GetUsage                func(ctx context.Context) (any, error)
	GetDevices              func(ctx context.Context) (any, error)
	GetActiveDevices        func(ctx context.Context) (any, error)
	GetDeviceIdentity       func(ctx context.Context) (any, error)
	GetAvailableTickets     func(ctx context.Context) (any, error)
	GetZkNymByID            func(ctx context.Context, payload any) (any, error)
	ConfirmZkNymDownloaded  func(ctx context.Context, payload any) (any, error)
	SetStaticApiAddresses   func(ctx context.Context, payload any) (any, error)
	// CredentialsModeEnabled and MaxFailsReached gate the 60s zk-nym
	// timer (spec §4.5 background timers).
	CredentialsModeEnabled func() bool
	MaxFailsReached        func() bool
	BelowSoftThreshold     func() bool
}

type pendingCmd struct {
	kind    CommandKind
	payload any
	reply   chan Result
}

// Controller is the account controller actor of spec §4.5.
type Controller struct {
	logger      *logging.Logger
	handlers    Handlers
	forgetSteps ForgetSteps

	mu      sync.Mutex
	summary AccountStateSummary
	running map[CommandKind][]chan Result

	submit chan pendingCmd
	wg     sync.WaitGroup
}

// New builds a Controller. Run must be called to begin processing.
func New(h Handlers, steps ForgetSteps, logger *logging.Logger) *Controller {
	if logger == nil {
		logger = logging.Default().WithComponent("account")
	}
	return &Controller{
		logger:      logger,
		handlers:    h,
		forgetSteps: steps,
		running:     make(map[CommandKind][]chan Result),
		submit:      make(chan pendingCmd, 64),
	}
}

// Summary returns a copy of the current published state.
func (c *Controller) Summary() AccountStateSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary
}

func (c *Controller) setSummary(f func(*AccountStateSummary)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f(&c.summary)
	c.summary.UpdatedAt = time.Now()
}

// ApplySummary lets a Sync/StoreAccount handler publish fields the Result
// envelope alone doesn't carry (account status, subscription, device
// quota, mnemonic-stored flag), fetched from whatever backs VpnAPI.
func (c *Controller) ApplySummary(f func(*AccountStateSummary)) {
	c.setSummary(f)
}

// Run is the actor's command loop; it blocks until ctx is cancelled and
// then waits up to shutdownGrace for in-flight workers (spec §4.5
// "Shutdown").
func (c *Controller) Run(ctx context.Context) {
	reapTicker := time.NewTicker(reapInterval)
	syncTicker := time.NewTicker(syncInterval)
	zkNymTicker := time.NewTicker(zkNymCheckInterval)
	defer reapTicker.Stop()
	defer syncTicker.Stop()
	defer zkNymTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case cmd := <-c.submit:
			c.dispatch(ctx, cmd)
		case <-reapTicker.C:
			// Completed workers deregister themselves from `running` as
			// part of their completion callback; this tick exists to
			// match the spec's explicit 500ms reap cadence even though
			// this implementation reaps eagerly.
		case <-syncTicker.C:
			c.enqueue(ctx, CmdSyncAccountState, nil)
			c.enqueue(ctx, CmdSyncDeviceState, nil)
		case <-zkNymTicker.C:
			c.maybeQueueZkNymCheck(ctx)
		}
	}
}

func (c *Controller) maybeQueueZkNymCheck(ctx context.Context) {
	if c.handlers.CredentialsModeEnabled == nil || !c.handlers.CredentialsModeEnabled() {
		return
	}
	if c.handlers.MaxFailsReached != nil && c.handlers.MaxFailsReached() {
		return
	}
	if c.handlers.BelowSoftThreshold == nil || !c.handlers.BelowSoftThreshold() {
		return
	}
	if !c.Summary().ReadyToRequestZkNym() {
		return
	}
	c.enqueue(ctx, CmdRequestZkNym, nil)
}

func (c *Controller) shutdown() {
	waitDone := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownGrace):
		c.logger.Warn("account controller shutdown grace period elapsed; dropping in-flight work")
	}
}

// Do submits a command and blocks for its result, joining the shared
// in-flight worker for that command kind if one is already running (spec
// §4.5 "RunningCommands" discipline).
func (c *Controller) Do(ctx context.Context, kind CommandKind, payload any) (any, error) {
	reply := make(chan Result, 1)
	select {
	case c.submit <- pendingCmd{kind: kind, payload: payload, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-reply:
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// enqueue is Do without waiting for the result, used by the background
// timers.
func (c *Controller) enqueue(ctx context.Context, kind CommandKind, payload any) {
	select {
	case c.submit <- pendingCmd{kind: kind, payload: payload, reply: make(chan Result, 1)}:
	case <-ctx.Done():
	default:
		c.logger.Warn("account controller submit queue full, dropping background command", "kind", kind.String())
	}
}

func (c *Controller) dispatch(ctx context.Context, cmd pendingCmd) {
	c.mu.Lock()
	waiters, inFlight := c.running[cmd.kind]
	c.running[cmd.kind] = append(waiters, cmd.reply)
	c.mu.Unlock()

	if inFlight {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		res := c.execute(ctx, cmd.kind, cmd.payload)

		c.mu.Lock()
		pending := c.running[cmd.kind]
		delete(c.running, cmd.kind)
		c.mu.Unlock()

		for _, ch := range pending {
			ch <- res
		}
	}()
}

func (c *Controller) execute(ctx context.Context, kind CommandKind, payload any) Result {
	var value any
	var err error

	switch kind {
	case CmdStoreAccount:
		mnemonic, _ := payload.(string)
		value, err = c.handlers.StoreAccount(ctx, mnemonic)
	case CmdForgetAccount:
		value, err = c.runForget(ctx)
	case CmdSyncAccountState:
		value, err = c.handlers.SyncAccountState(ctx)
	case CmdSyncDeviceState:
		value, err = c.handlers.SyncDeviceState(ctx)
	case CmdRegisterDevice:
		c.setSummary(func(s *AccountStateSummary) { s.LastRegisterDevice = RegisterDeviceResult{State: ResultInProgress} })
		value, err = c.handlers.RegisterDevice(ctx)
		c.setSummary(func(s *AccountStateSummary) {
			if err != nil {
				s.LastRegisterDevice = RegisterDeviceResult{State: ResultFailed, Err: err}
			} else {
				s.LastRegisterDevice = RegisterDeviceResult{State: ResultSuccess}
			}
		})
	case CmdRequestZkNym:
		c.setSummary(func(s *AccountStateSummary) { s.LastZkNym = ZkNymResult{State: ResultInProgress} })
		value, err = c.handlers.RequestZkNym(ctx, payload)
		counts, _ := value.(ZkNymCounts)
		c.setSummary(func(s *AccountStateSummary) {
			if err != nil {
				s.LastZkNym = ZkNymResult{State: ResultFailed, Successes: counts.Successes, Failures: counts.Failures, Err: err}
			} else {
				s.LastZkNym = ZkNymResult{State: ResultSuccess, Successes: counts.Successes, Failures: counts.Failures}
			}
		})
	case CmdGetUsage:
		value, err = c.handlers.GetUsage(ctx)
	case CmdGetDevices:
		value, err = c.handlers.GetDevices(ctx)
	case CmdGetActiveDevices:
		value, err = c.handlers.GetActiveDevices(ctx)
	case CmdGetDeviceIdentity:
		value, err = c.handlers.GetDeviceIdentity(ctx)
	case CmdGetAvailableTickets:
		value, err = c.handlers.GetAvailableTickets(ctx)
	case CmdGetZkNymByID:
		value, err = c.handlers.GetZkNymByID(ctx, payload)
	case CmdConfirmZkNymDownloaded:
		value, err = c.handlers.ConfirmZkNymDownloaded(ctx, payload)
	case CmdSetStaticApiAddresses:
		value, err = c.handlers.SetStaticApiAddresses(ctx, payload)
	default:
		err = nymerrors.Errorf(nymerrors.KindInternal, "unknown account command kind %s", kind.String())
	}

	return Result{Value: value, Err: err}
}
