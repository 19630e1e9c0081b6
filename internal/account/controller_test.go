package account

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readyPrereqSummary() AccountStateSummary {
	return AccountStateSummary{
		Mnemonic:          MnemonicState{Stored: true, ID: "acct-1"},
		AccountRegistered: AccountRegistered,
		AccountStatus:     AccountStatusActive,
		Subscription:      SubscriptionActive,
		DeviceState:       DeviceActive,
		DeviceQuota:       DeviceQuota{Remaining: 2},
	}
}

func TestReadyToRegisterDevice_RequiresRemainingSlotsAndNotActive(t *testing.T) {
	s := readyPrereqSummary()
	s.DeviceState = DeviceNotRegistered
	assert.True(t, s.ReadyToRegisterDevice())

	s.DeviceState = DeviceActive
	assert.False(t, s.ReadyToRegisterDevice(), "already-active device must not re-register")

	s.DeviceState = DeviceNotRegistered
	s.DeviceQuota.Remaining = 0
	assert.False(t, s.ReadyToRegisterDevice())
}

func TestReadyToRequestZkNym_RequiresActiveSubscriptionAndDevice(t *testing.T) {
	s := readyPrereqSummary()
	assert.True(t, s.ReadyToRequestZkNym())

	s.Subscription = SubscriptionPending
	assert.False(t, s.ReadyToRequestZkNym())

	s = readyPrereqSummary()
	s.LastZkNym.State = ResultInProgress
	assert.False(t, s.ReadyToRequestZkNym(), "an in-progress request blocks a new one")
}

func newTestController(t *testing.T, h Handlers) (*Controller, context.Context, context.CancelFunc) {
	t.Helper()
	c := New(h, ForgetSteps{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	return c, ctx, cancel
}

func TestController_ConcurrentSameKindCommandsShareOneWorker(t *testing.T) {
	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})

	h := Handlers{
		GetUsage: func(ctx context.Context) (any, error) {
			n := atomic.AddInt32(&calls, 1)
			if n == 1 {
				close(started)
				<-release
			}
			return "usage", nil
		},
	}
	c, ctx, cancel := newTestController(t, h)
	defer cancel()

	type res struct {
		v   any
		err error
	}
	results := make(chan res, 2)
	go func() {
		v, err := c.Do(ctx, CmdGetUsage, nil)
		results <- res{v, err}
	}()

	<-started

	go func() {
		v, err := c.Do(ctx, CmdGetUsage, nil)
		results <- res{v, err}
	}()

	// Give the second Do a moment to enqueue and join the in-flight
	// worker before we release it.
	time.Sleep(20 * time.Millisecond)
	close(release)

	for i := 0; i < 2; i++ {
		r := <-results
		require.NoError(t, r.err)
		assert.Equal(t, "usage", r.v)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "both callers must share the single in-flight worker")
}

func TestController_ForgetRunsAllStepsEvenWhenOneFails(t *testing.T) {
	var ran []string
	mk := func(name string, fail bool) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			ran = append(ran, name)
			if fail {
				return assertErr{}
			}
			return nil
		}
	}
	steps := ForgetSteps{
		DeleteDeviceOnAPI:    mk("delete_device", true),
		WipeMnemonic:         mk("wipe_mnemonic", false),
		WipeDeviceKeys:       mk("wipe_device_keys", false),
		ResetCredentialStore: mk("reset_store", false),
		RemoveLooseFiles:     mk("remove_files", false),
		ResetInMemoryState:   mk("reset_memory", false),
		ReinitDeviceKeys:     mk("reinit_keys", false),
		TriggerAccountSync:   mk("trigger_sync", false),
	}
	c := New(Handlers{}, steps, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	_, err := c.Do(ctx, CmdForgetAccount, nil)
	require.Error(t, err)

	var forgetErr *ForgetAccountError
	require.ErrorAs(t, err, &forgetErr)
	assert.Len(t, forgetErr.StepErrors, 1)
	assert.Len(t, ran, 8, "every step must be attempted despite the first one failing")

	assert.True(t, c.Summary().UpdatedAt.IsZero() || !c.Summary().Mnemonic.Stored, "summary resets to defaults on forget")
}

func TestController_ForgetRefusedDuringInProgressRegistration(t *testing.T) {
	c := New(Handlers{}, ForgetSteps{}, nil)
	c.setSummary(func(s *AccountStateSummary) {
		s.LastRegisterDevice = RegisterDeviceResult{State: ResultInProgress}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	_, err := c.Do(ctx, CmdForgetAccount, nil)
	require.ErrorIs(t, err, errRegistrationInProgress)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
