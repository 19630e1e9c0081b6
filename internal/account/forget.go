package account

import (
	"context"

	nymerrors "go.nymvpn.network/core/internal/errors"
)

var errRegistrationInProgress = nymerrors.Errorf(nymerrors.KindConflict, "cannot forget account while device registration is in progress")

// ForgetSteps are the 8 ordered best-effort actions of spec §4.5 "Forget
// semantics". Each is attempted even if an earlier one failed; only a
// device registration in progress (LastRegisterDevice.State ==
// ResultInProgress) short-circuits the whole sequence before it starts.
type ForgetSteps struct {
	DeleteDeviceOnAPI    func(ctx context.Context) error
	WipeMnemonic         func(ctx context.Context) error
	WipeDeviceKeys       func(ctx context.Context) error
	ResetCredentialStore func(ctx context.Context) error
	RemoveLooseFiles     func(ctx context.Context) error
	ResetInMemoryState   func(ctx context.Context) error
	ReinitDeviceKeys     func(ctx context.Context) error
	TriggerAccountSync   func(ctx context.Context) error
}

// runForget refuses the forget entirely, running no step, while the
// summary's LastRegisterDevice.State is ResultInProgress. Otherwise it
// attempts every step in order and then resets the summary.
func (c *Controller) runForget(ctx context.Context) (any, error) {
	if c.Summary().LastRegisterDevice.State == ResultInProgress {
		return nil, errRegistrationInProgress
	}

	steps := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"delete_device_on_api", c.forgetSteps.DeleteDeviceOnAPI},
		{"wipe_mnemonic", c.forgetSteps.WipeMnemonic},
		{"wipe_device_keys", c.forgetSteps.WipeDeviceKeys},
		{"reset_credential_store", c.forgetSteps.ResetCredentialStore},
		{"remove_loose_files", c.forgetSteps.RemoveLooseFiles},
		{"reset_in_memory_state", c.forgetSteps.ResetInMemoryState},
		{"reinit_device_keys", c.forgetSteps.ReinitDeviceKeys},
		{"trigger_account_sync", c.forgetSteps.TriggerAccountSync},
	}

	failures := map[string]error{}
	for _, step := range steps {
		if step.fn == nil {
			continue
		}
		if err := step.fn(ctx); err != nil {
			c.logger.Warn("forget account step failed", "step", step.name, "error", err)
			failures[step.name] = err
		}
	}

	c.setSummary(func(s *AccountStateSummary) { *s = AccountStateSummary{UpdatedAt: s.UpdatedAt} })

	if len(failures) > 0 {
		return nil, &ForgetAccountError{StepErrors: failures}
	}
	return nil, nil
}
