package firewall

import (
	"sync"

	"go.nymvpn.network/core/internal/logging"
)

// Backend applies a rendered Policy to the host OS and can reset back to
// baseline. Implementations must be idempotent: applying the same policy
// twice in a row leaves the same rule set in place (spec §4.1).
type Backend interface {
	Apply(p Policy) error
	Reset() error
}

// Engine owns the currently-applied policy and serializes Apply/Reset calls
// through one mutex, mirroring grimm-is-flywall's Manager (sync.RWMutex
// guarded baseConfig/currentConfig, ApplyConfig doing a full rebuild+push
// per call).
type Engine struct {
	mu      sync.Mutex
	backend Backend
	current Policy
	applied bool
	logger  *logging.Logger
}

// NewEngine builds an Engine around backend. A nil logger gets the package
// default.
func NewEngine(backend Backend, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{backend: backend, current: Baseline, logger: logger.WithComponent("firewall")}
}

// Apply reconciles the running rules to p. On failure the engine's
// understanding of "current" is left unchanged, matching the "failures
// leave the pre-existing policy intact" rule in spec §4.1 (the backend
// itself is responsible for transactional apply; the engine does not
// update its bookkeeping until the backend confirms success).
func (e *Engine) Apply(p Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.applied && policiesEqual(e.current, p) {
		// Idempotent no-op: re-applying the same policy must not flip the
		// system through baseline.
		return nil
	}

	if err := e.backend.Apply(p); err != nil {
		e.logger.Error("apply policy failed", "case", p.Case.String(), "error", err)
		return err
	}
	e.current = p
	e.applied = true
	e.logger.Info("applied firewall policy", "case", p.Case.String())
	return nil
}

// Reset removes all rules owned by this client and returns to baseline.
// Reset is best-effort but must always surface its error to the caller to
// log (spec §4.1: "Reset is best-effort but must always log and surface
// errors").
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.backend.Reset()
	if err != nil {
		e.logger.Error("reset firewall policy failed", "error", err)
		return err
	}
	e.current = Baseline
	e.applied = false
	e.logger.Info("reset firewall policy to baseline")
	return nil
}

// Current returns the last successfully-applied policy.
func (e *Engine) Current() (Policy, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current, e.applied
}

// Close implements the "Drop must attempt reset with a ContinueBlocking
// hint" rule from spec §4.1: best-effort reset, error logged, never
// panics. ContinueBlocking itself has no effect here — blocking is the
// default OS behavior once no policy is installed by this engine; the hint
// exists in the original only to suppress a log downgrade.
func (e *Engine) Close() {
	if err := e.Reset(); err != nil {
		e.logger.Error("reset on close failed, firewall rules may remain applied", "error", err)
	}
}

func policiesEqual(a, b Policy) bool {
	if a.Case != b.Case || a.AllowLAN != b.AllowLAN || a.BlockHyperV != b.BlockHyperV {
		return false
	}
	if a.Tunnel != b.Tunnel {
		return false
	}
	if len(a.PeerEndpoints) != len(b.PeerEndpoints) || len(a.AllowedEndpoints) != len(b.AllowedEndpoints) {
		return false
	}
	for i := range a.PeerEndpoints {
		if a.PeerEndpoints[i] != b.PeerEndpoints[i] {
			return false
		}
	}
	for i := range a.AllowedEndpoints {
		if a.AllowedEndpoints[i] != b.AllowedEndpoints[i] {
			return false
		}
	}
	if (a.WireguardUDP == nil) != (b.WireguardUDP == nil) {
		return false
	}
	if a.WireguardUDP != nil && *a.WireguardUDP != *b.WireguardUDP {
		return false
	}
	if len(a.DNS.Servers) != len(b.DNS.Servers) || a.DNS.RedirectPort != b.DNS.RedirectPort {
		return false
	}
	for i := range a.DNS.Servers {
		if a.DNS.Servers[i] != b.DNS.Servers[i] {
			return false
		}
	}
	return true
}
