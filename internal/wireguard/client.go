package wireguard

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"time"

	nymerrors "go.nymvpn.network/core/internal/errors"
	"go.nymvpn.network/core/internal/logging"
	"go.nymvpn.network/core/internal/model"
)

const (
	nonWastefulRetryBudget = 30 * time.Second
	retryBackoff           = 2 * time.Second
)

// VerificationFailedError is spec §4.2 step 2's MAC-check failure.
type VerificationFailedError struct{}

func (*VerificationFailedError) Error() string { return "authenticator response MAC verification failed" }

// Transport is a bidirectional framed connection to a gateway's
// authenticator service. Production code dials the gateway's wss
// endpoint; tests use an in-memory pipe.
type Transport interface {
	io.ReadWriter
	Close() error
}

// TicketPreparer prepares a single spent ticket of the requested type via
// the bandwidth controller (spec §4.2 step 2 "prepare one ticket of
// ticket_type").
type TicketPreparer interface {
	PrepareTicket(ctx context.Context, ticketType model.TicketType) ([]byte, error)
}

// RegistrationResult is the outcome of a successful registration.
type RegistrationResult struct {
	GatewayPubKey [32]byte
	PrivateIPs    PrivateIPs
	WgPort        uint16
}

// Client performs the registration and top-up handshakes against one
// gateway's authenticator.
type Client struct {
	transport    Transport
	version      Version
	builder      frameBuilder
	devicePriv   []byte
	deviceWgPub  [32]byte
	tickets      TicketPreparer
	credsEnabled bool
	logger       *logging.Logger
}

func NewClient(t Transport, version Version, devicePriv []byte, deviceWgPub [32]byte, tickets TicketPreparer, credsEnabled bool, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default().WithComponent("wireguard")
	}
	return &Client{
		transport:    t,
		version:      version,
		builder:      builderFor(version),
		devicePriv:   devicePriv,
		deviceWgPub:  deviceWgPub,
		tickets:      tickets,
		credsEnabled: credsEnabled,
		logger:       logger,
	}
}

// Register runs the full registration protocol of spec §4.2.
func (c *Client) Register(ctx context.Context, ticketType model.TicketType) (*RegistrationResult, error) {
	if c.version == VersionUnknown || c.builder == nil {
		return nil, &UnsupportedAuthenticatorVersionError{}
	}

	if err := c.sendRetryable(ctx, "initial", &Initial{PubKey: c.deviceWgPub}); err != nil {
		return nil, err
	}

	// The gateway replies with either PendingRegistration (needs Final)
	// or Registered directly (already registered, skip Final).
	var pending PendingRegistration
	var already Registered
	kind, err := c.readEither(&pending, &already)
	if err != nil {
		return nil, err
	}
	if kind == "registered" {
		return &RegistrationResult{GatewayPubKey: already.PubKey, PrivateIPs: already.PrivateIPs, WgPort: already.WgPort}, nil
	}

	if !c.verifyMAC(pending) {
		return nil, &VerificationFailedError{}
	}

	var credential []byte
	if c.credsEnabled && c.tickets != nil {
		credential, err = c.tickets.PrepareTicket(ctx, ticketType)
		if err != nil {
			return nil, nymerrors.Wrap(err, nymerrors.KindInternal, "prepare ticket for registration")
		}
	}

	gatewayClient := computeMAC(c.devicePriv, pending.PubKey[:], []byte(pending.PrivateIPs.IPv4), pending.Nonce)
	// Final carries a credential, which makes it a wasteful message: if
	// it fails, retrying would double-spend the ticket (spec §4.2).
	if err := writeFrame(c.transport, c.builder, "final", &Final{GatewayClient: gatewayClient, Credential: credential}); err != nil {
		return nil, nymerrors.WrapNoRetry(err)
	}

	var registered Registered
	if err := readFrame(c.transport, &registered); err != nil {
		return nil, nymerrors.WrapNoRetry(err)
	}
	return &RegistrationResult{GatewayPubKey: registered.PubKey, PrivateIPs: registered.PrivateIPs, WgPort: registered.WgPort}, nil
}

// Query asks for the current remaining bandwidth without spending a
// ticket; non-wasteful, so it retries on transient failure.
func (c *Client) Query(ctx context.Context) (uint64, error) {
	if err := c.sendRetryable(ctx, "query", &Query{}); err != nil {
		return 0, err
	}
	var resp RemainingBandwidth
	if err := readFrame(c.transport, &resp); err != nil {
		return 0, nymerrors.Wrap(err, nymerrors.KindUnavailable, "read remaining bandwidth response")
	}
	return resp.AvailableBandwidthBytes, nil
}

// TopUp spends a credential for TicketsToSpend worth of bandwidth.
// Wasteful: failures are NoRetry (spec §4.2 "avoid double-spending").
// V2 gateways never gained this message (see v2.go); callers must check
// a registered gateway's version before offering top-ups.
func (c *Client) TopUp(ctx context.Context, credential []byte) (uint64, error) {
	if c.builder == nil || !c.builder.supportsTopUp() {
		return 0, &UnsupportedAuthenticatorVersionError{Requested: int(c.version)}
	}
	if err := writeFrame(c.transport, c.builder, "topup", &TopUp{Credential: credential}); err != nil {
		return 0, nymerrors.WrapNoRetry(err)
	}
	var resp TopUpBandwidth
	if err := readFrame(c.transport, &resp); err != nil {
		return 0, nymerrors.WrapNoRetry(err)
	}
	return resp.AvailableBandwidthBytes, nil
}

// sendRetryable writes a non-wasteful message, retrying on transient
// write failures for up to nonWastefulRetryBudget (spec §4.2 "Retry").
func (c *Client) sendRetryable(ctx context.Context, kind string, msg any) error {
	deadline := time.Now().Add(nonWastefulRetryBudget)
	var lastErr error
	for {
		lastErr = writeFrame(c.transport, c.builder, kind, msg)
		if lastErr == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return nymerrors.Wrap(lastErr, nymerrors.KindTimeout, "timeout waiting for connect response")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBackoff):
		}
	}
}

func (c *Client) readEither(pending *PendingRegistration, registered *Registered) (string, error) {
	// Both response shapes are decoded from the same frame: Registered
	// shares PubKey and PrivateIPs with PendingRegistration and adds
	// WgPort, so a frame with no Nonce and no MAC is taken as Registered.
	var resp struct {
		PendingRegistration
		WgPort uint16 `cbor:"wg_port"`
	}
	if err := readFrame(c.transport, &resp); err != nil {
		return "", nymerrors.Wrap(err, nymerrors.KindUnavailable, "read registration response")
	}
	*pending = resp.PendingRegistration
	if pending.Nonce == 0 && len(pending.MAC) == 0 {
		*registered = Registered{PubKey: pending.PubKey, PrivateIPs: pending.PrivateIPs, WgPort: resp.WgPort}
		return "registered", nil
	}
	return "pending", nil
}

func (c *Client) verifyMAC(p PendingRegistration) bool {
	expected := computeMAC(c.devicePriv, p.PubKey[:], []byte(p.PrivateIPs.IPv4), p.Nonce)
	return hmac.Equal(expected, p.MAC)
}

func computeMAC(key, gatewayPub, privateIPv4 []byte, nonce uint64) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(gatewayPub)
	mac.Write(privateIPv4)
	var nonceBuf [8]byte
	binary.BigEndian.PutUint64(nonceBuf[:], nonce)
	mac.Write(nonceBuf[:])
	return mac.Sum(nil)
}
