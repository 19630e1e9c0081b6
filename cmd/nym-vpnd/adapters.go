package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.nymvpn.network/core/internal/apiclient"
	"go.nymvpn.network/core/internal/credential"
	nymerrors "go.nymvpn.network/core/internal/errors"
	"go.nymvpn.network/core/internal/model"
)

// zkNymAPI adapts apiclient.Client's REST routes to credential.VpnAPI's
// shape, which is expressed in terms of the zk-nym sequence's own
// vocabulary (withdrawal requests, partial wallets) rather than raw HTTP
// request/response bodies.
type zkNymAPI struct {
	client *apiclient.Client
}

func (a *zkNymAPI) RequestZkNym(ctx context.Context, accountID, devicePubkey string, ticketType model.TicketType, req credential.WithdrawalRequest, expirationDate string) (string, model.TicketType, error) {
	resp, err := a.client.RequestZkNym(ctx, accountID, devicePubkey, apiclient.ZkNymRequest{
		TicketType:        ticketType.String(),
		WithdrawalRequest:  req.RequestInfo,
		EcashPubKey:        req.PublicKey,
	})
	if err != nil {
		return "", model.TicketTypeUnspecified, err
	}
	return resp.ID, model.ParseTicketType(resp.TicketType), nil
}

// PollZkNymStatus adapts GetZkNymByID. The vpn-api's status payload in
// this module carries only the blinded shares and epoch ID (spec §1
// Non-goal: the zk-nym cryptographic scheme itself); the verification-key
// and signature families it would also return are fetched separately via
// PartialVerificationKeys and cached under their own store rows, so they
// are returned empty here rather than invented.
func (a *zkNymAPI) PollZkNymStatus(ctx context.Context, accountID, devicePubkey, id string) (status string, blindedShares [][]byte, masterVK, coinIndexSigs, expirationDateSigs []byte, epochID uint64, err error) {
	resp, err := a.client.GetZkNymByID(ctx, accountID, devicePubkey, id)
	if err != nil {
		return "", nil, nil, nil, nil, 0, err
	}
	return resp.Status, resp.BlindedSignatures, nil, nil, nil, resp.EpochID, nil
}

func (a *zkNymAPI) PartialVerificationKeys(ctx context.Context, epochID uint64) (map[uint64][]byte, error) {
	resp, err := a.client.PartialVerificationKeys(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[uint64][]byte, len(resp.Keys))
	for i, k := range resp.Keys {
		out[uint64(i)] = k
	}
	return out, nil
}

func (a *zkNymAPI) ConfirmZkNymDownloaded(ctx context.Context, accountID, devicePubkey, id string) error {
	return a.client.ConfirmZkNymDownloaded(ctx, accountID, devicePubkey, id)
}

// gatewayDirectory adapts apiclient's directory routes to
// tunnelmonitor.GatewayDirectory.
type gatewayDirectory struct {
	client *apiclient.Client
}

func (d *gatewayDirectory) ListGateways(ctx context.Context, tunnelType model.TunnelType) ([]model.Gateway, error) {
	resp, err := d.client.ListGateways(ctx, apiclient.GatewaysAll)
	if err != nil {
		return nil, err
	}
	out := make([]model.Gateway, 0, len(resp))
	for _, g := range resp {
		out = append(out, g.ToModel())
	}
	return out, nil
}

// stubEcash is the placeholder for credential.Ecash: the coconut
// blind-signature math is an explicit spec Non-goal ("the zk-nym
// cryptographic scheme itself"), and internal/credential/engine.go's own
// package doc names Ecash as the pluggable extension point standing in for
// it. A build wired to the real nym-vpn-lib coconut implementation would
// replace this type; the request/poll/store sequencing around it is the
// part this module implements for real.
type stubEcash struct{}

func (stubEcash) DeriveWithdrawalRequest(ticketType model.TicketType, expirationDate string) (credential.WithdrawalRequest, error) {
	return credential.WithdrawalRequest{}, nymerrors.Errorf(nymerrors.KindInternal, "coconut withdrawal-request derivation not wired: supply a real credential.Ecash implementation")
}

func (stubEcash) IssueVerify(partialVerificationKey, ecashSecret, blindedSignature, requestInfo []byte, nodeIndex uint64) (credential.PartialWallet, error) {
	return credential.PartialWallet{}, nymerrors.Errorf(nymerrors.KindInternal, "coconut issue_verify not wired: supply a real credential.Ecash implementation")
}

func (stubEcash) AggregateWallets(masterVerificationKey []byte, shares []credential.PartialWallet) ([]byte, error) {
	return nil, nymerrors.Errorf(nymerrors.KindInternal, "coconut wallet aggregation not wired: supply a real credential.Ecash implementation")
}

// tcpTransport dials a gateway authenticator address directly over TCP,
// grounded on the teacher's net.DialTimeout("tcp", addr, timeout) idiom
// (internal/state/replication.go). The authenticator address in the
// directory is a bare host:port today; gateways that only expose it as a
// nym-address (routed over the mixnet rather than a raw socket) are out of
// reach of this transport and the registration attempt fails with
// KindUnavailable, which the tunnel monitor already retries.
type tcpTransport struct {
	net.Conn
}

func dialAuthenticator(ctx context.Context, addr string) (*tcpTransport, error) {
	d := net.Dialer{Timeout: 10 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nymerrors.Wrap(err, nymerrors.KindUnavailable, fmt.Sprintf("dial authenticator %s", addr))
	}
	return &tcpTransport{Conn: conn}, nil
}

func (t *tcpTransport) Close() error { return t.Conn.Close() }
