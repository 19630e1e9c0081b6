// Package credential implements the zk-nym Credential Request Engine of
// spec §4.4: it drives the withdrawal-request/poll/unblind/aggregate
// sequence against the vpn-api and persists the result via
// internal/credential/store. The actual coconut blind-signature math is
// out of scope (spec §1 Non-goals: "the zk-nym cryptographic scheme
// itself"); it is represented by the pluggable Ecash interface so the
// sequencing, retry and storage logic this package owns is fully real and
// testable against a fake.
package credential

import (
	"context"
	"time"

	"github.com/mr-tron/base58"

	nymerrors "go.nymvpn.network/core/internal/errors"
	"go.nymvpn.network/core/internal/logging"
	"go.nymvpn.network/core/internal/model"

	"go.nymvpn.network/core/internal/credential/store"
)

const (
	pollInterval = 5 * time.Second
	pollTimeout  = 60 * time.Second
)

// WithdrawalRequest is the ephemeral ecash keypair's bound request,
// produced in step 1 of request_zk_nym_ticketbook.
type WithdrawalRequest struct {
	EcashSecret []byte
	RequestInfo []byte
	PublicKey   []byte
}

// PartialWallet is one issuer's share after issue_verify.
type PartialWallet struct {
	NodeIndex uint64
	Share     []byte
}

// Ecash is the extension point standing in for the coconut math (spec §1
// Non-goal). A production build supplies a real implementation; tests use
// a fake.
type Ecash interface {
	DeriveWithdrawalRequest(ticketType model.TicketType, expirationDate string) (WithdrawalRequest, error)
	IssueVerify(partialVerificationKey, ecashSecret, blindedSignature, requestInfo []byte, nodeIndex uint64) (PartialWallet, error)
	AggregateWallets(masterVerificationKey []byte, shares []PartialWallet) ([]byte, error)
}

// VpnAPI is the subset of apiclient.Client the engine needs, kept as an
// interface so tests don't need a live server.
type VpnAPI interface {
	RequestZkNym(ctx context.Context, accountID, devicePubkey string, ticketType model.TicketType, req WithdrawalRequest, expirationDate string) (id string, echoedTicketType model.TicketType, err error)
	PollZkNymStatus(ctx context.Context, accountID, devicePubkey, id string) (status string, blindedShares [][]byte, masterVerificationKey []byte, coinIndexSigs []byte, expirationDateSigs []byte, epochID uint64, err error)
	PartialVerificationKeys(ctx context.Context, epochID uint64) (map[uint64][]byte, error)
	ConfirmZkNymDownloaded(ctx context.Context, accountID, devicePubkey, id string) error
}

// PollingTimeoutError is spec §4.4's PollingTimeout{id}.
type PollingTimeoutError struct{ ID string }

func (e *PollingTimeoutError) Error() string { return "zk-nym polling timed out for request " + e.ID }

// TicketTypeMismatchError is step 2's failure mode.
type TicketTypeMismatchError struct {
	Requested, Echoed model.TicketType
}

func (e *TicketTypeMismatchError) Error() string {
	return "zk-nym ticket type mismatch: requested " + e.Requested.String() + ", echoed " + e.Echoed.String()
}

// Engine drives request_zk_nym_ticketbook end to end.
type Engine struct {
	ecash  Ecash
	api    VpnAPI
	store  *store.Store
	logger *logging.Logger
	clock  func() time.Time
}

func New(ecash Ecash, api VpnAPI, st *store.Store, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default().WithComponent("credential")
	}
	return &Engine{ecash: ecash, api: api, store: st, logger: logger, clock: time.Now}
}

// RequestTicketbook runs the full sequence of spec §4.4 for one ticket
// type, called per-type sequentially inside the account controller's
// single in-flight RequestZkNym worker (spec §4.4 "Concurrency").
func (e *Engine) RequestTicketbook(ctx context.Context, accountID, devicePubkey string, ticketType model.TicketType, expirationDate string) error {
	// Step 1: derive the withdrawal request bound to type+expiration.
	withdrawal, err := e.ecash.DeriveWithdrawalRequest(ticketType, expirationDate)
	if err != nil {
		return nymerrors.Wrap(err, nymerrors.KindInternal, "derive zk-nym withdrawal request")
	}

	// Step 2: POST, verify echoed type.
	id, echoed, err := e.api.RequestZkNym(ctx, accountID, devicePubkey, ticketType, withdrawal, expirationDate)
	if err != nil {
		return nymerrors.Wrap(err, nymerrors.KindUnavailable, "submit zk-nym request")
	}
	if echoed != ticketType {
		return &TicketTypeMismatchError{Requested: ticketType, Echoed: echoed}
	}

	// Step 3: persist pending-request record for crash resumption.
	if err := e.store.PutPendingRequest(store.PendingRequest{
		ID:             id,
		TicketType:     ticketType.String(),
		ExpirationDate: expirationDate,
		RequestInfo:    withdrawal.RequestInfo,
		CreatedAt:      e.clock(),
	}); err != nil {
		return err
	}

	return e.resumeTicketbook(ctx, accountID, devicePubkey, id, ticketType, expirationDate, withdrawal)
}

// ResumePending re-drives steps 4-10 for a pending request recovered from
// storage after a process restart.
func (e *Engine) ResumePending(ctx context.Context, accountID, devicePubkey string, p store.PendingRequest, ticketType model.TicketType) error {
	withdrawal := WithdrawalRequest{RequestInfo: p.RequestInfo}
	return e.resumeTicketbook(ctx, accountID, devicePubkey, p.ID, ticketType, p.ExpirationDate, withdrawal)
}

func (e *Engine) resumeTicketbook(ctx context.Context, accountID, devicePubkey, id string, ticketType model.TicketType, expirationDate string, withdrawal WithdrawalRequest) error {
	// Step 4: poll every 5s up to 60s total. poll only returns once the
	// status leaves "Pending" or the deadline is hit.
	_, blindedShares, masterVK, coinIndexSigs, expirationDateSigs, epochID, err := e.poll(ctx, accountID, devicePubkey, id)
	if err != nil {
		return err
	}

	// Step 5: persist any newly attached verification material.
	if len(masterVK) > 0 {
		if err := e.store.PutMasterVerificationKey(epochID, masterVK); err != nil {
			return err
		}
	}
	if len(coinIndexSigs) > 0 {
		if err := e.store.PutCoinIndexSignatures(epochID, coinIndexSigs); err != nil {
			return err
		}
	}
	if len(expirationDateSigs) > 0 {
		if err := e.store.PutExpirationDateSignatures(expirationDate, expirationDateSigs); err != nil {
			return err
		}
	}

	// Step 6: fetch partial verification keys for the epoch.
	partialKeys, err := e.api.PartialVerificationKeys(ctx, epochID)
	if err != nil {
		return nymerrors.Wrap(err, nymerrors.KindUnavailable, "fetch partial verification keys")
	}

	// Step 7: issue_verify each share.
	shares := make([]PartialWallet, 0, len(blindedShares))
	for i, blinded := range blindedShares {
		nodeIndex := uint64(i)
		partialVK, ok := partialKeys[nodeIndex]
		if !ok {
			return nymerrors.Errorf(nymerrors.KindNotFound, "decoded keys missing index %d", nodeIndex)
		}
		decoded, err := base58.Decode(string(blinded))
		if err != nil {
			return nymerrors.Wrap(err, nymerrors.KindValidation, "deserialize blinded signature")
		}
		wallet, err := e.ecash.IssueVerify(partialVK, withdrawal.EcashSecret, decoded, withdrawal.RequestInfo, nodeIndex)
		if err != nil {
			return nymerrors.Wrap(err, nymerrors.KindInternal, "issue_verify partial wallet")
		}
		shares = append(shares, wallet)
	}

	// Step 8: aggregate.
	masterVKStored, err := e.store.MasterVerificationKey(epochID)
	if err != nil {
		return err
	}
	walletSignatures, err := e.ecash.AggregateWallets(masterVKStored, shares)
	if err != nil {
		return nymerrors.Wrap(err, nymerrors.KindInternal, "aggregate wallets")
	}

	// Step 9: require both signature families present locally.
	if _, err := e.store.CoinIndexSignatures(epochID); err != nil {
		return err
	}
	if _, err := e.store.ExpirationDateSignatures(expirationDate); err != nil {
		return err
	}

	// Step 10: persist ticketbook, confirm download, delete pending record.
	if err := e.store.PutTicketbook(store.Ticketbook{
		TicketType:       ticketType.String(),
		ExpirationDate:   expirationDate,
		EpochID:          epochID,
		EcashSecret:      withdrawal.EcashSecret,
		WalletSignatures: walletSignatures,
		CreatedAt:        e.clock(),
	}); err != nil {
		return err
	}
	if err := e.api.ConfirmZkNymDownloaded(ctx, accountID, devicePubkey, id); err != nil {
		e.logger.Warn("confirm zk-nym download failed", "id", id, "error", err)
	}
	return e.store.DeletePendingRequest(id)
}

func (e *Engine) poll(ctx context.Context, accountID, devicePubkey, id string) (status string, blindedShares [][]byte, masterVK, coinIndexSigs, expirationDateSigs []byte, epochID uint64, err error) {
	deadline := e.clock().Add(pollTimeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		status, blindedShares, masterVK, coinIndexSigs, expirationDateSigs, epochID, err = e.api.PollZkNymStatus(ctx, accountID, devicePubkey, id)
		if err != nil {
			return "", nil, nil, nil, nil, 0, nymerrors.Wrap(err, nymerrors.KindUnavailable, "poll zk-nym status")
		}
		if status != "Pending" {
			return status, blindedShares, masterVK, coinIndexSigs, expirationDateSigs, epochID, nil
		}
		if e.clock().After(deadline) {
			return "", nil, nil, nil, nil, 0, &PollingTimeoutError{ID: id}
		}
		select {
		case <-ctx.Done():
			return "", nil, nil, nil, nil, 0, ctx.Err()
		case <-ticker.C:
		}
	}
}
