package main

import (
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"sync"

	"go.nymvpn.network/core/internal/account"
	"go.nymvpn.network/core/internal/apiclient"
	"go.nymvpn.network/core/internal/credential"
	credstore "go.nymvpn.network/core/internal/credential/store"
	nymerrors "go.nymvpn.network/core/internal/errors"
	"go.nymvpn.network/core/internal/ipc"
	"go.nymvpn.network/core/internal/logging"
	"go.nymvpn.network/core/internal/model"
)

// sealKeyFilename and mnemonicFilename are relative to cfg.DataDir.
const (
	sealKeyFilename   = "account-seal.key"
	mnemonicFilename  = "account.sealed"
)

// loadOrGenerateSealKey mirrors wireguard.LoadOrGenerateKey's
// load-or-generate-and-persist idiom for the NaCl secretbox key that seals
// the stored mnemonic on disk.
func loadOrGenerateSealKey(dir string, logger *logging.Logger) (*[32]byte, error) {
	path := filepath.Join(dir, sealKeyFilename)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(data) != 32 {
			logger.Error("account seal key file has wrong length, using ephemeral key", "path", path)
			break
		}
		var key [32]byte
		copy(key[:], data)
		return &key, nil
	case !os.IsNotExist(err):
		logger.Error("unreadable account seal key file, using ephemeral key", "path", path, "error", err)
	}

	var key [32]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, nymerrors.Wrap(err, nymerrors.KindInternal, "generate account seal key")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, nymerrors.Wrap(err, nymerrors.KindInternal, "create data directory")
	}
	if err := os.WriteFile(path, key[:], 0o600); err != nil {
		logger.Error("failed to persist account seal key", "path", path, "error", err)
	}
	return &key, nil
}

// identity holds the derived account/device keypairs for the lifetime of
// a StoreAccount..Forget cycle. Every field is read-only once set; ident
// is replaced wholesale under accountHandlers.mu rather than mutated.
type identity struct {
	account account.KeyPair
	device  account.KeyPair
}

// accountHandlers implements account.Handlers against the real vpn-api
// client, credential engine and on-disk mnemonic seal, the concrete
// collaborators Controller is deliberately unaware of.
type accountHandlers struct {
	api          *apiclient.Client
	credEngine   *credential.Engine
	credStore    *credstore.Store
	sealKey      *[32]byte
	mnemonicPath string
	logger       *logging.Logger

	// ctl and ipcDaemon are set by buildDaemon once constructed, after
	// accountHandlers itself is built but before Controller.Run starts,
	// resolving the handlers->controller->ipcDaemon construction cycle.
	ctl       *account.Controller
	ipcDaemon *ipc.Daemon

	credentialsMode    bool
	zkNymSoftThreshold int

	mu    sync.RWMutex
	ident *identity
}

func (h *accountHandlers) setIdentity(id *identity) {
	h.mu.Lock()
	h.ident = id
	h.mu.Unlock()
}

func (h *accountHandlers) identityOrErr() (*identity, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.ident == nil {
		return nil, nymerrors.Errorf(nymerrors.KindPermission, "no account stored")
	}
	return h.ident, nil
}

// Handlers builds the account.Handlers value Controller dispatches into.
func (h *accountHandlers) Handlers() account.Handlers {
	return account.Handlers{
		StoreAccount:           h.storeAccount,
		SyncAccountState:       h.syncAccountState,
		SyncDeviceState:        h.syncDeviceState,
		RegisterDevice:         h.registerDevice,
		RequestZkNym:           h.requestZkNym,
		GetUsage:               h.getUsage,
		GetDevices:             h.getDevices,
		GetActiveDevices:       h.getActiveDevices,
		GetDeviceIdentity:      h.getDeviceIdentity,
		GetAvailableTickets:    h.getAvailableTickets,
		GetZkNymByID:           h.getZkNymByID,
		ConfirmZkNymDownloaded: h.confirmZkNymDownloaded,
		SetStaticApiAddresses:  h.setStaticApiAddresses,
		CredentialsModeEnabled: h.credentialsModeEnabled,
		BelowSoftThreshold:     h.belowSoftThreshold,
		MaxFailsReached:        func() bool { return false },
	}
}

func (h *accountHandlers) credentialsModeEnabled() bool { return h.credentialsMode }

func (h *accountHandlers) belowSoftThreshold() bool {
	counts, err := h.credStore.AvailableTickets()
	if err != nil {
		return false
	}
	if len(counts) == 0 {
		return true
	}
	for _, n := range counts {
		if n < h.zkNymSoftThreshold {
			return true
		}
	}
	return false
}

// storeAccount derives the account/device identity deterministically from
// the mnemonic's own bytes (spec §3 names the base58-pubkey identity
// format but, consistent with the zk-nym math itself being out of scope,
// leaves mnemonic-to-entropy decoding unspecified; a real build would plug
// in a BIP-39 wordlist decoder here, absent from this module's dependency
// set), seals it for on-disk storage and publishes the resulting identity
// to both the controller summary and the ipc daemon's cached IDs.
func (h *accountHandlers) storeAccount(ctx context.Context, mnemonic string) (any, error) {
	entropy := []byte(mnemonic)
	acctKey, err := account.DeriveAccountKeyPair(entropy)
	if err != nil {
		return nil, err
	}
	devKey, err := account.DeriveDeviceKeyPair(entropy)
	if err != nil {
		return nil, err
	}

	sealed, err := account.SealMnemonic(mnemonic, h.sealKey)
	if err != nil {
		return nil, err
	}
	if err := writeSealedMnemonic(h.mnemonicPath, sealed); err != nil {
		return nil, err
	}

	h.setIdentity(&identity{account: acctKey, device: devKey})
	h.ctl.ApplySummary(func(s *account.AccountStateSummary) {
		s.Mnemonic = account.MnemonicState{Stored: true, ID: acctKey.Identity}
	})
	h.ipcDaemon.SetAccountID(acctKey.Identity)
	h.ipcDaemon.SetDeviceID(devKey.Identity)
	return nil, nil
}

func accountStatusFromString(s string) account.AccountStatus {
	switch s {
	case "Active":
		return account.AccountStatusActive
	case "DeleteMe":
		return account.AccountStatusDeleteMe
	default:
		return account.AccountStatusInactive
	}
}

func subscriptionFromSummary(active bool) account.SubscriptionStatus {
	if active {
		return account.SubscriptionActive
	}
	return account.SubscriptionNotActive
}

func deviceStateFromString(s string) account.DeviceState {
	switch s {
	case "Active":
		return account.DeviceActive
	case "DeleteMe":
		return account.DeviceDeleteMe
	case "Inactive":
		return account.DeviceInactive
	default:
		return account.DeviceNotRegistered
	}
}

// syncAccountState fetches the remote account summary and folds it into
// the published AccountStateSummary (spec §4.5 background sync timer).
func (h *accountHandlers) syncAccountState(ctx context.Context) (any, error) {
	id, err := h.identityOrErr()
	if err != nil {
		return nil, err
	}
	summary, err := h.api.GetAccountSummary(ctx, id.account.Identity)
	if err != nil {
		return nil, err
	}
	h.ctl.ApplySummary(func(s *account.AccountStateSummary) {
		s.AccountRegistered = account.AccountRegistered
		s.AccountStatus = accountStatusFromString(summary.AccountStatus)
		s.Subscription = subscriptionFromSummary(summary.SubscriptionOK)
		s.DeviceState = deviceStateFromString(summary.DeviceStatus)
	})
	return summary, nil
}

// syncDeviceState fetches this device's row out of the account's device
// list and the account-wide device quota.
func (h *accountHandlers) syncDeviceState(ctx context.Context) (any, error) {
	id, err := h.identityOrErr()
	if err != nil {
		return nil, err
	}
	devices, err := h.api.ListDevices(ctx, id.account.Identity)
	if err != nil {
		return nil, err
	}
	active := 0
	var mine *apiclient.Device
	for i := range devices {
		if devices[i].Active {
			active++
		}
		if devices[i].PublicKey == id.device.Identity {
			mine = &devices[i]
		}
	}
	h.ctl.ApplySummary(func(s *account.AccountStateSummary) {
		s.DeviceQuota = account.DeviceQuota{Active: active, Max: len(devices), Remaining: len(devices) - active}
		if mine != nil && mine.Active {
			s.DeviceState = account.DeviceActive
		} else if mine != nil {
			s.DeviceState = account.DeviceInactive
		} else {
			s.DeviceState = account.DeviceNotRegistered
		}
	})
	return devices, nil
}

// registerDevice performs spec §4.3's device registration call.
func (h *accountHandlers) registerDevice(ctx context.Context) (any, error) {
	id, err := h.identityOrErr()
	if err != nil {
		return nil, err
	}
	dev, err := h.api.RegisterDevice(ctx, id.account.Identity, apiclient.RegisterDeviceRequest{PublicKey: id.device.Identity})
	if err != nil {
		return nil, err
	}
	h.ctl.ApplySummary(func(s *account.AccountStateSummary) {
		if dev.Active {
			s.DeviceState = account.DeviceActive
		} else {
			s.DeviceState = account.DeviceInactive
		}
	})
	return dev, nil
}

// requestZkNym runs the ticketbook request sequence for every ticket type
// sequentially, per spec §4.5 "the engine may issue per-ticket-type
// requests sequentially inside that single in-flight task."
func (h *accountHandlers) requestZkNym(ctx context.Context, payload any) (any, error) {
	id, err := h.identityOrErr()
	if err != nil {
		return nil, err
	}
	types := []model.TicketType{
		model.TicketV1MixnetEntry, model.TicketV1MixnetExit,
		model.TicketV1WireguardEntry, model.TicketV1WireguardExit,
	}
	if tt, ok := payload.(model.TicketType); ok {
		types = []model.TicketType{tt}
	}
	var lastErr error
	successes, failures := 0, 0
	for _, tt := range types {
		if err := h.credEngine.RequestTicketbook(ctx, id.account.Identity, id.device.Identity, tt, ""); err != nil {
			failures++
			lastErr = err
			continue
		}
		successes++
	}
	return account.ZkNymCounts{Successes: successes, Failures: failures}, lastErr
}

func (h *accountHandlers) getUsage(ctx context.Context) (any, error) {
	id, err := h.identityOrErr()
	if err != nil {
		return nil, err
	}
	return h.api.GetUsage(ctx, id.account.Identity)
}

func (h *accountHandlers) getDevices(ctx context.Context) (any, error) {
	id, err := h.identityOrErr()
	if err != nil {
		return nil, err
	}
	return h.api.ListDevices(ctx, id.account.Identity)
}

func (h *accountHandlers) getActiveDevices(ctx context.Context) (any, error) {
	id, err := h.identityOrErr()
	if err != nil {
		return nil, err
	}
	return h.api.ListActiveDevices(ctx, id.account.Identity)
}

func (h *accountHandlers) getDeviceIdentity(ctx context.Context) (any, error) {
	id, err := h.identityOrErr()
	if err != nil {
		return nil, err
	}
	return id.device.Identity, nil
}

func (h *accountHandlers) getAvailableTickets(ctx context.Context) (any, error) {
	return h.credStore.AvailableTickets()
}

func (h *accountHandlers) getZkNymByID(ctx context.Context, payload any) (any, error) {
	id, err := h.identityOrErr()
	if err != nil {
		return nil, err
	}
	zkNymID, _ := payload.(string)
	return h.api.GetZkNymByID(ctx, id.account.Identity, id.device.Identity, zkNymID)
}

func (h *accountHandlers) confirmZkNymDownloaded(ctx context.Context, payload any) (any, error) {
	id, err := h.identityOrErr()
	if err != nil {
		return nil, err
	}
	zkNymID, _ := payload.(string)
	return nil, h.api.ConfirmZkNymDownloaded(ctx, id.account.Identity, id.device.Identity, zkNymID)
}

func (h *accountHandlers) setStaticApiAddresses(ctx context.Context, payload any) (any, error) {
	addrs, _ := payload.([]string)
	if len(addrs) == 0 {
		return nil, nymerrors.Errorf(nymerrors.KindValidation, "no static addresses supplied")
	}
	h.api.SetStaticAddresses(addrs[0])
	return nil, nil
}

// writeSealedMnemonic persists the nonce+ciphertext pair to a single file
// (24-byte nonce followed by the ciphertext), the same flat binary
// encoding internal/wireguard/keys.go uses for its own on-disk secrets.
func writeSealedMnemonic(path string, e *account.EncryptedMnemonic) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nymerrors.Wrap(err, nymerrors.KindInternal, "create data directory")
	}
	data := make([]byte, 0, 24+len(e.Ciphertext))
	data = append(data, e.Nonce[:]...)
	data = append(data, e.Ciphertext...)
	return os.WriteFile(path, data, 0o600)
}

// readSealedMnemonic reconstructs an EncryptedMnemonic from the on-disk
// file written by writeSealedMnemonic, returning (nil, nil) if unset.
func readSealedMnemonic(path string) (*account.EncryptedMnemonic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, nymerrors.Wrap(err, nymerrors.KindInternal, "read sealed mnemonic")
	}
	if len(data) < 24 {
		return nil, nymerrors.Errorf(nymerrors.KindInternal, "sealed mnemonic file truncated")
	}
	e := &account.EncryptedMnemonic{Ciphertext: data[24:]}
	copy(e.Nonce[:], data[:24])
	return e, nil
}
