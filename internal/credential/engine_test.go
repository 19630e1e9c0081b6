package credential

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.nymvpn.network/core/internal/credential/store"
	"go.nymvpn.network/core/internal/model"
)

type fakeEcash struct{}

func (fakeEcash) DeriveWithdrawalRequest(ticketType model.TicketType, expirationDate string) (WithdrawalRequest, error) {
	return WithdrawalRequest{EcashSecret: []byte("secret"), RequestInfo: []byte("info"), PublicKey: []byte("pub")}, nil
}

func (fakeEcash) IssueVerify(partialVK, ecashSecret, blindedSig, requestInfo []byte, nodeIndex uint64) (PartialWallet, error) {
	return PartialWallet{NodeIndex: nodeIndex, Share: append([]byte("share-"), blindedSig...)}, nil
}

func (fakeEcash) AggregateWallets(masterVK []byte, shares []PartialWallet) ([]byte, error) {
	out := append([]byte{}, masterVK...)
	for _, s := range shares {
		out = append(out, s.Share...)
	}
	return out, nil
}

type fakeVpnAPI struct {
	pollResponses []pollResp
	pollCalls     int
	confirmedIDs  []string
	echoOverride  model.TicketType
}

type pollResp struct {
	status             string
	blindedShares      [][]byte
	masterVK           []byte
	coinIndexSigs      []byte
	expirationDateSigs []byte
	epochID            uint64
}

func (f *fakeVpnAPI) RequestZkNym(ctx context.Context, accountID, devicePubkey string, ticketType model.TicketType, req WithdrawalRequest, expirationDate string) (string, model.TicketType, error) {
	echoed := ticketType
	if f.echoOverride != model.TicketTypeUnspecified {
		echoed = f.echoOverride
	}
	return "req-1", echoed, nil
}

func (f *fakeVpnAPI) PollZkNymStatus(ctx context.Context, accountID, devicePubkey, id string) (string, [][]byte, []byte, []byte, []byte, uint64, error) {
	r := f.pollResponses[f.pollCalls]
	if f.pollCalls < len(f.pollResponses)-1 {
		f.pollCalls++
	}
	return r.status, r.blindedShares, r.masterVK, r.coinIndexSigs, r.expirationDateSigs, r.epochID, nil
}

func (f *fakeVpnAPI) PartialVerificationKeys(ctx context.Context, epochID uint64) (map[uint64][]byte, error) {
	return map[uint64][]byte{0: []byte("pvk-0"), 1: []byte("pvk-1")}, nil
}

func (f *fakeVpnAPI) ConfirmZkNymDownloaded(ctx context.Context, accountID, devicePubkey, id string) error {
	f.confirmedIDs = append(f.confirmedIDs, id)
	return nil
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.sqlite")
	st, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestEngine_RequestTicketbook_FullHappyPath(t *testing.T) {
	st := openTestStore(t)
	enc0 := base58.Encode([]byte("blinded-0"))
	enc1 := base58.Encode([]byte("blinded-1"))
	api := &fakeVpnAPI{pollResponses: []pollResp{
		{
			status:             "Issued",
			blindedShares:      [][]byte{[]byte(enc0), []byte(enc1)},
			masterVK:           []byte("master-vk"),
			coinIndexSigs:      []byte("coin-sigs"),
			expirationDateSigs: []byte("date-sigs"),
			epochID:            7,
		},
	}}
	e := New(fakeEcash{}, api, st, nil)

	err := e.RequestTicketbook(context.Background(), "acct-1", "device-1", model.TicketV1MixnetEntry, "2026-09-01")
	require.NoError(t, err)

	counts, err := st.AvailableTickets()
	require.NoError(t, err)
	assert.Equal(t, 1, counts["V1MixnetEntry"])
	assert.Equal(t, []string{"req-1"}, api.confirmedIDs)

	pending, err := st.ListPendingRequests()
	require.NoError(t, err)
	assert.Empty(t, pending, "pending record must be deleted after success")
}

func TestEngine_RequestTicketbook_FailsOnEchoedTicketTypeMismatch(t *testing.T) {
	st := openTestStore(t)
	api := &fakeVpnAPI{echoOverride: model.TicketV1WireguardExit}
	e := New(fakeEcash{}, api, st, nil)

	err := e.RequestTicketbook(context.Background(), "acct-1", "device-1", model.TicketV1MixnetEntry, "2026-09-01")
	require.Error(t, err)
	var mismatchErr *TicketTypeMismatchError
	require.ErrorAs(t, err, &mismatchErr)
	assert.Equal(t, model.TicketV1MixnetEntry, mismatchErr.Requested)
	assert.Equal(t, model.TicketV1WireguardExit, mismatchErr.Echoed)

	pending, err := st.ListPendingRequests()
	require.NoError(t, err)
	assert.Empty(t, pending, "a type mismatch fails before the pending record is persisted")
}

func TestEngine_Poll_TimesOutAfterDeadline(t *testing.T) {
	st := openTestStore(t)
	api := &fakeVpnAPI{pollResponses: []pollResp{{status: "Pending"}}}
	e := New(fakeEcash{}, api, st, nil)

	// The first clock() call stamps the pending record and the second
	// computes the poll deadline; every call after that (the post-poll
	// "have we timed out" check) reports a time already past it, so the
	// loop times out without any real waiting.
	base := time.Unix(0, 0)
	calls := 0
	e.clock = func() time.Time {
		calls++
		if calls <= 2 {
			return base
		}
		return base.Add(61 * time.Second)
	}

	err := e.RequestTicketbook(context.Background(), "acct-1", "device-1", model.TicketV1MixnetEntry, "2026-09-01")
	require.Error(t, err)
	var timeoutErr *PollingTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "req-1", timeoutErr.ID)
}
