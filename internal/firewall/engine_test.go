package firewall

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connectingPolicy() Policy {
	return Policy{
		Case: CaseConnecting,
		PeerEndpoints: []Endpoint{
			{Addr: netip.MustParseAddr("10.0.0.1"), Port: 443, Protocol: "tcp"},
		},
		DNS:      DNSConfig{Servers: []netip.Addr{netip.MustParseAddr("1.1.1.1")}},
		AllowLAN: false,
	}
}

func TestEngineApply_RecordsCurrentPolicy(t *testing.T) {
	fb := &FakeBackend{}
	e := NewEngine(fb, nil)

	p := connectingPolicy()
	require.NoError(t, e.Apply(p))

	cur, applied := e.Current()
	require.True(t, applied)
	assert.Equal(t, CaseConnecting, cur.Case)
	assert.Len(t, fb.Applied, 1)
}

func TestEngineApply_IdempotentOnSamePolicy(t *testing.T) {
	fb := &FakeBackend{}
	e := NewEngine(fb, nil)
	p := connectingPolicy()

	require.NoError(t, e.Apply(p))
	require.NoError(t, e.Apply(p))

	// Invariant: applying the same policy twice must not produce a second
	// backend transaction (spec §4.1 "idempotent when applied twice").
	assert.Len(t, fb.Applied, 1)
}

func TestEngineApply_FailureLeavesPriorPolicyIntact(t *testing.T) {
	fb := &FakeBackend{}
	e := NewEngine(fb, nil)
	p1 := connectingPolicy()
	require.NoError(t, e.Apply(p1))

	fb.ApplyErr = assertErr{}
	p2 := p1
	p2.Case = CaseConnected
	err := e.Apply(p2)
	require.Error(t, err)

	cur, _ := e.Current()
	assert.Equal(t, CaseConnecting, cur.Case, "failed apply must not change the recorded current policy")
}

func TestEngineReset_ReturnsToBaseline(t *testing.T) {
	fb := &FakeBackend{}
	e := NewEngine(fb, nil)
	require.NoError(t, e.Apply(connectingPolicy()))
	require.NoError(t, e.Reset())

	cur, applied := e.Current()
	assert.False(t, applied)
	assert.True(t, cur.IsBaseline())
	assert.Equal(t, 1, fb.Resets)
}

func TestEngineClose_AttemptsResetAndNeverPanics(t *testing.T) {
	fb := &FakeBackend{ResetErr: assertErr{}}
	e := NewEngine(fb, nil)
	require.NoError(t, e.Apply(connectingPolicy()))

	assert.NotPanics(t, func() { e.Close() })
	assert.Equal(t, 1, fb.Resets)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
