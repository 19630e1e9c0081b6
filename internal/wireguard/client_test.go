package wireguard

import (
	"context"
	"crypto/hmac"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeTransport adapts one half of a net.Pipe to the Transport interface.
type pipeTransport struct{ net.Conn }

func newPipePair() (Transport, Transport) {
	a, b := net.Pipe()
	return pipeTransport{a}, pipeTransport{b}
}

func TestClient_Register_SkipsFinalWhenAlreadyRegistered(t *testing.T) {
	clientSide, gatewaySide := newPipePair()
	defer clientSide.Close()
	defer gatewaySide.Close()

	go func() {
		var initial Initial
		_ = readFrame(gatewaySide, &initial)
		_ = writeFrame(gatewaySide, v4Builder{}, "registered", &Registered{
			PubKey:     [32]byte{9, 9, 9},
			PrivateIPs: PrivateIPs{IPv4: "10.1.0.2"},
			WgPort:     51820,
		})
	}()

	c := NewClient(clientSide, V4, []byte("device-priv"), [32]byte{1}, nil, false, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := c.Register(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(51820), result.WgPort)
	assert.Equal(t, "10.1.0.2", result.PrivateIPs.IPv4)
}

func TestClient_Register_FullHandshakeVerifiesMACAndSendsFinal(t *testing.T) {
	clientSide, gatewaySide := newPipePair()
	defer clientSide.Close()
	defer gatewaySide.Close()

	devicePriv := []byte("device-priv")
	gatewayPub := [32]byte{2, 2, 2}
	nonce := uint64(42)
	privateIPv4 := "10.1.0.3"

	gatewayDone := make(chan error, 1)
	go func() {
		var initial Initial
		if err := readFrame(gatewaySide, &initial); err != nil {
			gatewayDone <- err
			return
		}
		mac := computeMAC(devicePriv, gatewayPub[:], []byte(privateIPv4), nonce)
		if err := writeFrame(gatewaySide, v4Builder{}, "pending_registration", &PendingRegistration{
			PubKey:     gatewayPub,
			Nonce:      nonce,
			PrivateIPs: PrivateIPs{IPv4: privateIPv4},
			MAC:        mac,
		}); err != nil {
			gatewayDone <- err
			return
		}
		var final Final
		if err := readFrame(gatewaySide, &final); err != nil {
			gatewayDone <- err
			return
		}
		expected := computeMAC(devicePriv, gatewayPub[:], []byte(privateIPv4), nonce)
		if !hmac.Equal(expected, final.GatewayClient) {
			gatewayDone <- assertErr{}
			return
		}
		gatewayDone <- writeFrame(gatewaySide, v4Builder{}, "registered", &Registered{PubKey: gatewayPub, PrivateIPs: PrivateIPs{IPv4: privateIPv4}, WgPort: 51821})
	}()

	c := NewClient(clientSide, V4, devicePriv, [32]byte{1}, nil, false, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := c.Register(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(51821), result.WgPort)
	require.NoError(t, <-gatewayDone)
}

func TestClient_Register_BadMACFailsVerification(t *testing.T) {
	clientSide, gatewaySide := newPipePair()
	defer clientSide.Close()
	defer gatewaySide.Close()

	go func() {
		var initial Initial
		_ = readFrame(gatewaySide, &initial)
		_ = writeFrame(gatewaySide, v4Builder{}, "pending_registration", &PendingRegistration{
			PubKey:     [32]byte{3},
			Nonce:      1,
			PrivateIPs: PrivateIPs{IPv4: "10.1.0.4"},
			MAC:        []byte("wrong-mac-bytes-00000000000000"),
		})
	}()

	c := NewClient(clientSide, V4, []byte("device-priv"), [32]byte{1}, nil, false, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := c.Register(ctx, 0)
	require.Error(t, err)
	var verr *VerificationFailedError
	require.ErrorAs(t, err, &verr)
}

func TestComputeMAC_IsDeterministicAndKeyDependent(t *testing.T) {
	m1 := computeMAC([]byte("k1"), []byte("pub"), []byte("10.0.0.1"), 7)
	m2 := computeMAC([]byte("k1"), []byte("pub"), []byte("10.0.0.1"), 7)
	m3 := computeMAC([]byte("k2"), []byte("pub"), []byte("10.0.0.1"), 7)
	assert.Equal(t, m1, m2)
	assert.NotEqual(t, m1, m3)
}

func TestParseVersion_RejectsUnknown(t *testing.T) {
	_, err := ParseVersion(9)
	require.Error(t, err)
	var verr *UnsupportedAuthenticatorVersionError
	require.ErrorAs(t, err, &verr)
}

func TestClient_TopUp_RejectedOnV2(t *testing.T) {
	clientSide, gatewaySide := newPipePair()
	defer clientSide.Close()
	defer gatewaySide.Close()

	c := NewClient(clientSide, V2, []byte("device-priv"), [32]byte{1}, nil, false, nil)
	_, err := c.TopUp(context.Background(), []byte("credential"))
	require.Error(t, err)
	var verr *UnsupportedAuthenticatorVersionError
	require.ErrorAs(t, err, &verr)
}

type assertErr struct{}

func (assertErr) Error() string { return "mac mismatch" }
