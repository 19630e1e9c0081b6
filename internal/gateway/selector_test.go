package gateway

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.nymvpn.network/core/internal/model"
)

type fakePinger struct {
	rtt map[string]float64
}

func (p fakePinger) PingRTT(_ context.Context, addr string) (float64, error) {
	return p.rtt[addr], nil
}

type fakeGeoIP struct {
	codes map[string]string
}

func (g fakeGeoIP) CountryCode(ip net.IP) (string, error) {
	code, ok := g.codes[ip.String()]
	if !ok {
		return "", errors.New("no record")
	}
	return code, nil
}

func gw(identity, location, ipr, auth, ip string) model.Gateway {
	var ips []netip.Addr
	if ip != "" {
		ips = []netip.Addr{netip.MustParseAddr(ip)}
	}
	return model.Gateway{
		Identity:              identity,
		Location:              location,
		IPPacketRouterAddress: ipr,
		AuthenticatorAddress:  auth,
		IPs:                   ips,
	}
}

func TestSelect_MixnetExitRequiresIPR(t *testing.T) {
	all := []model.Gateway{
		gw("a", "US", "", "", "1.1.1.1"),
		gw("b", "DE", "ipr-addr", "", "1.1.1.2"),
	}
	s := New(fakePinger{}, nil)
	res, err := s.Select(context.Background(), all, model.TunnelMixnet,
		model.EntryPoint{Kind: model.EntryByGatewayID, GatewayID: "a"},
		model.ExitPoint{Kind: model.ExitRandom})
	require.NoError(t, err)
	assert.Equal(t, "b", res.Exit.Identity)
}

func TestSelect_WireguardRequiresAuthenticator(t *testing.T) {
	all := []model.Gateway{
		gw("a", "DE", "", "", "1.1.1.1"),
		gw("b", "DE", "", "auth-addr", "1.1.1.2"),
		gw("c", "US", "", "auth-addr", "1.1.1.3"),
	}
	s := New(fakePinger{}, nil)
	res, err := s.Select(context.Background(), all, model.TunnelWireguardTunTun,
		model.EntryPoint{Kind: model.EntryByLocation, Location: "DE"},
		model.ExitPoint{Kind: model.ExitByGatewayID, GatewayID: "c"})
	require.NoError(t, err)
	assert.Equal(t, "b", res.Entry.Identity)
	assert.Equal(t, "c", res.Exit.Identity)
}

func TestSelect_ByLocationFiltersCandidates(t *testing.T) {
	all := []model.Gateway{
		gw("a", "US", "", "auth-addr", "1.1.1.1"),
		gw("b", "DE", "", "auth-addr", "1.1.1.2"),
	}
	s := New(fakePinger{}, nil)
	res, err := s.Select(context.Background(), all, model.TunnelWireguardTunTun,
		model.EntryPoint{Kind: model.EntryByLocation, Location: "DE"},
		model.ExitPoint{Kind: model.ExitByGatewayID, GatewayID: "a"})
	require.NoError(t, err)
	assert.Equal(t, "b", res.Entry.Identity)
}

func TestSelect_ByLocationDropsGeoIPMismatch(t *testing.T) {
	all := []model.Gateway{
		gw("a", "US", "", "auth-addr", "1.1.1.1"),
		gw("b", "DE", "", "auth-addr", "1.1.1.2"),
		gw("c", "DE", "", "auth-addr", "1.1.1.3"),
	}
	geo := fakeGeoIP{codes: map[string]string{
		"1.1.1.2": "FR", // self-reported DE, actually geolocates to FR
		"1.1.1.3": "DE", // self-reported DE, confirmed
	}}
	s := New(fakePinger{}, geo)
	res, err := s.Select(context.Background(), all, model.TunnelWireguardTunTun,
		model.EntryPoint{Kind: model.EntryByLocation, Location: "DE"},
		model.ExitPoint{Kind: model.ExitByGatewayID, GatewayID: "a"})
	require.NoError(t, err)
	assert.Equal(t, "c", res.Entry.Identity, "the FR-geolocating candidate must be excluded")
}

func TestSelect_RandomLowLatencyPicksLowestRTT(t *testing.T) {
	all := []model.Gateway{
		gw("a", "US", "", "auth-addr", "1.1.1.1"),
		gw("b", "DE", "", "auth-addr", "1.1.1.2"),
		gw("c", "DE", "", "auth-addr", "1.1.1.3"),
	}
	s := New(fakePinger{rtt: map[string]float64{
		"1.1.1.1": 80,
		"1.1.1.2": 10,
		"1.1.1.3": 40,
	}}, nil)
	res, err := s.Select(context.Background(), all, model.TunnelWireguardTunTun,
		model.EntryPoint{Kind: model.EntryRandomLowLatency},
		model.ExitPoint{Kind: model.ExitByGatewayID, GatewayID: "a"})
	require.NoError(t, err)
	assert.Equal(t, "b", res.Entry.Identity)
}

func TestSelect_ByAddressMatchesIPR(t *testing.T) {
	all := []model.Gateway{
		gw("a", "US", "", "", "1.1.1.1"),
		gw("b", "DE", "nym-addr-1", "", "1.1.1.2"),
	}
	s := New(fakePinger{}, nil)
	res, err := s.Select(context.Background(), all, model.TunnelMixnet,
		model.EntryPoint{Kind: model.EntryByGatewayID, GatewayID: "a"},
		model.ExitPoint{Kind: model.ExitByAddress, NymAddress: "nym-addr-1"})
	require.NoError(t, err)
	assert.Equal(t, "b", res.Exit.Identity)
}

func TestSelect_SameEntryAndExitErrors(t *testing.T) {
	all := []model.Gateway{
		gw("a", "US", "", "auth-addr", "1.1.1.1"),
	}
	s := New(fakePinger{}, nil)
	_, err := s.Select(context.Background(), all, model.TunnelWireguardTunTun,
		model.EntryPoint{Kind: model.EntryByGatewayID, GatewayID: "a"},
		model.ExitPoint{Kind: model.ExitByGatewayID, GatewayID: "a"})
	var sameErr *SameEntryAndExitError
	require.ErrorAs(t, err, &sameErr)
}

func TestSelect_UnknownGatewayIDNotFound(t *testing.T) {
	all := []model.Gateway{gw("a", "US", "", "auth-addr", "1.1.1.1")}
	s := New(fakePinger{}, nil)
	_, err := s.Select(context.Background(), all, model.TunnelWireguardTunTun,
		model.EntryPoint{Kind: model.EntryByGatewayID, GatewayID: "missing"},
		model.ExitPoint{Kind: model.ExitRandom})
	require.Error(t, err)
}
