// Package gateway implements the Gateway Selector of spec §4.6: filters
// the fetched gateway directory by tunnel-type requirements and resolves
// entry/exit point variants (identity, location, random, random-low-
// latency, address) to concrete gateways. Grounded on
// grimm-is-flywall/internal/network/oui_updater.go's
// fetch-then-filter-then-pick shape, generalized to the spec's point
// variants.
package gateway

import (
	"context"
	"crypto/rand"
	"math/big"
	"net"

	probing "github.com/prometheus-community/pro-bing"

	nymerrors "go.nymvpn.network/core/internal/errors"
	"go.nymvpn.network/core/internal/model"
)

// SameEntryAndExitError is spec §4.6's error for a degenerate selection.
type SameEntryAndExitError struct{ Identity string }

func (e *SameEntryAndExitError) Error() string {
	return "entry and exit gateway must not be the same: " + e.Identity
}

// Pinger abstracts the latency probe used by RandomLowLatency, grounded
// on prometheus-community/pro-bing's Pinger for real ICMP RTT
// measurement.
type Pinger interface {
	PingRTT(ctx context.Context, addr string) (float64, error)
}

// RealPinger uses prometheus-community/pro-bing to send a handful of ICMP
// echoes and return the mean RTT in milliseconds.
type RealPinger struct{ Count int }

func (p RealPinger) PingRTT(ctx context.Context, addr string) (float64, error) {
	count := p.Count
	if count <= 0 {
		count = 3
	}
	pinger, err := probing.NewPinger(addr)
	if err != nil {
		return 0, nymerrors.Wrap(err, nymerrors.KindUnavailable, "create gateway latency pinger")
	}
	pinger.Count = count
	pinger.Timeout = 0
	if err := pinger.RunWithContext(ctx); err != nil {
		return 0, nymerrors.Wrap(err, nymerrors.KindUnavailable, "ping gateway for latency")
	}
	stats := pinger.Statistics()
	return float64(stats.AvgRtt.Milliseconds()), nil
}

// Selector picks entry and exit gateways from a fetched directory.
type Selector struct {
	pinger Pinger
	geoip  GeoIP
}

// New builds a Selector. geo may be nil, in which case the Location
// point variant trusts the directory's self-reported Location string
// with no cross-check (spec §4.6: the geoip lookup only activates "when
// a database path is configured").
func New(pinger Pinger, geo GeoIP) *Selector {
	if pinger == nil {
		pinger = RealPinger{}
	}
	return &Selector{pinger: pinger, geoip: geo}
}

// eligible filters candidates for the requirements of tunnelType and
// direction (spec §4.6: "mixnet-exit requires an IPR address; wg requires
// an authenticator address").
func eligible(all []model.Gateway, tunnelType model.TunnelType, dir model.GatewayDirection) []model.Gateway {
	var out []model.Gateway
	for _, g := range all {
		switch {
		case tunnelType == model.TunnelMixnet && dir == model.DirectionExit:
			if g.HasIPR() {
				out = append(out, g)
			}
		case tunnelType != model.TunnelMixnet:
			if g.HasAuthenticator() {
				out = append(out, g)
			}
		default:
			out = append(out, g)
		}
	}
	return out
}

// Select resolves an EntryPoint and ExitPoint against the fetched
// directory, enforcing that entry and exit differ.
func (s *Selector) Select(ctx context.Context, all []model.Gateway, tunnelType model.TunnelType, entry model.EntryPoint, exit model.ExitPoint) (model.SelectedGateways, error) {
	entryCandidates := eligible(all, tunnelType, model.DirectionEntry)
	entryGW, err := s.resolveEntry(ctx, entryCandidates, entry)
	if err != nil {
		return model.SelectedGateways{}, err
	}

	exitCandidates := eligible(all, tunnelType, model.DirectionExit)
	exitGW, err := s.resolveExit(ctx, exitCandidates, exit)
	if err != nil {
		return model.SelectedGateways{}, err
	}

	if entryGW.Identity == exitGW.Identity {
		return model.SelectedGateways{}, &SameEntryAndExitError{Identity: entryGW.Identity}
	}

	return model.SelectedGateways{Entry: entryGW, Exit: exitGW, TunnelType: tunnelType}, nil
}

func (s *Selector) resolveEntry(ctx context.Context, candidates []model.Gateway, pt model.EntryPoint) (model.Gateway, error) {
	switch pt.Kind {
	case model.EntryByGatewayID:
		return findByIdentity(candidates, pt.GatewayID)
	case model.EntryByLocation:
		return randomFrom(s.filterByLocation(candidates, pt.Location))
	case model.EntryRandomLowLatency:
		return s.lowestLatency(ctx, candidates)
	default: // EntryRandom
		return randomFrom(candidates)
	}
}

func (s *Selector) resolveExit(ctx context.Context, candidates []model.Gateway, pt model.ExitPoint) (model.Gateway, error) {
	switch pt.Kind {
	case model.ExitByGatewayID:
		return findByIdentity(candidates, pt.GatewayID)
	case model.ExitByLocation:
		return randomFrom(s.filterByLocation(candidates, pt.Location))
	case model.ExitRandomLowLatency:
		return s.lowestLatency(ctx, candidates)
	case model.ExitByAddress:
		return findByAddress(candidates, pt.NymAddress)
	default: // ExitRandom
		return randomFrom(candidates)
	}
}

func findByIdentity(candidates []model.Gateway, identity string) (model.Gateway, error) {
	for _, g := range candidates {
		if g.Identity == identity {
			return g, nil
		}
	}
	return model.Gateway{}, nymerrors.Errorf(nymerrors.KindNotFound, "gateway %s not found among eligible candidates", identity)
}

func findByAddress(candidates []model.Gateway, nymAddress string) (model.Gateway, error) {
	for _, g := range candidates {
		if g.IPPacketRouterAddress == nymAddress {
			return g, nil
		}
	}
	return model.Gateway{}, nymerrors.Errorf(nymerrors.KindNotFound, "gateway with nym-address %s not found", nymAddress)
}

// filterByLocation narrows candidates to those self-reporting
// twoLetterCode. When a geoip database is configured, a candidate whose
// address resolves to a *different* country is dropped rather than
// trusted on the directory's word alone; a failed lookup (bad address,
// database miss) keeps the candidate rather than excluding it, since the
// directory-reported Location is still the authoritative source absent a
// conflicting answer.
func (s *Selector) filterByLocation(candidates []model.Gateway, twoLetterCode string) []model.Gateway {
	var out []model.Gateway
	for _, g := range candidates {
		if g.Location != twoLetterCode {
			continue
		}
		if s.geoip != nil && len(g.IPs) > 0 {
			if ip := net.IP(g.IPs[0].AsSlice()); ip != nil {
				if code, err := s.geoip.CountryCode(ip); err == nil && code != "" && code != twoLetterCode {
					continue
				}
			}
		}
		out = append(out, g)
	}
	return out
}

func randomFrom(candidates []model.Gateway) (model.Gateway, error) {
	if len(candidates) == 0 {
		return model.Gateway{}, nymerrors.Errorf(nymerrors.KindNotFound, "no eligible gateway candidates")
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(candidates))))
	if err != nil {
		return model.Gateway{}, nymerrors.Wrap(err, nymerrors.KindInternal, "select random gateway")
	}
	return candidates[n.Int64()], nil
}

func (s *Selector) lowestLatency(ctx context.Context, candidates []model.Gateway) (model.Gateway, error) {
	if len(candidates) == 0 {
		return model.Gateway{}, nymerrors.Errorf(nymerrors.KindNotFound, "no eligible gateway candidates")
	}
	var best model.Gateway
	bestRTT := -1.0
	for _, g := range candidates {
		if len(g.IPs) == 0 {
			continue
		}
		rtt, err := s.pinger.PingRTT(ctx, g.IPs[0].String())
		if err != nil {
			continue
		}
		if bestRTT < 0 || rtt < bestRTT {
			bestRTT = rtt
			best = g
		}
	}
	if bestRTT < 0 {
		return randomFrom(candidates)
	}
	return best, nil
}
