package tunnelmonitor

import (
	"context"

	nymerrors "go.nymvpn.network/core/internal/errors"
	"go.nymvpn.network/core/internal/logging"
	"go.nymvpn.network/core/internal/mixnetproc"
	"go.nymvpn.network/core/internal/model"
	"go.nymvpn.network/core/internal/tun"
)

// MixnetTunnelConnector opens the mixnet-native tunnel (nym-vpn-lib's
// connect_mixnet_tunnel) and returns the addresses assigned inside it.
type MixnetTunnelConnector interface {
	ConnectMixnetTunnel(ctx context.Context, gateways model.SelectedGateways) (model.MixnetConnectionData, error)
	Disconnect(ctx context.Context) error
}

// MixnetStack is the Stack realization of spec §4.7's "Mixnet" bring-up:
// create a tun device at the connector-assigned addresses, then run the
// mixnet processor (internal/mixnetproc) to bundle/demux packets.
type MixnetStack struct {
	connector MixnetTunnelConnector
	gateways  model.SelectedGateways
	sender    mixnetproc.MixnetSender
	inbound   <-chan []byte
	mtu       int
	dad       tun.DADPoller
	logger    *logging.Logger

	dev  *tun.Device
	proc *mixnetproc.Processor
}

func NewMixnetStack(connector MixnetTunnelConnector, gateways model.SelectedGateways, sender mixnetproc.MixnetSender, inbound <-chan []byte, mtu int, dad tun.DADPoller, logger *logging.Logger) *MixnetStack {
	if mtu <= 0 {
		mtu = defaultMTU
	}
	if dad == nil {
		dad = tun.NoDAD{}
	}
	if logger == nil {
		logger = logging.Default().WithComponent("tunnelmonitor-mixnet")
	}
	return &MixnetStack{connector: connector, gateways: gateways, sender: sender, inbound: inbound, mtu: mtu, dad: dad, logger: logger}
}

func (s *MixnetStack) Up(ctx context.Context) (model.ConnectionData, string, error) {
	connData, err := s.connector.ConnectMixnetTunnel(ctx, s.gateways)
	if err != nil {
		return model.ConnectionData{}, "", nymerrors.Wrap(err, nymerrors.KindUnavailable, "connect mixnet tunnel")
	}

	dev, err := tun.Open(tun.Config{Name: "nymtun0", MTU: s.mtu, IPv4: connData.IPv4, IPv6: connData.IPv6}, s.logger)
	if err != nil {
		return model.ConnectionData{}, "", err
	}
	s.dev = dev

	if connData.IPv6.IsValid() {
		waitCtx, cancel := context.WithTimeout(ctx, replyAckTimeout)
		defer cancel()
		if err := tun.WaitDAD(waitCtx, dev.Name(), connData.IPv6, s.dad, s.logger); err != nil {
			s.logger.Warn("duplicate address detection did not resolve", "error", err)
		}
	}

	s.proc = mixnetproc.New(dev.File(), s.sender, nil, s.logger)
	return model.ConnectionData{Mixnet: &connData}, dev.Name(), nil
}

func (s *MixnetStack) Run(ctx context.Context) error {
	if s.proc == nil {
		return nymerrors.Errorf(nymerrors.KindInternal, "mixnet stack Run called before Up")
	}
	return s.proc.Run(ctx, s.inbound)
}

func (s *MixnetStack) Down(ctx context.Context) error {
	var firstErr error
	if err := s.connector.Disconnect(ctx); err != nil {
		firstErr = err
	}
	if s.dev != nil {
		if err := s.dev.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
