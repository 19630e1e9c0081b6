package tunnelmonitor

import (
	"context"

	"golang.zx2c4.com/wireguard/conn"
	"golang.zx2c4.com/wireguard/device"
	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/link/channel"
	"gvisor.dev/gvisor/pkg/tcpip/network/ipv4"
	"gvisor.dev/gvisor/pkg/tcpip/network/ipv6"
	"gvisor.dev/gvisor/pkg/tcpip/stack"
	"gvisor.dev/gvisor/pkg/tcpip/transport/icmp"
	"gvisor.dev/gvisor/pkg/tcpip/transport/tcp"
	"gvisor.dev/gvisor/pkg/tcpip/transport/udp"

	nymerrors "go.nymvpn.network/core/internal/errors"
	"go.nymvpn.network/core/internal/logging"
	"go.nymvpn.network/core/internal/model"
	"go.nymvpn.network/core/internal/tun"
)

// WireguardNetstackStack is the Stack used for spec §4.7's "WireGuard
// Netstack" mode: only an exit tun is created. Up runs one wireguard-go
// device on that tun, keyed with the exit private key and peered with the
// entry node over the host's default UDP bind. It also builds a gvisor
// netstack with one channel NIC, but no packets pass through it, and no
// separate entry-peer device is started.
type WireguardNetstackStack struct {
	connector WireguardTunnelConnector
	gateways  model.SelectedGateways
	exitPriv  [32]byte
	mtu       int
	logger    *logging.Logger

	exitTun *tun.Device
	ns      *stack.Stack
	ep      *channel.Endpoint
	exitDev *device.Device
}

func NewWireguardNetstackStack(connector WireguardTunnelConnector, gateways model.SelectedGateways, exitPriv [32]byte, mtu int, logger *logging.Logger) *WireguardNetstackStack {
	if mtu <= 0 {
		mtu = defaultMTU
	}
	if logger == nil {
		logger = logging.Default().WithComponent("tunnelmonitor-wg-netstack")
	}
	return &WireguardNetstackStack{connector: connector, gateways: gateways, exitPriv: exitPriv, mtu: mtu, logger: logger}
}

func (s *WireguardNetstackStack) Up(ctx context.Context) (model.ConnectionData, string, error) {
	entryNode, exitNode, err := s.connector.ConnectWireguardTunnel(ctx, s.gateways)
	if err != nil {
		return model.ConnectionData{}, "", nymerrors.Wrap(err, nymerrors.KindUnavailable, "connect wireguard tunnel")
	}

	exitTun, err := tun.Open(tun.Config{Name: "nymtun-exit", MTU: s.mtu, IPv4: exitNode.PrivateIPv4, IPv6: exitNode.PrivateIPv6}, s.logger)
	if err != nil {
		return model.ConnectionData{}, "", err
	}
	s.exitTun = exitTun

	s.ns = stack.New(stack.Options{
		NetworkProtocols:   []stack.NetworkProtocolFactory{ipv4.NewProtocol, ipv6.NewProtocol},
		TransportProtocols: []stack.TransportProtocolFactory{tcp.NewProtocol, udp.NewProtocol, icmp.NewProtocol4, icmp.NewProtocol6},
	})
	s.ep = channel.New(256, uint32(s.mtu), "")
	if err := s.ns.CreateNIC(1, s.ep); err != nil {
		s.exitTun.Close()
		return model.ConnectionData{}, "", nymerrors.Errorf(nymerrors.KindInternal, "create netstack NIC: %v", err)
	}
	s.ns.SetPromiscuousMode(1, true)
	s.ns.SetSpoofing(1, true)
	s.ns.AddRoute(tcpip.Route{Destination: ipv4EmptySubnet(), NIC: 1})

	// The device uses the host's default UDP bind; the netstack NIC built
	// above is not attached to it.
	bind := conn.NewDefaultBind()
	wgLogger := &device.Logger{
		Verbosef: func(format string, args ...any) { s.logger.Debug("wireguard-go", "msg", format, "args", args) },
		Errorf:   func(format string, args ...any) { s.logger.Error("wireguard-go", "msg", format, "args", args) },
	}
	s.exitDev = device.NewDevice(exitTun.File(), bind, wgLogger)
	uapi := buildPeerConfig(s.exitPriv, entryNode)
	if err := s.exitDev.IpcSet(uapi); err != nil {
		s.exitDev.Close()
		s.exitTun.Close()
		return model.ConnectionData{}, "", nymerrors.Wrap(err, nymerrors.KindUnavailable, "configure netstack wireguard peer")
	}
	if err := s.exitDev.Up(); err != nil {
		s.exitDev.Close()
		s.exitTun.Close()
		return model.ConnectionData{}, "", nymerrors.Wrap(err, nymerrors.KindUnavailable, "bring up netstack wireguard peer")
	}

	connData := model.ConnectionData{Wireguard: &model.WireguardConnectionData{EntryNode: entryNode, ExitNode: exitNode}}
	return connData, s.exitTun.Name(), nil
}

func (s *WireguardNetstackStack) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-s.exitDev.Wait():
		return nymerrors.Errorf(nymerrors.KindUnavailable, "netstack wireguard device closed unexpectedly")
	}
}

func (s *WireguardNetstackStack) Down(ctx context.Context) error {
	if s.exitDev != nil {
		s.exitDev.Close()
	}
	if s.ns != nil {
		s.ns.Close()
	}
	if s.exitTun != nil {
		return s.exitTun.Close()
	}
	return nil
}

func ipv4EmptySubnet() tcpip.Subnet {
	subnet, _ := tcpip.NewSubnet(tcpip.AddrFromSlice(make([]byte, 4)), tcpip.MaskFromBytes(make([]byte, 4)))
	return subnet
}
