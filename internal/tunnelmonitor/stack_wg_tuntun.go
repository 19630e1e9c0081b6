package tunnelmonitor

import (
	"context"

	"golang.zx2c4.com/wireguard/conn"
	"golang.zx2c4.com/wireguard/device"

	nymerrors "go.nymvpn.network/core/internal/errors"
	"go.nymvpn.network/core/internal/logging"
	"go.nymvpn.network/core/internal/model"
	"go.nymvpn.network/core/internal/tun"
)

// WireguardTunnelConnector negotiates both hops (nym-vpn-lib's
// connect_wireguard_tunnel) and returns their WireguardNode parameters.
type WireguardTunnelConnector interface {
	ConnectWireguardTunnel(ctx context.Context, gateways model.SelectedGateways) (entry, exit model.WireguardNode, err error)
}

// wgPeer owns one wireguard-go device.Device bound to one tun interface,
// grounded on the bamgate-bamgate tunnel.Device wrapper's
// "NewDevice/IpcSet/Up/Close" shape.
type wgPeer struct {
	tunDev *tun.Device
	wgDev  *device.Device
}

func bringUpPeer(name string, mtu int, privKey [32]byte, node model.WireguardNode, bind conn.Bind, logger *logging.Logger) (*wgPeer, error) {
	tunDev, err := tun.Open(tun.Config{Name: name, MTU: mtu, IPv4: node.PrivateIPv4, IPv6: node.PrivateIPv6}, logger)
	if err != nil {
		return nil, err
	}

	wgLogger := &device.Logger{
		Verbosef: func(format string, args ...any) { logger.Debug("wireguard-go", "msg", format, "args", args) },
		Errorf:   func(format string, args ...any) { logger.Error("wireguard-go", "msg", format, "args", args) },
	}
	wgDev := device.NewDevice(tunDev.File(), bind, wgLogger)

	uapi := buildPeerConfig(privKey, node)
	if err := wgDev.IpcSet(uapi); err != nil {
		wgDev.Close()
		tunDev.Close()
		return nil, nymerrors.Wrap(err, nymerrors.KindUnavailable, "configure wireguard peer")
	}
	if err := wgDev.Up(); err != nil {
		wgDev.Close()
		tunDev.Close()
		return nil, nymerrors.Wrap(err, nymerrors.KindUnavailable, "bring up wireguard peer")
	}
	return &wgPeer{tunDev: tunDev, wgDev: wgDev}, nil
}

func (p *wgPeer) close() {
	p.wgDev.Close()
	p.tunDev.Close()
}

// buildPeerConfig renders wireguard-go's UAPI config text for one peer,
// matching device.Device.IpcSet's documented key=value\n format.
func buildPeerConfig(privKey [32]byte, node model.WireguardNode) string {
	cfg := "private_key=" + hexEncode(privKey[:]) + "\n"
	cfg += "public_key=" + node.PublicKey + "\n"
	cfg += "endpoint=" + node.Endpoint.String() + "\n"
	cfg += "allowed_ip=0.0.0.0/0\n"
	cfg += "allowed_ip=::/0\n"
	return cfg
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}

// WireguardTunTunStack is the Stack used for spec §4.7's "WireGuard
// TunTun" mode: an entry tun and an exit tun, each driven by its own
// wireguard-go device.Device with its own host UDP bind, peered directly
// with its node's endpoint. Up adds no routes, so exit traffic is not
// carried through the entry tun, and tun.Open does not assign the nodes'
// private IPs to the interfaces.
type WireguardTunTunStack struct {
	connector  WireguardTunnelConnector
	gateways   model.SelectedGateways
	entryPriv  [32]byte
	exitPriv   [32]byte
	mtu        int
	dad        tun.DADPoller
	logger     *logging.Logger

	entry *wgPeer
	exit  *wgPeer
}

func NewWireguardTunTunStack(connector WireguardTunnelConnector, gateways model.SelectedGateways, entryPriv, exitPriv [32]byte, mtu int, dad tun.DADPoller, logger *logging.Logger) *WireguardTunTunStack {
	if mtu <= 0 {
		mtu = defaultMTU
	}
	if dad == nil {
		dad = tun.NoDAD{}
	}
	if logger == nil {
		logger = logging.Default().WithComponent("tunnelmonitor-wg-tuntun")
	}
	return &WireguardTunTunStack{connector: connector, gateways: gateways, entryPriv: entryPriv, exitPriv: exitPriv, mtu: mtu, dad: dad, logger: logger}
}

func (s *WireguardTunTunStack) Up(ctx context.Context) (model.ConnectionData, string, error) {
	entryNode, exitNode, err := s.connector.ConnectWireguardTunnel(ctx, s.gateways)
	if err != nil {
		return model.ConnectionData{}, "", nymerrors.Wrap(err, nymerrors.KindUnavailable, "connect wireguard tunnel")
	}

	entry, err := bringUpPeer("nymtun-entry", s.mtu, s.entryPriv, entryNode, conn.NewDefaultBind(), s.logger)
	if err != nil {
		return model.ConnectionData{}, "", err
	}
	s.entry = entry

	exit, err := bringUpPeer("nymtun-exit", s.mtu, s.exitPriv, exitNode, conn.NewDefaultBind(), s.logger)
	if err != nil {
		entry.close()
		return model.ConnectionData{}, "", err
	}
	s.exit = exit

	if entryNode.PrivateIPv6.IsValid() {
		waitCtx, cancel := context.WithTimeout(ctx, replyAckTimeout)
		defer cancel()
		if err := tun.WaitDAD(waitCtx, entry.tunDev.Name(), entryNode.PrivateIPv6, s.dad, s.logger); err != nil {
			s.logger.Warn("duplicate address detection did not resolve on entry interface", "error", err)
		}
	}

	connData := model.ConnectionData{Wireguard: &model.WireguardConnectionData{EntryNode: entryNode, ExitNode: exitNode}}
	return connData, exit.tunDev.Name(), nil
}

// Run blocks until ctx is cancelled; wireguard-go devices pump packets on
// their own internal goroutines once Up, so this just waits for shutdown
// or either device reporting closed.
func (s *WireguardTunTunStack) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-s.entry.wgDev.Wait():
		return nymerrors.Errorf(nymerrors.KindUnavailable, "entry wireguard device closed unexpectedly")
	case <-s.exit.wgDev.Wait():
		return nymerrors.Errorf(nymerrors.KindUnavailable, "exit wireguard device closed unexpectedly")
	}
}

func (s *WireguardTunTunStack) Down(ctx context.Context) error {
	if s.exit != nil {
		s.exit.close()
	}
	if s.entry != nil {
		s.entry.close()
	}
	return nil
}
