package main

import (
	"context"
	"encoding/base64"
	"net/netip"
	"path/filepath"

	"go.nymvpn.network/core/internal/account"
	"go.nymvpn.network/core/internal/apiclient"
	"go.nymvpn.network/core/internal/config"
	"go.nymvpn.network/core/internal/credential"
	credstore "go.nymvpn.network/core/internal/credential/store"
	nymerrors "go.nymvpn.network/core/internal/errors"
	"go.nymvpn.network/core/internal/firewall"
	"go.nymvpn.network/core/internal/gateway"
	"go.nymvpn.network/core/internal/ipc"
	"go.nymvpn.network/core/internal/logging"
	"go.nymvpn.network/core/internal/model"
	"go.nymvpn.network/core/internal/tunnelmonitor"
	"go.nymvpn.network/core/internal/tunnelstate"
	"go.nymvpn.network/core/internal/wireguard"
)

// daemon bundles every long-lived component cmd/nym-vpnd drives, so
// main.go's run loop only has to know about Serve/Close.
type daemon struct {
	ipc     *ipc.Daemon
	machine *tunnelstate.Machine
	account *account.Controller
	store   *credstore.Store
	geoIPDB *gateway.MaxMindGeoIP
}

// Close releases resources buildDaemon opened. The account controller
// and tunnel monitor stop on their own once the ctx passed to buildDaemon
// is cancelled; this only closes what has no context of its own.
func (d *daemon) Close() error {
	if d.geoIPDB != nil {
		_ = d.geoIPDB.Close()
	}
	return d.store.Close()
}

// realWireguardConnector performs the real two-message authenticator
// handshake of spec §4.2 against both legs of a selected gateway pair,
// via internal/wireguard.Client. Unlike stubMixnetConnector, this has no
// missing cryptographic layer to stand in for: registering a WireGuard
// peer is exactly what internal/wireguard already implements.
type realWireguardConnector struct {
	entryPriv [32]byte
	entryPub  [32]byte
	exitPriv  [32]byte
	exitPub   [32]byte
	tickets   wireguard.TicketPreparer
	credsOn   bool
	logger    *logging.Logger
}

// registerLeg registers priv/pub (one of the two on-disk role keypairs
// named in internal/wireguard/keys.go) against gw, both as the MAC signing
// key and as the WireGuard pubkey being registered — the authenticator
// protocol's PubKey field in Initial is exactly the peer being added.
func (c *realWireguardConnector) registerLeg(ctx context.Context, gw model.Gateway, priv, pub [32]byte, ticketType model.TicketType) (model.WireguardNode, error) {
	transport, err := dialAuthenticator(ctx, gw.AuthenticatorAddress)
	if err != nil {
		return model.WireguardNode{}, err
	}
	defer transport.Close()

	client := wireguard.NewClient(transport, wireguard.V5, priv[:], pub, c.tickets, c.credsOn, c.logger)
	result, err := client.Register(ctx, ticketType)
	if err != nil {
		return model.WireguardNode{}, err
	}

	if len(gw.IPs) == 0 {
		return model.WireguardNode{}, nymerrors.Errorf(nymerrors.KindValidation, "gateway %s advertises no IP", gw.Identity)
	}
	endpoint := netip.AddrPortFrom(gw.IPs[0], result.WgPort)
	var v4, v6 netip.Addr
	if result.PrivateIPs.IPv4 != "" {
		v4, _ = netip.ParseAddr(result.PrivateIPs.IPv4)
	}
	if result.PrivateIPs.IPv6 != "" {
		v6, _ = netip.ParseAddr(result.PrivateIPs.IPv6)
	}
	return model.WireguardNode{
		Endpoint:    endpoint,
		PublicKey:   base64.StdEncoding.EncodeToString(result.GatewayPubKey[:]),
		PrivateIPv4: v4,
		PrivateIPv6: v6,
	}, nil
}

func (c *realWireguardConnector) ConnectWireguardTunnel(ctx context.Context, gateways model.SelectedGateways) (entry, exit model.WireguardNode, err error) {
	entry, err = c.registerLeg(ctx, gateways.Entry, c.entryPriv, c.entryPub, model.TicketV1WireguardEntry)
	if err != nil {
		return model.WireguardNode{}, model.WireguardNode{}, err
	}
	exit, err = c.registerLeg(ctx, gateways.Exit, c.exitPriv, c.exitPub, model.TicketV1WireguardExit)
	if err != nil {
		return model.WireguardNode{}, model.WireguardNode{}, err
	}
	return entry, exit, nil
}

// stubMixnetConnector stands in for nym-vpn-lib's connect_mixnet_tunnel:
// establishing a pure-mixnet tunnel means routing sphinx packets through
// the mixnet, which is a cryptographic/transport layer this module never
// implements (it sits below every spec §2 component, the same way the
// coconut math sits below credential.Engine). Wired the same way as
// stubEcash, with the same justification.
type stubMixnetConnector struct{}

func (stubMixnetConnector) ConnectMixnetTunnel(ctx context.Context, gateways model.SelectedGateways) (model.MixnetConnectionData, error) {
	return model.MixnetConnectionData{}, nymerrors.Errorf(nymerrors.KindInternal, "mixnet sphinx transport not wired: supply a real MixnetTunnelConnector")
}

func (stubMixnetConnector) Disconnect(ctx context.Context) error { return nil }

// stubMixnetSender is the companion placeholder for mixnetproc.Processor's
// outbound sink: sending a sphinx bundle requires the same missing mixnet
// transport layer as stubMixnetConnector. Unreachable in practice since
// Up() fails before Run() ever calls Send.
type stubMixnetSender struct{}

func (stubMixnetSender) Send(ctx context.Context, bundle []byte) error {
	return nymerrors.Errorf(nymerrors.KindInternal, "mixnet sphinx transport not wired: supply a real mixnetproc.MixnetSender")
}

func (stubMixnetSender) GeneralLaneQueueLength() int { return 0 }

// policyConfigFrom translates the config-file firewall knobs (DNS,
// allowed endpoints, LAN exemption) into the tunnelstate.PolicyConfig
// every Connecting/Connected/Blocked policy is rendered from. Entries
// that fail to parse are logged and dropped, the same "skip what doesn't
// parse" idiom apiclient.GatewayResponse.ToModel uses for gateway IPs.
func policyConfigFrom(cfg *config.Config, logger *logging.Logger) tunnelstate.PolicyConfig {
	var dns []netip.Addr
	for _, s := range cfg.Tunnel.DNS {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			logger.Warn("skipping unparseable dns server in config", "value", s, "error", err)
			continue
		}
		dns = append(dns, addr)
	}

	var allowed []firewall.Endpoint
	for _, s := range cfg.Tunnel.AllowedEndpoints {
		addrPort, err := netip.ParseAddrPort(s)
		if err != nil {
			logger.Warn("skipping unparseable allowed endpoint in config", "value", s, "error", err)
			continue
		}
		allowed = append(allowed, firewall.Endpoint{Addr: addrPort.Addr(), Port: addrPort.Port()})
	}

	return tunnelstate.PolicyConfig{
		AllowLAN:         cfg.Tunnel.AllowLAN,
		DNS:              firewall.DNSConfig{Servers: dns},
		AllowedEndpoints: allowed,
	}
}

// engineTicketPreparer adapts the local credential store to
// wireguard.TicketPreparer. PrepareTicket only checks that the store
// reports tickets of the requested type; it does not take a ticket out of
// the store or produce ticket bytes, and it always returns an error.
type engineTicketPreparer struct {
	store *credstore.Store
}

func (p *engineTicketPreparer) PrepareTicket(ctx context.Context, ticketType model.TicketType) ([]byte, error) {
	counts, err := p.store.AvailableTickets()
	if err != nil {
		return nil, err
	}
	if counts[ticketType.String()] == 0 {
		return nil, nymerrors.Errorf(nymerrors.KindUnavailable, "no spent tickets available for %s", ticketType)
	}
	// The actual spend-one-ticket accounting (decrementing the store and
	// serializing the wallet signature slice into a spendable blob) is
	// coconut math (credential.Ecash), so this reports availability only;
	// a real Ecash implementation owns producing the wire bytes.
	return nil, nymerrors.Errorf(nymerrors.KindInternal, "ticket serialization not wired: supply a real credential.Ecash implementation")
}

// buildDaemon wires every spec §2 component together per cfg, grounded on
// the teacher's RunStart composition (cmd/start.go): read config, open
// storage, build the long-lived actors, hand them to the IPC layer.
const daemonVersion = "0.1.0"

func buildDaemon(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*daemon, error) {
	api := apiclient.New(cfg.Network.ApiURL, apiclient.WithLogger(logger))

	fwBackend, err := newPlatformFirewallBackend()
	if err != nil {
		return nil, nymerrors.Wrap(err, nymerrors.KindInternal, "init firewall backend")
	}
	fwEngine := firewall.NewEngine(fwBackend, logger)

	store, err := credstore.Open(filepath.Join(cfg.DataDir, "credentials.db"))
	if err != nil {
		return nil, err
	}

	credEngine := credential.New(stubEcash{}, &zkNymAPI{client: api}, store, logger)

	entryKey, err := wireguard.LoadOrGenerateKey(cfg.DataDir, wireguard.Role{Paid: cfg.Tunnel.CredentialsMode, Direction: "entry"}, logger)
	if err != nil {
		return nil, err
	}
	exitKey, err := wireguard.LoadOrGenerateKey(cfg.DataDir, wireguard.Role{Paid: cfg.Tunnel.CredentialsMode, Direction: "exit"}, logger)
	if err != nil {
		return nil, err
	}

	wgConnector := &realWireguardConnector{
		entryPriv: [32]byte(entryKey),
		entryPub:  [32]byte(entryKey.PublicKey()),
		exitPriv:  [32]byte(exitKey),
		exitPub:   [32]byte(exitKey.PublicKey()),
		tickets:   &engineTicketPreparer{store: store},
		credsOn:   cfg.Tunnel.CredentialsMode,
		logger:    logger,
	}

	dir := &gatewayDirectory{client: api}
	var geoIP gateway.GeoIP
	var geoIPDB *gateway.MaxMindGeoIP
	if cfg.Network.GeoIPDatabase != "" {
		db, err := gateway.OpenGeoIP(cfg.Network.GeoIPDatabase)
		if err != nil {
			return nil, err
		}
		geoIP = db
		geoIPDB = db
	}
	selector := gateway.New(gateway.RealPinger{}, geoIP)

	stackFactory := func(gateways model.SelectedGateways, params tunnelmonitor.Params) (tunnelmonitor.Stack, error) {
		switch {
		case params.TunnelType == model.TunnelWireguardNetstack:
			return tunnelmonitor.NewWireguardNetstackStack(wgConnector, gateways, wgConnector.exitPriv, params.MTU, logger), nil
		case params.TunnelType == model.TunnelWireguardTunTun:
			return tunnelmonitor.NewWireguardTunTunStack(wgConnector, gateways, wgConnector.entryPriv, wgConnector.exitPriv, params.MTU, nil, logger), nil
		default:
			var inbound chan []byte
			return tunnelmonitor.NewMixnetStack(stubMixnetConnector{}, gateways, stubMixnetSender{}, inbound, params.MTU, nil, logger), nil
		}
	}

	sealKey, err := loadOrGenerateSealKey(cfg.DataDir, logger)
	if err != nil {
		return nil, err
	}
	h := &accountHandlers{
		api:                api,
		credEngine:         credEngine,
		credStore:          store,
		sealKey:            sealKey,
		mnemonicPath:       filepath.Join(cfg.DataDir, mnemonicFilename),
		logger:             logger,
		credentialsMode:    cfg.Tunnel.CredentialsMode,
		zkNymSoftThreshold: cfg.Account.ZkNymSoftThreshold,
	}
	acct := account.New(h.Handlers(), account.ForgetSteps{
		ResetCredentialStore: func(ctx context.Context) error { return store.Reset() },
	}, logger)
	h.ctl = acct

	monitor := tunnelmonitor.New(acct, dir, selector, stackFactory, func() bool { return !h.belowSoftThreshold() }, logger)

	machine := tunnelstate.New(monitor.Run, fwEngine, func() bool { return cfg.Feature.KillSwitch }, policyConfigFrom(cfg, logger), logger)

	ipcDaemon := ipc.NewDaemon(machine, acct, api, daemonVersion)
	h.ipcDaemon = ipcDaemon

	if sealed, serr := readSealedMnemonic(h.mnemonicPath); serr == nil && sealed != nil {
		if mnemonic, oerr := account.OpenMnemonic(sealed, sealKey); oerr == nil {
			if _, serr := h.storeAccount(ctx, mnemonic); serr != nil {
				logger.Error("failed to restore stored account identity", "error", serr)
			}
		} else {
			logger.Error("stored mnemonic seal authentication failed", "error", oerr)
		}
	}

	go acct.Run(ctx)

	return &daemon{ipc: ipcDaemon, machine: machine, account: acct, store: store, geoIPDB: geoIPDB}, nil
}
