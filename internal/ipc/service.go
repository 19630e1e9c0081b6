package ipc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go.nymvpn.network/core/internal/account"
	"go.nymvpn.network/core/internal/apiclient"
	nymerrors "go.nymvpn.network/core/internal/errors"
	"go.nymvpn.network/core/internal/model"
	"go.nymvpn.network/core/internal/tunnelstate"
)

// AccountLinks is the set of web URLs the CLI's get-account-links command
// surfaces (spec §6); populated from the active network environment.
type AccountLinks struct {
	SignUp  string
	SignIn  string
	Account string
}

// Daemon holds every long-lived collaborator the grpc service dispatches
// into: the tunnel state machine (command entry point), the account
// controller (account/device/credential lifecycle), and the REST client
// used directly for read-only directory listings that don't need the
// account controller's single-flight discipline.
type Daemon struct {
	Machine    *tunnelstate.Machine
	AccountCtl *account.Controller
	API        *apiclient.Client
	Version    string

	mu           sync.RWMutex
	network      string
	accountID    string
	deviceID     string
	accountLinks AccountLinks
}

func NewDaemon(m *tunnelstate.Machine, ctl *account.Controller, api *apiclient.Client, version string) *Daemon {
	return &Daemon{Machine: m, AccountCtl: ctl, API: api, Version: version}
}

func (d *Daemon) SetAccountID(id string) {
	d.mu.Lock()
	d.accountID = id
	d.mu.Unlock()
}

func (d *Daemon) SetDeviceID(id string) {
	d.mu.Lock()
	d.deviceID = id
	d.mu.Unlock()
}

func (d *Daemon) SetAccountLinks(l AccountLinks) {
	d.mu.Lock()
	d.accountLinks = l
	d.mu.Unlock()
}

func (d *Daemon) SetNetwork(n string) {
	d.mu.Lock()
	d.network = n
	d.mu.Unlock()
}

// --- unary handlers ---

func (d *Daemon) connect(ctx context.Context, req *ConnectRequest) (*ConnectResponse, error) {
	d.Machine.Connect(tunnelstate.Settings{TunnelType: req.TunnelType, Entry: req.Entry, Exit: req.Exit})
	return &ConnectResponse{}, nil
}

func (d *Daemon) disconnect(ctx context.Context, req *DisconnectRequest) (*DisconnectResponse, error) {
	d.Machine.Disconnect()
	if !req.Wait {
		return &DisconnectResponse{}, nil
	}
	sub := d.Machine.Subscribe()
	for {
		select {
		case s := <-sub:
			switch s.Case {
			case tunnelstate.CaseDisconnected, tunnelstate.CaseOffline, tunnelstate.CaseError:
				return &DisconnectResponse{}, nil
			}
		case <-ctx.Done():
			return nil, status.FromContextError(ctx.Err()).Err()
		}
	}
}

func (d *Daemon) status(ctx context.Context, req *Empty) (*StatusResponse, error) {
	r := statusFromPublicState(d.Machine.State())
	return &r, nil
}

// statusStream implements `status --listen`: one StatusResponse per
// published transition until the client disconnects.
func (d *Daemon) statusStream(srv any) error {
	stream, ok := srv.(grpc.ServerStream)
	if !ok {
		return status.Error(codes.Internal, "unexpected stream type")
	}
	sub := d.Machine.Subscribe()
	ctx := stream.Context()
	// Send the current snapshot immediately so a new listener isn't left
	// waiting for the next transition.
	cur := statusFromPublicState(d.Machine.State())
	if err := stream.SendMsg(&cur); err != nil {
		return err
	}
	for {
		select {
		case s := <-sub:
			r := statusFromPublicState(s)
			if err := stream.SendMsg(&r); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (d *Daemon) info(ctx context.Context, req *InfoRequest) (*InfoResponse, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return &InfoResponse{Version: d.Version, Network: d.network}, nil
}

func (d *Daemon) setNetwork(ctx context.Context, req *SetNetworkRequest) (*SetNetworkResponse, error) {
	d.SetNetwork(req.Network)
	return &SetNetworkResponse{}, nil
}

func (d *Daemon) storeAccount(ctx context.Context, req *StoreAccountRequest) (*StoreAccountResponse, error) {
	if _, err := d.AccountCtl.Do(ctx, account.CmdStoreAccount, req.Mnemonic); err != nil {
		return nil, toGRPCError(err)
	}
	return &StoreAccountResponse{}, nil
}

func (d *Daemon) isAccountStored(ctx context.Context, req *IsAccountStoredRequest) (*IsAccountStoredResponse, error) {
	return &IsAccountStoredResponse{Stored: d.AccountCtl.Summary().Mnemonic.Stored}, nil
}

func (d *Daemon) forgetAccount(ctx context.Context, req *ForgetAccountRequest) (*ForgetAccountResponse, error) {
	if st := d.Machine.State(); st.Case == tunnelstate.CaseConnected || st.Case == tunnelstate.CaseConnecting {
		return nil, status.Error(codes.FailedPrecondition, "IsConnected: refusing to forget account while connected")
	}
	if _, err := d.AccountCtl.Do(ctx, account.CmdForgetAccount, nil); err != nil {
		return nil, toGRPCError(err)
	}
	return &ForgetAccountResponse{}, nil
}

func (d *Daemon) getAccountID(ctx context.Context, req *GetAccountIDRequest) (*GetAccountIDResponse, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.accountID == "" {
		return nil, status.Error(codes.NotFound, "NoAccountStored")
	}
	return &GetAccountIDResponse{ID: d.accountID}, nil
}

func (d *Daemon) getAccountLinks(ctx context.Context, req *GetAccountLinksRequest) (*GetAccountLinksResponse, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return &GetAccountLinksResponse{SignUp: d.accountLinks.SignUp, SignIn: d.accountLinks.SignIn, Account: d.accountLinks.Account}, nil
}

func (d *Daemon) getAccountState(ctx context.Context, req *GetAccountStateRequest) (*GetAccountStateResponse, error) {
	s := d.AccountCtl.Summary()
	return &GetAccountStateResponse{
		Status:         s.AccountStatus.String(),
		Subscription:   fmt.Sprintf("%v", s.Subscription),
		DeviceQuota:    s.DeviceQuota,
		UpdatedAt:      s.UpdatedAt,
		MnemonicStored: s.Mnemonic.Stored,
	}, nil
}

func (d *Daemon) listGateways(ctx context.Context, req *ListGatewaysRequest) (*ListGatewaysResponse, error) {
	gws, err := d.API.ListGateways(ctx, directionFilter(req.Filter))
	if err != nil {
		return nil, toGRPCError(err)
	}
	out := make([]model.Gateway, 0, len(gws))
	for _, g := range gws {
		out = append(out, g.ToModel())
	}
	return &ListGatewaysResponse{Gateways: out}, nil
}

func (d *Daemon) listCountries(ctx context.Context, req *ListCountriesRequest) (*ListCountriesResponse, error) {
	countries, err := d.API.ListGatewayCountries(ctx, directionFilter(req.Filter))
	if err != nil {
		return nil, toGRPCError(err)
	}
	return &ListCountriesResponse{Countries: countries}, nil
}

func (d *Daemon) getDeviceID(ctx context.Context, req *GetDeviceIDRequest) (*GetDeviceIDResponse, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.deviceID == "" {
		return nil, status.Error(codes.NotFound, "NoDeviceStored")
	}
	return &GetDeviceIDResponse{DeviceID: d.deviceID}, nil
}

func directionFilter(f GatewayListFilter) apiclient.GatewayDirectionFilter {
	switch f {
	case FilterEntry:
		return apiclient.GatewaysEntry
	case FilterExit:
		return apiclient.GatewaysExit
	default:
		return apiclient.GatewaysAll
	}
}

// toGRPCError maps the internal/errors taxonomy to grpc status codes, the
// same "typed-first, string-fallback" idiom as the pack's other daemon
// servers.
func toGRPCError(err error) error {
	if err == nil {
		return nil
	}
	switch nymerrors.GetKind(err) {
	case nymerrors.KindNotFound:
		return status.Error(codes.NotFound, err.Error())
	case nymerrors.KindValidation:
		return status.Error(codes.InvalidArgument, err.Error())
	case nymerrors.KindConflict:
		return status.Error(codes.FailedPrecondition, err.Error())
	case nymerrors.KindPermission:
		return status.Error(codes.PermissionDenied, err.Error())
	case nymerrors.KindUnavailable:
		return status.Error(codes.Unavailable, err.Error())
	case nymerrors.KindTimeout:
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// --- grpc.ServiceDesc wiring ---

const ServiceName = "nym.vpn.daemon.v1.Daemon"

func unaryHandler[Req, Resp any](fn func(d *Daemon, ctx context.Context, req *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		d := srv.(*Daemon)
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return fn(d, ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName}
		handler := func(ctx context.Context, req any) (any, error) {
			return fn(d, ctx, req.(*Req))
		}
		return interceptor(ctx, req, info, handler)
	}
}

// ServiceDesc is registered with a *grpc.Server via
// grpc.Server.RegisterService(&ipc.ServiceDesc, daemon). Every handler is
// backed by jsonCodec (see jsoncodec.go); there are no generated .pb.go
// message types, per spec §6's "protoc is out of scope" decision.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Connect", Handler: unaryHandler((*Daemon).connect)},
		{MethodName: "Disconnect", Handler: unaryHandler((*Daemon).disconnect)},
		{MethodName: "Status", Handler: unaryHandler((*Daemon).status)},
		{MethodName: "Info", Handler: unaryHandler((*Daemon).info)},
		{MethodName: "SetNetwork", Handler: unaryHandler((*Daemon).setNetwork)},
		{MethodName: "StoreAccount", Handler: unaryHandler((*Daemon).storeAccount)},
		{MethodName: "IsAccountStored", Handler: unaryHandler((*Daemon).isAccountStored)},
		{MethodName: "ForgetAccount", Handler: unaryHandler((*Daemon).forgetAccount)},
		{MethodName: "GetAccountID", Handler: unaryHandler((*Daemon).getAccountID)},
		{MethodName: "GetAccountLinks", Handler: unaryHandler((*Daemon).getAccountLinks)},
		{MethodName: "GetAccountState", Handler: unaryHandler((*Daemon).getAccountState)},
		{MethodName: "ListGateways", Handler: unaryHandler((*Daemon).listGateways)},
		{MethodName: "ListCountries", Handler: unaryHandler((*Daemon).listCountries)},
		{MethodName: "GetDeviceID", Handler: unaryHandler((*Daemon).getDeviceID)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName: "StatusStream",
			Handler: func(srv any, stream grpc.ServerStream) error {
				d := srv.(*Daemon)
				return d.statusStream(stream)
			},
			ServerStreams: true,
		},
	},
	Metadata: "nym-vpn/daemon.proto",
}

// dialTimeout equals internal/apiclient's per-request timeout. Dial does
// not apply it; a client bounds its dial through the context it passes
// (nym-vpnc uses its own 5s timeout).
const dialTimeout = 60 * time.Second
