package ipc

import (
	"time"

	"go.nymvpn.network/core/internal/account"
	"go.nymvpn.network/core/internal/model"
	"go.nymvpn.network/core/internal/tunnelstate"
)

// ConnectRequest mirrors the connect CLI command's flags (spec §6).
type ConnectRequest struct {
	Entry           model.EntryPoint
	Exit            model.ExitPoint
	TunnelType      model.TunnelType
	CredentialsMode bool
	DNS             []string
}

type ConnectResponse struct{}

type DisconnectRequest struct {
	// Wait, if true, blocks the RPC until the machine reaches Disconnected
	// (or Offline/Error) instead of returning as soon as the request is
	// enqueued.
	Wait bool
}

type DisconnectResponse struct{}

// StatusResponse is one snapshot of tunnelstate.PublicState flattened for
// the wire; `status --listen` streams a sequence of these.
type StatusResponse struct {
	Case         string
	RetryAttempt int
	Gateways     *model.SelectedGateways
	ConnData     *model.ConnectionData
	Reason       string
	Reconnect    bool
}

func statusFromPublicState(s tunnelstate.PublicState) StatusResponse {
	r := StatusResponse{
		Case:         s.Case.String(),
		RetryAttempt: s.RetryAttempt,
		Gateways:     s.Gateways,
		ConnData:     s.ConnData,
		Reconnect:    s.Reconnect,
	}
	if s.Reason != nil {
		r.Reason = s.Reason.Error()
	}
	return r
}

type InfoRequest struct{}

type InfoResponse struct {
	Version   string
	Network   string
	DaemonPID int
}

type SetNetworkRequest struct {
	Network string
}

type SetNetworkResponse struct{}

type StoreAccountRequest struct {
	Mnemonic string
}

type StoreAccountResponse struct{}

type IsAccountStoredRequest struct{}

type IsAccountStoredResponse struct {
	Stored bool
}

type ForgetAccountRequest struct{}

type ForgetAccountResponse struct{}

type GetAccountIDRequest struct{}

type GetAccountIDResponse struct {
	ID string
}

type GetAccountLinksRequest struct{}

type GetAccountLinksResponse struct {
	SignUp   string
	SignIn   string
	Account  string
}

type GetAccountStateRequest struct{}

type GetAccountStateResponse struct {
	Status         string
	Subscription   string
	DeviceQuota    account.DeviceQuota
	UpdatedAt      time.Time
	MnemonicStored bool
}

// GatewayListFilter selects which §4.6 direction the list-{entry,exit,vpn}
// commands query.
type GatewayListFilter string

const (
	FilterEntry GatewayListFilter = "entry"
	FilterExit  GatewayListFilter = "exit"
	FilterVPN   GatewayListFilter = "vpn"
)

type ListGatewaysRequest struct {
	Filter GatewayListFilter
}

type ListGatewaysResponse struct {
	Gateways []model.Gateway
}

type ListCountriesRequest struct {
	Filter GatewayListFilter
}

type ListCountriesResponse struct {
	Countries []string
}

type GetDeviceIDRequest struct{}

type GetDeviceIDResponse struct {
	DeviceID string
}

// Empty is the request type for RPCs that take no arguments (e.g. Status).
type Empty struct{}
