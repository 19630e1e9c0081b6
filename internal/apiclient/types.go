package apiclient

import (
	"net/netip"
	"time"

	"go.nymvpn.network/core/internal/model"
)

// HealthResponse is the body of GET /public/v1/health.
type HealthResponse struct {
	Status        string    `json:"status"`
	TimestampUTC  time.Time `json:"timestamp_utc"`
	BuildVersion  string    `json:"build_version,omitempty"`
}

// Account mirrors the remote Account resource.
type Account struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status"`
}

// AccountStateSummary mirrors GET /account/{id}/summary.
type AccountStateSummary struct {
	AccountStatus  string `json:"account_status"`
	DeviceStatus   string `json:"device_status"`
	SubscriptionOK bool   `json:"subscription_active"`
}

// Device mirrors a registered device.
type Device struct {
	PublicKey string    `json:"public_key"`
	CreatedAt time.Time `json:"created_at"`
	Active    bool      `json:"active"`
}

// RegisterDeviceRequest is the body of POST /account/{id}/devices.
type RegisterDeviceRequest struct {
	PublicKey string `json:"public_key"`
}

// ZkNymRequest is the body of POST .../zknyms.
type ZkNymRequest struct {
	TicketType             string `json:"ticket_type"`
	WithdrawalRequest      []byte `json:"withdrawal_request"`
	EcashPubKey            []byte `json:"ecash_pubkey"`
	ExpirationDateSignaturesEpochID uint64 `json:"expiration_date_signatures_epoch_id,omitempty"`
}

// ZkNymStatusResponse mirrors GET .../zknyms/{id}. TicketType is only
// populated on the POST response, echoing back the type the request
// claimed so the caller can catch a server-side mismatch (spec §4.4
// step 2).
type ZkNymStatusResponse struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	TicketType       string `json:"ticket_type,omitempty"`
	BlindedSignatures [][]byte `json:"blinded_shares,omitempty"`
	EpochID          uint64 `json:"epoch_id,omitempty"`
}

// UsageResponse mirrors GET /account/{id}/usage.
type UsageResponse struct {
	TotalBytesUp   uint64 `json:"total_bytes_up"`
	TotalBytesDown uint64 `json:"total_bytes_down"`
}

// GatewayResponse mirrors one entry of GET /directory/gateways.
type GatewayResponse struct {
	Identity              string   `json:"identity_key"`
	Location              string   `json:"location,omitempty"`
	IPPacketRouterAddress string   `json:"ipr_address,omitempty"`
	AuthenticatorAddress  string   `json:"authenticator_address,omitempty"`
	IPs                   []string `json:"ips"`
	WSPort                uint16   `json:"ws_port,omitempty"`
	WSSPort               uint16   `json:"wss_port,omitempty"`
	MixnetScore           float64  `json:"ping_hosts_performance,omitempty"`
}

// ToModel converts the wire shape into the domain model.Gateway used
// everywhere past the API boundary, parsing each IP and dropping any that
// fail (the directory is expected to only ever publish valid addresses).
func (g GatewayResponse) ToModel() model.Gateway {
	ips := make([]netip.Addr, 0, len(g.IPs))
	for _, s := range g.IPs {
		if addr, err := netip.ParseAddr(s); err == nil {
			ips = append(ips, addr)
		}
	}
	return model.Gateway{
		Identity:              g.Identity,
		Location:              g.Location,
		IPPacketRouterAddress: g.IPPacketRouterAddress,
		AuthenticatorAddress:  g.AuthenticatorAddress,
		IPs:                   ips,
		WSPort:                int(g.WSPort),
		WSSPort:               int(g.WSSPort),
		Performance:           model.GatewayPerformance{MixnetScore: g.MixnetScore},
	}
}

// PartialVerificationKeyResponse mirrors GET
// /directory/zk-nyms/ticketbook/partial-verification-keys.
type PartialVerificationKeyResponse struct {
	EpochID uint64   `json:"epoch_id"`
	Keys    [][]byte `json:"partial_verification_keys"`
}

// NetworkEnvResponse mirrors GET /wellknown/current-env.
type NetworkEnvResponse struct {
	Name   string `json:"network_name"`
	ApiURL string `json:"api_url"`
}
