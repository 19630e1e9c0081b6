package wireguard

// v2Builder wraps messages for the V2 authenticator wire format.
// Grounded on original_source/nym-vpn-core/crates/nym-wg-gateway-client:
// V2 is the oldest negotiated version and never gained the TopUp message
// (its registration handler only matches V3/V4/V5 there).
type v2Builder struct{}

func (v2Builder) version() Version    { return V2 }
func (v2Builder) supportsTopUp() bool { return false }

func (v2Builder) wrap(kind string, payload any) outgoingFrame {
	return outgoingFrame{Version: V2, Kind: kind, Payload: payload}
}
