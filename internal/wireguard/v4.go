package wireguard

// v4Builder wraps messages for the V4 authenticator wire format. The
// Final GatewayClient MAC is computed by computeMAC over
// PrivateIPs.IPv4 alone, as for every other version; only the envelope
// tag differs.
type v4Builder struct{}

func (v4Builder) version() Version    { return V4 }
func (v4Builder) supportsTopUp() bool { return true }

func (v4Builder) wrap(kind string, payload any) outgoingFrame {
	return outgoingFrame{Version: V4, Kind: kind, Payload: payload}
}
