package wireguard

// v5Builder wraps messages for the V5 authenticator wire format, the
// current version as of this client.
type v5Builder struct{}

func (v5Builder) version() Version    { return V5 }
func (v5Builder) supportsTopUp() bool { return true }

func (v5Builder) wrap(kind string, payload any) outgoingFrame {
	return outgoingFrame{Version: V5, Kind: kind, Payload: payload}
}
