package wireguard

// v3Builder wraps messages for the V3 authenticator wire format, the
// first version whose registration handler also builds a TopUp message.
type v3Builder struct{}

func (v3Builder) version() Version    { return V3 }
func (v3Builder) supportsTopUp() bool { return true }

func (v3Builder) wrap(kind string, payload any) outgoingFrame {
	return outgoingFrame{Version: V3, Kind: kind, Payload: payload}
}
