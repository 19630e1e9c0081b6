package firewall

import (
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderScript_ConnectedAllowsTunnelInterface(t *testing.T) {
	p := Policy{
		Case:   CaseConnected,
		Tunnel: TunnelInterface{Name: "nymtun0", Exists: true},
	}
	script := renderScript(p)
	assert.Contains(t, script, `oifname "nymtun0"`)
	assert.Contains(t, script, `iifname "nymtun0"`)
}

func TestRenderScript_BlockedOmitsTunnelRules(t *testing.T) {
	p := Policy{Case: CaseBlocked}
	script := renderScript(p)
	assert.NotContains(t, script, "oifname")
	assert.Contains(t, script, "policy drop")
}

func TestRenderScript_AllowLANAddsPrivateRanges(t *testing.T) {
	withLAN := renderScript(Policy{Case: CaseConnecting, AllowLAN: true})
	withoutLAN := renderScript(Policy{Case: CaseConnecting, AllowLAN: false})
	assert.Contains(t, withLAN, "192.168.0.0/16")
	assert.NotContains(t, withoutLAN, "192.168.0.0/16")
}

func TestRenderScript_PeerEndpointsAlwaysPermitted(t *testing.T) {
	ep := Endpoint{Addr: netip.MustParseAddr("203.0.113.5"), Port: 51822, Protocol: "udp"}
	for _, c := range []Case{CaseConnecting, CaseConnected, CaseBlocked} {
		script := renderScript(Policy{Case: c, PeerEndpoints: []Endpoint{ep}})
		assert.True(t, strings.Contains(script, "203.0.113.5") , "case %s should permit peer endpoint", c)
	}
}

func TestResetScript_DropsOwnedTableOnly(t *testing.T) {
	script := resetScript()
	assert.Contains(t, script, "delete table inet "+tableName)
}
