//go:build darwin

package firewall

import (
	"fmt"
	"os/exec"
	"strings"

	nymerrors "go.nymvpn.network/core/internal/errors"
)

const pfAnchor = "nymvpn"

// DarwinBackend renders policy as a PF anchor and loads it with pfctl,
// using the same exec.Command("…", ...).CombinedOutput() idiom as
// grimm-is-flywall/internal/firewall/atomic.go's AtomicRulesetUpdate, just
// against pfctl instead of nft.
type DarwinBackend struct{}

func NewDarwinBackend() *DarwinBackend { return &DarwinBackend{} }

func (b *DarwinBackend) Apply(p Policy) error {
	rules := renderPFAnchor(p)
	if err := loadPFAnchor(rules); err != nil {
		return nymerrors.Wrap(err, nymerrors.KindInternal, "apply firewall policy")
	}
	return nil
}

func (b *DarwinBackend) Reset() error {
	cmd := exec.Command("pfctl", "-a", pfAnchor, "-F", "all")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nymerrors.Wrapf(err, nymerrors.KindInternal, "flush pf anchor: %s", string(out))
	}
	return nil
}

func loadPFAnchor(rules string) error {
	cmd := exec.Command("pfctl", "-a", pfAnchor, "-f", "-")
	cmd.Stdin = strings.NewReader(rules)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("pfctl load failed: %w\noutput: %s", err, string(out))
	}
	return nil
}

func renderPFAnchor(p Policy) string {
	var b strings.Builder
	for _, ep := range p.PeerEndpoints {
		fmt.Fprintf(&b, "pass out quick proto {tcp udp} to %s port %d\n", ep.Addr, ep.Port)
	}
	if p.WireguardUDP != nil {
		fmt.Fprintf(&b, "pass out quick proto udp to %s port %d\n", p.WireguardUDP.Addr, p.WireguardUDP.Port)
	}
	for _, ep := range p.AllowedEndpoints {
		fmt.Fprintf(&b, "pass out quick proto {tcp udp} to %s port %d\n", ep.Addr, ep.Port)
	}
	for _, dns := range p.DNS.Servers {
		fmt.Fprintf(&b, "pass out quick proto udp to %s port 53\n", dns)
	}
	if p.AllowLAN {
		b.WriteString("pass quick to {10.0.0.0/8, 172.16.0.0/12, 192.168.0.0/16}\n")
	}
	if p.Tunnel.Exists {
		fmt.Fprintf(&b, "pass quick on %s\n", p.Tunnel.Name)
	}
	if p.Case == CaseBlocked && p.DNS.RedirectPort != 0 {
		fmt.Fprintf(&b, "rdr pass on lo0 inet proto udp from any to 127.0.0.1 port 53 -> 127.0.0.1 port %d\n", p.DNS.RedirectPort)
		fmt.Fprintf(&b, "rdr pass on lo0 inet proto tcp from any to 127.0.0.1 port 53 -> 127.0.0.1 port %d\n", p.DNS.RedirectPort)
	}
	b.WriteString("block drop all\n")
	return b.String()
}
