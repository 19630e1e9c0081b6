package firewall

import (
	"fmt"
	"strings"
)

// tableName is the nftables table this engine owns exclusively; Reset only
// ever touches rules inside it, never the system's other tables.
const tableName = "nymvpn"

// renderScript turns a Policy into a full nft(8) script that replaces the
// table's contents in one transaction, mirroring the "build the whole
// ruleset as text, then `nft -f -` it atomically" idiom of
// grimm-is-flywall/internal/firewall/atomic.go's AtomicRulesetUpdate.
func renderScript(p Policy) string {
	var b strings.Builder
	fmt.Fprintf(&b, "flush table inet %s\n", tableName)
	fmt.Fprintf(&b, "table inet %s {\n", tableName)
	b.WriteString("  chain output {\n")
	b.WriteString("    type filter hook output priority 0; policy drop;\n")

	for _, ep := range p.PeerEndpoints {
		writeAllowEndpoint(&b, ep)
	}
	if p.WireguardUDP != nil {
		writeAllowEndpoint(&b, *p.WireguardUDP)
	}
	for _, ep := range p.AllowedEndpoints {
		writeAllowEndpoint(&b, ep)
	}
	for _, dns := range p.DNS.Servers {
		fmt.Fprintf(&b, "    ip daddr %s udp dport 53 accept\n", dns)
		fmt.Fprintf(&b, "    ip daddr %s tcp dport 53 accept\n", dns)
	}
	if p.AllowLAN {
		for _, cidr := range []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "169.254.0.0/16"} {
			fmt.Fprintf(&b, "    ip daddr %s accept\n", cidr)
		}
	}
	if p.Tunnel.Exists {
		switch p.Case {
		case CaseConnecting:
			fmt.Fprintf(&b, "    oifname %q accept\n", p.Tunnel.Name)
		case CaseConnected:
			fmt.Fprintf(&b, "    oifname %q accept\n", p.Tunnel.Name)
		}
	}
	if p.Case == CaseBlocked {
		b.WriteString("    # blocked: only LAN/allowed-endpoint exceptions above are permitted\n")
	}
	b.WriteString("  }\n")

	b.WriteString("  chain input {\n")
	b.WriteString("    type filter hook input priority 0; policy drop;\n")
	b.WriteString("    ct state established,related accept\n")
	if p.Tunnel.Exists && p.Case == CaseConnected {
		fmt.Fprintf(&b, "    iifname %q accept\n", p.Tunnel.Name)
	}
	if p.AllowLAN {
		for _, cidr := range []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"} {
			fmt.Fprintf(&b, "    ip saddr %s accept\n", cidr)
		}
	}
	b.WriteString("  }\n")
	b.WriteString("}\n")
	return b.String()
}

func writeAllowEndpoint(b *strings.Builder, ep Endpoint) {
	proto := ep.Protocol
	if proto == "" {
		fmt.Fprintf(b, "    ip daddr %s tcp dport %d accept\n", ep.Addr, ep.Port)
		fmt.Fprintf(b, "    ip daddr %s udp dport %d accept\n", ep.Addr, ep.Port)
		return
	}
	fmt.Fprintf(b, "    ip daddr %s %s dport %d accept\n", ep.Addr, proto, ep.Port)
}

// resetScript is the script reset applies: drop the table entirely. It is
// safe to run even if the table does not exist (nft ignores deleting a
// missing table with -f when wrapped this way), and safe to run after a
// process restart because it is keyed only on tableName, not on in-memory
// state (spec §4.1: "must succeed even after process restart, identified by
// a stable context tag").
func resetScript() string {
	return fmt.Sprintf("table inet %s {}\ndelete table inet %s\n", tableName, tableName)
}
