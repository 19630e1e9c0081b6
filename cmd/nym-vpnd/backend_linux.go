//go:build linux

package main

import "go.nymvpn.network/core/internal/firewall"

func newPlatformFirewallBackend() (firewall.Backend, error) {
	return firewall.NewLinuxBackend()
}
