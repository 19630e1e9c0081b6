//go:build windows

package main

import "go.nymvpn.network/core/internal/firewall"

func newPlatformFirewallBackend() (firewall.Backend, error) {
	return firewall.NewWindowsBackend(), nil
}
