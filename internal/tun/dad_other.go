//go:build !linux

package tun

// On darwin and windows, duplicate address detection completion is not
// queried: this package has no DADPoller for them, and the tunnel stacks
// fall back to NoDAD when given a nil poller.
