// Package tun wraps golang.zx2c4.com/wireguard/tun (and wintun on
// Windows) into the interface the tunnel stacks of internal/tunnelmonitor
// bring up and tear down. Grounded on the bamgate-bamgate tunnel device
// wrapper's "hold the tun.Device, expose Up/Close, adapt logging" shape,
// generalized from a fixed wireguard-go device owner to a bare interface
// the mixnet and netstack stacks can also attach to.
package tun

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"golang.zx2c4.com/wireguard/tun"

	nymerrors "go.nymvpn.network/core/internal/errors"
	"go.nymvpn.network/core/internal/logging"
)

// Config describes the interface to create.
type Config struct {
	Name string
	MTU  int
	IPv4 netip.Addr
	IPv6 netip.Addr
}

// Device owns a platform TUN interface. Open does not assign cfg.IPv4 or
// cfg.IPv6 to the interface.
type Device struct {
	dev    tun.Device
	name   string
	logger *logging.Logger
}

// Open creates the platform TUN device named cfg.Name (or the kernel's
// choice of name if unsupported) at the given MTU.
func Open(cfg Config, logger *logging.Logger) (*Device, error) {
	if logger == nil {
		logger = logging.Default().WithComponent("tun")
	}
	if cfg.MTU <= 0 {
		cfg.MTU = 1420
	}
	dev, err := tun.CreateTUN(cfg.Name, cfg.MTU)
	if err != nil {
		return nil, nymerrors.Wrapf(err, nymerrors.KindUnavailable, "create tun device %q", cfg.Name)
	}
	name, err := dev.Name()
	if err != nil {
		name = cfg.Name
	}
	logger.Info("tun device created", "name", name, "mtu", cfg.MTU)
	return &Device{dev: dev, name: name, logger: logger}, nil
}

// Name returns the kernel-assigned interface name.
func (d *Device) Name() string { return d.name }

// File exposes the underlying tun.Device for wiring into a wireguard-go
// device.Device or a gvisor netstack link endpoint.
func (d *Device) File() tun.Device { return d.dev }

// Close tears down the interface.
func (d *Device) Close() error {
	if err := d.dev.Close(); err != nil {
		return nymerrors.Wrap(err, nymerrors.KindInternal, "close tun device")
	}
	d.logger.Info("tun device closed", "name", d.name)
	return nil
}

// WaitDAD blocks until the interface's assigned IPv6 address has left the
// tentative state (duplicate address detection), or ctx expires. DADPoller
// is platform-specific (dad_linux.go polls IFA_F_TENTATIVE via
// vishvananda/netlink); a platform that reports DAD completion out of
// band (e.g. via a route table callback) can skip this and treat WaitDAD
// as a no-op by passing an invalid addr.
func WaitDAD(ctx context.Context, ifaceName string, addr netip.Addr, poll DADPoller, logger *logging.Logger) error {
	if !addr.Is6() {
		return nil
	}
	if logger == nil {
		logger = logging.Default().WithComponent("tun")
	}
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		tentative, err := poll.IsTentative(ifaceName, addr)
		if err != nil {
			return nymerrors.Wrapf(err, nymerrors.KindUnavailable, "query DAD state for %s on %s", addr, ifaceName)
		}
		if !tentative {
			return nil
		}
		select {
		case <-ctx.Done():
			return nymerrors.Wrapf(ctx.Err(), nymerrors.KindTimeout, "duplicate address detection for %s did not complete", addr)
		case <-ticker.C:
		}
	}
}

// DADPoller abstracts the platform-specific tentative-address check so
// WaitDAD stays testable without real interfaces. The production
// implementation (built per platform) queries the kernel's address flags;
// on Linux that's IFA_F_TENTATIVE from an rtnetlink dump via
// vishvananda/netlink.
type DADPoller interface {
	IsTentative(ifaceName string, addr netip.Addr) (bool, error)
}

// NoDAD is a DADPoller for platforms/tests where duplicate address
// detection is not observed; every address is reported resolved.
type NoDAD struct{}

func (NoDAD) IsTentative(string, netip.Addr) (bool, error) { return false, nil }

func (d *Device) String() string {
	return fmt.Sprintf("tun(%s)", d.name)
}
