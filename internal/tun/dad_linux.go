//go:build linux

package tun

import (
	"net/netip"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	nymerrors "go.nymvpn.network/core/internal/errors"
)

// LinuxDAD queries IFA_F_TENTATIVE via rtnetlink, using
// github.com/vishvananda/netlink.
type LinuxDAD struct{}

func (LinuxDAD) IsTentative(ifaceName string, addr netip.Addr) (bool, error) {
	link, err := netlink.LinkByName(ifaceName)
	if err != nil {
		return false, nymerrors.Wrapf(err, nymerrors.KindUnavailable, "look up interface %s", ifaceName)
	}
	addrs, err := netlink.AddrList(link, netlink.FAMILY_V6)
	if err != nil {
		return false, nymerrors.Wrapf(err, nymerrors.KindUnavailable, "list addresses on %s", ifaceName)
	}
	for _, a := range addrs {
		ip, ok := netip.AddrFromSlice(a.IP)
		if !ok || !ip.Unmap().Is6() {
			continue
		}
		if ip.Unmap() != addr {
			continue
		}
		return a.Flags&unix.IFA_F_TENTATIVE != 0, nil
	}
	// Address not yet visible to the kernel at all; treat as still
	// tentative so the caller keeps polling instead of racing ahead.
	return true, nil
}
