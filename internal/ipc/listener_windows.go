//go:build windows

package ipc

import (
	"net"

	"github.com/Microsoft/go-winio"

	nymerrors "go.nymvpn.network/core/internal/errors"
)

// Listen opens the daemon's IPC endpoint at path, a named pipe address
// (\\.\pipe\nym-vpn) on Windows.
func Listen(path string) (net.Listener, error) {
	l, err := winio.ListenPipe(path, nil)
	if err != nil {
		return nil, nymerrors.Wrapf(err, nymerrors.KindInternal, "listen on ipc pipe %s", path)
	}
	return l, nil
}
