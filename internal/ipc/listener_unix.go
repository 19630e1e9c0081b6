//go:build !windows

package ipc

import (
	"net"
	"os"

	nymerrors "go.nymvpn.network/core/internal/errors"
)

// Listen opens the daemon's IPC endpoint at path. On POSIX platforms this
// is a unix domain socket; a stale socket file left behind by an unclean
// shutdown is removed before binding, mirroring the teacher's own
// stale-pidfile cleanup in cmd/start.go.
func Listen(path string) (net.Listener, error) {
	if _, err := os.Stat(path); err == nil {
		os.Remove(path)
	}
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, nymerrors.Wrapf(err, nymerrors.KindInternal, "listen on ipc socket %s", path)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		l.Close()
		return nil, nymerrors.Wrapf(err, nymerrors.KindInternal, "chmod ipc socket %s", path)
	}
	return l, nil
}
