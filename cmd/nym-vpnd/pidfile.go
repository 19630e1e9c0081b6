package main

import (
	"fmt"
	"os"
	"strconv"
	"syscall"

	"go.nymvpn.network/core/internal/logging"
)

// checkStalePidFile inspects path for a previous run's PID. A live process
// holding it refuses the new start; a dead one is logged and removed,
// mirroring the teacher's own stale-PID cleanup in cmd/start.go.
func checkStalePidFile(path string, logger *logging.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return nil
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		logger.Warn("unreadable pid file, removing", "path", path)
		os.Remove(path)
		return nil
	}
	process, err := os.FindProcess(pid)
	if err == nil && process.Signal(syscall.Signal(0)) == nil {
		return fmt.Errorf("nym-vpnd already running (PID: %d)", pid)
	}
	logger.Warn("removing stale pid file", "path", path, "pid", pid)
	os.Remove(path)
	return nil
}

func writePidFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}
