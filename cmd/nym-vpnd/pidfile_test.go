package main

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestCheckStalePidFileMissingFileIsOK(t *testing.T) {
	dir := t.TempDir()
	if err := checkStalePidFile(filepath.Join(dir, "nym-vpnd.pid"), testLogger()); err != nil {
		t.Errorf("checkStalePidFile with no existing file: %v", err)
	}
}

func TestCheckStalePidFileRemovesDeadPID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nym-vpnd.pid")
	// PID 999999999 is above any PID the kernel hands out, so
	// os.FindProcess + Signal(0) reliably fails against it on POSIX.
	if err := os.WriteFile(path, []byte("999999999"), 0o644); err != nil {
		t.Fatalf("seed pid file: %v", err)
	}

	if err := checkStalePidFile(path, testLogger()); err != nil {
		t.Errorf("checkStalePidFile with a dead pid: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("stale pid file should have been removed")
	}
}

func TestCheckStalePidFileRefusesLiveProcess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nym-vpnd.pid")
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		t.Fatalf("seed pid file: %v", err)
	}

	if err := checkStalePidFile(path, testLogger()); err == nil {
		t.Error("checkStalePidFile should refuse to start with this process's own pid already on file")
	}
}

func TestWritePidFileRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nym-vpnd.pid")
	if err := writePidFile(path); err != nil {
		t.Fatalf("writePidFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	if string(data) != strconv.Itoa(os.Getpid()) {
		t.Errorf("pid file content = %q, want %d", data, os.Getpid())
	}
}
