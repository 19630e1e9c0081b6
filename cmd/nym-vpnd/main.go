// Command nym-vpnd is the tunnel core daemon: it owns the firewall kill
// switch, the WireGuard/mixnet tunnel lifecycle, the account and
// credential controllers, and exposes all of it over a local IPC socket
// to nym-vpnc.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"go.nymvpn.network/core/internal/config"
	"go.nymvpn.network/core/internal/ipc"
	"go.nymvpn.network/core/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "nym-vpnd:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to nym-vpnd HCL config file")
	socketOverride := flag.String("socket", "", "override the IPC socket/pipe path")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel})
	logging.SetDefault(logger)

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	pidPath := filepath.Join(cfg.DataDir, "nym-vpnd.pid")
	if err := checkStalePidFile(pidPath, logger); err != nil {
		return err
	}
	if err := writePidFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := buildDaemon(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build daemon: %w", err)
	}
	defer d.Close()

	socketPath := *socketOverride
	if socketPath == "" {
		socketPath = cfg.Daemon.SocketPath
	}
	if socketPath == "" {
		socketPath = ipc.SocketPath()
	}

	listener, err := ipc.Listen(socketPath)
	if err != nil {
		return fmt.Errorf("listen on ipc socket: %w", err)
	}

	ipc.RegisterCodec()
	grpcServer := grpc.NewServer()
	grpcServer.RegisterService(&ipc.ServiceDesc, d.ipc)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	logger.Info("nym-vpnd listening", "socket", socketPath, "network", cfg.Network.Name)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			logger.Error("ipc server exited unexpectedly", "error", err)
		}
	}

	cancel()

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		grpcServer.Stop()
	}

	return nil
}
