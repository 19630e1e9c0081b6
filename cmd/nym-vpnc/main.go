// Command nym-vpnc is the CLI front-end for nym-vpnd: every subcommand
// dials the daemon's local IPC socket and invokes one RPC from
// internal/ipc.ServiceDesc, styling its own output rather than asking the
// daemon to render anything.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"go.nymvpn.network/core/internal/ipc"
)

var socketPath string

const dialTimeout = 5 * time.Second

// dial connects to the daemon, exiting the process with status 1 if the
// socket is unreachable. main exits with the same status 1 for any
// command error, so status 1 does not single out dial failures.
func dial(ctx context.Context) *grpc.ClientConn {
	path := socketPath
	if path == "" {
		path = ipc.SocketPath()
	}
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, err := ipc.Dial(dialCtx, path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "nym-vpnc:", err)
		os.Exit(1)
	}
	return conn
}

func call(ctx context.Context, method string, req, resp any) error {
	conn := dial(ctx)
	defer conn.Close()
	return ipc.Call(ctx, conn, method, req, resp)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "nym-vpnc:", err)
	os.Exit(1)
}

func main() {
	ipc.RegisterCodec()

	root := &cobra.Command{
		Use:           "nym-vpnc",
		Short:         "Control nym-vpnd over its local IPC socket",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&socketPath, "socket", "", "override the daemon IPC socket/pipe path")

	root.AddCommand(
		connectCmd(),
		disconnectCmd(),
		statusCmd(),
		infoCmd(),
		setNetworkCmd(),
		storeAccountCmd(),
		isAccountStoredCmd(),
		forgetAccountCmd(),
		getAccountIDCmd(),
		getAccountLinksCmd(),
		getAccountStateCmd(),
		listEntryGatewaysCmd(),
		listExitGatewaysCmd(),
		listVPNGatewaysCmd(),
		listEntryCountriesCmd(),
		listExitCountriesCmd(),
		listVPNCountriesCmd(),
		getDeviceIDCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "nym-vpnc:", err)
		os.Exit(1)
	}
}
