package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"go.nymvpn.network/core/internal/ipc"
)

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print daemon version, active network and PID",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp ipc.InfoResponse
			if err := call(cmd.Context(), "Info", &ipc.InfoRequest{}, &resp); err != nil {
				return err
			}
			fmt.Printf("%s %s\n", styleLabel.Render("version:"), resp.Version)
			fmt.Printf("%s %s\n", styleLabel.Render("network:"), resp.Network)
			fmt.Printf("%s %d\n", styleLabel.Render("daemon pid:"), resp.DaemonPID)
			return nil
		},
	}
}

func setNetworkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-network <network>",
		Short: "Switch the daemon's active network environment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := ipc.SetNetworkRequest{Network: args[0]}
			var resp ipc.SetNetworkResponse
			if err := call(cmd.Context(), "SetNetwork", &req, &resp); err != nil {
				return err
			}
			fmt.Println("network set to", args[0])
			return nil
		},
	}
}
