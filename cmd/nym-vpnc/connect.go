package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"go.nymvpn.network/core/internal/ipc"
	"go.nymvpn.network/core/internal/model"
)

var (
	styleCaseGood = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	styleCaseBad  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleCaseWait = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	styleLabel    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

func styleCase(c string) string {
	switch c {
	case "Connected":
		return styleCaseGood.Render(c)
	case "Error", "Offline":
		return styleCaseBad.Render(c)
	case "Connecting", "Disconnecting":
		return styleCaseWait.Render(c)
	default:
		return c
	}
}

func connectCmd() *cobra.Command {
	var entryID, entryCountry, exitID, exitCountry, exitAddress string
	var entryFastest, entryRandom, exitFastest, exitRandom, twoHop, netstack, credentialsMode bool
	var dns []string

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Bring the tunnel up",
		RunE: func(cmd *cobra.Command, args []string) error {
			entry := model.EntryPoint{Kind: model.EntryRandom}
			switch {
			case entryID != "":
				entry = model.EntryPoint{Kind: model.EntryByGatewayID, GatewayID: entryID}
			case entryCountry != "":
				entry = model.EntryPoint{Kind: model.EntryByLocation, Location: entryCountry}
			case entryFastest:
				entry = model.EntryPoint{Kind: model.EntryRandomLowLatency}
			case entryRandom:
				entry = model.EntryPoint{Kind: model.EntryRandom}
			}

			exit := model.ExitPoint{Kind: model.ExitRandom}
			switch {
			case exitID != "":
				exit = model.ExitPoint{Kind: model.ExitByGatewayID, GatewayID: exitID}
			case exitCountry != "":
				exit = model.ExitPoint{Kind: model.ExitByLocation, Location: exitCountry}
			case exitAddress != "":
				exit = model.ExitPoint{Kind: model.ExitByAddress, NymAddress: exitAddress}
			case exitFastest:
				exit = model.ExitPoint{Kind: model.ExitRandomLowLatency}
			case exitRandom:
				exit = model.ExitPoint{Kind: model.ExitRandom}
			}

			tunnelType := model.TunnelMixnet
			if twoHop {
				tunnelType = model.TunnelWireguardTunTun
				if netstack {
					tunnelType = model.TunnelWireguardNetstack
				}
			}

			req := ipc.ConnectRequest{
				Entry:           entry,
				Exit:            exit,
				TunnelType:      tunnelType,
				CredentialsMode: credentialsMode,
				DNS:             dns,
			}
			var resp ipc.ConnectResponse
			if err := call(cmd.Context(), "Connect", &req, &resp); err != nil {
				return err
			}
			fmt.Println("Connecting...")
			return nil
		},
	}

	cmd.Flags().StringVar(&entryID, "entry-gateway-id", "", "pin the entry gateway by identity key")
	cmd.Flags().StringVar(&entryCountry, "entry-country", "", "pick an entry gateway in this two-letter country code")
	cmd.Flags().BoolVar(&entryFastest, "entry-fastest", false, "pick the lowest-latency entry gateway")
	cmd.Flags().BoolVar(&entryRandom, "entry-random", false, "pick a random entry gateway (default)")
	cmd.Flags().StringVar(&exitID, "exit-gateway-id", "", "pin the exit gateway by identity key")
	cmd.Flags().StringVar(&exitCountry, "exit-country", "", "pick an exit gateway in this two-letter country code")
	cmd.Flags().StringVar(&exitAddress, "exit-address", "", "pin the exit by its nym-address (mixnet only)")
	cmd.Flags().BoolVar(&exitFastest, "exit-fastest", false, "pick the lowest-latency exit gateway")
	cmd.Flags().BoolVar(&exitRandom, "exit-random", false, "pick a random exit gateway (default)")
	cmd.Flags().BoolVar(&twoHop, "two-hop", false, "use the two-hop WireGuard stack instead of pure mixnet")
	cmd.Flags().BoolVar(&netstack, "netstack", false, "use the userspace-netstack WireGuard stack (requires --two-hop)")
	cmd.Flags().BoolVar(&credentialsMode, "credentials-mode", false, "spend zk-nym tickets for this connection")
	cmd.Flags().StringSliceVar(&dns, "dns", nil, "DNS servers to use inside the tunnel")
	return cmd
}

func disconnectCmd() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "disconnect",
		Short: "Bring the tunnel down",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := ipc.DisconnectRequest{Wait: wait}
			var resp ipc.DisconnectResponse
			if err := call(cmd.Context(), "Disconnect", &req, &resp); err != nil {
				return err
			}
			fmt.Println("Disconnecting...")
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "block until the tunnel reaches a terminal state")
	return cmd
}

func printStatus(s ipc.StatusResponse) {
	fmt.Printf("%s %s\n", styleLabel.Render("state:"), styleCase(s.Case))
	if s.RetryAttempt > 0 {
		fmt.Printf("%s %d\n", styleLabel.Render("retry attempt:"), s.RetryAttempt)
	}
	if s.Gateways != nil {
		fmt.Printf("%s %s -> %s\n", styleLabel.Render("gateways:"), s.Gateways.Entry.Identity, s.Gateways.Exit.Identity)
	}
	if s.Reason != "" {
		fmt.Printf("%s %s\n", styleLabel.Render("reason:"), s.Reason)
	}
}

func statusCmd() *cobra.Command {
	var listen bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current tunnel state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !listen {
				var resp ipc.StatusResponse
				if err := call(ctx, "Status", &ipc.Empty{}, &resp); err != nil {
					return err
				}
				printStatus(resp)
				return nil
			}

			conn := dial(ctx)
			defer conn.Close()
			stream, err := ipc.StatusStream(ctx, conn)
			if err != nil {
				return err
			}
			for s := range stream {
				printStatus(s)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&listen, "listen", false, "stream every status transition until interrupted")
	return cmd
}
