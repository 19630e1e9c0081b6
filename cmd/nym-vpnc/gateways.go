package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"go.nymvpn.network/core/internal/ipc"
)

func listGateways(filter ipc.GatewayListFilter) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		req := ipc.ListGatewaysRequest{Filter: filter}
		var resp ipc.ListGatewaysResponse
		if err := call(cmd.Context(), "ListGateways", &req, &resp); err != nil {
			return err
		}
		for _, gw := range resp.Gateways {
			loc := gw.Location
			if loc == "" {
				loc = "??"
			}
			fmt.Printf("%-44s %s\n", gw.Identity, loc)
		}
		return nil
	}
}

func listCountries(filter ipc.GatewayListFilter) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		req := ipc.ListCountriesRequest{Filter: filter}
		var resp ipc.ListCountriesResponse
		if err := call(cmd.Context(), "ListCountries", &req, &resp); err != nil {
			return err
		}
		for _, c := range resp.Countries {
			fmt.Println(c)
		}
		return nil
	}
}

func listEntryGatewaysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-entry-gateways",
		Short: "List gateways usable as an entry hop",
		RunE:  listGateways(ipc.FilterEntry),
	}
}

func listExitGatewaysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-exit-gateways",
		Short: "List gateways usable as an exit hop",
		RunE:  listGateways(ipc.FilterExit),
	}
}

func listVPNGatewaysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-vpn-gateways",
		Short: "List gateways usable for two-hop WireGuard",
		RunE:  listGateways(ipc.FilterVPN),
	}
}

func listEntryCountriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-entry-countries",
		Short: "List country codes with an available entry gateway",
		RunE:  listCountries(ipc.FilterEntry),
	}
}

func listExitCountriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-exit-countries",
		Short: "List country codes with an available exit gateway",
		RunE:  listCountries(ipc.FilterExit),
	}
}

func listVPNCountriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-vpn-countries",
		Short: "List country codes with an available two-hop WireGuard gateway",
		RunE:  listCountries(ipc.FilterVPN),
	}
}
