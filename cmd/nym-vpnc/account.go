package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"go.nymvpn.network/core/internal/ipc"
)

func readMnemonic(args []string) (string, error) {
	if len(args) > 0 {
		return strings.TrimSpace(args[0]), nil
	}
	fmt.Fprint(os.Stderr, "mnemonic: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read mnemonic from stdin: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func storeAccountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "store-account [mnemonic]",
		Short: "Store the account mnemonic, reading from stdin if omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mnemonic, err := readMnemonic(args)
			if err != nil {
				return err
			}
			req := ipc.StoreAccountRequest{Mnemonic: mnemonic}
			var resp ipc.StoreAccountResponse
			if err := call(cmd.Context(), "StoreAccount", &req, &resp); err != nil {
				return err
			}
			fmt.Println("account stored")
			return nil
		},
	}
}

func isAccountStoredCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "is-account-stored",
		Short: "Report whether an account mnemonic is stored",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp ipc.IsAccountStoredResponse
			if err := call(cmd.Context(), "IsAccountStored", &ipc.IsAccountStoredRequest{}, &resp); err != nil {
				return err
			}
			fmt.Println(resp.Stored)
			return nil
		},
	}
}

func forgetAccountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget-account",
		Short: "Erase the stored mnemonic, keys and all cached credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp ipc.ForgetAccountResponse
			if err := call(cmd.Context(), "ForgetAccount", &ipc.ForgetAccountRequest{}, &resp); err != nil {
				return err
			}
			fmt.Println("account forgotten")
			return nil
		},
	}
}

func getAccountIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get-account-id",
		Short: "Print the stored account's identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp ipc.GetAccountIDResponse
			if err := call(cmd.Context(), "GetAccountID", &ipc.GetAccountIDRequest{}, &resp); err != nil {
				return err
			}
			fmt.Println(resp.ID)
			return nil
		},
	}
}

func getAccountLinksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get-account-links",
		Short: "Print the account's sign-up / sign-in / manage-account URLs",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp ipc.GetAccountLinksResponse
			if err := call(cmd.Context(), "GetAccountLinks", &ipc.GetAccountLinksRequest{}, &resp); err != nil {
				return err
			}
			fmt.Printf("%s %s\n", styleLabel.Render("sign up:"), resp.SignUp)
			fmt.Printf("%s %s\n", styleLabel.Render("sign in:"), resp.SignIn)
			fmt.Printf("%s %s\n", styleLabel.Render("account:"), resp.Account)
			return nil
		},
	}
}

func getAccountStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get-account-state",
		Short: "Print account status, subscription and device quota",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp ipc.GetAccountStateResponse
			if err := call(cmd.Context(), "GetAccountState", &ipc.GetAccountStateRequest{}, &resp); err != nil {
				return err
			}
			fmt.Printf("%s %s\n", styleLabel.Render("status:"), resp.Status)
			fmt.Printf("%s %s\n", styleLabel.Render("subscription:"), resp.Subscription)
			fmt.Printf("%s %d/%d (remaining %d)\n", styleLabel.Render("devices:"),
				resp.DeviceQuota.Active, resp.DeviceQuota.Max, resp.DeviceQuota.Remaining)
			fmt.Printf("%s %v\n", styleLabel.Render("mnemonic stored:"), resp.MnemonicStored)
			return nil
		},
	}
}

func getDeviceIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get-device-id",
		Short: "Print this device's identity key",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp ipc.GetDeviceIDResponse
			if err := call(cmd.Context(), "GetDeviceID", &ipc.GetDeviceIDRequest{}, &resp); err != nil {
				return err
			}
			fmt.Println(resp.DeviceID)
			return nil
		},
	}
}
