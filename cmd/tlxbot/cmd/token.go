package cmd

import (
	"fmt"

	"github.com/renbou/tlxdispatch/internal/keychain"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the bot token kept in the system keychain",
	Long:  "The token stored in the system keychain is used when neither the config file nor BOT_TOKEN specify one.",
}

var tokenSetCmd = &cobra.Command{
	Use:   "set <token>",
	Short: "Store the bot token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := keychain.SetToken(args[0]); err != nil {
			return fmt.Errorf("failed to store token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Token stored.")
		return nil
	},
}

var tokenDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete the stored bot token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := keychain.DeleteToken(); err != nil {
			return fmt.Errorf("failed to delete token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Token deleted.")
		return nil
	},
}

func init() {
	tokenCmd.AddCommand(tokenSetCmd)
	tokenCmd.AddCommand(tokenDeleteCmd)
}
