package cmd

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/renbou/tlxdispatch/internal/handlers"
	"github.com/spf13/cobra"
)

var setCommands bool

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "List the bot's commands",
	Long:  "List the commands understood by the bot, and optionally publish them to Telegram with setMyCommands.",
	RunE:  runCommands,
}

func init() {
	commandsCmd.Flags().BoolVar(&setCommands, "set", false, "publish the commands to Telegram")
}

func runCommands(cmd *cobra.Command, args []string) error {
	fmt.Fprintln(cmd.OutOrStdout(), handlers.Commands.Descriptions())
	if !setCommands {
		return nil
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	bot, err := newBot(cfg)
	if err != nil {
		return err
	}

	if _, err := bot.Request(tgbotapi.NewSetMyCommands(handlers.Commands.BotCommands()...)); err != nil {
		return fmt.Errorf("failed to set commands: %w", err)
	}
	return nil
}
