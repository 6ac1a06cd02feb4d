package cmd

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/renbou/tlxdispatch/internal/config"
	"github.com/renbou/tlxdispatch/tlxlog"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tlxbot",
	Short: "tlxbot - an example bot built on tlxdispatch",
	Long: `tlxbot registers users through a short dialogue, throws dice and answers edited messages.
It receives updates either by long polling or through a webhook, depending on the configuration.`,
	SilenceUsage: true,
}

// Execute runs the root command. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML config, environment variables override it")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(commandsCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig() (*config.Config, tlxlog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := tlxlog.Std()
	if cfg.Logging.Quiet {
		logger = tlxlog.Discard()
	}
	return cfg, logger, nil
}

// newBot creates the bot, which also checks that the token is valid.
func newBot(cfg *config.Config) (*tgbotapi.BotAPI, error) {
	endpoint := tgbotapi.APIEndpoint
	if cfg.Telegram.APIEndpoint != "" {
		endpoint = cfg.Telegram.APIEndpoint + "/bot%s/%s"
	}

	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.Telegram.Token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return bot, nil
}
