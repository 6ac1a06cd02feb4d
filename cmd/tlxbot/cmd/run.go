package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/renbou/tlxdispatch/command"
	"github.com/renbou/tlxdispatch/dispatching"
	"github.com/renbou/tlxdispatch/dispatching/dialogue"
	"github.com/renbou/tlxdispatch/internal/config"
	"github.com/renbou/tlxdispatch/internal/handlers"
	"github.com/renbou/tlxdispatch/internal/pgstore"
	"github.com/renbou/tlxdispatch/internal/retry"
	"github.com/renbou/tlxdispatch/streams"
	"github.com/renbou/tlxdispatch/tlxlog"
	"github.com/renbou/tlxdispatch/update"
	"github.com/spf13/cobra"
)

const webhookShutdownTimeout = time.Second * 10

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot",
	Long:  "Run the bot until it is interrupted, receiving updates using the configured run mode.",
	RunE:  runBot,
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	bot, err := newBot(cfg)
	if err != nil {
		return err
	}

	botName := cfg.Telegram.BotName
	if botName == "" {
		botName = bot.Self.UserName
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listener, shutdown, err := newListener(ctx, cfg, bot, logger)
	if err != nil {
		return err
	}
	defer shutdown()

	storage, closeStorage, err := newStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStorage()

	d := dispatching.New[command.Parsed](bot, dispatching.WithLogger(logger))
	handlers.Register(d, handlers.Options{BotName: botName, Storage: storage, Logger: logger})

	logger.Info("Bot started", "username", bot.Self.UserName, "run_mode", cfg.Telegram.RunMode)
	err = d.DispatchWithListener(ctx, listener, dispatching.LoggingErrorHandler(logger, "An error from the update listener"))
	d.Wait()
	logger.Info("Bot stopped")
	return err
}

// newListener creates the listener for the configured run mode. The returned function
// releases the listener's resources and must be called once dispatching is over.
func newListener(ctx context.Context, cfg *config.Config, bot *tgbotapi.BotAPI, logger tlxlog.Logger) (streams.UpdateListener, func(), error) {
	if cfg.Telegram.RunMode == config.RunModeWebhook {
		return startWebhook(ctx, cfg, bot, logger)
	}

	// getUpdates is refused while a webhook is set
	if err := request(ctx, bot, logger, "deleteWebhook", tgbotapi.Params{}); err != nil {
		return nil, nil, fmt.Errorf("failed to delete webhook: %w", err)
	}

	poller, err := streams.NewLongPoller(bot, &streams.LongPollOptions{
		Endpoint: cfg.Telegram.APIEndpoint,
		Limit:    cfg.Telegram.LongPollLimit,
		Timeout:  time.Duration(cfg.Telegram.LongPollTimeoutSeconds) * time.Second,
		Logger:   logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return poller, func() {}, nil
}

func newStorage(ctx context.Context, cfg *config.Config, logger tlxlog.Logger) (dialogue.Storage[int64, handlers.Registration], func(), error) {
	if cfg.Storage.Kind != config.StoragePostgres {
		return dialogue.NewInMemStorage[int64, handlers.Registration](), func() {}, nil
	}

	// the database may come up later than the bot
	var db *sqlx.DB
	err := retry.Backoff(ctx, func(err error, delay time.Duration) {
		logger.Error(err, "Database is unavailable, retrying", "delay", delay)
	}, func(ctx context.Context) (err error) {
		db, err = pgstore.Connect(ctx, cfg.Storage.DSN, cfg.Storage.MaxConnections)
		return retry.Recoverable(err)
	})
	if err != nil {
		return nil, nil, err
	}
	if err := pgstore.Migrate(cfg.Storage.DSN, logger); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return pgstore.New[handlers.Registration](db), func() { _ = db.Close() }, nil
}

func startWebhook(ctx context.Context, cfg *config.Config, bot *tgbotapi.BotAPI, logger tlxlog.Logger) (streams.UpdateListener, func(), error) {
	secret := cfg.Webhook.SecretToken
	if secret == "" {
		// Telegram echoes the secret in a header of every webhook request
		secret = uuid.NewString()
	}

	params := tgbotapi.Params{"url": cfg.Webhook.URL, "secret_token": secret}
	if err := params.AddInterface("allowed_updates", update.Names()); err != nil {
		return nil, nil, err
	}
	if err := request(ctx, bot, logger, "setWebhook", params); err != nil {
		return nil, nil, fmt.Errorf("failed to set webhook: %w", err)
	}

	wh := streams.NewWebhook(&streams.WebhookOptions{SecretToken: secret, Logger: logger})
	mux := http.NewServeMux()
	mux.Handle(cfg.Webhook.Path, wh)
	srv := &http.Server{
		Addr:              cfg.WebhookAddr(),
		Handler:           mux,
		ReadHeaderTimeout: time.Second * 10,
	}

	go func() {
		logger.Info("Serving webhook", "addr", srv.Addr, "path", cfg.Webhook.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "Webhook server failed")
		}
	}()

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), webhookShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error(err, "Failed to shut down webhook server")
		}
	}
	return wh, shutdown, nil
}

// request makes a Bot API request, retrying it while Telegram is unavailable or rate limits the bot.
func request(ctx context.Context, bot *tgbotapi.BotAPI, logger tlxlog.Logger, method string, params tgbotapi.Params) error {
	return retry.Static(ctx, func(err error, delay time.Duration) {
		logger.Error(err, "Bot API request failed, retrying", "method", method, "delay", delay)
	}, func(context.Context) error {
		_, err := bot.MakeRequest(method, params)
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && apiErr.Code != http.StatusTooManyRequests && apiErr.Code < http.StatusInternalServerError {
			return err
		}
		return retry.Recoverable(err)
	})
}
