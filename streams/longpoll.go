package streams

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/renbou/tlxdispatch/internal/api"
	"github.com/renbou/tlxdispatch/internal/retry"
	"github.com/renbou/tlxdispatch/tlxlog"
	"github.com/renbou/tlxdispatch/update"
	"gopkg.in/telebot.v3"
)

// LongPollOptions specify various options to use inside the long poller.
// Limit, Timeout and AllowedUpdates specify the values to send to Telegram's getUpdates method.
type LongPollOptions struct {
	// Endpoint is the Bot API server url, telebot.DefaultApiURL by default.
	Endpoint string
	// Client overrides the HTTP client of the bot.
	Client         tgbotapi.HTTPClient
	Limit          int
	Timeout        time.Duration
	AllowedUpdates []string
	Logger         tlxlog.Logger
}

const (
	DefaultLongPollLimit   = 100
	DefaultLongPollTimeout = time.Second * 60
	// Extra time given to the HTTP request on top of the long polling timeout
	longPollRequestSlack = time.Second * 10
)

type longPoller struct {
	*LongPollOptions
	decode updateDecoder
	client *api.Client
}

// poll fetches updates until a single request succeeds, reporting every failed attempt
// to the stream. A non-nil error is returned only when polling can never succeed.
func (s *longPoller) poll(ctx context.Context, offset int, stream chan<- Result[update.Update]) (int, error) {
	newOffset := offset

	var retryAfter time.Duration
	backoff := retry.BackoffScheduler()
	schedule := func() time.Duration {
		if delay := backoff(); delay > retryAfter {
			return delay
		}
		return retryAfter
	}

	notify := func(err error, delay time.Duration) {
		s.Logger.Info("retrying getUpdates", "offset", newOffset, "delay", delay)
		select {
		case stream <- Fail[update.Update](fmt.Errorf("long polling: %w", err)):
		case <-ctx.Done():
		}
	}

	err := retry.Recover(ctx, notify, func(ctx context.Context) error {
		rctx, cancel := context.WithTimeout(ctx, s.Timeout+longPollRequestSlack)
		defer cancel()

		err := s.client.GetUpdates(rctx, api.GetUpdatesRequest{
			Offset:         newOffset,
			Limit:          s.Limit,
			Timeout:        int(s.Timeout.Seconds()),
			AllowedUpdates: s.AllowedUpdates,
		}, func(ui api.UpdateInfo, raw []byte) error {
			// Updates the dispatcher doesn't know about are skipped, but still confirmed
			if ui.Kind == api.KindUnknown {
				newOffset = ui.ID + 1
				return nil
			}

			// Undecodable updates are reported, and skipped just like the unknown ones
			u, err := s.decode(ui, raw)
			r := Ok(u)
			if err != nil {
				r = Fail[update.Update](err)
			}

			// Either wait for the update to go through, or for the context to be done
			select {
			case stream <- r:
				// Modify the offset only after the update is actually consumed
				newOffset = ui.ID + 1
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})

		// Everything went fine or the global context is done, lets end this attempt
		if err == nil || ctx.Err() != nil {
			return nil
		}

		var apiErr *api.Error
		if errors.As(err, &apiErr) {
			if apiErr.Unrecoverable() {
				return err
			}
			retryAfter = apiErr.RetryAfter
		}
		return retry.Recoverable(err)
	}, schedule)

	if err != nil && ctx.Err() == nil {
		return newOffset, fmt.Errorf("critical error while long polling: %w", err)
	}
	return newOffset, nil
}

func (s *longPoller) Stream(ctx context.Context) Stream[Result[update.Update]] {
	stream := make(chan Result[update.Update], s.Limit)
	go func() {
		defer close(stream)

		var offset int
		for ctx.Err() == nil {
			newOffset, err := s.poll(ctx, offset, stream)
			if err != nil {
				s.Logger.Error(err, "stopping long polling", "offset", newOffset)
				select {
				case stream <- Fail[update.Update](err):
				case <-ctx.Done():
				}
				return
			}
			offset = newOffset
		}
	}()
	return stream
}

// NewLongPoller creates a new long polling update listener using the bot's token
// and HTTP client. Updates of every kind known to the update package are requested
// unless AllowedUpdates is specified.
func NewLongPoller(bot *tgbotapi.BotAPI, opts *LongPollOptions) (UpdateListener, error) {
	if bot == nil {
		return nil, errors.New("long polling requires a bot")
	}

	o := LongPollOptions{}
	if opts != nil {
		o = *opts
	}
	if o.Endpoint == "" {
		o.Endpoint = telebot.DefaultApiURL
	}
	if o.Client == nil {
		o.Client = bot.Client
	}
	if o.Limit == 0 {
		o.Limit = DefaultLongPollLimit
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultLongPollTimeout
	}
	if o.AllowedUpdates == nil {
		o.AllowedUpdates = update.Names()
	}
	o.Logger = tlxlog.With(o.Logger, "component", "longpoll")

	client, err := api.NewClient(o.Endpoint, bot.Token, &api.ClientOpts{Client: o.Client})
	if err != nil {
		return nil, fmt.Errorf("creating long poll client: %w", err)
	}
	return &longPoller{LongPollOptions: &o, decode: decodeUpdate, client: client}, nil
}
