// Package dispatching routes updates received by a bot to handlers. Every registered
// handler runs in its own goroutine and receives updates of a single kind in the order
// they were received, while the dispatch loop itself never waits for handlers.
package dispatching

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/renbou/tlxdispatch/command"
	"github.com/renbou/tlxdispatch/internal/chanx"
	"github.com/renbou/tlxdispatch/streams"
	"github.com/renbou/tlxdispatch/tlxlog"
	"github.com/renbou/tlxdispatch/update"
)

// ErrAlreadyDispatched is returned when a dispatcher is started more than once.
var ErrAlreadyDispatched = errors.New("dispatcher has already been started")

// sender is the type-erased sending side of a handler queue.
type sender interface {
	send(bot *tgbotapi.BotAPI, u update.Update) error
	close()
}

type kindQueue[T any] struct {
	q       *chanx.Unbounded[UpdateWithCx[T]]
	extract func(update.Update) (T, bool)
}

func (kq kindQueue[T]) send(bot *tgbotapi.BotAPI, u update.Update) error {
	payload, ok := kq.extract(u)
	if !ok {
		return fmt.Errorf("%w: %s", update.ErrPayloadMismatch, u.Kind)
	}
	return kq.q.Send(UpdateWithCx[T]{Bot: bot, Update: payload})
}

func (kq kindQueue[T]) close() {
	kq.q.Close()
}

type options struct {
	logger     tlxlog.Logger
	logUpdates bool
}

// Option configures a Dispatcher.
type Option func(*options)

// WithLogger sets the logger used by the dispatcher and the default update listener.
func WithLogger(logger tlxlog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithUpdateLogging makes the dispatcher log every received update before dispatching it.
func WithUpdateLogging() Option {
	return func(o *options) {
		o.logUpdates = true
	}
}

// Dispatcher receives updates from a listener and forwards each of them to the handler
// registered for its kind. Messages which are commands addressed to the bot can be
// intercepted and delivered to a separate commands handler, with commands parsed into C.
//
// Handlers must be registered before the dispatcher is started, registering a handler
// for a kind which already has one replaces it: the old handler receives no more updates
// and its stream is closed once it has been drained.
type Dispatcher[C any] struct {
	bot        *tgbotapi.BotAPI
	logger     tlxlog.Logger
	logUpdates bool

	queues   map[update.Kind]sender
	commands *chanx.Unbounded[UpdateWithCx[Command[C]]]
	parser   command.Parser[C]
	botName  string

	tasks      sync.WaitGroup
	dispatched atomic.Bool
}

// New creates a dispatcher without any handlers for the bot. C is the type of parsed commands,
// command.Parsed for the default parser.
//
// Handlers start running as soon as they are registered and return only after their streams
// are closed by dispatching, so a dispatcher which is never started must be closed with Close.
func New[C any](bot *tgbotapi.BotAPI, opts ...Option) *Dispatcher[C] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	return &Dispatcher[C]{
		bot:        bot,
		logger:     tlxlog.WithDefault(o.logger),
		logUpdates: o.logUpdates,
		queues:     make(map[update.Kind]sender, len(update.Kinds())),
	}
}

func register[C, T any](d *Dispatcher[C], kind update.Kind, h Handler[T], extract func(update.Update) (T, bool)) *Dispatcher[C] {
	if old, ok := d.queues[kind]; ok {
		old.close()
	}

	logger := tlxlog.With(d.logger, "kind", kind.String())
	d.queues[kind] = kindQueue[T]{q: spawn(&d.tasks, logger, h), extract: extract}
	return d
}

// MessagesHandler registers the handler of new incoming messages.
func (d *Dispatcher[C]) MessagesHandler(h Handler[*tgbotapi.Message]) *Dispatcher[C] {
	return register(d, update.KindMessage, h, update.Update.Message)
}

// EditedMessagesHandler registers the handler of edited messages.
func (d *Dispatcher[C]) EditedMessagesHandler(h Handler[*tgbotapi.Message]) *Dispatcher[C] {
	return register(d, update.KindEditedMessage, h, update.Update.Message)
}

// ChannelPostsHandler registers the handler of new channel posts.
func (d *Dispatcher[C]) ChannelPostsHandler(h Handler[*tgbotapi.Message]) *Dispatcher[C] {
	return register(d, update.KindChannelPost, h, update.Update.Message)
}

// EditedChannelPostsHandler registers the handler of edited channel posts.
func (d *Dispatcher[C]) EditedChannelPostsHandler(h Handler[*tgbotapi.Message]) *Dispatcher[C] {
	return register(d, update.KindEditedChannelPost, h, update.Update.Message)
}

// InlineQueriesHandler registers the handler of inline queries.
func (d *Dispatcher[C]) InlineQueriesHandler(h Handler[*tgbotapi.InlineQuery]) *Dispatcher[C] {
	return register(d, update.KindInlineQuery, h, update.Update.InlineQuery)
}

// ChosenInlineResultsHandler registers the handler of inline results chosen by users.
func (d *Dispatcher[C]) ChosenInlineResultsHandler(h Handler[*tgbotapi.ChosenInlineResult]) *Dispatcher[C] {
	return register(d, update.KindChosenInlineResult, h, update.Update.ChosenInlineResult)
}

// CallbackQueriesHandler registers the handler of callback queries.
func (d *Dispatcher[C]) CallbackQueriesHandler(h Handler[*tgbotapi.CallbackQuery]) *Dispatcher[C] {
	return register(d, update.KindCallbackQuery, h, update.Update.CallbackQuery)
}

// ShippingQueriesHandler registers the handler of shipping queries.
func (d *Dispatcher[C]) ShippingQueriesHandler(h Handler[*tgbotapi.ShippingQuery]) *Dispatcher[C] {
	return register(d, update.KindShippingQuery, h, update.Update.ShippingQuery)
}

// PreCheckoutQueriesHandler registers the handler of pre-checkout queries.
func (d *Dispatcher[C]) PreCheckoutQueriesHandler(h Handler[*tgbotapi.PreCheckoutQuery]) *Dispatcher[C] {
	return register(d, update.KindPreCheckoutQuery, h, update.Update.PreCheckoutQuery)
}

// PollsHandler registers the handler of poll state updates.
func (d *Dispatcher[C]) PollsHandler(h Handler[*tgbotapi.Poll]) *Dispatcher[C] {
	return register(d, update.KindPoll, h, update.Update.Poll)
}

// PollAnswersHandler registers the handler of changed answers in non-anonymous polls.
func (d *Dispatcher[C]) PollAnswersHandler(h Handler[*tgbotapi.PollAnswer]) *Dispatcher[C] {
	return register(d, update.KindPollAnswer, h, update.Update.PollAnswer)
}

// CommandsHandler registers the handler of commands. New messages whose text is successfully
// parsed by the parser are delivered only to this handler and never to the messages handler.
// Interception is disabled while the bot name is empty, since commands can't be
// distinguished from the ones addressed to other bots.
func (d *Dispatcher[C]) CommandsHandler(h Handler[Command[C]], parser command.Parser[C], botName string) *Dispatcher[C] {
	if d.commands != nil {
		d.commands.Close()
	}

	d.commands = spawn(&d.tasks, tlxlog.With(d.logger, "kind", "command"), h)
	d.parser = parser
	d.botName = botName
	return d
}

// parseCommand returns the command contained in the update if it should be intercepted.
func (d *Dispatcher[C]) parseCommand(u update.Update) (Command[C], bool) {
	if u.Kind != update.KindMessage || d.commands == nil || d.botName == "" {
		return Command[C]{}, false
	}

	msg, _ := u.Message()
	text, ok := u.Text()
	if !ok {
		return Command[C]{}, false
	}

	cmd, err := d.parser.Parse(text, d.botName)
	if err != nil {
		return Command[C]{}, false
	}
	return Command[C]{Message: msg, Command: cmd}, true
}

func (d *Dispatcher[C]) dispatch(u update.Update) {
	if d.logUpdates {
		d.logger.Info("Received update", "kind", u.Kind.String(), "update_id", u.ID)
	}

	if cmd, ok := d.parseCommand(u); ok {
		d.report(u, "command", d.commands.Send(UpdateWithCx[Command[C]]{Bot: d.bot, Update: cmd}))
		return
	}

	q, ok := d.queues[u.Kind]
	if !ok {
		return
	}
	d.report(u, u.Kind.String(), q.send(d.bot, u))
}

func (d *Dispatcher[C]) report(u update.Update, kind string, err error) {
	if err == nil {
		return
	}
	d.logger.Error(err, "Dropping update which couldn't be delivered to its handler", "kind", kind, "update_id", u.ID)
}

func (d *Dispatcher[C]) closeQueues() {
	for _, q := range d.queues {
		q.close()
	}
	if d.commands != nil {
		d.commands.Close()
	}
}

// DispatchWithListener runs the dispatch loop over the updates produced by the listener.
// Errors produced by the listener are passed to the error handler and never stop dispatching.
// It returns once the listener's stream is closed or the context is canceled, after which
// the handlers' streams are closed. Use Wait to wait for the handlers to finish.
func (d *Dispatcher[C]) DispatchWithListener(ctx context.Context, listener streams.UpdateListener, eh ErrorHandler) error {
	if !d.dispatched.CompareAndSwap(false, true) {
		return ErrAlreadyDispatched
	}
	defer d.closeQueues()

	if eh == nil {
		eh = IgnoringErrorHandler()
	}

	stream := listener.Stream(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case r, ok := <-stream:
			if !ok {
				return nil
			}

			if r.Err != nil {
				eh.HandleError(ctx, r.Err)
				continue
			}
			d.dispatch(r.Value)
		}
	}
}

// Dispatch runs the dispatch loop using long polling with the default options
// and an error handler logging all errors.
func (d *Dispatcher[C]) Dispatch(ctx context.Context) error {
	if d.dispatched.Load() {
		return ErrAlreadyDispatched
	}

	listener, err := streams.NewLongPoller(d.bot, &streams.LongPollOptions{Logger: d.logger})
	if err != nil {
		d.Close()
		return fmt.Errorf("creating long poller: %w", err)
	}
	return d.DispatchWithListener(ctx, listener, LoggingErrorHandler(d.logger, "An error from the update listener"))
}

// Close closes the handlers' streams of a dispatcher which is never going to be started,
// so that they return. Calling it after dispatching has started does nothing.
func (d *Dispatcher[C]) Close() {
	if d.dispatched.CompareAndSwap(false, true) {
		d.closeQueues()
	}
}

// Wait blocks until all handlers have returned. Handlers are only guaranteed to return
// after dispatching has ended, since their streams are closed then.
func (d *Dispatcher[C]) Wait() {
	d.tasks.Wait()
}
