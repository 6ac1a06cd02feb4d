package dispatching

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/renbou/tlxdispatch/command"
	"github.com/renbou/tlxdispatch/streams"
	"github.com/renbou/tlxdispatch/tlxlog"
	"github.com/renbou/tlxdispatch/update"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// collector is a handler remembering everything it has received.
type collector[T any] struct {
	mu    sync.Mutex
	bots  []*tgbotapi.BotAPI
	items []T
}

func (c *collector[T]) Handle(rx streams.Stream[UpdateWithCx[T]]) {
	for cx := range rx {
		c.mu.Lock()
		c.bots = append(c.bots, cx.Bot)
		c.items = append(c.items, cx.Update)
		c.mu.Unlock()
	}
}

func (c *collector[T]) received() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T(nil), c.items...)
}

func mustUpdate(t *testing.T, id int, kind update.Kind, payload any) update.Update {
	t.Helper()
	u, err := update.New(id, kind, payload)
	require.NoError(t, err)
	return u
}

func message(t *testing.T, id int, text string) update.Update {
	t.Helper()
	return mustUpdate(t, id, update.KindMessage, &tgbotapi.Message{MessageID: id, Text: text})
}

func listenerOf(results ...streams.Result[update.Update]) streams.UpdateListener {
	return streams.Of(results...)
}

func okUpdate(u update.Update) streams.Result[update.Update] {
	return streams.Ok(u)
}

func messageIDs(msgs []*tgbotapi.Message) []int {
	ids := make([]int, len(msgs))
	for i, m := range msgs {
		ids[i] = m.MessageID
	}
	return ids
}

func newTestDispatcher() (*Dispatcher[command.Parsed], *tgbotapi.BotAPI) {
	bot := &tgbotapi.BotAPI{Token: "token"}
	return New[command.Parsed](bot, WithLogger(tlxlog.Discard())), bot
}

func TestDispatcher_Messages(t *testing.T) {
	d, bot := newTestDispatcher()
	messages := &collector[*tgbotapi.Message]{}
	d.MessagesHandler(messages)

	err := d.DispatchWithListener(context.Background(), listenerOf(
		okUpdate(message(t, 1, "/start@mybot")),
		okUpdate(mustUpdate(t, 2, update.KindPoll, &tgbotapi.Poll{ID: "poll"})),
		okUpdate(message(t, 3, "hello")),
		okUpdate(mustUpdate(t, 4, update.KindEditedMessage, &tgbotapi.Message{MessageID: 4})),
		okUpdate(message(t, 5, "")),
	), nil)
	require.NoError(t, err)
	d.Wait()

	assert.Equal(t, []int{1, 3, 5}, messageIDs(messages.received()))
	for _, b := range messages.bots {
		assert.Same(t, bot, b)
	}
}

func TestDispatcher_Commands(t *testing.T) {
	d, _ := newTestDispatcher()
	messages := &collector[*tgbotapi.Message]{}
	commands := &collector[Command[command.Parsed]]{}
	d.MessagesHandler(messages).CommandsHandler(commands, command.Default, "mybot")

	err := d.DispatchWithListener(context.Background(), listenerOf(
		okUpdate(message(t, 1, "/start@mybot hello")),
		okUpdate(message(t, 2, "hello")),
		okUpdate(mustUpdate(t, 3, update.KindMessage, &tgbotapi.Message{MessageID: 3, Sticker: &tgbotapi.Sticker{}})),
		okUpdate(message(t, 4, "/start@otherbot")),
		okUpdate(message(t, 5, "/help")),
		okUpdate(mustUpdate(t, 6, update.KindChannelPost, &tgbotapi.Message{MessageID: 6, Text: "/start@mybot"})),
	), nil)
	require.NoError(t, err)
	d.Wait()

	assert.Equal(t, []int{2, 3, 4}, messageIDs(messages.received()))

	received := commands.received()
	require.Len(t, received, 2)
	assert.Equal(t, 1, received[0].Message.MessageID)
	assert.Equal(t, command.Parsed{Name: "start", Args: "hello"}, received[0].Command)
	assert.Equal(t, 5, received[1].Message.MessageID)
	assert.Equal(t, command.Parsed{Name: "help"}, received[1].Command)
}

func TestDispatcher_CommandsWithoutBotName(t *testing.T) {
	d, _ := newTestDispatcher()
	messages := &collector[*tgbotapi.Message]{}
	commands := &collector[Command[command.Parsed]]{}
	d.MessagesHandler(messages).CommandsHandler(commands, command.Default, "")

	err := d.DispatchWithListener(context.Background(), listenerOf(
		okUpdate(message(t, 1, "/start")),
		okUpdate(message(t, 2, "/help@mybot")),
	), nil)
	require.NoError(t, err)
	d.Wait()

	assert.Equal(t, []int{1, 2}, messageIDs(messages.received()))
	assert.Empty(t, commands.received())
}

func TestDispatcher_ListenerErrors(t *testing.T) {
	d, _ := newTestDispatcher()
	messages := &collector[*tgbotapi.Message]{}
	d.MessagesHandler(messages)

	listenerErr := errors.New("listener failed")
	var handled []error
	eh := ErrorHandlerFunc(func(_ context.Context, err error) {
		handled = append(handled, err)
	})

	err := d.DispatchWithListener(context.Background(), listenerOf(
		okUpdate(message(t, 1, "A")),
		streams.Fail[update.Update](listenerErr),
		okUpdate(message(t, 2, "B")),
	), eh)
	require.NoError(t, err)
	d.Wait()

	assert.Equal(t, []error{listenerErr}, handled)
	assert.Equal(t, []int{1, 2}, messageIDs(messages.received()))
}

func TestDispatcher_AllKinds(t *testing.T) {
	d, _ := newTestDispatcher()

	var mu sync.Mutex
	got := make(map[update.Kind][]int)
	record := func(kind update.Kind, id int) {
		mu.Lock()
		got[kind] = append(got[kind], id)
		mu.Unlock()
	}
	recordMessage := func(kind update.Kind) Handler[*tgbotapi.Message] {
		return ForEach(func(cx UpdateWithCx[*tgbotapi.Message]) {
			record(kind, cx.Update.MessageID)
		})
	}

	d.MessagesHandler(recordMessage(update.KindMessage)).
		EditedMessagesHandler(recordMessage(update.KindEditedMessage)).
		ChannelPostsHandler(recordMessage(update.KindChannelPost)).
		EditedChannelPostsHandler(recordMessage(update.KindEditedChannelPost)).
		InlineQueriesHandler(ForEach(func(UpdateWithCx[*tgbotapi.InlineQuery]) {
			record(update.KindInlineQuery, 5)
		})).
		ChosenInlineResultsHandler(ForEach(func(UpdateWithCx[*tgbotapi.ChosenInlineResult]) {
			record(update.KindChosenInlineResult, 6)
		})).
		CallbackQueriesHandler(ForEach(func(UpdateWithCx[*tgbotapi.CallbackQuery]) {
			record(update.KindCallbackQuery, 7)
		})).
		ShippingQueriesHandler(ForEach(func(UpdateWithCx[*tgbotapi.ShippingQuery]) {
			record(update.KindShippingQuery, 8)
		})).
		PreCheckoutQueriesHandler(ForEach(func(UpdateWithCx[*tgbotapi.PreCheckoutQuery]) {
			record(update.KindPreCheckoutQuery, 9)
		})).
		PollsHandler(ForEach(func(UpdateWithCx[*tgbotapi.Poll]) {
			record(update.KindPoll, 10)
		})).
		PollAnswersHandler(ForEach(func(UpdateWithCx[*tgbotapi.PollAnswer]) {
			record(update.KindPollAnswer, 11)
		}))

	err := d.DispatchWithListener(context.Background(), listenerOf(
		okUpdate(mustUpdate(t, 1, update.KindMessage, &tgbotapi.Message{MessageID: 1})),
		okUpdate(mustUpdate(t, 2, update.KindEditedMessage, &tgbotapi.Message{MessageID: 2})),
		okUpdate(mustUpdate(t, 3, update.KindChannelPost, &tgbotapi.Message{MessageID: 3})),
		okUpdate(mustUpdate(t, 4, update.KindEditedChannelPost, &tgbotapi.Message{MessageID: 4})),
		okUpdate(mustUpdate(t, 5, update.KindInlineQuery, &tgbotapi.InlineQuery{})),
		okUpdate(mustUpdate(t, 6, update.KindChosenInlineResult, &tgbotapi.ChosenInlineResult{})),
		okUpdate(mustUpdate(t, 7, update.KindCallbackQuery, &tgbotapi.CallbackQuery{})),
		okUpdate(mustUpdate(t, 8, update.KindShippingQuery, &tgbotapi.ShippingQuery{})),
		okUpdate(mustUpdate(t, 9, update.KindPreCheckoutQuery, &tgbotapi.PreCheckoutQuery{})),
		okUpdate(mustUpdate(t, 10, update.KindPoll, &tgbotapi.Poll{})),
		okUpdate(mustUpdate(t, 11, update.KindPollAnswer, &tgbotapi.PollAnswer{})),
	), nil)
	require.NoError(t, err)
	d.Wait()

	require.Len(t, got, len(update.Kinds()))
	for i, kind := range update.Kinds() {
		assert.Equal(t, []int{i + 1}, got[kind], kind.String())
	}
}

func TestDispatcher_HandlerExited(t *testing.T) {
	d, _ := newTestDispatcher()
	polls := &collector[*tgbotapi.Poll]{}
	exited := make(chan struct{})
	d.MessagesHandler(HandlerFunc[*tgbotapi.Message](func(streams.Stream[UpdateWithCx[*tgbotapi.Message]]) {
		close(exited)
	})).CallbackQueriesHandler(ForEach(func(UpdateWithCx[*tgbotapi.CallbackQuery]) {
		panic("callback handler failed")
	})).PollsHandler(polls)
	<-exited

	err := d.DispatchWithListener(context.Background(), listenerOf(
		okUpdate(message(t, 1, "lost")),
		okUpdate(mustUpdate(t, 2, update.KindCallbackQuery, &tgbotapi.CallbackQuery{ID: "first"})),
		okUpdate(mustUpdate(t, 3, update.KindPoll, &tgbotapi.Poll{ID: "a"})),
		okUpdate(message(t, 4, "lost")),
		okUpdate(mustUpdate(t, 5, update.KindCallbackQuery, &tgbotapi.CallbackQuery{ID: "second"})),
		okUpdate(mustUpdate(t, 6, update.KindPoll, &tgbotapi.Poll{ID: "b"})),
	), nil)
	require.NoError(t, err)
	d.Wait()

	received := polls.received()
	require.Len(t, received, 2)
	assert.Equal(t, "a", received[0].ID)
	assert.Equal(t, "b", received[1].ID)
}

func TestDispatcher_Reregister(t *testing.T) {
	d, _ := newTestDispatcher()
	first, second := &collector[*tgbotapi.Message]{}, &collector[*tgbotapi.Message]{}
	d.MessagesHandler(first).MessagesHandler(second)

	err := d.DispatchWithListener(context.Background(), listenerOf(
		okUpdate(message(t, 1, "a")),
		okUpdate(message(t, 2, "b")),
	), nil)
	require.NoError(t, err)
	d.Wait()

	assert.Empty(t, first.received())
	assert.Equal(t, []int{1, 2}, messageIDs(second.received()))
}

func TestDispatcher_AlreadyDispatched(t *testing.T) {
	d, _ := newTestDispatcher()
	require.NoError(t, d.DispatchWithListener(context.Background(), listenerOf(), nil))
	assert.ErrorIs(t, d.DispatchWithListener(context.Background(), listenerOf(), nil), ErrAlreadyDispatched)
	assert.ErrorIs(t, d.Dispatch(context.Background()), ErrAlreadyDispatched)
	d.Wait()
}

func TestDispatcher_ContextCanceled(t *testing.T) {
	d, _ := newTestDispatcher()
	messages := &collector[*tgbotapi.Message]{}
	d.MessagesHandler(messages)

	source := make(chan streams.Result[update.Update], 1)
	source <- okUpdate(message(t, 1, "a"))
	listener := streams.StreamerFunc[streams.Result[update.Update]](func(context.Context) streams.Stream[streams.Result[update.Update]] {
		return source
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- d.DispatchWithListener(ctx, listener, nil)
	}()

	require.Eventually(t, func() bool {
		return len(messages.received()) == 1
	}, time.Second*5, time.Millisecond*5)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second * 5):
		t.Fatal("dispatching didn't stop after cancellation")
	}
	d.Wait()
}

func TestDispatcher_DispatchWithoutToken(t *testing.T) {
	d := New[command.Parsed](&tgbotapi.BotAPI{}, WithLogger(tlxlog.Discard()))
	d.MessagesHandler(&collector[*tgbotapi.Message]{})

	assert.Error(t, d.Dispatch(context.Background()))
	// handlers must still be stopped
	d.Wait()
}

func TestDispatcher_Close(t *testing.T) {
	d, _ := newTestDispatcher()
	c := &collector[*tgbotapi.Message]{}
	d.MessagesHandler(c).CommandsHandler(&collector[Command[command.Parsed]]{}, command.ParserFunc[command.Parsed](command.Parse), "mybot")

	d.Close()
	d.Wait()
	d.Close()
	assert.ErrorIs(t, d.DispatchWithListener(context.Background(), listenerOf(okUpdate(message(t, 1, "hi"))), nil), ErrAlreadyDispatched)
	assert.Empty(t, c.received())
}

func TestDispatcher_PayloadMismatch(t *testing.T) {
	logger := &recordingLogger{}
	d := New[command.Parsed](&tgbotapi.BotAPI{}, WithLogger(logger))
	c := &collector[*tgbotapi.Message]{}
	d.MessagesHandler(c)

	// constructed without New, so it carries no payload
	broken := update.Update{ID: 7, Kind: update.KindMessage}
	require.NoError(t, d.DispatchWithListener(context.Background(), listenerOf(okUpdate(broken), okUpdate(message(t, 8, "ok"))), nil))
	d.Wait()

	assert.Equal(t, []int{8}, messageIDs(c.received()))
	require.Len(t, logger.errs, 1)
	assert.ErrorIs(t, logger.errs[0], update.ErrPayloadMismatch)
	assert.Equal(t, []interface{}{"kind", "message", "update_id", 7}, logger.kvs[0])
}

func TestDispatcher_UpdateLogging(t *testing.T) {
	for _, enabled := range []bool{false, true} {
		logger := &recordingLogger{}
		opts := []Option{WithLogger(logger)}
		if enabled {
			opts = append(opts, WithUpdateLogging())
		}
		d := New[command.Parsed](&tgbotapi.BotAPI{}, opts...)

		require.NoError(t, d.DispatchWithListener(context.Background(), listenerOf(
			okUpdate(message(t, 1, "hi")),
			okUpdate(mustUpdate(t, 2, update.KindPoll, &tgbotapi.Poll{ID: "poll"})),
		), nil))
		d.Wait()

		if !enabled {
			assert.Empty(t, logger.msgs)
			continue
		}
		assert.Equal(t, []string{"Received update", "Received update"}, logger.msgs)
		assert.Equal(t, [][]interface{}{
			{"kind", "message", "update_id", 1},
			{"kind", "poll", "update_id", 2},
		}, logger.kvs)
	}
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
