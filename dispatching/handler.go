package dispatching

import (
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/renbou/tlxdispatch/internal/chanx"
	"github.com/renbou/tlxdispatch/streams"
	"github.com/renbou/tlxdispatch/tlxlog"
)

// UpdateWithCx is an update paired with the bot which received it,
// so that handlers are able to respond using the bot.
type UpdateWithCx[T any] struct {
	Bot    *tgbotapi.BotAPI
	Update T
}

// Command is the payload delivered to command handlers: the message which
// was successfully parsed as a command, and the command itself.
type Command[C any] struct {
	Message *tgbotapi.Message
	Command C
}

// Handler processes a stream of updates of a single kind. Handle is run in its own
// goroutine and should return once the stream is closed, although it may return earlier,
// in which case all further updates of the kind are dropped.
type Handler[T any] interface {
	Handle(rx streams.Stream[UpdateWithCx[T]])
}

// HandlerFunc allows using ordinary functions as a Handler.
type HandlerFunc[T any] func(rx streams.Stream[UpdateWithCx[T]])

func (f HandlerFunc[T]) Handle(rx streams.Stream[UpdateWithCx[T]]) {
	f(rx)
}

// ForEach returns a Handler which calls f for every received update, one at a time.
func ForEach[T any](f func(cx UpdateWithCx[T])) Handler[T] {
	return HandlerFunc[T](func(rx streams.Stream[UpdateWithCx[T]]) {
		for cx := range rx {
			f(cx)
		}
	})
}

// spawn creates the queue for a handler and starts the handler over it. The queue
// is detached once the handler returns (or panics), so later sends fail immediately.
func spawn[T any](wg *sync.WaitGroup, logger tlxlog.Logger, h Handler[T]) *chanx.Unbounded[UpdateWithCx[T]] {
	q := chanx.NewUnbounded[UpdateWithCx[T]]()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer q.Detach()
		defer func() {
			if r := recover(); r != nil {
				logger.Error(fmt.Errorf("panic: %v", r), "handler panicked, its updates will be dropped")
			}
		}()

		h.Handle(q.Out())
	}()
	return q
}
