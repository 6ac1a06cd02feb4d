package dispatching

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/renbou/tlxdispatch/command"
	"github.com/renbou/tlxdispatch/streams"
)

// TextMessage is a message which contains text, along with the text itself.
type TextMessage struct {
	Cx   UpdateWithCx[*tgbotapi.Message]
	Text string
}

// CommandMessage is a message along with the command parsed from its text.
type CommandMessage[C any] struct {
	Cx      UpdateWithCx[*tgbotapi.Message]
	Command C
}

// TextMessages filters out messages without text from the stream. The returned stream
// is closed once rx is closed and must be drained, otherwise the filtering goroutine leaks.
func TextMessages(rx streams.Stream[UpdateWithCx[*tgbotapi.Message]]) streams.Stream[TextMessage] {
	stream := make(chan TextMessage)
	go func() {
		defer close(stream)
		for cx := range rx {
			if cx.Update == nil || cx.Update.Text == "" {
				continue
			}
			stream <- TextMessage{Cx: cx, Text: cx.Update.Text}
		}
	}()
	return stream
}

// Commands filters the stream, leaving only text messages which are successfully parsed as
// commands by the parser. Same as with TextMessages, the returned stream must be drained.
//
// Deprecated: register a commands handler with Dispatcher.CommandsHandler instead.
func Commands[C any](rx streams.Stream[UpdateWithCx[*tgbotapi.Message]], parser command.Parser[C], botName string) streams.Stream[CommandMessage[C]] {
	stream := make(chan CommandMessage[C])
	go func() {
		defer close(stream)
		for tm := range TextMessages(rx) {
			cmd, err := parser.Parse(tm.Text, botName)
			if err != nil {
				continue
			}
			stream <- CommandMessage[C]{Cx: tm.Cx, Command: cmd}
		}
	}()
	return stream
}
