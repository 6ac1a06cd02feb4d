// Package handlers contains the handlers of the tlxbot example bot.
package handlers

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/renbou/tlxdispatch/command"
	"github.com/renbou/tlxdispatch/dispatching"
	"github.com/renbou/tlxdispatch/dispatching/dialogue"
	"github.com/renbou/tlxdispatch/tlxlog"
)

// Commands are the commands understood by the bot.
var Commands = command.NewSet(
	command.Description{Name: "start", Description: "start talking to the bot"},
	command.Description{Name: "help", Description: "show this list"},
	command.Description{Name: "dice", Description: "throw a dice"},
	command.Description{Name: "cancel", Description: "forget the ongoing conversation"},
).IgnoreCase()

// cancelCommand is left to the registration dialogue, so that it's ordered
// with the rest of the chat's messages.
const cancelCommand = "cancel"

// intercepted parses the commands handled outside of the registration dialogue.
func intercepted(text, botName string) (command.Parsed, error) {
	p, err := Commands.Parse(text, botName)
	if err == nil && p.Name == cancelCommand {
		return command.Parsed{}, command.ErrNotCommand
	}
	return p, err
}

// Options configure the registered handlers.
type Options struct {
	BotName string
	// Storage keeps ongoing registrations, defaults to memory.
	Storage dialogue.Storage[int64, Registration]
	Logger  tlxlog.Logger
}

// Register registers all of the bot's handlers in the dispatcher.
func Register(d *dispatching.Dispatcher[command.Parsed], opts Options) {
	logger := tlxlog.WithDefault(opts.Logger)
	if opts.Storage == nil {
		opts.Storage = dialogue.NewInMemStorage[int64, Registration]()
	}

	c := &commands{logger: tlxlog.With(logger, "handler", "commands")}
	d.CommandsHandler(dispatching.ForEach(c.handle), command.ParserFunc[command.Parsed](intercepted), opts.BotName).
		MessagesHandler(dialogue.NewHandler(NewRegistration, inputOf(opts.BotName), &dialogue.HandlerOptions[Registration]{
			Storage: opts.Storage,
			Logger:  logger,
		})).
		EditedMessagesHandler(dispatching.HandlerFunc[*tgbotapi.Message](func(rx streamOfMessages) {
			edited(tlxlog.With(logger, "handler", "edited"), rx)
		}))
}

func reply(cx dispatching.UpdateWithCx[*tgbotapi.Message], text string) error {
	if _, err := cx.Bot.Send(tgbotapi.NewMessage(cx.Update.Chat.ID, text)); err != nil {
		return fmt.Errorf("sending reply to chat %d: %w", cx.Update.Chat.ID, err)
	}
	return nil
}

// inputOf returns the function extracting the registration dialogue's input from messages.
func inputOf(botName string) func(cx dialogue.In) Input {
	return func(cx dialogue.In) Input {
		in := Input{Text: cx.Update.Text}
		if p, err := Commands.Parse(in.Text, botName); err == nil && p.Name == cancelCommand {
			in.Cancel = true
		}
		return in
	}
}
