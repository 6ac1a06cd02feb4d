package handlers

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/renbou/tlxdispatch/command"
	"github.com/renbou/tlxdispatch/dispatching"
	"github.com/renbou/tlxdispatch/streams"
	"github.com/renbou/tlxdispatch/tlxlog"
)

const greeting = "Hi! Tell me your full name and I'll register you. Send /help to see what else I can do."

type streamOfMessages = streams.Stream[dispatching.UpdateWithCx[*tgbotapi.Message]]

type commands struct {
	logger tlxlog.Logger
}

func (c *commands) handle(cx dispatching.UpdateWithCx[dispatching.Command[command.Parsed]]) {
	msg := cx.Update.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	in := dispatching.UpdateWithCx[*tgbotapi.Message]{Bot: cx.Bot, Update: msg}

	var err error
	switch name := cx.Update.Command.Name; name {
	case "start":
		err = reply(in, greeting)
	case "help":
		err = reply(in, Commands.Descriptions())
	case "dice":
		_, err = cx.Bot.Send(tgbotapi.NewDice(msg.Chat.ID))
	}
	if err != nil {
		c.logger.Error(err, "Failed to handle command", "command", cx.Update.Command.Name, "chat_id", msg.Chat.ID)
	}
}

// edited answers edited text messages.
func edited(logger tlxlog.Logger, rx streamOfMessages) {
	for tm := range dispatching.TextMessages(rx) {
		if err := reply(tm.Cx, "You edited your message to: "+tm.Text); err != nil {
			logger.Error(err, "Failed to answer edited message")
		}
	}
}
