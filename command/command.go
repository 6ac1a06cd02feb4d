// Package command parses bot commands of the form "/name@botname args".
// The dispatcher doesn't know the grammar, it only calls a Parser, so any
// Parser implementation can be plugged into it.
package command

import (
	"errors"
	"strings"
	"unicode"
)

var (
	// ErrNotCommand is returned when the text isn't a command at all.
	ErrNotCommand = errors.New("text is not a command")
	// ErrWrongBotName is returned when the command is addressed to another bot.
	ErrWrongBotName = errors.New("command is addressed to another bot")
	// ErrUnknownCommand is returned by a Set when the command isn't registered.
	ErrUnknownCommand = errors.New("unknown command")
)

// Parser parses text into some command type C. Parsing must be pure: the
// dispatcher calls it on every text message when commands are being intercepted.
type Parser[C any] interface {
	Parse(text, botName string) (C, error)
}

// ParserFunc allows using ordinary functions as a Parser.
type ParserFunc[C any] func(text, botName string) (C, error)

func (f ParserFunc[C]) Parse(text, botName string) (C, error) {
	return f(text, botName)
}

// Parsed is a command as it was written by the user.
type Parsed struct {
	// Name of the command without the leading slash and the bot mention.
	Name string
	// Args is everything after the command, with surrounding whitespace trimmed.
	Args string
}

// Fields splits the arguments around whitespace.
func (p Parsed) Fields() []string {
	return strings.Fields(p.Args)
}

// Parse parses text as "/name[@botname] [args]". Commands mentioning a bot are
// only accepted if the mention matches botName (compared case-insensitively,
// as Telegram usernames are). An empty botName accepts any mention.
func Parse(text, botName string) (Parsed, error) {
	if len(text) < 2 || text[0] != '/' {
		return Parsed{}, ErrNotCommand
	}

	cmd, args := text[1:], ""
	if cmdEnd := strings.IndexFunc(cmd, unicode.IsSpace); cmdEnd != -1 {
		cmd, args = cmd[:cmdEnd], strings.TrimSpace(cmd[cmdEnd:])
	}
	if mention := strings.IndexByte(cmd, '@'); mention != -1 {
		addressee := cmd[mention+1:]
		cmd = cmd[:mention]
		if botName != "" && !strings.EqualFold(addressee, strings.TrimPrefix(botName, "@")) {
			return Parsed{}, ErrWrongBotName
		}
	}

	if cmd == "" {
		return Parsed{}, ErrNotCommand
	}
	return Parsed{Name: cmd, Args: args}, nil
}

// Default is Parse usable as a Parser.
var Default Parser[Parsed] = ParserFunc[Parsed](Parse)
