package command

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Description describes a single command accepted by a Set.
type Description struct {
	Name        string
	Description string
}

// Set is a Parser which accepts only a fixed set of commands.
type Set struct {
	descriptions []Description
	known        map[string]bool
	// caseless makes command names match regardless of case
	caseless bool
}

// NewSet creates a set of the given commands. Leading slashes in names are ignored.
func NewSet(commands ...Description) *Set {
	s := &Set{
		descriptions: make([]Description, 0, len(commands)),
		known:        make(map[string]bool, len(commands)),
	}
	for _, c := range commands {
		c.Name = strings.TrimPrefix(c.Name, "/")
		if c.Name == "" || s.known[c.Name] {
			continue
		}
		s.known[c.Name] = true
		s.descriptions = append(s.descriptions, c)
	}
	return s
}

// IgnoreCase makes the set match command names case-insensitively.
func (s *Set) IgnoreCase() *Set {
	known := make(map[string]bool, len(s.known))
	for name := range s.known {
		known[strings.ToLower(name)] = true
	}
	s.known, s.caseless = known, true
	return s
}

// Parse parses the text using the default grammar and checks that the command is known.
func (s *Set) Parse(text, botName string) (Parsed, error) {
	p, err := Parse(text, botName)
	if err != nil {
		return Parsed{}, err
	}

	name := p.Name
	if s.caseless {
		name = strings.ToLower(name)
	}
	if !s.known[name] {
		return Parsed{}, fmt.Errorf("%w: /%s", ErrUnknownCommand, p.Name)
	}
	p.Name = name
	return p, nil
}

// Descriptions returns a human-readable list of the commands, one per line.
func (s *Set) Descriptions() string {
	var sb strings.Builder
	for i, d := range s.descriptions {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteByte('/')
		sb.WriteString(d.Name)
		if d.Description != "" {
			sb.WriteString(" - ")
			sb.WriteString(d.Description)
		}
	}
	return sb.String()
}

// BotCommands returns the commands in the form accepted by setMyCommands.
func (s *Set) BotCommands() []tgbotapi.BotCommand {
	commands := make([]tgbotapi.BotCommand, len(s.descriptions))
	for i, d := range s.descriptions {
		commands[i] = tgbotapi.BotCommand{Command: d.Name, Description: d.Description}
	}
	return commands
}
