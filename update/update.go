// Package update defines the tagged union of Telegram updates moved around by the
// dispatcher. Payloads are the go-telegram-bot-api types, the dispatcher only ever
// looks at the Kind discriminant and, for messages, the text.
package update

import (
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var (
	// ErrUnsupportedKind is returned when an update doesn't carry any of the known kinds.
	ErrUnsupportedKind = errors.New("update carries no supported kind")
	// ErrPayloadMismatch is returned when the payload type doesn't correspond to the kind.
	ErrPayloadMismatch = errors.New("update payload doesn't match its kind")
)

// Update is a single update with exactly one payload, identified by Kind.
// The zero value is invalid, updates should be created using New or FromTgBotAPI.
type Update struct {
	ID   int
	Kind Kind

	payload any
}

// New creates an update of the given kind, validating that the payload is
// a non-nil pointer to the go-telegram-bot-api type corresponding to the kind.
func New(id int, kind Kind, payload any) (Update, error) {
	var ok bool
	switch kind {
	case KindMessage, KindEditedMessage, KindChannelPost, KindEditedChannelPost:
		ok = nonNil[tgbotapi.Message](payload)
	case KindInlineQuery:
		ok = nonNil[tgbotapi.InlineQuery](payload)
	case KindChosenInlineResult:
		ok = nonNil[tgbotapi.ChosenInlineResult](payload)
	case KindCallbackQuery:
		ok = nonNil[tgbotapi.CallbackQuery](payload)
	case KindShippingQuery:
		ok = nonNil[tgbotapi.ShippingQuery](payload)
	case KindPreCheckoutQuery:
		ok = nonNil[tgbotapi.PreCheckoutQuery](payload)
	case KindPoll:
		ok = nonNil[tgbotapi.Poll](payload)
	case KindPollAnswer:
		ok = nonNil[tgbotapi.PollAnswer](payload)
	default:
		return Update{}, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}

	if !ok {
		return Update{}, fmt.Errorf("%w: %T for %s", ErrPayloadMismatch, payload, kind)
	}
	return Update{ID: id, Kind: kind, payload: payload}, nil
}

func nonNil[T any](payload any) bool {
	p, ok := payload.(*T)
	return ok && p != nil
}

// FromTgBotAPI classifies a tgbotapi.Update by the first populated field.
func FromTgBotAPI(u tgbotapi.Update) (Update, error) {
	var (
		kind    Kind
		payload any
	)
	switch {
	case u.Message != nil:
		kind, payload = KindMessage, u.Message
	case u.EditedMessage != nil:
		kind, payload = KindEditedMessage, u.EditedMessage
	case u.ChannelPost != nil:
		kind, payload = KindChannelPost, u.ChannelPost
	case u.EditedChannelPost != nil:
		kind, payload = KindEditedChannelPost, u.EditedChannelPost
	case u.InlineQuery != nil:
		kind, payload = KindInlineQuery, u.InlineQuery
	case u.ChosenInlineResult != nil:
		kind, payload = KindChosenInlineResult, u.ChosenInlineResult
	case u.CallbackQuery != nil:
		kind, payload = KindCallbackQuery, u.CallbackQuery
	case u.ShippingQuery != nil:
		kind, payload = KindShippingQuery, u.ShippingQuery
	case u.PreCheckoutQuery != nil:
		kind, payload = KindPreCheckoutQuery, u.PreCheckoutQuery
	case u.Poll != nil:
		kind, payload = KindPoll, u.Poll
	case u.PollAnswer != nil:
		kind, payload = KindPollAnswer, u.PollAnswer
	default:
		return Update{}, fmt.Errorf("%w: update %d", ErrUnsupportedKind, u.UpdateID)
	}
	return Update{ID: u.UpdateID, Kind: kind, payload: payload}, nil
}

// Payload returns the raw payload of the update.
func (u Update) Payload() any {
	return u.payload
}

// Message returns the payload of any of the message-shaped kinds.
func (u Update) Message() (*tgbotapi.Message, bool) {
	if !u.Kind.IsMessage() {
		return nil, false
	}
	m, ok := u.payload.(*tgbotapi.Message)
	return m, ok
}

// Text returns the text of message-shaped updates. Messages without text
// (stickers, photos, service messages) report false.
func (u Update) Text() (string, bool) {
	if m, ok := u.Message(); ok && m.Text != "" {
		return m.Text, true
	}
	return "", false
}

func payloadOf[T any](u Update, kind Kind) (*T, bool) {
	if u.Kind != kind {
		return nil, false
	}
	p, ok := u.payload.(*T)
	return p, ok
}

// InlineQuery returns the payload of KindInlineQuery updates.
func (u Update) InlineQuery() (*tgbotapi.InlineQuery, bool) {
	return payloadOf[tgbotapi.InlineQuery](u, KindInlineQuery)
}

// ChosenInlineResult returns the payload of KindChosenInlineResult updates.
func (u Update) ChosenInlineResult() (*tgbotapi.ChosenInlineResult, bool) {
	return payloadOf[tgbotapi.ChosenInlineResult](u, KindChosenInlineResult)
}

// CallbackQuery returns the payload of KindCallbackQuery updates.
func (u Update) CallbackQuery() (*tgbotapi.CallbackQuery, bool) {
	return payloadOf[tgbotapi.CallbackQuery](u, KindCallbackQuery)
}

// ShippingQuery returns the payload of KindShippingQuery updates.
func (u Update) ShippingQuery() (*tgbotapi.ShippingQuery, bool) {
	return payloadOf[tgbotapi.ShippingQuery](u, KindShippingQuery)
}

// PreCheckoutQuery returns the payload of KindPreCheckoutQuery updates.
func (u Update) PreCheckoutQuery() (*tgbotapi.PreCheckoutQuery, bool) {
	return payloadOf[tgbotapi.PreCheckoutQuery](u, KindPreCheckoutQuery)
}

// Poll returns the payload of KindPoll updates.
func (u Update) Poll() (*tgbotapi.Poll, bool) {
	return payloadOf[tgbotapi.Poll](u, KindPoll)
}

// PollAnswer returns the payload of KindPollAnswer updates.
func (u Update) PollAnswer() (*tgbotapi.PollAnswer, bool) {
	return payloadOf[tgbotapi.PollAnswer](u, KindPollAnswer)
}

// TgBotAPI converts the update back into the go-telegram-bot-api representation.
func (u Update) TgBotAPI() tgbotapi.Update {
	out := tgbotapi.Update{UpdateID: u.ID}
	switch p := u.payload.(type) {
	case *tgbotapi.Message:
		switch u.Kind {
		case KindMessage:
			out.Message = p
		case KindEditedMessage:
			out.EditedMessage = p
		case KindChannelPost:
			out.ChannelPost = p
		case KindEditedChannelPost:
			out.EditedChannelPost = p
		}
	case *tgbotapi.InlineQuery:
		out.InlineQuery = p
	case *tgbotapi.ChosenInlineResult:
		out.ChosenInlineResult = p
	case *tgbotapi.CallbackQuery:
		out.CallbackQuery = p
	case *tgbotapi.ShippingQuery:
		out.ShippingQuery = p
	case *tgbotapi.PreCheckoutQuery:
		out.PreCheckoutQuery = p
	case *tgbotapi.Poll:
		out.Poll = p
	case *tgbotapi.PollAnswer:
		out.PollAnswer = p
	}
	return out
}
