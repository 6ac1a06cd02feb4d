package update

import "strconv"

// Kind is an enum of the Telegram Bot API update contents handled by the dispatcher.
type Kind int

const (
	KindMessage            Kind = iota // message
	KindEditedMessage                  // edited_message
	KindChannelPost                    // channel_post
	KindEditedChannelPost              // edited_channel_post
	KindInlineQuery                    // inline_query
	KindChosenInlineResult             // chosen_inline_result
	KindCallbackQuery                  // callback_query
	KindShippingQuery                  // shipping_query
	KindPreCheckoutQuery               // pre_checkout_query
	KindPoll                           // poll
	KindPollAnswer                     // poll_answer

	kindCount
)

var kindNames = [kindCount]string{
	KindMessage:            "message",
	KindEditedMessage:      "edited_message",
	KindChannelPost:        "channel_post",
	KindEditedChannelPost:  "edited_channel_post",
	KindInlineQuery:        "inline_query",
	KindChosenInlineResult: "chosen_inline_result",
	KindCallbackQuery:      "callback_query",
	KindShippingQuery:      "shipping_query",
	KindPreCheckoutQuery:   "pre_checkout_query",
	KindPoll:               "poll",
	KindPollAnswer:         "poll_answer",
}

// Kinds returns all known kinds in the order they are declared.
func Kinds() []Kind {
	kinds := make([]Kind, kindCount)
	for i := range kinds {
		kinds[i] = Kind(i)
	}
	return kinds
}

// Names returns the Bot API names of all known kinds, suitable for allowed_updates.
func Names() []string {
	names := make([]string, kindCount)
	copy(names, kindNames[:])
	return names
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return k >= 0 && k < kindCount
}

// IsMessage reports whether payloads of this kind are messages.
func (k Kind) IsMessage() bool {
	switch k {
	case KindMessage, KindEditedMessage, KindChannelPost, KindEditedChannelPost:
		return true
	}
	return false
}

func (k Kind) String() string {
	if !k.Valid() {
		return "Kind(" + strconv.FormatInt(int64(k), 10) + ")"
	}
	return kindNames[k]
}

// ParseKind parses the update type string by looking at the minimum amount
// of characters required to distinguish different update types. This relies on the
// update type string being correct, and as such this function should only be used
// on field names coming from the Telegram API. Use LookupKind for arbitrary input.
func ParseKind(s string) (Kind, bool) {
	if len(s) < len("poll") {
		return 0, false
	}

	switch s[0] {
	case 'm':
		if len(s) == len("message") {
			return KindMessage, true
		}
	case 'e':
		switch len(s) {
		case len("edited_message"):
			return KindEditedMessage, true
		case len("edited_channel_post"):
			return KindEditedChannelPost, true
		}
	case 'c':
		switch len(s) {
		case len("channel_post"):
			return KindChannelPost, true
		case len("chosen_inline_result"):
			return KindChosenInlineResult, true
		case len("callback_query"):
			return KindCallbackQuery, true
		}
	case 'i':
		if len(s) == len("inline_query") {
			return KindInlineQuery, true
		}
	case 's':
		if len(s) == len("shipping_query") {
			return KindShippingQuery, true
		}
	case 'p':
		switch len(s) {
		case len("pre_checkout_query"):
			return KindPreCheckoutQuery, true
		case len("poll"):
			return KindPoll, true
		case len("poll_answer"):
			return KindPollAnswer, true
		}
	}
	return 0, false
}

// LookupKind is the strict version of ParseKind.
func LookupKind(s string) (Kind, bool) {
	if k, ok := ParseKind(s); ok && kindNames[k] == s {
		return k, true
	}
	return 0, false
}
