package streams

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	jsoniter "github.com/json-iterator/go"
	"github.com/renbou/tlxdispatch/internal/api"
	"github.com/renbou/tlxdispatch/update"
)

// updateDecoder decodes the raw content of an update described by the info.
type updateDecoder func(info api.UpdateInfo, raw []byte) (update.Update, error)

// decodeUpdate is the updateDecoder which decodes update contents into go-telegram-bot-api types.
func decodeUpdate(info api.UpdateInfo, raw []byte) (update.Update, error) {
	// Decode straight into the payload instead of a whole tgbotapi.Update
	var payload any
	switch info.Kind {
	case update.KindMessage, update.KindEditedMessage, update.KindChannelPost, update.KindEditedChannelPost:
		payload = new(tgbotapi.Message)
	case update.KindInlineQuery:
		payload = new(tgbotapi.InlineQuery)
	case update.KindChosenInlineResult:
		payload = new(tgbotapi.ChosenInlineResult)
	case update.KindCallbackQuery:
		payload = new(tgbotapi.CallbackQuery)
	case update.KindShippingQuery:
		payload = new(tgbotapi.ShippingQuery)
	case update.KindPreCheckoutQuery:
		payload = new(tgbotapi.PreCheckoutQuery)
	case update.KindPoll:
		payload = new(tgbotapi.Poll)
	case update.KindPollAnswer:
		payload = new(tgbotapi.PollAnswer)
	default:
		return update.Update{}, fmt.Errorf(
			"cannot decode update %d of unknown kind %q: %w", info.ID, info.Name, update.ErrUnsupportedKind,
		)
	}

	if err := jsoniter.ConfigFastest.Unmarshal(raw, payload); err != nil {
		return update.Update{}, fmt.Errorf("decoding %s update %d: %w", info.Kind, info.ID, err)
	}
	return update.New(info.ID, info.Kind, payload)
}
