package dialogue

import (
	"context"

	"github.com/renbou/tlxdispatch/streams"
	"github.com/renbou/tlxdispatch/tlxlog"
)

// HandlerOptions configure a dialogue Handler.
type HandlerOptions[D any] struct {
	// Storage of dialogues keyed by chat ID, defaults to an InMemStorage.
	Storage Storage[int64, D]
	// Context passed to transitions and the storage, defaults to context.Background().
	Context context.Context
	Logger  tlxlog.Logger
}

// Handler drives a dialogue per chat. It is a dispatching.Handler of messages which loads
// the chat's dialogue, or starts a new one, reacts to the message and saves the next state.
// Dialogues which exit are removed, so the next message in the chat starts a new one.
// Messages are handled one at a time, so a dialogue never reacts to two messages at once.
type Handler[D Transition[D, A], A any] struct {
	initial func() D
	aux     func(cx In) A
	storage Storage[int64, D]
	ctx     context.Context
	logger  tlxlog.Logger
}

// NewHandler creates a dialogue handler. initial is called to create new dialogues and aux
// to extract the auxiliary value passed to transitions from every message, nil aux always passes
// the zero value.
func NewHandler[D Transition[D, A], A any](initial func() D, aux func(cx In) A, opts *HandlerOptions[D]) *Handler[D, A] {
	if opts == nil {
		opts = &HandlerOptions[D]{}
	}

	h := &Handler[D, A]{
		initial: initial,
		aux:     aux,
		storage: opts.Storage,
		ctx:     opts.Context,
		logger:  tlxlog.With(tlxlog.WithDefault(opts.Logger), "component", "dialogue"),
	}
	if h.storage == nil {
		h.storage = NewInMemStorage[int64, D]()
	}
	if h.ctx == nil {
		h.ctx = context.Background()
	}
	if h.aux == nil {
		h.aux = func(In) (zero A) { return }
	}
	return h
}

func (h *Handler[D, A]) Handle(rx streams.Stream[In]) {
	for cx := range rx {
		h.react(cx)
	}
}

func (h *Handler[D, A]) react(cx In) {
	if cx.Update == nil || cx.Update.Chat == nil {
		h.logger.Info("Skipping message without a chat")
		return
	}

	chatID := cx.Update.Chat.ID
	logger := tlxlog.With(h.logger, "chat_id", chatID)

	d, found, err := h.storage.Get(h.ctx, chatID)
	if err != nil {
		logger.Error(err, "Failed to load dialogue")
		return
	}
	if !found {
		d = h.initial()
	}

	stage, err := d.React(h.ctx, cx, h.aux(cx))
	if err != nil {
		logger.Error(err, "Dialogue transition failed, keeping the previous state")
		return
	}

	if next, ok := stage.State(); ok {
		err = h.storage.Update(h.ctx, chatID, next)
	} else {
		err = h.storage.Remove(h.ctx, chatID)
	}
	if err != nil {
		logger.Error(err, "Failed to save dialogue")
	}
}
