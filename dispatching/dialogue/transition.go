// Package dialogue implements dialogues as finite state machines driven by incoming messages.
//
// A dialogue is a value of some type D, usually a struct holding one of several state
// variants. On every message the dialogue reacts by transitioning into the next state or
// by exiting, and each variant can be handled by its own subtransition.
package dialogue

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/renbou/tlxdispatch/dispatching"
)

// Stage is the outcome of a transition: either the next state of the dialogue or its end.
type Stage[D any] struct {
	state D
	exit  bool
}

// Next continues the dialogue in the given state.
func Next[D any](d D) Stage[D] {
	return Stage[D]{state: d}
}

// Exit ends the dialogue.
func Exit[D any]() Stage[D] {
	return Stage[D]{exit: true}
}

// State returns the next state, ok is false if the dialogue has ended.
func (s Stage[D]) State() (d D, ok bool) {
	return s.state, !s.exit
}

func (s Stage[D]) IsExit() bool {
	return s.exit
}

// In is the input of transitions.
type In = dispatching.UpdateWithCx[*tgbotapi.Message]

// Transition is implemented by dialogues. React turns the dialogue into its next stage
// depending on the received message. aux is provided by the caller and passed on to
// subtransitions, it usually holds whatever was extracted from the message beforehand.
//
// When React fails, the returned stage must be ignored.
type Transition[D, A any] interface {
	React(ctx context.Context, cx In, aux A) (Stage[D], error)
}

// Subtransition is implemented by a single state of the dialogue D. It is the same as Transition,
// except that the stage is one of the whole dialogue, so a state can transition into any other one.
// D being constrained to a Transition with the same aux type binds the state to the dialogue it
// belongs to.
type Subtransition[D Transition[D, A], A any] interface {
	React(ctx context.Context, cx In, aux A) (Stage[D], error)
}

// Delegate runs the subtransition of a dialogue's state, it is meant to be used by the
// dialogue's React after it selects the current state.
func Delegate[D Transition[D, A], A any](ctx context.Context, s Subtransition[D, A], cx In, aux A) (Stage[D], error) {
	stage, err := s.React(ctx, cx, aux)
	if err != nil {
		return Stage[D]{}, err
	}
	return stage, nil
}
