package handlers

import (
	"context"
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/renbou/tlxdispatch/dispatching/dialogue"
)

// Registration is a dialogue asking the user's full name, age and location.
type Registration struct {
	State RegistrationState
}

// RegistrationState is one of ReceiveFullName, ReceiveAge and ReceiveLocation.
type RegistrationState interface {
	registrationState()
}

type ReceiveFullName struct{}

type ReceiveAge struct {
	FullName string
}

type ReceiveLocation struct {
	FullName string
	Age      int
}

func (ReceiveFullName) registrationState() {}
func (ReceiveAge) registrationState()      {}
func (ReceiveLocation) registrationState() {}

// Input is what the registration dialogue reacts to.
type Input struct {
	Text string
	// Cancel is set when the message is the cancel command.
	Cancel bool
}

// registrationJSON is the stored form of a Registration.
type registrationJSON struct {
	Stage    string `json:"stage"`
	FullName string `json:"full_name,omitempty"`
	Age      int    `json:"age,omitempty"`
}

const (
	stageFullName = "full_name"
	stageAge      = "age"
	stageLocation = "location"
)

func (r Registration) MarshalJSON() ([]byte, error) {
	var v registrationJSON
	switch s := r.State.(type) {
	case ReceiveAge:
		v = registrationJSON{Stage: stageAge, FullName: s.FullName}
	case ReceiveLocation:
		v = registrationJSON{Stage: stageLocation, FullName: s.FullName, Age: s.Age}
	default:
		v = registrationJSON{Stage: stageFullName}
	}
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(v)
}

func (r *Registration) UnmarshalJSON(data []byte) error {
	var v registrationJSON
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &v); err != nil {
		return err
	}

	switch v.Stage {
	case stageFullName:
		r.State = ReceiveFullName{}
	case stageAge:
		r.State = ReceiveAge{FullName: v.FullName}
	case stageLocation:
		r.State = ReceiveLocation{FullName: v.FullName, Age: v.Age}
	default:
		return fmt.Errorf("unknown registration stage %q", v.Stage)
	}
	return nil
}

func NewRegistration() Registration {
	return Registration{State: ReceiveFullName{}}
}

func (r Registration) React(ctx context.Context, cx dialogue.In, in Input) (dialogue.Stage[Registration], error) {
	if in.Cancel {
		if err := reply(cx, "Forgot everything you told me."); err != nil {
			return dialogue.Stage[Registration]{}, err
		}
		return dialogue.Exit[Registration](), nil
	}
	if in.Text == "" {
		if err := reply(cx, "Send me a text message, please."); err != nil {
			return dialogue.Stage[Registration]{}, err
		}
		return dialogue.Next(r), nil
	}

	switch s := r.State.(type) {
	case ReceiveAge:
		return dialogue.Delegate[Registration, Input](ctx, s, cx, in)
	case ReceiveLocation:
		return dialogue.Delegate[Registration, Input](ctx, s, cx, in)
	default:
		return dialogue.Delegate[Registration, Input](ctx, ReceiveFullName{}, cx, in)
	}
}

func (ReceiveFullName) React(_ context.Context, cx dialogue.In, in Input) (dialogue.Stage[Registration], error) {
	if err := reply(cx, "How old are you?"); err != nil {
		return dialogue.Stage[Registration]{}, err
	}
	return dialogue.Next(Registration{State: ReceiveAge{FullName: in.Text}}), nil
}

func (s ReceiveAge) React(_ context.Context, cx dialogue.In, in Input) (dialogue.Stage[Registration], error) {
	age, err := strconv.Atoi(in.Text)
	if err != nil || age <= 0 {
		if err := reply(cx, "Send me a number."); err != nil {
			return dialogue.Stage[Registration]{}, err
		}
		return dialogue.Next(Registration{State: s}), nil
	}

	if err := reply(cx, "Where are you from?"); err != nil {
		return dialogue.Stage[Registration]{}, err
	}
	return dialogue.Next(Registration{State: ReceiveLocation{FullName: s.FullName, Age: age}}), nil
}

func (s ReceiveLocation) React(_ context.Context, cx dialogue.In, in Input) (dialogue.Stage[Registration], error) {
	summary := fmt.Sprintf("Full name: %s\nAge: %d\nLocation: %s", s.FullName, s.Age, in.Text)
	if err := reply(cx, summary); err != nil {
		return dialogue.Stage[Registration]{}, err
	}
	return dialogue.Exit[Registration](), nil
}
