package fsm

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// WrapEvent adapts an error-returning callback to fsm.Callback. A returned error
// is stored on the event and surfaces from FSM.Event.
func WrapEvent(fn func(ctx context.Context, event *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		if err := fn(ctx, event); err != nil {
			event.Err = err
		}
	}
}

// Outcome classifies the error returned by FSM.Event.
type Outcome int

const (
	// Applied means the event ran its callbacks, with or without a state change.
	Applied Outcome = iota
	// Canceled means a before_ guard vetoed the event.
	Canceled
	// NotPermitted means the event has no transition from the current state.
	NotPermitted
	// Failed means a callback reported an error or the machine is unusable.
	Failed
)

// Classify maps the error of FSM.Event to an Outcome. A NoTransitionError without
// an embedded error is a successful self transition.
func Classify(err error) Outcome {
	if err == nil {
		return Applied
	}

	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		if noTransition.Err == nil {
			return Applied
		}
		return Failed
	}

	var canceled fsm.CanceledError
	if errors.As(err, &canceled) {
		return Canceled
	}

	var invalid fsm.InvalidEventError
	if errors.As(err, &invalid) {
		return NotPermitted
	}

	var unknown fsm.UnknownEventError
	if errors.As(err, &unknown) {
		return NotPermitted
	}

	return Failed
}
