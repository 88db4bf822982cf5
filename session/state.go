package session

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned for a state change outside the lifecycle.
var ErrInvalidTransition = errors.New("invalid state transition")

// State is the controller's connection lifecycle state.
type State int

const (
	Idle State = iota
	Connecting
	Authorizing
	Connected
	Disconnecting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Authorizing:
		return "authorizing"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var transitions = map[State][]State{
	Idle:          {Connecting},
	Connecting:    {Authorizing, Idle},
	Authorizing:   {Connected, Idle, Disconnecting},
	Connected:     {Disconnecting, Idle},
	Disconnecting: {Idle},
}

// CanTransition reports whether from → to is part of the lifecycle.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to State) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
