package guard

import (
	"errors"
	"time"
)

// State is the lifecycle position of a guarded load.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateLoaded  State = "loaded"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid guard state transition")

// ValidTransitions defines allowed state transitions.
// A key change moves any state back to idle.
var ValidTransitions = map[State][]State{
	StateIdle:    {StateLoading},
	StateLoading: {StateLoaded, StateIdle},
	StateLoaded:  {StateLoading, StateIdle},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	for _, target := range ValidTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// Transition represents a state change with metadata.
type Transition struct {
	From      State
	To        State
	Key       string
	Reason    string
	Timestamp time.Time
}

func newTransition(from, to State, key, reason string) Transition {
	return Transition{From: from, To: to, Key: key, Reason: reason, Timestamp: time.Now()}
}

// StateDescription returns a human-readable description of a state.
func StateDescription(s State) string {
	switch s {
	case StateIdle:
		return "Idle - nothing requested for the current key"
	case StateLoading:
		return "Loading - a fetch is in flight"
	case StateLoaded:
		return "Loaded - last fetch finished or was released"
	default:
		return "Unknown state"
	}
}
