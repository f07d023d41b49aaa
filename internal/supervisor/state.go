package supervisor

import (
	"fmt"
	"strings"
)

// State is the backend's readiness state.
type State int32

const (
	NotStarted State = iota
	Starting
	Ready
	Failed
	Stopped
)

var stateNames = [...]string{
	NotStarted: "not_started",
	Starting:   "starting",
	Ready:      "ready",
	Failed:     "failed",
	Stopped:    "stopped",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText renders the state name in JSON and logs.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses a state name, for clients decoding Status.
func (s *State) UnmarshalText(b []byte) error {
	name := strings.ToLower(string(b))
	for i, n := range stateNames {
		if n == name {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", string(b))
}

// canTransition encodes the lifecycle: NotStarted -> Starting -> Ready,
// Starting/Ready -> Failed, and anything but Stopped -> Stopped.
func canTransition(from, to State) bool {
	switch to {
	case Starting:
		return from == NotStarted
	case Ready:
		return from == Starting
	case Failed:
		return from == Starting || from == Ready
	case Stopped:
		return from != Stopped
	default:
		return false
	}
}
