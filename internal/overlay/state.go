package overlay

import (
	"fmt"

	"golang.org/x/net/html"
)

// State is the lifecycle position of one overlay.
type State uint8

const (
	StateNone State = iota
	StatePending
	StateTranslated
	StateErrored
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateTranslated:
		return "translated"
	case StateErrored:
		return "errored"
	default:
		return "none"
	}
}

type event uint8

const (
	eventStart event = iota
	eventSucceed
	eventFail
	eventDiscard
	eventTeardown
)

func (e event) String() string {
	return [...]string{"start", "succeed", "fail", "discard", "teardown"}[e]
}

var transitions = map[State]map[event]State{
	StateNone: {
		eventStart: StatePending,
	},
	StatePending: {
		eventSucceed:  StateTranslated,
		eventFail:     StateErrored,
		eventDiscard:  StateNone,
		eventTeardown: StateNone,
	},
	StateTranslated: {
		eventTeardown: StateNone,
	},
	StateErrored: {
		eventTeardown: StateNone,
	},
}

// states tracks the overlays the engine created. An overlay back in StateNone is
// forgotten. Callers hold the engine lock.
type states struct {
	current map[*html.Node]State
}

func newStates() *states {
	return &states{current: map[*html.Node]State{}}
}

func (s *states) get(ov *html.Node) State {
	return s.current[ov]
}

func (s *states) fire(ov *html.Node, ev event) (State, error) {
	from := s.current[ov]
	to, ok := transitions[from][ev]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, from)
	}
	if to == StateNone {
		delete(s.current, ov)
	} else {
		s.current[ov] = to
	}
	return to, nil
}
