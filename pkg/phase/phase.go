// Package phase tracks the connection lifecycle of a whiteboard session and
// the playback lifecycle of a replay.
package phase

import (
	"fmt"

	"github.com/whiteboard-sdk/whiteboard.go/pkg/constants"
)

// Phase is the connection state of a session. Exactly one is active at a
// time; Disconnected is terminal.
type Phase int

const (
	Unknown Phase = iota
	Connecting
	Connected
	Reconnecting
	Disconnecting
	Disconnected
)

var phaseNames = map[Phase]string{
	Unknown:       "unknown",
	Connecting:    "connecting",
	Connected:     "connected",
	Reconnecting:  "reconnecting",
	Disconnecting: "disconnecting",
	Disconnected:  "disconnected",
}

func (p Phase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Parse maps the engine's phase name back to a Phase.
func Parse(s string) (Phase, error) {
	for p, name := range phaseNames {
		if name == s && p != Unknown {
			return p, nil
		}
	}
	return Unknown, fmt.Errorf("%w: unknown phase %q", constants.ErrInvalidTransition, s)
}

// Terminating reports whether the session is on its way out. No new work
// is accepted once a session is terminating.
func (p Phase) Terminating() bool {
	return p == Disconnecting || p == Disconnected
}

func (p Phase) TransitionTo(next Phase) (Phase, error) {
	switch p {
	case Connecting:
		switch next {
		case Connected, Disconnecting, Disconnected:
			return next, nil
		}
	case Connected:
		switch next {
		case Reconnecting, Disconnecting:
			return next, nil
		}
	case Reconnecting:
		switch next {
		case Connected, Disconnecting, Disconnected:
			return next, nil
		}
	case Disconnecting:
		if next == Disconnected {
			return next, nil
		}
	}

	return Unknown, fmt.Errorf("%w: from %v to %v", constants.ErrInvalidTransition, p, next)
}
