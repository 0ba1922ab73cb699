package phase

import (
	"fmt"

	"github.com/whiteboard-sdk/whiteboard.go/pkg/constants"
)

// PlayerPhase is the playback state of a replay.
type PlayerPhase int

const (
	PlayerUnknown PlayerPhase = iota
	WaitingFirstFrame
	Playing
	Pause
	Buffering
	Ended
	Stopped
)

var playerPhaseNames = map[PlayerPhase]string{
	PlayerUnknown:     "unknown",
	WaitingFirstFrame: "waitingFirstFrame",
	Playing:           "playing",
	Pause:             "pause",
	Buffering:         "buffering",
	Ended:             "ended",
	Stopped:           "stopped",
}

func (p PlayerPhase) String() string {
	if s, ok := playerPhaseNames[p]; ok {
		return s
	}
	return fmt.Sprintf("playerPhase(%d)", int(p))
}

func ParsePlayer(s string) (PlayerPhase, error) {
	for p, name := range playerPhaseNames {
		if name == s && p != PlayerUnknown {
			return p, nil
		}
	}
	return PlayerUnknown, fmt.Errorf("%w: unknown player phase %q", constants.ErrInvalidTransition, s)
}

func (p PlayerPhase) TransitionTo(next PlayerPhase) (PlayerPhase, error) {
	if p == next && p != Stopped {
		return next, nil
	}
	switch p {
	case WaitingFirstFrame:
		switch next {
		case Playing, Pause, Buffering, Stopped:
			return next, nil
		}
	case Playing:
		switch next {
		case Pause, Buffering, Ended, Stopped:
			return next, nil
		}
	case Pause:
		switch next {
		case Playing, Buffering, Ended, Stopped:
			return next, nil
		}
	case Buffering:
		switch next {
		case Playing, Pause, Stopped:
			return next, nil
		}
	case Ended:
		switch next {
		case Playing, Pause, Stopped:
			return next, nil
		}
	}

	return PlayerUnknown, fmt.Errorf("%w: from %v to %v", constants.ErrInvalidTransition, p, next)
}
