package tracking

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/morphix/engine/scene"
)

// TrackingState is what the session reports for a target on a frame.
type TrackingState uint8

const (
	TrackingStateTracking TrackingState = iota
	TrackingStatePaused
	TrackingStateStopped
)

func (s TrackingState) String() string {
	switch s {
	case TrackingStateTracking:
		return "TRACKING"
	case TrackingStatePaused:
		return "PAUSED"
	case TrackingStateStopped:
		return "STOPPED"
	}
	return fmt.Sprintf("TrackingState(%d)", uint8(s))
}

func ParseTrackingState(s string) (TrackingState, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACKING":
		return TrackingStateTracking, nil
	case "PAUSED":
		return TrackingStatePaused, nil
	case "STOPPED":
		return TrackingStateStopped, nil
	}
	return 0, fmt.Errorf("unknown tracking state %q", s)
}

func (s TrackingState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *TrackingState) UnmarshalText(text []byte) error {
	parsed, err := ParseTrackingState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseTracking
	PhasePaused
	PhaseLost
)

func (p Phase) String() string {
	switch p {
	case PhaseTracking:
		return "tracking"
	case PhasePaused:
		return "paused"
	case PhaseLost:
		return "lost"
	}
	return "idle"
}

// TargetState is the per-target lifecycle. Only the types in this file
// implement it.
type TargetState interface {
	Phase() Phase
	targetState()
}

// Idle: no anchor, nothing seen yet (or seen and lost).
type Idle struct{}

// Tracking owns the one anchor of its target.
type Tracking struct {
	Anchor *scene.AnchorNode
}

// Paused: recognised but not yet tracked. No anchor.
type Paused struct{}

// Lost: the anchor was just released. Settles to Idle within the same frame.
type Lost struct{}

func (Idle) Phase() Phase     { return PhaseIdle }
func (Tracking) Phase() Phase { return PhaseTracking }
func (Paused) Phase() Phase   { return PhasePaused }
func (Lost) Phase() Phase     { return PhaseLost }

func (Idle) targetState()     {}
func (Tracking) targetState() {}
func (Paused) targetState()   {}
func (Lost) targetState()     {}
