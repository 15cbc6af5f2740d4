package session

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/spaghettifunk/morphix/engine/math"
	"github.com/spaghettifunk/morphix/engine/tracking"
)

// Script is a recorded or hand-written stream of camera frames.
//
//	name: walk-past
//	frames:
//	  - reports:
//	      - {target: scanned_image, state: PAUSED}
//	  - skip: true                # no camera image ready
//	  - repeat: 3
//	    reports:
//	      - target: scanned_image
//	        state: TRACKING
//	        position: [0, 0, -0.5]
//	        rotation: [0, 0, 0, 1]
//	  - reports:
//	      - {target: scanned_image, state: TRACKING, yaw: 45}   # degrees about +Y
type Script struct {
	Name   string
	Steps  []ScriptStep
	Loop   bool
	Jitter float32
}

// ScriptStep is one camera tick. Skip steps produce no frame.
type ScriptStep struct {
	Skip    bool
	Reports []tracking.TrackingReport
}

type scriptFile struct {
	Name   string      `yaml:"name"`
	Loop   bool        `yaml:"loop"`
	Jitter float32     `yaml:"jitter"`
	Frames []frameFile `yaml:"frames"`
}

type frameFile struct {
	Skip    bool         `yaml:"skip"`
	Repeat  int          `yaml:"repeat"`
	Reports []reportFile `yaml:"reports"`
}

type reportFile struct {
	Target   string    `yaml:"target"`
	State    string    `yaml:"state"`
	Position []float32 `yaml:"position"`
	Rotation []float32 `yaml:"rotation"`
	Yaw      *float32  `yaml:"yaw"`
}

// ParseScript reads a YAML script. Repeats are expanded.
func ParseScript(data []byte) (*Script, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var raw scriptFile
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("script is empty")
		}
		return nil, fmt.Errorf("parsing script: %w", err)
	}
	if raw.Jitter < 0 {
		return nil, fmt.Errorf("script jitter must not be negative")
	}

	script := &Script{Name: raw.Name, Loop: raw.Loop, Jitter: raw.Jitter}
	for i, f := range raw.Frames {
		step := ScriptStep{Skip: f.Skip}
		if f.Skip && len(f.Reports) > 0 {
			return nil, fmt.Errorf("frame %d: a skipped frame cannot carry reports", i)
		}
		for j, r := range f.Reports {
			rep, err := r.toReport()
			if err != nil {
				return nil, fmt.Errorf("frame %d report %d: %w", i, j, err)
			}
			step.Reports = append(step.Reports, rep)
		}
		repeat := f.Repeat
		if repeat < 0 {
			return nil, fmt.Errorf("frame %d: repeat must not be negative", i)
		}
		if repeat == 0 {
			repeat = 1
		}
		for n := 0; n < repeat; n++ {
			script.Steps = append(script.Steps, step)
		}
	}
	if len(script.Steps) == 0 {
		return nil, fmt.Errorf("script %q has no frames", script.Name)
	}
	return script, nil
}

func (r reportFile) toReport() (tracking.TrackingReport, error) {
	if r.Target == "" {
		return tracking.TrackingReport{}, fmt.Errorf("missing target")
	}
	state, err := tracking.ParseTrackingState(r.State)
	if err != nil {
		return tracking.TrackingReport{}, err
	}
	pose := math.NewPoseIdentity()
	switch len(r.Position) {
	case 0:
	case 3:
		pose.Position = math.NewVec3(r.Position[0], r.Position[1], r.Position[2])
	default:
		return tracking.TrackingReport{}, fmt.Errorf("position needs 3 components, got %d", len(r.Position))
	}
	switch len(r.Rotation) {
	case 0:
	case 4:
		// Kept as written; a non-unit rotation is the anchor layer's problem.
		pose.Rotation = math.Quaternion{X: r.Rotation[0], Y: r.Rotation[1], Z: r.Rotation[2], W: r.Rotation[3]}
	default:
		return tracking.TrackingReport{}, fmt.Errorf("rotation needs 4 components, got %d", len(r.Rotation))
	}
	if r.Yaw != nil {
		if len(r.Rotation) > 0 {
			return tracking.TrackingReport{}, fmt.Errorf("rotation and yaw are exclusive")
		}
		pose.Rotation = math.NewQuatFromAxisAngle(math.NewVec3Up(), math.DegToRad(*r.Yaw), true)
	}
	return tracking.TrackingReport{Target: r.Target, State: state, Pose: pose}, nil
}
