package testbed

import (
	"fmt"
	"io"

	"github.com/spaghettifunk/morphix/engine"
	"github.com/spaghettifunk/morphix/engine/core"
	"github.com/spaghettifunk/morphix/engine/tracking"
)

// TestGame is the demo host: it prints every status line the way the
// on-screen text view would show it and keeps a few counters.
type TestGame struct {
	*engine.Game
	out io.Writer
}

type gameState struct {
	frames       uint64
	trackedFrame uint64
	lastStatus   string
	anchors      map[string]string
}

func NewTestGame(config *engine.ApplicationConfig, out io.Writer) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: config,
			State: &gameState{
				anchors: make(map[string]string),
			},
		},
		out: out,
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnOnStatus = tg.OnStatus
	tg.FnOnAnchor = tg.OnAnchor
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) Initialize() error {
	core.LogDebug("TestGame Initialize fn....")
	if g.SystemManager == nil {
		return fmt.Errorf("the engine is not yet initialized with all the system managers")
	}
	return nil
}

func (g *TestGame) Update(frame *tracking.Frame, deltaTime float64) error {
	state := g.State.(*gameState)
	state.frames++
	if len(state.anchors) > 0 {
		state.trackedFrame++
	}
	return nil
}

func (g *TestGame) OnStatus(status core.Status) {
	state := g.State.(*gameState)
	// The text view only changes when the message does.
	if status.Message == state.lastStatus {
		return
	}
	state.lastStatus = status.Message
	prefix := "  "
	if status.Level == core.StatusError {
		prefix = "! "
	}
	fmt.Fprintf(g.out, "%s%s\n", prefix, status.Message)
}

func (g *TestGame) OnAnchor(code core.EventCode, ev tracking.AnchorEvent) {
	state := g.State.(*gameState)
	switch code {
	case core.EVENT_CODE_ANCHOR_CREATED:
		state.anchors[ev.Target] = ev.AnchorID
		p := ev.Pose.Position
		fmt.Fprintf(g.out, "  + anchor %s on %s at (%.3f, %.3f, %.3f)\n", ev.AnchorID, ev.Target, p.X, p.Y, p.Z)
	case core.EVENT_CODE_ANCHOR_RELEASED:
		delete(state.anchors, ev.Target)
		fmt.Fprintf(g.out, "  - anchor %s on %s\n", ev.AnchorID, ev.Target)
	}
}

func (g *TestGame) Shutdown() error {
	state := g.State.(*gameState)
	fmt.Fprintf(g.out, "frames: %d, with an anchor: %d\n", state.frames, state.trackedFrame)
	return nil
}

// Frames is the number of frames the game was updated with.
func (g *TestGame) Frames() uint64 {
	return g.State.(*gameState).frames
}
