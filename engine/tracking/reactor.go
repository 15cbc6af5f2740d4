package tracking

import (
	"maps"
	"slices"

	"github.com/spaghettifunk/morphix/engine/core"
	"github.com/spaghettifunk/morphix/engine/math"
	"github.com/spaghettifunk/morphix/engine/renderer/metadata"
	"github.com/spaghettifunk/morphix/engine/scene"
)

// User-facing status lines.
const (
	StatusDetected      = "Image detected and tracking!"
	StatusModelNotReady = "Error: 3D model not ready."
	StatusRefining      = "Image recognized, refining tracking..."
	StatusLost          = "Image tracking lost. Move camera to re-detect."
	StatusAnchorFailed  = "Failed to place anchor. Retrying on the next frame."
)

// SceneGraph is where anchors live. *scene.Scene implements it.
type SceneGraph interface {
	Attach(target string, pose math.Pose, r *metadata.Renderable) (*scene.AnchorNode, error)
	Detach(node *scene.AnchorNode) error
	SetRenderable(node *scene.AnchorNode, r *metadata.Renderable) error
}

// StatusSink receives user-facing messages. *core.StatusBoard implements it.
type StatusSink interface {
	Info(target, msg string)
	Error(target, msg string)
}

// AnchorEvent is the payload of the anchor lifecycle events.
type AnchorEvent struct {
	Target   string
	AnchorID string
	Pose     math.Pose
	From     Phase
	To       Phase
	Empty    bool
	Err      error
}

type discardStatus struct{}

func (discardStatus) Info(string, string)  {}
func (discardStatus) Error(string, string) {}

type Stats struct {
	FramesApplied   uint64
	ReportsApplied  uint64
	AnchorsCreated  uint64
	AnchorsReleased uint64
	EmptyAnchors    uint64
	AnchorsFilled   uint64
	AnchorFailures  uint64
}

// Reactor turns per-frame tracking reports into anchor attach/detach
// decisions. It is not safe for concurrent use; the engine drives it from a
// single goroutine.
type Reactor struct {
	scene      SceneGraph
	status     StatusSink
	events     *core.EventSystem
	renderable *metadata.Renderable
	targets    map[string]TargetState
	stats      Stats
}

func NewReactor(sg SceneGraph, status StatusSink, events *core.EventSystem, targets ...string) *Reactor {
	if status == nil {
		status = discardStatus{}
	}
	r := &Reactor{
		scene:   sg,
		status:  status,
		events:  events,
		targets: make(map[string]TargetState, len(targets)),
	}
	for _, t := range targets {
		r.targets[t] = Idle{}
	}
	return r
}

// OnFrame applies one frame of reports. When a target appears more than
// once only its last report counts. An empty frame changes nothing.
func (r *Reactor) OnFrame(reports []TrackingReport) {
	if len(reports) == 0 {
		return
	}
	r.stats.FramesApplied++
	for _, rep := range latestPerTarget(reports) {
		r.apply(rep)
	}
}

func (r *Reactor) apply(rep TrackingReport) {
	current, known := r.targets[rep.Target]
	if !known {
		core.LogDebug("ignoring report for unknown target '%s'", rep.Target)
		return
	}
	r.stats.ReportsApplied++

	switch rep.State {
	case TrackingStateTracking:
		if _, ok := current.(Tracking); ok {
			return
		}
		r.attach(rep, current.Phase())
	case TrackingStatePaused:
		r.status.Info(rep.Target, StatusRefining)
		if _, ok := current.(Tracking); ok {
			return
		}
		r.targets[rep.Target] = Paused{}
	case TrackingStateStopped:
		r.status.Info(rep.Target, StatusLost)
		if t, ok := current.(Tracking); ok {
			r.release(rep.Target, t.Anchor)
		}
		r.targets[rep.Target] = Idle{}
	default:
		core.LogWarn("unknown tracking state %s for '%s'", rep.State, rep.Target)
	}
}

func (r *Reactor) attach(rep TrackingReport, from Phase) {
	node, err := r.scene.Attach(rep.Target, rep.Pose, r.renderable)
	if err != nil {
		core.LogError("anchor for '%s' not created: %s", rep.Target, err)
		r.stats.AnchorFailures++
		r.targets[rep.Target] = Idle{}
		r.status.Error(rep.Target, StatusAnchorFailed)
		r.fire(core.EVENT_CODE_ANCHOR_FAILED, AnchorEvent{
			Target: rep.Target,
			Pose:   rep.Pose,
			From:   from,
			To:     PhaseIdle,
			Err:    err,
		})
		return
	}

	r.targets[rep.Target] = Tracking{Anchor: node}
	r.stats.AnchorsCreated++
	if node.IsEmpty() {
		r.stats.EmptyAnchors++
		core.LogError("renderable missing, anchor %s for '%s' attached empty", node.ID, rep.Target)
		r.status.Error(rep.Target, StatusModelNotReady)
	} else {
		core.LogDebug("detected and tracking '%s'", rep.Target)
		r.status.Info(rep.Target, StatusDetected)
	}
	r.fire(core.EVENT_CODE_ANCHOR_CREATED, AnchorEvent{
		Target:   rep.Target,
		AnchorID: node.ID,
		Pose:     node.Pose,
		From:     from,
		To:       PhaseTracking,
		Empty:    node.IsEmpty(),
	})
}

// release detaches the anchor. The target passes through Lost; the caller
// settles it to Idle.
func (r *Reactor) release(target string, node *scene.AnchorNode) {
	r.targets[target] = Lost{}
	if err := r.scene.Detach(node); err != nil {
		core.LogWarn("detaching anchor %s for '%s': %s", node.ID, target, err)
	}
	r.stats.AnchorsReleased++
	r.fire(core.EVENT_CODE_ANCHOR_RELEASED, AnchorEvent{
		Target:   target,
		AnchorID: node.ID,
		Pose:     node.Pose,
		From:     PhaseTracking,
		To:       PhaseLost,
	})
}

// OnAssetReady caches the renderable for future anchors and fills anchors
// that were attached empty while it was still building.
func (r *Reactor) OnAssetReady(renderable *metadata.Renderable) {
	if renderable == nil {
		return
	}
	r.renderable = renderable
	for _, target := range r.Targets() {
		t, ok := r.targets[target].(Tracking)
		if !ok || !t.Anchor.IsEmpty() {
			continue
		}
		if err := r.scene.SetRenderable(t.Anchor, renderable); err != nil {
			core.LogWarn("filling anchor %s for '%s': %s", t.Anchor.ID, target, err)
			continue
		}
		r.stats.AnchorsFilled++
		core.LogDebug("anchor %s for '%s' filled with '%s'", t.Anchor.ID, target, renderable.Name)
	}
}

// SetTargets replaces the watched target set. Targets that are dropped lose
// their anchor; targets that stay keep their state.
func (r *Reactor) SetTargets(names ...string) {
	keep := make(map[string]struct{}, len(names))
	for _, n := range names {
		keep[n] = struct{}{}
	}
	for _, target := range r.Targets() {
		if _, ok := keep[target]; ok {
			continue
		}
		if t, ok := r.targets[target].(Tracking); ok {
			r.release(target, t.Anchor)
		}
		delete(r.targets, target)
	}
	for n := range keep {
		if _, ok := r.targets[n]; !ok {
			r.targets[n] = Idle{}
		}
	}
}

// Reset detaches every anchor and returns all targets to Idle.
func (r *Reactor) Reset() {
	for _, target := range r.Targets() {
		if t, ok := r.targets[target].(Tracking); ok {
			r.release(target, t.Anchor)
		}
		r.targets[target] = Idle{}
	}
}

// State returns the target's state; unknown targets report Idle and false.
func (r *Reactor) State(target string) (TargetState, bool) {
	s, ok := r.targets[target]
	if !ok {
		return Idle{}, false
	}
	return s, true
}

// Targets returns the watched target names, sorted.
func (r *Reactor) Targets() []string {
	return slices.Sorted(maps.Keys(r.targets))
}

func (r *Reactor) Renderable() *metadata.Renderable {
	return r.renderable
}

func (r *Reactor) Stats() Stats {
	return r.stats
}

func (r *Reactor) fire(code core.EventCode, ev AnchorEvent) {
	r.events.Fire(core.EventContext{Type: code, Data: ev})
}
