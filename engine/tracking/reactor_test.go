package tracking

import (
	"errors"
	"io"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/morphix/engine/core"
	"github.com/spaghettifunk/morphix/engine/math"
	"github.com/spaghettifunk/morphix/engine/renderer/metadata"
	"github.com/spaghettifunk/morphix/engine/scene"
)

const target = "scanned_image"

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

// recordingScene wraps a real scene, counts calls and can be told to fail.
type recordingScene struct {
	*scene.Scene
	attaches int
	detaches int
	failNext int
}

func (rs *recordingScene) Attach(t string, pose math.Pose, r *metadata.Renderable) (*scene.AnchorNode, error) {
	if rs.failNext > 0 {
		rs.failNext--
		return nil, errors.New("sdk: no tracking data")
	}
	rs.attaches++
	return rs.Scene.Attach(t, pose, r)
}

func (rs *recordingScene) Detach(n *scene.AnchorNode) error {
	rs.detaches++
	return rs.Scene.Detach(n)
}

type recordingStatus struct {
	messages []string
	errors   int
}

func (s *recordingStatus) Info(_, msg string) { s.messages = append(s.messages, msg) }
func (s *recordingStatus) Error(_, msg string) {
	s.messages = append(s.messages, msg)
	s.errors++
}

type fixture struct {
	scene   *recordingScene
	status  *recordingStatus
	events  *core.EventSystem
	reactor *Reactor
	fired   map[core.EventCode][]AnchorEvent
}

func newFixture(t *testing.T, renderable *metadata.Renderable) *fixture {
	t.Helper()
	f := &fixture{
		scene:  &recordingScene{Scene: scene.New(scene.Config{NewID: core.SequentialIdentifiers(t.Name())})},
		status: &recordingStatus{},
		events: core.NewEventSystem(),
		fired:  make(map[core.EventCode][]AnchorEvent),
	}
	for _, code := range []core.EventCode{core.EVENT_CODE_ANCHOR_CREATED, core.EVENT_CODE_ANCHOR_RELEASED, core.EVENT_CODE_ANCHOR_FAILED} {
		f.events.Register(code, f, func(ctx core.EventContext) bool {
			f.fired[code] = append(f.fired[code], ctx.Data.(AnchorEvent))
			return false
		})
	}
	f.reactor = NewReactor(f.scene, f.status, f.events, target)
	if renderable != nil {
		f.reactor.OnAssetReady(renderable)
	}
	return f
}

func cube() *metadata.Renderable {
	return &metadata.Renderable{
		Name:     "cube",
		Geometry: &metadata.Geometry{Name: "cube", Center: math.NewVec3(0, 0.05, 0)},
		Material: &metadata.Material{Name: "blue", DiffuseColour: math.NewVec4(0, 0, 1, 1)},
	}
}

func report(state TrackingState) TrackingReport {
	return TrackingReport{
		Target: target,
		State:  state,
		Pose:   math.NewPose(math.NewVec3(0, 0, -0.5), math.NewQuatIdentity()),
	}
}

func (f *fixture) play(states ...TrackingState) {
	for _, s := range states {
		f.reactor.OnFrame([]TrackingReport{report(s)})
	}
}

func (f *fixture) phase() Phase {
	s, _ := f.reactor.State(target)
	return s.Phase()
}

func TestScenarioPausedThenTrackingThenStopped(t *testing.T) {
	f := newFixture(t, cube())
	f.play(TrackingStatePaused, TrackingStatePaused, TrackingStateTracking, TrackingStateTracking, TrackingStateStopped)

	assert.Equal(t, 1, f.scene.attaches)
	assert.Equal(t, 1, f.scene.detaches)
	assert.Equal(t, PhaseIdle, f.phase())
	assert.Equal(t, 0, f.scene.Len())
	assert.Len(t, f.fired[core.EVENT_CODE_ANCHOR_CREATED], 1)
	assert.Equal(t, PhasePaused, f.fired[core.EVENT_CODE_ANCHOR_CREATED][0].From)
	assert.Len(t, f.fired[core.EVENT_CODE_ANCHOR_RELEASED], 1)
	assert.Equal(t, PhaseLost, f.fired[core.EVENT_CODE_ANCHOR_RELEASED][0].To)

	want := []string{StatusRefining, StatusRefining, StatusDetected, StatusLost}
	if diff := cmp.Diff(want, f.status.messages); diff != "" {
		t.Errorf("status messages mismatch (-want +got):\n%s", diff)
	}
}

func TestScenarioReacquireAfterStop(t *testing.T) {
	f := newFixture(t, cube())
	f.play(TrackingStateTracking, TrackingStateStopped, TrackingStateTracking)

	assert.Equal(t, 2, f.scene.attaches)
	assert.Equal(t, 1, f.scene.detaches)
	assert.Equal(t, PhaseTracking, f.phase())
	require.Equal(t, 1, f.scene.Len())

	created := f.fired[core.EVENT_CODE_ANCHOR_CREATED]
	require.Len(t, created, 2)
	assert.NotEqual(t, created[0].AnchorID, created[1].AnchorID)
	assert.Equal(t, created[1].AnchorID, f.scene.Nodes()[0].ID)
}

func TestScenarioAssetBuildFailed(t *testing.T) {
	f := newFixture(t, nil)
	f.play(TrackingStateTracking)

	state, ok := f.reactor.State(target)
	require.True(t, ok)
	tr, isTracking := state.(Tracking)
	require.True(t, isTracking)
	assert.True(t, tr.Anchor.IsEmpty())
	assert.Equal(t, 1, f.status.errors)
	assert.Equal(t, []string{StatusModelNotReady}, f.status.messages)
	assert.True(t, f.fired[core.EVENT_CODE_ANCHOR_CREATED][0].Empty)
	assert.Equal(t, uint64(1), f.reactor.Stats().EmptyAnchors)

	// Further frames keep tracking without new errors.
	f.play(TrackingStateTracking, TrackingStateTracking)
	assert.Equal(t, 1, f.status.errors)
	assert.Equal(t, 1, f.scene.attaches)
}

func TestScenarioEmptyFrame(t *testing.T) {
	f := newFixture(t, cube())
	f.reactor.OnFrame(nil)
	f.reactor.OnFrame([]TrackingReport{})

	assert.Equal(t, PhaseIdle, f.phase())
	assert.Zero(t, f.scene.attaches)
	assert.Empty(t, f.status.messages)
	assert.Empty(t, f.fired)
	assert.Equal(t, Stats{}, f.reactor.Stats())

	f.play(TrackingStateTracking)
	before := f.reactor.Stats()
	f.reactor.OnFrame(nil)
	assert.Equal(t, before, f.reactor.Stats())
	assert.Equal(t, PhaseTracking, f.phase())
}

func TestLastReportInFrameWins(t *testing.T) {
	f := newFixture(t, cube())
	f.reactor.OnFrame([]TrackingReport{report(TrackingStateTracking), report(TrackingStateStopped)})
	assert.Equal(t, PhaseIdle, f.phase())
	assert.Zero(t, f.scene.attaches)
	assert.Zero(t, f.scene.detaches)

	f.reactor.OnFrame([]TrackingReport{report(TrackingStateStopped), report(TrackingStatePaused), report(TrackingStateTracking)})
	assert.Equal(t, PhaseTracking, f.phase())
	assert.Equal(t, 1, f.scene.attaches)
	assert.Equal(t, uint64(2), f.reactor.Stats().FramesApplied)
	assert.Equal(t, uint64(2), f.reactor.Stats().ReportsApplied)
}

func TestPausedWhileTrackingKeepsAnchor(t *testing.T) {
	f := newFixture(t, cube())
	f.play(TrackingStateTracking, TrackingStatePaused, TrackingStateTracking)

	assert.Equal(t, PhaseTracking, f.phase())
	assert.Equal(t, 1, f.scene.attaches)
	assert.Zero(t, f.scene.detaches)
}

func TestStoppedWhileIdleOnlyUpdatesStatus(t *testing.T) {
	f := newFixture(t, cube())
	f.play(TrackingStateStopped)

	assert.Equal(t, PhaseIdle, f.phase())
	assert.Zero(t, f.scene.detaches)
	assert.Equal(t, []string{StatusLost}, f.status.messages)
	assert.Empty(t, f.fired[core.EVENT_CODE_ANCHOR_RELEASED])
}

func TestAnchorFailureStaysIdleAndRetries(t *testing.T) {
	f := newFixture(t, cube())
	f.scene.failNext = 1

	f.play(TrackingStateTracking)
	assert.Equal(t, PhaseIdle, f.phase())
	assert.Equal(t, 0, f.scene.Len())
	assert.Equal(t, 1, f.status.errors)
	require.Len(t, f.fired[core.EVENT_CODE_ANCHOR_FAILED], 1)
	assert.Error(t, f.fired[core.EVENT_CODE_ANCHOR_FAILED][0].Err)

	f.play(TrackingStateTracking)
	assert.Equal(t, PhaseTracking, f.phase())
	assert.Equal(t, 1, f.scene.Len())
	assert.Equal(t, uint64(1), f.reactor.Stats().AnchorFailures)
}

func TestInvalidPoseIsAnAnchorFailure(t *testing.T) {
	f := newFixture(t, cube())
	bad := report(TrackingStateTracking)
	bad.Pose.Rotation = math.Quaternion{}
	f.reactor.OnFrame([]TrackingReport{bad})

	assert.Equal(t, PhaseIdle, f.phase())
	require.Len(t, f.fired[core.EVENT_CODE_ANCHOR_FAILED], 1)
	assert.ErrorIs(t, f.fired[core.EVENT_CODE_ANCHOR_FAILED][0].Err, core.ErrAnchorCreate)
}

func TestUnknownTargetIgnored(t *testing.T) {
	f := newFixture(t, cube())
	f.reactor.OnFrame([]TrackingReport{{Target: "other", State: TrackingStateTracking, Pose: math.NewPoseIdentity()}})

	assert.Zero(t, f.scene.attaches)
	assert.Empty(t, f.status.messages)
	_, known := f.reactor.State("other")
	assert.False(t, known)
}

func TestAssetReadyFillsEmptyAnchors(t *testing.T) {
	f := newFixture(t, nil)
	f.play(TrackingStateTracking)

	r := cube()
	f.reactor.OnAssetReady(r)
	state, _ := f.reactor.State(target)
	assert.Same(t, r, state.(Tracking).Anchor.Renderable)
	assert.Equal(t, uint64(1), f.reactor.Stats().AnchorsFilled)

	// New anchors get the renderable straight away.
	f.play(TrackingStateStopped, TrackingStateTracking)
	state, _ = f.reactor.State(target)
	assert.Same(t, r, state.(Tracking).Anchor.Renderable)
	assert.Same(t, r, f.reactor.Renderable())
}

func TestResetReleasesEverything(t *testing.T) {
	f := newFixture(t, cube())
	f.reactor.SetTargets(target, "poster")
	assert.Equal(t, []string{"poster", target}, f.reactor.Targets())

	f.reactor.OnFrame([]TrackingReport{
		report(TrackingStateTracking),
		{Target: "poster", State: TrackingStateTracking, Pose: math.NewPoseIdentity()},
	})
	require.Equal(t, 2, f.scene.Len())

	f.reactor.Reset()
	assert.Equal(t, 0, f.scene.Len())
	for _, name := range f.reactor.Targets() {
		s, _ := f.reactor.State(name)
		assert.Equal(t, PhaseIdle, s.Phase())
	}
	assert.Equal(t, uint64(2), f.reactor.Stats().AnchorsReleased)
}

func TestSetTargetsDropsRemovedTargets(t *testing.T) {
	f := newFixture(t, cube())
	f.play(TrackingStateTracking)

	f.reactor.SetTargets("poster")
	assert.Equal(t, []string{"poster"}, f.reactor.Targets())
	assert.Equal(t, 0, f.scene.Len())
	_, known := f.reactor.State(target)
	assert.False(t, known)
}

// Every report sequence up to length 6 keeps at most one anchor per target,
// never re-anchors a tracked target and ends in the state the last report implies.
func TestInvariantsOverAllShortSequences(t *testing.T) {
	states := []TrackingState{TrackingStateTracking, TrackingStatePaused, TrackingStateStopped}
	var seqs [][]TrackingState
	var gen func(prefix []TrackingState)
	gen = func(prefix []TrackingState) {
		if len(prefix) > 0 {
			seqs = append(seqs, append([]TrackingState(nil), prefix...))
		}
		if len(prefix) == 6 {
			return
		}
		for _, s := range states {
			gen(append(prefix, s))
		}
	}
	gen(nil)

	for _, seq := range seqs {
		f := newFixture(t, cube())
		wantAttaches := 0
		anchored := false
		for _, s := range seq {
			f.play(s)
			require.LessOrEqual(t, f.scene.Len(), 1, "sequence %v", seq)

			switch s {
			case TrackingStateTracking:
				if !anchored {
					wantAttaches++
				}
				anchored = true
			case TrackingStateStopped:
				anchored = false
			}
			require.Equal(t, wantAttaches, f.scene.attaches, "sequence %v", seq)
			require.Equal(t, anchored, f.scene.Len() == 1, "sequence %v", seq)
		}

		last := seq[len(seq)-1]
		switch {
		case anchored:
			assert.Equal(t, PhaseTracking, f.phase(), "sequence %v", seq)
		case last == TrackingStatePaused:
			assert.Equal(t, PhasePaused, f.phase(), "sequence %v", seq)
		default:
			assert.Equal(t, PhaseIdle, f.phase(), "sequence %v", seq)
		}
		st := f.reactor.Stats()
		assert.Equal(t, st.AnchorsCreated-st.AnchorsReleased, uint64(f.scene.Len()))
	}
}

func TestParseTrackingState(t *testing.T) {
	for _, s := range []TrackingState{TrackingStateTracking, TrackingStatePaused, TrackingStateStopped} {
		got, err := ParseTrackingState(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	got, err := ParseTrackingState(" paused ")
	require.NoError(t, err)
	assert.Equal(t, TrackingStatePaused, got)

	_, err = ParseTrackingState("LOST")
	assert.Error(t, err)
}
