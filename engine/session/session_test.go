package session

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/morphix/engine/core"
	"github.com/spaghettifunk/morphix/engine/math"
	"github.com/spaghettifunk/morphix/engine/renderer/metadata"
	"github.com/spaghettifunk/morphix/engine/tracking"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

const demoScript = `
name: demo
frames:
  - reports:
      - {target: scanned_image, state: PAUSED}
  - skip: true
  - repeat: 2
    reports:
      - target: scanned_image
        state: TRACKING
        position: [0, 0, -0.5]
      - {target: poster, state: TRACKING}
  - reports:
      - {target: scanned_image, state: stopped}
`

func database(t *testing.T, names ...string) *metadata.ImageDatabase {
	t.Helper()
	db := metadata.NewImageDatabase()
	for _, n := range names {
		_, err := db.Add(metadata.ReferenceImage{Name: n, Width: 1, Height: 1, Pixels: []uint8{0}})
		require.NoError(t, err)
	}
	return db
}

func newSession(t *testing.T, src string) *SimulatedSession {
	t.Helper()
	script, err := ParseScript([]byte(src))
	require.NoError(t, err)
	s, err := NewSimulatedSession(script, SimulatedOptions{NewID: core.SequentialIdentifiers("session")})
	require.NoError(t, err)
	return s
}

func TestParseScript(t *testing.T) {
	script, err := ParseScript([]byte(demoScript))
	require.NoError(t, err)
	assert.Equal(t, "demo", script.Name)
	require.Len(t, script.Steps, 5)
	assert.True(t, script.Steps[1].Skip)
	assert.Equal(t, script.Steps[2], script.Steps[3])
	assert.Equal(t, tracking.TrackingStateStopped, script.Steps[4].Reports[0].State)
	assert.Equal(t, math.NewVec3(0, 0, -0.5), script.Steps[2].Reports[0].Pose.Position)
	assert.Equal(t, math.NewQuatIdentity(), script.Steps[2].Reports[0].Pose.Rotation)
}

func TestParseScriptYaw(t *testing.T) {
	script, err := ParseScript([]byte("frames:\n  - reports: [{target: a, state: TRACKING, yaw: 90}]\n"))
	require.NoError(t, err)
	pose := script.Steps[0].Reports[0].Pose
	require.True(t, pose.IsValid())
	got := pose.TransformPoint(math.NewVec3(1, 0, 0))
	assert.True(t, got.Compare(math.NewVec3(0, 0, -1), 1e-5), "got %+v", got)
}

func TestParseScriptErrors(t *testing.T) {
	cases := map[string]string{
		"empty":            ``,
		"no frames":        `name: x`,
		"unknown field":    "frames:\n  - reprots: []\n",
		"bad state":        "frames:\n  - reports: [{target: a, state: LOST}]\n",
		"missing target":   "frames:\n  - reports: [{state: TRACKING}]\n",
		"short position":   "frames:\n  - reports: [{target: a, state: TRACKING, position: [1, 2]}]\n",
		"skip reports":     "frames:\n  - skip: true\n    reports: [{target: a, state: TRACKING}]\n",
		"negative":         "frames:\n  - repeat: -1\n",
		"rotation and yaw": "frames:\n  - reports: [{target: a, state: TRACKING, rotation: [0, 0, 0, 1], yaw: 10}]\n",
	}
	for name, src := range cases {
		_, err := ParseScript([]byte(src))
		assert.Error(t, err, name)
	}
}

func TestSimulatedSessionLifecycle(t *testing.T) {
	s := newSession(t, demoScript)

	_, err := s.Update()
	assert.ErrorIs(t, err, ErrSessionPaused)

	require.NoError(t, s.Resume())
	// No database yet: frames arrive but carry nothing, and the script does not advance.
	for i := 0; i < 3; i++ {
		f, err := s.Update()
		require.NoError(t, err)
		require.NotNil(t, f)
		assert.Empty(t, f.Reports)
	}
	assert.Equal(t, 5, s.Remaining())

	require.NoError(t, s.Configure(Config{Database: database(t, "scanned_image")}))

	f, err := s.Update()
	require.NoError(t, err)
	require.Len(t, f.Reports, 1)
	assert.Equal(t, tracking.TrackingStatePaused, f.Reports[0].State)
	assert.Equal(t, uint64(4), f.Number)

	f, err = s.Update()
	require.NoError(t, err)
	assert.Nil(t, f, "skip step yields no frame")

	f, err = s.Update()
	require.NoError(t, err)
	require.Len(t, f.Reports, 1, "poster is not in the database")
	assert.Equal(t, "scanned_image", f.Reports[0].Target)

	require.NoError(t, s.Pause())
	_, err = s.Update()
	assert.ErrorIs(t, err, ErrSessionPaused)
	require.NoError(t, s.Resume())

	_, err = s.Update()
	require.NoError(t, err)
	f, err = s.Update()
	require.NoError(t, err)
	assert.Equal(t, tracking.TrackingStateStopped, f.Reports[0].State)

	_, err = s.Update()
	assert.ErrorIs(t, err, ErrScriptExhausted)

	require.NoError(t, s.Close())
	_, err = s.Update()
	assert.ErrorIs(t, err, core.ErrSessionUnavailable)
	assert.ErrorIs(t, s.Resume(), core.ErrSessionUnavailable)
}

func TestBlockingModeSkipsMissingFrames(t *testing.T) {
	s := newSession(t, demoScript)
	require.NoError(t, s.Configure(Config{Database: database(t, "scanned_image", "poster"), UpdateMode: UpdateModeBlocking}))
	require.NoError(t, s.Resume())

	var frames []*tracking.Frame
	for {
		f, err := s.Update()
		if err != nil {
			assert.ErrorIs(t, err, ErrScriptExhausted)
			break
		}
		require.NotNil(t, f)
		frames = append(frames, f)
	}
	require.Len(t, frames, 4)
	assert.Len(t, frames[1].Reports, 2)
}

func TestLoopAndJitter(t *testing.T) {
	src := `
loop: true
jitter: 0.01
frames:
  - reports: [{target: a, state: TRACKING, position: [1, 1, 1]}]
`
	s := newSession(t, src)
	require.NoError(t, s.Configure(Config{Database: database(t, "a")}))
	require.NoError(t, s.Resume())

	for i := 0; i < 5; i++ {
		f, err := s.Update()
		require.NoError(t, err)
		p := f.Reports[0].Pose.Position
		assert.True(t, p.Compare(math.NewVec3(1, 1, 1), 0.01+1e-6), "frame %d at %+v", i, p)
		assert.True(t, f.Reports[0].Pose.IsValid())
	}
}

func TestConfigureRejectsUnknownModes(t *testing.T) {
	s := newSession(t, demoScript)
	err := s.Configure(Config{UpdateMode: UpdateMode(9)})
	assert.ErrorIs(t, err, core.ErrSessionUnavailable)
}

func TestParseModes(t *testing.T) {
	m, err := ParseUpdateMode("blocking")
	require.NoError(t, err)
	assert.Equal(t, UpdateModeBlocking, m)
	m, err = ParseUpdateMode("")
	require.NoError(t, err)
	assert.Equal(t, UpdateModeLatestCameraImage, m)
	_, err = ParseUpdateMode("sometimes")
	assert.Error(t, err)

	f, err := ParseFocusMode("AUTO")
	require.NoError(t, err)
	assert.Equal(t, FocusModeAuto, f)
	assert.Equal(t, "FIXED", FocusModeFixed.String())
	_, err = ParseFocusMode("macro")
	assert.Error(t, err)
}

func TestCheckCapability(t *testing.T) {
	assert.NoError(t, CheckCapability(DeviceProfile{APILevel: 24, GLESVersion: 3.0}))
	assert.ErrorIs(t, CheckCapability(DeviceProfile{APILevel: 23, GLESVersion: 3.0}), core.ErrUnsupportedPlatform)
	assert.ErrorIs(t, CheckCapability(DeviceProfile{APILevel: 30, GLESVersion: 2.0}), core.ErrUnsupportedGraphics)

	script, err := ParseScript([]byte(demoScript))
	require.NoError(t, err)
	_, err = NewSimulatedSession(script, SimulatedOptions{Device: NewSimulatedDevice(DeviceProfile{APILevel: 21, GLESVersion: 3.0})})
	assert.True(t, core.IsFatal(err))
}

func TestWaitForAvailabilityRetries(t *testing.T) {
	dev := NewSimulatedDevice(DeviceProfile{APILevel: 24, GLESVersion: 3.0, PendingChecks: 2})
	require.NoError(t, WaitForAvailability(context.Background(), dev, time.Millisecond))
	assert.Equal(t, 3, dev.Checks())

	unsupported := NewSimulatedDevice(DeviceProfile{APILevel: 24, GLESVersion: 3.0, Availability: AvailabilityUnsupported, PendingChecks: 1})
	err := WaitForAvailability(context.Background(), unsupported, time.Millisecond)
	assert.ErrorIs(t, err, core.ErrUnsupportedDevice)

	forever := NewSimulatedDevice(DeviceProfile{Availability: AvailabilityUnknown})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = WaitForAvailability(ctx, forever, 5*time.Millisecond)
	assert.ErrorIs(t, err, core.ErrAvailabilityPending)
	assert.Greater(t, forever.Checks(), 1)
}

func TestRequireCamera(t *testing.T) {
	assert.NoError(t, RequireCamera(context.Background(), StaticPermission(true)))
	err := RequireCamera(context.Background(), StaticPermission(false))
	assert.ErrorIs(t, err, core.ErrPermissionDenied)
	assert.True(t, core.IsFatal(err))
}
