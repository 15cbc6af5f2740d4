package testbed

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/morphix/engine"
	"github.com/spaghettifunk/morphix/engine/core"
	"github.com/spaghettifunk/morphix/engine/math"
	"github.com/spaghettifunk/morphix/engine/tracking"
)

func TestGameHooks(t *testing.T) {
	var out bytes.Buffer
	g := NewTestGame(engine.DefaultApplicationConfig(), &out)

	assert.Error(t, g.Initialize(), "needs a system manager")

	g.OnStatus(core.Status{Message: "Scanning..."})
	g.OnStatus(core.Status{Message: "Scanning..."})
	g.OnStatus(core.Status{Message: "Error: 3D model not ready.", Level: core.StatusError})
	g.OnAnchor(core.EVENT_CODE_ANCHOR_CREATED, tracking.AnchorEvent{
		Target:   "scanned_image",
		AnchorID: "a1",
		Pose:     math.NewPose(math.NewVec3(0, 0, -0.5), math.NewQuatIdentity()),
	})
	require.NoError(t, g.Update(&tracking.Frame{Number: 1}, 0.016))
	g.OnAnchor(core.EVENT_CODE_ANCHOR_RELEASED, tracking.AnchorEvent{Target: "scanned_image", AnchorID: "a1"})
	require.NoError(t, g.Update(&tracking.Frame{Number: 2}, 0.016))
	require.NoError(t, g.Shutdown())

	assert.Equal(t, uint64(2), g.Frames())
	assert.Equal(t, "  Scanning...\n"+
		"! Error: 3D model not ready.\n"+
		"  + anchor a1 on scanned_image at (0.000, 0.000, -0.500)\n"+
		"  - anchor a1 on scanned_image\n"+
		"frames: 2, with an anchor: 1\n", out.String())
}
