package scene

import (
	gomath "math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/morphix/engine/core"
	"github.com/spaghettifunk/morphix/engine/math"
	"github.com/spaghettifunk/morphix/engine/renderer/metadata"
)

func newTestScene(max int) *Scene {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var tick int
	return New(Config{
		MaxAnchors: max,
		NewID:      core.SequentialIdentifiers("scene"),
		Now: func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Second)
		},
	})
}

func cube() *metadata.Renderable {
	return &metadata.Renderable{
		Name:     "cube",
		Geometry: &metadata.Geometry{Name: "cube", Center: math.NewVec3(0, 0.05, 0)},
	}
}

func TestAttachDetach(t *testing.T) {
	s := newTestScene(0)
	pose := math.NewPose(math.NewVec3(0, 0, -1), math.NewQuatIdentity())

	node, err := s.Attach("scanned_image", pose, cube())
	require.NoError(t, err)
	assert.NotEmpty(t, node.ID)
	assert.Equal(t, "scanned_image", node.Target)
	assert.False(t, node.IsEmpty())
	assert.True(t, node.WorldCenter().Compare(math.NewVec3(0, 0.05, -1), 1e-6))
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.Detach(node))
	assert.Nil(t, node.Renderable)
	assert.Equal(t, 0, s.Len())

	assert.ErrorIs(t, s.Detach(node), ErrAnchorNotFound)
	assert.ErrorIs(t, s.Detach(nil), ErrAnchorNotFound)
}

func TestAttachRejectsInvalidPose(t *testing.T) {
	s := newTestScene(0)
	bad := math.NewPose(math.NewVec3(float32(gomath.NaN()), 0, 0), math.NewQuatIdentity())
	_, err := s.Attach("a", bad, nil)
	assert.ErrorIs(t, err, core.ErrAnchorCreate)
	assert.Equal(t, core.ErrorKindAnchor, core.Classify(err))
	assert.Equal(t, 0, s.Len())
}

func TestAttachEnforcesLimit(t *testing.T) {
	s := newTestScene(1)
	_, err := s.Attach("a", math.NewPoseIdentity(), nil)
	require.NoError(t, err)
	_, err = s.Attach("b", math.NewPoseIdentity(), nil)
	assert.ErrorIs(t, err, core.ErrAnchorCreate)
}

func TestSetRenderableFillsEmptyAnchor(t *testing.T) {
	s := newTestScene(0)
	node, err := s.Attach("a", math.NewPoseIdentity(), nil)
	require.NoError(t, err)
	assert.True(t, node.IsEmpty())
	assert.Equal(t, node.Pose.Position, node.WorldCenter())

	r := cube()
	require.NoError(t, s.SetRenderable(node, r))
	assert.Same(t, r, node.Renderable)

	require.NoError(t, s.Detach(node))
	assert.ErrorIs(t, s.SetRenderable(node, r), ErrAnchorNotFound)
}

func TestNodesOldestFirst(t *testing.T) {
	s := newTestScene(0)
	first, _ := s.Attach("a", math.NewPoseIdentity(), nil)
	second, _ := s.Attach("b", math.NewPoseIdentity(), nil)

	nodes := s.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, first.ID, nodes[0].ID)
	assert.Equal(t, second.ID, nodes[1].ID)

	require.NoError(t, s.Shutdown())
	assert.Equal(t, 0, s.Len())
}
