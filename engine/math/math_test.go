package math

import (
	gomath "math"
	"testing"

	"github.com/stretchr/testify/assert"
)

const tolerance = 1e-5

func TestQuaternionRotate(t *testing.T) {
	q := NewQuatFromAxisAngle(NewVec3Up(), DegToRad(90), true)
	got := q.Rotate(NewVec3(1, 0, 0))
	assert.True(t, got.Compare(NewVec3(0, 0, -1), tolerance), "got %+v", got)

	// Identity leaves vectors alone.
	v := NewVec3(0.3, -2, 5)
	assert.True(t, NewQuatIdentity().Rotate(v).Compare(v, tolerance))
}

func TestQuaternionIsUnit(t *testing.T) {
	assert.True(t, NewQuatIdentity().IsUnit())
	assert.False(t, Quaternion{0, 0, 0, 0}.IsUnit())
	assert.False(t, Quaternion{1, 1, 0, 0}.IsUnit())
	assert.False(t, Quaternion{float32(gomath.NaN()), 0, 0, 1}.IsUnit())
	assert.True(t, Quaternion{1, 1, 0, 0}.Normalize().IsUnit())
}

func TestQuaternionNormalizeZero(t *testing.T) {
	assert.Equal(t, NewQuatIdentity(), Quaternion{}.Normalize())
}

func TestPoseValidity(t *testing.T) {
	assert.True(t, NewPoseIdentity().IsValid())
	assert.False(t, NewPose(NewVec3(float32(gomath.Inf(1)), 0, 0), NewQuatIdentity()).IsValid())
	assert.False(t, NewPose(NewVec3Zero(), Quaternion{0, 0, 0, 2}).IsValid())
}

func TestPoseTransformPoint(t *testing.T) {
	parent := NewPose(NewVec3(1, 0, 0), NewQuatFromAxisAngle(NewVec3Up(), DegToRad(90), true))
	got := parent.TransformPoint(NewVec3(1, 0, 0))
	assert.True(t, got.Compare(NewVec3(1, 0, -1), tolerance), "got %+v", got)

	// The cube centre offset sits 5cm above the anchor.
	anchor := NewPose(NewVec3(0, 0, -0.5), NewQuatIdentity())
	centre := anchor.TransformPoint(NewVec3(0, 0.05, 0))
	assert.True(t, centre.Compare(NewVec3(0, 0.05, -0.5), tolerance))
}

func TestPoseCompareTreatsNegatedQuaternionAsEqual(t *testing.T) {
	q := NewQuatFromAxisAngle(NewVec3Up(), 0.7, true)
	neg := Quaternion{-q.X, -q.Y, -q.Z, -q.W}
	assert.True(t, NewPose(NewVec3Zero(), q).Compare(NewPose(NewVec3Zero(), neg), tolerance))
	assert.False(t, NewPose(NewVec3Zero(), q).Compare(NewPoseIdentity(), tolerance))
}

func TestTransformLocalTranslationScale(t *testing.T) {
	tr := TransformFromPositionRotationScale(NewVec3(1, 2, 3), NewQuatIdentity(), NewVec3(2, 2, 2))
	local := tr.GetLocal()
	assert.False(t, tr.IsDirty)

	p := NewVec3(1, 1, 1).Transform(local)
	assert.True(t, p.Compare(NewVec3(3, 4, 5), tolerance), "got %+v", p)

	child := TransformFromPosition(NewVec3(1, 0, 0))
	child.Parent = TransformFromPosition(NewVec3(0, 10, 0))
	w := NewVec3Zero().Transform(child.GetWorld())
	assert.True(t, w.Compare(NewVec3(1, 10, 0), tolerance))

	var nilTransform *Transform
	assert.Equal(t, NewMat4Identity(), nilTransform.GetWorld())
}

func TestTransformPose(t *testing.T) {
	pose := NewPose(NewVec3(0, 1, 0), NewQuatFromAxisAngle(NewVec3Up(), 0.3, true))
	assert.Equal(t, pose, pose.ToTransform().Pose())
}

func TestClamp(t *testing.T) {
	assert.Equal(t, float32(1), Clamp(float32(1.5), 0, 1))
	assert.Equal(t, 0, Clamp(-3, 0, 10))
	assert.Equal(t, 4, Clamp(4, 0, 10))
}

func TestGeometryNormalsAndExtents(t *testing.T) {
	verts := []Vertex3D{
		{Position: NewVec3(0, 0, 0)},
		{Position: NewVec3(1, 0, 0)},
		{Position: NewVec3(0, 1, 0)},
	}
	GeometryGenerateNormals(verts, []uint32{0, 1, 2})
	for _, v := range verts {
		assert.True(t, v.Normal.Compare(NewVec3(0, 0, 1), tolerance))
	}

	ext, centre := GeometryComputeExtents(verts)
	assert.Equal(t, NewVec3(0, 0, 0), ext.Min)
	assert.Equal(t, NewVec3(1, 1, 0), ext.Max)
	assert.True(t, centre.Compare(NewVec3(0.5, 0.5, 0), tolerance))
}
