package math

func NewPose(position Vec3, rotation Quaternion) Pose {
	return Pose{Position: position, Rotation: rotation}
}

func NewPoseIdentity() Pose {
	return Pose{Position: NewVec3Zero(), Rotation: NewQuatIdentity()}
}

// IsValid reports whether the pose can be anchored: finite position and a
// unit rotation.
func (p Pose) IsValid() bool {
	return p.Position.IsFinite() && p.Rotation.IsUnit()
}

// TransformPoint maps a point in the pose's local frame to world space.
func (p Pose) TransformPoint(local Vec3) Vec3 {
	return p.Rotation.Rotate(local).Add(p.Position)
}

// Compare checks position and rotation within tolerance. q and -q are the same rotation.
func (p Pose) Compare(other Pose, tolerance float32) bool {
	if !p.Position.Compare(other.Position, tolerance) {
		return false
	}
	d := p.Rotation.Normalize().Dot(other.Rotation.Normalize())
	return kabs(kabs(d)-1.0) <= tolerance
}

func (p Pose) ToTransform() *Transform {
	return TransformFromPositionRotation(p.Position, p.Rotation)
}
