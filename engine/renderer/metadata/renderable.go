package metadata

import "github.com/spaghettifunk/morphix/engine/math"

// RenderableConfig describes the cube that gets attached to anchors.
type RenderableConfig struct {
	Name   string
	Size   float32
	Center math.Vec3
	Colour math.Vec4
}

// Renderable is a built geometry plus material. Once built it is shared
// read-only by every anchor.
type Renderable struct {
	Name     string
	Geometry *Geometry
	Material *Material
}

type RenderableState uint8

const (
	RenderableNotStarted RenderableState = iota
	RenderableBuilding
	RenderableReady
	RenderableFailed
)

func (s RenderableState) String() string {
	switch s {
	case RenderableBuilding:
		return "building"
	case RenderableReady:
		return "ready"
	case RenderableFailed:
		return "failed"
	}
	return "not_started"
}
