package systems

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/morphix/engine/core"
	"github.com/spaghettifunk/morphix/engine/math"
	"github.com/spaghettifunk/morphix/engine/renderer/metadata"
)

type GeometrySystemConfig struct {
	MaxGeometryCount uint32
}

// GeometrySystem owns reference-counted geometries by name and pairs them
// with their materials.
type GeometrySystem struct {
	mu         sync.Mutex
	config     GeometrySystemConfig
	materials  *MaterialSystem
	nextID     uint32
	registered map[string]*metadata.GeometryReference
}

func NewGeometrySystem(config GeometrySystemConfig, materials *MaterialSystem) (*GeometrySystem, error) {
	if config.MaxGeometryCount == 0 {
		err := fmt.Errorf("func NewGeometrySystem - config.MaxGeometryCount must be > 0")
		core.LogWarn("%s", err.Error())
		return nil, err
	}
	return &GeometrySystem{
		config:     config,
		materials:  materials,
		registered: make(map[string]*metadata.GeometryReference),
	}, nil
}

/**
 * @brief Registers and acquires a new geometry using the given config. Acquiring
 * a name that already exists only bumps its reference count.
 */
func (gs *GeometrySystem) AcquireFromConfig(config *metadata.GeometryConfig, autoRelease bool) (*metadata.Geometry, error) {
	if config == nil || len(config.Vertices) == 0 || len(config.Indices) == 0 {
		return nil, fmt.Errorf("geometry config has no vertex or index data")
	}
	if len(config.Indices)%3 != 0 {
		return nil, fmt.Errorf("geometry '%s' index count %d is not a multiple of 3", config.Name, len(config.Indices))
	}
	for _, idx := range config.Indices {
		if int(idx) >= len(config.Vertices) {
			return nil, fmt.Errorf("geometry '%s' index %d out of range", config.Name, idx)
		}
	}

	gs.mu.Lock()
	defer gs.mu.Unlock()

	if ref, ok := gs.registered[config.Name]; ok {
		ref.ReferenceCount++
		return ref.Geometry, nil
	}
	if uint32(len(gs.registered)) >= gs.config.MaxGeometryCount {
		err := fmt.Errorf("unable to obtain free slot for geometry. Adjust configuration to allow more space")
		core.LogError("%s", err.Error())
		return nil, err
	}

	geometry := &metadata.Geometry{
		ID:       gs.nextID,
		Name:     config.Name,
		Center:   config.Center,
		Extents:  math.Extents3D{Min: config.MinExtents, Max: config.MaxExtents},
		Vertices: config.Vertices,
		Indices:  config.Indices,
	}

	// Acquire the material
	if len(config.MaterialName) > 0 && gs.materials != nil {
		mat, err := gs.materials.Acquire(config.MaterialName)
		if err != nil {
			core.LogWarn("geometry '%s': %s, using default material", config.Name, err)
			mat = gs.materials.GetDefault()
		}
		geometry.Material = mat
	}

	gs.nextID++
	gs.registered[config.Name] = &metadata.GeometryReference{
		ReferenceCount: 1,
		Geometry:       geometry,
		AutoRelease:    autoRelease,
	}
	return geometry, nil
}

func (gs *GeometrySystem) AcquireByName(name string) (*metadata.Geometry, error) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	ref, ok := gs.registered[name]
	if !ok {
		return nil, fmt.Errorf("geometry '%s' not registered", name)
	}
	ref.ReferenceCount++
	return ref.Geometry, nil
}

/**
 * @brief Releases a reference to the provided geometry.
 */
func (gs *GeometrySystem) Release(geometry *metadata.Geometry) {
	if geometry == nil {
		core.LogWarn("geometry_system_release cannot release nil geometry. Nothing was done.")
		return
	}
	gs.mu.Lock()
	defer gs.mu.Unlock()
	ref, ok := gs.registered[geometry.Name]
	if !ok || ref.Geometry.ID != geometry.ID {
		core.LogError("Geometry id mismatch. Check registration logic, as this should never occur.")
		return
	}
	if ref.ReferenceCount > 0 {
		ref.ReferenceCount--
	}
	if ref.ReferenceCount < 1 && ref.AutoRelease {
		gs.destroyGeometry(ref.Geometry)
	}
}

func (gs *GeometrySystem) Count() int {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	return len(gs.registered)
}

func (gs *GeometrySystem) Shutdown() error {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	for _, ref := range gs.registered {
		gs.destroyGeometry(ref.Geometry)
	}
	return nil
}

func (gs *GeometrySystem) destroyGeometry(geometry *metadata.Geometry) {
	delete(gs.registered, geometry.Name)
	geometry.Vertices = nil
	geometry.Indices = nil

	// Release the material.
	if geometry.Material != nil && len(geometry.Material.Name) > 0 && gs.materials != nil {
		gs.materials.Release(geometry.Material.Name)
		geometry.Material = nil
	}
}

// Corner signs of each cube face, wound counter-clockwise seen from outside.
var cubeFaces = [6][4][3]float32{
	{{-1, -1, 1}, {1, 1, 1}, {-1, 1, 1}, {1, -1, 1}},     // front
	{{1, -1, -1}, {-1, 1, -1}, {1, 1, -1}, {-1, -1, -1}}, // back
	{{-1, -1, -1}, {-1, 1, 1}, {-1, 1, -1}, {-1, -1, 1}}, // left
	{{1, -1, 1}, {1, 1, -1}, {1, 1, 1}, {1, -1, -1}},     // right
	{{1, -1, 1}, {-1, -1, -1}, {1, -1, -1}, {-1, -1, 1}}, // bottom
	{{-1, 1, 1}, {1, 1, -1}, {-1, 1, -1}, {1, 1, 1}},     // top
}

/**
 * @brief Generates configuration for an axis-aligned cube of the given edge
 * length whose centre sits at center in the anchor's local space.
 */
func GenerateCubeConfig(size float32, center math.Vec3, name, materialName string) (*metadata.GeometryConfig, error) {
	if !(size > 0) || !center.IsFinite() || !math.NewVec3(size, size, size).IsFinite() {
		return nil, fmt.Errorf("%w: cube size %v and centre %+v must be positive and finite", core.ErrRenderableBuild, size, center)
	}

	half := size * 0.5
	texcoords := [4]math.Vec2{
		math.NewVec2(0, 0), math.NewVec2(1, 1), math.NewVec2(0, 1), math.NewVec2(1, 0),
	}

	config := &metadata.GeometryConfig{
		Vertices: make([]math.Vertex3D, 0, 4*6), // 4 verts per side, 6 side
		Indices:  make([]uint32, 0, 6*6),        // 6 indices per side, 6 side
	}
	for f, face := range cubeFaces {
		for c, corner := range face {
			config.Vertices = append(config.Vertices, math.Vertex3D{
				Position: math.NewVec3(corner[0]*half, corner[1]*half, corner[2]*half).Add(center),
				Texcoord: texcoords[c],
				Colour:   math.NewVec4(1, 1, 1, 1),
			})
		}
		v := uint32(f * 4)
		config.Indices = append(config.Indices, v+0, v+1, v+2, v+0, v+3, v+1)
	}
	math.GeometryGenerateNormals(config.Vertices, config.Indices)

	ext, c := math.GeometryComputeExtents(config.Vertices)
	config.MinExtents = ext.Min
	config.MaxExtents = ext.Max
	config.Center = c

	if len(name) > 0 {
		config.Name = name
	} else {
		config.Name = metadata.DefaultGeometryName
	}
	if len(materialName) > 0 {
		config.MaterialName = materialName
	} else {
		config.MaterialName = metadata.DefaultMaterialName
	}
	return config, nil
}
