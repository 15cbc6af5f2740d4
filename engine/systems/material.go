package systems

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/morphix/engine/core"
	"github.com/spaghettifunk/morphix/engine/math"
	"github.com/spaghettifunk/morphix/engine/renderer/metadata"
)

type MaterialSystemConfig struct {
	MaxMaterialCount uint32
}

// MaterialSystem owns reference-counted materials by name.
type MaterialSystem struct {
	mu              sync.Mutex
	config          MaterialSystemConfig
	nextID          uint32
	registered      map[string]*metadata.MaterialReference
	defaultMaterial *metadata.Material
}

func NewMaterialSystem(config MaterialSystemConfig) (*MaterialSystem, error) {
	if config.MaxMaterialCount == 0 {
		return nil, fmt.Errorf("func NewMaterialSystem - config.MaxMaterialCount must be > 0")
	}
	ms := &MaterialSystem{
		config:     config,
		registered: make(map[string]*metadata.MaterialReference),
	}
	ms.defaultMaterial = &metadata.Material{
		ID:            ms.nextID,
		Name:          metadata.DefaultMaterialName,
		DiffuseColour: math.NewVec4(1, 1, 1, 1),
	}
	ms.nextID++
	return ms, nil
}

// AcquireFromConfig registers a material or, when the name exists, bumps its
// reference count. Colour channels are clamped to [0, 1].
func (ms *MaterialSystem) AcquireFromConfig(config metadata.MaterialConfig) (*metadata.Material, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("material name must not be empty")
	}
	if config.Name == metadata.DefaultMaterialName {
		return ms.defaultMaterial, nil
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ref, ok := ms.registered[config.Name]; ok {
		ref.ReferenceCount++
		return ref.Material, nil
	}
	if uint32(len(ms.registered)) >= ms.config.MaxMaterialCount {
		return nil, fmt.Errorf("material system is full (%d); adjust configuration to allow more", ms.config.MaxMaterialCount)
	}

	c := config.DiffuseColour
	colour := math.NewVec4(math.Clamp(c.X, 0, 1), math.Clamp(c.Y, 0, 1), math.Clamp(c.Z, 0, 1), math.Clamp(c.W, 0, 1))
	if config.Opaque {
		colour.W = 1
	}
	m := &metadata.Material{
		ID:            ms.nextID,
		Name:          config.Name,
		DiffuseColour: colour,
		Shininess:     config.Shininess,
	}
	ms.nextID++
	ms.registered[config.Name] = &metadata.MaterialReference{
		ReferenceCount: 1,
		Material:       m,
		AutoRelease:    config.AutoRelease,
	}
	core.LogDebug("material '%s' created with colour %+v", m.Name, m.DiffuseColour)
	return m, nil
}

func (ms *MaterialSystem) Acquire(name string) (*metadata.Material, error) {
	if name == metadata.DefaultMaterialName {
		return ms.defaultMaterial, nil
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ref, ok := ms.registered[name]
	if !ok {
		return nil, fmt.Errorf("material '%s' not found", name)
	}
	ref.ReferenceCount++
	return ref.Material, nil
}

func (ms *MaterialSystem) Release(name string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ref, ok := ms.registered[name]
	if !ok {
		if name != metadata.DefaultMaterialName {
			core.LogWarn("material_system_release called for unknown material '%s'", name)
		}
		return
	}
	if ref.ReferenceCount > 0 {
		ref.ReferenceCount--
	}
	if ref.ReferenceCount == 0 && ref.AutoRelease {
		delete(ms.registered, name)
		core.LogDebug("material '%s' released", name)
	}
}

func (ms *MaterialSystem) GetDefault() *metadata.Material {
	return ms.defaultMaterial
}

func (ms *MaterialSystem) Shutdown() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.registered = make(map[string]*metadata.MaterialReference)
	return nil
}
