package systems

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spaghettifunk/morphix/engine/core"
	"github.com/spaghettifunk/morphix/engine/renderer/metadata"
)

type RenderableSystemConfig struct {
	// BuildDelay holds the build back, standing in for a slow asset pipeline.
	BuildDelay time.Duration
}

// RenderableDone receives the outcome of the one renderable build.
type RenderableDone func(r *metadata.Renderable, err error)

// RenderableSystem builds the shared renderable exactly once and caches the
// outcome, success or failure, for the rest of the process.
type RenderableSystem struct {
	config    RenderableSystemConfig
	jobs      *JobSystem
	geometry  *GeometrySystem
	materials *MaterialSystem

	mu         sync.Mutex
	state      metadata.RenderableState
	renderable *metadata.Renderable
	err        error
}

func NewRenderableSystem(config RenderableSystemConfig, jobs *JobSystem, geometry *GeometrySystem, materials *MaterialSystem) *RenderableSystem {
	return &RenderableSystem{
		config:    config,
		jobs:      jobs,
		geometry:  geometry,
		materials: materials,
	}
}

// Build starts the asynchronous build and returns true, or returns false
// without doing anything if a build was already started. done runs on a job
// worker.
func (rs *RenderableSystem) Build(config metadata.RenderableConfig, done RenderableDone) bool {
	rs.mu.Lock()
	if rs.state != metadata.RenderableNotStarted {
		rs.mu.Unlock()
		core.LogWarn("renderable build already %s, not starting another", rs.state)
		return false
	}
	rs.state = metadata.RenderableBuilding
	rs.mu.Unlock()

	err := rs.jobs.Submit(metadata.JobTask{
		Name:    "renderable:" + config.Name,
		JobType: metadata.JOB_TYPE_GPU_RESOURCE,
		OnStart: func(ctx context.Context) (interface{}, error) {
			return rs.build(ctx, config)
		},
		OnComplete: func(result interface{}) {
			rs.finish(result.(*metadata.Renderable), nil, done)
		},
		OnFailure: func(err error) {
			rs.finish(nil, err, done)
		},
	})
	if err != nil {
		rs.finish(nil, fmt.Errorf("%w: %s", core.ErrRenderableBuild, err), done)
	}
	return true
}

func (rs *RenderableSystem) build(ctx context.Context, config metadata.RenderableConfig) (*metadata.Renderable, error) {
	if rs.config.BuildDelay > 0 {
		select {
		case <-time.After(rs.config.BuildDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", core.ErrRenderableBuild, ctx.Err())
		}
	}

	name := config.Name
	if name == "" {
		name = "cube"
	}
	mat, err := rs.materials.AcquireFromConfig(metadata.MaterialConfig{
		Name:          name + "_material",
		DiffuseColour: config.Colour,
		Opaque:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrRenderableBuild, err)
	}
	gc, err := GenerateCubeConfig(config.Size, config.Center, name, mat.Name)
	if err != nil {
		rs.materials.Release(mat.Name)
		return nil, err
	}
	geometry, err := rs.geometry.AcquireFromConfig(gc, false)
	// The geometry holds its own material reference now.
	rs.materials.Release(mat.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrRenderableBuild, err)
	}
	return &metadata.Renderable{
		Name:     name,
		Geometry: geometry,
		Material: geometry.Material,
	}, nil
}

func (rs *RenderableSystem) finish(r *metadata.Renderable, err error, done RenderableDone) {
	rs.mu.Lock()
	if err != nil {
		rs.state = metadata.RenderableFailed
		rs.err = err
	} else {
		rs.state = metadata.RenderableReady
		rs.renderable = r
	}
	rs.mu.Unlock()

	if err != nil {
		core.LogError("Unable to load renderable: %s", err)
	} else {
		core.LogInfo("renderable '%s' ready (%d vertices)", r.Name, len(r.Geometry.Vertices))
	}
	if done != nil {
		done(r, err)
	}
}

// Get returns the cached outcome. The renderable is nil unless the state is ready.
func (rs *RenderableSystem) Get() (*metadata.Renderable, metadata.RenderableState, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.renderable, rs.state, rs.err
}

func (rs *RenderableSystem) Shutdown() error {
	rs.mu.Lock()
	r := rs.renderable
	rs.renderable = nil
	rs.mu.Unlock()
	if r != nil && r.Geometry != nil {
		rs.geometry.Release(r.Geometry)
	}
	return nil
}
