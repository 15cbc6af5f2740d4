package systems

import "errors"

type SystemManagerConfig struct {
	JobWorkers       int
	JobQueueSize     int
	MaxMaterialCount uint32
	MaxGeometryCount uint32
	Renderable       RenderableSystemConfig
	ImageDatabase    ImageDatabaseSystemConfig
}

func DefaultSystemManagerConfig() SystemManagerConfig {
	return SystemManagerConfig{
		JobWorkers:       2,
		JobQueueSize:     16,
		MaxMaterialCount: 64,
		MaxGeometryCount: 64,
		ImageDatabase: ImageDatabaseSystemConfig{
			MinImageSize: 64,
			MaxImageSize: 1024,
		},
	}
}

type SystemManager struct {
	JobSystem           *JobSystem
	MaterialSystem      *MaterialSystem
	GeometrySystem      *GeometrySystem
	RenderableSystem    *RenderableSystem
	ImageDatabaseSystem *ImageDatabaseSystem
}

func NewSystemManager(config SystemManagerConfig) (*SystemManager, error) {
	js, err := NewJobSystem(config.JobWorkers, config.JobQueueSize)
	if err != nil {
		return nil, err
	}
	ms, err := NewMaterialSystem(MaterialSystemConfig{
		MaxMaterialCount: config.MaxMaterialCount,
	})
	if err != nil {
		js.Shutdown()
		return nil, err
	}
	gs, err := NewGeometrySystem(GeometrySystemConfig{
		MaxGeometryCount: config.MaxGeometryCount,
	}, ms)
	if err != nil {
		js.Shutdown()
		return nil, err
	}
	ids, err := NewImageDatabaseSystem(config.ImageDatabase)
	if err != nil {
		js.Shutdown()
		return nil, err
	}
	return &SystemManager{
		JobSystem:           js,
		MaterialSystem:      ms,
		GeometrySystem:      gs,
		RenderableSystem:    NewRenderableSystem(config.Renderable, js, gs, ms),
		ImageDatabaseSystem: ids,
	}, nil
}

// Shutdown stops the workers first so no build is in flight while the
// registries are torn down.
func (sm *SystemManager) Shutdown() error {
	var errs []error
	if err := sm.JobSystem.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	if err := sm.RenderableSystem.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	if err := sm.GeometrySystem.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	if err := sm.MaterialSystem.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
