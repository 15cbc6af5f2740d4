package metadata

import "context"

/** @brief Describes a type of job */
type JobType int

const (
	/**
	 * @brief A general job that does not have any specific thread requirements.
	 * This means it matters little which job thread this job runs on.
	 */
	JOB_TYPE_GENERAL JobType = 0x02
	/**
	 * @brief A resource loading job, such as decoding an image and building
	 * a reference database from it.
	 */
	JOB_TYPE_RESOURCE_LOAD JobType = 0x04
	/**
	 * @brief Builds a renderable (geometry plus material).
	 */
	JOB_TYPE_GPU_RESOURCE JobType = 0x08
)

func (jt JobType) String() string {
	switch jt {
	case JOB_TYPE_RESOURCE_LOAD:
		return "resource_load"
	case JOB_TYPE_GPU_RESOURCE:
		return "gpu_resource"
	}
	return "general"
}

/**
 * @brief Describes a job to be run. OnStart is required; exactly one of
 * OnComplete or OnFailure runs afterwards, on the worker goroutine.
 */
type JobTask struct {
	Name    string
	JobType JobType
	/** @brief Runs the work and returns its result. Required. */
	OnStart func(ctx context.Context) (interface{}, error)
	/** @brief Invoked with the result when OnStart succeeds. Optional. */
	OnComplete func(result interface{})
	/** @brief Invoked with the error when OnStart fails. Optional. */
	OnFailure func(err error)
}
