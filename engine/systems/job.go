package systems

import (
	"context"
	"fmt"
	"sync"

	"github.com/spaghettifunk/morphix/engine/core"
	"github.com/spaghettifunk/morphix/engine/renderer/metadata"
)

// JobSystem is a fixed pool of workers draining a bounded queue. Results are
// handed to the task callbacks on the worker goroutine; callers that need
// them elsewhere post them on.
type JobSystem struct {
	numWorkers int
	jobQueue   chan metadata.JobTask
	wg         sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan metadata.JobTask, channelSize),
		ctx:        ctx,
		cancel:     cancel,
	}

	js.start()

	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				js.run(job)
			}
		}()
	}
}

func (js *JobSystem) run(job metadata.JobTask) {
	result, err := js.execute(job)
	if err != nil {
		core.LogError("job '%s' (%s) failed: %s", job.Name, job.JobType, err)
		if job.OnFailure != nil {
			job.OnFailure(err)
		}
		return
	}
	core.LogDebug("job '%s' (%s) completed", job.Name, job.JobType)
	if job.OnComplete != nil {
		job.OnComplete(result)
	}
}

func (js *JobSystem) execute(job metadata.JobTask) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job '%s' panicked: %v", job.Name, r)
		}
	}()
	if job.OnStart == nil {
		return nil, fmt.Errorf("job '%s' has no entry point", job.Name)
	}
	return job.OnStart(js.ctx)
}

/**
 * @brief Shuts the job system down. Queued jobs still run, with a cancelled context.
 */
func (js *JobSystem) Shutdown() error {
	js.cancel()
	js.mu.Lock()
	if js.closed {
		js.mu.Unlock()
		return nil
	}
	js.closed = true
	close(js.jobQueue)
	js.mu.Unlock()
	js.wg.Wait()
	return nil
}

/**
 * @brief Submits the provided job to be queued for execution. Blocks while the
 * queue is full.
 */
func (js *JobSystem) Submit(jt metadata.JobTask) error {
	js.mu.RLock()
	defer js.mu.RUnlock()
	if js.closed {
		return core.ErrEngineClosed
	}
	select {
	case js.jobQueue <- jt:
		return nil
	case <-js.ctx.Done():
		return core.ErrEngineClosed
	}
}
