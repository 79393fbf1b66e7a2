package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/squadscrape/squadpanel/internal/execution/worker"
)

// Run is a single execution of a worker in a slot.
type Run struct {
	id         string
	slot       SlotID
	workerPath string
	url        string
	output     string
	invocation worker.StartConfig
	startedAt  time.Time

	// guarded by the supervisor lock
	handle    worker.Handle
	cancelled bool

	once   sync.Once
	done   chan struct{}
	result RunResult
}

func newRun(id string, slot SlotID, workerPath, url, output string, invocation worker.StartConfig) *Run {
	return &Run{
		id:         id,
		slot:       slot,
		workerPath: workerPath,
		url:        url,
		output:     output,
		invocation: invocation,
		startedAt:  time.Now(),
		done:       make(chan struct{}),
	}
}

func (r *Run) ID() string {
	return r.id
}

func (r *Run) Slot() SlotID {
	return r.slot
}

// URL returns the normalized url the worker was started with.
func (r *Run) URL() string {
	return r.url
}

// Invocation returns the command line the worker is started with.
func (r *Run) Invocation() worker.StartConfig {
	return r.invocation
}

// Done is closed once the run completed and its slot is idle again.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Result returns the outcome of the run. It is only valid
// after Done has been closed.
func (r *Run) Result() RunResult {
	select {
	case <-r.done:
		return r.result
	default:
		return RunResult{}
	}
}

// Wait blocks until the run completed or ctx is done.
func (r *Run) Wait(ctx context.Context) (RunResult, error) {
	select {
	case <-r.done:
		return r.result, nil
	case <-ctx.Done():
		return RunResult{}, ctx.Err()
	}
}
