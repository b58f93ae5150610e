package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/modelbind/modelbind/pkg/tensor"
)

// Future is the pending result of an asynchronous infer call.
type Future struct {
	done    chan struct{}
	outputs map[string]*tensor.Tensor
	err     error
}

// Result blocks until the call finishes or the context expires.
func (f *Future) Result(ctx context.Context) (map[string]*tensor.Tensor, error) {
	select {
	case <-f.done:
		return f.outputs, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done reports completion without blocking.
func (f *Future) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

type futureJob struct {
	ctx    context.Context
	inputs map[string]*tensor.Tensor
	future *Future
}

// FuturesClient runs infer calls on a fixed worker pool and hands back
// futures, so a caller can keep a bounded number of requests in
// flight. Close when done.
type FuturesClient struct {
	client *ModelClient

	jobs chan futureJob
	wg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewFutures creates a FuturesClient for the named model. Worker count
// is set with WithMaxWorkers.
func NewFutures(serverURL, modelName string, opts ...Option) (*FuturesClient, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxWorkers <= 0 {
		return nil, fmt.Errorf("max workers must be > 0, got %d", o.maxWorkers)
	}

	inner, err := New(serverURL, modelName, opts...)
	if err != nil {
		return nil, err
	}

	fc := &FuturesClient{
		client: inner,
		jobs:   make(chan futureJob),
	}
	for i := 0; i < o.maxWorkers; i++ {
		fc.wg.Add(1)
		go fc.worker()
	}
	return fc, nil
}

func (fc *FuturesClient) worker() {
	defer fc.wg.Done()
	for job := range fc.jobs {
		outputs, err := fc.client.InferBatch(job.ctx, job.inputs)
		job.future.outputs = outputs
		job.future.err = err
		close(job.future.done)
	}
}

// WaitForModel blocks until the model is ready, like
// ModelClient.WaitForModel.
func (fc *FuturesClient) WaitForModel(ctx context.Context) error {
	return fc.client.WaitForModel(ctx)
}

// InferBatch submits a batched infer call and returns immediately.
// Blocks only when all workers are busy and the submission queue is
// full.
func (fc *FuturesClient) InferBatch(ctx context.Context, inputs map[string]*tensor.Tensor) *Future {
	future := &Future{done: make(chan struct{})}

	fc.mu.RLock()
	defer fc.mu.RUnlock()
	if fc.closed {
		future.err = ErrClientClosed
		close(future.done)
		return future
	}
	fc.jobs <- futureJob{ctx: ctx, inputs: inputs, future: future}
	return future
}

// Close stops accepting work and waits for in-flight calls to finish.
// Submissions after Close resolve to ErrClientClosed.
func (fc *FuturesClient) Close() {
	fc.mu.Lock()
	if !fc.closed {
		fc.closed = true
		close(fc.jobs)
	}
	fc.mu.Unlock()
	fc.wg.Wait()
}
