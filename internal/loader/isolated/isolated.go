// Package isolated loads models on a bounded pool of workers, limiting
// how many loads can run or wait at once and how long each of them may take.
package isolated

import (
	"context"
	"errors"
	"fmt"
	"github.com/cirruslabs/tensorcraft/internal/loader"
	"github.com/cirruslabs/tensorcraft/internal/model"
	"github.com/gammazero/workerpool"
	"go.uber.org/zap"
	"io"
	"sync/atomic"
	"time"
)

const (
	DefaultWorkers = 2
	DefaultQueue   = 16
	DefaultTimeout = 5 * time.Minute
)

type Isolated struct {
	format  loader.Loader
	pool    *workerpool.WorkerPool
	workers int
	queue   int
	timeout time.Duration
	logger  *zap.SugaredLogger

	// Loads that are either running or waiting for a worker
	pending atomic.Int64
}

type result struct {
	instance loader.Instance
	err      error
}

func New(format loader.Loader, opts ...Option) *Isolated {
	isolated := &Isolated{
		format:  format,
		workers: DefaultWorkers,
		queue:   DefaultQueue,
		timeout: DefaultTimeout,
	}

	// Apply options
	for _, opt := range opts {
		opt(isolated)
	}

	// Apply defaults
	if isolated.logger == nil {
		isolated.logger = zap.NewNop().Sugar()
	}

	isolated.pool = workerpool.New(isolated.workers)

	return isolated
}

func (isolated *Isolated) Load(ctx context.Context, key model.Key, r io.Reader) (loader.Instance, error) {
	capacity := int64(isolated.workers + isolated.queue)

	if pending := isolated.pending.Add(1); pending > capacity {
		isolated.pending.Add(-1)

		return nil, fmt.Errorf("%w: %d loads are already running or queued, refusing to load %s",
			model.ErrResourceExhausted, capacity, key)
	}

	ctx, cancel := context.WithTimeout(ctx, isolated.timeout)
	defer cancel()

	results := make(chan result, 1)

	isolated.pool.Submit(func() {
		defer isolated.pending.Add(-1)

		// Don't even start if the caller gave up while we were queued
		if err := ctx.Err(); err != nil {
			results <- result{err: err}

			return
		}

		results <- isolated.loadSafely(ctx, key, r)
	})

	select {
	case res := <-results:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: loading %s took longer than %s", model.ErrLoadTimeout,
				key, isolated.timeout)
		}

		return res.instance, res.err
	case <-ctx.Done():
		// The worker is still busy, make sure that whatever
		// it produces eventually is not leaked
		go func() {
			if late := <-results; late.instance != nil {
				if err := late.instance.Close(); err != nil {
					isolated.logger.Warnf("failed to close the late instance of %s: %v", key, err)
				}
			}
		}()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: loading %s took longer than %s", model.ErrLoadTimeout,
				key, isolated.timeout)
		}

		return nil, ctx.Err()
	}
}

// Close waits for the running and queued loads to finish and stops the workers.
func (isolated *Isolated) Close() {
	isolated.pool.StopWait()
}

func (isolated *Isolated) loadSafely(ctx context.Context, key model.Key, r io.Reader) (res result) {
	defer func() {
		if recovered := recover(); recovered != nil {
			res.instance = nil
			res.err = fmt.Errorf("%w: loader panicked while loading %s: %v", model.ErrModelFormat,
				key, recovered)
		}
	}()

	instance, err := isolated.format.Load(ctx, key, r)

	return result{instance: instance, err: err}
}
