// Package cache keeps loaded models in memory and reconciles them with
// the artifacts and descriptors stored durably.
//
// Each model goes through the following states:
//
//   - absent: nothing is cached, the next prediction starts a load
//   - loading: exactly one load is in flight and all callers wait for it
//   - ready: the loaded instance serves predictions under a lease
//
// A failed load returns the model to the absent state. Pushing or removing
// a model invalidates its entry, and the retired instance is closed only
// after the last prediction running against it completes.
package cache

import (
	"context"
	"errors"
	"fmt"
	"github.com/cirruslabs/tensorcraft/internal/loader"
	"github.com/cirruslabs/tensorcraft/internal/metadata"
	"github.com/cirruslabs/tensorcraft/internal/model"
	"github.com/cirruslabs/tensorcraft/internal/storage"
	"github.com/im7mortal/kmutex"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var ErrClosed = errors.New("model cache is closed")

type Cache struct {
	storage  storage.Storage
	metadata metadata.Store
	loader   loader.Loader

	entries *xsync.MapOf[model.Key, *entry]

	// Serializes pushes and removals of the same model
	kmutex *kmutex.Kmutex

	preload bool
	logger  *zap.SugaredLogger
	metrics *metrics

	// Guards the closed flag against loads being started
	// while Close() waits for the in-flight ones
	loadsMtx sync.Mutex
	loads    sync.WaitGroup
	closed   atomic.Bool
}

// Status summarizes the state of the in-memory models.
type Status struct {
	Ready   int `json:"ready"`
	Loading int `json:"loading"`
}

func New(
	ctx context.Context,
	storage storage.Storage,
	metadata metadata.Store,
	loader loader.Loader,
	opts ...Option,
) (*Cache, error) {
	cache := &Cache{
		storage:  storage,
		metadata: metadata,
		loader:   loader,
		entries:  xsync.NewMapOf[model.Key, *entry](),
		kmutex:   kmutex.New(),
	}

	// Apply options
	for _, opt := range opts {
		opt(cache)
	}

	// Apply defaults
	if cache.logger == nil {
		cache.logger = zap.NewNop().Sugar()
	}

	metrics, err := newMetrics(cache)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize model cache metrics: %w", err)
	}
	cache.metrics = metrics

	if cache.preload {
		if err := cache.preloadAll(ctx); err != nil {
			cache.Close()

			return nil, err
		}
	}

	return cache, nil
}

// Predict runs the model identified by key against the input,
// loading the model first if it's not in memory yet.
func (cache *Cache) Predict(ctx context.Context, key model.Key, input map[string]any) (any, error) {
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrValidation, err)
	}

	handle, err := cache.acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	defer handle.release()

	output, err := handle.instance.Predict(ctx, input)
	if err != nil {
		if !errors.Is(err, model.ErrInference) {
			err = fmt.Errorf("%w: %w", model.ErrInference, err)
		}

		return nil, fmt.Errorf("failed to run model %s: %w", key, err)
	}

	return output, nil
}

// Push stores a new artifact for the model and records its descriptor,
// replacing the previous version of the model, if any.
func (cache *Cache) Push(ctx context.Context, key model.Key, r io.Reader) (model.Descriptor, error) {
	if err := key.Validate(); err != nil {
		return model.Descriptor{}, fmt.Errorf("%w: %w", model.ErrValidation, err)
	}

	cache.kmutex.Lock(key)
	defer cache.kmutex.Unlock(key)

	descriptor := model.Descriptor{
		Key: key,
	}

	// Preserve the creation time when replacing an existing model
	previous, err := cache.metadata.Get(ctx, key)
	if err == nil {
		descriptor.CreatedAt = previous.CreatedAt
	} else if !errors.Is(err, model.ErrNotFound) {
		return model.Descriptor{}, err
	}

	// The artifact must be durable before it's advertised
	info, err := cache.storage.Write(ctx, key, r)
	if err != nil {
		return model.Descriptor{}, err
	}

	now := time.Now().UTC()

	descriptor.Size = info.Size
	descriptor.Checksum = info.Checksum
	descriptor.Location = info.Location
	descriptor.UpdatedAt = now
	if descriptor.CreatedAt.IsZero() {
		descriptor.CreatedAt = now
	}

	if err := cache.metadata.Put(ctx, descriptor); err != nil {
		return model.Descriptor{}, err
	}

	cache.invalidate(key)

	cache.logger.Infof("pushed model %s (%d bytes, checksum %s)", key, descriptor.Size, descriptor.Checksum)

	return descriptor, nil
}

// Remove deletes the model and evicts it from memory.
func (cache *Cache) Remove(ctx context.Context, key model.Key) error {
	if err := key.Validate(); err != nil {
		return fmt.Errorf("%w: %w", model.ErrValidation, err)
	}

	cache.kmutex.Lock(key)
	defer cache.kmutex.Unlock(key)

	if _, err := cache.metadata.Get(ctx, key); err != nil {
		return err
	}

	cache.invalidate(key)

	// Metadata goes first, so that a descriptor
	// never points to a deleted artifact
	if err := cache.metadata.Delete(ctx, key); err != nil {
		return err
	}

	// Loads don't take the per-key lock, so a prediction that arrived
	// in between might have cached the model again from the descriptor
	// that was just deleted
	cache.invalidate(key)

	if err := cache.storage.Delete(ctx, key); err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			return err
		}

		cache.logger.Warnf("artifact for model %s was already missing when removing it", key)
	}

	cache.logger.Infof("removed model %s", key)

	return nil
}

// Export returns the descriptor of the model together with its stored
// artifact, which the caller is responsible for closing.
func (cache *Cache) Export(ctx context.Context, key model.Key) (model.Descriptor, io.ReadCloser, error) {
	if err := key.Validate(); err != nil {
		return model.Descriptor{}, nil, fmt.Errorf("%w: %w", model.ErrValidation, err)
	}

	// Make sure that the descriptor and the artifact
	// aren't torn apart by a concurrent push
	cache.kmutex.Lock(key)
	defer cache.kmutex.Unlock(key)

	descriptor, err := cache.metadata.Get(ctx, key)
	if err != nil {
		return model.Descriptor{}, nil, err
	}

	artifact, err := cache.storage.Read(ctx, key)
	if err != nil {
		return model.Descriptor{}, nil, err
	}

	return descriptor, artifact, nil
}

// List returns the descriptors of all stored models,
// regardless of whether they're loaded or not.
func (cache *Cache) List(ctx context.Context) ([]model.Descriptor, error) {
	return metadata.Collect(cache.metadata.List(ctx))
}

func (cache *Cache) Status() Status {
	var status Status

	cache.entries.Range(func(_ model.Key, entry *entry) bool {
		if !entry.ready() {
			status.Loading++

			return true
		}

		if handle, err := entry.result(); err == nil && handle != nil {
			status.Ready++
		}

		return true
	})

	return status
}

// Close evicts all models and waits for the in-flight loads to complete.
// Instances that are still serving predictions are closed once these
// predictions complete.
func (cache *Cache) Close() {
	cache.loadsMtx.Lock()
	alreadyClosed := cache.closed.Swap(true)
	cache.loadsMtx.Unlock()

	if alreadyClosed {
		return
	}

	cache.entries.Range(func(key model.Key, _ *entry) bool {
		cache.invalidate(key)

		return true
	})

	cache.loads.Wait()
}

func (cache *Cache) preloadAll(ctx context.Context) error {
	var loaded, failed int

	for descriptor, err := range cache.metadata.List(ctx) {
		if err != nil {
			return fmt.Errorf("failed to list models to preload: %w", err)
		}

		handle, err := cache.acquire(ctx, descriptor.Key)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			cache.logger.Warnf("failed to preload model %s: %v", descriptor.Key, err)
			failed++

			continue
		}

		handle.release()
		loaded++
	}

	cache.logger.Infof("preloaded %d models, %d failed to load", loaded, failed)

	return nil
}

// acquire returns the loaded model with a lease held on it,
// the caller is responsible for releasing it.
func (cache *Cache) acquire(ctx context.Context, key model.Key) (*handle, error) {
	for {
		if cache.closed.Load() {
			return nil, ErrClosed
		}

		current, loaded := cache.entries.LoadOrCompute(key, newEntry)

		cache.metrics.lookup(loaded && current.ready())

		if !loaded {
			// Waiters may give up, but the load should still
			// complete for the ones that are still waiting
			cache.startLoad(context.WithoutCancel(ctx), key, current)
		}

		select {
		case <-current.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		handle, err := current.result()
		if err != nil {
			return nil, err
		}

		if handle.acquire() {
			return handle, nil
		}

		// The model was invalidated right after loading,
		// so try again with whatever is stored now
	}
}

func (cache *Cache) startLoad(ctx context.Context, key model.Key, target *entry) {
	cache.loadsMtx.Lock()
	defer cache.loadsMtx.Unlock()

	if cache.closed.Load() {
		cache.forget(key, target)
		target.finish(nil, ErrClosed)

		return
	}

	cache.loads.Add(1)

	go func() {
		defer cache.loads.Done()

		cache.load(ctx, key, target)
	}()
}

func (cache *Cache) load(ctx context.Context, key model.Key, target *entry) {
	started := time.Now()

	handle, err := cache.loadHandle(ctx, key)

	cache.metrics.load(started, err)

	if err != nil {
		cache.logger.Warnf("failed to load model %s: %v", key, err)

		// Don't cache the failure, the next caller will retry
		cache.forget(key, target)

		target.finish(nil, err)

		return
	}

	cache.logger.Debugf("loaded model %s in %v", key, time.Since(started))

	target.finish(handle, nil)

	if cache.closed.Load() {
		cache.invalidate(key)
	}
}

func (cache *Cache) loadHandle(ctx context.Context, key model.Key) (*handle, error) {
	descriptor, err := cache.metadata.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	artifact, err := cache.storage.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	defer artifact.Close()

	instance, err := cache.loader.Load(ctx, key, artifact)
	if err != nil {
		if model.KindOf(err) == nil {
			err = fmt.Errorf("%w: %w", model.ErrModelFormat, err)
		}

		return nil, fmt.Errorf("failed to load model %s: %w", key, err)
	}

	return newHandle(descriptor, instance, cache.logger), nil
}

// forget removes the entry from the map unless
// it was already replaced by a newer one.
func (cache *Cache) forget(key model.Key, target *entry) {
	cache.entries.Compute(key, func(current *entry, loaded bool) (*entry, bool) {
		if loaded && current != target {
			return current, false
		}

		return nil, true
	})
}

// invalidate makes sure no new predictions are served by the currently
// cached model, the next prediction loads the model again.
func (cache *Cache) invalidate(key model.Key) {
	entry, ok := cache.entries.LoadAndDelete(key)
	if !ok {
		return
	}

	entry.evict()
}
