package cache

import (
	"github.com/cirruslabs/tensorcraft/internal/loader"
	"github.com/cirruslabs/tensorcraft/internal/model"
	"go.uber.org/zap"
	"sync"
	"time"
)

// handle wraps a loaded instance and counts the predictions currently running
// against it. Once retired, no new leases can be acquired and the instance
// is closed as soon as the last outstanding lease is released.
type handle struct {
	key        model.Key
	descriptor model.Descriptor
	instance   loader.Instance
	loadedAt   time.Time
	logger     *zap.SugaredLogger

	mtx     sync.Mutex
	leases  int
	retired bool
	closed  bool
}

func newHandle(descriptor model.Descriptor, instance loader.Instance, logger *zap.SugaredLogger) *handle {
	return &handle{
		key:        descriptor.Key,
		descriptor: descriptor,
		instance:   instance,
		loadedAt:   time.Now(),
		logger:     logger,
	}
}

func (handle *handle) acquire() bool {
	handle.mtx.Lock()
	defer handle.mtx.Unlock()

	if handle.retired {
		return false
	}

	handle.leases++

	return true
}

func (handle *handle) release() {
	handle.mtx.Lock()
	handle.leases--
	shouldClose := handle.retired && handle.leases == 0 && !handle.closed
	if shouldClose {
		handle.closed = true
	}
	handle.mtx.Unlock()

	if shouldClose {
		handle.close()
	}
}

func (handle *handle) retire() {
	handle.mtx.Lock()
	if handle.retired {
		handle.mtx.Unlock()

		return
	}
	handle.retired = true
	shouldClose := handle.leases == 0 && !handle.closed
	if shouldClose {
		handle.closed = true
	}
	handle.mtx.Unlock()

	if shouldClose {
		handle.close()
	}
}

func (handle *handle) close() {
	if err := handle.instance.Close(); err != nil {
		handle.logger.Warnf("failed to close model %s loaded at %s: %v", handle.key,
			handle.loadedAt.Format(time.RFC3339), err)

		return
	}

	handle.logger.Debugf("closed model %s after serving its last prediction", handle.key)
}
