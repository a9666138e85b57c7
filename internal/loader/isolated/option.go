package isolated

import (
	"go.uber.org/zap"
	"time"
)

type Option func(isolated *Isolated)

func WithWorkers(workers int) Option {
	return func(isolated *Isolated) {
		if workers > 0 {
			isolated.workers = workers
		}
	}
}

func WithQueue(queue int) Option {
	return func(isolated *Isolated) {
		if queue >= 0 {
			isolated.queue = queue
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(isolated *Isolated) {
		if timeout > 0 {
			isolated.timeout = timeout
		}
	}
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(isolated *Isolated) {
		isolated.logger = logger
	}
}
