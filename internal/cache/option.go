package cache

import (
	"go.uber.org/zap"
)

type Option func(cache *Cache)

// WithPreload makes New() load every model known to the metadata
// store before returning.
func WithPreload(preload bool) Option {
	return func(cache *Cache) {
		cache.preload = preload
	}
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(cache *Cache) {
		cache.logger = logger
	}
}
