package loader

import (
	"context"
	"github.com/cirruslabs/tensorcraft/internal/model"
	"io"
)

// Instance is a model that was loaded into memory and is ready to serve predictions.
type Instance interface {
	Predict(ctx context.Context, input map[string]any) (any, error)
	Close() error
}

// Loader turns the stored artifact bytes into an Instance.
//
// Implementations return errors tagged with model.ErrModelFormat,
// model.ErrLoadTimeout or model.ErrResourceExhausted.
type Loader interface {
	Load(ctx context.Context, key model.Key, r io.Reader) (Instance, error)
}

// Func adapts an ordinary function to the Loader interface.
type Func func(ctx context.Context, key model.Key, r io.Reader) (Instance, error)

func (f Func) Load(ctx context.Context, key model.Key, r io.Reader) (Instance, error) {
	return f(ctx, key, r)
}
