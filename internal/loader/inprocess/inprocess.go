// Package inprocess loads models synchronously on the calling goroutine.
package inprocess

import (
	"context"
	"github.com/cirruslabs/tensorcraft/internal/loader"
	"github.com/cirruslabs/tensorcraft/internal/model"
	"io"
)

type InProcess struct {
	format loader.Loader
}

func New(format loader.Loader) *InProcess {
	return &InProcess{
		format: format,
	}
}

func (inProcess *InProcess) Load(ctx context.Context, key model.Key, r io.Reader) (loader.Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return inProcess.format.Load(ctx, key, r)
}
