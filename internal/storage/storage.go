package storage

import (
	"context"
	"github.com/cirruslabs/tensorcraft/internal/model"
	"io"
)

// Info describes a freshly written artifact.
type Info struct {
	Size     int64
	Checksum string
	Location string
}

// Storage persists model artifacts.
//
// Write either makes the complete new artifact visible under the key or
// leaves the previous one (or its absence) intact, so readers never observe
// a partially written artifact.
type Storage interface {
	Write(ctx context.Context, key model.Key, r io.Reader) (Info, error)
	Read(ctx context.Context, key model.Key) (io.ReadCloser, error)
	Delete(ctx context.Context, key model.Key) error
	Exists(ctx context.Context, key model.Key) (bool, error)
	Keys(ctx context.Context) ([]model.Key, error)
}
