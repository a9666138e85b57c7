package metadata

import (
	"context"
	"github.com/cirruslabs/tensorcraft/internal/model"
	"iter"
)

// Store durably records a descriptor for every stored artifact.
type Store interface {
	Put(ctx context.Context, descriptor model.Descriptor) error
	Get(ctx context.Context, key model.Key) (model.Descriptor, error)
	Delete(ctx context.Context, key model.Key) error

	// List lazily yields all descriptors ordered by key. Each
	// iteration over the returned sequence starts from scratch.
	List(ctx context.Context) iter.Seq2[model.Descriptor, error]

	Close() error
}

// Collect drains the sequence returned by List().
func Collect(seq iter.Seq2[model.Descriptor, error]) ([]model.Descriptor, error) {
	var descriptors []model.Descriptor

	for descriptor, err := range seq {
		if err != nil {
			return nil, err
		}

		descriptors = append(descriptors, descriptor)
	}

	return descriptors, nil
}
