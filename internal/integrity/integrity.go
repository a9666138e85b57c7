// Package integrity cross-checks the artifact storage against the
// metadata store to find entries that exist in only one of them.
package integrity

import (
	"context"
	"errors"
	"fmt"
	"github.com/cirruslabs/tensorcraft/internal/metadata"
	"github.com/cirruslabs/tensorcraft/internal/model"
	"github.com/cirruslabs/tensorcraft/internal/storage"
	"github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"
	"slices"
)

type Report struct {
	// Artifacts without a descriptor, e.g. left by
	// a push that failed to record the metadata
	Orphaned []model.Key

	// Descriptors pointing to a missing artifact
	Dangling []model.Key

	// Artifacts that don't match their descriptor,
	// only populated when verifying checksums
	Corrupted []model.Key
}

func (report *Report) Healthy() bool {
	return len(report.Orphaned) == 0 && len(report.Dangling) == 0 && len(report.Corrupted) == 0
}

type Checker struct {
	storage         storage.Storage
	metadata        metadata.Store
	verifyChecksums bool
	logger          *zap.SugaredLogger
}

func New(storage storage.Storage, metadata metadata.Store, opts ...Option) *Checker {
	checker := &Checker{
		storage:  storage,
		metadata: metadata,
	}

	// Apply options
	for _, opt := range opts {
		opt(checker)
	}

	// Apply defaults
	if checker.logger == nil {
		checker.logger = zap.NewNop().Sugar()
	}

	return checker
}

func (checker *Checker) Check(ctx context.Context) (*Report, error) {
	artifactKeys, err := checker.storage.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate artifacts: %w", err)
	}

	artifacts := mapset.NewThreadUnsafeSet[model.Key](artifactKeys...)
	descriptors := map[model.Key]model.Descriptor{}
	described := mapset.NewThreadUnsafeSet[model.Key]()

	for descriptor, err := range checker.metadata.List(ctx) {
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate descriptors: %w", err)
		}

		descriptors[descriptor.Key] = descriptor
		described.Add(descriptor.Key)
	}

	report := &Report{
		Orphaned: sorted(artifacts.Difference(described)),
		Dangling: sorted(described.Difference(artifacts)),
	}

	if checker.verifyChecksums {
		for _, key := range sorted(artifacts.Intersect(described)) {
			matches, err := checker.verify(ctx, descriptors[key])
			if err != nil {
				// The artifact might have been removed since we've listed it
				if errors.Is(err, model.ErrNotFound) {
					report.Dangling = append(report.Dangling, key)

					continue
				}

				return nil, err
			}

			if !matches {
				report.Corrupted = append(report.Corrupted, key)
			}
		}

		slices.SortFunc(report.Dangling, model.Key.Compare)
	}

	return report, nil
}

// Prune deletes the orphaned artifacts and the dangling descriptors found
// in the report. Corrupted artifacts are left intact, since re-pushing them
// is the only way to fix them.
func (checker *Checker) Prune(ctx context.Context, report *Report) error {
	for _, key := range report.Orphaned {
		if err := checker.storage.Delete(ctx, key); err != nil && !errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("failed to prune orphaned artifact %s: %w", key, err)
		}

		checker.logger.Infof("pruned orphaned artifact %s", key)
	}

	for _, key := range report.Dangling {
		if err := checker.metadata.Delete(ctx, key); err != nil && !errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("failed to prune dangling descriptor %s: %w", key, err)
		}

		checker.logger.Infof("pruned dangling descriptor %s", key)
	}

	return nil
}

func (checker *Checker) verify(ctx context.Context, descriptor model.Descriptor) (bool, error) {
	artifact, err := checker.storage.Read(ctx, descriptor.Key)
	if err != nil {
		return false, err
	}
	defer artifact.Close()

	checksum, size, err := storage.Checksum(artifact)
	if err != nil {
		return false, fmt.Errorf("%w: failed to read artifact %s: %w", model.ErrStorageIO, descriptor.Key, err)
	}

	if checksum != descriptor.Checksum || size != descriptor.Size {
		checker.logger.Warnf("artifact %s has checksum %s and size %d, expected checksum %s and size %d",
			descriptor.Key, checksum, size, descriptor.Checksum, descriptor.Size)

		return false, nil
	}

	return true, nil
}

func sorted(keys mapset.Set[model.Key]) []model.Key {
	result := keys.ToSlice()

	slices.SortFunc(result, model.Key.Compare)

	return result
}
