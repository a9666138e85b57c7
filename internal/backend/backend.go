// Package backend opens the durable stores described by the configuration.
package backend

import (
	"context"
	"errors"
	"fmt"
	"github.com/cirruslabs/tensorcraft/internal/config"
	"github.com/cirruslabs/tensorcraft/internal/metadata/sqlite"
	"github.com/cirruslabs/tensorcraft/internal/storage"
	"github.com/cirruslabs/tensorcraft/internal/storage/disk"
	"github.com/cirruslabs/tensorcraft/internal/storage/s3"
	"os"
	"path/filepath"
)

const (
	artifactsDir     = "artifacts"
	metadataFilename = "metadata.db"
)

type Backend struct {
	Storage  storage.Storage
	Metadata *sqlite.SQLite
}

// Open creates the data root directory if needed and opens the artifact storage
// (S3 when configured, a directory inside the data root otherwise) together
// with the metadata store, which always lives in the data root.
func Open(ctx context.Context, config *config.Config) (*Backend, error) {
	if err := os.MkdirAll(config.DataRoot, 0755); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("failed to create data root directory %s: %w", config.DataRoot, err)
	}

	artifactStorage, err := openStorage(ctx, config)
	if err != nil {
		return nil, err
	}

	metadataStore, err := sqlite.Open(filepath.Join(config.DataRoot, metadataFilename))
	if err != nil {
		return nil, err
	}

	return &Backend{
		Storage:  artifactStorage,
		Metadata: metadataStore,
	}, nil
}

// Close flushes the metadata store.
func (backend *Backend) Close() error {
	return backend.Metadata.Close()
}

func openStorage(ctx context.Context, config *config.Config) (storage.Storage, error) {
	if config.S3 == nil {
		return disk.New(filepath.Join(config.DataRoot, artifactsDir))
	}

	// Rely on the AWS SDK defaults when no custom endpoint is given
	if config.S3.Endpoint == "" {
		s3Storage, err := s3.New(ctx, config.S3.Bucket, config.S3.Prefix)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 storage: %w", err)
		}

		return s3Storage, nil
	}

	s3Storage, err := s3.NewFromConfig(ctx, &s3.Config{
		Endpoint:        config.S3.Endpoint,
		Region:          config.S3.Region,
		AccessKeyID:     config.S3.AccessKeyID,
		AccessKeySecret: config.S3.AccessKeySecret,
		Bucket:          config.S3.Bucket,
		Prefix:          config.S3.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize S3 storage at %s: %w", config.S3.Endpoint, err)
	}

	return s3Storage, nil
}
