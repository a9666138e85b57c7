package disk

import (
	"context"
	"errors"
	"fmt"
	"github.com/cirruslabs/tensorcraft/internal/model"
	"github.com/cirruslabs/tensorcraft/internal/storage"
	"github.com/cirruslabs/tensorcraft/internal/storage/disk/percentencoding"
	"github.com/im7mortal/kmutex"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	extension = ".tar"

	// Temporary files start with a dot, which can never
	// appear at the beginning of a percent-encoded name
	tmpPattern = ".put-*"
)

// Disk stores each artifact as <dir>/<name>/<tag>.tar, where both
// the name and the tag are percent-encoded.
type Disk struct {
	dir    string
	kmutex *kmutex.Kmutex
}

func New(dir string) (*Disk, error) {
	disk := &Disk{
		dir:    dir,
		kmutex: kmutex.New(),
	}

	// Pre-create the disk's directory if not created yet
	if err := os.MkdirAll(dir, 0755); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, err
	}

	return disk, nil
}

func (disk *Disk) Write(_ context.Context, key model.Key, r io.Reader) (storage.Info, error) {
	spooled, err := storage.Spool(disk.dir, tmpPattern, r)
	if err != nil {
		return storage.Info{}, fmt.Errorf("failed to write artifact %s: %w", key, err)
	}

	if err := spooled.File.Sync(); err != nil {
		spooled.Discard()

		return storage.Info{}, fmt.Errorf("%w: failed to sync artifact %s: %w", model.ErrStorageIO, key, err)
	}

	if err := spooled.File.Close(); err != nil {
		_ = os.Remove(spooled.Name())

		return storage.Info{}, fmt.Errorf("%w: failed to close artifact %s: %w", model.ErrStorageIO, key, err)
	}

	if err := disk.accept(key, spooled.Name()); err != nil {
		_ = os.Remove(spooled.Name())

		return storage.Info{}, fmt.Errorf("%w: failed to accept artifact %s: %w", model.ErrStorageIO, key, err)
	}

	return storage.Info{
		Size:     spooled.Size,
		Checksum: spooled.Checksum,
		Location: disk.path(key),
	}, nil
}

func (disk *Disk) Read(_ context.Context, key model.Key) (io.ReadCloser, error) {
	// No locking is needed here: artifacts are replaced by
	// rename(2), so an open file always refers to a complete one
	file, err := os.Open(disk.path(key))
	if err != nil {
		// Convert the error for consumer's convenience
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: no artifact for %s", model.ErrNotFound, key)
		}

		return nil, fmt.Errorf("%w: failed to open artifact %s: %w", model.ErrStorageIO, key, err)
	}

	return file, nil
}

func (disk *Disk) Delete(_ context.Context, key model.Key) error {
	disk.kmutex.Lock(key)
	defer disk.kmutex.Unlock(key)

	if err := os.Remove(disk.path(key)); err != nil {
		// Convert the error for consumer's convenience
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: no artifact for %s", model.ErrNotFound, key)
		}

		return fmt.Errorf("%w: failed to delete artifact %s: %w", model.ErrStorageIO, key, err)
	}

	return nil
}

func (disk *Disk) Exists(_ context.Context, key model.Key) (bool, error) {
	_, err := os.Stat(disk.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("%w: failed to stat artifact %s: %w", model.ErrStorageIO, key, err)
	}

	return true, nil
}

func (disk *Disk) Keys(_ context.Context) ([]model.Key, error) {
	nameEntries, err := os.ReadDir(disk.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrStorageIO, err)
	}

	var keys []model.Key

	for _, nameEntry := range nameEntries {
		if !nameEntry.IsDir() || strings.HasPrefix(nameEntry.Name(), ".") {
			continue
		}

		name, err := percentencoding.Decode(nameEntry.Name())
		if err != nil {
			continue
		}

		tagEntries, err := os.ReadDir(filepath.Join(disk.dir, nameEntry.Name()))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrStorageIO, err)
		}

		for _, tagEntry := range tagEntries {
			encodedTag, ok := strings.CutSuffix(tagEntry.Name(), extension)
			if !ok || !tagEntry.Type().IsRegular() {
				continue
			}

			tag, err := percentencoding.Decode(encodedTag)
			if err != nil {
				continue
			}

			keys = append(keys, model.Key{Name: name, Tag: tag})
		}
	}

	slices.SortFunc(keys, model.Key.Compare)

	return keys, nil
}

func (disk *Disk) path(key model.Key) string {
	return filepath.Join(disk.dir, percentencoding.Encode(key.Name),
		percentencoding.Encode(key.Tag)+extension)
}

func (disk *Disk) accept(key model.Key, path string) error {
	disk.kmutex.Lock(key)
	defer disk.kmutex.Unlock(key)

	target := disk.path(key)

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	// Accept new artifact
	return os.Rename(path, target)
}
