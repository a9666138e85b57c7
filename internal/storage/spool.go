package storage

import (
	"encoding/hex"
	"fmt"
	"github.com/cirruslabs/tensorcraft/internal/archive"
	"github.com/cirruslabs/tensorcraft/internal/model"
	"hash"
	"io"
	"lukechampine.com/blake3"
	"os"
)

// Spooled is an artifact that was copied to a temporary file
// and validated, but is not yet visible to the readers.
type Spooled struct {
	File     *os.File
	Size     int64
	Checksum string
}

// Spool copies r into a temporary file created in dir, computing its
// checksum along the way, and validates that it's a well-formed archive.
//
// On success, the caller is responsible for either accepting the file
// (e.g. by renaming it) or calling Discard().
func Spool(dir string, pattern string, r io.Reader) (*Spooled, error) {
	tmpFile, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create a temporary file: %w", model.ErrStorageIO, err)
	}

	spooled := &Spooled{File: tmpFile}

	hasher := newHasher()

	n, err := io.Copy(io.MultiWriter(tmpFile, hasher), r)
	if err != nil {
		spooled.Discard()

		return nil, fmt.Errorf("%w: failed to receive the artifact: %w", model.ErrStorageIO, err)
	}

	spooled.Size = n
	spooled.Checksum = hex.EncodeToString(hasher.Sum(nil))

	if _, err := tmpFile.Seek(0, io.SeekStart); err != nil {
		spooled.Discard()

		return nil, fmt.Errorf("%w: failed to rewind the temporary file: %w", model.ErrStorageIO, err)
	}

	if _, err := archive.Validate(tmpFile); err != nil {
		spooled.Discard()

		return nil, fmt.Errorf("%w: %w", model.ErrValidation, err)
	}

	if _, err := tmpFile.Seek(0, io.SeekStart); err != nil {
		spooled.Discard()

		return nil, fmt.Errorf("%w: failed to rewind the temporary file: %w", model.ErrStorageIO, err)
	}

	return spooled, nil
}

func (spooled *Spooled) Name() string {
	return spooled.File.Name()
}

// Discard closes and removes the temporary file.
func (spooled *Spooled) Discard() {
	_ = spooled.File.Close()
	_ = os.Remove(spooled.File.Name())
}

// Checksum computes the size and the checksum of r the same way
// Write() does when storing the artifact.
func Checksum(r io.Reader) (string, int64, error) {
	hasher := newHasher()

	n, err := io.Copy(hasher, r)
	if err != nil {
		return "", 0, err
	}

	return hex.EncodeToString(hasher.Sum(nil)), n, nil
}

func newHasher() hash.Hash {
	return blake3.New(32, nil)
}
