// Package archive deals with model artifacts, which are tar archives
// that may optionally be compressed with gzip.
package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"github.com/klauspost/compress/gzip"
	"io"
	"path"
)

var (
	ErrEmpty        = errors.New("archive contains no files")
	ErrFileNotFound = errors.New("file not found in the archive")
)

//nolint:gochecknoglobals // it's a constant in spirit
var gzipMagic = []byte{0x1f, 0x8b}

// Summary describes the contents of a validated archive.
type Summary struct {
	Files      int
	Compressed bool
}

// Validate reads the whole archive and ensures that it's well-formed.
func Validate(r io.Reader) (*Summary, error) {
	tarReader, compressed, closer, err := open(r)
	if err != nil {
		return nil, err
	}
	defer closer()

	summary := &Summary{
		Compressed: compressed,
	}

	for {
		header, err := tarReader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			return nil, fmt.Errorf("failed to read tar header: %w", err)
		}

		if _, err := io.Copy(io.Discard, tarReader); err != nil {
			return nil, fmt.Errorf("failed to read %q from the archive: %w", header.Name, err)
		}

		if header.Typeflag == tar.TypeReg {
			summary.Files++
		}
	}

	if summary.Files == 0 {
		return nil, ErrEmpty
	}

	return summary, nil
}

// ReadFile returns the contents of the regular file with the given name.
// Leading "./" and "/" are ignored when comparing names.
func ReadFile(r io.Reader, name string) ([]byte, error) {
	tarReader, _, closer, err := open(r)
	if err != nil {
		return nil, err
	}
	defer closer()

	name = clean(name)

	for {
		header, err := tarReader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
			}

			return nil, fmt.Errorf("failed to read tar header: %w", err)
		}

		if header.Typeflag != tar.TypeReg || clean(header.Name) != name {
			continue
		}

		return io.ReadAll(tarReader)
	}
}

func open(r io.Reader) (*tar.Reader, bool, func(), error) {
	bufferedReader := bufio.NewReader(r)

	magic, err := bufferedReader.Peek(len(gzipMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, false, nil, err
	}

	if !bytes.Equal(magic, gzipMagic) {
		return tar.NewReader(bufferedReader), false, func() {}, nil
	}

	gzipReader, err := gzip.NewReader(bufferedReader)
	if err != nil {
		return nil, false, nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}

	return tar.NewReader(gzipReader), true, func() {
		_ = gzipReader.Close()
	}, nil
}

func clean(name string) string {
	name = path.Clean("/" + name)

	return name[1:]
}
