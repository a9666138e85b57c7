// Package archivetest builds in-memory model archives for tests.
package archivetest

import (
	"archive/tar"
	"bytes"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
	"io"
	"slices"
	"testing"
)

func Tar(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer

	writeTar(t, &buf, files)

	return buf.Bytes()
}

func TarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer

	gzipWriter := gzip.NewWriter(&buf)
	writeTar(t, gzipWriter, files)
	require.NoError(t, gzipWriter.Close())

	return buf.Bytes()
}

// Model builds an archive with a model.yaml manifest evaluating the given expression.
func Model(t *testing.T, name string, expression string, inputs ...string) []byte {
	t.Helper()

	var manifest bytes.Buffer

	manifest.WriteString("name: " + name + "\n")
	manifest.WriteString("expression: '" + expression + "'\n")

	if len(inputs) != 0 {
		manifest.WriteString("inputs:\n")

		for _, input := range inputs {
			manifest.WriteString("  - " + input + "\n")
		}
	}

	return Tar(t, map[string]string{
		"model.yaml": manifest.String(),
	})
}

func writeTar(t *testing.T, w io.Writer, files map[string]string) {
	t.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	slices.Sort(names)

	tarWriter := tar.NewWriter(w)

	for _, name := range names {
		content := files[name]

		require.NoError(t, tarWriter.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0600,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))

		_, err := tarWriter.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, tarWriter.Close())
}
