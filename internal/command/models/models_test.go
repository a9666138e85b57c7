package models_test

import (
	"bytes"
	"context"
	"github.com/cirruslabs/tensorcraft/internal/archive/archivetest"
	"github.com/cirruslabs/tensorcraft/internal/command/models"
	"github.com/cirruslabs/tensorcraft/internal/model"
	"github.com/cirruslabs/tensorcraft/internal/server"
	"github.com/cirruslabs/tensorcraft/internal/testutil"
	"github.com/cirruslabs/tensorcraft/internal/tlsconfig"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestScenario(t *testing.T) {
	serviceURL := startServer(t)
	name := uuid.NewString()

	artifactPath := filepath.Join(t.TempDir(), "model.tar")
	require.NoError(t, os.WriteFile(artifactPath, archivetest.Model(t, name, "x * 2", "x"), 0600))

	output, err := run(models.NewPushCommand(), "-s", serviceURL, name, "v1", artifactPath)
	require.NoError(t, err)
	require.Contains(t, output, "pushed model "+name+":v1")

	output, err = run(models.NewListCommand(), "-s", serviceURL)
	require.NoError(t, err)
	require.Contains(t, output, "NAME")
	require.Contains(t, output, name)

	output, err = run(models.NewPredictCommand(), "-s", serviceURL, "--input", `{"x": 21}`, name, "v1")
	require.NoError(t, err)
	require.Equal(t, "42\n", output)

	output, err = run(models.NewStatusCommand(), "-s", serviceURL)
	require.NoError(t, err)
	require.Contains(t, output, "status: running")
	require.Contains(t, output, "models: 1 ready, 0 loading")

	output, err = run(models.NewRemoveCommand(), "-s", serviceURL, name, "v1")
	require.NoError(t, err)
	require.Contains(t, output, "removed model "+name+":v1")

	_, err = run(models.NewRemoveCommand(), "-s", serviceURL, name, "v1")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestExport(t *testing.T) {
	serviceURL := startServer(t)
	name := uuid.NewString()
	dir := t.TempDir()

	artifact := archivetest.Model(t, name, "1")

	artifactPath := filepath.Join(dir, "model.tar")
	require.NoError(t, os.WriteFile(artifactPath, artifact, 0600))

	_, err := run(models.NewPushCommand(), "-s", serviceURL, name, "v1", artifactPath)
	require.NoError(t, err)

	exportPath := filepath.Join(dir, "exported.tar")

	output, err := run(models.NewExportCommand(), "-s", serviceURL, "-o", exportPath, name, "v1")
	require.NoError(t, err)
	require.Contains(t, output, "exported model "+name+":v1 to "+exportPath)

	exported, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	require.Equal(t, artifact, exported)

	output, err = run(models.NewExportCommand(), "-s", serviceURL, "-o", "-", name, "v1")
	require.NoError(t, err)
	require.Equal(t, string(artifact), output)

	// Nothing is left behind when the export fails
	missingPath := filepath.Join(dir, "missing.tar")

	_, err = run(models.NewExportCommand(), "-s", serviceURL, "-o", missingPath, uuid.NewString(), "v1")
	require.ErrorIs(t, err, model.ErrNotFound)
	require.NoFileExists(t, missingPath)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestTLS(t *testing.T) {
	files := testutil.TLS(t)

	serverTLSConfig, err := tlsconfig.Server(files.ServerCert, files.ServerKey, files.CACert)
	require.NoError(t, err)

	serviceURL := startServer(t, server.WithTLSConfig(serverTLSConfig))

	output, err := run(models.NewStatusCommand(), "-s", serviceURL, "--tlsverify",
		"--tlscacert", files.CACert, "--tlscert", files.ClientCert, "--tlskey", files.ClientKey)
	require.NoError(t, err)
	require.Contains(t, output, "status: running")

	// An explicitly requested client certificate must exist
	_, err = run(models.NewStatusCommand(), "-s", serviceURL, "--tlsverify",
		"--tlscacert", files.CACert, "--tlscert", filepath.Join(t.TempDir(), "missing.pem"),
		"--tlskey", files.ClientKey)
	require.Error(t, err)
}

func TestPushInvalidArtifact(t *testing.T) {
	serviceURL := startServer(t)

	artifactPath := filepath.Join(t.TempDir(), "model.tar")
	require.NoError(t, os.WriteFile(artifactPath, []byte("not a tar archive"), 0600))

	_, err := run(models.NewPushCommand(), "-s", serviceURL, "broken", "v1", artifactPath)
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestPredictInvalidInput(t *testing.T) {
	serviceURL := startServer(t)

	_, err := run(models.NewPredictCommand(), "-s", serviceURL, "--input", "{", "name", "v1")
	require.ErrorIs(t, err, model.ErrValidation)
}

func run(cmd *cobra.Command, args ...string) (string, error) {
	var output bytes.Buffer

	cmd.SetArgs(args)
	cmd.SetOut(&output)
	cmd.SetErr(io.Discard)
	cmd.SilenceUsage = true

	err := cmd.ExecuteContext(context.Background())

	return output.String(), err
}

func startServer(t *testing.T, opts ...server.Option) string {
	t.Helper()

	tensorcraftServer, err := server.New("127.0.0.1:0", testutil.Cache(t), opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() {
		done <- tensorcraftServer.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	return "http://" + tensorcraftServer.Addr()
}
