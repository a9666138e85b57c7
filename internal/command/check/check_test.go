package check_test

import (
	"bytes"
	"context"
	"github.com/cirruslabs/tensorcraft/internal/archive/archivetest"
	"github.com/cirruslabs/tensorcraft/internal/backend"
	"github.com/cirruslabs/tensorcraft/internal/command/check"
	"github.com/cirruslabs/tensorcraft/internal/config"
	"github.com/cirruslabs/tensorcraft/internal/model"
	"github.com/stretchr/testify/require"
	"io"
	"testing"
)

func TestCheck(t *testing.T) {
	ctx := context.Background()
	dataRoot := t.TempDir()

	opened, err := backend.Open(ctx, &config.Config{DataRoot: dataRoot})
	require.NoError(t, err)

	_, err = opened.Storage.Write(ctx, model.Key{Name: "orphaned", Tag: "v1"},
		bytes.NewReader(archivetest.Model(t, "orphaned", "1")))
	require.NoError(t, err)
	require.NoError(t, opened.Close())

	// Inconsistencies are reported
	output, err := runCheck(ctx, "--data-root", dataRoot)
	require.ErrorIs(t, err, check.ErrInconsistent)
	require.Contains(t, output, "orphaned artifact: orphaned:v1")

	// ...and pruned on request
	output, err = runCheck(ctx, "--data-root", dataRoot, "--prune", "--checksums")
	require.NoError(t, err)
	require.Contains(t, output, "pruned all inconsistencies")

	output, err = runCheck(ctx, "--data-root", dataRoot)
	require.NoError(t, err)
	require.Contains(t, output, "no inconsistencies found")
}

func runCheck(ctx context.Context, args ...string) (string, error) {
	var output bytes.Buffer

	cmd := check.NewCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&output)
	cmd.SetErr(io.Discard)
	cmd.SilenceUsage = true

	err := cmd.ExecuteContext(ctx)

	return output.String(), err
}
