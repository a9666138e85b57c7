package expression_test

import (
	"bytes"
	"context"
	"github.com/cirruslabs/tensorcraft/internal/archive/archivetest"
	"github.com/cirruslabs/tensorcraft/internal/loader/expression"
	"github.com/cirruslabs/tensorcraft/internal/model"
	"github.com/stretchr/testify/require"
	"testing"
)

var key = model.Key{Name: "linear", Tag: "v1"}

func TestPredict(t *testing.T) {
	ctx := context.Background()

	instance, err := expression.Load(ctx, key, bytes.NewReader(archivetest.Model(t, "linear", "x * 2 + 1", "x")))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, instance.Close())
	})

	output, err := instance.Predict(ctx, map[string]any{"x": 20})
	require.NoError(t, err)
	require.EqualValues(t, 41, output)
}

func TestPredictCompressed(t *testing.T) {
	ctx := context.Background()

	tarball := archivetest.TarGz(t, map[string]string{
		expression.ManifestName: "name: greeter\ninputs: [name]\nexpression: '\"Hello, \" + name'\n",
	})

	instance, err := expression.Load(ctx, key, bytes.NewReader(tarball))
	require.NoError(t, err)

	output, err := instance.Predict(ctx, map[string]any{"name": "World"})
	require.NoError(t, err)
	require.Equal(t, "Hello, World", output)
}

func TestPredictMissingInput(t *testing.T) {
	ctx := context.Background()

	instance, err := expression.Load(ctx, key, bytes.NewReader(archivetest.Model(t, "linear", "x * 2", "x")))
	require.NoError(t, err)

	_, err = instance.Predict(ctx, map[string]any{"y": 1})
	require.ErrorIs(t, err, model.ErrInference)
	require.ErrorIs(t, err, expression.ErrMissingInput)
}

func TestPredictRuntimeError(t *testing.T) {
	ctx := context.Background()

	instance, err := expression.Load(ctx, key, bytes.NewReader(archivetest.Model(t, "linear", "x * 2", "x")))
	require.NoError(t, err)

	_, err = instance.Predict(ctx, map[string]any{"x": "not a number"})
	require.ErrorIs(t, err, model.ErrInference)

	// The instance should still be usable afterwards
	output, err := instance.Predict(ctx, map[string]any{"x": 2})
	require.NoError(t, err)
	require.EqualValues(t, 4, output)
}

func TestLoadInvalid(t *testing.T) {
	ctx := context.Background()

	testCases := map[string][]byte{
		"no manifest": archivetest.Tar(t, map[string]string{"weights.bin": "0101"}),
		"bad yaml": archivetest.Tar(t, map[string]string{
			expression.ManifestName: "expression: [unterminated",
		}),
		"unknown field": archivetest.Tar(t, map[string]string{
			expression.ManifestName: "expression: x\nweights: 1\n",
		}),
		"no expression": archivetest.Tar(t, map[string]string{
			expression.ManifestName: "name: empty\n",
		}),
		"bad expression": archivetest.Model(t, "broken", "x +* ", "x"),
	}

	for name, tarball := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := expression.Load(ctx, key, bytes.NewReader(tarball))
			require.ErrorIs(t, err, model.ErrModelFormat)
		})
	}
}
