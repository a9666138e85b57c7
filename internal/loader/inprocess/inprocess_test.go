package inprocess_test

import (
	"bytes"
	"context"
	"github.com/cirruslabs/tensorcraft/internal/archive/archivetest"
	"github.com/cirruslabs/tensorcraft/internal/loader"
	"github.com/cirruslabs/tensorcraft/internal/loader/expression"
	"github.com/cirruslabs/tensorcraft/internal/loader/inprocess"
	"github.com/cirruslabs/tensorcraft/internal/model"
	"github.com/stretchr/testify/require"
	"io"
	"testing"
)

func TestLoad(t *testing.T) {
	ctx := context.Background()
	key := model.Key{Name: "linear", Tag: "v1"}

	inProcess := inprocess.New(loader.Func(expression.Load))

	instance, err := inProcess.Load(ctx, key, bytes.NewReader(archivetest.Model(t, "linear", "x - 1", "x")))
	require.NoError(t, err)

	output, err := instance.Predict(ctx, map[string]any{"x": 1})
	require.NoError(t, err)
	require.EqualValues(t, 0, output)
}

func TestLoadCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var called bool

	inProcess := inprocess.New(loader.Func(func(context.Context, model.Key, io.Reader) (loader.Instance, error) {
		called = true

		return nil, nil
	}))

	_, err := inProcess.Load(ctx, model.Key{Name: "linear", Tag: "v1"}, bytes.NewReader(nil))
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, called)
}
