package isolated_test

import (
	"bytes"
	"context"
	"github.com/cirruslabs/tensorcraft/internal/archive/archivetest"
	"github.com/cirruslabs/tensorcraft/internal/loader"
	"github.com/cirruslabs/tensorcraft/internal/loader/expression"
	"github.com/cirruslabs/tensorcraft/internal/loader/isolated"
	"github.com/cirruslabs/tensorcraft/internal/model"
	"github.com/stretchr/testify/require"
	"io"
	"sync/atomic"
	"testing"
	"time"
)

var key = model.Key{Name: "linear", Tag: "v1"}

type trackingInstance struct {
	closed atomic.Bool
}

func (instance *trackingInstance) Predict(context.Context, map[string]any) (any, error) {
	return "ok", nil
}

func (instance *trackingInstance) Close() error {
	instance.closed.Store(true)

	return nil
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	iso := isolated.New(loader.Func(expression.Load))
	t.Cleanup(iso.Close)

	instance, err := iso.Load(ctx, key, bytes.NewReader(archivetest.Model(t, "linear", "x * 3", "x")))
	require.NoError(t, err)

	output, err := instance.Predict(ctx, map[string]any{"x": 3})
	require.NoError(t, err)
	require.EqualValues(t, 9, output)
}

func TestLoadTimeout(t *testing.T) {
	lateInstance := &trackingInstance{}

	iso := isolated.New(loader.Func(func(context.Context, model.Key, io.Reader) (loader.Instance, error) {
		// Ignore the context on purpose to simulate a misbehaving loader
		time.Sleep(200 * time.Millisecond)

		return lateInstance, nil
	}), isolated.WithTimeout(20*time.Millisecond))
	t.Cleanup(iso.Close)

	_, err := iso.Load(context.Background(), key, bytes.NewReader(nil))
	require.ErrorIs(t, err, model.ErrLoadTimeout)

	// Instance produced after the deadline should not be leaked
	require.Eventually(t, lateInstance.closed.Load, 5*time.Second, 10*time.Millisecond)
}

func TestLoadSaturated(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	iso := isolated.New(loader.Func(func(context.Context, model.Key, io.Reader) (loader.Instance, error) {
		close(started)
		<-release

		return &trackingInstance{}, nil
	}), isolated.WithWorkers(1), isolated.WithQueue(0))
	t.Cleanup(iso.Close)

	firstErr := make(chan error, 1)

	go func() {
		_, err := iso.Load(context.Background(), key, bytes.NewReader(nil))
		firstErr <- err
	}()

	<-started

	// The only worker is busy and no queueing is allowed
	_, err := iso.Load(context.Background(), key, bytes.NewReader(nil))
	require.ErrorIs(t, err, model.ErrResourceExhausted)

	close(release)
	require.NoError(t, <-firstErr)
}

func TestLoadPanic(t *testing.T) {
	iso := isolated.New(loader.Func(func(context.Context, model.Key, io.Reader) (loader.Instance, error) {
		panic("corrupted weights")
	}))
	t.Cleanup(iso.Close)

	_, err := iso.Load(context.Background(), key, bytes.NewReader(nil))
	require.ErrorIs(t, err, model.ErrModelFormat)

	// Pool should still be operational
	_, err = iso.Load(context.Background(), key, bytes.NewReader(nil))
	require.ErrorIs(t, err, model.ErrModelFormat)
}
