package model_test

import (
	"context"
	"errors"
	"fmt"
	"github.com/cirruslabs/tensorcraft/internal/model"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestNewKey(t *testing.T) {
	key, err := model.NewKey("resnet", "v1")
	require.NoError(t, err)
	require.Equal(t, "resnet:v1", key.String())

	_, err = model.NewKey("", "v1")
	require.ErrorIs(t, err, model.ErrInvalidKey)

	_, err = model.NewKey("resnet", "")
	require.ErrorIs(t, err, model.ErrInvalidKey)
}

func TestKeyEqualityIsCaseSensitive(t *testing.T) {
	require.NotEqual(t, model.Key{Name: "ResNet", Tag: "v1"}, model.Key{Name: "resnet", Tag: "v1"})
	require.Equal(t, model.Key{Name: "resnet", Tag: "v1"}, model.Key{Name: "resnet", Tag: "v1"})
}

func TestKeyCompare(t *testing.T) {
	require.Negative(t, model.Key{Name: "a", Tag: "z"}.Compare(model.Key{Name: "b", Tag: "a"}))
	require.Negative(t, model.Key{Name: "a", Tag: "a"}.Compare(model.Key{Name: "a", Tag: "b"}))
	require.Zero(t, model.Key{Name: "a", Tag: "a"}.Compare(model.Key{Name: "a", Tag: "a"}))
}

func TestKindOf(t *testing.T) {
	cause := errors.New("disk on fire")
	err := fmt.Errorf("%w: failed to write: %w", model.ErrStorageIO, cause)

	require.Equal(t, model.ErrStorageIO, model.KindOf(err))
	require.ErrorIs(t, err, cause)
	require.Nil(t, model.KindOf(context.Canceled))
}
