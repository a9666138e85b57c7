package percentencoding_test

import (
	"github.com/cirruslabs/tensorcraft/internal/storage/disk/percentencoding"
	"github.com/stretchr/testify/require"
	"strings"
	"testing"
	"testing/quick"
)

func TestQuickCheck(t *testing.T) {
	f := func(original string) bool {
		encoded := percentencoding.Encode(original)

		// Encoded form should be safe to use as a single path component
		if strings.ContainsAny(encoded, "/.") {
			return false
		}

		decoded, err := percentencoding.Decode(encoded)
		if err != nil {
			panic(err)
		}

		return original == decoded
	}

	require.NoError(t, quick.Check(f, &quick.Config{
		MaxCount: 100_000,
	}))
}

func TestEncode(t *testing.T) {
	require.Equal(t, "resnet-50_v1", percentencoding.Encode("resnet-50_v1"))
	require.Equal(t, "%2e%2e%2fetc%2fpasswd", percentencoding.Encode("../etc/passwd"))
	require.Equal(t, "v1%2e0", percentencoding.Encode("v1.0"))
	require.Equal(t, "%52es%4eet", percentencoding.Encode("ResNet"))
}

func TestEncodeIgnoresCase(t *testing.T) {
	f := func(original string) bool {
		return percentencoding.Encode(original) == strings.ToLower(percentencoding.Encode(original))
	}

	require.NoError(t, quick.Check(f, nil))

	require.NotEqual(t, strings.ToLower(percentencoding.Encode("ResNet")),
		strings.ToLower(percentencoding.Encode("resnet")))
}

func TestDecodeUppercase(t *testing.T) {
	decoded, err := percentencoding.Decode("ResNet")
	require.NoError(t, err)
	require.Equal(t, "ResNet", decoded)
}

func TestDecodeInvalid(t *testing.T) {
	_, err := percentencoding.Decode("abc%2")
	require.ErrorIs(t, err, percentencoding.ErrIncompleteInput)

	_, err = percentencoding.Decode("abc%zz")
	require.ErrorIs(t, err, percentencoding.ErrInvalidEscape)

	_, err = percentencoding.Decode("a.b")
	require.ErrorIs(t, err, percentencoding.ErrInvalidEscape)
}
