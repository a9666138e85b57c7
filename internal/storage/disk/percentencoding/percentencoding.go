// Package percentencoding implements a much stricter form of URL encoding[1]
// suitable for turning model names and tags into filesystem path components
// without the need of things like SecureJoin[2].
//
// Only lowercase ASCII letters, digits, "-" and "_" are left as is, which
// means that the encoded form never contains "/", never starts with "." and
// is never empty for a non-empty input. Encoding uppercase letters too keeps
// distinct inputs distinct on case-insensitive filesystems.
//
// [1]: https://en.wikipedia.org/wiki/Percent-encoding
// [2]: https://github.com/cyphar/filepath-securejoin
package percentencoding

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrIncompleteInput = errors.New("incomplete input")
	ErrInvalidEscape   = errors.New("invalid escape sequence")
)

func Encode(s string) string {
	var result strings.Builder

	result.Grow(len(s))

	for _, c := range []byte(s) {
		if unreserved(c) && !(c >= 'A' && c <= 'Z') {
			result.WriteByte(c)

			continue
		}

		result.WriteByte('%')
		result.WriteString(hex.EncodeToString([]byte{c}))
	}

	return result.String()
}

func Decode(s string) (string, error) {
	var result strings.Builder

	result.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]

		if c != '%' {
			if !unreserved(c) {
				return "", fmt.Errorf("%w: unexpected character %q at position %d", ErrInvalidEscape, c, i)
			}

			result.WriteByte(c)

			continue
		}

		if (i + 3) > len(s) {
			return "", ErrIncompleteInput
		}

		value, err := hex.DecodeString(s[i+1 : i+3])
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidEscape, err)
		}

		result.Write(value)

		i += 2
	}

	return result.String(), nil
}

func unreserved(c byte) bool {
	switch {
	case c >= '0' && c <= '9':
		return true
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c == '-' || c == '_':
		return true
	default:
		return false
	}
}
