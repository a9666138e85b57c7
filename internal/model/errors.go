package model

import "errors"

// Error kinds. Components wrap the underlying cause together with one of these
// so that the transport layer can tell them apart with errors.Is().
var (
	ErrNotFound          = errors.New("model not found")
	ErrValidation        = errors.New("malformed model artifact")
	ErrModelFormat       = errors.New("unsupported model format")
	ErrLoadTimeout       = errors.New("model load timed out")
	ErrResourceExhausted = errors.New("model loader is out of resources")
	ErrInference         = errors.New("model inference failed")
	ErrStorageIO         = errors.New("storage failure")
)

//nolint:gochecknoglobals // lookup table for KindOf()
var kinds = []error{
	ErrNotFound,
	ErrValidation,
	ErrModelFormat,
	ErrLoadTimeout,
	ErrResourceExhausted,
	ErrInference,
	ErrStorageIO,
}

// KindOf returns the error kind err was tagged with, or nil
// if it carries none of the known kinds.
func KindOf(err error) error {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}

	return nil
}
