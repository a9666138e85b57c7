package model

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidKey = errors.New("invalid model key")

// Key identifies a model. Two keys are equal iff both fields match exactly.
type Key struct {
	Name string `json:"name"`
	Tag  string `json:"tag"`
}

func NewKey(name string, tag string) (Key, error) {
	key := Key{Name: name, Tag: tag}

	if err := key.Validate(); err != nil {
		return Key{}, err
	}

	return key, nil
}

func (key Key) Validate() error {
	if key.Name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidKey)
	}

	if key.Tag == "" {
		return fmt.Errorf("%w: tag cannot be empty", ErrInvalidKey)
	}

	return nil
}

func (key Key) String() string {
	return key.Name + ":" + key.Tag
}

// Compare orders keys by name first and then by tag.
func (key Key) Compare(other Key) int {
	if result := strings.Compare(key.Name, other.Name); result != 0 {
		return result
	}

	return strings.Compare(key.Tag, other.Tag)
}
