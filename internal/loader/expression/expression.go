// Package expression implements the model format served by default: a tar archive
// with a model.yaml manifest whose "expression" is evaluated for each prediction.
package expression

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"github.com/cirruslabs/tensorcraft/internal/archive"
	"github.com/cirruslabs/tensorcraft/internal/loader"
	"github.com/cirruslabs/tensorcraft/internal/model"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"
	"io"
)

const ManifestName = "model.yaml"

var ErrMissingInput = errors.New("missing input")

type Manifest struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Inputs      []string `yaml:"inputs"`
	Expression  string   `yaml:"expression"`
}

type Model struct {
	key      model.Key
	manifest Manifest
	program  *vm.Program
}

func Load(_ context.Context, key model.Key, r io.Reader) (loader.Instance, error) {
	manifestBytes, err := archive.ReadFile(r, ManifestName)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s of %s: %w", model.ErrModelFormat, ManifestName, key, err)
	}

	var manifest Manifest

	decoder := yaml.NewDecoder(bytes.NewReader(manifestBytes))
	decoder.KnownFields(true)

	if err := decoder.Decode(&manifest); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s of %s: %w", model.ErrModelFormat, ManifestName, key, err)
	}

	if manifest.Expression == "" {
		return nil, fmt.Errorf("%w: %s of %s has no expression", model.ErrModelFormat, ManifestName, key)
	}

	program, err := expr.Compile(manifest.Expression)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to compile the expression of %s: %w", model.ErrModelFormat, key, err)
	}

	return &Model{
		key:      key,
		manifest: manifest,
		program:  program,
	}, nil
}

func (m *Model) Manifest() Manifest {
	return m.manifest
}

func (m *Model) Predict(ctx context.Context, input map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	env := make(map[string]any, len(input))

	for name, value := range input {
		env[name] = value
	}

	for _, name := range m.manifest.Inputs {
		if _, ok := env[name]; !ok {
			return nil, fmt.Errorf("%w: %w %q", model.ErrInference, ErrMissingInput, name)
		}
	}

	output, err := expr.Run(m.program, env)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", model.ErrInference, m.key, err)
	}

	return output, nil
}

func (m *Model) Close() error {
	return nil
}
