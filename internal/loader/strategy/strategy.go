// Package strategy builds the loader selected in the configuration.
package strategy

import (
	"fmt"
	"github.com/cirruslabs/tensorcraft/internal/loader"
	"github.com/cirruslabs/tensorcraft/internal/loader/expression"
	"github.com/cirruslabs/tensorcraft/internal/loader/inprocess"
	"github.com/cirruslabs/tensorcraft/internal/loader/isolated"
	"github.com/samber/lo"
	"strings"
)

type Strategy string

const (
	Sync     Strategy = "sync"
	Isolated Strategy = "isolated"
)

func Names() []string {
	return []string{string(Sync), string(Isolated)}
}

func Parse(s string) (Strategy, error) {
	switch strategy := Strategy(strings.ToLower(strings.TrimSpace(s))); strategy {
	case "":
		return Sync, nil
	case Sync, Isolated:
		return strategy, nil
	default:
		return "", fmt.Errorf("unknown loading strategy %q, supported strategies are: %s",
			s, strings.Join(Names(), ", "))
	}
}

// New returns the loader for the given strategy and a function
// to release its resources once the loader is no longer needed.
func New(strategy Strategy, isolatedOpts ...isolated.Option) (loader.Loader, func(), error) {
	format := loader.Func(expression.Load)

	switch strategy {
	case Sync, "":
		return inprocess.New(format), func() {}, nil
	case Isolated:
		isolatedLoader := isolated.New(format, isolatedOpts...)

		return isolatedLoader, isolatedLoader.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown loading strategy %q, supported strategies are: %s",
			strategy, strings.Join(lo.Map(Names(), func(name string, _ int) string {
				return fmt.Sprintf("%q", name)
			}), ", "))
	}
}
