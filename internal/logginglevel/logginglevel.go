package logginglevel

import (
	"go.uber.org/zap"
)

// Level is shared by all loggers created by the CLI,
// so that --debug can be applied after they're built.
var Level = zap.NewAtomicLevelAt(zap.InfoLevel)
