package integrity

import (
	"go.uber.org/zap"
)

type Option func(checker *Checker)

// WithChecksums additionally reads every artifact and compares
// its checksum with the one recorded in the descriptor.
func WithChecksums(verifyChecksums bool) Option {
	return func(checker *Checker) {
		checker.verifyChecksums = verifyChecksums
	}
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(checker *Checker) {
		checker.logger = logger
	}
}
