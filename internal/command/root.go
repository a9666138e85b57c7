package command

import (
	"github.com/cirruslabs/tensorcraft/internal/command/check"
	"github.com/cirruslabs/tensorcraft/internal/command/models"
	"github.com/cirruslabs/tensorcraft/internal/command/run"
	"github.com/cirruslabs/tensorcraft/internal/logginglevel"
	"github.com/cirruslabs/tensorcraft/internal/version"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
)

var debug bool

func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tensorcraft",
		Short:         "Server for versioned machine learning models",
		Version:       version.FullVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if debug {
				logginglevel.Level.SetLevel(zapcore.DebugLevel)
			}

			return nil
		},
	}

	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	cmd.AddCommand(
		run.NewCommand(),
		models.NewPushCommand(),
		models.NewRemoveCommand(),
		models.NewListCommand(),
		models.NewExportCommand(),
		models.NewPredictCommand(),
		models.NewStatusCommand(),
		check.NewCommand(),
	)

	return cmd
}
