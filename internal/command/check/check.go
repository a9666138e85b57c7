package check

import (
	"errors"
	"fmt"
	"github.com/cirruslabs/tensorcraft/internal/backend"
	configpkg "github.com/cirruslabs/tensorcraft/internal/config"
	"github.com/cirruslabs/tensorcraft/internal/integrity"
	"github.com/cirruslabs/tensorcraft/internal/model"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"io"
)

var ErrInconsistent = errors.New("data root is inconsistent")

var configPath string
var dataRoot string
var prune bool
var checksums bool

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check that the stored artifacts match the model metadata",
		Args:  cobra.NoArgs,
		RunE:  runCheck,
	}

	cmd.Flags().StringVarP(&configPath, "file", "f", "",
		"configuration file path (e.g. /etc/tensorcraft.yml)")
	cmd.Flags().StringVar(&dataRoot, "data-root", "",
		"directory the models and their metadata are stored in")
	cmd.Flags().BoolVar(&prune, "prune", false,
		"remove orphaned artifacts and descriptors of missing artifacts")
	cmd.Flags().BoolVar(&checksums, "checksums", false,
		"re-compute the artifact checksums and compare them with the recorded ones")

	return cmd
}

func runCheck(cmd *cobra.Command, _ []string) error {
	config, err := configpkg.Load(configPath)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("data-root") {
		config.DataRoot = dataRoot
	}

	if err := config.Validate(); err != nil {
		return err
	}

	backend, err := backend.Open(cmd.Context(), config)
	if err != nil {
		return err
	}
	defer backend.Close()

	checker := integrity.New(backend.Storage, backend.Metadata,
		integrity.WithChecksums(checksums),
		integrity.WithLogger(zap.S()),
	)

	report, err := checker.Check(cmd.Context())
	if err != nil {
		return err
	}

	printKeys(cmd.OutOrStdout(), "orphaned artifact", report.Orphaned)
	printKeys(cmd.OutOrStdout(), "dangling descriptor", report.Dangling)
	printKeys(cmd.OutOrStdout(), "corrupted artifact", report.Corrupted)

	if report.Healthy() {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "no inconsistencies found")

		return err
	}

	if !prune {
		return fmt.Errorf("%w: %d orphaned artifacts, %d dangling descriptors, %d corrupted artifacts "+
			"(re-run with --prune to fix)", ErrInconsistent, len(report.Orphaned), len(report.Dangling),
			len(report.Corrupted))
	}

	if err := checker.Prune(cmd.Context(), report); err != nil {
		return err
	}

	if len(report.Corrupted) != 0 {
		return fmt.Errorf("%w: %d corrupted artifacts need to be pushed again",
			ErrInconsistent, len(report.Corrupted))
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), "pruned all inconsistencies")

	return err
}

func printKeys(w io.Writer, kind string, keys []model.Key) {
	for _, key := range keys {
		_, _ = fmt.Fprintf(w, "%s: %s\n", kind, key)
	}
}
