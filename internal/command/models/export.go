package models

import (
	"fmt"
	"github.com/cirruslabs/tensorcraft/internal/client"
	"github.com/cirruslabs/tensorcraft/internal/model"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"os"
	"path/filepath"
	"strings"
)

var outputPath string

func NewExportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export NAME TAG",
		Short: "Download the artifact of a model stored on the server",
		Args:  cobra.ExactArgs(2),
		RunE:  runExport,
	}

	addClientFlags(cmd)
	cmd.Flags().StringVarP(&outputPath, "output", "o", "",
		"path to write the model artifact to, \"-\" for standard output (default \"NAME-TAG.tar\")")

	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	key, err := model.NewKey(args[0], args[1])
	if err != nil {
		return err
	}

	if outputPath == "-" {
		tensorcraftClient, err := newClient(cmd)
		if err != nil {
			return err
		}

		_, err = tensorcraftClient.Export(cmd.Context(), key, cmd.OutOrStdout())

		return err
	}

	path := outputPath
	if path == "" {
		path = strings.ReplaceAll(fmt.Sprintf("%s-%s.tar", key.Name, key.Tag), string(filepath.Separator), "_")
	}

	tensorcraftClient, err := newClient(cmd, client.WithProgressOutput(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}

	// Only a fully downloaded and verified artifact ends up at the path
	file, err := os.CreateTemp(filepath.Dir(path), ".tensorcraft-export-*")
	if err != nil {
		return fmt.Errorf("failed to create a temporary file for the model artifact: %w", err)
	}
	defer os.Remove(file.Name())

	n, err := tensorcraftClient.Export(cmd.Context(), key, file)
	if err != nil {
		_ = file.Close()

		return err
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to write model artifact: %w", err)
	}

	if err := os.Rename(file.Name(), path); err != nil {
		return fmt.Errorf("failed to move model artifact to %s: %w", path, err)
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "exported model %s to %s (%s)\n", key, path,
		humanize.IBytes(uint64(n)))

	return err
}
