package models

import (
	"fmt"
	"github.com/cirruslabs/tensorcraft/internal/archive"
	"github.com/cirruslabs/tensorcraft/internal/client"
	"github.com/cirruslabs/tensorcraft/internal/model"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"io"
	"os"
)

func NewPushCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push NAME TAG PATH",
		Short: "Push a model artifact to the server",
		Args:  cobra.ExactArgs(3),
		RunE:  runPush,
	}

	addClientFlags(cmd)

	return cmd
}

func runPush(cmd *cobra.Command, args []string) error {
	key, err := model.NewKey(args[0], args[1])
	if err != nil {
		return err
	}

	artifact, err := os.Open(args[2])
	if err != nil {
		return fmt.Errorf("failed to open model artifact: %w", err)
	}
	defer artifact.Close()

	info, err := artifact.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat model artifact: %w", err)
	}

	// Catch malformed archives before uploading them
	if _, err := archive.Validate(artifact); err != nil {
		return fmt.Errorf("%w: model artifact %s is invalid: %w", model.ErrValidation, args[2], err)
	}

	if _, err := artifact.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind model artifact: %w", err)
	}

	tensorcraftClient, err := newClient(cmd, client.WithProgressOutput(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}

	descriptor, err := tensorcraftClient.Push(cmd.Context(), key, artifact, info.Size())
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "pushed model %s (%s, checksum %s)\n", descriptor.Key,
		humanize.IBytes(uint64(descriptor.Size)), descriptor.Checksum)

	return err
}
