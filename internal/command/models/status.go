package models

import (
	"fmt"
	"github.com/spf13/cobra"
)

func NewStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the server status",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}

	addClientFlags(cmd)

	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	tensorcraftClient, err := newClient(cmd)
	if err != nil {
		return err
	}

	status, err := tensorcraftClient.Status(cmd.Context())
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "status: %s\nversion: %s (API %s)\nmodels: %d ready, %d loading\n",
		status.Status, status.Version, status.APIVersion, status.Models.Ready, status.Models.Loading)

	return err
}
