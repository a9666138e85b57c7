package models

import (
	"fmt"
	"github.com/cirruslabs/tensorcraft/internal/model"
	"github.com/spf13/cobra"
)

func NewRemoveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "remove NAME TAG",
		Aliases: []string{"rm"},
		Short:   "Remove a model from the server",
		Args:    cobra.ExactArgs(2),
		RunE:    runRemove,
	}

	addClientFlags(cmd)

	return cmd
}

func runRemove(cmd *cobra.Command, args []string) error {
	key, err := model.NewKey(args[0], args[1])
	if err != nil {
		return err
	}

	tensorcraftClient, err := newClient(cmd)
	if err != nil {
		return err
	}

	if err := tensorcraftClient.Remove(cmd.Context(), key); err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed model %s\n", key)

	return err
}
