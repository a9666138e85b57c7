package models

import (
	"encoding/json"
	"fmt"
	"github.com/cirruslabs/tensorcraft/internal/model"
	"github.com/spf13/cobra"
)

var input string

func NewPredictCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict NAME TAG",
		Short: "Run a model against the input",
		Args:  cobra.ExactArgs(2),
		RunE:  runPredict,
	}

	addClientFlags(cmd)
	cmd.Flags().StringVarP(&input, "input", "i", "{}",
		"model input as a JSON object (e.g. '{\"x\": 1}')")

	return cmd
}

func runPredict(cmd *cobra.Command, args []string) error {
	key, err := model.NewKey(args[0], args[1])
	if err != nil {
		return err
	}

	var parsedInput map[string]any

	if err := json.Unmarshal([]byte(input), &parsedInput); err != nil {
		return fmt.Errorf("%w: failed to parse input: %w", model.ErrValidation, err)
	}

	tensorcraftClient, err := newClient(cmd)
	if err != nil {
		return err
	}

	output, err := tensorcraftClient.Predict(cmd.Context(), key, parsedInput)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")

	return encoder.Encode(output)
}
