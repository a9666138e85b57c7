package models

import (
	"fmt"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"text/tabwriter"
)

func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List models stored on the server",
		Args:    cobra.NoArgs,
		RunE:    runList,
	}

	addClientFlags(cmd)

	return cmd
}

func runList(cmd *cobra.Command, _ []string) error {
	tensorcraftClient, err := newClient(cmd)
	if err != nil {
		return err
	}

	descriptors, err := tensorcraftClient.List(cmd.Context())
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)

	_, _ = fmt.Fprintln(writer, "NAME\tTAG\tSIZE\tCHECKSUM\tUPDATED")

	for _, descriptor := range descriptors {
		_, _ = fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n", descriptor.Name, descriptor.Tag,
			humanize.IBytes(uint64(descriptor.Size)), shortChecksum(descriptor.Checksum),
			humanize.Time(descriptor.UpdatedAt))
	}

	return writer.Flush()
}

func shortChecksum(checksum string) string {
	const length = 12

	if len(checksum) <= length {
		return checksum
	}

	return checksum[:length]
}
