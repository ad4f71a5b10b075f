package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sixeradda/ground-booking/internal/obs"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "groundctl", obs.Version)
		},
	}
}
