package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wytcherly/foreman/internal/cogmap"
)

func newReadoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "readout [path]",
		Short: "Print the cognitive map sensor readout",
		Long:  "Render a cognitive map file the way the in-game terminal shows it.\nWithout a path the map under the current directory is used.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				wd, err := os.Getwd()
				if err != nil {
					return fmt.Errorf("readout: %w", err)
				}
				path = cogmap.DefaultPath(wd)
			}
			text, n := cogmap.Readout(path)
			fmt.Fprintln(cmd.OutOrStdout(), text)
			if n > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%d targets\n", n)
			}
			return nil
		},
	}
}
