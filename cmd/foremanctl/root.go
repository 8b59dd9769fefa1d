package main

import "github.com/spf13/cobra"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "foremanctl",
		Short:         "Foreman offline tools",
		Long:          "foremanctl simulates the foreman dispatch loop and reads the files the extension leaves behind.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("foremanctl {{.Version}}\n")

	cmd.AddCommand(
		newSimCmd(),
		newReadoutCmd(),
		newReportCmd(),
	)
	return cmd
}
