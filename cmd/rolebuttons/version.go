package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/small-frappuccino/rolebuttons/pkg/app"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", app.AppName, app.AppVersion(), runtime.Version())
		},
	}
}
