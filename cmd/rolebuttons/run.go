package main

import (
	"github.com/spf13/cobra"

	"github.com/small-frappuccino/rolebuttons/pkg/app"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and serve role buttons until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return app.Run(cmd.Context(), cfg)
		},
	}
}
