package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/small-frappuccino/rolebuttons/pkg/app"
)

func newPruneCmd() *cobra.Command {
	var (
		guildID      string
		purgeMissing bool
	)
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove stored buttons whose message, channel or role is gone",
		Long: "Checks stored button records against Discord over REST and deletes the " +
			"ones that can no longer be pressed. Without --guild every guild is pruned.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			removed, err := app.RunPrune(cmd.Context(), cfg, guildID, purgeMissing)
			if err != nil {
				return fmt.Errorf("prune: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d stale button entries.\n", removed)
			return nil
		},
	}
	cmd.Flags().StringVar(&guildID, "guild", "", "only prune this guild")
	cmd.Flags().BoolVar(&purgeMissing, "purge-missing", false, "also delete records of guilds the bot has left")
	return cmd
}
