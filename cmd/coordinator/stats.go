package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newStatsCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print session counts by status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, c, err := open(cmd.Context(), load)
			if err != nil {
				return err
			}
			defer c.Close(ctx)

			stats, err := c.Sessions().Stats(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
}
