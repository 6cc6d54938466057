package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSeedCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the default prompt templates into an empty template store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, c, err := open(cmd.Context(), load)
			if err != nil {
				return err
			}
			defer c.Close(ctx)

			// New seeds an empty store; report what the store now holds.
			store := c.Prompts().Repository().Store()
			n, err := store.Count(ctx)
			if err != nil {
				return fmt.Errorf("count templates: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d templates in store\n", n)
			return err
		},
	}
}
