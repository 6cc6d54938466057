package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathanEDR/web-scuticompany-back-sub007/pkg/prompt"
)

func newRenderCmd(load loader) *cobra.Command {
	var (
		agent        string
		category     string
		tc           prompt.TaskContext
		sessionID    string
		asJSON       bool
		contentTitle string
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the prompt an agent would receive",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, c, err := open(cmd.Context(), load)
			if err != nil {
				return err
			}
			defer c.Close(ctx)

			if contentTitle != "" {
				tc.Content = &prompt.ContentData{Title: contentTitle}
			}
			res := c.PromptForSession(ctx, sessionID, agent, prompt.Category(category), tc)

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), res.Content)
			return err
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "BlogAgent", "Agent name")
	cmd.Flags().StringVar(&category, "category", string(prompt.CategorySystem), "Template category")
	cmd.Flags().StringVar(&tc.Type, "type", "", "Task type")
	cmd.Flags().StringVar(&tc.UserRole, "role", "", "User role")
	cmd.Flags().StringVar(&tc.Complexity, "complexity", "", "Task complexity")
	cmd.Flags().StringVar(&contentTitle, "title", "", "Content title")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	return cmd
}
