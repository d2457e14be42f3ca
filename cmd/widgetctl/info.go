package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/chatwidget/internal/widget/botconfig"
)

func newInfoCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the bot behind the configured credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), root.timeout)
			defer cancel()

			cfg, err := botconfig.NewClient(root.widget.ConfigURL, nil).Fetch(ctx, root.widget.APIKey)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "name:  %s\n", cfg.Name)
			fmt.Fprintf(out, "uuid:  %s\n", cfg.UUID)
			fmt.Fprintf(out, "theme: %s\n", cfg.ThemeColor)
			return nil
		},
	}
}
