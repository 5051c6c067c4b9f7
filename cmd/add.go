package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leaklook/leaklook/internal/feed"
)

func newAddCmd() *cobra.Command {
	var (
		category string
		actor    string
	)
	cmd := &cobra.Command{
		Use:   "add <group> <url>",
		Short: "Registers a location URL for a group or market",
		Long: `Adds a location to the named group, creating the registry entry when
it does not exist yet. Re-adding a known location reports a duplicate
and changes nothing.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			out, err := a.Engine().AddLocation(
				cmd.Context(),
				actor,
				feed.Category(category),
				args[0],
				args[1],
			)
			if err != nil {
				return fmt.Errorf("add location: %w", err)
			}
			a.Logger().Info("add location finished",
				zap.String("group", args[0]),
				zap.String("url", args[1]),
				zap.String("outcome", string(out)),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", string(feed.CategoryGroup), "registry partition (group or market)")
	cmd.Flags().StringVar(&actor, "actor", "cli", "actor recorded in the audit log")
	return cmd
}
