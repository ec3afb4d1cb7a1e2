package commands

import (
	"context"
	"fmt"

	"github.com/aussiebroadwan/betainvite/internal/betainvite/app"
	"github.com/spf13/cobra"
)

func newCleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired invitation keys",
		Long:  `Deletes every invitation key whose validity window has elapsed. Meant to be run daily from cron when serve is not used.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				deleted, err := a.Invitations().SweepExpired(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired invitation keys\n", deleted)
				return err
			})
		},
	}
}
