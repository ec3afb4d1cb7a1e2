package commands

import (
	"context"
	"fmt"

	"github.com/aussiebroadwan/betainvite/internal/betainvite/app"
	"github.com/spf13/cobra"
)

func newQuotaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "quota <user>",
		Short: "Show how many invitations a user has left",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				n, err := a.Quotas().Remaining(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}
}
