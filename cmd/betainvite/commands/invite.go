package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/betainvite/internal/betainvite/app"
	"github.com/aussiebroadwan/betainvite/internal/betainvite/domain"
	"github.com/spf13/cobra"
)

var errMultiUseNeedsIssuer = errors.New("--multi-use requires --issuer")

func newInviteCommand() *cobra.Command {
	invite := &cobra.Command{
		Use:   "invite",
		Short: "Issue, check and redeem invitation keys",
	}

	invite.AddCommand(newInviteCreateCommand())
	invite.AddCommand(newInviteValidateCommand())
	invite.AddCommand(newInviteConsumeCommand())
	return invite
}

func newInviteCreateCommand() *cobra.Command {
	create := &cobra.Command{
		Use:   "create",
		Short: "Issue an invitation key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			issuer, _ := cmd.Flags().GetString("issuer")
			multiUse, _ := cmd.Flags().GetBool("multi-use")
			if multiUse && issuer == "" {
				return errMultiUseNeedsIssuer
			}

			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				var (
					k   domain.InvitationKey
					err error
				)
				if multiUse {
					k, err = a.Invitations().CreateOrReuseMultiUse(ctx, issuer)
				} else {
					k, err = a.Invitations().CreateSingleUse(ctx, issuer)
				}
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, k.Key)
				fmt.Fprintf(out, "expires %s\n", a.Invitations().ExpiresAt(k).Format(time.RFC3339))
				return nil
			})
		},
	}

	create.Flags().String("issuer", "", "user the key is charged to (empty for a system key)")
	create.Flags().Bool("multi-use", false, "issue or reuse the issuer's multi-use key")
	return create
}

func newInviteValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <key>",
		Short: "Report whether a key can be used to register",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				ok, err := a.Invitations().Validate(ctx, args[0])
				if err != nil {
					return err
				}
				if ok {
					fmt.Fprintln(cmd.OutOrStdout(), "valid")
					return nil
				}

				k, found, err := a.Invitations().Lookup(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "invalid: %s\n", invalidReason(k, found))
				return nil
			})
		},
	}
}

func invalidReason(k domain.InvitationKey, found bool) string {
	switch {
	case !found:
		return "unknown key"
	case k.Consumed():
		return "already used"
	default:
		return "expired"
	}
}

func newInviteConsumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "consume <key> <registrant>",
		Short: "Record a registration against a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				return a.Invitations().Consume(ctx, args[0], args[1])
			})
		},
	}
}
