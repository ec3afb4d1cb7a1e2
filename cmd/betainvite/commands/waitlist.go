package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/aussiebroadwan/betainvite/internal/betainvite/app"
	"github.com/aussiebroadwan/betainvite/internal/betainvite/domain"
	"github.com/spf13/cobra"
)

func newWaitlistCommand() *cobra.Command {
	waitlist := &cobra.Command{
		Use:   "waitlist",
		Short: "Manage the waiting list",
	}

	waitlist.AddCommand(newWaitlistAddCommand())
	waitlist.AddCommand(newWaitlistInviteCommand())
	waitlist.AddCommand(newWaitlistListCommand())
	return waitlist
}

func newWaitlistAddCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add <email>",
		Short: "Put an email address on the waiting list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				entry, err := a.WaitingList().Add(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", entry.Email)
				return nil
			})
		},
	}
}

func newWaitlistInviteCommand() *cobra.Command {
	invite := &cobra.Command{
		Use:   "invite [email]",
		Short: "Send invitations to waiting list entries",
		Long: `Without an argument, invites up to --limit entries that have not been
invited yet, oldest first. With an email, invites that entry even if it was
invited before.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				if len(args) == 1 {
					entry, err := a.WaitingList().Get(ctx, args[0])
					if err != nil {
						return fmt.Errorf("lookup %s: %w", args[0], err)
					}
					if err := a.WaitingList().InviteOne(ctx, entry); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "invited %s\n", entry.Email)
					return nil
				}

				invited, err := a.WaitingList().InvitePending(ctx, limit)
				fmt.Fprintf(cmd.OutOrStdout(), "invited %d entries\n", invited)
				return err
			})
		},
	}

	invite.Flags().Int("limit", 25, "maximum number of pending entries to invite")
	return invite
}

func newWaitlistListCommand() *cobra.Command {
	list := &cobra.Command{
		Use:   "list",
		Short: "List waiting list entries in signup order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			pending, _ := cmd.Flags().GetBool("pending")

			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				var (
					entries []domain.WaitingListEntry
					err     error
				)
				if pending {
					entries, err = a.WaitingList().ListPending(ctx, limit)
				} else {
					entries, err = a.WaitingList().List(ctx, limit)
				}
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "EMAIL\tCREATED\tINVITED")
				for _, e := range entries {
					invited := "no"
					if e.InvitedAt != nil {
						invited = e.InvitedAt.Format(time.RFC3339)
					} else if e.Invited {
						invited = "yes"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\n", e.Email, e.CreatedAt.Format(time.RFC3339), invited)
				}
				return w.Flush()
			})
		},
	}

	list.Flags().Int("limit", 100, "maximum number of entries to show")
	list.Flags().Bool("pending", false, "only show entries that have not been invited")
	return list
}
