package commands

import (
	"context"

	"github.com/aussiebroadwan/betainvite/internal/betainvite/app"
	"github.com/spf13/cobra"
)

// NewRootCommand builds the betainvite command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "betainvite",
		Short: "Invitation-gated registration",
		Long: `betainvite issues invitation keys, tracks per-user invitation quotas,
sweeps expired keys and turns waiting list signups into invitations.

Configuration is read from the environment and an optional .env file.`,
		SilenceUsage: true,
	}

	root.AddCommand(newServeCommand())
	root.AddCommand(newCleanupCommand())
	root.AddCommand(newInviteCommand())
	root.AddCommand(newQuotaCommand())
	root.AddCommand(newWaitlistCommand())

	return root
}

// withApp loads the configuration, opens the application for the duration
// of fn and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.Application) error) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, app.WithLogOutput(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}
