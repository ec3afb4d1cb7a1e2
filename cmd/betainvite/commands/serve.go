package commands

import (
	"github.com/aussiebroadwan/betainvite/internal/betainvite/app"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the expiry sweep, the waiting list dispatcher and the ops listener",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}

			a, err := app.New(cmd.Context(), cfg, app.WithLogOutput(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
}
