package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/hyperjump/logsentry/internal/cli"
	"github.com/hyperjump/logsentry/internal/models"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show baseline size, active threshold and recent calibrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.format()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			var st *models.Status
			if opts.serverURL != "" {
				st, err = newAPIClient(opts.serverURL).status(ctx)
			} else {
				components, cleanup, openErr := openComponents(ctx, opts)
				if openErr != nil {
					return openErr
				}
				defer cleanup()
				st, err = components.Status(ctx)
			}
			if err != nil {
				return err
			}
			return cli.WriteStatus(cmd.OutOrStdout(), st, format)
		},
	}
}
