package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperjump/logsentry/internal/cli"
	"github.com/hyperjump/logsentry/internal/rules"
)

func newRulesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Match log lines against known indicators from a STIX bundle",
	}
	cmd.AddCommand(newRulesCheckCmd(opts), newRulesHuntCmd(opts))
	return cmd
}

func newRulesCheckCmd(opts *rootOptions) *cobra.Command {
	var bundle string
	cmd := &cobra.Command{
		Use:   "check [flags] <log line>",
		Short: "Report known indicators that occur in a log line",
		Long: `Report known indicators that occur in a log line. With --bundle the STIX file is
read locally and no server or baseline is needed.

Examples:
  logsentry rules check "Process mimikatz.exe started by svc_backup"
  logsentry rules check --bundle ./iocs.json "Outbound connection to 203.0.113.10"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := joinArgs(args)
			format, err := opts.format()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			var matches []rules.Match
			switch {
			case bundle != "":
				m, err := rules.NewMatcherFromFile(bundle, nil)
				if err != nil {
					return err
				}
				matches = m.Check(text)
			case opts.serverURL != "":
				matches, err = newAPIClient(opts.serverURL).rulesCheck(ctx, text)
				if err != nil {
					return err
				}
			default:
				components, cleanup, err := openComponents(ctx, opts)
				if err != nil {
					return err
				}
				defer cleanup()
				matches, err = components.CheckRules(text)
				if err != nil {
					return err
				}
			}
			return cli.WriteMatches(cmd.OutOrStdout(), text, matches, format)
		},
	}
	cmd.Flags().StringVar(&bundle, "bundle", "", "STIX bundle to read instead of the configured one")
	return cmd
}

func newRulesHuntCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "hunt",
		Short: "Search the stored baseline for entries containing a known indicator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.format()
			if err != nil {
				return err
			}
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			var hits []rules.HuntHit
			if opts.serverURL != "" {
				hits, err = newAPIClient(opts.serverURL).rulesHunt(ctx, limit)
			} else {
				components, cleanup, openErr := openComponents(ctx, opts)
				if openErr != nil {
					return openErr
				}
				defer cleanup()
				hits, err = components.HuntRules(ctx, limit)
			}
			if err != nil {
				return err
			}
			return cli.WriteHuntHits(cmd.OutOrStdout(), hits, format)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "candidate entries fetched per indicator (default 100)")
	return cmd
}
