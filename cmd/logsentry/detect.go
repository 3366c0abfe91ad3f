package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hyperjump/logsentry/internal/cli"
	"github.com/hyperjump/logsentry/internal/detector"
	"github.com/hyperjump/logsentry/internal/models"
)

type detectOptions struct {
	k         int
	method    string
	top       int
	threshold float64
	filters   map[string]string
}

// request builds a DetectRequest, leaving unset flags to the configured defaults.
func (o *detectOptions) request(cmd *cobra.Command, text string) *models.DetectRequest {
	req := &models.DetectRequest{
		Text:        text,
		K:           o.k,
		ScoreMethod: o.method,
		PrintTop:    o.top,
	}
	if len(o.filters) > 0 {
		req.Filters = o.filters
	}
	if cmd.Flags().Changed("threshold") {
		t := o.threshold
		req.Threshold = &t
	}
	return req
}

func newDetectCmd(opts *rootOptions) *cobra.Command {
	do := &detectOptions{}
	cmd := &cobra.Command{
		Use:   "detect [flags] <log line>",
		Short: "Score one log line against the baseline",
		Long: `Score one log line against the baseline. The line is all remaining arguments
joined by spaces, so quoting is optional.

Examples:
  logsentry detect User admin logged in successfully from IP 192.168.1.5 via SSH.
  logsentry detect --k 3 --method avg "Process mimikatz.exe started by svc_backup"
  logsentry detect --filter category=auth --threshold 0.4 "sshd: Failed password for root"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := joinArgs(args)
			if text == "" {
				return fmt.Errorf("log line is empty")
			}
			format, err := opts.format()
			if err != nil {
				return err
			}
			req := do.request(cmd, text)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if opts.serverURL != "" {
				return detectViaHTTP(ctx, cmd.OutOrStdout(), newAPIClient(opts.serverURL), req, format)
			}
			return detectDirect(ctx, cmd.OutOrStdout(), opts, req, format)
		},
	}
	cmd.Flags().IntVar(&do.k, "k", 0, "neighbors to consider (default from config)")
	cmd.Flags().StringVar(&do.method, "method", "", "score method: kth, avg or max (default from config)")
	cmd.Flags().IntVar(&do.top, "top", 0, "neighbors to print (default from config)")
	cmd.Flags().Float64Var(&do.threshold, "threshold", 0, "override the active threshold")
	cmd.Flags().StringToStringVar(&do.filters, "filter", nil, "restrict neighbors by field, e.g. category=auth")
	return cmd
}

func detectViaHTTP(ctx context.Context, w io.Writer, client *apiClient, req *models.DetectRequest, format cli.OutputFormat) error {
	v, err := client.detect(ctx, req)
	if err != nil {
		return err
	}
	if v.Status == models.StatusNoComparableData {
		return cli.WriteNoComparable(w, req.Text, format)
	}
	return cli.WriteVerdict(w, v, format)
}

func detectDirect(ctx context.Context, w io.Writer, opts *rootOptions, req *models.DetectRequest, format cli.OutputFormat) error {
	components, cleanup, err := openComponents(ctx, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	v, err := components.Detect(ctx, req)
	if errors.Is(err, detector.ErrNoComparableData) {
		return cli.WriteNoComparable(w, req.Text, format)
	}
	if err != nil {
		return err
	}
	return cli.WriteVerdict(w, v, format)
}
