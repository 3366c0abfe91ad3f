package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/hyperjump/logsentry/internal/app"
	"github.com/hyperjump/logsentry/internal/cli"
	"github.com/hyperjump/logsentry/internal/models"
)

type calibrateOptions struct {
	sampleSize int
	k          int
	quantile   float64
	method     string
	seed       int64
	filters    map[string]string
	dryRun     bool
}

// request sets only the fields whose flags were given.
func (o *calibrateOptions) request(cmd *cobra.Command) *models.CalibrationRequest {
	req := &models.CalibrationRequest{
		SampleSize:  o.sampleSize,
		K:           o.k,
		ScoreMethod: o.method,
	}
	if len(o.filters) > 0 {
		req.Filters = o.filters
	}
	if cmd.Flags().Changed("quantile") {
		q := o.quantile
		req.Quantile = &q
	}
	if cmd.Flags().Changed("seed") {
		s := o.seed
		req.Seed = &s
	}
	if o.dryRun {
		apply := false
		req.Apply = &apply
	}
	return req
}

func newCalibrateCmd(opts *rootOptions) *cobra.Command {
	co := &calibrateOptions{}
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Derive the anomaly threshold from the baseline",
		Long: `Sample baseline entries, score each against its own neighbors (excluding itself)
and take a quantile of the scores as the new threshold. The run is recorded and,
unless --dry-run is given, becomes the active threshold.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.format()
			if err != nil {
				return err
			}
			req := co.request(cmd)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			w := cmd.OutOrStdout()

			if opts.serverURL != "" {
				resp, err := newAPIClient(opts.serverURL).calibrate(ctx, req)
				if err != nil {
					return err
				}
				return cli.WriteCalibration(w, resp.Calibration, resp.Threshold, format)
			}

			components, cleanup, err := openComponents(ctx, opts)
			if err != nil {
				return err
			}
			defer cleanup()
			cal, err := components.Calibrate(ctx, req)
			if err != nil && !errors.Is(err, app.ErrCalibrationUnavailable) {
				return err
			}
			return cli.WriteCalibration(w, cal, components.Thresholds.Get(), format)
		},
	}
	cmd.Flags().IntVar(&co.sampleSize, "sample-size", 0, "baseline entries to sample (default from config)")
	cmd.Flags().IntVar(&co.k, "k", 0, "neighbors per sample (default from config)")
	cmd.Flags().Float64Var(&co.quantile, "quantile", 0, "quantile of sample scores, in [0, 1] (default from config)")
	cmd.Flags().StringVar(&co.method, "method", "", "score method: kth, avg or max (default from config)")
	cmd.Flags().Int64Var(&co.seed, "seed", 0, "sampling seed (default from config)")
	cmd.Flags().StringToStringVar(&co.filters, "filter", nil, "restrict samples and neighbors by field, e.g. category=auth")
	cmd.Flags().BoolVar(&co.dryRun, "dry-run", false, "record the run without changing the active threshold")
	return cmd
}
