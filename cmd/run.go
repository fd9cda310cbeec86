package main

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pricelist-cli/internal/config"
	"github.com/sells-group/pricelist-cli/internal/model"
	"github.com/sells-group/pricelist-cli/internal/pipeline"
)

var (
	runEntry  model.PriceListEntry
	runEnrich bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process a single price-list line and print the product",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if runEnrich {
			cfg.Enrichment.Enabled = true
		}
		env, err := initPipeline(ctx, cfg, config.ModeRun)
		if err != nil {
			return err
		}
		defer env.Close()

		entry := runEntry
		if entry.LineIndex == 0 {
			entry.LineIndex = 1
		}
		return runLine(ctx, env.Pipeline, entry, pipeline.RunOptions{
			EnableEnrichment:     runEnrich,
			AutoApproveThreshold: cfg.Pipeline.AutoApproveThreshold,
		}, cmd.OutOrStdout())
	},
}

// runLine runs one entry and prints the product, or the structured error
// record when the line fails.
func runLine(ctx context.Context, p *pipeline.Pipeline, entry model.PriceListEntry, opts pipeline.RunOptions, w io.Writer) error {
	out, err := p.Run(ctx, entry, opts)
	if err != nil {
		if pe, ok := model.AsProcessingError(err); ok {
			if werr := writeJSON(w, pe); werr != nil {
				return werr
			}
		}
		return eris.Wrap(err, "pipeline run")
	}

	zap.L().Info("line processed",
		zap.String("model_code", out.Product.ModelCode),
		zap.String("base_model_id", out.Product.BaseModelID),
		zap.Float64("confidence", out.Product.OverallConfidence),
		zap.String("level", string(out.Product.ConfidenceLevel)),
		zap.Bool("requires_review", out.Product.RequiresReview),
	)
	return writeJSON(w, out.Product)
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runEntry.ModelCode, "model-code", "", "model code (required)")
	f.StringVar(&runEntry.Brand, "brand", "", "brand (required)")
	f.IntVar(&runEntry.ModelYear, "year", 0, "model year (required)")
	f.Float64Var(&runEntry.Price, "price", 0, "list price (required)")
	f.StringVar(&runEntry.Model, "model", "", "model description")
	f.StringVar(&runEntry.Package, "package", "", "package/trim")
	f.StringVar(&runEntry.Engine, "engine", "", "engine description")
	f.StringVar(&runEntry.Track, "track", "", "track description")
	f.StringVar(&runEntry.Starter, "starter", "", "starter type")
	f.StringVar(&runEntry.Color, "color", "", "color")
	f.StringVar(&runEntry.Currency, "currency", "", "currency code")
	f.StringVar(&runEntry.Market, "market", "", "market")
	f.BoolVar(&runEnrich, "enrich", false, "allow external enrichment when no catalog match is accepted")
	for _, name := range []string{"model-code", "brand", "year", "price"} {
		_ = runCmd.MarkFlagRequired(name)
	}
	rootCmd.AddCommand(runCmd)
}
