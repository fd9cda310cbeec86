package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pricelist-cli/internal/batch"
	"github.com/sells-group/pricelist-cli/internal/config"
	"github.com/sells-group/pricelist-cli/internal/ingest"
	"github.com/sells-group/pricelist-cli/internal/model"
)

var (
	batchFile        string
	batchOut         string
	batchConcurrency int
	batchEnrich      bool
	batchSheet       string
	batchHeaderRow   int
	batchDefaults    ingest.Defaults
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Process a price-list file (CSV, XLSX or JSON) with bounded concurrency",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if batchConcurrency > 0 {
			cfg.Batch.ConcurrencyLimit = batchConcurrency
		}
		if batchEnrich {
			cfg.Enrichment.Enabled = true
		}
		env, err := initPipeline(ctx, cfg, config.ModeBatch)
		if err != nil {
			return err
		}
		defer env.Close()

		entries, err := ingest.ReadPriceList(ctx, batchFile, ingest.Options{
			Defaults:  batchDefaults,
			SheetName: batchSheet,
			HeaderRow: batchHeaderRow,
		})
		if err != nil {
			return err
		}

		res, err := runBatch(ctx, env.Processor, entries, batch.Options{
			ConcurrencyLimit:         cfg.Batch.ConcurrencyLimit,
			AutoApproveThreshold:     cfg.Pipeline.AutoApproveThreshold,
			EnableEnrichmentFallback: batchEnrich,
		})
		if err != nil {
			return err
		}
		if err := writeJSONFile(cmd.OutOrStdout(), batchOut, res); err != nil {
			return err
		}
		if batchOut != "" {
			summarize(cmd.OutOrStdout(), res)
		}
		return nil
	},
}

// runBatch submits entries and waits for the job to finish. Cancelling ctx
// stops dispatch; the partial result is still returned.
func runBatch(ctx context.Context, p *batch.Processor, entries []model.PriceListEntry, opts batch.Options) (*batch.Result, error) {
	job := p.Submit(ctx, entries, opts)
	zap.L().Info("batch submitted",
		zap.String("job_id", job.ID),
		zap.Int("entries", len(entries)),
		zap.Int("concurrency", opts.ConcurrencyLimit),
	)

	// The job stops dispatching on its own when ctx ends; wait for in-flight
	// lines regardless.
	res, err := job.Wait(context.WithoutCancel(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "wait for batch")
	}

	zap.L().Info("batch complete",
		zap.String("job_id", res.JobID),
		zap.String("status", string(res.Status)),
		zap.Int("succeeded", res.Counts.Succeeded),
		zap.Int("failed", res.Counts.Failed),
		zap.Int("needs_review", res.Counts.NeedsReview),
	)
	for _, e := range res.Errors {
		zap.L().Warn("line failed",
			zap.Int("line_index", e.LineIndex),
			zap.String("model_code", e.ModelCode),
			zap.String("kind", string(e.Kind)),
			zap.String("stage", string(e.Stage)),
			zap.String("message", e.Message),
		)
	}
	return res, nil
}

// summarize renders a one-line status for terminals.
func summarize(w io.Writer, res *batch.Result) {
	_, _ = fmt.Fprintf(w, "%s: %d/%d succeeded, %d failed, %d need review\n",
		res.Status, res.Counts.Succeeded, res.Counts.Total, res.Counts.Failed, res.Counts.NeedsReview)
}

func init() {
	f := batchCmd.Flags()
	f.StringVar(&batchFile, "file", "", "price list path: .csv, .tsv, .xlsx or .json (required)")
	f.StringVar(&batchOut, "out", "", "write the batch result JSON here instead of stdout")
	f.IntVar(&batchConcurrency, "concurrency", 0, "max lines in flight (default from config)")
	f.BoolVar(&batchEnrich, "enrich", false, "allow external enrichment when no catalog match is accepted")
	f.StringVar(&batchSheet, "sheet", "", "XLSX sheet name (default first sheet)")
	f.IntVar(&batchHeaderRow, "header-row", 0, "zero-based XLSX header row")
	f.StringVar(&batchDefaults.Brand, "brand", "", "brand for lines without one")
	f.IntVar(&batchDefaults.ModelYear, "year", 0, "model year for lines without one")
	f.StringVar(&batchDefaults.Currency, "currency", "", "currency for lines without one")
	f.StringVar(&batchDefaults.Market, "market", "", "market for lines without one")
	_ = batchCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(batchCmd)
}
