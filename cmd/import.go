package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pricelist-cli/internal/config"
	"github.com/sells-group/pricelist-cli/internal/ingest"
	"github.com/sells-group/pricelist-cli/internal/store"
)

var importCatalogPath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load catalog base models into the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate(config.ModeImport); err != nil {
			return err
		}
		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := importCatalog(ctx, st, importCatalogPath)
		if err != nil {
			return err
		}
		zap.L().Info("import complete",
			zap.Int("base_models", n),
			zap.String("catalog", importCatalogPath),
		)
		return nil
	},
}

func importCatalog(ctx context.Context, st store.Store, path string) (int, error) {
	models, err := ingest.ReadCatalog(ctx, path)
	if err != nil {
		return 0, err
	}
	n, err := st.SaveBaseModels(ctx, models)
	if err != nil {
		return 0, eris.Wrap(err, "save base models")
	}
	return n, nil
}

func init() {
	importCmd.Flags().StringVar(&importCatalogPath, "catalog", "", "path to catalog JSON file (required)")
	_ = importCmd.MarkFlagRequired("catalog")
	rootCmd.AddCommand(importCmd)
}
