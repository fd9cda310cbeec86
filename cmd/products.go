package main

import (
	"context"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/pricelist-cli/internal/config"
	"github.com/sells-group/pricelist-cli/internal/model"
	"github.com/sells-group/pricelist-cli/internal/store"
)

var (
	productsFilter store.ProductFilter
	productsLevel  string
	productsStatus string
	productsReview bool
	productsID     string
)

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "List stored products, or show one with its audit trail",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate(config.ModeProducts); err != nil {
			return err
		}
		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if productsID != "" {
			return showProduct(ctx, st, productsID, cmd.OutOrStdout())
		}

		f := productsFilter
		f.Level = model.ConfidenceLevel(strings.ToUpper(productsLevel))
		f.ReviewStatus = model.ReviewStatus(productsStatus)
		if cmd.Flags().Changed("review") {
			f.RequiresReview = &productsReview
		}
		return listProducts(ctx, st, f, cmd.OutOrStdout())
	},
}

type productWithAudit struct {
	Product *model.ProductSpecification `json:"product"`
	Audit   []model.AuditEntry          `json:"audit"`
}

func showProduct(ctx context.Context, st store.Store, id string, w io.Writer) error {
	p, err := st.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	audit, err := st.ListAudit(ctx, id)
	if err != nil {
		return err
	}
	return writeJSON(w, productWithAudit{Product: p, Audit: audit})
}

func listProducts(ctx context.Context, st store.Store, f store.ProductFilter, w io.Writer) error {
	products, err := st.ListProducts(ctx, f)
	if err != nil {
		return err
	}
	if products == nil {
		products = []model.ProductSpecification{}
	}
	return writeJSON(w, products)
}

func init() {
	f := productsCmd.Flags()
	f.StringVar(&productsID, "id", "", "show a single product and its audit trail")
	f.StringVar(&productsFilter.Brand, "brand", "", "filter by brand")
	f.IntVar(&productsFilter.ModelYear, "year", 0, "filter by model year")
	f.StringVar(&productsLevel, "level", "", "filter by confidence level (HIGH, MEDIUM, LOW)")
	f.StringVar(&productsStatus, "status", "", "filter by review status")
	f.BoolVar(&productsReview, "review", false, "only products that do (true) or do not (false) require review")
	f.IntVar(&productsFilter.Limit, "limit", 100, "max products to list")
	f.IntVar(&productsFilter.Offset, "offset", 0, "skip this many products")
	rootCmd.AddCommand(productsCmd)
}
