package main

import (
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pricelist-cli/internal/config"
	"github.com/sells-group/pricelist-cli/internal/model"
	"github.com/sells-group/pricelist-cli/internal/store"
)

var (
	reviewProductID string
	reviewStatus    string
	reviewActor     string
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Record a manual review decision for a product",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate(config.ModeReview); err != nil {
			return err
		}
		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		actor := reviewActor
		if actor == "" {
			actor = os.Getenv("USER")
		}
		return reviewProduct(ctx, st, reviewProductID, model.ReviewStatus(reviewStatus), actor, cmd.OutOrStdout())
	},
}

// reviewProduct sets the review status and prints the updated product.
func reviewProduct(ctx context.Context, st store.Store, id string, status model.ReviewStatus, actor string, w io.Writer) error {
	switch status {
	case model.ReviewApproved, model.ReviewRejected, model.ReviewPending:
	default:
		return eris.Errorf("review status must be approved, rejected or pending, got %q", status)
	}
	if actor == "" {
		actor = "cli"
	}
	if err := st.UpdateReviewStatus(ctx, id, status, actor); err != nil {
		return eris.Wrap(err, "update review status")
	}
	p, err := st.GetProduct(ctx, id)
	if err != nil {
		return eris.Wrap(err, "reload product")
	}
	zap.L().Info("review recorded",
		zap.String("product_id", id),
		zap.String("status", string(status)),
		zap.String("actor", actor),
	)
	return writeJSON(w, p)
}

func init() {
	reviewCmd.Flags().StringVar(&reviewProductID, "product", "", "product ID (required)")
	reviewCmd.Flags().StringVar(&reviewStatus, "status", "", "approved, rejected or pending (required)")
	reviewCmd.Flags().StringVar(&reviewActor, "actor", "", "reviewer name (default $USER)")
	_ = reviewCmd.MarkFlagRequired("product")
	_ = reviewCmd.MarkFlagRequired("status")
	rootCmd.AddCommand(reviewCmd)
}
