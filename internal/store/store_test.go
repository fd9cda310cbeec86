package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pricelist-cli/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testBaseModel(id, brand string, year int) model.BaseModelSpecification {
	return model.BaseModelSpecification{
		ID:                id,
		ModelName:         "Renegade X",
		Brand:             brand,
		ModelYear:         year,
		Category:          "crossover",
		ExtractionQuality: 0.9,
		Specifications: model.SpecMap{
			"engine": {"displacement_cc": float64(849), "fuel_system": "direct_injection"},
			"track":  {"length_in": float64(137)},
		},
	}
}

func testProduct(id string, level model.ConfidenceLevel, status model.ReviewStatus) *model.ProductSpecification {
	return &model.ProductSpecification{
		ID:                id,
		LineIndex:         1,
		ModelCode:         "MVTL",
		BaseModelID:       "bm-renegade-x",
		Brand:             "Ski-Doo",
		ModelName:         "Renegade X 850 E-TEC",
		ModelYear:         2024,
		Price:             18499,
		Specifications:    model.SpecMap{"engine": {"displacement_cc": float64(849)}},
		OverallConfidence: 0.92,
		ConfidenceLevel:   level,
		RequiresReview:    status == model.ReviewPending,
		ReviewStatus:      status,
		CreatedAt:         time.Now().UTC().Truncate(time.Second),
	}
}

func testAudit(productID string, n int) []model.AuditEntry {
	out := make([]model.AuditEntry, n)
	for i := range out {
		out[i] = model.AuditEntry{
			ID:               fmt.Sprintf("%s-audit-%d", productID, i),
			ProductID:        productID,
			Stage:            model.Stages[i%len(model.Stages)],
			Action:           model.ActionFieldDerived,
			After:            map[string]any{"field": fmt.Sprintf("f%d", i)},
			ConfidenceChange: 0.1,
			Timestamp:        time.Now().UTC(),
			Actor:            "system",
		}
	}
	return out
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("SaveAndListBaseModels", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		n, err := s.SaveBaseModels(ctx, []model.BaseModelSpecification{
			testBaseModel("bm-renegade-x", "Ski-Doo", 2024),
			testBaseModel("bm-summit-x", "Ski-Doo", 2024),
			testBaseModel("bm-old", "Ski-Doo", 2023),
		})
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		got, err := s.ListBaseModels(ctx, "SKI DOO", 2024)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "bm-renegade-x", got[0].ID)
		assert.Equal(t, model.SourceCatalog, got[0].Source)
		v, ok := got[0].Specifications.Float("engine", "displacement_cc")
		require.True(t, ok)
		assert.InDelta(t, 849, v, 0.001)
	})

	t.Run("SaveBaseModelsUpserts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		bm := testBaseModel("bm-renegade-x", "Ski-Doo", 2024)
		_, err := s.SaveBaseModels(ctx, []model.BaseModelSpecification{bm})
		require.NoError(t, err)

		bm.Category = "trail"
		_, err = s.SaveBaseModels(ctx, []model.BaseModelSpecification{bm})
		require.NoError(t, err)

		got, err := s.ListBaseModels(ctx, "Ski-Doo", 2024)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "trail", got[0].Category)
	})

	t.Run("ListBaseModelsEmpty", func(t *testing.T) {
		s := newStore(t)
		got, err := s.ListBaseModels(context.Background(), "Lynx", 2024)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("SaveAndGetProduct", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		p := testProduct("prod-1", model.ConfidenceHigh, model.ReviewAutoApproved)
		require.NoError(t, s.SaveProduct(ctx, p, testAudit("prod-1", 6)))

		got, err := s.GetProduct(ctx, "prod-1")
		require.NoError(t, err)
		assert.Equal(t, "MVTL", got.ModelCode)
		assert.Equal(t, model.ReviewAutoApproved, got.ReviewStatus)
		assert.InDelta(t, 0.92, got.OverallConfidence, 0.0001)

		audit, err := s.ListAudit(ctx, "prod-1")
		require.NoError(t, err)
		require.Len(t, audit, 6)
		for i, a := range audit {
			assert.Equal(t, fmt.Sprintf("prod-1-audit-%d", i), a.ID)
		}
		assert.Equal(t, "f0", audit[0].After["field"])
		assert.Nil(t, audit[0].Before)
	})

	t.Run("GetProductNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetProduct(context.Background(), "missing")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ListProductsFilters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.SaveProduct(ctx, testProduct("p-high", model.ConfidenceHigh, model.ReviewAutoApproved), nil))
		require.NoError(t, s.SaveProduct(ctx, testProduct("p-med", model.ConfidenceMedium, model.ReviewPending), nil))
		require.NoError(t, s.SaveProduct(ctx, testProduct("p-low", model.ConfidenceLow, model.ReviewPending), nil))

		all, err := s.ListProducts(ctx, ProductFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		high, err := s.ListProducts(ctx, ProductFilter{Level: model.ConfidenceHigh})
		require.NoError(t, err)
		require.Len(t, high, 1)
		assert.Equal(t, "p-high", high[0].ID)

		review := true
		pending, err := s.ListProducts(ctx, ProductFilter{RequiresReview: &review, Brand: "ski-doo", ModelYear: 2024})
		require.NoError(t, err)
		assert.Len(t, pending, 2)

		limited, err := s.ListProducts(ctx, ProductFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("UpdateReviewStatusAppendsAudit", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.SaveProduct(ctx, testProduct("prod-r", model.ConfidenceMedium, model.ReviewPending), testAudit("prod-r", 2)))
		require.NoError(t, s.UpdateReviewStatus(ctx, "prod-r", model.ReviewApproved, "analyst@example.com"))

		got, err := s.GetProduct(ctx, "prod-r")
		require.NoError(t, err)
		assert.Equal(t, model.ReviewApproved, got.ReviewStatus)

		audit, err := s.ListAudit(ctx, "prod-r")
		require.NoError(t, err)
		require.Len(t, audit, 3)
		last := audit[2]
		assert.Equal(t, model.ActionReviewStatusChanged, last.Action)
		assert.Equal(t, "analyst@example.com", last.Actor)
		assert.Equal(t, "pending", last.Before["review_status"])
		assert.Equal(t, "approved", last.After["review_status"])

		approved, err := s.ListProducts(ctx, ProductFilter{ReviewStatus: model.ReviewApproved})
		require.NoError(t, err)
		assert.Len(t, approved, 1)
	})

	t.Run("UpdateReviewStatusInvalid", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.SaveProduct(ctx, testProduct("prod-i", model.ConfidenceLow, model.ReviewPending), nil))

		err := s.UpdateReviewStatus(ctx, "prod-i", model.ReviewStatus("maybe"), "a")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid review status")
	})

	t.Run("UpdateReviewStatusNotFound", func(t *testing.T) {
		s := newStore(t)
		err := s.UpdateReviewStatus(context.Background(), "missing", model.ReviewRejected, "a")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("JobLifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		now := time.Now().UTC().Truncate(time.Second)
		job := &model.Job{ID: "job-1", Status: model.JobQueued, Counts: model.JobCounts{Total: 4}, CreatedAt: now, UpdatedAt: now}
		require.NoError(t, s.CreateJob(ctx, job))

		job.Status = model.JobCompleted
		job.Counts = model.JobCounts{Total: 4, Dispatched: 4, Succeeded: 3, Failed: 1, NeedsReview: 2}
		job.UpdatedAt = now.Add(time.Minute)
		require.NoError(t, s.UpdateJob(ctx, job))

		got, err := s.GetJob(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, model.JobCompleted, got.Status)
		assert.Equal(t, job.Counts, got.Counts)

		_, err = s.GetJob(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.UpdateJob(ctx, &model.Job{ID: "missing", Status: model.JobFailed}), ErrNotFound)
	})

	t.Run("EnrichmentCache", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		data, err := s.GetCachedEnrichment(ctx, "ski-doo|2024|renegade")
		require.NoError(t, err)
		assert.Nil(t, data)

		require.NoError(t, s.SetCachedEnrichment(ctx, "ski-doo|2024|renegade", []byte(`{"a":1}`), time.Hour))
		data, err = s.GetCachedEnrichment(ctx, "ski-doo|2024|renegade")
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":1}`, string(data))

		require.NoError(t, s.SetCachedEnrichment(ctx, "ski-doo|2024|renegade", []byte(`{"a":2}`), time.Hour))
		data, err = s.GetCachedEnrichment(ctx, "ski-doo|2024|renegade")
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":2}`, string(data))

		require.NoError(t, s.DeleteCachedEnrichment(ctx, "ski-doo|2024|renegade"))
		data, err = s.GetCachedEnrichment(ctx, "ski-doo|2024|renegade")
		require.NoError(t, err)
		assert.Nil(t, data)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}
