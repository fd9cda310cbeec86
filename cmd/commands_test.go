package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pricelist-cli/internal/batch"
	"github.com/sells-group/pricelist-cli/internal/config"
	"github.com/sells-group/pricelist-cli/internal/ingest"
	"github.com/sells-group/pricelist-cli/internal/model"
	"github.com/sells-group/pricelist-cli/internal/pipeline"
	"github.com/sells-group/pricelist-cli/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.Store.Driver = "sqlite"
	c.Store.SQLitePath = filepath.Join(t.TempDir(), "pricelist.db")
	c.Embedding.Provider = "lexical"
	c.Cache.Backend = "store"
	c.Matching = config.MatchingConfig{ExactThreshold: 0.95, SemanticThreshold: 0.8, FuzzyThreshold: 0.6, AutoAcceptThreshold: 0.9}
	c.Pipeline.AutoApproveThreshold = 0.9
	c.Pipeline.MaxPrice = 250000
	c.Pipeline.Weights = config.StageWeights{Matching: 0.3, Inheritance: 0.2, Customization: 0.2, SpringOptions: 0.1, Validation: 0.2}
	c.Enrichment.MaxConfidence = 0.7
	c.Batch.ConcurrencyLimit = 4
	return c
}

// newTestEnv opens a migrated SQLite store loaded with the test catalog.
func newTestEnv(t *testing.T) *pipelineEnv {
	t.Helper()
	ctx := context.Background()
	c := testConfig(t)

	env, err := initPipeline(ctx, c, config.ModeBatch)
	require.NoError(t, err)
	t.Cleanup(env.Close)

	n, err := importCatalog(ctx, env.Store, "testdata/catalog.json")
	require.NoError(t, err)
	require.Equal(t, 3, n)
	return env
}

func renegadeLine() model.PriceListEntry {
	return model.PriceListEntry{
		LineIndex: 1,
		ModelCode: "RENEGADE_X_850",
		Brand:     "Ski-Doo",
		ModelYear: 2024,
		Engine:    "850 E-TEC",
		Price:     24999,
	}
}

func TestImportCatalog_MissingFile(t *testing.T) {
	env := newTestEnv(t)
	_, err := importCatalog(context.Background(), env.Store, "testdata/missing.json")
	require.Error(t, err)
}

func TestRunLine_PrintsAndStoresProduct(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var buf bytes.Buffer
	err := runLine(ctx, env.Pipeline, renegadeLine(), pipeline.RunOptions{AutoApproveThreshold: 0.9}, &buf)
	require.NoError(t, err)

	var printed model.ProductSpecification
	require.NoError(t, json.Unmarshal(buf.Bytes(), &printed))
	assert.Equal(t, "RENEGADE_X_850", printed.ModelCode)
	assert.Equal(t, "bm-renegade-850", printed.BaseModelID)
	assert.NotEmpty(t, printed.ConfidenceLevel)

	stored, err := env.Store.GetProduct(ctx, printed.ID)
	require.NoError(t, err)
	assert.Equal(t, printed.OverallConfidence, stored.OverallConfidence)

	audit, err := env.Store.ListAudit(ctx, printed.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, audit)
}

func TestRunLine_PrintsProcessingError(t *testing.T) {
	env := newTestEnv(t)

	line := renegadeLine()
	line.Price = 0

	var buf bytes.Buffer
	err := runLine(context.Background(), env.Pipeline, line, pipeline.RunOptions{}, &buf)
	require.Error(t, err)

	var pe model.ProcessingError
	require.NoError(t, json.Unmarshal(buf.Bytes(), &pe))
	assert.Equal(t, model.ErrorKindValidation, pe.Kind)
	assert.Equal(t, "RENEGADE_X_850", pe.ModelCode)
}

func TestRunBatch_CSVPriceList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	entries, err := ingest.ReadPriceList(ctx, "testdata/pricelist.csv", ingest.Options{
		Defaults: ingest.Defaults{Brand: "Ski-Doo", ModelYear: 2024, Currency: "USD"},
	})
	require.NoError(t, err)
	require.Len(t, entries, 4)

	res, err := runBatch(ctx, env.Processor, entries, batch.Options{ConcurrencyLimit: 2, AutoApproveThreshold: 0.9})
	require.NoError(t, err)

	assert.Equal(t, model.JobCompleted, res.Status)
	assert.Equal(t, 4, res.Counts.Total)
	assert.Equal(t, 4, res.Counts.Dispatched)
	assert.Equal(t, res.Counts.Succeeded, len(res.Products))
	assert.Equal(t, res.Counts.Failed, len(res.Errors))
	assert.GreaterOrEqual(t, res.Counts.Succeeded, 1)
	assert.GreaterOrEqual(t, res.Counts.Failed, 2)

	kinds := map[model.ErrorKind]bool{}
	for _, e := range res.Errors {
		kinds[e.Kind] = true
	}
	assert.True(t, kinds[model.ErrorKindValidation])
	assert.True(t, kinds[model.ErrorKindMatching])

	job, err := env.Store.GetJob(ctx, res.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, job.Status)
	assert.Equal(t, res.Counts, job.Counts)

	stored, err := env.Store.ListProducts(ctx, store.ProductFilter{})
	require.NoError(t, err)
	assert.Len(t, stored, res.Counts.Succeeded)
}

func TestReviewProduct(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var buf bytes.Buffer
	require.NoError(t, runLine(ctx, env.Pipeline, renegadeLine(), pipeline.RunOptions{}, &buf))
	var p model.ProductSpecification
	require.NoError(t, json.Unmarshal(buf.Bytes(), &p))
	before, err := env.Store.ListAudit(ctx, p.ID)
	require.NoError(t, err)

	buf.Reset()
	require.NoError(t, reviewProduct(ctx, env.Store, p.ID, model.ReviewRejected, "analyst", &buf))

	var reviewed model.ProductSpecification
	require.NoError(t, json.Unmarshal(buf.Bytes(), &reviewed))
	assert.Equal(t, model.ReviewRejected, reviewed.ReviewStatus)

	after, err := env.Store.ListAudit(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, after, len(before)+1)
	assert.Equal(t, model.ActionReviewStatusChanged, after[len(after)-1].Action)
	assert.Equal(t, "analyst", after[len(after)-1].Actor)
}

func TestReviewProduct_RejectsAutoApproved(t *testing.T) {
	env := newTestEnv(t)
	err := reviewProduct(context.Background(), env.Store, "any", model.ReviewAutoApproved, "", &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "review status must be")
}

func TestReviewProduct_NotFound(t *testing.T) {
	env := newTestEnv(t)
	err := reviewProduct(context.Background(), env.Store, "missing", model.ReviewApproved, "", &bytes.Buffer{})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListAndShowProducts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var buf bytes.Buffer
	require.NoError(t, listProducts(ctx, env.Store, store.ProductFilter{}, &buf))
	assert.JSONEq(t, "[]", buf.String())

	buf.Reset()
	require.NoError(t, runLine(ctx, env.Pipeline, renegadeLine(), pipeline.RunOptions{}, &buf))
	var p model.ProductSpecification
	require.NoError(t, json.Unmarshal(buf.Bytes(), &p))

	buf.Reset()
	require.NoError(t, listProducts(ctx, env.Store, store.ProductFilter{Brand: "ski-doo"}, &buf))
	var listed []model.ProductSpecification
	require.NoError(t, json.Unmarshal(buf.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, p.ID, listed[0].ID)

	buf.Reset()
	require.NoError(t, showProduct(ctx, env.Store, p.ID, &buf))
	var shown productWithAudit
	require.NoError(t, json.Unmarshal(buf.Bytes(), &shown))
	assert.Equal(t, p.ID, shown.Product.ID)
	assert.NotEmpty(t, shown.Audit)
}

func TestInitPipeline_InvalidConfig(t *testing.T) {
	c := testConfig(t)
	c.Store.Driver = "oracle"

	_, err := initPipeline(context.Background(), c, config.ModeRun)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
}

func TestBuildPipeline_MemoryCacheWhenEnriching(t *testing.T) {
	c := testConfig(t)
	c.Enrichment.Enabled = true
	c.Anthropic.Key = "sk-test"
	c.Anthropic.Model = "claude-haiku-4-5-20251001"
	c.Cache.Backend = "memory"

	env, err := initPipeline(context.Background(), c, config.ModeRun)
	require.NoError(t, err)
	defer env.Close()
	assert.NotNil(t, env.Cache)
}
