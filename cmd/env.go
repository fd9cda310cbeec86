package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pricelist-cli/internal/batch"
	"github.com/sells-group/pricelist-cli/internal/cache"
	"github.com/sells-group/pricelist-cli/internal/catalog"
	"github.com/sells-group/pricelist-cli/internal/config"
	"github.com/sells-group/pricelist-cli/internal/cost"
	"github.com/sells-group/pricelist-cli/internal/enrich"
	"github.com/sells-group/pricelist-cli/internal/match"
	"github.com/sells-group/pricelist-cli/internal/pipeline"
	"github.com/sells-group/pricelist-cli/internal/resilience"
	"github.com/sells-group/pricelist-cli/internal/similarity"
	"github.com/sells-group/pricelist-cli/internal/store"
	"github.com/sells-group/pricelist-cli/internal/vocab"
	anthropicpkg "github.com/sells-group/pricelist-cli/pkg/anthropic"
	"github.com/sells-group/pricelist-cli/pkg/embedding"
)

// pipelineEnv holds the store, cache and pipeline needed by the run and
// batch commands.
type pipelineEnv struct {
	Store     store.Store
	Cache     cache.Client // nil when enrichment is disabled
	Pipeline  *pipeline.Pipeline
	Processor *batch.Processor
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Cache != nil {
		_ = pe.Cache.Close()
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens and migrates the configured store.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch c.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(c.Store.SQLitePath)
	case "postgres":
		st, err = store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initPipeline validates the config for mode, opens the store and builds the
// pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, c *config.Config, mode string) (*pipelineEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}
	st, err := initStore(ctx, c)
	if err != nil {
		return nil, err
	}
	env, err := buildPipeline(ctx, c, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return env, nil
}

// buildPipeline wires every pipeline collaborator on top of an open store.
func buildPipeline(ctx context.Context, c *config.Config, st store.Store) (*pipelineEnv, error) {
	v := vocab.Default()
	if c.Pipeline.VocabularyPath != "" {
		loaded, err := vocab.Load(c.Pipeline.VocabularyPath)
		if err != nil {
			return nil, err
		}
		v = loaded
	}

	scorer, err := initScorer(ctx, c, v)
	if err != nil {
		return nil, err
	}
	engine := match.NewEngine(scorer, v, match.Thresholds{
		Exact:      c.Matching.ExactThreshold,
		Semantic:   c.Matching.SemanticThreshold,
		Fuzzy:      c.Matching.FuzzyThreshold,
		AutoAccept: c.Matching.AutoAcceptThreshold,
	})

	env := &pipelineEnv{Store: st}

	var enricher enrich.Enricher
	if c.Enrichment.Enabled {
		cc, err := initCache(ctx, c, st)
		if err != nil {
			return nil, err
		}
		env.Cache = cc
		enricher = initEnricher(c, cc)
	}

	pcfg := pipeline.Config{
		Weights: pipeline.Weights{
			Matching:      c.Pipeline.Weights.Matching,
			Inheritance:   c.Pipeline.Weights.Inheritance,
			Customization: c.Pipeline.Weights.Customization,
			SpringOptions: c.Pipeline.Weights.SpringOptions,
			Validation:    c.Pipeline.Weights.Validation,
		},
		AutoApproveThreshold:    c.Pipeline.AutoApproveThreshold,
		MaxEnrichmentConfidence: c.Enrichment.MaxConfidence,
		MaxPrice:                c.Pipeline.MaxPrice,
	}
	env.Pipeline = pipeline.New(pipeline.Deps{
		Repository: catalog.NewStoreRepository(st, v),
		Engine:     engine,
		Enricher:   enricher,
		Vocabulary: v,
	}, pcfg, pipeline.WithPersister(st))
	env.Processor = batch.NewProcessor(env.Pipeline, st)

	zap.L().Info("pipeline ready",
		zap.String("store", c.Store.Driver),
		zap.String("similarity", scorer.Strategy()),
		zap.Bool("enrichment", enricher != nil),
	)
	return env, nil
}

func initScorer(ctx context.Context, c *config.Config, v *vocab.Vocabulary) (similarity.Scorer, error) {
	if c.Embedding.Provider != "gemini" {
		return similarity.New(ctx, nil, v), nil
	}
	emb, err := embedding.New(ctx, embedding.Config{
		APIKey:     c.Embedding.Key,
		Model:      c.Embedding.Model,
		Dimensions: c.Embedding.Dimensions,
	})
	if err != nil {
		return nil, eris.Wrap(err, "init embedding client")
	}
	return similarity.New(ctx, emb, v), nil
}

func initCache(ctx context.Context, c *config.Config, st store.Store) (cache.Client, error) {
	switch c.Cache.Backend {
	case "redis":
		rc, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:        c.Cache.RedisAddr,
			Password:    c.Cache.RedisPassword,
			DB:          c.Cache.RedisDB,
			Prefix:      c.Cache.Prefix,
			DialTimeout: 5 * time.Second,
		})
		if err != nil {
			return nil, eris.Wrap(err, "init redis cache")
		}
		return rc, nil
	case "memory":
		return cache.NewMemoryClient(), nil
	default:
		return cache.NewStoreClient(st), nil
	}
}

func initEnricher(c *config.Config, cc cache.Client) enrich.Enricher {
	client := anthropicpkg.NewClient(anthropicpkg.Config{
		APIKey:  c.Anthropic.Key,
		BaseURL: c.Anthropic.BaseURL,
	})

	rates := cost.Rates{Anthropic: make(map[string]cost.TokenRate, len(c.Pricing.Anthropic))}
	for name, p := range c.Pricing.Anthropic {
		rates.Anthropic[name] = cost.TokenRate{Input: p.Input, Output: p.Output}
	}
	if len(rates.Anthropic) == 0 {
		rates = cost.DefaultRates()
	}

	policy := resilience.DefaultPolicy("anthropic")
	policy.Attempts = c.Enrichment.RetryAttempts
	breaker := resilience.NewBreaker("anthropic", c.Enrichment.BreakerThreshold,
		time.Duration(c.Enrichment.BreakerCooldownSecs)*time.Second)

	inner := enrich.NewAnthropicEnricher(client, enrich.AnthropicConfig{
		Model:     c.Anthropic.Model,
		MaxTokens: c.Anthropic.MaxTokens,
	}, enrich.NewTokenBudget(c.Anthropic.TokensPerMinute), cost.NewCalculator(rates), policy, breaker)

	ttl := time.Duration(c.Enrichment.CacheTTLHours) * time.Hour
	return enrich.NewCachedEnricher(inner, cc, ttl)
}
