package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Command modes accepted by Validate.
const (
	ModeImport   = "import"
	ModeRun      = "run"
	ModeBatch    = "batch"
	ModeReview   = "review"
	ModeProducts = "products"
)

// Validate checks the keys the given command needs. All problems are
// reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case ModeImport, ModeReview, ModeProducts:
		errs = append(errs, c.validateStore()...)
	case ModeRun, ModeBatch:
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateProcessing()...)
		if mode == ModeBatch && (c.Batch.ConcurrencyLimit < 1 || c.Batch.ConcurrencyLimit > 100) {
			errs = append(errs, "batch.concurrency_limit must be between 1 and 100")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store.sqlite_path is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be postgres or sqlite, got %q", c.Store.Driver))
	}
	return errs
}

func (c *Config) validateProcessing() []string {
	var errs []string

	unit := func(name string, v float64) {
		if v < 0 || v > 1 {
			errs = append(errs, name+" must be between 0 and 1")
		}
	}
	unit("matching.exact_threshold", c.Matching.ExactThreshold)
	unit("matching.semantic_threshold", c.Matching.SemanticThreshold)
	unit("matching.fuzzy_threshold", c.Matching.FuzzyThreshold)
	unit("matching.auto_accept_threshold", c.Matching.AutoAcceptThreshold)
	unit("pipeline.auto_approve_threshold", c.Pipeline.AutoApproveThreshold)
	unit("enrichment.max_confidence", c.Enrichment.MaxConfidence)

	w := c.Pipeline.Weights
	if w.Matching < 0 || w.Inheritance < 0 || w.Customization < 0 || w.SpringOptions < 0 || w.Validation < 0 {
		errs = append(errs, "pipeline.weights values must be >= 0")
	} else if w.Matching+w.Inheritance+w.Customization+w.SpringOptions+w.Validation == 0 {
		errs = append(errs, "pipeline.weights must not all be zero")
	}
	if c.Pipeline.MaxPrice <= 0 {
		errs = append(errs, "pipeline.max_price must be > 0")
	}

	switch c.Embedding.Provider {
	case "lexical":
	case "gemini":
		if c.Embedding.Key == "" {
			errs = append(errs, "embedding.key is required for the gemini provider")
		}
	default:
		errs = append(errs, fmt.Sprintf("embedding.provider must be lexical or gemini, got %q", c.Embedding.Provider))
	}

	if c.Enrichment.Enabled {
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required when enrichment is enabled")
		}
		switch c.Cache.Backend {
		case "store", "memory":
		case "redis":
			if c.Cache.RedisAddr == "" {
				errs = append(errs, "cache.redis_addr is required for the redis backend")
			}
		default:
			errs = append(errs, fmt.Sprintf("cache.backend must be store, redis or memory, got %q", c.Cache.Backend))
		}
	}
	return errs
}
