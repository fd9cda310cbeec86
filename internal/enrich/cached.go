package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/pricelist-cli/internal/cache"
)

// CachedEnricher serves repeated requests from a cache. Cache failures are
// logged and fall through to the wrapped Enricher.
type CachedEnricher struct {
	inner Enricher
	cache cache.Client
	ttl   time.Duration
}

// NewCachedEnricher wraps inner with c.
func NewCachedEnricher(inner Enricher, c cache.Client, ttl time.Duration) *CachedEnricher {
	return &CachedEnricher{inner: inner, cache: c, ttl: ttl}
}

// Enrich implements Enricher. Cached results report zero usage.
func (e *CachedEnricher) Enrich(ctx context.Context, req Request) (*Result, error) {
	key := CacheKey(req)
	data, err := e.cache.Get(ctx, key)
	switch {
	case err == nil:
		var res Result
		if jerr := json.Unmarshal(data, &res); jerr == nil {
			return &res, nil
		}
		zap.L().Warn("enrich: discarding corrupt cache entry", zap.String("key", key))
	case !errors.Is(err, cache.ErrMiss):
		zap.L().Warn("enrich: cache get failed", zap.String("key", key), zap.Error(err))
	}

	res, err := e.inner.Enrich(ctx, req)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(res); err == nil {
		if err := e.cache.Set(ctx, key, data, e.ttl); err != nil {
			zap.L().Warn("enrich: cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return res, nil
}
