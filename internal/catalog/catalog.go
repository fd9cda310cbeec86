// Package catalog answers base-model queries for a brand and model year.
package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pricelist-cli/internal/model"
	"github.com/sells-group/pricelist-cli/internal/vocab"
)

// Repository is the base-model query contract used by matching.
type Repository interface {
	// FindBestMatch returns the highest ranked candidate for a model code, or
	// nil when no candidate ranks at or above MinRankScore.
	FindBestMatch(ctx context.Context, brand, modelCode string, year int, price *float64) (*model.BaseModelSpecification, error)
	// FindByBrandAndYear returns all candidates for brand/year ordered by ID.
	FindByBrandAndYear(ctx context.Context, brand string, year int) ([]model.BaseModelSpecification, error)
}

// Source lists stored base models for brand/year.
type Source interface {
	ListBaseModels(ctx context.Context, brand string, year int) ([]model.BaseModelSpecification, error)
}

// StoreRepository ranks base models loaded from a Source.
type StoreRepository struct {
	src   Source
	vocab *vocab.Vocabulary
}

// NewStoreRepository wraps src.
func NewStoreRepository(src Source, v *vocab.Vocabulary) *StoreRepository {
	return &StoreRepository{src: src, vocab: v}
}

func (r *StoreRepository) FindByBrandAndYear(ctx context.Context, brand string, year int) ([]model.BaseModelSpecification, error) {
	models, err := r.src.ListBaseModels(ctx, brand, year)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: list %s %d", brand, year)
	}
	sortByID(models)
	return models, nil
}

func (r *StoreRepository) FindBestMatch(ctx context.Context, brand, modelCode string, year int, price *float64) (*model.BaseModelSpecification, error) {
	models, err := r.FindByBrandAndYear(ctx, brand, year)
	if err != nil {
		return nil, err
	}
	return best(r.vocab, modelCode, price, models), nil
}

// MemoryRepository is an in-memory catalog, safe for concurrent use.
type MemoryRepository struct {
	vocab *vocab.Vocabulary

	mu     sync.RWMutex
	models []model.BaseModelSpecification
}

// NewMemoryRepository returns a repository holding models.
func NewMemoryRepository(v *vocab.Vocabulary, models ...model.BaseModelSpecification) *MemoryRepository {
	r := &MemoryRepository{vocab: v}
	r.Add(models...)
	return r
}

// Add inserts models, replacing any with the same ID.
func (r *MemoryRepository) Add(models ...model.BaseModelSpecification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range models {
		replaced := false
		for i := range r.models {
			if r.models[i].ID == m.ID {
				r.models[i] = m
				replaced = true
				break
			}
		}
		if !replaced {
			r.models = append(r.models, m)
		}
	}
	sortByID(r.models)
}

func (r *MemoryRepository) FindByBrandAndYear(_ context.Context, brand string, year int) ([]model.BaseModelSpecification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.BaseModelSpecification
	for _, m := range r.models {
		if m.ModelYear == year && SameBrand(m.Brand, brand) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *MemoryRepository) FindBestMatch(ctx context.Context, brand, modelCode string, year int, price *float64) (*model.BaseModelSpecification, error) {
	models, err := r.FindByBrandAndYear(ctx, brand, year)
	if err != nil {
		return nil, err
	}
	return best(r.vocab, modelCode, price, models), nil
}

// SameBrand compares brand names ignoring case, spacing and hyphens.
func SameBrand(a, b string) bool {
	return model.BrandKey(a) == model.BrandKey(b)
}

func best(v *vocab.Vocabulary, modelCode string, price *float64, models []model.BaseModelSpecification) *model.BaseModelSpecification {
	ranked := Rank(v, modelCode, price, models)
	if len(ranked) == 0 {
		return nil
	}
	m := ranked[0].Model
	return &m
}

func sortByID(models []model.BaseModelSpecification) {
	sort.SliceStable(models, func(i, j int) bool { return models[i].ID < models[j].ID })
}
