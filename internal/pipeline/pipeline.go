// Package pipeline turns one matched price-list line into a fully specified,
// confidence-scored product through five strictly ordered stages.
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/pricelist-cli/internal/catalog"
	"github.com/sells-group/pricelist-cli/internal/enrich"
	"github.com/sells-group/pricelist-cli/internal/match"
	"github.com/sells-group/pricelist-cli/internal/model"
	"github.com/sells-group/pricelist-cli/internal/normalize"
	"github.com/sells-group/pricelist-cli/internal/resilience"
	"github.com/sells-group/pricelist-cli/internal/vocab"
)

// Persister saves a finished product and its audit trail as one unit.
type Persister interface {
	SaveProduct(ctx context.Context, product *model.ProductSpecification, audit []model.AuditEntry) error
}

// Config holds the pipeline's tunables.
type Config struct {
	Weights                 Weights
	AutoApproveThreshold    float64
	MaxEnrichmentConfidence float64
	MaxPrice                float64
}

// DefaultConfig returns the stock weights and thresholds.
func DefaultConfig() Config {
	return Config{
		Weights:                 DefaultWeights(),
		AutoApproveThreshold:    0.9,
		MaxEnrichmentConfidence: 0.7,
		MaxPrice:                250000,
	}
}

// Deps are the collaborators the stages consult.
type Deps struct {
	Repository catalog.Repository
	Engine     *match.Engine
	Enricher   enrich.Enricher
	Vocabulary *vocab.Vocabulary
}

// Outcome is the result of one successful run.
type Outcome struct {
	Product *model.ProductSpecification
	Audit   []model.AuditEntry
}

// Pipeline runs the stages for one line at a time. A Pipeline is safe for
// concurrent use; every run gets its own Context.
type Pipeline struct {
	cfg       Config
	stages    []Stage
	persister Persister
	now       func() time.Time
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithPersister saves each product after final validation.
func WithPersister(p Persister) Option {
	return func(pl *Pipeline) { pl.persister = p }
}

// WithStages replaces the stage list.
func WithStages(stages ...Stage) Option {
	return func(pl *Pipeline) { pl.stages = stages }
}

// New builds the five-stage pipeline.
func New(deps Deps, cfg Config, opts ...Option) *Pipeline {
	v := deps.Vocabulary
	if v == nil {
		v = vocab.Default()
	}
	norm := normalize.New(v)
	if err := cfg.Weights.Validate(); err != nil {
		zap.L().Warn("pipeline: invalid stage weights, using defaults", zap.Error(err))
		cfg.Weights = DefaultWeights()
	}
	p := &Pipeline{
		cfg: cfg,
		stages: []Stage{
			&MatchingStage{repo: deps.Repository, engine: deps.Engine, enricher: deps.Enricher, vocab: v, maxEnrichment: cfg.MaxEnrichmentConfidence},
			&InheritanceStage{vocab: v, maxEnrichment: cfg.MaxEnrichmentConfidence},
			&CustomizationStage{vocab: v, norm: norm},
			&SpringOptionsStage{vocab: v, norm: norm},
			&ValidationStage{vocab: v, weights: cfg.Weights, maxPrice: cfg.MaxPrice},
		},
		now: time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run processes one entry. On failure it returns a *model.ProcessingError
// naming the failing stage and no product.
func (p *Pipeline) Run(ctx context.Context, entry model.PriceListEntry, opts RunOptions) (*Outcome, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	if opts.AutoApproveThreshold <= 0 {
		opts.AutoApproveThreshold = p.cfg.AutoApproveThreshold
	}

	log := zap.L().With(zap.String("model_code", entry.ModelCode), zap.Int("line_index", entry.LineIndex))
	pc := newContext(entry, opts, p.now)

	for _, s := range p.stages {
		res, err := p.runStage(ctx, pc, s)
		if err != nil {
			log.Warn("pipeline: line failed",
				zap.String("stage", string(res.Stage)),
				zap.Error(err),
			)
			return nil, err
		}
	}
	if pc.Product == nil {
		return nil, p.lineError(pc, model.StageFinalValidation, fail(model.ErrorKindStageFailure,
			"no product assembled", "check the stage configuration", false))
	}
	pc.Product.StageResults = slices.Clone(pc.Results)

	if p.persister != nil {
		if err := p.persister.SaveProduct(ctx, pc.Product, pc.Audit()); err != nil {
			return nil, p.lineError(pc, model.StagePersistence, fail(model.ErrorKindStageFailure,
				err.Error(), "retry the line once the store is reachable", true))
		}
	}

	log.Info("pipeline: line complete",
		zap.String("base_model_id", pc.Product.BaseModelID),
		zap.Float64("confidence", pc.Product.OverallConfidence),
		zap.String("level", string(pc.Product.ConfidenceLevel)),
		zap.Bool("requires_review", pc.Product.RequiresReview),
	)
	return &Outcome{Product: pc.Product, Audit: pc.Audit()}, nil
}

// runStage executes one stage with timing, panic recovery, confidence
// resolution and audit bookkeeping.
func (p *Pipeline) runStage(ctx context.Context, pc *Context, s Stage) (model.StageResult, error) {
	pc.stage = s.ID()
	firstEntry := len(pc.audit)
	before := pc.Confidence

	start := time.Now()
	res, err := safeExecute(ctx, pc, s)
	res.Stage = s.ID()
	res.Duration = time.Since(start)

	if err != nil {
		res.Success = false
		res.Confidence = 0
		res.Errors = append(res.Errors, err.Error())
	} else {
		res.Success = true
		if res.Confidence == Unset {
			res.Confidence = Interpolate(res.Present, res.Required)
		}
		res.Confidence = clampConfidence(res.Confidence)
	}
	pc.Results = append(pc.Results, res)

	if idx := stageIndex(res.Stage); idx >= 0 {
		pc.Confidence = p.cfg.Weights.partial(pc.stageConfidences(), idx+1)
	}
	if firstEntry < len(pc.audit) {
		pc.audit[firstEntry].ConfidenceChange = pc.Confidence - before
	}

	zap.L().Debug("pipeline: stage complete",
		zap.String("model_code", pc.Entry.ModelCode),
		zap.String("stage", string(res.Stage)),
		zap.Bool("success", res.Success),
		zap.Float64("confidence", res.Confidence),
		zap.Int64("duration_ms", res.Duration.Milliseconds()),
	)
	if err != nil {
		return res, p.lineError(pc, res.Stage, err)
	}
	return res, nil
}

func safeExecute(ctx context.Context, pc *Context, s Stage) (res model.StageResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = model.StageResult{}
			err = &model.ProcessingError{
				Kind:         model.ErrorKindStageException,
				Message:      fmt.Sprintf("unexpected fault: %v", r),
				RecoveryHint: "report the line; retrying will not help",
				Detail:       string(debug.Stack()),
			}
		}
	}()
	return s.Execute(ctx, pc)
}

// lineError stamps err with the line identity and stage. Errors that are not
// already ProcessingErrors become stage failures, retryable when transient.
func (p *Pipeline) lineError(pc *Context, stage model.StageID, err error) *model.ProcessingError {
	pe, ok := model.AsProcessingError(err)
	if !ok {
		pe = &model.ProcessingError{
			Kind:         model.ErrorKindStageFailure,
			Message:      err.Error(),
			RecoveryHint: "retry the line",
			Retryable:    resilience.IsTransient(err),
		}
	}
	out := *pe
	out.LineIndex = pc.Entry.LineIndex
	out.ModelCode = pc.Entry.ModelCode
	out.Stage = stage
	return &out
}
