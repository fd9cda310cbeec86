// Package batch fans price-list lines out to the pipeline with bounded
// concurrency and collects products and per-line errors into a job.
package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/pricelist-cli/internal/model"
	"github.com/sells-group/pricelist-cli/internal/pipeline"
)

// DefaultConcurrency bounds in-flight lines when Options leaves it unset.
const DefaultConcurrency = 10

// Runner processes a single line.
type Runner interface {
	Run(ctx context.Context, entry model.PriceListEntry, opts pipeline.RunOptions) (*pipeline.Outcome, error)
}

// JobStore persists job status and counters.
type JobStore interface {
	CreateJob(ctx context.Context, job *model.Job) error
	UpdateJob(ctx context.Context, job *model.Job) error
}

// Options configures one submission.
type Options struct {
	ConcurrencyLimit         int
	AutoApproveThreshold     float64
	EnableEnrichmentFallback bool
}

// Result is the collected outcome of a job. Entries are in completion order;
// each carries its line index.
type Result struct {
	JobID    string                        `json:"job_id"`
	Status   model.JobStatus               `json:"status"`
	Products []*model.ProductSpecification `json:"products"`
	Errors   []model.ProcessingError       `json:"errors"`
	Counts   model.JobCounts               `json:"counts"`
}

// Processor submits batches. It holds no per-job state.
type Processor struct {
	runner Runner
	jobs   JobStore
}

// NewProcessor returns a Processor. jobs may be nil.
func NewProcessor(runner Runner, jobs JobStore) *Processor {
	return &Processor{runner: runner, jobs: jobs}
}

// Job is the handle of a running submission.
type Job struct {
	ID string

	total      int
	dispatched atomic.Int64
	succeeded  atomic.Int64
	failed     atomic.Int64
	review     atomic.Int64
	status     atomic.Value // model.JobStatus

	mu       sync.Mutex
	products []*model.ProductSpecification
	errs     []model.ProcessingError

	createdAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// Submit starts processing entries and returns immediately. Cancelling ctx
// or calling Job.Cancel stops dispatch; lines already in flight finish.
func (p *Processor) Submit(ctx context.Context, entries []model.PriceListEntry, opts Options) *Job {
	jobCtx, cancel := context.WithCancel(ctx)
	j := &Job{
		ID:        uuid.NewString(),
		total:     len(entries),
		createdAt: time.Now().UTC(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	j.status.Store(model.JobQueued)
	if p.jobs != nil {
		if err := p.jobs.CreateJob(context.WithoutCancel(ctx), j.record()); err != nil {
			zap.L().Warn("batch: create job record", zap.String("job_id", j.ID), zap.Error(err))
		}
	}
	go p.run(jobCtx, j, entries, opts)
	return j
}

func (p *Processor) run(ctx context.Context, j *Job, entries []model.PriceListEntry, opts Options) {
	defer close(j.done)
	defer j.cancel()

	limit := opts.ConcurrencyLimit
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	runOpts := pipeline.RunOptions{
		EnableEnrichment:     opts.EnableEnrichmentFallback,
		AutoApproveThreshold: opts.AutoApproveThreshold,
	}
	log := zap.L().With(zap.String("job_id", j.ID))
	log.Info("batch: job started", zap.Int("lines", len(entries)), zap.Int("concurrency", limit))
	j.setStatus(model.JobProcessing)
	p.persist(ctx, j)

	start := time.Now()
	sem := semaphore.NewWeighted(int64(limit))
	// Line failures are collected, never returned, so the group is only a
	// completion barrier.
	var g errgroup.Group
	inflight := context.WithoutCancel(ctx)

	cancelled := false
	for _, entry := range entries {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			cancelled = true
			break
		}
		j.dispatched.Add(1)
		g.Go(func() error {
			defer sem.Release(1)
			out, err := p.runner.Run(inflight, entry, runOpts)
			j.collect(entry, out, err)
			return nil
		})
	}
	_ = g.Wait()

	switch {
	case cancelled:
		j.setStatus(model.JobCancelled)
	case j.succeeded.Load() == 0 && j.failed.Load() > 0:
		j.setStatus(model.JobFailed)
	default:
		j.setStatus(model.JobCompleted)
	}
	p.persist(ctx, j)

	c := j.Counts()
	log.Info("batch: job finished",
		zap.String("status", string(j.Status())),
		zap.Int("dispatched", c.Dispatched),
		zap.Int("succeeded", c.Succeeded),
		zap.Int("failed", c.Failed),
		zap.Int("needs_review", c.NeedsReview),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
}

func (p *Processor) persist(ctx context.Context, j *Job) {
	if p.jobs == nil {
		return
	}
	if err := p.jobs.UpdateJob(context.WithoutCancel(ctx), j.record()); err != nil {
		zap.L().Warn("batch: update job record", zap.String("job_id", j.ID), zap.Error(err))
	}
}

func (j *Job) collect(entry model.PriceListEntry, out *pipeline.Outcome, err error) {
	if err != nil {
		pe, ok := model.AsProcessingError(err)
		if !ok {
			pe = &model.ProcessingError{
				LineIndex: entry.LineIndex,
				ModelCode: entry.ModelCode,
				Kind:      model.ErrorKindStageFailure,
				Message:   err.Error(),
			}
		}
		j.failed.Add(1)
		j.mu.Lock()
		j.errs = append(j.errs, *pe)
		j.mu.Unlock()
		return
	}
	j.succeeded.Add(1)
	if out.Product.RequiresReview {
		j.review.Add(1)
	}
	j.mu.Lock()
	j.products = append(j.products, out.Product)
	j.mu.Unlock()
}

func (j *Job) setStatus(s model.JobStatus) { j.status.Store(s) }

// Status returns the current lifecycle state.
func (j *Job) Status() model.JobStatus { return j.status.Load().(model.JobStatus) }

// Counts returns a snapshot of the line counters.
func (j *Job) Counts() model.JobCounts {
	return model.JobCounts{
		Total:       j.total,
		Dispatched:  int(j.dispatched.Load()),
		Succeeded:   int(j.succeeded.Load()),
		Failed:      int(j.failed.Load()),
		NeedsReview: int(j.review.Load()),
	}
}

// Cancel stops dispatching further lines.
func (j *Job) Cancel() { j.cancel() }

// Done is closed when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the job finishes or ctx ends.
func (j *Job) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-j.done:
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "batch: wait for job")
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return &Result{
		JobID:    j.ID,
		Status:   j.Status(),
		Products: append([]*model.ProductSpecification(nil), j.products...),
		Errors:   append([]model.ProcessingError(nil), j.errs...),
		Counts:   j.Counts(),
	}, nil
}

func (j *Job) record() *model.Job {
	return &model.Job{
		ID:        j.ID,
		Status:    j.Status(),
		Counts:    j.Counts(),
		CreatedAt: j.createdAt,
		UpdatedAt: time.Now().UTC(),
	}
}
