// Package pipeline runs batches of leads through the tier cascade and
// persists the outcome of every lead.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/probate-link/internal/config"
	"github.com/sells-group/probate-link/internal/linkage"
	"github.com/sells-group/probate-link/internal/model"
	"github.com/sells-group/probate-link/internal/ownermatch"
	"github.com/sells-group/probate-link/internal/resilience"
	"github.com/sells-group/probate-link/internal/store"
)

// ProviderFactory opens the search provider for one worker. The returned
// close func releases it.
type ProviderFactory func(ctx context.Context, worker int) (linkage.SearchProvider, func(), error)

// Runner resolves leads concurrently. Each worker owns a provider and a
// cascade; the detail cache is shared by every worker of a run.
type Runner struct {
	store       store.Store
	newProvider ProviderFactory
	tiers       []linkage.TierSpec
	engine      config.EngineConfig
	concurrency int
	retry       resilience.RetryConfig
	maxRetries  int
	opts        []linkage.Option
	now         func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithCascadeOptions passes options through to every worker cascade.
func WithCascadeOptions(opts ...linkage.Option) Option {
	return func(r *Runner) { r.opts = append(r.opts, opts...) }
}

// WithClock sets the clock used for follow-up scheduling.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New creates a Runner from the application config.
func New(st store.Store, factory ProviderFactory, tiers []linkage.TierSpec, cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		store:       st,
		newProvider: factory,
		tiers:       tiers,
		engine:      cfg.Engine,
		concurrency: cfg.Batch.MaxConcurrentLeads,
		retry:       resilience.FromRetryConfig(cfg.Retry),
		maxRetries:  cfg.Retry.MaxAttempts,
		now:         time.Now,
	}
	if r.concurrency < 1 {
		r.concurrency = 1
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run creates a run for source, resolves every lead, and persists the
// results. Per-lead failures are recorded as statuses; the returned error
// is reserved for setup and storage failures.
func (r *Runner) Run(ctx context.Context, source string, leads []model.Lead) (*model.Run, []*model.ResolvedMatch, error) {
	run, err := r.store.CreateRun(ctx, source)
	if err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: create run")
	}
	matches, err := r.Process(ctx, run, leads)
	return run, matches, err
}

// Process resolves leads under an existing run and completes it.
func (r *Runner) Process(ctx context.Context, run *model.Run, leads []model.Lead) ([]*model.ResolvedMatch, error) {
	log := zap.L().With(zap.String("run_id", run.ID), zap.Int("leads", len(leads)))

	if err := r.store.UpdateRunStatus(ctx, run.ID, model.RunStatusResolving); err != nil {
		return nil, eris.Wrap(err, "pipeline: mark run resolving")
	}

	matches, err := r.resolveAll(ctx, leads)
	if err == nil {
		err = r.persist(ctx, run.ID, matches)
	}

	var stats model.RunStats
	for _, m := range matches {
		if m != nil {
			stats.Add(m)
		}
	}
	run.Stats = stats

	// Completion is recorded even when the caller's context is gone.
	if cErr := r.store.CompleteRun(context.WithoutCancel(ctx), run.ID, stats, err); cErr != nil {
		log.Error("pipeline: complete run failed", zap.Error(cErr))
		if err == nil {
			err = eris.Wrap(cErr, "pipeline: complete run")
		}
	}
	if err != nil {
		run.Status = model.RunStatusFailed
		run.Error = err.Error()
		return matches, err
	}
	run.Status = model.RunStatusComplete

	log.Info("pipeline: run complete",
		zap.Int("matched", stats.Matched),
		zap.Int("unmatched", stats.Unmatched),
		zap.Int("review", stats.Review),
		zap.Int("failed", stats.Failed),
	)
	return matches, nil
}

// resolveAll fans leads out over the worker pool. Results keep input order.
func (r *Runner) resolveAll(ctx context.Context, leads []model.Lead) ([]*model.ResolvedMatch, error) {
	matches := make([]*model.ResolvedMatch, len(leads))
	if len(leads) == 0 {
		return matches, nil
	}

	workers := min(r.concurrency, len(leads))
	cache := linkage.NewDetailCache()
	pool := make(chan *linkage.Cascade, workers)

	var closers []func()
	defer func() {
		for _, c := range closers {
			c()
		}
	}()
	for i := range workers {
		provider, closeFn, err := r.newProvider(ctx, i)
		if err != nil {
			return matches, eris.Wrapf(err, "pipeline: open provider %d", i)
		}
		if closeFn != nil {
			closers = append(closers, closeFn)
		}
		pool <- linkage.NewCascade(provider, cache, r.tiers, r.engine, r.opts...)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, lead := range leads {
		g.Go(func() error {
			c := <-pool
			defer func() { pool <- c }()

			m := c.Resolve(gctx, lead)
			m.Owner = ownermatch.Evaluate(m)
			matches[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return matches, eris.Wrap(err, "pipeline: resolve leads")
	}

	zap.L().Debug("pipeline: detail cache",
		zap.Int("entries", cache.Len()),
		zap.Int("fetches", cache.Fetches()),
	)
	return matches, nil
}

// persist saves matches and queues the ones that need another look.
func (r *Runner) persist(ctx context.Context, runID string, matches []*model.ResolvedMatch) error {
	if err := r.store.SaveMatches(ctx, runID, matches); err != nil {
		return eris.Wrap(err, "pipeline: save matches")
	}

	now := r.now()
	for _, m := range matches {
		if resilience.KindFor(m) == "" {
			continue
		}
		f := resilience.NewFollowUp(uuid.New().String(), runID, m, r.maxRetries, r.retry, now)
		if err := r.store.EnqueueFollowUp(ctx, *f); err != nil {
			return eris.Wrapf(err, "pipeline: enqueue follow-up for %s", m.Lead.ID())
		}
	}
	return nil
}

// RetryResult summarizes one pass over the follow-up queue.
type RetryResult struct {
	Attempted int `json:"attempted"`
	Resolved  int `json:"resolved"`
	Requeued  int `json:"requeued"`
	Exhausted int `json:"exhausted"`
}

// RetryFollowUps re-resolves due transient follow-ups. Leads that resolve
// are saved back to their run and dequeued; leads that fail again are
// rescheduled until their retry budget is spent.
func (r *Runner) RetryFollowUps(ctx context.Context, limit int) (RetryResult, error) {
	var res RetryResult

	due, err := r.store.DueFollowUps(ctx, r.now(), limit)
	if err != nil {
		return res, eris.Wrap(err, "pipeline: list due follow-ups")
	}
	if len(due) == 0 {
		return res, nil
	}

	leads := make([]model.Lead, len(due))
	for i, f := range due {
		leads[i] = f.Lead
	}
	matches, err := r.resolveAll(ctx, leads)
	if err != nil {
		return res, err
	}

	byRun := make(map[string][]*model.ResolvedMatch)
	now := r.now()
	for i, f := range due {
		m := matches[i]
		res.Attempted++
		if m.Status == model.StatusProviderError {
			f.Bump(m.Reason, r.retry, now)
			if !f.CanRetry() {
				res.Exhausted++
			} else {
				res.Requeued++
			}
			if err := r.store.EnqueueFollowUp(ctx, f); err != nil {
				return res, eris.Wrapf(err, "pipeline: requeue %s", f.ID)
			}
			continue
		}

		byRun[f.RunID] = append(byRun[f.RunID], m)
		if err := r.store.RemoveFollowUp(ctx, f.ID); err != nil {
			return res, eris.Wrapf(err, "pipeline: dequeue %s", f.ID)
		}
		res.Resolved++
	}

	for runID, ms := range byRun {
		if err := r.persist(ctx, runID, ms); err != nil {
			return res, err
		}
	}

	zap.L().Info("pipeline: follow-up retry complete",
		zap.Int("attempted", res.Attempted),
		zap.Int("resolved", res.Resolved),
		zap.Int("requeued", res.Requeued),
		zap.Int("exhausted", res.Exhausted),
	)
	return res, nil
}
