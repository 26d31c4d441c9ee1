package linkage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/probate-link/internal/config"
	"github.com/sells-group/probate-link/internal/fuzzy"
	"github.com/sells-group/probate-link/internal/model"
	"github.com/sells-group/probate-link/internal/records"
	"github.com/sells-group/probate-link/internal/resilience"
)

// Cascade resolves leads by trying tiers in order until one accepts a
// candidate. A Cascade owns one provider and is not safe for concurrent
// use; workers share only the DetailCache.
type Cascade struct {
	provider    SearchProvider
	cache       *DetailCache
	tiers       []TierSpec
	planner     *Planner
	classifier  *Classifier
	scorer      *Scorer
	policy      *Policy
	retry       resilience.RetryConfig
	callTimeout time.Duration
	now         func() time.Time
}

// Option configures a Cascade.
type Option func(*Cascade)

// WithRetry overrides the per-call retry policy. Hooks set on cfg are
// replaced by the cascade's own.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Cascade) { c.retry = cfg }
}

// WithCallTimeout bounds each provider call.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Cascade) { c.callTimeout = d }
}

// WithClock sets the clock used to stamp resolutions.
func WithClock(now func() time.Time) Option {
	return func(c *Cascade) { c.now = now }
}

// NewCascade wires the engine components for one provider. The cache is
// shared across every cascade of a run.
func NewCascade(provider SearchProvider, cache *DetailCache, tiers []TierSpec, eng config.EngineConfig, opts ...Option) *Cascade {
	scorer := NewScorer(eng.ThresholdsConfig)
	c := &Cascade{
		provider:   provider,
		cache:      cache,
		tiers:      tiers,
		planner:    NewPlanner(eng.CommonSurnames, eng.ThresholdsConfig),
		classifier: NewClassifier(eng.PageSize),
		scorer:     scorer,
		policy:     NewPolicy(eng.ThresholdsConfig, scorer),
		retry: resilience.RetryConfig{
			MaxAttempts:    eng.RetryBudget + 1,
			InitialBackoff: time.Duration(eng.RetryBackoffMs) * time.Millisecond,
			MaxBackoff:     30 * time.Second,
			Multiplier:     2,
		},
		callTimeout: time.Duration(eng.CallTimeoutSecs) * time.Second,
		now:         time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Resolve runs the tier cascade for lead. It always returns a match with a
// terminal status; provider failures and panics are folded into the
// status rather than returned.
func (c *Cascade) Resolve(ctx context.Context, lead model.Lead) (m *model.ResolvedMatch) {
	r := &leadRun{
		c:     c,
		lead:  lead,
		sub:   cleanValue(lead.Legal.Subdivision),
		broad: make(map[string]bool),
	}
	m = &model.ResolvedMatch{Lead: lead}

	defer func() {
		if p := recover(); p != nil {
			zap.L().Error("linkage: cascade panic",
				zap.String("lead", lead.ID()),
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
			*m = model.ResolvedMatch{
				Lead:     lead,
				Status:   model.StatusProviderError,
				Reason:   fmt.Sprintf("internal error: %v", p),
				Attempts: r.attempts,
			}
		}
		m.ResolvedAt = c.now()
	}()

	for _, tier := range c.tiers {
		if err := ctx.Err(); err != nil {
			r.record(model.TierAttempt{Tier: tier.Name, Status: model.StatusProviderError, Reason: err.Error()})
			break
		}
		if r.attempt(ctx, tier) {
			break
		}
	}
	r.finish(m)

	zap.L().Info("linkage: lead resolved",
		zap.String("lead", lead.ID()),
		zap.String("status", string(m.Status)),
		zap.String("tier", m.Tier),
		zap.Float64("score", m.Score),
		zap.String("account", m.Account()),
	)
	return m
}

type winner struct {
	tier      string
	detail    *model.CandidateDetail
	summary   *model.CandidateSummary
	score     float64
	detailErr string
}

// leadRun is the per-lead state of one Resolve call.
type leadRun struct {
	c           *Cascade
	lead        model.Lead
	sub         string
	broad       map[string]bool
	attempts    []model.TierAttempt
	partial     []model.CandidateSummary
	parseErrors []string
	accepted    *winner
	provisional *winner
}

func (r *leadRun) record(a model.TierAttempt) {
	zap.L().Debug("linkage: tier attempt",
		zap.String("lead", r.lead.ID()),
		zap.String("tier", a.Tier),
		zap.String("status", string(a.Status)),
		zap.String("reason", a.Reason),
		zap.Int("candidates", a.Candidates),
		zap.Float64("best_score", a.BestScore),
	)
	r.attempts = append(r.attempts, a)
}

// attempt runs one tier and reports whether the cascade should stop.
func (r *leadRun) attempt(ctx context.Context, tier TierSpec) bool {
	if tier.SkipWhenBroad && r.sub != "" && r.broad[r.sub] {
		r.record(model.TierAttempt{
			Tier:   tier.Name,
			Status: model.StatusSkippedBroadSearch,
			Reason: fmt.Sprintf("subdivision %s overflowed a result page on an earlier tier", r.sub),
		})
		return false
	}

	plan := r.c.planner.Plan(r.lead, tier)
	switch plan.Kind {
	case PlanInsufficient:
		r.record(model.TierAttempt{Tier: tier.Name, Status: model.StatusInsufficientData, Reason: plan.Reason})
		return false
	case PlanTooBroad:
		r.record(model.TierAttempt{Tier: tier.Name, Status: model.StatusCommonSurnameTooBroad, Reason: plan.Reason})
		return false
	}

	att := model.TierAttempt{Tier: tier.Name, LegalQuery: plan.Query.Legal, OwnerQuery: plan.Query.Owner}
	outcome, retries := r.search(ctx, plan.Query)
	att.Retries = retries

	stop := false
	switch o := outcome.(type) {
	case NoHits:
		att.Status = model.StatusNoHits
		att.Reason = "no records"
	case ProviderFault:
		att.Status = o.Kind.Status()
		att.Reason = o.Reason
	case TooManyResults:
		att.Status = model.StatusPaginationTooLarge
		att.Reason = fmt.Sprintf("%d records exceed one page", o.Total)
		att.Candidates = len(o.Candidates)
		if r.sub != "" {
			r.broad[r.sub] = true
		}
		if len(r.partial) == 0 {
			r.partial = o.Candidates
		}
	case SingleHit:
		stop = r.single(ctx, tier, o, &att)
	case MultipleHits:
		stop = r.multiple(ctx, tier, o, &att)
	}
	r.record(att)

	if !stop {
		r.reset(ctx)
	}
	return stop
}

func (r *leadRun) single(ctx context.Context, tier TierSpec, hit SingleHit, att *model.TierAttempt) bool {
	att.Candidates = 1
	d, err := r.fetchDetail(ctx, hit.Ref)
	if err != nil {
		att.Status = model.StatusDetailParseFailed
		att.Reason = err.Error()
		r.parseErrors = append(r.parseErrors, err.Error())
		return false
	}

	score := r.c.scorer.ScoreDetail(d, r.lead, tier)
	att.BestScore = score
	w := &winner{tier: tier.Name, detail: d, summary: hit.Summary, score: score}

	if tier.ConfirmName && !nameSignal(d.Owner, r.lead) {
		att.Status = model.StatusSuccessNeedsNameConfirm
		att.Reason = fmt.Sprintf("owner %q shares no surname with the decedent or party", d.Owner)
		if r.provisional == nil {
			r.provisional = w
		}
		return false
	}

	att.Status = model.StatusSuccess
	att.Reason = "single hit"
	r.accepted = w
	return true
}

func (r *leadRun) multiple(ctx context.Context, tier TierSpec, hits MultipleHits, att *model.TierAttempt) bool {
	att.Candidates = len(hits.Candidates)
	fetch := func(ctx context.Context, s model.CandidateSummary) (*model.CandidateDetail, error) {
		return r.fetchDetail(ctx, s.Ref)
	}

	switch d := r.c.policy.Decide(ctx, hits.Candidates, r.lead, tier, fetch).(type) {
	case Accept:
		r.noteParseErrors(d.Ranked)
		att.Status = model.StatusSuccess
		att.Reason = d.Path
		att.BestScore = d.Winner.Score
		summary := d.Winner.Summary
		r.accepted = &winner{
			tier:      tier.Name,
			detail:    d.Winner.Detail,
			summary:   &summary,
			score:     d.Winner.Score,
			detailErr: d.Winner.ParseError,
		}
		return true
	case Escalate:
		r.noteParseErrors(d.Ranked)
		att.Status = model.StatusMultipleHitsNoWinner
		att.Reason = d.Reason
		att.BestScore = d.Best.Score
	case Reject:
		r.noteParseErrors(d.Ranked)
		att.Status = model.StatusNoAcceptableCandidate
		att.Reason = d.Reason
		if len(d.Ranked) > 0 {
			att.BestScore = d.Ranked[0].Score
		}
	}
	return false
}

func (r *leadRun) noteParseErrors(ranked []Scored) {
	for _, s := range ranked {
		if s.ParseError != "" {
			r.parseErrors = append(r.parseErrors, s.ParseError)
		}
	}
}

// faultError carries a classified fault through the retry loop.
type faultError struct {
	fault ProviderFault
}

func (e *faultError) Error() string { return e.fault.Reason }

// search executes q with the retry budget, resetting the provider between
// attempts, and classifies the response. Faulted classifications are
// retried like transport errors.
func (r *leadRun) search(ctx context.Context, q Query) (SearchOutcome, int) {
	retries := 0
	cfg := r.retryConfig("search", &retries)

	outcome, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (SearchOutcome, error) {
		raw, err := withTimeout(ctx, r.c.callTimeout, func(ctx context.Context) (*RawResponse, error) {
			return r.c.provider.Execute(ctx, q)
		})
		if err != nil {
			return nil, err
		}
		out := r.c.classifier.Classify(raw)
		if f, ok := out.(ProviderFault); ok {
			return nil, &faultError{fault: f}
		}
		return out, nil
	})
	if err != nil {
		var fe *faultError
		if errors.As(err, &fe) {
			return fe.fault, retries
		}
		return ProviderFault{Kind: KindProviderError, Reason: err.Error()}, retries
	}
	return outcome, retries
}

// fetchDetail loads and decodes a candidate detail through the cache.
func (r *leadRun) fetchDetail(ctx context.Context, ref model.DetailRef) (*model.CandidateDetail, error) {
	return r.c.cache.GetOrFetch(ctx, CacheKeys(ref), func(ctx context.Context) (*model.CandidateDetail, error) {
		var retries int
		d, err := resilience.DoVal(ctx, r.retryConfig("detail", &retries), func(ctx context.Context) (*model.CandidateDetail, error) {
			rows, err := withTimeout(ctx, r.c.callTimeout, func(ctx context.Context) ([]records.Row, error) {
				return r.c.provider.FetchDetail(ctx, ref)
			})
			if err != nil {
				return nil, err
			}
			d, err := records.DecodeDetail(rows)
			if err != nil {
				return nil, resilience.Permanent(err)
			}
			return d, nil
		})
		if err != nil {
			return nil, &DetailFetchError{Ref: ref, Err: err}
		}
		if d.URL == "" {
			d.URL = ref.URL
		}
		if d.Account == "" {
			d.Account = firstNonEmpty(AccountFromURL(ref.URL), ref.Account)
		}
		return d, nil
	})
}

func (r *leadRun) retryConfig(op string, retries *int) resilience.RetryConfig {
	cfg := r.c.retry
	cfg.ShouldRetry = func(err error) bool { return !resilience.IsPermanent(err) }
	cfg.OnRetry = func(attempt int, err error) {
		*retries = attempt
		zap.L().Warn("linkage: retrying provider call",
			zap.String("lead", r.lead.ID()),
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	cfg.BeforeRetry = func(ctx context.Context, _ int, _ error) error {
		return r.c.provider.ResetState(ctx)
	}
	return cfg
}

// withTimeout runs one provider call under the per-call timeout. A call cut
// off by its own deadline is reported as a timeout.
func withTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	v, err := fn(callCtx)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return v, eris.Wrapf(err, "linkage: provider call timed out after %s", d)
	}
	return v, err
}

func (r *leadRun) reset(ctx context.Context) {
	if err := r.c.provider.ResetState(ctx); err != nil {
		zap.L().Warn("linkage: provider reset failed", zap.String("lead", r.lead.ID()), zap.Error(err))
	}
}

func (r *leadRun) finish(m *model.ResolvedMatch) {
	m.Attempts = r.attempts
	m.ParseErrors = r.parseErrors
	m.PartialCandidates = r.partial

	w := r.accepted
	m.Status = model.StatusSuccess
	if w == nil {
		w = r.provisional
		m.Status = model.StatusSuccessNeedsNameConfirm
	}
	if w != nil {
		m.Tier = w.tier
		m.Detail = w.detail
		m.Summary = w.summary
		m.Score = w.score
		m.DetailError = w.detailErr
		m.Reason = fmt.Sprintf("matched on %s", w.tier)
		if m.Status == model.StatusSuccessNeedsNameConfirm {
			m.Reason = fmt.Sprintf("provisional match on %s awaiting name confirmation", w.tier)
		}
		return
	}

	m.Status, m.Reason = terminalStatus(r.attempts)
}

// terminalStatus picks the status of an unmatched lead: the last executed
// search wins, then the last guard skip, then insufficient data.
func terminalStatus(attempts []model.TierAttempt) (model.Status, string) {
	var guard *model.TierAttempt
	for i := len(attempts) - 1; i >= 0; i-- {
		a := &attempts[i]
		switch a.Status {
		case model.StatusInsufficientData:
		case model.StatusSkippedBroadSearch, model.StatusCommonSurnameTooBroad:
			if guard == nil {
				guard = a
			}
		default:
			return a.Status, fmt.Sprintf("%s: %s", a.Tier, a.Reason)
		}
	}
	if guard != nil {
		return guard.Status, fmt.Sprintf("%s: %s", guard.Tier, guard.Reason)
	}
	return model.StatusInsufficientData, "no tier could form a query"
}

// nameSignal reports whether the fetched owner contains the decedent's or
// the party's surname.
func nameSignal(owner string, lead model.Lead) bool {
	owner = fuzzy.Normalize(owner)
	if owner == "" {
		return false
	}
	for _, last := range []string{cleanValue(lead.DecedentLast), cleanValue(lead.PartyLast)} {
		if last != "" && strings.Contains(owner, last) {
			return true
		}
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
