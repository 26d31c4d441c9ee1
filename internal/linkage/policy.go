package linkage

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/sells-group/probate-link/internal/config"
	"github.com/sells-group/probate-link/internal/model"
)

// Scored is a candidate with its summary score and, once fetched, its
// detail and detail score. Score falls back to SummaryScore when the detail
// could not be fetched, in which case ParseError says why.
type Scored struct {
	Summary      model.CandidateSummary
	SummaryScore float64
	Detail       *model.CandidateDetail
	Score        float64
	ParseError   string
}

// Decision is the policy's verdict on a candidate list: Accept, Escalate,
// or Reject.
type Decision interface {
	decision()
}

// Accept names the winning candidate. Path records which rule accepted it.
type Accept struct {
	Winner Scored
	Ranked []Scored
	Path   string
}

// Escalate means a candidate cleared the score bar but not the margin, so
// the evidence neither accepts nor rejects it.
type Escalate struct {
	Best   Scored
	Ranked []Scored
	Reason string
}

// Reject means no candidate is acceptable.
type Reject struct {
	Ranked []Scored
	Reason string
}

func (Accept) decision()   {}
func (Escalate) decision() {}
func (Reject) decision()   {}

// Accept paths.
const (
	PathSummary = "summary_winner"
	PathAuto    = "auto_accept"
	PathRanked  = "ranked"
)

// DetailFetcher loads the detail behind a candidate, normally through the
// DetailCache.
type DetailFetcher func(ctx context.Context, c model.CandidateSummary) (*model.CandidateDetail, error)

// Policy decides between candidates of a multiple-hit result.
type Policy struct {
	th     config.ThresholdsConfig
	scorer *Scorer
}

// NewPolicy creates a policy using th and scorer.
func NewPolicy(th config.ThresholdsConfig, scorer *Scorer) *Policy {
	return &Policy{th: th, scorer: scorer}
}

// Decide ranks candidates by summary score, accepts a clear summary winner
// after confirming its detail, and otherwise fetches details for the top
// few candidates and judges them against the lead's confidence thresholds.
func (p *Policy) Decide(ctx context.Context, candidates []model.CandidateSummary, lead model.Lead, tier TierSpec, fetch DetailFetcher) Decision {
	if len(candidates) == 0 {
		return Reject{Reason: "no candidates"}
	}

	ranked := make([]Scored, len(candidates))
	for i, c := range candidates {
		s := p.scorer.ScoreSummary(c, lead, tier)
		ranked[i] = Scored{Summary: c, SummaryScore: s, Score: s}
	}
	slices.SortStableFunc(ranked, func(a, b Scored) int { return cmp.Compare(b.SummaryScore, a.SummaryScore) })

	top := ranked[0]
	if top.SummaryScore >= p.th.SummaryAcceptScore &&
		(len(ranked) == 1 || top.SummaryScore-ranked[1].SummaryScore >= p.th.SummaryAcceptMargin) {
		d, err := fetch(ctx, top.Summary)
		if err == nil {
			top.Detail = d
			top.Score = p.scorer.ScoreDetail(d, lead, tier)
			ranked[0] = top
			return Accept{Winner: top, Ranked: ranked, Path: PathSummary}
		}
		zap.L().Debug("linkage: summary winner detail unavailable",
			zap.String("tier", tier.Name),
			zap.String("account", top.Summary.Account),
			zap.Error(err),
		)
	}

	n := min(len(ranked), max(p.th.DetailFetchLimit, 1))
	pool := slices.Clone(ranked[:n])
	for i := range pool {
		d, err := fetch(ctx, pool[i].Summary)
		if err != nil {
			pool[i].Score = pool[i].SummaryScore
			pool[i].ParseError = err.Error()
			continue
		}
		pool[i].Detail = d
		pool[i].Score = p.scorer.ScoreDetail(d, lead, tier)
		if pool[i].Score >= p.th.AutoAcceptScore {
			return Accept{Winner: pool[i], Ranked: pool[:i+1], Path: PathAuto}
		}
	}

	slices.SortStableFunc(pool, func(a, b Scored) int { return cmp.Compare(b.Score, a.Score) })
	return p.Judge(pool, lead.Confidence)
}

// Judge applies the confidence-dependent score and margin bars to a pool
// already sorted by final score, best first.
func (p *Policy) Judge(pool []Scored, conf model.Confidence) Decision {
	if len(pool) == 0 {
		return Reject{Reason: "no candidates"}
	}
	minScore, minMargin := p.th.MinScoreOther, p.th.MinMarginOther
	if conf.IsHigh() {
		minScore, minMargin = p.th.MinScoreHigh, p.th.MinMarginHigh
	}

	top := pool[0]
	if conf.IsHigh() && top.Score == 0 {
		return Reject{Ranked: pool, Reason: "best score is 0 for a High confidence lead"}
	}
	if top.Score < minScore {
		return Reject{Ranked: pool, Reason: fmt.Sprintf("best score %.1f below %.1f", top.Score, minScore)}
	}
	if len(pool) > 1 {
		if margin := top.Score - pool[1].Score; margin < minMargin {
			return Escalate{Best: top, Ranked: pool, Reason: fmt.Sprintf("margin %.1f over runner-up below %.1f", margin, minMargin)}
		}
	}
	if top.Detail == nil {
		return Escalate{Best: top, Ranked: pool, Reason: "best candidate detail unavailable: " + top.ParseError}
	}
	return Accept{Winner: top, Ranked: pool, Path: PathRanked}
}
