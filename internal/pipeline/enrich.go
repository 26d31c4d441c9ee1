package pipeline

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/probate-link/internal/model"
	"github.com/sells-group/probate-link/internal/store"
)

// TaxLookup fetches the current tax statement for an assessor account.
type TaxLookup interface {
	Lookup(ctx context.Context, account string) (*model.TaxStatement, error)
}

// EnrichResult summarizes an enrichment pass.
type EnrichResult struct {
	Accounts int `json:"accounts"`
	Cached   int `json:"cached"`
	Fetched  int `json:"fetched"`
	Failed   int `json:"failed"`
}

// Enricher attaches tax statements to the matched leads of a run.
type Enricher struct {
	store   store.Store
	lookup  TaxLookup
	refresh bool
}

// NewEnricher creates an Enricher. With refresh set, stored statements are
// fetched again.
func NewEnricher(st store.Store, lookup TaxLookup, refresh bool) *Enricher {
	return &Enricher{store: st, lookup: lookup, refresh: refresh}
}

// Enrich looks up every distinct matched account of runID. A failed
// lookup is logged and stored with its error so reports show it; only
// storage failures and cancellation abort the pass.
func (e *Enricher) Enrich(ctx context.Context, runID string) (EnrichResult, error) {
	var res EnrichResult

	matches, err := e.store.ListMatches(ctx, runID)
	if err != nil {
		return res, eris.Wrap(err, "pipeline: list matches")
	}
	if err := e.store.UpdateRunStatus(ctx, runID, model.RunStatusEnriching); err != nil {
		return res, eris.Wrap(err, "pipeline: mark run enriching")
	}

	seen := make(map[string]bool)
	for _, m := range matches {
		acct := m.Account()
		if !m.Status.Matched() || acct == "" || seen[acct] {
			continue
		}
		seen[acct] = true
		res.Accounts++

		if !e.refresh {
			cached, err := e.store.GetTaxStatement(ctx, acct)
			if err != nil {
				return res, eris.Wrapf(err, "pipeline: get tax statement %s", acct)
			}
			if cached != nil && cached.Error == "" {
				res.Cached++
				continue
			}
		}

		st, err := e.lookup.Lookup(ctx, acct)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return res, eris.Wrap(err, "pipeline: enrich cancelled")
			}
			zap.L().Warn("pipeline: tax lookup failed", zap.String("account", acct), zap.Error(err))
			res.Failed++
			st = &model.TaxStatement{Account: acct, Error: err.Error()}
		} else {
			res.Fetched++
		}
		if err := e.store.SaveTaxStatement(ctx, st); err != nil {
			return res, eris.Wrapf(err, "pipeline: save tax statement %s", acct)
		}
	}

	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return res, eris.Wrap(err, "pipeline: get run")
	}
	if err := e.store.CompleteRun(ctx, runID, run.Stats, nil); err != nil {
		return res, eris.Wrap(err, "pipeline: complete run")
	}

	zap.L().Info("pipeline: enrichment complete",
		zap.String("run_id", runID),
		zap.Int("accounts", res.Accounts),
		zap.Int("cached", res.Cached),
		zap.Int("fetched", res.Fetched),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// Report loads a run's matches with their tax statements in case order.
func Report(ctx context.Context, st store.Store, runID string) ([]model.ResolvedMatch, map[string]*model.TaxStatement, error) {
	matches, err := st.ListMatches(ctx, runID)
	if err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: list matches")
	}
	taxes := make(map[string]*model.TaxStatement)
	for _, m := range matches {
		acct := m.Account()
		if acct == "" {
			continue
		}
		if _, ok := taxes[acct]; ok {
			continue
		}
		t, err := st.GetTaxStatement(ctx, acct)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "pipeline: get tax statement %s", acct)
		}
		if t != nil {
			taxes[acct] = t
		}
	}
	return matches, taxes, nil
}
