package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/probate-link/internal/model"
)

type fakeTaxLookup struct {
	calls map[string]int
	fail  map[string]bool
}

func (f *fakeTaxLookup) Lookup(_ context.Context, account string) (*model.TaxStatement, error) {
	f.calls[account]++
	if f.fail[account] {
		return nil, errors.New("statement page timed out")
	}
	due := 1250.0
	return &model.TaxStatement{Account: account, Owner: "DOE JOHN", CurrentTaxesDue: &due}, nil
}

func TestEnricher_Enrich(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	run, _, err := f.runner.Run(ctx, "leads.csv", testLeads())
	require.NoError(t, err)

	lookup := &fakeTaxLookup{calls: map[string]int{}, fail: map[string]bool{}}
	res, err := NewEnricher(f.st, lookup, false).Enrich(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, EnrichResult{Accounts: 1, Fetched: 1}, res)

	// A second pass is served from the store.
	res, err = NewEnricher(f.st, lookup, false).Enrich(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, EnrichResult{Accounts: 1, Cached: 1}, res)
	assert.Equal(t, 1, lookup.calls[doeAcct])

	// Refresh ignores the stored statement.
	_, err = NewEnricher(f.st, lookup, true).Enrich(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, lookup.calls[doeAcct])

	got, err := f.st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	assert.Equal(t, 1, got.Stats.Matched)

	matches, taxes, err := Report(ctx, f.st, run.ID)
	require.NoError(t, err)
	assert.Len(t, matches, 3)
	require.Contains(t, taxes, doeAcct)
	assert.Equal(t, "DOE JOHN", taxes[doeAcct].Owner)
}

func TestEnricher_LookupFailureIsStored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	run, _, err := f.runner.Run(ctx, "leads.csv", testLeads())
	require.NoError(t, err)

	lookup := &fakeTaxLookup{calls: map[string]int{}, fail: map[string]bool{doeAcct: true}}
	res, err := NewEnricher(f.st, lookup, false).Enrich(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	st, err := f.st.GetTaxStatement(ctx, doeAcct)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Contains(t, st.Error, "timed out")

	// Failed statements are retried on the next pass.
	lookup.fail[doeAcct] = false
	res, err = NewEnricher(f.st, lookup, false).Enrich(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Fetched)
}
