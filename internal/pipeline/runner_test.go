package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/probate-link/internal/config"
	"github.com/sells-group/probate-link/internal/linkage"
	"github.com/sells-group/probate-link/internal/model"
	"github.com/sells-group/probate-link/internal/records"
	"github.com/sells-group/probate-link/internal/resilience"
	"github.com/sells-group/probate-link/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const doeAcct = "0012340000001"

// scriptedProvider answers legal queries by subdivision keyword.
type scriptedProvider struct {
	mu      sync.Mutex
	failing map[string]bool
	queries int
}

func (p *scriptedProvider) Execute(_ context.Context, q linkage.Query) (*linkage.RawResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queries++
	for kw := range p.failing {
		if strings.Contains(q.Legal, kw) || strings.Contains(q.Owner, kw) {
			return nil, resilience.Permanent(errors.New("search form missing"))
		}
	}
	if strings.Contains(q.Legal, "OAK RIDGE") {
		return &linkage.RawResponse{Detail: &model.DetailRef{URL: detailURL(doeAcct)}}, nil
	}
	return &linkage.RawResponse{NoRecords: true}, nil
}

func (p *scriptedProvider) FetchDetail(_ context.Context, ref model.DetailRef) ([]records.Row, error) {
	acct := linkage.AccountFromURL(ref.URL)
	return []records.Row{
		records.TextRow("Account Number:", acct),
		records.TextRow("Owner Name & Mailing Address:", "DOE JOHN\n1 MAIN ST\nHOUSTON TX 77001"),
		records.TextRow("Legal Description:", "LT 5 BLK 3 OAK RIDGE"),
	}, nil
}

func (p *scriptedProvider) ResetState(context.Context) error { return nil }

func (p *scriptedProvider) setFailing(kw string, fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failing[kw] = fail
	if !fail {
		delete(p.failing, kw)
	}
}

func detailURL(acct string) string {
	return "https://public.hcad.org/records/details.asp?cntry=harris&acct=" + acct
}

func testConfig() *config.Config {
	return &config.Config{
		Engine: config.EngineConfig{
			ThresholdsConfig: linkage.DefaultThresholds(),
			CommonSurnames:   config.DefaultCommonSurnames,
		},
		Batch: config.BatchConfig{MaxConcurrentLeads: 2},
		Retry: config.RetryConfig{MaxAttempts: 2, InitialBackoffMs: 1000, MaxBackoffMs: 5000, Multiplier: 2},
	}
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testLeads() []model.Lead {
	return []model.Lead{
		{
			CaseNumber:    "500123",
			DecedentFirst: "JOHN",
			DecedentLast:  "DOE",
			PartyType:     "Grantor",
			PartyFirst:    "JOHN",
			PartyLast:     "DOE",
			Legal:         model.LegalDescription{Lot: "5", Block: "3", Subdivision: "OAK RIDGE"},
			Confidence:    model.ConfidenceHigh,
		},
		{
			CaseNumber:    "500124",
			DecedentFirst: "MARY",
			DecedentLast:  "ROE",
			Legal:         model.LegalDescription{Lot: "9", Block: "1", Subdivision: "PINE HOLLOW"},
		},
		{CaseNumber: "500125", DecedentFirst: "ANN"},
	}
}

type fixture struct {
	st       store.Store
	provider *scriptedProvider
	runner   *Runner
	now      time.Time
	opened   int
	closed   int
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		st:       newTestStore(t),
		provider: &scriptedProvider{failing: map[string]bool{"PINE HOLLOW": true}},
		now:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	var mu sync.Mutex
	factory := func(context.Context, int) (linkage.SearchProvider, func(), error) {
		mu.Lock()
		defer mu.Unlock()
		f.opened++
		return f.provider, func() {
			mu.Lock()
			defer mu.Unlock()
			f.closed++
		}, nil
	}
	f.runner = New(f.st, factory, linkage.DefaultTiers(), testConfig(),
		WithClock(func() time.Time { return f.now }),
	)
	return f
}

func TestRunner_Run(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	run, matches, err := f.runner.Run(ctx, "leads.csv", testLeads())
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, model.StatusSuccess, matches[0].Status)
	assert.Equal(t, doeAcct, matches[0].Account())
	require.NotNil(t, matches[0].Owner)
	assert.Equal(t, model.StatusProviderError, matches[1].Status)
	assert.Nil(t, matches[1].Owner)
	assert.Equal(t, model.StatusInsufficientData, matches[2].Status)

	assert.Equal(t, 2, f.opened)
	assert.Equal(t, 2, f.closed)

	got, err := f.st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	assert.Equal(t, 3, got.Stats.Leads)
	assert.Equal(t, 1, got.Stats.Matched)
	assert.Equal(t, 1, got.Stats.Unmatched)
	assert.Equal(t, 1, got.Stats.Failed)

	saved, err := f.st.ListMatches(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, saved, 3)

	queued, err := f.st.ListFollowUps(ctx, resilience.FollowUpFilter{RunID: run.ID})
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, "500124", queued[0].Lead.CaseNumber)
	assert.Equal(t, resilience.FollowUpTransient, queued[0].Kind)
}

func TestRunner_Run_Empty(t *testing.T) {
	f := newFixture(t)

	run, matches, err := f.runner.Run(context.Background(), "empty.csv", nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Zero(t, f.opened)
}

func TestRunner_Run_ProviderOpenFails(t *testing.T) {
	st := newTestStore(t)
	factory := func(context.Context, int) (linkage.SearchProvider, func(), error) {
		return nil, nil, errors.New("chrome not found")
	}
	r := New(st, factory, linkage.DefaultTiers(), testConfig())

	run, _, err := r.Run(context.Background(), "leads.csv", testLeads())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chrome not found")

	got, gErr := st.GetRun(context.Background(), run.ID)
	require.NoError(t, gErr)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Contains(t, got.Error, "open provider")
}

func TestRunner_RetryFollowUps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	run, _, err := f.runner.Run(ctx, "leads.csv", testLeads())
	require.NoError(t, err)

	// Nothing is due before the backoff elapses.
	res, err := f.runner.RetryFollowUps(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, res.Attempted)

	// Still failing: the entry is rescheduled.
	f.now = f.now.Add(time.Minute)
	res, err = f.runner.RetryFollowUps(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, RetryResult{Attempted: 1, Requeued: 1}, res)

	// The portal recovers: the lead resolves and leaves the queue.
	f.provider.setFailing("PINE HOLLOW", false)
	f.now = f.now.Add(time.Hour)
	res, err = f.runner.RetryFollowUps(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, RetryResult{Attempted: 1, Resolved: 1}, res)

	n, err := f.st.CountFollowUps(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	saved, err := f.st.ListMatches(ctx, run.ID)
	require.NoError(t, err)
	for _, m := range saved {
		if m.Lead.CaseNumber == "500124" {
			assert.Equal(t, model.StatusNoHits, m.Status)
		}
	}
}
