package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/probate-link/internal/model"
	"github.com/sells-group/probate-link/internal/resilience"
	"github.com/sells-group/probate-link/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeProcessor struct {
	done chan []model.Lead
}

func (f *fakeProcessor) Process(_ context.Context, _ *model.Run, leads []model.Lead) ([]*model.ResolvedMatch, error) {
	f.done <- leads
	return nil, nil
}

func newTestServer(t *testing.T) (*httptest.Server, store.Store, *fakeProcessor) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	p := &fakeProcessor{done: make(chan []model.Lead, 1)}
	srv := httptest.NewServer(NewServer(context.Background(), st, p).Router([]string{"*"}))
	t.Cleanup(srv.Close)
	return srv, st, p
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func seedRun(t *testing.T, st store.Store) *model.Run {
	t.Helper()
	ctx := context.Background()
	run, err := st.CreateRun(ctx, "leads.csv")
	require.NoError(t, err)

	matched := &model.ResolvedMatch{
		Lead:     model.Lead{CaseNumber: "500123", DecedentLast: "DOE"},
		Status:   model.StatusSuccess,
		Tier:     "T0_ExactLot",
		Detail:   &model.CandidateDetail{Account: "0012340000001", Owner: "DOE JOHN"},
		Attempts: []model.TierAttempt{{Tier: "T0_ExactLot", Status: model.StatusSuccess}},
	}
	overflow := &model.ResolvedMatch{
		Lead:     model.Lead{CaseNumber: "500124", DecedentLast: "ROE"},
		Status:   model.StatusPaginationTooLarge,
		Attempts: []model.TierAttempt{{Tier: "T2_GrantorLast", Status: model.StatusPaginationTooLarge}},
	}
	require.NoError(t, st.SaveMatches(ctx, run.ID, []*model.ResolvedMatch{matched, overflow}))

	f := resilience.NewFollowUp("f-1", run.ID, overflow, 0, resilience.RetryConfig{}, time.Now().UTC())
	require.NoError(t, st.EnqueueFollowUp(ctx, *f))
	return run
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var body map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/health", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRuns(t *testing.T) {
	srv, st, _ := newTestServer(t)
	run := seedRun(t, st)

	var runs []model.Run
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/runs?limit=5", &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)

	var got model.Run
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/runs/"+run.ID, &got))
	assert.Equal(t, "leads.csv", got.Source)

	var errBody map[string]string
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/runs/missing", &errBody))
	assert.Equal(t, "not found", errBody["error"])
}

func TestRuns_EmptyListIsArray(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var runs []model.Run
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/runs", &runs))
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestMatches(t *testing.T) {
	srv, st, _ := newTestServer(t)
	run := seedRun(t, st)

	var all []model.ResolvedMatch
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/runs/"+run.ID+"/matches", &all))
	assert.Len(t, all, 2)

	var review []model.ResolvedMatch
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/runs/"+run.ID+"/matches?review=true", &review))
	require.Len(t, review, 1)
	assert.Equal(t, "500124", review[0].Lead.CaseNumber)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/runs/missing/matches", nil))
}

func TestTierStats(t *testing.T) {
	srv, st, _ := newTestServer(t)
	run := seedRun(t, st)

	var stats []store.TierStat
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/runs/"+run.ID+"/tiers", &stats))
	assert.Len(t, stats, 2)
}

func TestFollowUps(t *testing.T) {
	srv, st, _ := newTestServer(t)
	run := seedRun(t, st)

	var items []resilience.FollowUp
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/followups?kind=pagination&run_id="+run.ID, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "500124", items[0].Lead.CaseNumber)

	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/followups?kind=transient", &items))
	assert.Empty(t, items)
}

func TestResolve(t *testing.T) {
	srv, st, p := newTestServer(t)

	body, err := json.Marshal(resolveRequest{Leads: []model.Lead{{CaseNumber: "500123", DecedentLast: "DOE"}}})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/resolve", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	runID, _ := out["run_id"].(string)
	require.NotEmpty(t, runID)

	select {
	case leads := <-p.done:
		require.Len(t, leads, 1)
		assert.Equal(t, "500123", leads[0].CaseNumber)
	case <-time.After(5 * time.Second):
		t.Fatal("processor was not called")
	}

	run, err := st.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, "api", run.Source)
}

func TestResolve_BadRequests(t *testing.T) {
	srv, _, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", "{", http.StatusBadRequest},
		{"no leads", `{"leads":[]}`, http.StatusBadRequest},
		{"missing case number", `{"leads":[{"decedent_last":"DOE"}]}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/resolve", "application/json", bytes.NewBufferString(tt.body))
			require.NoError(t, err)
			resp.Body.Close() //nolint:errcheck
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/runs", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
