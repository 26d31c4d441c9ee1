package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/probate-link/internal/model"
	"github.com/sells-group/probate-link/internal/resilience"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return &PostgresStore{pool: mock}, mock
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, source, status, stats, error, created_at, updated_at FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	stats, _ := json.Marshal(model.RunStats{Leads: 4, Matched: 3})
	runErr := "partial failure"

	mock.ExpectQuery(`SELECT id, source, status, stats, error, created_at, updated_at FROM runs`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "source", "status", "stats", "error", "created_at", "updated_at"}).
			AddRow("run-1", "leads.csv", model.RunStatusComplete, stats, &runErr, now, now))

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "leads.csv", run.Source)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, 3, run.Stats.Matched)
	assert.Equal(t, "partial failure", run.Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), "leads.csv", string(model.RunStatusQueued), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), "leads.csv")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET stats = \$1, status = \$2, error = \$3`).
		WithArgs(pgxmock.AnyArg(), string(model.RunStatusFailed), "boom", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE runs SET stats`).
		WithArgs(pgxmock.AnyArg(), string(model.RunStatusComplete), "", pgxmock.AnyArg(), "gone").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, s.CompleteRun(context.Background(), "run-1", model.RunStats{}, errors.New("boom")))

	err := s.CompleteRun(context.Background(), "gone", model.RunStats{}, nil)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "run gone")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_Filter(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM runs WHERE true AND status = \$1 ORDER BY created_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs(string(model.RunStatusComplete), 5, 10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "source", "status", "stats", "error", "created_at", "updated_at"}))

	runs, err := s.ListRuns(context.Background(), model.RunFilter{Status: model.RunStatusComplete, Limit: 5, Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveMatches(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_matches"}, matchMerge.Columns).WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "matches" AS t .* WHERE t."resolved_at" <= EXCLUDED."resolved_at"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectExec(`DELETE FROM tier_attempts WHERE run_id = \$1 AND lead_id = ANY\(\$2\)`).
		WithArgs("run-1", []string{"P-1/RP-1"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"tier_attempts"}, attemptColumns).WillReturnResult(2)

	err := s.SaveMatches(context.Background(), "run-1", []*model.ResolvedMatch{testMatch("P-1", "RP-1", model.StatusSuccess)})
	require.NoError(t, err)
}

func TestPostgresStore_SaveMatches_UpsertFails(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

	err := s.SaveMatches(context.Background(), "run-1", []*model.ResolvedMatch{testMatch("P-1", "RP-1", model.StatusNoHits)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save matches")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListMatches(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	data, err := json.Marshal(testMatch("P-1", "RP-1", model.StatusSuccess))
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT data FROM matches WHERE run_id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow(data))

	got, err := s.ListMatches(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "0660640130020", got[0].Account())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetTaxStatement_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM tax_statements`).
		WithArgs("123").
		WillReturnError(pgx.ErrNoRows)

	st, err := s.GetTaxStatement(context.Background(), "123")
	require.NoError(t, err)
	assert.Nil(t, st)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveTaxStatement_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT \("account"\) DO UPDATE .* WHERE t."fetched_at" <= EXCLUDED."fetched_at"`).
		WithArgs("123", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveTaxStatement(context.Background(), &model.TaxStatement{Account: "123"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnqueueFollowUp(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	f := resilience.NewFollowUp("f-1", "run-1", testMatch("P-1", "RP-1", model.StatusProviderError), 3, resilience.RetryConfig{}, now)

	mock.ExpectExec(`INSERT INTO followups`).
		WithArgs("f-1", "run-1", "P-1/RP-1", pgxmock.AnyArg(), string(model.StatusProviderError),
			string(resilience.FollowUpTransient), "test", pgxmock.AnyArg(), 0, 3,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.EnqueueFollowUp(context.Background(), *f))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DueFollowUps(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	lead, _ := json.Marshal(model.Lead{CaseNumber: "P-9"})
	next := now.Add(-time.Minute)

	mock.ExpectQuery(`FROM followups\s+WHERE kind = \$1 AND next_retry_at <= \$2`).
		WithArgs(string(resilience.FollowUpTransient), now, 25).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "run_id", "lead", "status", "kind", "reason", "candidates",
			"retry_count", "max_retries", "next_retry_at", "created_at", "last_seen_at",
		}).AddRow("f-9", "run-1", lead, model.StatusProviderError, resilience.FollowUpTransient, "timeout", []byte(nil),
			1, 3, &next, now, now))

	due, err := s.DueFollowUps(context.Background(), now, 25)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "P-9", due[0].Lead.CaseNumber)
	assert.Equal(t, 1, due[0].RetryCount)
	assert.True(t, due[0].CanRetry())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountFollowUps(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM followups`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))

	n, err := s.CountFollowUps(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
