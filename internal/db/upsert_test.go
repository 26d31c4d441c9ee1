package db

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var matches = Merge{
	Table:   "matches",
	Columns: []string{"run_id", "lead_id", "status", "resolved_at"},
	Keys:    []string{"run_id", "lead_id"},
	Version: "resolved_at",
}

func TestMerge_Validate(t *testing.T) {
	tests := []struct {
		name string
		m    Merge
		want string
	}{
		{"no columns", Merge{Table: "matches", Keys: []string{"run_id"}}, "no columns"},
		{"no keys", Merge{Table: "matches", Columns: []string{"run_id"}}, "no key columns"},
		{"key not a column", Merge{Table: "matches", Columns: []string{"status"}, Keys: []string{"run_id"}}, "key run_id is not a column"},
		{"version not a column", Merge{Table: "matches", Columns: []string{"run_id"}, Keys: []string{"run_id"}, Version: "resolved_at"}, "version resolved_at is not a column"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
	assert.NoError(t, matches.validate())
}

func TestMerge_EmptyRows(t *testing.T) {
	n, err := Merge{}.Apply(context.Background(), nil, nil)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestMerge_MergeSQL_NewestWins(t *testing.T) {
	assert.Equal(t,
		`INSERT INTO "matches" AS t ("run_id", "lead_id", "status", "resolved_at") `+
			`SELECT DISTINCT ON ("run_id", "lead_id") "run_id", "lead_id", "status", "resolved_at" FROM "_stage_matches" `+
			`ORDER BY "run_id", "lead_id", "resolved_at" DESC `+
			`ON CONFLICT ("run_id", "lead_id") DO UPDATE SET "status" = EXCLUDED."status", "resolved_at" = EXCLUDED."resolved_at" `+
			`WHERE t."resolved_at" <= EXCLUDED."resolved_at"`,
		matches.mergeSQL())
}

func TestMerge_RowSQL(t *testing.T) {
	tax := Merge{
		Table:   "public.tax_statements",
		Columns: []string{"account", "data", "fetched_at"},
		Keys:    []string{"account"},
		Version: "fetched_at",
	}
	assert.Equal(t,
		`INSERT INTO "public"."tax_statements" AS t ("account", "data", "fetched_at") VALUES ($1, $2, $3) `+
			`ON CONFLICT ("account") DO UPDATE SET "data" = EXCLUDED."data", "fetched_at" = EXCLUDED."fetched_at" `+
			`WHERE t."fetched_at" <= EXCLUDED."fetched_at"`,
		tax.RowSQL())
}

func TestMerge_KeysOnly(t *testing.T) {
	m := Merge{Table: "seen", Columns: []string{"account"}, Keys: []string{"account"}}
	assert.Equal(t, `INSERT INTO "seen" AS t ("account") VALUES ($1) ON CONFLICT ("account") DO NOTHING`, m.RowSQL())
}

func TestMerge_Apply(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TEMP TABLE "_stage_matches" (LIKE "matches" INCLUDING DEFAULTS) ON COMMIT DROP`)).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_matches"}, matches.Columns).WillReturnResult(2)
	mock.ExpectExec(regexp.QuoteMeta(matches.mergeSQL())).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	n, err := matches.Apply(context.Background(), mock, [][]any{
		{"r1", "P-1/RP-1", "PROVIDER_ERROR", "2024-05-01T00:00:00Z"},
		{"r1", "P-1/RP-1", "SUCCESS", "2024-05-02T00:00:00Z"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMerge_Apply_CopyFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_matches"}, matches.Columns).WillReturnError(errors.New("conn reset"))
	mock.ExpectRollback()

	_, err = matches.Apply(context.Background(), mock, [][]any{{"r1", "P-1/RP-1", "SUCCESS", "2024-05-02T00:00:00Z"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: merge matches: copy 1 rows")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTableIdent(t *testing.T) {
	assert.Equal(t, `"matches"`, tableIdent("matches"))
	assert.Equal(t, `"public"."matches"`, tableIdent("public.matches"))
}
