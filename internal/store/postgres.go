package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/probate-link/internal/db"
	"github.com/sells-group/probate-link/internal/model"
	"github.com/sells-group/probate-link/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate applies pending SQL migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return Migrate(ctx, s.pool)
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// CreateRun inserts a queued run for the given lead source.
func (s *PostgresStore) CreateRun(ctx context.Context, source string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, source, status, stats, created_at, updated_at) VALUES ($1, $2, $3, '{}', $4, $5)`,
		id, source, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &model.Run{
		ID:        id,
		Source:    source,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// UpdateRunStatus moves a run to status.
func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return notFound("run", runID)
	}
	return nil
}

// CompleteRun records final stats and marks the run complete, or failed
// when runErr is set.
func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, stats model.RunStats, runErr error) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET stats = $1, status = $2, error = $3, updated_at = $4 WHERE id = $5`,
		statsJSON, string(completedStatus(runErr)), errText(runErr), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return notFound("run", runID)
	}
	return nil
}

// GetRun returns one run.
func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanPgRun(s.pool.QueryRow(ctx,
		`SELECT id, source, status, stats, error, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("run", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

// ListRuns returns runs newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error) {
	query := `SELECT id, source, status, stats, error, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, limitOrDefault(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var (
		r         model.Run
		statsJSON []byte
		runErr    *string
	)
	if err := row.Scan(&r.ID, &r.Source, &r.Status, &statsJSON, &runErr, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if runErr != nil {
		r.Error = *runErr
	}
	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &r.Stats); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal stats")
		}
	}
	return &r, nil
}

// matchMerge keeps the most recently resolved match per (run_id, lead_id).
var matchMerge = db.Merge{
	Table:   "matches",
	Columns: []string{"run_id", "lead_id", "case_number", "status", "tier", "score", "account", "data", "resolved_at"},
	Keys:    []string{"run_id", "lead_id"},
	Version: "resolved_at",
}

// taxMerge keeps the most recently fetched statement per account.
var taxMerge = db.Merge{
	Table:   "tax_statements",
	Columns: []string{"account", "data", "fetched_at"},
	Keys:    []string{"account"},
	Version: "fetched_at",
}

// SaveMatches merges resolved matches, keeping the newest per lead, and
// replaces their tier attempt log with a COPY.
func (s *PostgresStore) SaveMatches(ctx context.Context, runID string, matches []*model.ResolvedMatch) error {
	if len(matches) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(matches))
	leadIDs := make([]string, 0, len(matches))
	var attempts [][]any
	for _, m := range matches {
		data, err := json.Marshal(m)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal match %s", m.Lead.ID())
		}
		rows = append(rows, []any{
			runID, m.Lead.ID(), m.Lead.CaseNumber, string(m.Status), m.Tier, m.Score, m.Account(), data, m.ResolvedAt.UTC(),
		})
		leadIDs = append(leadIDs, m.Lead.ID())
		attempts = append(attempts, attemptRows(runID, m)...)
	}

	if _, err := matchMerge.Apply(ctx, s.pool, rows); err != nil {
		return eris.Wrap(err, "postgres: save matches")
	}
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM tier_attempts WHERE run_id = $1 AND lead_id = ANY($2)`, runID, leadIDs,
	); err != nil {
		return eris.Wrap(err, "postgres: clear attempts")
	}
	if _, err := db.CopyFrom(ctx, s.pool, "tier_attempts", attemptColumns, attempts); err != nil {
		return eris.Wrap(err, "postgres: copy attempts")
	}
	return nil
}

// ListMatches returns every resolved match of a run ordered by lead.
func (s *PostgresStore) ListMatches(ctx context.Context, runID string) ([]model.ResolvedMatch, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM matches WHERE run_id = $1 ORDER BY case_number, lead_id`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list matches")
	}
	defer rows.Close()

	var out []model.ResolvedMatch
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan match")
		}
		var m model.ResolvedMatch
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal match")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list matches iterate")
}

// TierStats counts a run's attempts by tier and status.
func (s *PostgresStore) TierStats(ctx context.Context, runID string) ([]TierStat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tier, status, COUNT(*) FROM tier_attempts WHERE run_id = $1
		 GROUP BY tier, status ORDER BY tier, status`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: tier stats")
	}
	defer rows.Close()

	var out []TierStat
	for rows.Next() {
		var ts TierStat
		if err := rows.Scan(&ts.Tier, &ts.Status, &ts.Count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tier stat")
		}
		out = append(out, ts)
	}
	return out, eris.Wrap(rows.Err(), "postgres: tier stats iterate")
}

// SaveTaxStatement upserts the statement for its account.
func (s *PostgresStore) SaveTaxStatement(ctx context.Context, st *model.TaxStatement) error {
	data, err := json.Marshal(st)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal tax statement")
	}
	_, err = s.pool.Exec(ctx, taxMerge.RowSQL(), st.Account, data, st.FetchedAt.UTC())
	return eris.Wrapf(err, "postgres: save tax statement %s", st.Account)
}

// GetTaxStatement returns the stored statement for account, or nil when
// there is none.
func (s *PostgresStore) GetTaxStatement(ctx context.Context, account string) (*model.TaxStatement, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM tax_statements WHERE account = $1`, account).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get tax statement")
	}
	var st model.TaxStatement
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal tax statement")
	}
	return &st, nil
}

// EnqueueFollowUp inserts f, or updates its retry state when the id exists.
func (s *PostgresStore) EnqueueFollowUp(ctx context.Context, f resilience.FollowUp) error {
	leadJSON, candJSON, err := marshalFollowUp(f)
	if err != nil {
		return err
	}
	if f.ID == "" {
		f.ID = uuid.New().String()
	}

	var nextRetry *time.Time
	if !f.NextRetryAt.IsZero() {
		t := f.NextRetryAt.UTC()
		nextRetry = &t
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO followups
		 (id, run_id, lead_id, lead, status, kind, reason, candidates, retry_count, max_retries, next_retry_at, created_at, last_seen_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (id) DO UPDATE SET
		   status = $5, kind = $6, reason = $7, candidates = $8, retry_count = $9,
		   next_retry_at = $11, last_seen_at = $13`,
		f.ID, f.RunID, f.Lead.ID(), leadJSON, string(f.Status), string(f.Kind), f.Reason, candJSON,
		f.RetryCount, f.MaxRetries, nextRetry, f.CreatedAt.UTC(), f.LastSeenAt.UTC(),
	)
	return eris.Wrap(err, "postgres: enqueue followup")
}

const pgFollowUpColumns = `id, run_id, lead, status, kind, reason, candidates, retry_count, max_retries, next_retry_at, created_at, last_seen_at`

// ListFollowUps returns queued entries, newest first.
func (s *PostgresStore) ListFollowUps(ctx context.Context, filter resilience.FollowUpFilter) ([]resilience.FollowUp, error) {
	query := `SELECT ` + pgFollowUpColumns + ` FROM followups WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Kind != "" {
		query += fmt.Sprintf(` AND kind = $%d`, argIdx)
		args = append(args, string(filter.Kind))
		argIdx++
	}
	if filter.RunID != "" {
		query += fmt.Sprintf(` AND run_id = $%d`, argIdx)
		args = append(args, filter.RunID)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, limitOrDefault(filter.Limit))
	return s.queryFollowUps(ctx, query, args...)
}

// DueFollowUps returns transient entries whose retry time has passed and
// whose retry budget is not spent.
func (s *PostgresStore) DueFollowUps(ctx context.Context, now time.Time, limit int) ([]resilience.FollowUp, error) {
	return s.queryFollowUps(ctx,
		`SELECT `+pgFollowUpColumns+` FROM followups
		 WHERE kind = $1 AND next_retry_at <= $2 AND retry_count < max_retries
		 ORDER BY next_retry_at ASC LIMIT $3`,
		string(resilience.FollowUpTransient), now.UTC(), limitOrDefault(limit),
	)
}

func (s *PostgresStore) queryFollowUps(ctx context.Context, query string, args ...any) ([]resilience.FollowUp, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query followups")
	}
	defer rows.Close()

	var out []resilience.FollowUp
	for rows.Next() {
		var (
			f         resilience.FollowUp
			leadJSON  []byte
			candJSON  []byte
			nextRetry *time.Time
		)
		if err := rows.Scan(&f.ID, &f.RunID, &leadJSON, &f.Status, &f.Kind, &f.Reason, &candJSON,
			&f.RetryCount, &f.MaxRetries, &nextRetry, &f.CreatedAt, &f.LastSeenAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan followup")
		}
		if nextRetry != nil {
			f.NextRetryAt = *nextRetry
		}
		if err := unmarshalFollowUp(&f, leadJSON, candJSON); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: followups iterate")
}

// RemoveFollowUp deletes an entry.
func (s *PostgresStore) RemoveFollowUp(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM followups WHERE id = $1`, id)
	return eris.Wrap(err, "postgres: remove followup")
}

// CountFollowUps returns the queue length.
func (s *PostgresStore) CountFollowUps(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM followups`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count followups")
}
