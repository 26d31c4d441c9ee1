package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/probate-link/internal/model"
	"github.com/sells-group/probate-link/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	stats      TEXT NOT NULL DEFAULT '{}',
	error      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS matches (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	lead_id     TEXT NOT NULL,
	case_number TEXT NOT NULL,
	status      TEXT NOT NULL,
	tier        TEXT,
	score       REAL NOT NULL DEFAULT 0,
	account     TEXT,
	data        TEXT NOT NULL,
	resolved_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (run_id, lead_id)
);

CREATE TABLE IF NOT EXISTS tier_attempts (
	run_id     TEXT NOT NULL,
	lead_id    TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	tier       TEXT NOT NULL,
	status     TEXT NOT NULL,
	reason     TEXT,
	candidates INTEGER NOT NULL DEFAULT 0,
	best_score REAL NOT NULL DEFAULT 0,
	retries    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS tax_statements (
	account    TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	fetched_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS followups (
	id            TEXT PRIMARY KEY,
	run_id        TEXT NOT NULL,
	lead_id       TEXT NOT NULL,
	lead          TEXT NOT NULL,
	status        TEXT NOT NULL,
	kind          TEXT NOT NULL,
	reason        TEXT NOT NULL DEFAULT '',
	candidates    TEXT,
	retry_count   INTEGER NOT NULL DEFAULT 0,
	max_retries   INTEGER NOT NULL DEFAULT 3,
	next_retry_at DATETIME,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	last_seen_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_matches_status ON matches(status);
CREATE INDEX IF NOT EXISTS idx_tier_attempts_run ON tier_attempts(run_id, lead_id);
CREATE INDEX IF NOT EXISTS idx_followups_kind ON followups(kind);
CREATE INDEX IF NOT EXISTS idx_followups_next_retry ON followups(next_retry_at);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRun inserts a queued run for the given lead source.
func (s *SQLiteStore) CreateRun(ctx context.Context, source string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, source, status, stats, created_at, updated_at) VALUES (?, ?, ?, '{}', ?, ?)`,
		id, source, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

// CompleteRun records final stats and marks the run complete, or failed
// when runErr is set.
func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, stats model.RunStats, runErr error) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stats")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET stats = ?, status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(statsJSON), string(completedStatus(runErr)), errText(runErr), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

// GetRun returns one run.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, status, stats, error, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("run", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

// ListRuns returns runs newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error) {
	query := `SELECT id, source, status, stats, error, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limitOrDefault(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// SaveMatches upserts resolved matches for a run and replaces their tier
// attempt log, all in one transaction.
func (s *SQLiteStore) SaveMatches(ctx context.Context, runID string, matches []*model.ResolvedMatch) error {
	if len(matches) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save matches")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, m := range matches {
		data, err := json.Marshal(m)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal match %s", m.Lead.ID())
		}
		leadID := m.Lead.ID()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO matches (run_id, lead_id, case_number, status, tier, score, account, data, resolved_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (run_id, lead_id) DO UPDATE SET
			   status = excluded.status, tier = excluded.tier, score = excluded.score,
			   account = excluded.account, data = excluded.data, resolved_at = excluded.resolved_at`,
			runID, leadID, m.Lead.CaseNumber, string(m.Status), m.Tier, m.Score, m.Account(), string(data), m.ResolvedAt.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert match %s", leadID)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM tier_attempts WHERE run_id = ? AND lead_id = ?`, runID, leadID); err != nil {
			return eris.Wrapf(err, "sqlite: clear attempts %s", leadID)
		}
		for _, row := range attemptRows(runID, m) {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO tier_attempts (run_id, lead_id, seq, tier, status, reason, candidates, best_score, retries)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, row...); err != nil {
				return eris.Wrapf(err, "sqlite: insert attempt %s", leadID)
			}
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save matches")
}

// ListMatches returns every resolved match of a run ordered by lead.
func (s *SQLiteStore) ListMatches(ctx context.Context, runID string) ([]model.ResolvedMatch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM matches WHERE run_id = ? ORDER BY case_number, lead_id`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list matches")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ResolvedMatch
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan match")
		}
		var m model.ResolvedMatch
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal match")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list matches iterate")
}

// TierStats counts a run's attempts by tier and status.
func (s *SQLiteStore) TierStats(ctx context.Context, runID string) ([]TierStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tier, status, COUNT(*) FROM tier_attempts WHERE run_id = ?
		 GROUP BY tier, status ORDER BY tier, status`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: tier stats")
	}
	defer rows.Close() //nolint:errcheck

	var out []TierStat
	for rows.Next() {
		var ts TierStat
		if err := rows.Scan(&ts.Tier, &ts.Status, &ts.Count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tier stat")
		}
		out = append(out, ts)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: tier stats iterate")
}

// SaveTaxStatement upserts the statement for its account.
func (s *SQLiteStore) SaveTaxStatement(ctx context.Context, st *model.TaxStatement) error {
	data, err := json.Marshal(st)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal tax statement")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tax_statements (account, data, fetched_at) VALUES (?, ?, ?)
		 ON CONFLICT (account) DO UPDATE SET data = excluded.data, fetched_at = excluded.fetched_at`,
		st.Account, string(data), st.FetchedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save tax statement %s", st.Account)
}

// GetTaxStatement returns the stored statement for account, or nil when
// there is none.
func (s *SQLiteStore) GetTaxStatement(ctx context.Context, account string) (*model.TaxStatement, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM tax_statements WHERE account = ?`, account).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get tax statement")
	}
	var st model.TaxStatement
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal tax statement")
	}
	return &st, nil
}

// EnqueueFollowUp inserts f, or updates its retry state when the id exists.
func (s *SQLiteStore) EnqueueFollowUp(ctx context.Context, f resilience.FollowUp) error {
	leadJSON, candJSON, err := marshalFollowUp(f)
	if err != nil {
		return err
	}
	if f.ID == "" {
		f.ID = uuid.New().String()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO followups
		 (id, run_id, lead_id, lead, status, kind, reason, candidates, retry_count, max_retries, next_retry_at, created_at, last_seen_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   status = excluded.status, kind = excluded.kind, reason = excluded.reason,
		   candidates = excluded.candidates, retry_count = excluded.retry_count,
		   next_retry_at = excluded.next_retry_at, last_seen_at = excluded.last_seen_at`,
		f.ID, f.RunID, f.Lead.ID(), string(leadJSON), string(f.Status), string(f.Kind), f.Reason, string(candJSON),
		f.RetryCount, f.MaxRetries, nullTime(f.NextRetryAt), f.CreatedAt.UTC(), f.LastSeenAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: enqueue followup")
}

const followUpColumns = `id, run_id, lead, status, kind, reason, candidates, retry_count, max_retries, next_retry_at, created_at, last_seen_at`

// ListFollowUps returns queued entries, newest first.
func (s *SQLiteStore) ListFollowUps(ctx context.Context, filter resilience.FollowUpFilter) ([]resilience.FollowUp, error) {
	query := `SELECT ` + followUpColumns + ` FROM followups WHERE 1=1`
	var args []any
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limitOrDefault(filter.Limit))
	return s.queryFollowUps(ctx, query, args...)
}

// DueFollowUps returns transient entries whose retry time has passed and
// whose retry budget is not spent. Retry times are compared in Go since
// SQLite stores them as text.
func (s *SQLiteStore) DueFollowUps(ctx context.Context, now time.Time, limit int) ([]resilience.FollowUp, error) {
	pending, err := s.queryFollowUps(ctx,
		`SELECT `+followUpColumns+` FROM followups
		 WHERE kind = ? AND retry_count < max_retries`,
		string(resilience.FollowUpTransient),
	)
	if err != nil {
		return nil, err
	}

	var due []resilience.FollowUp
	for _, f := range pending {
		if !f.NextRetryAt.After(now) {
			due = append(due, f)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRetryAt.Before(due[j].NextRetryAt) })
	if n := limitOrDefault(limit); len(due) > n {
		due = due[:n]
	}
	return due, nil
}

func (s *SQLiteStore) queryFollowUps(ctx context.Context, query string, args ...any) ([]resilience.FollowUp, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query followups")
	}
	defer rows.Close() //nolint:errcheck

	var out []resilience.FollowUp
	for rows.Next() {
		var (
			f         resilience.FollowUp
			leadJSON  string
			candJSON  sql.NullString
			nextRetry sql.NullTime
		)
		if err := rows.Scan(&f.ID, &f.RunID, &leadJSON, &f.Status, &f.Kind, &f.Reason, &candJSON,
			&f.RetryCount, &f.MaxRetries, &nextRetry, &f.CreatedAt, &f.LastSeenAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan followup")
		}
		if nextRetry.Valid {
			f.NextRetryAt = nextRetry.Time
		}
		if err := unmarshalFollowUp(&f, []byte(leadJSON), []byte(candJSON.String)); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: followups iterate")
}

// RemoveFollowUp deletes an entry.
func (s *SQLiteStore) RemoveFollowUp(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM followups WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: remove followup")
}

// CountFollowUps returns the queue length.
func (s *SQLiteStore) CountFollowUps(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM followups`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count followups")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return notFound(entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var (
		r         model.Run
		statsJSON string
		runErr    sql.NullString
	)
	err := row.Scan(&r.ID, &r.Source, &r.Status, &statsJSON, &runErr, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Error = runErr.String
	if err := json.Unmarshal([]byte(statsJSON), &r.Stats); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal stats")
	}
	return &r, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
