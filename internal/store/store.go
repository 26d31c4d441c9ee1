// Package store persists resolution runs, resolved matches, tax statements
// and the follow-up queue.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/probate-link/internal/model"
	"github.com/sells-group/probate-link/internal/resilience"
)

// ErrNotFound is returned when a run or other keyed entity does not exist.
var ErrNotFound = eris.New("not found")

func notFound(entity, id string) error {
	return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
}

// TierStat counts attempts that ended with one status on one tier.
type TierStat struct {
	Tier   string       `json:"tier"`
	Status model.Status `json:"status"`
	Count  int          `json:"count"`
}

// Store defines the persistence interface for the resolution pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, source string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, stats model.RunStats, runErr error) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error)

	// Matches
	SaveMatches(ctx context.Context, runID string, matches []*model.ResolvedMatch) error
	ListMatches(ctx context.Context, runID string) ([]model.ResolvedMatch, error)
	TierStats(ctx context.Context, runID string) ([]TierStat, error)

	// Tax statements
	SaveTaxStatement(ctx context.Context, st *model.TaxStatement) error
	GetTaxStatement(ctx context.Context, account string) (*model.TaxStatement, error)

	// Follow-up queue
	EnqueueFollowUp(ctx context.Context, f resilience.FollowUp) error
	ListFollowUps(ctx context.Context, filter resilience.FollowUpFilter) ([]resilience.FollowUp, error)
	DueFollowUps(ctx context.Context, now time.Time, limit int) ([]resilience.FollowUp, error)
	RemoveFollowUp(ctx context.Context, id string) error
	CountFollowUps(ctx context.Context) (int, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// defaultLimit caps listings that do not set a limit.
const defaultLimit = 100

func limitOrDefault(n int) int {
	if n <= 0 {
		return defaultLimit
	}
	return n
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func completedStatus(err error) model.RunStatus {
	if err != nil {
		return model.RunStatusFailed
	}
	return model.RunStatusComplete
}

// attemptColumns is the column order of attemptRows.
var attemptColumns = []string{"run_id", "lead_id", "seq", "tier", "status", "reason", "candidates", "best_score", "retries"}

// attemptRows flattens the tier attempts of m for the tier_attempts table.
func attemptRows(runID string, m *model.ResolvedMatch) [][]any {
	leadID := m.Lead.ID()
	rows := make([][]any, 0, len(m.Attempts))
	for i, a := range m.Attempts {
		rows = append(rows, []any{runID, leadID, i, a.Tier, string(a.Status), a.Reason, a.Candidates, a.BestScore, a.Retries})
	}
	return rows
}

func marshalFollowUp(f resilience.FollowUp) (leadJSON, candJSON []byte, err error) {
	leadJSON, err = json.Marshal(f.Lead)
	if err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal followup lead")
	}
	if len(f.Candidates) > 0 {
		candJSON, err = json.Marshal(f.Candidates)
		if err != nil {
			return nil, nil, eris.Wrap(err, "store: marshal followup candidates")
		}
	}
	return leadJSON, candJSON, nil
}

func unmarshalFollowUp(f *resilience.FollowUp, leadJSON, candJSON []byte) error {
	if err := json.Unmarshal(leadJSON, &f.Lead); err != nil {
		return eris.Wrap(err, "store: unmarshal followup lead")
	}
	if len(candJSON) > 0 {
		if err := json.Unmarshal(candJSON, &f.Candidates); err != nil {
			return eris.Wrap(err, "store: unmarshal followup candidates")
		}
	}
	return nil
}
