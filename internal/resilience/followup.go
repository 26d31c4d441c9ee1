package resilience

import (
	"time"

	"github.com/sells-group/probate-link/internal/model"
)

// FollowUpKind says why a lead was queued for another look.
type FollowUpKind string

const (
	// FollowUpTransient is a lead that failed on a provider error and can
	// be re-resolved automatically.
	FollowUpTransient FollowUpKind = "transient"
	// FollowUpPagination is a lead whose queries overflowed one result page.
	FollowUpPagination FollowUpKind = "pagination"
	// FollowUpReview is a lead a human should confirm.
	FollowUpReview FollowUpKind = "review"
)

// FollowUp is a queued lead awaiting a retry or a human decision.
type FollowUp struct {
	ID          string                   `json:"id"`
	RunID       string                   `json:"run_id"`
	Lead        model.Lead               `json:"lead"`
	Status      model.Status             `json:"status"`
	Kind        FollowUpKind             `json:"kind"`
	Reason      string                   `json:"reason"`
	Candidates  []model.CandidateSummary `json:"candidates,omitempty"`
	RetryCount  int                      `json:"retry_count"`
	MaxRetries  int                      `json:"max_retries"`
	NextRetryAt time.Time                `json:"next_retry_at"`
	CreatedAt   time.Time                `json:"created_at"`
	LastSeenAt  time.Time                `json:"last_seen_at"`
}

// FollowUpFilter selects entries from the follow-up queue.
type FollowUpFilter struct {
	Kind  FollowUpKind `json:"kind,omitempty"`
	RunID string       `json:"run_id,omitempty"`
	Limit int          `json:"limit,omitempty"`
}

// CanRetry reports whether an automatic retry is still allowed.
func (f *FollowUp) CanRetry() bool {
	return f.Kind == FollowUpTransient && f.RetryCount < f.MaxRetries
}

// KindFor picks the queue kind for a resolved match, or "" when the match
// needs no follow-up.
func KindFor(m *model.ResolvedMatch) FollowUpKind {
	switch {
	case m.Status == model.StatusProviderError:
		return FollowUpTransient
	case m.Status == model.StatusPaginationTooLarge,
		len(m.PartialCandidates) > 0 && !m.Status.Matched():
		return FollowUpPagination
	case m.NeedsFollowUp():
		return FollowUpReview
	default:
		return ""
	}
}

// NewFollowUp builds a queue entry for m. Transient entries are scheduled
// with backoff from cfg; other kinds wait for a human.
func NewFollowUp(id, runID string, m *model.ResolvedMatch, maxRetries int, cfg RetryConfig, now time.Time) *FollowUp {
	f := &FollowUp{
		ID:         id,
		RunID:      runID,
		Lead:       m.Lead,
		Status:     m.Status,
		Kind:       KindFor(m),
		Reason:     m.Reason,
		Candidates: m.PartialCandidates,
		MaxRetries: maxRetries,
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if f.Kind == FollowUpTransient {
		f.NextRetryAt = now.Add(computeBackoff(0, applyDefaults(cfg)))
	}
	return f
}

// Bump records another failed retry and schedules the next one.
func (f *FollowUp) Bump(reason string, cfg RetryConfig, now time.Time) {
	f.RetryCount++
	f.Reason = reason
	f.LastSeenAt = now
	f.NextRetryAt = now.Add(computeBackoff(f.RetryCount, applyDefaults(cfg)))
}
