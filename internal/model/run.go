package model

import "time"

// RunStatus represents the current state of a resolution run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusResolving RunStatus = "resolving"
	RunStatusEnriching RunStatus = "enriching"
	RunStatusComplete  RunStatus = "complete"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one batch of leads pushed through the cascade.
type Run struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Status    RunStatus `json:"status"`
	Stats     RunStats  `json:"stats"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunStats counts lead outcomes within a run.
type RunStats struct {
	Leads     int `json:"leads"`
	Matched   int `json:"matched"`
	Unmatched int `json:"unmatched"`
	Review    int `json:"review"`
	Failed    int `json:"failed"`
}

// Add folds one resolved lead into the stats.
func (s *RunStats) Add(m *ResolvedMatch) {
	s.Leads++
	switch {
	case m.Status.Matched():
		s.Matched++
	case m.Status == StatusProviderError:
		s.Failed++
	default:
		s.Unmatched++
	}
	if m.NeedsFollowUp() {
		s.Review++
	}
}

// RunFilter narrows run listings.
type RunFilter struct {
	Status RunStatus `json:"status,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}
