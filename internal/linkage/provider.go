// Package linkage resolves a probate lead to an assessor account by running
// an ordered cascade of search tiers against a SearchProvider, classifying
// each response, and scoring candidates in two phases.
package linkage

import (
	"context"

	"github.com/sells-group/probate-link/internal/model"
	"github.com/sells-group/probate-link/internal/records"
)

// Query is the pair of search fields submitted to the assessor index.
// Either side may be empty, but not both.
type Query struct {
	Legal string `json:"legal,omitempty"`
	Owner string `json:"owner,omitempty"`
}

// IsEmpty reports whether neither field is set.
func (q Query) IsEmpty() bool {
	return q.Legal == "" && q.Owner == ""
}

// RawResponse is what a provider returns for one executed query, before
// classification.
type RawResponse struct {
	// NoRecords is set when the portal shows its explicit "no records" notice.
	NoRecords bool `json:"no_records,omitempty"`
	// CountText is the record-count banner as displayed, if any.
	CountText string `json:"count_text,omitempty"`
	// Rows are the result listing rows of the first page.
	Rows []records.Row `json:"rows,omitempty"`
	// Detail is set when the search landed directly on a detail page.
	Detail *model.DetailRef `json:"detail,omitempty"`
}

// SearchProvider executes queries against an external property index.
// Implementations are not safe for concurrent use; the pipeline gives each
// worker its own provider.
type SearchProvider interface {
	// Execute submits q and returns the first page of results.
	Execute(ctx context.Context, q Query) (*RawResponse, error)
	// FetchDetail loads the detail page behind ref as flattened rows.
	FetchDetail(ctx context.Context, ref model.DetailRef) ([]records.Row, error)
	// ResetState returns the provider to a clean, query-ready state.
	ResetState(ctx context.Context) error
}
