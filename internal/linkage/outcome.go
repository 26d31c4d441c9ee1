package linkage

import "github.com/sells-group/probate-link/internal/model"

// SearchOutcome is the classified result of one executed query. It is one
// of NoHits, SingleHit, MultipleHits, TooManyResults, or ProviderFault.
type SearchOutcome interface {
	outcome()
}

// NoHits means the index returned nothing for the query.
type NoHits struct{}

// SingleHit means the query identified exactly one record. Summary is nil
// when the portal jumped straight to the detail page.
type SingleHit struct {
	Ref     model.DetailRef
	Summary *model.CandidateSummary
}

// MultipleHits carries every candidate of a result page that fits on one page.
type MultipleHits struct {
	Candidates []model.CandidateSummary
}

// TooManyResults means the result count exceeds one page. Candidates holds
// the first page for partial visibility; it is never scored.
type TooManyResults struct {
	Total      int
	Candidates []model.CandidateSummary
}

// ProviderFault is any failure to obtain a classifiable response.
type ProviderFault struct {
	Kind   Kind
	Reason string
}

func (NoHits) outcome()         {}
func (SingleHit) outcome()      {}
func (MultipleHits) outcome()   {}
func (TooManyResults) outcome() {}
func (ProviderFault) outcome()  {}

// OutcomeName returns a short label for logging.
func OutcomeName(o SearchOutcome) string {
	switch o.(type) {
	case NoHits:
		return "no_hits"
	case SingleHit:
		return "single_hit"
	case MultipleHits:
		return "multiple_hits"
	case TooManyResults:
		return "too_many_results"
	case ProviderFault:
		return "provider_fault"
	default:
		return "unknown"
	}
}
