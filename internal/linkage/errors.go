package linkage

import (
	"fmt"

	"github.com/sells-group/probate-link/internal/model"
)

// Kind is the failure taxonomy of a tier attempt.
type Kind string

const (
	KindInsufficientData        Kind = "insufficient_data"
	KindTooBroadQuery           Kind = "too_broad_query"
	KindProviderError           Kind = "provider_error"
	KindAmbiguousClassification Kind = "ambiguous_classification"
	KindDetailFetchFailure      Kind = "detail_fetch_failure"
	KindPaginationOverflow      Kind = "pagination_overflow"
	KindNoAcceptableCandidate   Kind = "no_acceptable_candidate"
)

// Status maps k to the resolution status it surfaces as.
func (k Kind) Status() model.Status {
	switch k {
	case KindInsufficientData:
		return model.StatusInsufficientData
	case KindTooBroadQuery:
		return model.StatusCommonSurnameTooBroad
	case KindAmbiguousClassification:
		return model.StatusAmbiguous
	case KindDetailFetchFailure:
		return model.StatusDetailParseFailed
	case KindPaginationOverflow:
		return model.StatusPaginationTooLarge
	case KindNoAcceptableCandidate:
		return model.StatusNoAcceptableCandidate
	default:
		return model.StatusProviderError
	}
}

// DetailFetchError records a failed detail fetch for one candidate. It
// degrades only that candidate.
type DetailFetchError struct {
	Ref model.DetailRef
	Err error
}

func (e *DetailFetchError) Error() string {
	return fmt.Sprintf("linkage: fetch detail %s: %v", refLabel(e.Ref), e.Err)
}

func (e *DetailFetchError) Unwrap() error { return e.Err }

func refLabel(ref model.DetailRef) string {
	if ref.Account != "" {
		return ref.Account
	}
	return ref.URL
}
