package model

import "time"

// Status is the terminal resolution code of a lead.
type Status string

const (
	StatusSuccess                 Status = "SUCCESS"
	StatusSuccessNeedsNameConfirm Status = "SUCCESS_T0_NEEDS_NAME_CONFIRM"
	StatusInsufficientData        Status = "INSUFFICIENT_DATA"
	StatusCommonSurnameTooBroad   Status = "COMMON_SURNAME_TOO_BROAD"
	StatusSkippedBroadSearch      Status = "SKIPPED_DUE_TO_BROAD_SEARCH"
	StatusNoHits                  Status = "NO_HITS"
	StatusPaginationTooLarge      Status = "PAGINATION_TOO_LARGE"
	StatusMultipleHitsNoWinner    Status = "MULTIPLE_HITS_NO_WINNER"
	StatusProviderError           Status = "PROVIDER_ERROR"
	StatusAmbiguous               Status = "AMBIGUOUS_CLASSIFICATION"
	StatusDetailParseFailed       Status = "DETAIL_PARSE_FAILED"
	StatusNoAcceptableCandidate   Status = "NO_ACCEPTABLE_CANDIDATE"
)

// Matched reports whether s carries a winning candidate.
func (s Status) Matched() bool {
	return s == StatusSuccess || s == StatusSuccessNeedsNameConfirm
}

// TierAttempt records what happened on one tier of the cascade.
type TierAttempt struct {
	Tier       string  `json:"tier"`
	Status     Status  `json:"status"`
	Reason     string  `json:"reason,omitempty"`
	LegalQuery string  `json:"legal_query,omitempty"`
	OwnerQuery string  `json:"owner_query,omitempty"`
	Candidates int     `json:"candidates,omitempty"`
	BestScore  float64 `json:"best_score,omitempty"`
	Retries    int     `json:"retries,omitempty"`
}

// MatchType classifies how the assessor owner relates to the probate parties.
type MatchType string

const (
	MatchDecedentAsParty     MatchType = "MATCH_PROBATE_DECEDENT_AS_RP_PARTY"
	MatchDecedentPartyDiffer MatchType = "MATCH_PROBATE_DECEDENT_RP_PARTY_DIFFERED"
	MatchPartyDeviated       MatchType = "MATCH_RP_PARTY_PROBATE_DEVIATED"
	MatchGrantee             MatchType = "MATCH_RP_GRANTEE"
	MatchUnrelatedOwner      MatchType = "HCAD_OWNER_IS_UNRELATED_THIRD_PARTY"
	MatchOwnerMissing        MatchType = "HCAD_OWNER_NAME_MISSING"
)

// OwnerMatch holds the owner-relationship scores computed after a match.
type OwnerMatch struct {
	Type            MatchType `json:"type"`
	OwnerLastGuess  string    `json:"owner_last_guess,omitempty"`
	DecedentScore   float64   `json:"decedent_score"`
	PartyScore      float64   `json:"party_score"`
	GranteeScore    float64   `json:"grantee_score"`
	BestGrantee     string    `json:"best_grantee,omitempty"`
	DecedentVsParty float64   `json:"decedent_vs_party"`
	DecedentIsParty bool      `json:"decedent_is_party"`
	IsOwnerGrantor  bool      `json:"is_owner_grantor"`
	IsOwnerGrantee  bool      `json:"is_owner_grantee"`
	NeedsReview     bool      `json:"needs_review"`
	ReviewReason    string    `json:"review_reason,omitempty"`
	DecedentIsOwner bool      `json:"decedent_is_owner"`
	PartyIsOwner    bool      `json:"party_is_owner"`
	GranteeIsOwner  bool      `json:"grantee_is_owner"`
	OwnerLooksHuman bool      `json:"owner_looks_human"`
}

// ResolvedMatch is the terminal artifact of resolving one lead.
type ResolvedMatch struct {
	Lead              Lead               `json:"lead"`
	Status            Status             `json:"status"`
	Reason            string             `json:"reason"`
	Tier              string             `json:"tier,omitempty"`
	Score             float64            `json:"score"`
	Detail            *CandidateDetail   `json:"detail,omitempty"`
	Summary           *CandidateSummary  `json:"summary,omitempty"`
	Attempts          []TierAttempt      `json:"attempts"`
	PartialCandidates []CandidateSummary `json:"partial_candidates,omitempty"`
	ParseErrors       []string           `json:"parse_errors,omitempty"`
	DetailError       string             `json:"detail_error,omitempty"`
	Owner             *OwnerMatch        `json:"owner,omitempty"`
	ResolvedAt        time.Time          `json:"resolved_at"`
}

// Account returns the matched canonical id, or "" when unmatched.
func (m *ResolvedMatch) Account() string {
	if m.Detail != nil && m.Detail.Account != "" {
		return m.Detail.Account
	}
	if m.Summary != nil {
		return m.Summary.Account
	}
	return ""
}

// NeedsFollowUp reports whether a human should look at this lead.
func (m *ResolvedMatch) NeedsFollowUp() bool {
	switch {
	case m.Status == StatusPaginationTooLarge || m.Status == StatusSuccessNeedsNameConfirm:
		return true
	case len(m.PartialCandidates) > 0 && !m.Status.Matched():
		// An earlier tier overflowed a page; the partial listing is worth a look.
		return true
	}
	return m.Owner != nil && m.Owner.NeedsReview
}
