package ownermatch

import (
	"regexp"
	"strings"

	"github.com/sells-group/probate-link/internal/model"
)

// Contact rationales.
const (
	RationaleMatchedDecedent     = "MATCHED_HCAD_DECEDENT"
	RationaleGrantorFallback     = "FALLBACK_RP_GRANTOR"
	RationaleGrantorVsEntity     = "FALLBACK_RP_GRANTOR_VS_ENTITY"
	RationaleUnmatchedHumanOwner = "MANUAL_REVIEW_UNMATCHED_HUMAN"
	RationaleEntitySuppress      = "ENTITY_SUPPRESS"
)

var entityRE = regexp.MustCompile(`\b(LLC|INC|LP|LTD|CORP|CO|TRUST|BANK|ESTATE|EST|PROPERTIES|INVESTMENTS|FUND|GROUP|REALTY|HOLDINGS|ASSOCIATION|ASSN|VENTURES|LLP)\b`)

// IsHumanName reports whether name looks like a person rather than an
// entity such as a company, trust, or estate.
func IsHumanName(name string) bool {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return false
	}
	return !entityRE.MatchString(name)
}

// DetermineContact picks who to reach out to for a resolved lead. owner is
// the current owner name, usually from the tax statement or the assessor
// detail.
func DetermineContact(m *model.ResolvedMatch, owner string) model.Contact {
	var matchType model.MatchType
	if m.Owner != nil {
		matchType = m.Owner.Type
	}
	owner = strings.TrimSpace(owner)
	party := m.Lead.PartyName()
	ownerHuman := IsHumanName(owner)
	partyGrantor := strings.EqualFold(m.Lead.PartyType, "Grantor") && IsHumanName(party)

	switch {
	case ownerHuman && (matchType == model.MatchDecedentAsParty || matchType == model.MatchDecedentPartyDiffer):
		return model.Contact{Name: owner, Rationale: RationaleMatchedDecedent, Tier: model.ContactTierA}
	case ownerHuman && (matchType == model.MatchPartyDeviated || matchType == model.MatchGrantee) && partyGrantor:
		return model.Contact{Name: party, Rationale: RationaleGrantorFallback, Tier: model.ContactTierB}
	case !ownerHuman && partyGrantor:
		return model.Contact{Name: party, Rationale: RationaleGrantorVsEntity, Tier: model.ContactTierB}
	case ownerHuman:
		return model.Contact{Name: owner, Rationale: RationaleUnmatchedHumanOwner, Tier: model.ContactTierC}
	default:
		return model.Contact{Rationale: RationaleEntitySuppress, Tier: model.ContactTierDrop}
	}
}
