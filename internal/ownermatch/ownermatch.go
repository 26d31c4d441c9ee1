// Package ownermatch types the relationship between the assessor owner of
// a resolved property and the probate parties, and picks an outreach
// contact from it.
package ownermatch

import (
	"fmt"
	"math"
	"strings"

	"github.com/sells-group/probate-link/internal/fuzzy"
	"github.com/sells-group/probate-link/internal/model"
)

// MatchThreshold is the combined score at which two names are treated as
// the same person.
const MatchThreshold = 80

// Weights of the last-name and full-name components of a name score.
// Grantee scores lean on the surname because grantee names are often
// recorded without middle names or in a different order.
const (
	personLastWeight  = 0.3
	personFullWeight  = 0.7
	granteeLastWeight = 0.6
	granteeFullWeight = 0.4
)

// companyMarkers are tokens that mark an assessor owner as an entity, whose
// surname cannot be read from the first token.
var companyMarkers = map[string]bool{
	"LLC": true, "INC": true, "LP": true, "LTD": true, "CO": true,
	"BANK": true, "TRUST": true, "ESTATE": true, "EST": true,
}

// benignStatuses are unmatched outcomes that do not need a human.
var benignStatuses = map[model.Status]bool{
	model.StatusSuccess:               true,
	model.StatusInsufficientData:      true,
	model.StatusNoHits:                true,
	model.StatusCommonSurnameTooBroad: true,
}

// Evaluate scores the matched owner against the lead's decedent, recorded
// party, and grantees, and sets the review flag. It returns nil when m did
// not match a property.
func Evaluate(m *model.ResolvedMatch) *model.OwnerMatch {
	if m == nil || !m.Status.Matched() {
		return nil
	}

	owner := ownerName(m)
	om := &model.OwnerMatch{Type: model.MatchOwnerMissing}
	if owner != "" {
		score(om, owner, m.Lead)
	}
	om.OwnerLooksHuman = IsHumanName(owner)
	om.NeedsReview, om.ReviewReason = review(m, om, owner)
	return om
}

func ownerName(m *model.ResolvedMatch) string {
	if m.Detail != nil && m.Detail.Owner != "" {
		return fuzzy.Normalize(m.Detail.Owner)
	}
	if m.Summary != nil {
		return fuzzy.Normalize(m.Summary.Owner)
	}
	return ""
}

func score(om *model.OwnerMatch, owner string, lead model.Lead) {
	om.OwnerLastGuess = OwnerLastGuess(owner)
	decedent := fuzzy.Normalize(lead.DecedentName())
	party := fuzzy.Normalize(lead.PartyName())

	if decedent != "" {
		om.DecedentScore = nameScore(decedent, owner, om.OwnerLastGuess, personLastWeight, personFullWeight)
	}
	if party != "" {
		om.PartyScore = nameScore(party, owner, om.OwnerLastGuess, personLastWeight, personFullWeight)
	}
	if decedent != "" && party != "" {
		om.DecedentVsParty = math.Round(fuzzy.TokenSetRatio(decedent, party))
	}
	for _, g := range lead.Grantees {
		g = fuzzy.Normalize(g)
		if g == "" {
			continue
		}
		if s := nameScore(g, owner, om.OwnerLastGuess, granteeLastWeight, granteeFullWeight); s > om.GranteeScore {
			om.GranteeScore = s
			om.BestGrantee = g
		}
	}

	om.DecedentIsOwner = om.DecedentScore >= MatchThreshold
	om.PartyIsOwner = om.PartyScore >= MatchThreshold
	om.GranteeIsOwner = om.GranteeScore >= MatchThreshold
	om.DecedentIsParty = om.DecedentVsParty >= MatchThreshold

	// With no recorded party the decedent stands in for it.
	if party == "" && decedent != "" {
		om.PartyIsOwner = om.DecedentIsOwner
		om.DecedentIsParty = true
	}

	switch {
	case om.DecedentIsOwner && om.DecedentIsParty:
		om.Type = model.MatchDecedentAsParty
	case om.DecedentIsOwner:
		om.Type = model.MatchDecedentPartyDiffer
	case om.PartyIsOwner:
		om.Type = model.MatchPartyDeviated
	case om.GranteeIsOwner:
		om.Type = model.MatchGrantee
	default:
		om.Type = model.MatchUnrelatedOwner
	}
	om.IsOwnerGrantor = om.Type == model.MatchDecedentAsParty ||
		om.Type == model.MatchDecedentPartyDiffer ||
		om.Type == model.MatchPartyDeviated
	om.IsOwnerGrantee = om.Type == model.MatchGrantee
}

// nameScore blends a surname comparison with a full-name comparison,
// rounded to a whole number.
func nameScore(person, owner, ownerLast string, lastWeight, fullWeight float64) float64 {
	var last float64
	if personLast := fuzzy.PotentialLastName(person); personLast != "" && ownerLast != "" {
		last = fuzzy.TokenSetRatio(personLast, ownerLast)
	}
	full := fuzzy.TokenSetRatio(person, owner)
	return math.Round(last*lastWeight + full*fullWeight)
}

// OwnerLastGuess guesses the surname of an assessor owner. Individuals are
// listed surname first; entities fall back to the last significant token.
func OwnerLastGuess(owner string) string {
	parts := strings.Fields(strings.ToUpper(owner))
	if len(parts) == 0 {
		return ""
	}
	for _, p := range parts {
		if companyMarkers[p] {
			return fuzzy.PotentialLastName(owner)
		}
	}
	return parts[0]
}

func review(m *model.ResolvedMatch, om *model.OwnerMatch, owner string) (bool, string) {
	switch {
	case !benignStatuses[m.Status]:
		return true, fmt.Sprintf("search status %s", m.Status)
	case m.DetailError != "":
		return true, "detail page parse error: " + m.DetailError
	}

	switch om.Type {
	case model.MatchPartyDeviated:
		return true, "owner matches the recorded party, which differs from the decedent"
	case model.MatchDecedentPartyDiffer:
		return true, "owner matches the decedent, but the recorded party differs"
	case model.MatchUnrelatedOwner:
		return true, "owner appears to be an unrelated third party"
	case model.MatchGrantee:
		decedent := fuzzy.Normalize(m.Lead.DecedentName())
		if decedent == "" || fuzzy.TokenSetRatio(decedent, owner) < MatchThreshold {
			return true, "owner matches a grantee who is not the decedent"
		}
	case model.MatchOwnerMissing:
		return true, "owner name missing on a matched record"
	}
	return false, ""
}
