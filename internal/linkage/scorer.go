package linkage

import (
	"math"
	"strings"

	"github.com/sells-group/probate-link/internal/config"
	"github.com/sells-group/probate-link/internal/fuzzy"
	"github.com/sells-group/probate-link/internal/model"
)

// Points awarded for each legal field found in a fetched legal description.
// maxLegalRaw is the sum of all of them including full subdivision credit.
const (
	tractPoints       = 40
	blockPoints       = 30
	lotPoints         = 20
	sectionPoints     = 10
	subdivisionPoints = 30
	maxLegalRaw       = tractPoints + blockPoints + lotPoints + sectionPoints + subdivisionPoints
)

// Scorer computes candidate match quality on a 0..100 scale.
type Scorer struct {
	th config.ThresholdsConfig
}

// NewScorer creates a scorer using th for every weight and threshold.
func NewScorer(th config.ThresholdsConfig) *Scorer {
	return &Scorer{th: th}
}

// ScoreSummary scores a candidate from its result-listing fields only: the
// tier's owner target against the listed owner, the lead's subdivision
// against the listed address, and for bonus tiers a partial match of the
// full legal string.
func (s *Scorer) ScoreSummary(c model.CandidateSummary, lead model.Lead, tier TierSpec) float64 {
	vals := leadValues(lead)
	owner := fuzzy.Normalize(c.Owner)
	address := fuzzy.Normalize(c.Address)

	var score float64
	if target := summaryOwnerTarget(tier, vals); target != "" && owner != "" {
		score += fuzzy.TokenSetRatio(target, owner) * s.th.SummaryOwnerWeight
	}
	if sub := vals[FieldSubdivision]; sub != "" && address != "" {
		score += fuzzy.TokenSetRatio(sub, address) * s.th.SummaryLegalWeight
	}
	if tier.SummaryBonus && address != "" {
		if full := fullLegal(vals); full != "" {
			if partial := fuzzy.PartialRatio(full, address); partial > s.th.PartialBonusThreshold {
				score += partial * s.th.PartialBonusWeight
			}
		}
	}
	return clampScore(score)
}

// ScoreDetail scores a fully fetched candidate by blending a legal
// component and an owner component.
func (s *Scorer) ScoreDetail(d *model.CandidateDetail, lead model.Lead, tier TierSpec) float64 {
	if d == nil {
		return 0
	}
	vals := leadValues(lead)
	legal := s.legalScore(fuzzy.Normalize(d.LegalDescription), vals, tier)
	owner := s.ownerScore(fuzzy.Normalize(d.Owner), detailOwnerTarget(tier, lead, vals), tier)
	return s.Blend(legal, owner)
}

// Blend combines a legal and an owner score with the detail weights.
func (s *Scorer) Blend(legal, owner float64) float64 {
	return clampScore(legal*s.th.DetailLegalWeight + owner*s.th.DetailOwnerWeight)
}

// NormalizeLegal rescales a raw field-by-field legal score to 0..100.
func NormalizeLegal(raw float64) float64 {
	if raw <= 0 {
		return 0
	}
	return math.Min(100, raw/maxLegalRaw*100)
}

func (s *Scorer) legalScore(text string, vals map[Field]string, tier TierSpec) float64 {
	if text == "" {
		return 0
	}
	if tier.LegalScoring == LegalDirect {
		full := fullLegal(vals)
		if full == "" {
			return 0
		}
		return fuzzy.Ratio(full, text)
	}

	var raw float64
	if v := vals[FieldTract]; v != "" && strings.Contains(text, "TR "+v) {
		raw += tractPoints
	}
	if v := vals[FieldBlock]; v != "" && strings.Contains(text, "BLK "+v) {
		raw += blockPoints
	}
	if v := vals[FieldLot]; v != "" && (strings.Contains(text, "LT "+v) || strings.Contains(text, "LOT "+v)) {
		raw += lotPoints
	}
	if v := vals[FieldSection]; v != "" && strings.Contains(text, "SEC "+v) {
		raw += sectionPoints
	}
	if v := vals[FieldSubdivision]; v != "" {
		raw += fuzzy.TokenSetRatio(v, text) / 100 * subdivisionPoints
	}
	return NormalizeLegal(raw)
}

func (s *Scorer) ownerScore(owner, target string, tier TierSpec) float64 {
	switch {
	case owner != "" && target != "":
		score := fuzzy.TokenSetRatio(target, owner)
		if tier.OwnerPenalty && score < s.th.OwnerPenaltyBelow {
			score = math.Max(0, score-s.th.OwnerPenalty)
		}
		return score
	case target != "":
		return s.th.MissingOwnerScore
	case owner != "":
		return s.th.MissingTargetScore
	default:
		return s.th.MissingBothScore
	}
}

// summaryOwnerTarget is the last name the tier searched on, if any.
func summaryOwnerTarget(tier TierSpec, vals map[Field]string) string {
	switch tier.Owner {
	case OwnerGranteeLast:
		return vals[FieldGranteeLast]
	case OwnerDecedentLast:
		return vals[FieldDecedentLast]
	default:
		return ""
	}
}

// detailOwnerTarget is the full name the fetched owner is compared with:
// the searched person for owner tiers, otherwise the recorded party,
// falling back to the decedent.
func detailOwnerTarget(tier TierSpec, lead model.Lead, vals map[Field]string) string {
	switch tier.Owner {
	case OwnerGranteeLast:
		if len(lead.Grantees) > 0 {
			return cleanValue(lead.Grantees[0])
		}
		return ""
	case OwnerDecedentLast:
		return cleanValue(lead.DecedentName())
	}
	if cleanValue(lead.PartyLast) != "" {
		return cleanValue(lead.PartyName())
	}
	return cleanValue(lead.DecedentName())
}

// fullLegal rebuilds a comparable legal string from every legal field.
func fullLegal(vals map[Field]string) string {
	return buildLegal([]QueryPart{
		term("TR", FieldTract),
		term("BLK", FieldBlock),
		term("", FieldSubdivision),
		term("LOT", FieldLot),
		term("SEC", FieldSection),
	}, vals)
}

func clampScore(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
