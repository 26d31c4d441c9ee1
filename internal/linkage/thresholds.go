package linkage

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/probate-link/internal/config"
)

// DefaultThresholds returns the scoring and acceptance thresholds the
// engine ships with.
func DefaultThresholds() config.ThresholdsConfig {
	return config.ThresholdsConfig{
		PageSize:              20,
		SummaryAcceptScore:    60,
		SummaryAcceptMargin:   20,
		DetailFetchLimit:      3,
		AutoAcceptScore:       90,
		MinScoreHigh:          70,
		MinScoreOther:         50,
		MinMarginHigh:         15,
		MinMarginOther:        10,
		PartialBonusThreshold: 70,
		PartialBonusWeight:    0.2,
		SummaryOwnerWeight:    0.5,
		SummaryLegalWeight:    0.5,
		DetailLegalWeight:     0.7,
		DetailOwnerWeight:     0.3,
		OwnerPenaltyBelow:     60,
		OwnerPenalty:          20,
		MissingOwnerScore:     20,
		MissingTargetScore:    30,
		MissingBothScore:      50,
		LegalQueryMax:         100,
		OwnerQueryMax:         26,
	}
}

// ValidateThresholds checks that every threshold is in range.
func ValidateThresholds(t config.ThresholdsConfig) error {
	var errs []string

	if t.PageSize < 1 {
		errs = append(errs, fmt.Sprintf("page_size must be >= 1, got %d", t.PageSize))
	}
	if t.DetailFetchLimit < 1 {
		errs = append(errs, fmt.Sprintf("detail_fetch_limit must be >= 1, got %d", t.DetailFetchLimit))
	}
	if t.LegalQueryMax < 1 || t.OwnerQueryMax < 1 {
		errs = append(errs, "legal_query_max and owner_query_max must be >= 1")
	}

	scores := map[string]float64{
		"summary_accept_score":    t.SummaryAcceptScore,
		"summary_accept_margin":   t.SummaryAcceptMargin,
		"auto_accept_score":       t.AutoAcceptScore,
		"min_score_high":          t.MinScoreHigh,
		"min_score_other":         t.MinScoreOther,
		"min_margin_high":         t.MinMarginHigh,
		"min_margin_other":        t.MinMarginOther,
		"partial_bonus_threshold": t.PartialBonusThreshold,
		"owner_penalty_below":     t.OwnerPenaltyBelow,
		"owner_penalty":           t.OwnerPenalty,
		"missing_owner_score":     t.MissingOwnerScore,
		"missing_target_score":    t.MissingTargetScore,
		"missing_both_score":      t.MissingBothScore,
	}
	for _, name := range sortedKeys(scores) {
		if v := scores[name]; v < 0 || v > 100 {
			errs = append(errs, fmt.Sprintf("%s must be between 0 and 100, got %.2f", name, v))
		}
	}

	weights := map[string]float64{
		"partial_bonus_weight": t.PartialBonusWeight,
		"summary_owner_weight": t.SummaryOwnerWeight,
		"summary_legal_weight": t.SummaryLegalWeight,
		"detail_legal_weight":  t.DetailLegalWeight,
		"detail_owner_weight":  t.DetailOwnerWeight,
	}
	for _, name := range sortedKeys(weights) {
		if v := weights[name]; v < 0 || v > 1 {
			errs = append(errs, fmt.Sprintf("%s must be between 0 and 1, got %.2f", name, v))
		}
	}
	if sum := t.DetailLegalWeight + t.DetailOwnerWeight; sum < 0.99 || sum > 1.01 {
		errs = append(errs, fmt.Sprintf("detail weights must sum to 1.0, got %.2f", sum))
	}

	if len(errs) > 0 {
		return eris.Errorf("linkage: thresholds validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
