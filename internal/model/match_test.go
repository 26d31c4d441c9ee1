package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr(f float64) *float64 { return &f }

func TestStatus_Matched(t *testing.T) {
	assert.True(t, StatusSuccess.Matched())
	assert.True(t, StatusSuccessNeedsNameConfirm.Matched())
	assert.False(t, StatusNoHits.Matched())
	assert.False(t, StatusPaginationTooLarge.Matched())
}

func TestResolvedMatch_Account(t *testing.T) {
	m := &ResolvedMatch{}
	assert.Empty(t, m.Account())

	m.Summary = &CandidateSummary{Account: "0123"}
	assert.Equal(t, "0123", m.Account())

	m.Detail = &CandidateDetail{Account: "0456"}
	assert.Equal(t, "0456", m.Account())
}

func TestResolvedMatch_NeedsFollowUp(t *testing.T) {
	assert.True(t, (&ResolvedMatch{Status: StatusPaginationTooLarge}).NeedsFollowUp())
	assert.True(t, (&ResolvedMatch{Status: StatusSuccessNeedsNameConfirm}).NeedsFollowUp())
	assert.False(t, (&ResolvedMatch{Status: StatusSuccess}).NeedsFollowUp())
	assert.True(t, (&ResolvedMatch{
		Status: StatusSuccess,
		Owner:  &OwnerMatch{NeedsReview: true},
	}).NeedsFollowUp())
	assert.True(t, (&ResolvedMatch{
		Status:            StatusNoHits,
		PartialCandidates: []CandidateSummary{{Account: "1"}},
	}).NeedsFollowUp())
	assert.False(t, (&ResolvedMatch{
		Status:            StatusSuccess,
		PartialCandidates: []CandidateSummary{{Account: "1"}},
	}).NeedsFollowUp())
}

func TestRunStats_Add(t *testing.T) {
	var s RunStats
	s.Add(&ResolvedMatch{Status: StatusSuccess})
	s.Add(&ResolvedMatch{Status: StatusPaginationTooLarge})
	s.Add(&ResolvedMatch{Status: StatusProviderError})

	assert.Equal(t, RunStats{Leads: 3, Matched: 1, Unmatched: 1, Review: 1, Failed: 1}, s)
}

func TestLead_Names(t *testing.T) {
	l := Lead{CaseNumber: "500123", FileNumber: "RP-2024-1", DecedentFirst: "JANE", DecedentLast: "DOE"}
	assert.Equal(t, "JANE DOE", l.DecedentName())
	assert.Equal(t, "", l.PartyName())
	assert.Equal(t, "500123/RP-2024-1", l.ID())
	assert.Equal(t, "500123", Lead{CaseNumber: "500123"}.ID())
}

func TestConfidence_IsHigh(t *testing.T) {
	assert.True(t, Confidence(" high ").IsHigh())
	assert.True(t, ConfidenceHigh.IsHigh())
	assert.False(t, ConfidenceMedium.IsHigh())
	assert.False(t, Confidence("").IsHigh())
}

func TestCandidateDetail_Aggregates(t *testing.T) {
	d := &CandidateDetail{
		LandLines: []LandLine{
			{Units: ptr(5000), UnitType: "SF", Value: ptr(40000)},
			{Units: ptr(1), UnitType: "AC", Value: ptr(10000)},
		},
		BuildingAreas: []BuildingArea{
			{Type: "Base Area Pri", SquareFeet: ptr(1500)},
			{Type: "Attached Garage", SquareFeet: ptr(400)},
			{Type: "Open Porch"},
		},
	}
	assert.InDelta(t, 5000, d.LotSquareFeet(), 0.001)
	assert.InDelta(t, 50000, d.LandValueTotal(), 0.001)
	assert.InDelta(t, 1500, d.AreaByType("base"), 0.001)
	assert.InDelta(t, 1900, d.AreaByType("BASE", "GARAGE"), 0.001)
}

func TestLegalDescription_IsEmpty(t *testing.T) {
	assert.True(t, LegalDescription{}.IsEmpty())
	assert.False(t, LegalDescription{Lot: "5"}.IsEmpty())
}
