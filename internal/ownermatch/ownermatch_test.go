package ownermatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/probate-link/internal/model"
)

func matched(lead model.Lead, owner string) *model.ResolvedMatch {
	return &model.ResolvedMatch{
		Lead:   lead,
		Status: model.StatusSuccess,
		Detail: &model.CandidateDetail{Account: "0012340000001", Owner: owner},
	}
}

func TestEvaluate_DecedentAsParty(t *testing.T) {
	lead := model.Lead{DecedentFirst: "John", DecedentLast: "Doe", PartyFirst: "JOHN", PartyLast: "DOE"}

	om := Evaluate(matched(lead, "DOE JOHN"))
	require.NotNil(t, om)
	assert.Equal(t, model.MatchDecedentAsParty, om.Type)
	assert.Equal(t, "DOE", om.OwnerLastGuess)
	assert.InDelta(t, 100.0, om.DecedentScore, 0.001)
	assert.InDelta(t, 100.0, om.PartyScore, 0.001)
	assert.True(t, om.IsOwnerGrantor)
	assert.False(t, om.IsOwnerGrantee)
	assert.True(t, om.OwnerLooksHuman)
	assert.False(t, om.NeedsReview)
}

func TestEvaluate_NoPartyUsesDecedent(t *testing.T) {
	lead := model.Lead{DecedentFirst: "JOHN", DecedentLast: "DOE"}

	om := Evaluate(matched(lead, "DOE JOHN"))
	require.NotNil(t, om)
	assert.Equal(t, model.MatchDecedentAsParty, om.Type)
	assert.True(t, om.DecedentIsParty)
	assert.False(t, om.NeedsReview)
}

func TestEvaluate_PartyDiffered(t *testing.T) {
	lead := model.Lead{DecedentFirst: "JOHN", DecedentLast: "DOE", PartyFirst: "MARY", PartyLast: "JONES"}

	om := Evaluate(matched(lead, "DOE JOHN"))
	require.NotNil(t, om)
	assert.Equal(t, model.MatchDecedentPartyDiffer, om.Type)
	assert.True(t, om.IsOwnerGrantor)
	assert.True(t, om.NeedsReview)
	assert.Contains(t, om.ReviewReason, "recorded party differs")
}

func TestEvaluate_PartyDeviated(t *testing.T) {
	lead := model.Lead{DecedentFirst: "JOHN", DecedentLast: "DOE", PartyFirst: "MARY", PartyLast: "JONES"}

	om := Evaluate(matched(lead, "JONES MARY"))
	require.NotNil(t, om)
	assert.Equal(t, model.MatchPartyDeviated, om.Type)
	assert.Less(t, om.DecedentScore, float64(MatchThreshold))
	assert.True(t, om.IsOwnerGrantor)
	assert.True(t, om.NeedsReview)
}

func TestEvaluate_Grantee(t *testing.T) {
	lead := model.Lead{
		DecedentFirst: "JOHN",
		DecedentLast:  "DOE",
		Grantees:      []string{"PETER PAN", "Alice Smith"},
	}

	om := Evaluate(matched(lead, "SMITH ALICE"))
	require.NotNil(t, om)
	assert.Equal(t, model.MatchGrantee, om.Type)
	assert.Equal(t, "ALICE SMITH", om.BestGrantee)
	assert.InDelta(t, 100.0, om.GranteeScore, 0.001)
	assert.True(t, om.IsOwnerGrantee)
	assert.False(t, om.IsOwnerGrantor)
	assert.True(t, om.NeedsReview)
	assert.Contains(t, om.ReviewReason, "grantee")
}

func TestEvaluate_UnrelatedEntity(t *testing.T) {
	lead := model.Lead{DecedentFirst: "JOHN", DecedentLast: "DOE"}

	om := Evaluate(matched(lead, "ACME HOLDINGS LLC"))
	require.NotNil(t, om)
	assert.Equal(t, model.MatchUnrelatedOwner, om.Type)
	assert.Equal(t, "HOLDINGS", om.OwnerLastGuess)
	assert.False(t, om.OwnerLooksHuman)
	assert.True(t, om.NeedsReview)
}

func TestEvaluate_OwnerMissing(t *testing.T) {
	m := matched(model.Lead{DecedentLast: "DOE"}, "")

	om := Evaluate(m)
	require.NotNil(t, om)
	assert.Equal(t, model.MatchOwnerMissing, om.Type)
	assert.True(t, om.NeedsReview)
}

func TestEvaluate_SummaryOwnerFallback(t *testing.T) {
	m := &model.ResolvedMatch{
		Lead:    model.Lead{DecedentFirst: "JOHN", DecedentLast: "DOE"},
		Status:  model.StatusSuccess,
		Summary: &model.CandidateSummary{Account: "1", Owner: "DOE JOHN"},
	}
	om := Evaluate(m)
	require.NotNil(t, om)
	assert.Equal(t, model.MatchDecedentAsParty, om.Type)
}

func TestEvaluate_ReviewFromStatusAndDetailError(t *testing.T) {
	lead := model.Lead{DecedentFirst: "JOHN", DecedentLast: "DOE"}

	m := matched(lead, "DOE JOHN")
	m.Status = model.StatusSuccessNeedsNameConfirm
	om := Evaluate(m)
	require.NotNil(t, om)
	assert.True(t, om.NeedsReview)
	assert.Equal(t, "search status SUCCESS_T0_NEEDS_NAME_CONFIRM", om.ReviewReason)

	m = matched(lead, "DOE JOHN")
	m.DetailError = "legal description missing"
	om = Evaluate(m)
	require.NotNil(t, om)
	assert.True(t, om.NeedsReview)
	assert.Contains(t, om.ReviewReason, "legal description missing")
}

func TestEvaluate_LosingCandidateParseErrorNotReviewed(t *testing.T) {
	lead := model.Lead{DecedentFirst: "JOHN", DecedentLast: "DOE"}

	m := matched(lead, "DOE JOHN")
	m.ParseErrors = []string{"linkage: fetch detail 0022220000002: timeout"}
	m.Owner = Evaluate(m)
	require.NotNil(t, m.Owner)
	assert.False(t, m.Owner.NeedsReview)
	assert.Empty(t, m.Owner.ReviewReason)
	assert.False(t, m.NeedsFollowUp())
}

func TestEvaluate_Unmatched(t *testing.T) {
	assert.Nil(t, Evaluate(nil))
	assert.Nil(t, Evaluate(&model.ResolvedMatch{Status: model.StatusNoHits}))
}

func TestOwnerLastGuess(t *testing.T) {
	tests := []struct {
		owner, want string
	}{
		{"DOE JOHN", "DOE"},
		{"garcia maria elena", "GARCIA"},
		{"ACME HOLDINGS LLC", "HOLDINGS"},
		{"SMITH FAMILY TRUST", "FAMILY"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OwnerLastGuess(tt.owner), tt.owner)
	}
}
