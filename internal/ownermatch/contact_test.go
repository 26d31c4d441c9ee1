package ownermatch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/probate-link/internal/model"
)

func TestIsHumanName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"DOE JOHN", true},
		{"cole john", true},
		{"ACME LLC", false},
		{"DOE JOHN ESTATE", false},
		{"BAYOU REALTY GROUP", false},
		{"SMITH & CO", false},
		{"", false},
		{"   ", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsHumanName(tt.name), tt.name)
	}
}

func TestDetermineContact(t *testing.T) {
	grantor := model.Lead{PartyFirst: "MARY", PartyLast: "JONES", PartyType: "Grantor"}
	grantee := model.Lead{PartyFirst: "MARY", PartyLast: "JONES", PartyType: "Grantee"}

	withType := func(lead model.Lead, mt model.MatchType) *model.ResolvedMatch {
		return &model.ResolvedMatch{Lead: lead, Status: model.StatusSuccess, Owner: &model.OwnerMatch{Type: mt}}
	}

	tests := []struct {
		name  string
		m     *model.ResolvedMatch
		owner string
		want  model.Contact
	}{
		{
			"decedent owns it",
			withType(grantor, model.MatchDecedentAsParty), "DOE JOHN",
			model.Contact{Name: "DOE JOHN", Rationale: RationaleMatchedDecedent, Tier: model.ContactTierA},
		},
		{
			"grantee owns it, grantor is a person",
			withType(grantor, model.MatchGrantee), "SMITH ALICE",
			model.Contact{Name: "MARY JONES", Rationale: RationaleGrantorFallback, Tier: model.ContactTierB},
		},
		{
			"entity owns it, grantor is a person",
			withType(grantor, model.MatchUnrelatedOwner), "ACME LLC",
			model.Contact{Name: "MARY JONES", Rationale: RationaleGrantorVsEntity, Tier: model.ContactTierB},
		},
		{
			"unmatched person",
			withType(grantee, model.MatchUnrelatedOwner), "ROE RICHARD",
			model.Contact{Name: "ROE RICHARD", Rationale: RationaleUnmatchedHumanOwner, Tier: model.ContactTierC},
		},
		{
			"entity with no grantor",
			withType(grantee, model.MatchUnrelatedOwner), "ACME LLC",
			model.Contact{Rationale: RationaleEntitySuppress, Tier: model.ContactTierDrop},
		},
		{
			"no owner typing",
			&model.ResolvedMatch{Lead: grantee, Status: model.StatusNoHits}, "",
			model.Contact{Rationale: RationaleEntitySuppress, Tier: model.ContactTierDrop},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetermineContact(tt.m, tt.owner)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.True(t, DetermineContact(withType(grantor, model.MatchDecedentAsParty), "DOE JOHN").Actionable())
	assert.False(t, DetermineContact(withType(grantee, model.MatchUnrelatedOwner), "ACME LLC").Actionable())
}
