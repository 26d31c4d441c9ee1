// Package export writes resolved matches as CSV or XLSX reports.
package export

import (
	"strconv"
	"strings"

	"github.com/sells-group/probate-link/internal/leads"
	"github.com/sells-group/probate-link/internal/model"
	"github.com/sells-group/probate-link/internal/ownermatch"
)

// Report columns.
const (
	ColCaseNumber       = "case_number"
	ColFileNumber       = "file_number"
	ColDecedentFirst    = "decedent_first_name"
	ColDecedentLast     = "decedent_last_name"
	ColPartyType        = "party_type"
	ColPartyFirst       = "party_first_name"
	ColPartyLast        = "party_last_name"
	ColGrantees         = "grantees"
	ColLot              = "legal_lot"
	ColBlock            = "legal_block"
	ColSection          = "legal_section"
	ColSubdivision      = "legal_subdivision"
	ColAbstract         = "legal_abstract"
	ColTract            = "legal_tract"
	ColConfidence       = "match_confidence_level"
	ColStatus           = "status"
	ColReason           = "reason"
	ColTier             = "matched_tier"
	ColScore            = "score"
	ColTierTrail        = "tier_trail"
	ColAccount          = "hcad_account"
	ColDetailURL        = "hcad_url"
	ColOwner            = "hcad_owner"
	ColMailing          = "hcad_mailing_address"
	ColSiteAddress      = "hcad_site_address"
	ColLegalText        = "hcad_legal_description"
	ColMarketValue      = "hcad_market_value"
	ColAppraisedValue   = "hcad_appraised_value"
	ColMatchType        = "owner_match_type"
	ColOwnerGrantor     = "is_owner_grantor"
	ColOwnerGrantee     = "is_owner_grantee"
	ColNeedsReview      = "needs_review"
	ColReviewReason     = "review_reason"
	ColTaxStatus        = "tax_status"
	ColTaxOwner         = "tax_owner"
	ColTaxMailing       = "tax_mailing_address"
	ColTaxCurrentDue    = "tax_current_due"
	ColTaxPriorDue      = "tax_prior_years_due"
	ColTaxExemption     = "tax_exemption_code"
	ColContactName      = "contact_name"
	ColContactTier      = "contact_tier"
	ColContactRationale = "contact_rationale"
)

// Columns is the report column order.
var Columns = []string{
	ColCaseNumber, ColFileNumber, ColDecedentFirst, ColDecedentLast,
	ColPartyType, ColPartyFirst, ColPartyLast, ColGrantees,
	ColLot, ColBlock, ColSection, ColSubdivision, ColAbstract, ColTract,
	ColConfidence, ColStatus, ColReason, ColTier, ColScore, ColTierTrail,
	ColAccount, ColDetailURL, ColOwner, ColMailing, ColSiteAddress, ColLegalText,
	ColMarketValue, ColAppraisedValue,
	ColMatchType, ColOwnerGrantor, ColOwnerGrantee, ColNeedsReview, ColReviewReason,
	ColTaxStatus, ColTaxOwner, ColTaxMailing, ColTaxCurrentDue, ColTaxPriorDue, ColTaxExemption,
	ColContactName, ColContactTier, ColContactRationale,
}

// numericColumns are written as numbers in XLSX output.
var numericColumns = map[string]bool{
	ColScore:          true,
	ColMarketValue:    true,
	ColAppraisedValue: true,
	ColTaxCurrentDue:  true,
	ColTaxPriorDue:    true,
}

// Record flattens one resolved match, with its tax statement when known,
// into a report row. Matched leads also get an outreach contact.
func Record(m *model.ResolvedMatch, tax *model.TaxStatement) leads.Row {
	l := m.Lead
	row := leads.Row{
		ColCaseNumber:    l.CaseNumber,
		ColFileNumber:    l.FileNumber,
		ColDecedentFirst: l.DecedentFirst,
		ColDecedentLast:  l.DecedentLast,
		ColPartyType:     l.PartyType,
		ColPartyFirst:    l.PartyFirst,
		ColPartyLast:     l.PartyLast,
		ColGrantees:      strings.Join(l.Grantees, "; "),
		ColLot:           l.Legal.Lot,
		ColBlock:         l.Legal.Block,
		ColSection:       l.Legal.Section,
		ColSubdivision:   l.Legal.Subdivision,
		ColAbstract:      l.Legal.Abstract,
		ColTract:         l.Legal.Tract,
		ColConfidence:    string(l.Confidence),
		ColStatus:        string(m.Status),
		ColReason:        m.Reason,
		ColTier:          m.Tier,
		ColTierTrail:     TierTrail(m.Attempts),
		ColAccount:       m.Account(),
	}
	if m.Status.Matched() {
		row[ColScore] = formatFloat(&m.Score)
	}

	owner := ""
	if d := m.Detail; d != nil {
		row[ColDetailURL] = d.URL
		row[ColOwner] = d.Owner
		row[ColMailing] = d.MailingAddress
		row[ColSiteAddress] = d.SiteAddress
		row[ColLegalText] = d.LegalDescription
		row[ColMarketValue] = formatFloat(d.MarketValue)
		row[ColAppraisedValue] = formatFloat(d.AppraisedValue)
		owner = d.Owner
	} else if s := m.Summary; s != nil {
		row[ColDetailURL] = s.Ref.URL
		row[ColOwner] = s.Owner
		row[ColSiteAddress] = s.Address
		row[ColMarketValue] = formatFloat(s.MarketValue)
		row[ColAppraisedValue] = formatFloat(s.AppraisedValue)
		owner = s.Owner
	}

	if om := m.Owner; om != nil {
		row[ColMatchType] = string(om.Type)
		row[ColOwnerGrantor] = strconv.FormatBool(om.IsOwnerGrantor)
		row[ColOwnerGrantee] = strconv.FormatBool(om.IsOwnerGrantee)
		row[ColReviewReason] = om.ReviewReason
	}
	row[ColNeedsReview] = strconv.FormatBool(m.NeedsFollowUp())

	if tax != nil {
		row[ColTaxStatus] = tax.StatusText
		row[ColTaxOwner] = tax.Owner
		row[ColTaxMailing] = tax.MailingAddress
		row[ColTaxCurrentDue] = formatFloat(tax.CurrentTaxesDue)
		row[ColTaxPriorDue] = formatFloat(tax.PriorYearsTaxesDue)
		row[ColTaxExemption] = tax.ExemptionCode
		if tax.Owner != "" {
			owner = tax.Owner
		}
	}

	if m.Status.Matched() {
		c := ownermatch.DetermineContact(m, owner)
		row[ColContactName] = c.Name
		row[ColContactTier] = string(c.Tier)
		row[ColContactRationale] = c.Rationale
	}
	return row
}

// TierTrail summarizes attempts as "TIER:STATUS > TIER:STATUS".
func TierTrail(attempts []model.TierAttempt) string {
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		parts = append(parts, a.Tier+":"+string(a.Status))
	}
	return strings.Join(parts, " > ")
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
