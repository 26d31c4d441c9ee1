package model

import "time"

// TaxStatement is the current statement decoded from the tax-collector index.
type TaxStatement struct {
	Account             string    `json:"account"`
	StatusText          string    `json:"status_text,omitempty"`
	StatementDate       string    `json:"statement_date,omitempty"`
	Owner               string    `json:"owner,omitempty"`
	MailingAddress      string    `json:"mailing_address,omitempty"`
	SiteAddress         string    `json:"site_address,omitempty"`
	LegalDescription    string    `json:"legal_description,omitempty"`
	LandMarketValue     *float64  `json:"land_market_value,omitempty"`
	ImprovementValue    *float64  `json:"improvement_value,omitempty"`
	TotalMarketValue    *float64  `json:"total_market_value,omitempty"`
	AppraisedValue      *float64  `json:"appraised_value,omitempty"`
	ExemptionCode       string    `json:"exemption_code,omitempty"`
	CurrentTaxesDue     *float64  `json:"current_taxes_due,omitempty"`
	PriorYearsTaxesDue  *float64  `json:"prior_years_taxes_due,omitempty"`
	TaxesDueByJanuary31 *float64  `json:"taxes_due_by_jan31,omitempty"`
	FetchedAt           time.Time `json:"fetched_at"`
	Error               string    `json:"error,omitempty"`
}

// ContactTier ranks how directly a lead can be contacted.
type ContactTier string

const (
	ContactTierA    ContactTier = "A"
	ContactTierB    ContactTier = "B"
	ContactTierC    ContactTier = "C"
	ContactTierDrop ContactTier = "DROP"
)

// Contact is the chosen outreach target for a resolved lead.
type Contact struct {
	Name      string      `json:"name,omitempty"`
	Rationale string      `json:"rationale"`
	Tier      ContactTier `json:"tier"`
}

// Actionable reports whether the contact is worth outreach.
func (c Contact) Actionable() bool {
	return (c.Tier == ContactTierA || c.Tier == ContactTierB) && c.Name != ""
}
