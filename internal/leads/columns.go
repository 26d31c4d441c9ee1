// Package leads loads probate lead files and the party-level record rows
// produced by clerk discovery, and builds the engine's Lead values from them.
package leads

// Probate lead columns, as written by the probate court scraper.
const (
	ColCounty         = "county"
	ColCaseNumber     = "case_number"
	ColFilingDate     = "filing_date"
	ColDecedentFirst  = "decedent_first"
	ColDecedentLast   = "decedent_last"
	ColTypeDesc       = "type_desc"
	ColSubtype        = "subtype"
	ColStatus         = "status"
	ColSignalStrength = "signal_strength"
)

// Party row columns, as written by clerk discovery and consumed by resolution.
const (
	ColLeadCounty         = "probate_lead_county"
	ColLeadCaseNumber     = "probate_lead_case_number"
	ColLeadFilingDate     = "probate_lead_filing_date"
	ColLeadDecedentFirst  = "probate_lead_decedent_first"
	ColLeadDecedentLast   = "probate_lead_decedent_last"
	ColLeadTypeDesc       = "probate_lead_type_desc"
	ColLeadSubtype        = "probate_lead_subtype"
	ColLeadStatus         = "probate_lead_status"
	ColLeadSignalStrength = "probate_lead_signal_strength"

	ColFileNumber     = "rp_file_number"
	ColFileDate       = "rp_file_date"
	ColInstrumentType = "rp_instrument_type"
	ColPartyType      = "rp_party_type"
	ColPartyLast      = "rp_party_last_name"
	ColPartyFirst     = "rp_party_first_name"
	ColLegalText      = "rp_legal_description_text"
	ColLegalLot       = "rp_legal_lot"
	ColLegalBlock     = "rp_legal_block"
	ColLegalSubdiv    = "rp_legal_subdivision"
	ColLegalAbstract  = "rp_legal_abstract"
	ColLegalSurvey    = "rp_legal_survey"
	ColLegalTract     = "rp_legal_tract"
	ColLegalSection   = "rp_legal_sec"
	ColRPSignal       = "rp_signal_strength"
	ColFoundBy        = "rp_found_by_search_term"
	ColSearchTier     = "rp_search_tier"

	// Added by the upstream preliminary scoring step.
	ColDecedentMatch = "is_potential_decedent_match"
	ColConfidence    = "match_confidence_level"
)

// PartyColumns is the column order of discovery output files.
var PartyColumns = []string{
	ColLeadCounty, ColLeadCaseNumber, ColLeadFilingDate,
	ColLeadDecedentFirst, ColLeadDecedentLast,
	ColLeadTypeDesc, ColLeadSubtype, ColLeadStatus, ColLeadSignalStrength,
	ColFileNumber, ColFileDate, ColInstrumentType,
	ColPartyType, ColPartyLast, ColPartyFirst,
	ColLegalText, ColLegalLot, ColLegalBlock, ColLegalSubdiv,
	ColLegalAbstract, ColLegalSurvey, ColLegalTract, ColLegalSection,
	ColRPSignal, ColFoundBy, ColSearchTier,
}
