package model

import (
	"strings"
	"time"
)

// Confidence is the coarse prior attached to a lead by the upstream
// matching stage. Only ConfidenceHigh changes acceptance thresholds.
type Confidence string

const (
	ConfidenceHigh    Confidence = "High"
	ConfidenceMedium  Confidence = "Medium"
	ConfidenceLow     Confidence = "Low"
	ConfidenceUnknown Confidence = "Unknown"
)

// IsHigh reports whether c is the High confidence tier.
func (c Confidence) IsHigh() bool {
	return strings.EqualFold(strings.TrimSpace(string(c)), string(ConfidenceHigh))
}

// LegalDescription holds the fragments of a recorded legal description.
type LegalDescription struct {
	Lot         string `json:"lot,omitempty"`
	Block       string `json:"block,omitempty"`
	Section     string `json:"section,omitempty"`
	Tract       string `json:"tract,omitempty"`
	Subdivision string `json:"subdivision,omitempty"`
	Abstract    string `json:"abstract,omitempty"`
	Survey      string `json:"survey,omitempty"`
	Description string `json:"description,omitempty"`
}

// IsEmpty reports whether no legal field is populated.
func (l LegalDescription) IsEmpty() bool {
	return l == LegalDescription{}
}

// Lead is the identity fragment for one decedent-to-property link attempt.
// The engine never mutates a Lead.
type Lead struct {
	CaseNumber    string           `json:"case_number"`
	FileNumber    string           `json:"file_number,omitempty"`
	DecedentFirst string           `json:"decedent_first,omitempty"`
	DecedentLast  string           `json:"decedent_last,omitempty"`
	PartyFirst    string           `json:"party_first,omitempty"`
	PartyLast     string           `json:"party_last,omitempty"`
	PartyType     string           `json:"party_type,omitempty"`
	Grantees      []string         `json:"grantees,omitempty"`
	Legal         LegalDescription `json:"legal"`
	Confidence    Confidence       `json:"confidence"`
	FilingDate    time.Time        `json:"filing_date,omitzero"`
}

// DecedentName returns "FIRST LAST" for the decedent, trimmed.
func (l Lead) DecedentName() string {
	return strings.TrimSpace(l.DecedentFirst + " " + l.DecedentLast)
}

// PartyName returns "FIRST LAST" for the recorded party, trimmed.
func (l Lead) PartyName() string {
	return strings.TrimSpace(l.PartyFirst + " " + l.PartyLast)
}

// ID returns a stable identifier for logging and persistence.
func (l Lead) ID() string {
	if l.FileNumber == "" {
		return l.CaseNumber
	}
	return l.CaseNumber + "/" + l.FileNumber
}
