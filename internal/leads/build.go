package leads

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/probate-link/internal/model"
	"github.com/sells-group/probate-link/internal/records"
)

// BuildStats counts what Build did with its input rows.
type BuildStats struct {
	Rows       int `json:"rows"`
	Primary    int `json:"primary"`
	Duplicates int `json:"duplicates"`
	Grantees   int `json:"grantees"`
	Leads      int `json:"leads"`
}

// Build turns party-level rows into leads. A lead is built from each row
// flagged as a potential decedent match whose party type is Grantor, once
// per (case number, file number). Grantee names of the same file number are
// attached as the lead's grantees.
func Build(rows []Row) ([]model.Lead, BuildStats) {
	stats := BuildStats{Rows: len(rows)}

	granteesByFile := make(map[string][]string)
	for _, row := range rows {
		if !strings.EqualFold(row.Get(ColPartyType), records.RoleGrantee) {
			continue
		}
		name := strings.TrimSpace(row.Get(ColPartyFirst) + " " + row.Get(ColPartyLast))
		if name == "" {
			continue
		}
		file := row.Get(ColFileNumber)
		granteesByFile[file] = append(granteesByFile[file], name)
		stats.Grantees++
	}

	seen := make(map[string]bool)
	var out []model.Lead
	for _, row := range rows {
		if !isTrue(row.Get(ColDecedentMatch)) || !strings.EqualFold(row.Get(ColPartyType), records.RoleGrantor) {
			continue
		}
		stats.Primary++

		lead := leadFromRow(row)
		key := lead.CaseNumber + "\x00" + lead.FileNumber
		if seen[key] {
			stats.Duplicates++
			continue
		}
		seen[key] = true

		lead.Grantees = granteesByFile[lead.FileNumber]
		out = append(out, lead)
	}

	stats.Leads = len(out)
	zap.L().Debug("leads: built",
		zap.Int("rows", stats.Rows),
		zap.Int("primary", stats.Primary),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("leads", stats.Leads),
	)
	return out, stats
}

func leadFromRow(row Row) model.Lead {
	text := row.Get(ColLegalText)
	lead := model.Lead{
		CaseNumber:    row.Get(ColLeadCaseNumber, ColCaseNumber),
		FileNumber:    row.Get(ColFileNumber),
		DecedentFirst: row.Get(ColLeadDecedentFirst, ColDecedentFirst),
		DecedentLast:  row.Get(ColLeadDecedentLast, ColDecedentLast),
		PartyFirst:    row.Get(ColPartyFirst),
		PartyLast:     row.Get(ColPartyLast),
		PartyType:     row.Get(ColPartyType),
		Legal: model.LegalDescription{
			Lot:     row.Get(ColLegalLot),
			Block:   row.Get(ColLegalBlock),
			Section: row.Get(ColLegalSection, "rp_legal_section"),
			Tract:   row.Get(ColLegalTract),
			// The description text is the subdivision name as indexed by
			// the clerk; the structured column is often blank.
			Subdivision: firstNonEmpty(text, row.Get(ColLegalSubdiv)),
			Abstract:    row.Get(ColLegalAbstract),
			Survey:      row.Get(ColLegalSurvey),
			Description: text,
		},
		Confidence: ParseConfidence(row.Get(ColConfidence)),
	}

	if raw := row.Get(ColLeadFilingDate, ColFilingDate); raw != "" {
		if t, err := ParseFilingDate(raw); err == nil {
			lead.FilingDate = t
		} else {
			zap.L().Debug("leads: bad filing date", zap.String("case", lead.CaseNumber), zap.String("value", raw))
		}
	}
	return lead
}

// ParseConfidence maps a confidence label onto the known tiers.
func ParseConfidence(s string) model.Confidence {
	for _, c := range []model.Confidence{model.ConfidenceHigh, model.ConfidenceMedium, model.ConfidenceLow} {
		if strings.EqualFold(strings.TrimSpace(s), string(c)) {
			return c
		}
	}
	return model.ConfidenceUnknown
}

func isTrue(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err == nil {
		return b
	}
	return strings.EqualFold(strings.TrimSpace(s), "yes")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// ProbateLead is one probate filing to search the clerk index for.
type ProbateLead struct {
	County         string    `json:"county,omitempty"`
	CaseNumber     string    `json:"case_number"`
	FilingDate     time.Time `json:"filing_date"`
	DecedentFirst  string    `json:"decedent_first,omitempty"`
	DecedentLast   string    `json:"decedent_last"`
	TypeDesc       string    `json:"type_desc,omitempty"`
	Subtype        string    `json:"subtype,omitempty"`
	Status         string    `json:"status,omitempty"`
	SignalStrength int       `json:"signal_strength"`
}

// ProbateLeads parses probate lead rows. Rows without a surname or a
// parseable filing date are skipped. When the file carries a signal
// strength column, rows below MinProbateSignal are skipped too.
func ProbateLeads(rows []Row) []ProbateLead {
	hasSignal := false
	for _, row := range rows {
		if _, ok := row[ColSignalStrength]; ok {
			hasSignal = true
			break
		}
	}

	var out []ProbateLead
	for i, row := range rows {
		last := row.Get(ColDecedentLast)
		if last == "" {
			zap.L().Warn("leads: probate lead missing surname", zap.Int("row", i+1))
			continue
		}
		filed, err := ParseFilingDate(row.Get(ColFilingDate))
		if err != nil {
			zap.L().Warn("leads: probate lead has no usable filing date",
				zap.Int("row", i+1), zap.String("case", row.Get(ColCaseNumber)), zap.Error(err))
			continue
		}
		signal := ProbateSignal(row)
		if hasSignal && signal < MinProbateSignal {
			continue
		}
		out = append(out, ProbateLead{
			County:         row.Get(ColCounty),
			CaseNumber:     row.Get(ColCaseNumber),
			FilingDate:     filed,
			DecedentFirst:  row.Get(ColDecedentFirst),
			DecedentLast:   last,
			TypeDesc:       row.Get(ColTypeDesc),
			Subtype:        row.Get(ColSubtype),
			Status:         row.Get(ColStatus),
			SignalStrength: signal,
		})
	}
	return out
}

// PartyRecord flattens one discovered party row into an output row tagged
// with the probate lead it was found for.
func PartyRecord(lead ProbateLead, pr records.PartyRow, searchTerm, tier string) Row {
	row := Row{
		ColLeadCounty:         lead.County,
		ColLeadCaseNumber:     lead.CaseNumber,
		ColLeadFilingDate:     lead.FilingDate.Format("2006-01-02"),
		ColLeadDecedentFirst:  lead.DecedentFirst,
		ColLeadDecedentLast:   lead.DecedentLast,
		ColLeadTypeDesc:       lead.TypeDesc,
		ColLeadSubtype:        lead.Subtype,
		ColLeadStatus:         lead.Status,
		ColLeadSignalStrength: strconv.Itoa(lead.SignalStrength),
		ColFileNumber:         pr.FileNumber,
		ColFileDate:           pr.FileDate,
		ColInstrumentType:     pr.InstrumentType,
		ColPartyType:          pr.Role,
		ColPartyLast:          pr.Party.Last,
		ColPartyFirst:         pr.Party.First,
		ColLegalText:          pr.Legal.Description,
		ColLegalLot:           pr.Legal.Lot,
		ColLegalBlock:         pr.Legal.Block,
		ColLegalSubdiv:        pr.Legal.Subdivision,
		ColLegalAbstract:      pr.Legal.Abstract,
		ColLegalSurvey:        pr.Legal.Survey,
		ColLegalTract:         pr.Legal.Tract,
		ColLegalSection:       pr.Legal.Section,
		ColFoundBy:            searchTerm,
		ColSearchTier:         tier,
	}
	row[ColRPSignal] = strconv.Itoa(SignalScore(row, lead.FilingDate))
	return row
}
