package records

import (
	"regexp"
	"strings"

	"github.com/sells-group/probate-link/internal/model"
)

const (
	// minPrimaryCells is the fewest cells a primary row can have.
	minPrimaryCells = 5
	// prefixScanCells is how many leading cells may hold the file number.
	prefixScanCells = 3
	// legalScanSpan bounds the free-text scan, counted from the file number cell.
	legalScanSpan = 22
	// minLegalText is the shortest cell text considered for free-text parsing.
	minLegalText = 5
)

// recordPrefixes mark file numbers of recorded instruments.
var recordPrefixes = []string{"RP-", "RM-", "RT-"}

// Party is a name split into surname and remaining given names.
type Party struct {
	Last  string `json:"last"`
	First string `json:"first"`
}

// FullName returns "LAST FIRST" as printed in the index.
func (p Party) FullName() string {
	return strings.TrimSpace(p.Last + " " + p.First)
}

// ParseParty splits an index name ("DOE JANE Q") into surname and given names.
func ParseParty(name string) Party {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return Party{}
	}
	return Party{Last: fields[0], First: strings.Join(fields[1:], " ")}
}

// Record is one recorded instrument with its parties and legal description.
type Record struct {
	FileNumber     string                 `json:"file_number"`
	FileDate       string                 `json:"file_date,omitempty"`
	InstrumentType string                 `json:"instrument_type,omitempty"`
	Legal          model.LegalDescription `json:"legal"`
	Grantors       []Party                `json:"grantors,omitempty"`
	Grantees       []Party                `json:"grantees,omitempty"`
	Trustees       []Party                `json:"trustees,omitempty"`
	Overflow       []string               `json:"overflow,omitempty"`
}

// HasParties reports whether any party was attached to the record.
func (r *Record) HasParties() bool {
	return len(r.Grantors) > 0 || len(r.Grantees) > 0 || len(r.Trustees) > 0
}

// Group scans rows once and returns one Record per primary row, with the
// sub-rows that follow it folded in.
func Group(rows []Row) []Record {
	var out []Record
	for i := 0; i < len(rows); {
		idx, ok := primaryIndex(rows[i])
		if !ok {
			i++
			continue
		}
		rec, next := groupOne(rows, i, idx)
		out = append(out, rec)
		i = next
	}
	return out
}

// primaryIndex returns the cell holding the file number when row is a
// primary row.
func primaryIndex(row Row) (int, bool) {
	if len(row) < minPrimaryCells {
		return 0, false
	}
	for i := 0; i < prefixScanCells && i < len(row); i++ {
		text := row.Text(i)
		for _, p := range recordPrefixes {
			if strings.HasPrefix(text, p) {
				return i, true
			}
		}
	}
	return 0, false
}

// groupOne builds the record opened by rows[start] and returns the index of
// the first row it did not consume.
func groupOne(rows []Row, start, fileIdx int) (Record, int) {
	row := rows[start]
	dateIdx, typeIdx, namesIdx, legalIdx := fileIdx+1, fileIdx+2, fileIdx+3, fileIdx+4

	rec := Record{
		FileNumber: row.Text(fileIdx),
		FileDate:   row.Text(dateIdx),
	}
	if fields := strings.Fields(row.Text(typeIdx)); len(fields) > 0 {
		rec.InstrumentType = fields[0]
	}

	nested := legalIdx < len(row) && len(row[legalIdx].Nested) > 0
	if nested {
		rec.Legal = parseNestedLegal(row[legalIdx].Nested)
	}
	structured := nested && hasKeyLegal(rec.Legal)
	if !structured {
		scanFreeText(row, &rec, namesIdx+1, min(fileIdx+legalScanSpan, len(row)), legalIdx, nested)
	}

	next := start + 1
	for ; next < len(rows); next++ {
		sub := rows[next]
		if _, ok := primaryIndex(sub); ok {
			break
		}
		if len(sub) == 0 {
			continue
		}
		if len(sub) != 2 {
			break
		}
		applySubRow(&rec, sub, structured)
	}

	if !rec.HasParties() {
		rec.Grantors, rec.Grantees, rec.Trustees = ParseNamesColumn(row.Text(namesIdx))
	}
	return rec, next
}

// scanFreeText fills missing legal fields from labeled text cells in
// [from, to), stopping once a lot, block, or description is known.
func scanFreeText(row Row, rec *Record, from, to, nestedIdx int, nested bool) {
	for i := from; i < to; i++ {
		if nested && i == nestedIdx {
			continue
		}
		text := row.Text(i)
		if len(text) < minLegalText || !hasLegalKeyword(text) {
			continue
		}
		fillEmpty(&rec.Legal, ParseLegalText(text))
		if rec.Legal.Lot != "" || rec.Legal.Block != "" || rec.Legal.Description != "" {
			return
		}
	}
}

// applySubRow folds a two-cell label/value row into rec. Legal labels are
// ignored when a nested legal block was already parsed.
func applySubRow(rec *Record, sub Row, structured bool) {
	label := strings.ToUpper(sub.Text(0))
	value := subRowValue(sub[1])

	switch {
	case strings.Contains(label, "GRANTOR"):
		rec.Grantors = append(rec.Grantors, ParseParty(value))
		return
	case strings.Contains(label, "GRANTEE"):
		rec.Grantees = append(rec.Grantees, ParseParty(value))
		return
	case strings.Contains(label, "TRUSTEE"):
		rec.Trustees = append(rec.Trustees, ParseParty(value))
		return
	}

	var field *string
	switch {
	case strings.Contains(label, "DESC:"):
		field = &rec.Legal.Description
	case strings.Contains(label, "LOT:"):
		field = &rec.Legal.Lot
	case strings.Contains(label, "BLOCK:"):
		field = &rec.Legal.Block
	case strings.Contains(label, "SUBDIV"):
		field = &rec.Legal.Subdivision
	}
	if field != nil {
		if !structured && *field == "" {
			*field = value
		}
		return
	}

	if label != "" || value != "" {
		rec.Overflow = append(rec.Overflow, strings.TrimSpace(strings.TrimSuffix(sub.Text(0), ":")+": "+value))
	}
}

// subRowValue prefers the first nested span-like text when present.
func subRowValue(c Cell) string {
	if len(c.Nested) > 0 && len(c.Nested[0]) > 0 {
		if v := CleanText(c.Nested[0][0].Text); v != "" {
			return v
		}
	}
	return CleanText(c.Text)
}

var partyLabelRE = regexp.MustCompile(`(?i)\b(GRANTOR|GRANTEE|TRUSTEE|GTR|GTE|TR)\b[:\s]+`)

// ParseNamesColumn reads parties from a names cell such as
// "Grantor: DOE JANE Grantee: ROE RICHARD".
func ParseNamesColumn(text string) (grantors, grantees, trustees []Party) {
	matches := partyLabelRE.FindAllStringSubmatchIndex(text, -1)
	for i, m := range matches {
		stop := len(text)
		if i+1 < len(matches) {
			stop = matches[i+1][0]
		}
		name := CleanText(text[m[1]:stop])
		if name == "" {
			continue
		}
		p := ParseParty(name)
		switch strings.ToUpper(text[m[2]:m[3]]) {
		case "GRANTOR", "GTR":
			grantors = append(grantors, p)
		case "GRANTEE", "GTE":
			grantees = append(grantees, p)
		default:
			trustees = append(trustees, p)
		}
	}
	return grantors, grantees, trustees
}
