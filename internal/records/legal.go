package records

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/sells-group/probate-link/internal/model"
)

type legalField int

const (
	fieldNone legalField = iota
	fieldDesc
	fieldSubdivision
	fieldLot
	fieldBlock
	fieldSection
	fieldAbstract
	fieldSurvey
	fieldTract
)

// legalLabelRE finds legal labels in free text. Longer spellings come first
// so SECTION is not read as SEC.
var legalLabelRE = regexp.MustCompile(`(?i)\b(DESCRIPTION|DESC|SUBDIVISION|SUBDIV|SUBD|LOT|BLOCK|SECTION|SEC|ABSTRACT|SURVEY|TRACT|COMMENT)\b([:\s#-]*)`)

var labelFields = map[string]legalField{
	"DESCRIPTION": fieldDesc,
	"DESC":        fieldDesc,
	"SUBDIVISION": fieldSubdivision,
	"SUBDIV":      fieldSubdivision,
	"SUBD":        fieldSubdivision,
	"LOT":         fieldLot,
	"BLOCK":       fieldBlock,
	"SECTION":     fieldSection,
	"SEC":         fieldSection,
	"ABSTRACT":    fieldAbstract,
	"SURVEY":      fieldSurvey,
	"TRACT":       fieldTract,
	"COMMENT":     fieldNone,
}

// fallbackOrder is the order free-text fields are resolved in.
var fallbackOrder = []legalField{
	fieldLot, fieldBlock, fieldSection, fieldTract,
	fieldAbstract, fieldSurvey, fieldSubdivision, fieldDesc,
}

// legalKeywords gate which free-text cells are worth parsing.
var legalKeywords = []string{
	"DESC:", "LOT:", "BLOCK:", "SEC:", "SUBDIVISION:", "ABSTRACT:", "SURVEY:", "TRACT:",
}

type labelHit struct {
	field      legalField
	start, end int
	colon      bool
}

// ParseLegalText extracts legal fields from labeled free text such as
// "Desc: OAK RIDGE Lot: 5 Block: 3". A value runs until the next label that
// carries a colon. Each field keeps its first non-empty value. When no
// structured field is found the whole text becomes the description.
func ParseLegalText(text string) model.LegalDescription {
	var legal model.LegalDescription
	text = CleanText(text)
	if text == "" {
		return legal
	}

	var hits []labelHit
	for _, m := range legalLabelRE.FindAllStringSubmatchIndex(text, -1) {
		hits = append(hits, labelHit{
			field: labelFields[strings.ToUpper(text[m[2]:m[3]])],
			start: m[0],
			end:   m[1],
			colon: strings.Contains(text[m[4]:m[5]], ":"),
		})
	}

	values := make(map[legalField]string)
	for _, f := range fallbackOrder {
		for i, h := range hits {
			if h.field != f {
				continue
			}
			stop := len(text)
			for _, next := range hits[i+1:] {
				if next.colon && next.start >= h.end {
					stop = next.start
					break
				}
			}
			v := text[h.end:stop]
			if f != fieldDesc && f != fieldSubdivision {
				v = keepWordChars(v)
			}
			if v = CleanText(v); v != "" {
				values[f] = v
				break
			}
		}
	}

	legal.Lot = values[fieldLot]
	legal.Block = values[fieldBlock]
	legal.Section = values[fieldSection]
	legal.Tract = values[fieldTract]
	legal.Abstract = values[fieldAbstract]
	legal.Survey = values[fieldSurvey]
	legal.Subdivision = values[fieldSubdivision]
	legal.Description = values[fieldDesc]

	structured := legal.Lot != "" || legal.Block != "" || legal.Subdivision != "" ||
		legal.Abstract != "" || legal.Survey != "" || legal.Tract != ""
	if !structured && legal.Description == "" {
		legal.Description = text
	}
	return stripRelatedDocs(legal)
}

// keepWordChars cuts s at the first rune that cannot appear in a lot,
// block, or section value.
func keepWordChars(s string) string {
	for i, r := range s {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == '_' || r == '.' || r == '-') {
			return s[:i]
		}
	}
	return s
}

func stripRelatedDocs(l model.LegalDescription) model.LegalDescription {
	for _, f := range []*string{&l.Lot, &l.Block, &l.Section, &l.Tract, &l.Subdivision, &l.Abstract, &l.Survey, &l.Description} {
		if before, _, ok := strings.Cut(*f, "Related Docs"); ok {
			*f = strings.TrimSpace(before)
		}
	}
	return l
}

// hasLegalKeyword reports whether text looks like a labeled legal block.
func hasLegalKeyword(text string) bool {
	upper := strings.ToUpper(text)
	for _, k := range legalKeywords {
		if strings.Contains(upper, k) {
			return true
		}
	}
	return false
}

// parseNestedLegal reads a nested label/value table. Unknown labels are
// kept in the description as OTHER_LEGAL entries.
func parseNestedLegal(rows []Row) model.LegalDescription {
	var legal model.LegalDescription
	var other []string
	for _, row := range rows {
		if len(row) != 2 {
			continue
		}
		rawLabel := row.Text(0)
		label := strings.ToUpper(rawLabel)
		value := row.Text(1)
		if value == "" {
			continue
		}
		switch {
		case strings.Contains(label, "DESC:"):
			legal.Description = value
		case strings.Contains(label, "BLOCK:"):
			legal.Block = value
		case strings.Contains(label, "LOT:"):
			legal.Lot = value
		case strings.Contains(label, "SUBDIV"):
			legal.Subdivision = value
		case strings.Contains(label, "ABSTRACT"):
			legal.Abstract = value
		case strings.Contains(label, "SURVEY"):
			legal.Survey = value
		case strings.Contains(label, "TRACT"):
			legal.Tract = value
		case strings.Contains(label, "SEC:") || strings.Contains(label, "SECTION:"):
			legal.Section = value
		case strings.Contains(label, "COMMENT:"):
			legal.Description = appendDesc(legal.Description, "COMMENT: "+value)
		case label != "":
			other = append(other, strings.TrimSuffix(rawLabel, ":")+": "+value)
		}
	}
	if len(other) > 0 {
		legal.Description = appendDesc(legal.Description, "OTHER_LEGAL: "+strings.Join(other, " | "))
	}
	return legal
}

func appendDesc(desc, extra string) string {
	if desc == "" {
		return extra
	}
	return desc + " | " + extra
}

// hasKeyLegal reports whether the fields that drive matching were found.
func hasKeyLegal(l model.LegalDescription) bool {
	return l.Lot != "" || l.Block != "" || l.Subdivision != "" || l.Section != "" || l.Description != ""
}

// fillEmpty copies fields from src into dst where dst is blank.
func fillEmpty(dst *model.LegalDescription, src model.LegalDescription) {
	pairs := []struct{ d, s *string }{
		{&dst.Lot, &src.Lot}, {&dst.Block, &src.Block}, {&dst.Section, &src.Section},
		{&dst.Tract, &src.Tract}, {&dst.Subdivision, &src.Subdivision},
		{&dst.Abstract, &src.Abstract}, {&dst.Survey, &src.Survey},
		{&dst.Description, &src.Description},
	}
	for _, p := range pairs {
		if *p.d == "" {
			*p.d = *p.s
		}
	}
}
