// Package records reconstructs structured records from the flat table rows
// returned by public-record search portals.
package records

import (
	"strconv"
	"strings"
)

// Cell is one table cell as extracted from a rendered page.
type Cell struct {
	Text   string `json:"text"`
	Href   string `json:"href,omitempty"`
	Nested []Row  `json:"nested,omitempty"`
}

// Row is one table row. A row with zero cells is a spacer.
type Row []Cell

// Text returns the cleaned text of cell i, or "" when out of range.
func (r Row) Text(i int) string {
	if i < 0 || i >= len(r) {
		return ""
	}
	return CleanText(r[i].Text)
}

// TextRow builds a row of plain text cells.
func TextRow(texts ...string) Row {
	row := make(Row, len(texts))
	for i, t := range texts {
		row[i] = Cell{Text: t}
	}
	return row
}

// CleanText collapses runs of whitespace and trims the result.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ParseNumber parses a currency or count string such as "$1,234.50".
// Empty, "Pending", and unparsable values return nil.
func ParseNumber(s string) *float64 {
	cleaned := strings.NewReplacer("$", "", ",", "").Replace(strings.TrimSpace(s))
	if cleaned == "" || strings.EqualFold(cleaned, "pending") {
		return nil
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &f
}
