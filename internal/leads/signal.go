package leads

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// MinProbateSignal is the lowest probate lead signal strength worth a
// clerk search.
const MinProbateSignal = 3

var filingDateLayouts = []string{"01/02/2006", "2006-01-02", "01-02-2006", "2006/01/02"}

// ParseFilingDate parses a date in any of the layouts the upstream files use.
func ParseFilingDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, eris.New("leads: empty filing date")
	}
	for _, layout := range filingDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("leads: unrecognized filing date %q", s)
}

// SignalScore rates how useful a recorded instrument row is: +1 for legal
// description text, +1 for a lot or block, and +2 when it was recorded
// within 180 days of the probate filing (+1 within 365 days).
func SignalScore(row Row, filed time.Time) int {
	score := 0
	if row.Get(ColLegalText) != "" {
		score++
	}
	if row.Get(ColLegalLot) != "" || row.Get(ColLegalBlock) != "" {
		score++
	}

	recorded := row.Get(ColFileDate)
	if recorded == "" || filed.IsZero() {
		return score
	}
	t, err := time.Parse("01/02/2006", recorded)
	if err != nil {
		return score
	}
	days := t.Sub(filed).Hours() / 24
	if days < 0 {
		days = -days
	}
	switch {
	case days <= 180:
		score += 2
	case days <= 365:
		score++
	}
	return score
}

// ProbateSignal returns the signal strength column of a probate lead row,
// or 0 when it is missing or not numeric.
func ProbateSignal(row Row) int {
	v := row.Get(ColSignalStrength)
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return int(f)
}
