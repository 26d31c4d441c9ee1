package linkage

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/probate-link/internal/model"
	"github.com/sells-group/probate-link/internal/records"
)

// CountState distinguishes a missing record-count banner from one that
// could not be read and from a real count.
type CountState int

const (
	CountAbsent CountState = iota
	CountAmbiguous
	CountKnown
)

// RecordCount is the parsed record-count banner.
type RecordCount struct {
	State CountState
	N     int
}

var countRE = regexp.MustCompile(`(\d[\d,]*)`)

// ParseRecordCount reads a banner such as "1,234 records found". A banner
// with no number is ambiguous rather than zero.
func ParseRecordCount(text string) RecordCount {
	text = strings.TrimSpace(text)
	if text == "" {
		return RecordCount{State: CountAbsent}
	}
	m := countRE.FindString(text)
	if m == "" {
		return RecordCount{State: CountAmbiguous}
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m, ",", ""))
	if err != nil {
		return RecordCount{State: CountAmbiguous}
	}
	return RecordCount{State: CountKnown, N: n}
}

// Classifier turns raw provider responses into search outcomes.
type Classifier struct {
	pageSize int
}

// NewClassifier creates a classifier for a portal showing pageSize rows
// per result page.
func NewClassifier(pageSize int) *Classifier {
	return &Classifier{pageSize: pageSize}
}

// Classify applies the outcome checks in order: explicit no-records
// notice, direct detail page, zero count, page overflow, single hit,
// multiple hits, and finally a fault when nothing could be read.
func (c *Classifier) Classify(raw *RawResponse) SearchOutcome {
	if raw == nil {
		return ProviderFault{Kind: KindProviderError, Reason: "empty provider response"}
	}
	if raw.NoRecords {
		return NoHits{}
	}
	if raw.Detail != nil {
		return SingleHit{Ref: *raw.Detail}
	}

	count := ParseRecordCount(raw.CountText)
	candidates := decodeCandidates(raw.Rows)

	switch {
	case count.State == CountKnown && count.N == 0:
		return NoHits{}
	case count.State == CountKnown && count.N > c.pageSize && len(candidates) >= c.pageSize:
		return TooManyResults{Total: count.N, Candidates: candidates}
	case count.State == CountKnown && count.N == 1 && len(candidates) == 1:
		return SingleHit{Ref: candidates[0].Ref, Summary: &candidates[0]}
	case len(candidates) > 0:
		return MultipleHits{Candidates: candidates}
	case count.State == CountKnown:
		return ProviderFault{
			Kind:   KindProviderError,
			Reason: fmt.Sprintf("count banner reports %d records but no rows parsed", count.N),
		}
	default:
		return ProviderFault{
			Kind:   KindAmbiguousClassification,
			Reason: fmt.Sprintf("unrecognized result page (banner %q, %d rows)", raw.CountText, len(raw.Rows)),
		}
	}
}

func decodeCandidates(rows []records.Row) []model.CandidateSummary {
	var out []model.CandidateSummary
	for _, row := range rows {
		if s, ok := records.DecodeSummary(row); ok {
			out = append(out, s)
		}
	}
	return out
}
